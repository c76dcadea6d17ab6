package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runMaxSteps int

var runCmd = &cobra.Command{
	Use:   "run <prompt...>",
	Short: "Queue a new root issue from a prompt and drive it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, s, closer, err := openWriteStore()
		if err != nil {
			return err
		}
		defer closer()

		ctrl, err := newController(s, paths)
		if err != nil {
			return err
		}
		defer ctrl.Close()

		rec, err := ctrl.EnqueueRun(strings.Join(args, " "), runMaxSteps)
		if err != nil {
			return err
		}
		fmt.Println("queued job", rec.JobID, "root", rec.RootIssueID)

		ran, err := ctrl.RunOnce(context.Background())
		if err != nil {
			return err
		}
		if !ran {
			return printJSON(rec)
		}
		final, err := ctrl.SnapshotRun(rec.JobID)
		if err != nil {
			return err
		}
		return printJSON(final)
	},
}

func init() {
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", 50, "Step budget for this run")
}
