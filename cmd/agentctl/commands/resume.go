package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var resumeMaxSteps int

var resumeCmd = &cobra.Command{
	Use:   "resume <root-id>",
	Short: "Queue a resume run against an existing root issue",
	Args:  cobra.ExactArgs(1),
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

		rec, err := ctrl.EnqueueResume(args[0], resumeMaxSteps)
		if err != nil {
			return err
		}
		if _, err := ctrl.RunOnce(context.Background()); err != nil {
			return err
		}
		final, err := ctrl.SnapshotRun(rec.JobID)
		if err != nil {
			return err
		}
		return printJSON(final)
	},
}

func init() {
	resumeCmd.Flags().IntVar(&resumeMaxSteps, "max-steps", 50, "Step budget for this resume")
}
