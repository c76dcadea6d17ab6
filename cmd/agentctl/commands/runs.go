package commands

import (
	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/internal/scheduler"
)

var (
	runsStatus string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect queued and historical runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, s, err := openReadStore()
		if err != nil {
			return err
		}
		defer s.Close()
		ctrl, err := newController(s, paths)
		if err != nil {
			return err
		}
		defer ctrl.Close()
		return printJSON(ctrl.ListRuns(scheduler.RunFilter{Status: scheduler.RunStatus(runsStatus), Limit: runsLimit}))
	},
}

var runsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print one run's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, s, err := openReadStore()
		if err != nil {
			return err
		}
		defer s.Close()
		ctrl, err := newController(s, paths)
		if err != nil {
			return err
		}
		defer ctrl.Close()
		rec, err := ctrl.SnapshotRun(args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var runsTraceCmd = &cobra.Command{
	Use:   "trace <job-id>",
	Short: "Print one run's output tail and trace log hints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, s, err := openReadStore()
		if err != nil {
			return err
		}
		defer s.Close()
		ctrl, err := newController(s, paths)
		if err != nil {
			return err
		}
		defer ctrl.Close()
		rec, err := ctrl.TraceRun(args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "Filter by status")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 0, "Max runs to return (0 = unbounded)")
	runsCmd.AddCommand(runsListCmd, runsStatusCmd, runsTraceCmd)
}
