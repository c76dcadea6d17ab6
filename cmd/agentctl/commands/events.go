package commands

import (
	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/internal/store"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query the cross-cutting event log",
}

var (
	eventsType    string
	eventsSource  string
	eventsIssueID string
	eventsRunID   string
	eventsLimit   int
)

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events matching a filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openReadStore()
		if err != nil {
			return err
		}
		defer s.Close()
		q := store.EventQuery{Type: eventsType, Source: eventsSource, IssueID: eventsIssueID, RunID: eventsRunID, Limit: eventsLimit}
		return printJSON(s.Query(q))
	},
}

var eventsTraceCmd = &cobra.Command{
	Use:   "trace <issue-id>",
	Short: "List every event for one issue, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openReadStore()
		if err != nil {
			return err
		}
		defer s.Close()
		return printJSON(s.Query(store.EventQuery{IssueID: args[0]}))
	},
}

func init() {
	eventsListCmd.Flags().StringVar(&eventsType, "type", "", "Filter by event type")
	eventsListCmd.Flags().StringVar(&eventsSource, "source", "", "Filter by source")
	eventsListCmd.Flags().StringVar(&eventsIssueID, "issue-id", "", "Filter by issue id")
	eventsListCmd.Flags().StringVar(&eventsRunID, "run-id", "", "Filter by run id")
	eventsListCmd.Flags().IntVar(&eventsLimit, "limit", 100, "Max events to return")

	eventsCmd.AddCommand(eventsListCmd, eventsTraceCmd)
}
