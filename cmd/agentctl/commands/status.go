package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the workspace's open work",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, s, err := openReadStore()
	if err != nil {
		return err
	}
	defer s.Close()

	open := s.List(store.ListFilter{Status: store.StatusOpen})
	inProgress := s.List(store.ListFilter{Status: store.StatusInProgress})
	closed := s.List(store.ListFilter{Status: store.StatusClosed})
	ready, err := s.Ready("", store.ReadyFilter{})
	if err != nil {
		return err
	}

	summary := map[string]any{
		"open":        len(open),
		"in_progress": len(inProgress),
		"closed":      len(closed),
		"ready":       len(ready),
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
