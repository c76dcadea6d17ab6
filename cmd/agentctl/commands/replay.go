package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var replayPretty bool

var replayCmd = &cobra.Command{
	Use:   "replay <id|path>",
	Short: "Emit a captured per-issue trace log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if info, err := os.Stat(args[0]); err == nil && !info.IsDir() {
			return replayFile(args[0])
		}
		return replayIssue(args[0])
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayPretty, "pretty", false, "Re-indent each JSON record")
}

// replayIssue resolves issueID to its root and prints every trace file
// matching "<issueID>*.jsonl" under that root's logs directory (spec's
// "logs/<root_issue_id>/<issue_id>*.jsonl" layout, §6).
func replayIssue(issueID string) error {
	paths, s, err := openReadStore()
	if err != nil {
		return err
	}
	defer s.Close()

	issue, err := s.Get(issueID)
	if err != nil {
		return err
	}
	rootID := issue.ID
	for issue.Parent != "" {
		issue, err = s.Get(issue.Parent)
		if err != nil {
			return err
		}
		rootID = issue.ID
	}

	matches, err := filepath.Glob(filepath.Join(paths.LogsDir(rootID), issueID+"*.jsonl"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("no trace log found for", issueID)
		return nil
	}
	for _, m := range matches {
		if err := replayFile(m); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(path string) error {
	lines, err := tailFile(path, 0)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if !replayPretty {
			fmt.Println(line)
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			fmt.Println(line)
			continue
		}
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}
