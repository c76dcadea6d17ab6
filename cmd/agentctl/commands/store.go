package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var tailLines int

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect the workspace store directory",
}

var storePathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Print every store path this workspace resolves",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := openPaths()
		if err != nil {
			return err
		}
		return printJSON(map[string]string{
			"store_dir":              paths.StoreDir(),
			"issues":                 paths.IssuesLog(),
			"forum":                  paths.ForumLog(),
			"events":                 paths.EventsLog(),
			"config":                 paths.ConfigFile(),
			"heartbeats":             paths.HeartbeatsLog(),
			"cron":                   paths.CronLog(),
			"runs":                   paths.RunsLog(),
			"control_plane_dir":      paths.ControlPlaneDir(),
			"discovery":              paths.DiscoveryFile(),
			"writer_lock":            paths.WriterLockFile(),
			"identities":             paths.IdentitiesLog(),
			"commands":               paths.CommandsLog(),
			"outbox":                 paths.OutboxLog(),
			"policy":                 paths.PolicyFile(),
			"operator_turns":         paths.OperatorTurnsLog(),
			"operator_conversations": paths.OperatorConversationsFile(),
		})
	},
}

var storeLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every file under the store directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := openPaths()
		if err != nil {
			return err
		}
		var files []string
		root := paths.StoreDir()
		err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
			return nil
		})
		if err != nil {
			return err
		}
		sort.Strings(files)
		return printJSON(files)
	},
}

var storeTailCmd = &cobra.Command{
	Use:   "tail <relative-path>",
	Short: "Print the last N lines of a store-relative file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := openPaths()
		if err != nil {
			return err
		}
		root := paths.StoreDir()
		target := filepath.Join(root, filepath.Clean(args[0]))
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("path escapes the store directory")
		}
		lines, err := tailFile(target, tailLines)
		if err != nil {
			return err
		}
		for _, l := range lines {
			fmt.Println(l)
		}
		return nil
	},
}

// tailFile returns the last n non-empty lines of path. Store logs are
// append-only jsonl; a full scan is acceptable since they are bounded by
// one workspace's history.
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func init() {
	storeTailCmd.Flags().IntVar(&tailLines, "lines", 20, "Number of trailing lines to print")
	storeCmd.AddCommand(storePathsCmd, storeLsCmd, storeTailCmd)
}
