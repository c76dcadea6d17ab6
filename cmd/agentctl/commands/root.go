// Package commands provides the CLI commands for agentctl.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/logging"
	"github.com/agentctl/agentctl/internal/serve"
	"github.com/agentctl/agentctl/internal/store"
)

var (
	// Version information set at build time.
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags.
var (
	printLogs bool
	logLevel  string
	logFile   bool
	workDir   string
)

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "agentctl - personal agent runtime for technical work",
	Long: `agentctl runs a workspace-scoped DAG of work items through a
pluggable coding-agent backend, on a schedule or on demand, and exposes a
control plane a human or an operator broker can drive.

Run 'agentctl serve' to start the control plane, or 'agentctl run "..."'
to queue work directly.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logCfg := logging.Config{
			Level:     logging.ParseLevel(logLevel),
			Output:    os.Stderr,
			Pretty:    printLogs,
			LogToFile: logFile,
		}
		if !printLogs && !logFile {
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "Write logs to /tmp/agentctl-YYYYMMDD-HHMMSS.log")
	rootCmd.PersistentFlags().StringVarP(&workDir, "directory", "C", "", "Workspace repository root (defaults to the current directory)")
	rootCmd.PersistentFlags().StringVar(&backendCmd, "backend", "", "Coding-agent backend command line (defaults to $AGENTCTL_BACKEND_CMD or \"agentctl-backend\")")

	rootCmd.SetVersionTemplate(fmt.Sprintf("agentctl %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(issuesCmd)
	rootCmd.AddCommand(forumCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(heartbeatsCmd)
	rootCmd.AddCommand(cronCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(controlCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the workspace root from the --directory flag, or the
// current directory when unset.
func GetWorkDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	return os.Getwd()
}

// openPaths resolves the workspace root and ensures its store layout
// exists.
func openPaths() (*config.Paths, error) {
	dir, err := GetWorkDir()
	if err != nil {
		return nil, err
	}
	paths := config.NewPaths(dir)
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}
	return paths, nil
}

// openReadStore opens the store read-only (no writer lock): for commands
// that only list or print state.
func openReadStore() (*config.Paths, *store.Store, error) {
	paths, err := openPaths()
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(paths)
	if err != nil {
		return nil, nil, err
	}
	return paths, s, nil
}

// openWriteStore opens the store under the workspace writer lock, for
// commands that append to it. The returned closer releases the lock and
// closes the store; callers must defer it.
func openWriteStore() (*config.Paths, *store.Store, func(), error) {
	paths, err := openPaths()
	if err != nil {
		return nil, nil, nil, err
	}
	lock, err := serve.AcquireWriterLock(paths.WriterLockFile())
	if err != nil {
		return nil, nil, nil, err
	}
	s, err := store.Open(paths)
	if err != nil {
		lock.Release()
		return nil, nil, nil, err
	}
	closer := func() {
		s.Close()
		lock.Release()
	}
	return paths, s, closer, nil
}
