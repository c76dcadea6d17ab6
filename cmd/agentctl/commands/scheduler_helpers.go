package commands

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/runner"
	"github.com/agentctl/agentctl/internal/scheduler"
	"github.com/agentctl/agentctl/internal/store"
)

var backendCmd string

// buildBackend resolves the configured backend command into a
// runner.BackendRunner. Per spec §1 the concrete coding-agent backend is
// external; this CLI only knows how to invoke one as a subprocess.
func buildBackend(paths *config.Paths) runner.BackendRunner {
	cmdline := backendCmd
	if cmdline == "" {
		cmdline = defaultBackendCommand()
	}
	return runner.NewExecBackend(strings.Fields(cmdline), paths.Root)
}

func defaultBackendCommand() string {
	if v := os.Getenv("AGENTCTL_BACKEND_CMD"); v != "" {
		return v
	}
	return "agentctl-backend"
}

// newController opens a Controller over s and paths using the configured
// backend.
func newController(s *store.Store, paths *config.Paths) (*scheduler.Controller, error) {
	return scheduler.New(s, buildBackend(paths), paths)
}

// withController wraps a cobra RunE body that only needs a live
// Controller: it opens the store and controller under the workspace
// writer lock, runs fn, and always tears both down afterward.
func withController(fn func(ctrl *scheduler.Controller, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
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

		return fn(ctrl, args)
	}
}
