package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentctl/agentctl/internal/serve"
)

var (
	sessionNew    bool
	sessionResume string
)

// externalTUI stands in for the out-of-scope interactive operator TUI
// (spec §1 "out of scope... the terminal operator TUI"): a real
// implementation would attach an interactive coding-agent SDK session
// here. This placeholder just waits for the attach context to end, so
// `session` still exercises the supervisor's discovery/attach/shutdown
// wiring end to end.
type externalTUI struct {
	directive string
}

func (t externalTUI) Run(ctx context.Context) (int, error) {
	fmt.Println("attached operator TUI:", t.directive, "(interactive session handling is external)")
	<-ctx.Done()
	return 0, nil
}

var sessionCmd = &cobra.Command{
	Use:   "session [id]",
	Short: "Attach or inspect the operator session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := openPaths()
		if err != nil {
			return err
		}

		directive := "continue-recent"
		switch {
		case sessionNew:
			directive = "new"
		case sessionResume != "":
			directive = "open " + filepath.Base(sessionResume)
		case len(args) == 1:
			directive = "open " + args[0]
		}

		disc := serve.NewDiscovery(paths, 0)
		selfExec, err := serve.SelfExec()
		if err != nil {
			return err
		}
		rec, err := disc.Discover(cmd.Context(), selfExec)
		if err != nil {
			return err
		}
		fmt.Println("attached to control plane at", rec.URL)

		sup := serve.NewSupervisor()
		code := sup.Attach(cmd.Context(), nil, externalTUI{directive: directive})
		if code != 0 {
			return fmt.Errorf("operator session exited with code %d", code)
		}
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted operator conversation transcripts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := openPaths()
		if err != nil {
			return err
		}
		matches, err := filepath.Glob(filepath.Join(paths.ControlPlaneDir(), "sessions", "*.json"))
		if err != nil {
			return err
		}
		return printJSON(matches)
	},
}

func init() {
	sessionCmd.Flags().BoolVar(&sessionNew, "new", false, "Start a fresh operator session")
	sessionCmd.Flags().StringVar(&sessionResume, "resume", "", "Resume a persisted session transcript file")
	sessionCmd.AddCommand(sessionListCmd)
}
