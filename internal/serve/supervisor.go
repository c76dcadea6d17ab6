package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentctl/agentctl/internal/logging"
)

// TUI is the external, interactive operator session attachment (spec §1
// "out of scope... the terminal operator TUI"). Implementations run until
// the interactive session ends or ctx is cancelled.
type TUI interface {
	Run(ctx context.Context) (exitCode int, err error)
}

// tuiCleanupGrace bounds how long the supervisor waits for the TUI to
// clean up after a signal wins the race (spec §4.5 "Signals").
const tuiCleanupGrace = 3 * time.Second

// Supervisor is the single-process supervisor that attaches the operator
// TUI to a healthy server and handles graceful shutdown on signals (spec
// §4.5).
type Supervisor struct{}

// NewSupervisor builds a Supervisor.
func NewSupervisor() *Supervisor { return &Supervisor{} }

// Attach runs beforeOperatorSession (e.g. to queue a run) then races tui
// against the first SIGINT/SIGTERM (spec §4.5 "Operator attachment",
// "Signals"). Handlers are always unregistered on exit.
func (s *Supervisor) Attach(ctx context.Context, beforeOperatorSession func() error, tui TUI) int {
	if beforeOperatorSession != nil {
		if err := beforeOperatorSession(); err != nil {
			logging.Error().Err(err).Msg("beforeOperatorSession hook failed")
			return 1
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	tuiCtx, cancelTUI := context.WithCancel(ctx)
	defer cancelTUI()

	type tuiResult struct {
		code int
		err  error
	}
	tuiDone := make(chan tuiResult, 1)
	go func() {
		code, err := tui.Run(tuiCtx)
		tuiDone <- tuiResult{code: code, err: err}
	}()

	select {
	case res := <-tuiDone:
		if res.err != nil {
			logging.Error().Err(res.err).Msg("operator TUI exited with error")
		}
		return res.code

	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("signal received, stopping operator TUI")
		cancelTUI()

		select {
		case <-tuiDone:
		case <-time.After(tuiCleanupGrace):
			logging.Warn().Msg("operator TUI did not clean up within grace period")
		}
		return exitCodeForSignal(sig)
	}
}

// exitCodeForSignal follows the 128+signo convention (spec §4.5
// "Signals").
func exitCodeForSignal(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 130
}
