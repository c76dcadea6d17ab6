// Package runner is the DAG runner: a bounded step-scheduler that picks a
// ready issue, invokes the coding-agent backend, interprets the outcome,
// and mutates the graph accordingly (spec §4.2).
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/logging"
	"github.com/agentctl/agentctl/internal/store"
)

// ExitStatus is how a Run call concluded.
type ExitStatus string

const (
	ExitRootFinal ExitStatus = "root_final"
	ExitDeadlock  ExitStatus = "deadlock"
	ExitMaxSteps  ExitStatus = "max_steps"
)

// Result summarizes one Run call.
type Result struct {
	Status ExitStatus
	Steps  int
	Reason string
}

// Runner drives one root issue to completion (or to its step budget) over
// the store and a BackendRunner.
type Runner struct {
	store   *store.Store
	backend BackendRunner
	hooks   Hooks
}

// New builds a Runner over store bound to backend, with the given
// observation hooks.
func New(s *store.Store, backend BackendRunner, hooks Hooks) *Runner {
	return &Runner{store: s, backend: backend, hooks: hooks}
}

// Run executes rootID for at most maxSteps steps (spec §4.2 "Step loop").
// On entry it resets any issue left in_progress by a prior crash back to
// open (spec §4.2 "Resume").
func (r *Runner) Run(ctx context.Context, rootID string, maxSteps int) (Result, error) {
	reopened, err := r.store.ResetInProgress(rootID)
	if err != nil {
		return Result{}, err
	}
	if len(reopened) > 0 {
		logging.Info().Str("root_id", rootID).Strs("reopened", reopened).Msg("runner resumed: reopened in-flight issues")
	}

	for step := 1; step <= maxSteps; step++ {
		done, result, err := r.step(ctx, rootID, step)
		if err != nil {
			return Result{}, err
		}
		if done {
			return result, nil
		}
	}

	v, err := r.store.Validate(rootID)
	if err != nil {
		return Result{}, err
	}
	if v.IsFinal {
		return Result{Status: ExitRootFinal, Steps: maxSteps, Reason: v.Reason}, nil
	}
	return Result{Status: ExitMaxSteps, Steps: maxSteps, Reason: "max_steps reached"}, nil
}

// step runs one iteration of the loop and reports whether Run should stop.
func (r *Runner) step(ctx context.Context, rootID string, stepNo int) (bool, Result, error) {
	ready, err := r.store.Ready(rootID, store.ReadyFilter{Tags: []string{store.TagAgent}, Limit: 1})
	if err != nil {
		return true, Result{}, err
	}

	if len(ready) == 0 {
		v, err := r.store.Validate(rootID)
		if err != nil {
			return true, Result{}, err
		}
		if v.IsFinal {
			return true, Result{Status: ExitRootFinal, Steps: stepNo - 1, Reason: v.Reason}, nil
		}
		return true, Result{Status: ExitDeadlock, Steps: stepNo - 1, Reason: v.Reason}, nil
	}

	issue := ready[0]
	if err := r.store.Claim(issue.ID); err != nil {
		return true, Result{}, err
	}

	issueRole := role(issue)
	r.hooks.stepStart(StepStartEvent{Step: stepNo, RootID: rootID, IssueID: issue.ID, Role: issueRole, Title: issue.Title})

	thread := r.store.Read("issue:"+issue.ID, 0)
	prompt := compose(issue, thread, issueRole)

	start := time.Now()
	result, err := r.backend.RunStep(ctx, StepRequest{IssueID: issue.ID, Role: issueRole, Prompt: prompt}, func(line string) {
		r.hooks.backendLine(BackendLineEvent{IssueID: issue.ID, Line: line})
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		// The runner never leaves an issue in_progress on exit (spec §4.2
		// "Failure semantics").
		if closeErr := r.store.Close(issue.ID, store.OutcomeFailure); closeErr != nil {
			return true, Result{}, closeErr
		}
		r.hooks.stepEnd(StepEndEvent{Step: stepNo, IssueID: issue.ID, Outcome: OutcomeFailure, ElapsedS: elapsed, ExitCode: -1})
		return true, Result{}, errkind.Wrap(errkind.BackendError, fmt.Sprintf("backend crashed on issue %s", issue.ID), err)
	}

	outcome := store.Outcome(result.Outcome)
	if err := r.store.Close(issue.ID, outcome); err != nil {
		return true, Result{}, err
	}

	r.hooks.stepEnd(StepEndEvent{
		Step:     stepNo,
		IssueID:  issue.ID,
		Outcome:  result.Outcome,
		ElapsedS: elapsed,
		ExitCode: result.ExitCode,
	})

	return false, Result{}, nil
}
