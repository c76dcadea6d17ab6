package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/store"
)

type scriptedBackend struct {
	outcomes map[string]StepOutcome
	calls    []string
}

func (b *scriptedBackend) RunStep(ctx context.Context, req StepRequest, onLine func(string)) (StepResult, error) {
	b.calls = append(b.calls, req.IssueID)
	onLine("working on " + req.IssueID)
	outcome, ok := b.outcomes[req.IssueID]
	if !ok {
		outcome = OutcomeSuccess
	}
	return StepResult{Outcome: outcome, ExitCode: 0}, nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(config.NewPaths(dir))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunRootFinalInOneStep(t *testing.T) {
	// S1: root to completion scenario from spec §8.
	s := openTestStore(t)
	root, err := s.Create("Write hello", store.CreateOpts{Tags: []string{store.TagAgent, store.TagRoot}})
	require.NoError(t, err)

	backend := &scriptedBackend{outcomes: map[string]StepOutcome{}}
	var ends []StepEndEvent
	r := New(s, backend, Hooks{OnStepEnd: func(ev StepEndEvent) { ends = append(ends, ev) }})

	result, err := r.Run(context.Background(), root.ID, 1)
	require.NoError(t, err)
	require.Equal(t, ExitRootFinal, result.Status)

	v, err := s.Validate(root.ID)
	require.NoError(t, err)
	require.True(t, v.IsFinal)
	require.Len(t, ends, 1)
	require.Equal(t, OutcomeSuccess, ends[0].Outcome)
}

func TestRunZeroStepsWhenAlreadyFinal(t *testing.T) {
	s := openTestStore(t)
	root, err := s.Create("already done", store.CreateOpts{Tags: []string{store.TagRoot}})
	require.NoError(t, err)
	require.NoError(t, s.Close(root.ID, store.OutcomeSuccess))

	backend := &scriptedBackend{}
	r := New(s, backend, Hooks{})

	result, err := r.Run(context.Background(), root.ID, 5)
	require.NoError(t, err)
	require.Equal(t, ExitRootFinal, result.Status)
	require.Equal(t, 0, result.Steps)
	require.Empty(t, backend.calls)
}

func TestRunDeadlockWhenBlockerNotAgentTagged(t *testing.T) {
	// root is blocked on a child issue that never carries the agent tag, so
	// the runner can never pick it up and the blocker never closes.
	s := openTestStore(t)
	root, err := s.Create("root", store.CreateOpts{Tags: []string{store.TagRoot, store.TagAgent}})
	require.NoError(t, err)
	blocker, err := s.Create("untagged blocker", store.CreateOpts{})
	require.NoError(t, err)
	require.NoError(t, s.AddDep(blocker.ID, store.DepParent, root.ID))
	require.NoError(t, s.AddDep(root.ID, store.DepBlocks, blocker.ID))

	backend := &scriptedBackend{}
	r := New(s, backend, Hooks{})

	result, err := r.Run(context.Background(), root.ID, 5)
	require.NoError(t, err)
	require.Equal(t, ExitDeadlock, result.Status)
	require.Empty(t, backend.calls)
}

func TestRunBackendFailureClosesIssueFailed(t *testing.T) {
	s := openTestStore(t)
	root, err := s.Create("will fail", store.CreateOpts{Tags: []string{store.TagAgent, store.TagRoot}})
	require.NoError(t, err)

	backend := &scriptedBackend{outcomes: map[string]StepOutcome{root.ID: OutcomeFailure}}
	r := New(s, backend, Hooks{})

	_, err = r.Run(context.Background(), root.ID, 1)
	require.NoError(t, err)

	got, err := s.Get(root.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusClosed, got.Status)
	require.Equal(t, store.OutcomeFailure, got.Outcome)
}

func TestRunResumeReopensInProgress(t *testing.T) {
	s := openTestStore(t)
	root, err := s.Create("root", store.CreateOpts{Tags: []string{store.TagRoot, store.TagAgent}})
	require.NoError(t, err)
	require.NoError(t, s.Claim(root.ID)) // simulate a crash mid-step

	backend := &scriptedBackend{}
	r := New(s, backend, Hooks{})

	result, err := r.Run(context.Background(), root.ID, 1)
	require.NoError(t, err)
	require.Equal(t, ExitRootFinal, result.Status)
	require.Equal(t, []string{root.ID}, backend.calls)
}
