package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/runner"
	"github.com/agentctl/agentctl/internal/store"
)

type fakeBackend struct{}

func (fakeBackend) RunStep(ctx context.Context, req runner.StepRequest, onLine func(string)) (runner.StepResult, error) {
	onLine("step for " + req.IssueID)
	return runner.StepResult{Outcome: runner.OutcomeSuccess, ExitCode: 0}, nil
}

func openTestController(t *testing.T) (*Controller, *store.Store) {
	t.Helper()
	paths := config.NewPaths(t.TempDir())
	s, err := store.Open(paths)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c, err := New(s, fakeBackend{}, paths)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, s
}

func TestEnqueueRunAndRunOnce(t *testing.T) {
	c, _ := openTestController(t)

	rec, err := c.EnqueueRun("do the thing", 5)
	require.NoError(t, err)
	require.Equal(t, RunQueued, rec.Status)

	ran, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	snap, err := c.SnapshotRun(rec.JobID)
	require.NoError(t, err)
	require.Equal(t, RunSuccess, snap.Status)
	require.NotEmpty(t, snap.StdoutTail)
}

func TestRunOnceNoopWhenQueueEmpty(t *testing.T) {
	c, _ := openTestController(t)
	ran, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
}

func TestRunsListOrderedByUpdatedDescending(t *testing.T) {
	c, _ := openTestController(t)

	a, err := c.EnqueueRun("first", 1)
	require.NoError(t, err)
	_, err = c.RunOnce(context.Background())
	require.NoError(t, err)

	b, err := c.EnqueueRun("second", 1)
	require.NoError(t, err)
	_, err = c.RunOnce(context.Background())
	require.NoError(t, err)

	list := c.ListRuns(RunFilter{})
	require.Len(t, list, 2)
	require.Equal(t, b.JobID, list[0].JobID)
	require.Equal(t, a.JobID, list[1].JobID)
}

func TestHeartbeatFiresAndRequeuesTarget(t *testing.T) {
	c, s := openTestController(t)

	root, err := s.Create("root", store.CreateOpts{Tags: []string{store.TagRoot}})
	require.NoError(t, err)

	hb, err := c.CreateHeartbeat(root.ID, 1, false)
	require.NoError(t, err)
	require.True(t, hb.Enabled)

	// next_trigger_at_ms is stamped at creation time, which already
	// satisfies due() against any later "now".
	c.Tick()

	list := c.ListRuns(RunFilter{})
	require.Len(t, list, 1)
	require.Equal(t, root.ID, list[0].RootIssueID)

	got, err := c.GetHeartbeat(hb.ProgramID)
	require.NoError(t, err)
	require.Equal(t, "queued", got.LastResult)
	require.Greater(t, got.NextTriggerAtMs, hb.NextTriggerAtMs)
}

func TestHeartbeatAutoDisablesOnTerminalTarget(t *testing.T) {
	c, s := openTestController(t)

	root, err := s.Create("root", store.CreateOpts{Tags: []string{store.TagRoot, store.TagAgent}})
	require.NoError(t, err)

	hb, err := c.CreateHeartbeat(root.ID, 1, true)
	require.NoError(t, err)

	c.Tick()
	_, err = c.RunOnce(context.Background())
	require.NoError(t, err)

	c.Tick()

	got, err := c.GetHeartbeat(hb.ProgramID)
	require.NoError(t, err)
	require.False(t, got.Enabled)
}

func TestCronEveryScheduleAdvances(t *testing.T) {
	c, s := openTestController(t)
	root, err := s.Create("root", store.CreateOpts{Tags: []string{store.TagRoot}})
	require.NoError(t, err)

	everyMs := int64(1)
	cp, err := c.CreateCron(root.ID, CronSchedule{EveryMs: &everyMs})
	require.NoError(t, err)

	c.Tick()

	got, err := c.GetCron(cp.ProgramID)
	require.NoError(t, err)
	require.Equal(t, "queued", got.LastResult)
	require.Greater(t, got.NextRunAtMs, cp.NextRunAtMs)
}

func TestCronAtScheduleIsOneShot(t *testing.T) {
	c, s := openTestController(t)
	root, err := s.Create("root", store.CreateOpts{Tags: []string{store.TagRoot}})
	require.NoError(t, err)

	atMs := time.Now().Add(-time.Hour).UnixMilli()
	cp, err := c.CreateCron(root.ID, CronSchedule{AtMs: &atMs})
	require.NoError(t, err)

	c.Tick()

	got, err := c.GetCron(cp.ProgramID)
	require.NoError(t, err)
	require.False(t, got.Enabled)
}

func TestCronStatusReportsArmedPrograms(t *testing.T) {
	c, s := openTestController(t)
	root, err := s.Create("root", store.CreateOpts{Tags: []string{store.TagRoot}})
	require.NoError(t, err)

	everyMs := int64(60_000)
	_, err = c.CreateCron(root.ID, CronSchedule{EveryMs: &everyMs})
	require.NoError(t, err)

	st := c.CronStatus()
	require.Equal(t, 1, st.Count)
	require.Equal(t, 1, st.EnabledCount)
	require.Equal(t, 1, st.ArmedCount)
}

func TestHeartbeatDeleteRemovesProgram(t *testing.T) {
	c, s := openTestController(t)
	root, err := s.Create("root", store.CreateOpts{Tags: []string{store.TagRoot}})
	require.NoError(t, err)

	hb, err := c.CreateHeartbeat(root.ID, 1000, false)
	require.NoError(t, err)

	require.NoError(t, c.DeleteHeartbeat(hb.ProgramID))
	_, err = c.GetHeartbeat(hb.ProgramID)
	require.Error(t, err)
}
