package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/event"
	"github.com/agentctl/agentctl/internal/logging"
	"github.com/agentctl/agentctl/internal/runner"
	"github.com/agentctl/agentctl/internal/store"
)

// defaultMaxSteps bounds a resumed or heartbeat-nudged run when the caller
// does not name one explicitly.
const defaultMaxSteps = 50

// Controller drives the queue, heartbeat programs, and cron programs over
// one store and one DAG runner (spec §4.3).
type Controller struct {
	store      *store.Store
	runner     *runner.Runner
	queue      *runQueue
	heartbeats *heartbeatTable
	cron       *cronTable

	mu         sync.Mutex
	stdoutTail []string
	logHints   []string
	paths      *config.Paths
}

// New opens the three program logs and wires a Runner whose hooks feed the
// controller's per-job output tail.
func New(s *store.Store, backend runner.BackendRunner, paths *config.Paths) (*Controller, error) {
	c := &Controller{store: s, paths: paths}

	hooks := runner.Hooks{
		OnStepStart: func(ev runner.StepStartEvent) {
			c.mu.Lock()
			c.logHints = appendCapped(c.logHints, c.paths.LogsDir(ev.RootID)+"/"+ev.IssueID+".jsonl", 50)
			c.mu.Unlock()
		},
		OnBackendLine: func(ev runner.BackendLineEvent) {
			c.mu.Lock()
			c.stdoutTail = appendCapped(c.stdoutTail, ev.Line, 200)
			c.mu.Unlock()
		},
		OnStepEnd: func(ev runner.StepEndEvent) {
			event.Publish(event.Event{Type: event.RunStepDone, Data: event.RunStepDoneData{
				IssueID: ev.IssueID,
				Outcome: string(ev.Outcome),
			}})
		},
	}
	c.runner = runner.New(s, backend, hooks)

	queue, err := newRunQueue(paths.RunsLog())
	if err != nil {
		return nil, err
	}
	c.queue = queue

	heartbeats, err := newHeartbeatTable(paths.HeartbeatsLog())
	if err != nil {
		return nil, err
	}
	c.heartbeats = heartbeats

	cron, err := newCronTable(paths.CronLog())
	if err != nil {
		return nil, err
	}
	c.cron = cron

	return c, nil
}

// Close flushes and closes the controller's logs.
func (c *Controller) Close() error {
	if err := c.queue.close(); err != nil {
		return err
	}
	if err := c.heartbeats.close(); err != nil {
		return err
	}
	return c.cron.close()
}

// firstLine returns the first non-empty line of s, truncated to 120 runes,
// for use as an issue title derived from a free-form prompt.
func firstLine(s string) string {
	line := strings.SplitN(strings.TrimSpace(s), "\n", 2)[0]
	if r := []rune(line); len(r) > 120 {
		line = string(r[:120])
	}
	if line == "" {
		line = "untitled run"
	}
	return line
}

// EnqueueRun creates a fresh root issue from prompt and queues a run
// against it.
func (c *Controller) EnqueueRun(prompt string, maxSteps int) (*RunRecord, error) {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	root, err := c.store.Create(firstLine(prompt), store.CreateOpts{
		Body: prompt,
		Tags: []string{store.TagRoot, store.TagAgent},
	})
	if err != nil {
		return nil, err
	}
	event.Publish(event.Event{Type: event.IssueCreated, Data: event.IssueCreatedData{IssueID: root.ID, Title: root.Title}})

	rec, err := c.queue.enqueue(root.ID, prompt, maxSteps)
	if err != nil {
		return nil, err
	}
	event.Publish(event.Event{Type: event.RunQueued, Data: event.RunQueuedData{JobID: rec.JobID, Prompt: prompt}})
	return rec, nil
}

// EnqueueResume queues a run against an existing root issue, without
// creating a new one (spec §4.2 "Resume", §4.4 run_resume).
func (c *Controller) EnqueueResume(rootIssueID string, maxSteps int) (*RunRecord, error) {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	if _, err := c.store.Get(rootIssueID); err != nil {
		return nil, err
	}
	rec, err := c.queue.enqueue(rootIssueID, "", maxSteps)
	if err != nil {
		return nil, err
	}
	event.Publish(event.Event{Type: event.RunQueued, Data: event.RunQueuedData{JobID: rec.JobID}})
	return rec, nil
}

// RunOnce picks the oldest queued job (if any) and drives it to completion
// or to its step budget, recording terminal state atomically with the
// journal append that sets it (spec §4.3 "Failure semantics"). It reports
// whether a job was found to run.
func (c *Controller) RunOnce(ctx context.Context) (bool, error) {
	job := c.queue.nextQueued()
	if job == nil {
		return false, nil
	}

	c.mu.Lock()
	c.stdoutTail = nil
	c.logHints = nil
	c.mu.Unlock()

	if err := c.queue.transitionRunning(job.JobID); err != nil {
		return true, err
	}
	event.Publish(event.Event{Type: event.RunStarted, Data: event.RunStartedData{JobID: job.JobID, RootIssueID: job.RootIssueID}})

	result, runErr := c.runner.Run(ctx, job.RootIssueID, job.MaxSteps)

	c.mu.Lock()
	stdout := append([]string(nil), c.stdoutTail...)
	logHints := append([]string(nil), c.logHints...)
	c.mu.Unlock()

	var status RunStatus
	reason := ""
	if runErr != nil {
		status = RunFailed
		reason = runErr.Error()
	} else {
		switch result.Status {
		case runner.ExitRootFinal:
			status = RunSuccess
			reason = result.Reason
		case runner.ExitDeadlock:
			status = RunDeadlock
			reason = result.Reason
		case runner.ExitMaxSteps:
			status = RunPaused
			reason = result.Reason
		}
	}

	if err := c.queue.complete(job.JobID, status, reason, stdout, nil, logHints); err != nil {
		return true, err
	}
	event.Publish(event.Event{Type: event.RunFinished, Data: event.RunFinishedData{JobID: job.JobID, Status: string(status)}})
	return true, nil
}

// Tick scans heartbeat and cron programs for due firings (spec §4.3
// "Heartbeat programs", "Cron programs").
func (c *Controller) Tick() {
	now := nowMs()
	for _, hb := range c.heartbeats.due(now) {
		c.fireHeartbeat(hb, now)
	}
	for _, cp := range c.cron.due(now) {
		c.fireCron(cp, now)
	}
}

func (c *Controller) fireHeartbeat(hb *HeartbeatProgram, now int64) {
	if hb.AutoDisableOnTerminal {
		if latest := c.queue.latestForRoot(hb.TargetID); latest != nil && isTerminal(latest.Status) {
			reason := "target " + hb.TargetID + " reached terminal state " + string(latest.Status)
			if err := c.heartbeats.disable(hb.ProgramID, reason); err == nil {
				event.Publish(event.Event{Type: event.HeartbeatDisabled, Data: event.HeartbeatDisabledData{ProgramID: hb.ProgramID, Reason: reason}})
			}
			return
		}
	}

	result := "queued"
	if _, err := c.EnqueueResume(hb.TargetID, 0); err != nil {
		result = "error: " + err.Error()
	}
	if err := c.heartbeats.recordFire(hb.ProgramID, result, now); err != nil {
		logging.Error().Err(err).Str("program_id", hb.ProgramID).Msg("heartbeat record fire failed")
	}
	event.Publish(event.Event{Type: event.HeartbeatFired, Data: event.HeartbeatFiredData{ProgramID: hb.ProgramID, Result: result}})
}

func (c *Controller) fireCron(cp *CronProgram, now int64) {
	result := "queued"
	if _, err := c.EnqueueResume(cp.TargetID, 0); err != nil {
		result = "error: " + err.Error()
	}
	if err := c.cron.recordFire(cp.ProgramID, result, now); err != nil {
		logging.Error().Err(err).Str("program_id", cp.ProgramID).Msg("cron record fire failed")
	}
	event.Publish(event.Event{Type: event.CronFired, Data: event.CronFiredData{ProgramID: cp.ProgramID, Result: result}})

	if cp.Schedule.AtMs != nil {
		event.Publish(event.Event{Type: event.CronDisabled, Data: event.CronDisabledData{ProgramID: cp.ProgramID, Reason: "one-shot at_ms fired"}})
	}
}

// Start runs RunOnce and Tick on every tick of interval until ctx is
// cancelled (spec §5 "Scheduling model": at most one queued run at a time
// per workspace).
func (c *Controller) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.RunOnce(ctx); err != nil {
				logging.Error().Err(err).Msg("scheduler run failed")
			}
			c.Tick()
		}
	}
}

// ListRuns implements runs.list.
func (c *Controller) ListRuns(filter RunFilter) []*RunRecord { return c.queue.list(filter) }

// SnapshotRun implements runs.snapshot.
func (c *Controller) SnapshotRun(jobID string) (*RunRecord, error) { return c.queue.snapshot(jobID) }

// TraceRun implements runs.trace; the current record already carries the
// stdout/stderr tails and log-hint paths captured during its last run.
func (c *Controller) TraceRun(jobID string) (*RunRecord, error) { return c.queue.snapshot(jobID) }

// ListHeartbeats implements heartbeats.list.
func (c *Controller) ListHeartbeats() []*HeartbeatProgram { return c.heartbeats.list() }

// GetHeartbeat implements heartbeats.get.
func (c *Controller) GetHeartbeat(id string) (*HeartbeatProgram, error) { return c.heartbeats.get(id) }

// CreateHeartbeat implements heartbeats.create.
func (c *Controller) CreateHeartbeat(targetID string, everyMs int64, autoDisable bool) (*HeartbeatProgram, error) {
	return c.heartbeats.create(targetID, everyMs, autoDisable)
}

// UpdateHeartbeat implements heartbeats.update.
func (c *Controller) UpdateHeartbeat(id string, patch HeartbeatPatch) (*HeartbeatProgram, error) {
	return c.heartbeats.update(id, patch)
}

// DeleteHeartbeat implements heartbeats.delete.
func (c *Controller) DeleteHeartbeat(id string) error { return c.heartbeats.delete(id) }

// ListCron implements cron.list.
func (c *Controller) ListCron() []*CronProgram { return c.cron.list() }

// GetCron returns one cron program by id.
func (c *Controller) GetCron(id string) (*CronProgram, error) { return c.cron.get(id) }

// CreateCron implements cron.create.
func (c *Controller) CreateCron(targetID string, schedule CronSchedule) (*CronProgram, error) {
	return c.cron.create(targetID, schedule)
}

// UpdateCron implements cron.update.
func (c *Controller) UpdateCron(id string, patch CronPatch) (*CronProgram, error) {
	return c.cron.update(id, patch)
}

// DeleteCron implements cron.delete.
func (c *Controller) DeleteCron(id string) error { return c.cron.delete(id) }

// CronStatus implements cron.status.
func (c *Controller) CronStatus() CronStatus { return c.cron.status() }
