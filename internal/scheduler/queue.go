package scheduler

import (
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/journal"
)

// runLogRecord is one line of runs.jsonl, discriminated by Op.
type runLogRecord struct {
	Op           string    `json:"op"`
	TsMs         int64     `json:"ts_ms"`
	JobID        string    `json:"job_id"`
	RootIssueID  string    `json:"root_issue_id,omitempty"`
	Prompt       string    `json:"prompt,omitempty"`
	MaxSteps     int       `json:"max_steps,omitempty"`
	Status       RunStatus `json:"status,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	StdoutTail   []string  `json:"stdout_tail,omitempty"`
	StderrTail   []string  `json:"stderr_tail,omitempty"`
	LogHintPaths []string  `json:"log_hint_paths,omitempty"`
}

// runQueue owns runs.jsonl and the in-memory current-record-per-job_id
// projection (spec §4.3 "Queue").
type runQueue struct {
	mu      sync.Mutex
	log     *journal.Log
	records map[string]*RunRecord
	order   []string
}

func newRunQueue(path string) (*runQueue, error) {
	q := &runQueue{records: make(map[string]*RunRecord)}
	log, err := journal.Open(path, q.apply)
	if err != nil {
		return nil, err
	}
	q.log = log
	return q, nil
}

func (q *runQueue) apply(line []byte) error {
	rec, err := journal.DecodeJSON[runLogRecord](line)
	if err != nil {
		return err
	}
	switch rec.Op {
	case "create":
		run := &RunRecord{
			JobID:       rec.JobID,
			RootIssueID: rec.RootIssueID,
			Prompt:      rec.Prompt,
			MaxSteps:    rec.MaxSteps,
			Status:      RunQueued,
			CreatedAtMs: rec.TsMs,
			UpdatedAtMs: rec.TsMs,
		}
		q.records[run.JobID] = run
		q.order = append(q.order, run.JobID)
	case "update":
		run, ok := q.records[rec.JobID]
		if !ok {
			return errkind.Newf(errkind.InvalidInput, "update of unknown run %s", rec.JobID)
		}
		if rec.Status != "" {
			run.Status = rec.Status
		}
		run.Reason = rec.Reason
		if rec.StdoutTail != nil {
			run.StdoutTail = rec.StdoutTail
		}
		if rec.StderrTail != nil {
			run.StderrTail = rec.StderrTail
		}
		if rec.LogHintPaths != nil {
			run.LogHintPaths = rec.LogHintPaths
		}
		run.UpdatedAtMs = rec.TsMs
	default:
		return errkind.Newf(errkind.InvalidInput, "unknown run op %q", rec.Op)
	}
	return nil
}

func newJobID() string {
	return "run_" + ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// enqueue appends a create record for a new queued run.
func (q *runQueue) enqueue(rootIssueID, prompt string, maxSteps int) (*RunRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec := runLogRecord{
		Op:          "create",
		TsMs:        nowMs(),
		JobID:       newJobID(),
		RootIssueID: rootIssueID,
		Prompt:      prompt,
		MaxSteps:    maxSteps,
	}
	if err := q.log.Append(rec); err != nil {
		return nil, err
	}
	if err := q.apply(journal.MustJSON(rec)); err != nil {
		return nil, err
	}
	return q.records[rec.JobID].clone(), nil
}

func (q *runQueue) transitionRunning(jobID string) error {
	return q.update(jobID, RunRunning, "", nil, nil, nil)
}

func (q *runQueue) complete(jobID string, status RunStatus, reason string, stdout, stderr, logHints []string) error {
	return q.update(jobID, status, reason, stdout, stderr, logHints)
}

func (q *runQueue) update(jobID string, status RunStatus, reason string, stdout, stderr, logHints []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.records[jobID]; !ok {
		return errkind.Newf(errkind.NotFound, "no run %s", jobID)
	}
	rec := runLogRecord{
		Op:           "update",
		TsMs:         nowMs(),
		JobID:        jobID,
		Status:       status,
		Reason:       reason,
		StdoutTail:   stdout,
		StderrTail:   stderr,
		LogHintPaths: logHints,
	}
	if err := q.log.Append(rec); err != nil {
		return err
	}
	return q.apply(journal.MustJSON(rec))
}

// nextQueued returns the oldest (by created_at_ms) record with
// status=queued, or nil if none is waiting.
func (q *runQueue) nextQueued() *RunRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best *RunRecord
	for _, id := range q.order {
		run := q.records[id]
		if run.Status != RunQueued {
			continue
		}
		if best == nil || run.CreatedAtMs < best.CreatedAtMs {
			best = run
		}
	}
	if best == nil {
		return nil
	}
	return best.clone()
}

// RunFilter narrows list results.
type RunFilter struct {
	TargetKind TargetKind
	Status     RunStatus
	Limit      int
}

func (q *runQueue) list(filter RunFilter) []*RunRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*RunRecord
	for _, id := range q.order {
		run := q.records[id]
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, run.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAtMs > out[j].UpdatedAtMs })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (q *runQueue) snapshot(jobID string) (*RunRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	run, ok := q.records[jobID]
	if !ok {
		return nil, errkind.Newf(errkind.NotFound, "no run %s", jobID)
	}
	return run.clone(), nil
}

// latestForRoot returns the most recently updated run targeting rootID, if
// any (used to decide whether a heartbeat's target has reached a terminal
// state).
func (q *runQueue) latestForRoot(rootID string) *RunRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best *RunRecord
	for _, id := range q.order {
		run := q.records[id]
		if run.RootIssueID != rootID {
			continue
		}
		if best == nil || run.UpdatedAtMs > best.UpdatedAtMs {
			best = run
		}
	}
	if best == nil {
		return nil
	}
	return best.clone()
}

func (q *runQueue) close() error {
	return q.log.Close()
}
