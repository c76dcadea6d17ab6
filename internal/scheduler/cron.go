package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/journal"
)

type cronLogRecord struct {
	Op          string        `json:"op"`
	TsMs        int64         `json:"ts_ms"`
	ProgramID   string        `json:"program_id"`
	TargetKind  TargetKind    `json:"target_kind,omitempty"`
	TargetID    string        `json:"target_id,omitempty"`
	Schedule    *CronSchedule `json:"schedule,omitempty"`
	Enabled     *bool         `json:"enabled,omitempty"`
	NextRunAtMs *int64        `json:"next_run_at_ms,omitempty"`
	LastRunAtMs *int64        `json:"last_run_at_ms,omitempty"`
	LastResult  *string       `json:"last_result,omitempty"`
}

// cronTable owns cron.jsonl and the current-record-per-program projection
// (spec §4.3 "Cron programs").
type cronTable struct {
	mu       sync.Mutex
	log      *journal.Log
	programs map[string]*CronProgram
	order    []string
}

func newCronTable(path string) (*cronTable, error) {
	t := &cronTable{programs: make(map[string]*CronProgram)}
	log, err := journal.Open(path, t.apply)
	if err != nil {
		return nil, err
	}
	t.log = log
	return t, nil
}

func (t *cronTable) apply(line []byte) error {
	rec, err := journal.DecodeJSON[cronLogRecord](line)
	if err != nil {
		return err
	}
	switch rec.Op {
	case "create":
		p := &CronProgram{
			ProgramID:   rec.ProgramID,
			TargetKind:  rec.TargetKind,
			TargetID:    rec.TargetID,
			Schedule:    *rec.Schedule,
			Enabled:     true,
			NextRunAtMs: *rec.NextRunAtMs,
			CreatedAtMs: rec.TsMs,
			UpdatedAtMs: rec.TsMs,
		}
		t.programs[p.ProgramID] = p
		t.order = append(t.order, p.ProgramID)
	case "update":
		p, ok := t.programs[rec.ProgramID]
		if !ok {
			return errkind.Newf(errkind.InvalidInput, "update of unknown cron program %s", rec.ProgramID)
		}
		if rec.Schedule != nil {
			p.Schedule = *rec.Schedule
		}
		if rec.Enabled != nil {
			p.Enabled = *rec.Enabled
		}
		if rec.NextRunAtMs != nil {
			p.NextRunAtMs = *rec.NextRunAtMs
		}
		if rec.LastRunAtMs != nil {
			p.LastRunAtMs = *rec.LastRunAtMs
		}
		if rec.LastResult != nil {
			p.LastResult = *rec.LastResult
		}
		p.UpdatedAtMs = rec.TsMs
	case "delete":
		delete(t.programs, rec.ProgramID)
		for i, id := range t.order {
			if id == rec.ProgramID {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	default:
		return errkind.Newf(errkind.InvalidInput, "unknown cron op %q", rec.Op)
	}
	return nil
}

// computeNext resolves the next_run_at_ms for schedule, given the previous
// fire time (0 if none) and now (spec §4.3 "Cron programs"). oneShot
// reports whether the program should be disabled once this fire completes.
func computeNext(schedule CronSchedule, prevMs, nowMs int64) (nextMs int64, oneShot bool, err error) {
	switch {
	case schedule.EveryMs != nil:
		if prevMs == 0 {
			return nowMs, false, nil
		}
		return prevMs + *schedule.EveryMs, false, nil
	case schedule.AtMs != nil:
		return *schedule.AtMs, true, nil
	case schedule.Cron != nil:
		loc := time.UTC
		if schedule.Cron.TZ != "" {
			l, err := time.LoadLocation(schedule.Cron.TZ)
			if err != nil {
				return 0, false, errkind.Wrap(errkind.InvalidInput, "bad cron tz "+schedule.Cron.TZ, err)
			}
			loc = l
		}
		ref := time.UnixMilli(nowMs).In(loc)
		next, err := gronx.NextTickAfter(schedule.Cron.Expr, ref, false)
		if err != nil {
			return 0, false, errkind.Wrap(errkind.InvalidInput, "bad cron expr "+schedule.Cron.Expr, err)
		}
		return next.UnixMilli(), false, nil
	default:
		return 0, false, errkind.New(errkind.InvalidInput, "schedule must set one of every_ms, at_ms, cron")
	}
}

func (t *cronTable) create(targetID string, schedule CronSchedule) (*CronProgram, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := nowMs()
	next, _, err := computeNext(schedule, 0, now)
	if err != nil {
		return nil, err
	}
	rec := cronLogRecord{
		Op:          "create",
		TsMs:        now,
		ProgramID:   newProgramID("cron"),
		TargetKind:  TargetRun,
		TargetID:    targetID,
		Schedule:    &schedule,
		NextRunAtMs: &next,
	}
	if err := t.log.Append(rec); err != nil {
		return nil, err
	}
	if err := t.apply(journal.MustJSON(rec)); err != nil {
		return nil, err
	}
	return t.programs[rec.ProgramID].clone(), nil
}

// CronPatch carries the optional fields update may change.
type CronPatch struct {
	Schedule *CronSchedule
	Enabled  *bool
}

func (t *cronTable) update(id string, patch CronPatch) (*CronProgram, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.programs[id]; !ok {
		return nil, errkind.Newf(errkind.NotFound, "no cron program %s", id)
	}
	rec := cronLogRecord{Op: "update", TsMs: nowMs(), ProgramID: id, Schedule: patch.Schedule, Enabled: patch.Enabled}
	if err := t.log.Append(rec); err != nil {
		return nil, err
	}
	if err := t.apply(journal.MustJSON(rec)); err != nil {
		return nil, err
	}
	return t.programs[id].clone(), nil
}

func (t *cronTable) delete(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.programs[id]; !ok {
		return errkind.Newf(errkind.NotFound, "no cron program %s", id)
	}
	rec := cronLogRecord{Op: "delete", TsMs: nowMs(), ProgramID: id}
	if err := t.log.Append(rec); err != nil {
		return err
	}
	return t.apply(journal.MustJSON(rec))
}

func (t *cronTable) get(id string) (*CronProgram, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.programs[id]
	if !ok {
		return nil, errkind.Newf(errkind.NotFound, "no cron program %s", id)
	}
	return p.clone(), nil
}

func (t *cronTable) list() []*CronProgram {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*CronProgram, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.programs[id].clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMs < out[j].CreatedAtMs })
	return out
}

func (t *cronTable) due(nowMs int64) []*CronProgram {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*CronProgram
	for _, id := range t.order {
		p := t.programs[id]
		if p.Enabled && p.NextRunAtMs <= nowMs {
			out = append(out, p.clone())
		}
	}
	return out
}

// recordFire advances next_run_at_ms (or disables a one-shot "at" program)
// and records last_run_at_ms/last_result.
func (t *cronTable) recordFire(id, result string, firedAtMs int64) error {
	t.mu.Lock()
	p, ok := t.programs[id]
	t.mu.Unlock()
	if !ok {
		return errkind.Newf(errkind.NotFound, "no cron program %s", id)
	}

	next, oneShot, err := computeNext(p.Schedule, p.NextRunAtMs, firedAtMs)
	if err != nil {
		next = firedAtMs
	}
	rec := cronLogRecord{
		Op:          "update",
		TsMs:        nowMs(),
		ProgramID:   id,
		LastRunAtMs: &firedAtMs,
		LastResult:  &result,
		NextRunAtMs: &next,
	}
	if oneShot {
		disabled := false
		rec.Enabled = &disabled
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.log.Append(rec); err != nil {
		return err
	}
	return t.apply(journal.MustJSON(rec))
}

func (t *cronTable) disable(id, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.programs[id]; !ok {
		return errkind.Newf(errkind.NotFound, "no cron program %s", id)
	}
	disabled := false
	rec := cronLogRecord{Op: "update", TsMs: nowMs(), ProgramID: id, Enabled: &disabled, LastResult: &reason}
	if err := t.log.Append(rec); err != nil {
		return err
	}
	return t.apply(journal.MustJSON(rec))
}

func (t *cronTable) status() CronStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := CronStatus{Count: len(t.order)}
	for _, id := range t.order {
		p := t.programs[id]
		if p.Enabled {
			st.EnabledCount++
			st.Armed = append(st.Armed, ArmedProgram{ProgramID: p.ProgramID, DueAtMs: p.NextRunAtMs})
		}
	}
	st.ArmedCount = len(st.Armed)
	sort.Slice(st.Armed, func(i, j int) bool { return st.Armed[i].DueAtMs < st.Armed[j].DueAtMs })
	return st
}

func (t *cronTable) close() error {
	return t.log.Close()
}
