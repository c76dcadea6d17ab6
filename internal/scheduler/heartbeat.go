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

type heartbeatLogRecord struct {
	Op                    string     `json:"op"`
	TsMs                  int64      `json:"ts_ms"`
	ProgramID             string     `json:"program_id"`
	TargetKind            TargetKind `json:"target_kind,omitempty"`
	TargetID              string     `json:"target_id,omitempty"`
	EveryMs               *int64     `json:"every_ms,omitempty"`
	Enabled               *bool      `json:"enabled,omitempty"`
	AutoDisableOnTerminal *bool      `json:"auto_disable_on_terminal,omitempty"`
	NextTriggerAtMs       *int64     `json:"next_trigger_at_ms,omitempty"`
	LastTriggeredAtMs     *int64     `json:"last_triggered_at_ms,omitempty"`
	LastResult            *string    `json:"last_result,omitempty"`
}

// heartbeatTable owns heartbeats.jsonl and the current-record-per-program
// projection (spec §4.3 "Heartbeat programs").
type heartbeatTable struct {
	mu       sync.Mutex
	log      *journal.Log
	programs map[string]*HeartbeatProgram
	order    []string
}

func newHeartbeatTable(path string) (*heartbeatTable, error) {
	t := &heartbeatTable{programs: make(map[string]*HeartbeatProgram)}
	log, err := journal.Open(path, t.apply)
	if err != nil {
		return nil, err
	}
	t.log = log
	return t, nil
}

func (t *heartbeatTable) apply(line []byte) error {
	rec, err := journal.DecodeJSON[heartbeatLogRecord](line)
	if err != nil {
		return err
	}
	switch rec.Op {
	case "create":
		p := &HeartbeatProgram{
			ProgramID:             rec.ProgramID,
			TargetKind:            rec.TargetKind,
			TargetID:              rec.TargetID,
			EveryMs:               *rec.EveryMs,
			Enabled:               true,
			AutoDisableOnTerminal: rec.AutoDisableOnTerminal != nil && *rec.AutoDisableOnTerminal,
			NextTriggerAtMs:       rec.TsMs,
			CreatedAtMs:           rec.TsMs,
			UpdatedAtMs:           rec.TsMs,
		}
		t.programs[p.ProgramID] = p
		t.order = append(t.order, p.ProgramID)
	case "update":
		p, ok := t.programs[rec.ProgramID]
		if !ok {
			return errkind.Newf(errkind.InvalidInput, "update of unknown heartbeat %s", rec.ProgramID)
		}
		if rec.EveryMs != nil {
			p.EveryMs = *rec.EveryMs
		}
		if rec.Enabled != nil {
			p.Enabled = *rec.Enabled
		}
		if rec.AutoDisableOnTerminal != nil {
			p.AutoDisableOnTerminal = *rec.AutoDisableOnTerminal
		}
		if rec.NextTriggerAtMs != nil {
			p.NextTriggerAtMs = *rec.NextTriggerAtMs
		}
		if rec.LastTriggeredAtMs != nil {
			p.LastTriggeredAtMs = *rec.LastTriggeredAtMs
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
		return errkind.Newf(errkind.InvalidInput, "unknown heartbeat op %q", rec.Op)
	}
	return nil
}

func newProgramID(prefix string) string {
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

func (t *heartbeatTable) create(targetID string, everyMs int64, autoDisable bool) (*HeartbeatProgram, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if everyMs <= 0 {
		return nil, errkind.New(errkind.InvalidInput, "every_ms must be positive")
	}
	rec := heartbeatLogRecord{
		Op:                    "create",
		TsMs:                  nowMs(),
		ProgramID:             newProgramID("hb"),
		TargetKind:            TargetRun,
		TargetID:              targetID,
		EveryMs:               &everyMs,
		AutoDisableOnTerminal: &autoDisable,
	}
	if err := t.log.Append(rec); err != nil {
		return nil, err
	}
	if err := t.apply(journal.MustJSON(rec)); err != nil {
		return nil, err
	}
	return t.programs[rec.ProgramID].clone(), nil
}

// HeartbeatPatch carries the optional fields update may change.
type HeartbeatPatch struct {
	EveryMs *int64
	Enabled *bool
}

func (t *heartbeatTable) update(id string, patch HeartbeatPatch) (*HeartbeatProgram, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.programs[id]; !ok {
		return nil, errkind.Newf(errkind.NotFound, "no heartbeat %s", id)
	}
	rec := heartbeatLogRecord{Op: "update", TsMs: nowMs(), ProgramID: id, EveryMs: patch.EveryMs, Enabled: patch.Enabled}
	if err := t.log.Append(rec); err != nil {
		return nil, err
	}
	if err := t.apply(journal.MustJSON(rec)); err != nil {
		return nil, err
	}
	return t.programs[id].clone(), nil
}

func (t *heartbeatTable) delete(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.programs[id]; !ok {
		return errkind.Newf(errkind.NotFound, "no heartbeat %s", id)
	}
	rec := heartbeatLogRecord{Op: "delete", TsMs: nowMs(), ProgramID: id}
	if err := t.log.Append(rec); err != nil {
		return err
	}
	return t.apply(journal.MustJSON(rec))
}

func (t *heartbeatTable) get(id string) (*HeartbeatProgram, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.programs[id]
	if !ok {
		return nil, errkind.Newf(errkind.NotFound, "no heartbeat %s", id)
	}
	return p.clone(), nil
}

func (t *heartbeatTable) list() []*HeartbeatProgram {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*HeartbeatProgram, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.programs[id].clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMs < out[j].CreatedAtMs })
	return out
}

// due returns enabled programs whose next_trigger_at_ms has arrived.
func (t *heartbeatTable) due(nowMs int64) []*HeartbeatProgram {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*HeartbeatProgram
	for _, id := range t.order {
		p := t.programs[id]
		if p.Enabled && p.NextTriggerAtMs <= nowMs {
			out = append(out, p.clone())
		}
	}
	return out
}

// recordFire updates last_triggered_at_ms/last_result and advances
// next_trigger_at_ms by every_ms.
func (t *heartbeatTable) recordFire(id, result string, firedAtMs int64) error {
	t.mu.Lock()
	p, ok := t.programs[id]
	t.mu.Unlock()
	if !ok {
		return errkind.Newf(errkind.NotFound, "no heartbeat %s", id)
	}

	next := firedAtMs + p.EveryMs
	rec := heartbeatLogRecord{
		Op:                "update",
		TsMs:              nowMs(),
		ProgramID:         id,
		LastTriggeredAtMs: &firedAtMs,
		LastResult:        &result,
		NextTriggerAtMs:   &next,
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.log.Append(rec); err != nil {
		return err
	}
	return t.apply(journal.MustJSON(rec))
}

func (t *heartbeatTable) disable(id, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.programs[id]; !ok {
		return errkind.Newf(errkind.NotFound, "no heartbeat %s", id)
	}
	disabled := false
	rec := heartbeatLogRecord{Op: "update", TsMs: nowMs(), ProgramID: id, Enabled: &disabled, LastResult: &reason}
	if err := t.log.Append(rec); err != nil {
		return err
	}
	return t.apply(journal.MustJSON(rec))
}

func (t *heartbeatTable) close() error {
	return t.log.Close()
}
