package store

import (
	"strings"

	"github.com/agentctl/agentctl/internal/journal"
)

// Event is a record in the cross-cutting event log (spec §3 "Event") — the
// canonical history the issue and forum projections can be rebuilt from.
type Event struct {
	TsMs    int64  `json:"ts_ms"`
	Type    string `json:"type"`
	Source  string `json:"source"`
	IssueID string `json:"issue_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

func (s *Store) applyEventRecord(line []byte) error {
	ev, err := journal.DecodeJSON[Event](line)
	if err != nil {
		return err
	}
	s.events = append(s.events, &ev)
	return nil
}

// Append writes one event to the journal, stamping TsMs if unset.
func (s *Store) Append(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.TsMs == 0 {
		ev.TsMs = nowMs()
	}
	if err := s.eventsLog.Append(ev); err != nil {
		return err
	}
	s.events = append(s.events, &ev)
	return nil
}

// EventQuery narrows Query.
type EventQuery struct {
	Type     string
	Source   string
	IssueID  string
	RunID    string
	Contains string
	SinceMs  int64
	Limit    int
}

// Query returns events matching q in insertion order; Limit keeps the last
// N matches.
func (s *Store) Query(q EventQuery) []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Event
	for _, ev := range s.events {
		if q.Type != "" && ev.Type != q.Type {
			continue
		}
		if q.Source != "" && ev.Source != q.Source {
			continue
		}
		if q.IssueID != "" && ev.IssueID != q.IssueID {
			continue
		}
		if q.RunID != "" && ev.RunID != q.RunID {
			continue
		}
		if q.SinceMs > 0 && ev.TsMs < q.SinceMs {
			continue
		}
		if q.Contains != "" && !containsField(ev, q.Contains) {
			continue
		}
		copy := *ev
		out = append(out, &copy)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

func containsField(ev *Event, needle string) bool {
	return strings.Contains(ev.Type, needle) || strings.Contains(ev.Source, needle) || strings.Contains(ev.IssueID, needle)
}
