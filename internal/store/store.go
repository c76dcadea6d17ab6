// Package store is the workspace state store: an append-only, event-sourced
// repository of issues (a DAG of work items), forum messages, and a
// cross-cutting event journal (spec §4.1). All reads are derived
// projections rebuilt from the append logs on open; all writes append one
// record and flush before returning.
package store

import (
	"sync"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/journal"
)

// Store owns the three append logs for one workspace repository root. One
// writer process owns a Store at a time; the serve lifecycle's discovery
// protocol enforces that via the control-plane writer lock (see
// internal/serve.AcquireWriterLock), acquired around Open/Close by the
// CLI rather than by Store itself, so tests and tools may freely replay a
// store's logs in-process without contending with themselves.
type Store struct {
	mu sync.RWMutex

	issuesLog *journal.Log
	issues    map[string]*Issue
	issueIdx  idIndex

	forumLog *journal.Log
	forum    []*Message

	eventsLog *journal.Log
	events    []*Event
}

// Open rebuilds the in-memory projections from the three append logs under
// the store directory, creating them if absent.
func Open(paths *config.Paths) (*Store, error) {
	s := &Store{
		issues: make(map[string]*Issue),
	}

	issuesLog, err := journal.Open(paths.IssuesLog(), s.applyIssueRecord)
	if err != nil {
		return nil, err
	}
	s.issuesLog = issuesLog

	forumLog, err := journal.Open(paths.ForumLog(), s.applyForumRecord)
	if err != nil {
		return nil, err
	}
	s.forumLog = forumLog

	eventsLog, err := journal.Open(paths.EventsLog(), s.applyEventRecord)
	if err != nil {
		return nil, err
	}
	s.eventsLog = eventsLog

	return s, nil
}

// Close flushes and closes all three append logs.
func (s *Store) Close() error {
	if err := s.issuesLog.Close(); err != nil {
		return err
	}
	if err := s.forumLog.Close(); err != nil {
		return err
	}
	return s.eventsLog.Close()
}
