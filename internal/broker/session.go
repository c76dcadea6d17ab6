package broker

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentctl/agentctl/internal/identity"
)

// ConversationKey identifies one sticky operator conversation (spec §4.4
// step 1, §8 property 6).
type ConversationKey struct {
	Channel        identity.Channel
	TenantID       string
	ConversationID string
	BindingID      string
}

// Session is a live operator conversation (spec §3 "Operator session").
// It wraps a subprocess-style backend handle that must be disposed on
// every exit path (spec §9 "Ownership of sessions").
type Session struct {
	OperatorSessionID string
	RepoRoot          string
	CreatedAt         time.Time
	LastUsedAt        time.Time
	TranscriptFile    string
	MessageCount      int

	handle Disposable
}

// Disposable is the subprocess-style resource an operator session owns.
// Dispose is always infallible (spec §9): implementations must not panic
// or block indefinitely.
type Disposable interface {
	Dispose()
}

type noopDisposable struct{}

func (noopDisposable) Dispose() {}

func newSessionID() string {
	return "osess_" + ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// sessionManager owns the broker's live sessions, evicting idle sessions
// past their TTL and least-recently-used sessions past maxSessions (spec
// §3 "Ownership", §9 "Open questions" (a)).
type sessionManager struct {
	mu          sync.Mutex
	byKey       map[ConversationKey]*Session
	order       []ConversationKey // least-recently-used first
	idleTTL     time.Duration
	maxSessions int
	repoRoot    string
}

func newSessionManager(repoRoot string, idleTTL time.Duration, maxSessions int) *sessionManager {
	return &sessionManager{
		byKey:       make(map[ConversationKey]*Session),
		idleTTL:     idleTTL,
		maxSessions: maxSessions,
		repoRoot:    repoRoot,
	}
}

// resolve returns the session mapped to key, creating one if absent or if
// the existing one has idle-expired. Conversation stickiness (spec §8
// property 6) holds for as long as the returned session is not evicted.
func (m *sessionManager) resolve(key ConversationKey, now time.Time) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictIdleLocked(now)

	if s, ok := m.byKey[key]; ok {
		s.LastUsedAt = now
		m.touchLocked(key)
		return s
	}

	s := &Session{
		OperatorSessionID: newSessionID(),
		RepoRoot:          m.repoRoot,
		CreatedAt:         now,
		LastUsedAt:        now,
		handle:            noopDisposable{},
	}
	m.byKey[key] = s
	m.order = append(m.order, key)

	m.evictOverflowLocked()
	return s
}

func (m *sessionManager) touchLocked(key ConversationKey) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.order = append(m.order, key)
}

func (m *sessionManager) evictIdleLocked(now time.Time) {
	if m.idleTTL <= 0 {
		return
	}
	var kept []ConversationKey
	for _, key := range m.order {
		s := m.byKey[key]
		if now.Sub(s.LastUsedAt) > m.idleTTL {
			s.handle.Dispose()
			delete(m.byKey, key)
			continue
		}
		kept = append(kept, key)
	}
	m.order = kept
}

// evictOverflowLocked evicts the least-recently-used session when the
// manager holds more than maxSessions, even if that breaks stickiness for
// the evicted conversation (spec §9 "Open questions" (a)).
func (m *sessionManager) evictOverflowLocked() {
	if m.maxSessions <= 0 {
		return
	}
	for len(m.order) > m.maxSessions {
		oldest := m.order[0]
		m.order = m.order[1:]
		if s, ok := m.byKey[oldest]; ok {
			s.handle.Dispose()
			delete(m.byKey, oldest)
		}
	}
}

// disposeAll disposes every live session — used on broker stop.
func (m *sessionManager) disposeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byKey {
		s.handle.Dispose()
	}
	m.byKey = make(map[ConversationKey]*Session)
	m.order = nil
}

func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}
