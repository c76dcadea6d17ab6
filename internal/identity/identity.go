// Package identity owns linked external principals — identity bindings
// between an operator and a channel account (spec §3 "Identity binding",
// §4.4) — persisted on the same append-only journal shape the rest of the
// control plane uses (internal/journal).
package identity

import (
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/journal"
)

// Channel is one of the fixed messaging channels the runtime accepts
// inbounds from (spec §3, §4.4).
type Channel string

const (
	ChannelChatA Channel = "chat_a"
	ChannelChatB Channel = "chat_b"
	ChannelChatC Channel = "chat_c"
	ChannelEmail Channel = "email"
)

// ValidChannels lists every Channel the config's enabled-channel set may
// name.
var ValidChannels = []Channel{ChannelChatA, ChannelChatB, ChannelChatC, ChannelEmail}

func IsValidChannel(c string) bool {
	for _, v := range ValidChannels {
		if string(v) == c {
			return true
		}
	}
	return false
}

// Status is a binding's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Role is the declarative role a binding is linked with; it expands to a
// fixed scope set (spec §3 "Role→scope expansion").
type Role string

const (
	RoleOperator    Role = "operator"
	RoleContributor Role = "contributor"
	RoleViewer      Role = "viewer"
)

// Scope is a capability label gating an action (spec §3, GLOSSARY).
type Scope string

const (
	ScopeRead    Scope = "read"
	ScopeWrite   Scope = "write"
	ScopeExecute Scope = "execute"
	ScopeAdmin   Scope = "admin"
)

// ScopesForRole expands a role into its fixed capability set.
func ScopesForRole(r Role) []Scope {
	switch r {
	case RoleOperator:
		return []Scope{ScopeRead, ScopeWrite, ScopeExecute, ScopeAdmin}
	case RoleContributor:
		return []Scope{ScopeRead, ScopeWrite, ScopeExecute}
	case RoleViewer:
		return []Scope{ScopeRead}
	default:
		return nil
	}
}

// Binding is a linked external principal (spec §3 "Identity binding").
type Binding struct {
	BindingID       string   `json:"binding_id"`
	OperatorID      string   `json:"operator_id"`
	Channel         Channel  `json:"channel"`
	ChannelTenantID string   `json:"channel_tenant_id"`
	ChannelActorID  string   `json:"channel_actor_id"`
	Scopes          []Scope  `json:"scopes"`
	Status          Status   `json:"status"`
	CreatedAt       int64    `json:"created_at"`
	RevokedAt       int64    `json:"revoked_at,omitempty"`
	RevokeReason    string   `json:"revoke_reason,omitempty"`
}

func (b *Binding) clone() *Binding {
	c := *b
	c.Scopes = append([]Scope(nil), b.Scopes...)
	return &c
}

// HasScope reports whether the binding carries scope and is active.
func (b *Binding) HasScope(scope Scope) bool {
	if b.Status != StatusActive {
		return false
	}
	for _, s := range b.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type logRecord struct {
	Op              string  `json:"op"`
	TsMs            int64   `json:"ts_ms"`
	BindingID       string  `json:"binding_id"`
	OperatorID      string  `json:"operator_id,omitempty"`
	Channel         Channel `json:"channel,omitempty"`
	ChannelTenantID string  `json:"channel_tenant_id,omitempty"`
	ChannelActorID  string  `json:"channel_actor_id,omitempty"`
	Role            Role    `json:"role,omitempty"`
	Status          Status  `json:"status,omitempty"`
	RevokeReason    string  `json:"revoke_reason,omitempty"`
}

// Table owns identities.jsonl and the in-memory binding projection (spec
// §6 "control-plane/identities.jsonl").
type Table struct {
	mu       sync.Mutex
	log      *journal.Log
	bindings map[string]*Binding
	order    []string
}

// Open replays path to rebuild the binding projection.
func Open(path string) (*Table, error) {
	t := &Table{bindings: make(map[string]*Binding)}
	log, err := journal.Open(path, t.apply)
	if err != nil {
		return nil, err
	}
	t.log = log
	return t, nil
}

func (t *Table) apply(line []byte) error {
	rec, err := journal.DecodeJSON[logRecord](line)
	if err != nil {
		return err
	}
	switch rec.Op {
	case "link":
		b := &Binding{
			BindingID:       rec.BindingID,
			OperatorID:      rec.OperatorID,
			Channel:         rec.Channel,
			ChannelTenantID: rec.ChannelTenantID,
			ChannelActorID:  rec.ChannelActorID,
			Status:          StatusActive,
			CreatedAt:       rec.TsMs,
		}
		for _, s := range ScopesForRole(rec.Role) {
			b.Scopes = append(b.Scopes, s)
		}
		t.bindings[b.BindingID] = b
		t.order = append(t.order, b.BindingID)
	case "unlink":
		b, ok := t.bindings[rec.BindingID]
		if !ok {
			return errkind.Newf(errkind.InvalidInput, "unlink of unknown binding %s", rec.BindingID)
		}
		b.Status = StatusInactive
		b.RevokedAt = rec.TsMs
		b.RevokeReason = rec.RevokeReason
	default:
		return errkind.Newf(errkind.InvalidInput, "unknown identity op %q", rec.Op)
	}
	return nil
}

func newBindingID() string {
	return "bnd_" + uuid.Must(uuid.NewRandomFromReader(rand.Reader)).String()
}

func nowMs() int64 { return time.Now().UnixMilli() }

// Link creates a new active binding with the scopes derived from role.
func (t *Table) Link(operatorID string, channel Channel, tenantID, actorID string, role Role) (*Binding, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !IsValidChannel(string(channel)) {
		return nil, errkind.Newf(errkind.InvalidInput, "unknown channel %q", channel)
	}

	rec := logRecord{
		Op:              "link",
		TsMs:            nowMs(),
		BindingID:       newBindingID(),
		OperatorID:      operatorID,
		Channel:         channel,
		ChannelTenantID: tenantID,
		ChannelActorID:  actorID,
		Role:            role,
	}
	if err := t.log.Append(rec); err != nil {
		return nil, err
	}
	if err := t.apply(journal.MustJSON(rec)); err != nil {
		return nil, err
	}
	return t.bindings[rec.BindingID].clone(), nil
}

// Unlink revokes an active binding.
func (t *Table) Unlink(bindingID, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.bindings[bindingID]; !ok {
		return errkind.Newf(errkind.NotFound, "no binding %s", bindingID)
	}
	rec := logRecord{Op: "unlink", TsMs: nowMs(), BindingID: bindingID, RevokeReason: reason}
	if err := t.log.Append(rec); err != nil {
		return err
	}
	return t.apply(journal.MustJSON(rec))
}

// List returns every binding, oldest first.
func (t *Table) List() []*Binding {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Binding, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.bindings[id].clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// Resolve finds the active binding for (channel, tenantID, actorID), if
// any.
func (t *Table) Resolve(channel Channel, tenantID, actorID string) (*Binding, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range t.order {
		b := t.bindings[id]
		if b.Status == StatusActive && b.Channel == channel && b.ChannelTenantID == tenantID && b.ChannelActorID == actorID {
			return b.clone(), true
		}
	}
	return nil, false
}

// Close flushes and closes the identities log.
func (t *Table) Close() error { return t.log.Close() }
