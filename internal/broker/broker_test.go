package broker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/identity"
	"github.com/agentctl/agentctl/internal/store"
)

type fakeBackend struct {
	outcome TurnOutcome
	err     error
	calls   int
}

func (f *fakeBackend) RunTurn(ctx context.Context, session *Session, inbound InboundEnvelope) (TurnOutcome, error) {
	f.calls++
	return f.outcome, f.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	paths := config.NewPaths(t.TempDir())
	require.NoError(t, paths.EnsurePaths())
	s, err := store.Open(paths)
	require.NoError(t, err)
	return s
}

func testInbound(channel identity.Channel) InboundEnvelope {
	return InboundEnvelope{
		Channel:               channel,
		ChannelTenantID:       "tenant-1",
		ChannelConversationID: "conv-1",
		RequestID:             "req-1",
		RepoRoot:              "/repo",
		CommandText:           "what is the status?",
		Binding: &identity.Binding{
			BindingID: "bnd-1",
			Status:    identity.StatusActive,
			Scopes:    []identity.Scope{identity.ScopeRead, identity.ScopeWrite, identity.ScopeExecute, identity.ScopeAdmin},
		},
	}
}

func newTestBroker(t *testing.T, cfg Config, backend Backend) *Broker {
	t.Helper()
	s := newTestStore(t)
	resolver := NewResolver(s)
	auditPath := filepath.Join(t.TempDir(), "operator_turns.jsonl")
	b, err := New(cfg, backend, resolver, "/repo", auditPath)
	require.NoError(t, err)
	return b
}

func TestTurnRejectsWhenDisabled(t *testing.T) {
	backend := &fakeBackend{}
	b := newTestBroker(t, Config{Enabled: false}, backend)

	decision := b.Turn(context.Background(), testInbound(identity.ChannelChatA))
	require.NotNil(t, decision.Reject)
	require.Equal(t, "operator_disabled", decision.Reject.Reason)
	require.Equal(t, 0, backend.calls)
}

func TestTurnRejectsWhenChannelNotEnabled(t *testing.T) {
	backend := &fakeBackend{}
	cfg := Config{Enabled: true, EnabledChannels: map[string]bool{"email": true}}
	b := newTestBroker(t, cfg, backend)

	decision := b.Turn(context.Background(), testInbound(identity.ChannelChatA))
	require.NotNil(t, decision.Reject)
	require.Equal(t, "operator_disabled", decision.Reject.Reason)
}

func TestTurnRespondPassesThroughSafeMessage(t *testing.T) {
	backend := &fakeBackend{outcome: TurnOutcome{Respond: &RespondTurn{Message: "hello there"}}}
	cfg := Config{Enabled: true}
	b := newTestBroker(t, cfg, backend)

	decision := b.Turn(context.Background(), testInbound(identity.ChannelChatA))
	require.NotNil(t, decision.Response)
	require.Equal(t, "hello there", decision.Response.Message)
	require.NotEmpty(t, decision.OperatorSessionID)
	require.NotEmpty(t, decision.OperatorTurnID)
}

func TestTurnRespondFallsBackWhenMessageTooLong(t *testing.T) {
	long := make([]byte, 2001)
	for i := range long {
		long[i] = 'a'
	}
	backend := &fakeBackend{outcome: TurnOutcome{Respond: &RespondTurn{Message: string(long)}}}
	b := newTestBroker(t, Config{Enabled: true}, backend)

	decision := b.Turn(context.Background(), testInbound(identity.ChannelChatA))
	require.NotNil(t, decision.Response)
	require.LessOrEqual(t, len(decision.Response.Message), 2000)
	require.NotEqual(t, string(long), decision.Response.Message)
}

func TestTurnCommandRejectedWhenRunTriggersDisabled(t *testing.T) {
	backend := &fakeBackend{outcome: TurnOutcome{Command: &Proposal{Kind: CommandRunStart, Prompt: "Break down  this goal"}}}
	b := newTestBroker(t, Config{Enabled: true, RunTriggers: false}, backend)

	decision := b.Turn(context.Background(), testInbound(identity.ChannelChatA))
	require.NotNil(t, decision.Reject)
	require.Equal(t, "operator_action_disallowed", decision.Reject.Reason)
}

func TestTurnCommandApprovedNormalizesRunStart(t *testing.T) {
	backend := &fakeBackend{outcome: TurnOutcome{Command: &Proposal{Kind: CommandRunStart, Prompt: "Break down  this goal", MaxSteps: 10}}}
	b := newTestBroker(t, Config{Enabled: true, RunTriggers: true}, backend)

	decision := b.Turn(context.Background(), testInbound(identity.ChannelChatA))
	require.NotNil(t, decision.Command)
	require.Contains(t, decision.Command.CommandText, "/run start")
	require.Contains(t, decision.Command.CommandText, "Break down this goal")
}

func TestTurnBackendErrorYieldsResponseNeverThrows(t *testing.T) {
	backend := &fakeBackend{err: context.DeadlineExceeded}
	b := newTestBroker(t, Config{Enabled: true}, backend)

	decision := b.Turn(context.Background(), testInbound(identity.ChannelChatA))
	require.NotNil(t, decision.Response)
	require.Nil(t, decision.Command)
	require.Nil(t, decision.Reject)
}

func TestTurnIllFormedOutcomeYieldsResponse(t *testing.T) {
	backend := &fakeBackend{outcome: TurnOutcome{}}
	b := newTestBroker(t, Config{Enabled: true}, backend)

	decision := b.Turn(context.Background(), testInbound(identity.ChannelChatA))
	require.NotNil(t, decision.Response)
}

func TestConversationStickinessSameKeySameSession(t *testing.T) {
	backend := &fakeBackend{outcome: TurnOutcome{Respond: &RespondTurn{Message: "ok"}}}
	b := newTestBroker(t, Config{Enabled: true, MaxSessions: 10, SessionIdleTTL: time.Hour}, backend)

	inbound := testInbound(identity.ChannelChatA)
	d1 := b.Turn(context.Background(), inbound)
	d2 := b.Turn(context.Background(), inbound)

	require.Equal(t, d1.OperatorSessionID, d2.OperatorSessionID)
	require.Equal(t, 1, b.SessionCount())
}

func TestConversationStickinessDifferentKeyDifferentSession(t *testing.T) {
	backend := &fakeBackend{outcome: TurnOutcome{Respond: &RespondTurn{Message: "ok"}}}
	b := newTestBroker(t, Config{Enabled: true, MaxSessions: 10, SessionIdleTTL: time.Hour}, backend)

	d1 := b.Turn(context.Background(), testInbound(identity.ChannelChatA))

	other := testInbound(identity.ChannelChatA)
	other.ChannelConversationID = "conv-2"
	d2 := b.Turn(context.Background(), other)

	require.NotEqual(t, d1.OperatorSessionID, d2.OperatorSessionID)
	require.Equal(t, 2, b.SessionCount())
}

func TestResolverRejectsUnauthorizedScope(t *testing.T) {
	backend := &fakeBackend{outcome: TurnOutcome{Command: &Proposal{Kind: CommandRunStart, Prompt: "go"}}}
	b := newTestBroker(t, Config{Enabled: true, RunTriggers: true}, backend)

	inbound := testInbound(identity.ChannelChatA)
	inbound.Binding = &identity.Binding{BindingID: "bnd-2", Status: identity.StatusActive, Scopes: []identity.Scope{identity.ScopeRead}}

	decision := b.Turn(context.Background(), inbound)
	require.NotNil(t, decision.Reject)
	require.Equal(t, "context_unauthorized", decision.Reject.Reason)
}
