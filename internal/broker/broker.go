package broker

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/journal"
	"github.com/agentctl/agentctl/internal/logging"
)

const (
	// defaultTurnTimeout and minTurnTimeout bound the operator backend's
	// turn (spec §5 "Cancellation and timeouts").
	defaultTurnTimeout = 90 * time.Second
	minTurnTimeout      = 1 * time.Second

	minResponseLen = 1
	maxResponseLen = 2000
)

// Backend runs one operator turn. Concrete LLM-backed implementations are
// external per spec §1; this package only validates and routes what they
// return.
type Backend interface {
	RunTurn(ctx context.Context, session *Session, inbound InboundEnvelope) (TurnOutcome, error)
}

// Config carries the broker's runtime-wide knobs (spec §4.4 step 2, 5a).
type Config struct {
	Enabled         bool
	EnabledChannels map[string]bool
	RunTriggers     bool
	MaxSessions     int
	SessionIdleTTL  time.Duration
	TurnTimeout     time.Duration
}

// Broker is the operator-message broker (spec §4.4).
type Broker struct {
	cfg      Config
	backend  Backend
	resolver Resolver
	sessions *sessionManager

	auditMu sync.Mutex
	audit   *journal.Log
}

// New builds a Broker over backend and resolver, auditing every turn to
// auditLogPath (control-plane/operator_turns.jsonl, spec §6).
func New(cfg Config, backend Backend, resolver Resolver, repoRoot, auditLogPath string) (*Broker, error) {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.TurnTimeout < minTurnTimeout {
		cfg.TurnTimeout = minTurnTimeout
	}

	audit, err := journal.Open(auditLogPath, func([]byte) error { return nil })
	if err != nil {
		return nil, err
	}

	return &Broker{
		cfg:      cfg,
		backend:  backend,
		resolver: resolver,
		sessions: newSessionManager(repoRoot, cfg.SessionIdleTTL, cfg.MaxSessions),
		audit:    audit,
	}, nil
}

// Close disposes every live session and closes the audit log.
func (b *Broker) Close() error {
	b.sessions.disposeAll()
	return b.audit.Close()
}

func newTurnID() string {
	return "turn_" + ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

func messagePreview(msg string) string {
	if len(msg) <= 280 {
		return msg
	}
	return msg[:280]
}

type auditRecord struct {
	TsMs            int64  `json:"ts_ms"`
	Kind            string `json:"kind"`
	RepoRoot        string `json:"repo_root"`
	Channel         string `json:"channel"`
	RequestID       string `json:"request_id"`
	SessionID       string `json:"session_id"`
	TurnID          string `json:"turn_id"`
	Outcome         Outcome `json:"outcome"`
	Reason          string `json:"reason,omitempty"`
	MessagePreview  string `json:"message_preview,omitempty"`
	Command         string `json:"command,omitempty"`
}

// recordAudit is best-effort: an audit I/O failure never fails the turn
// (spec §4.4 "Audit").
func (b *Broker) recordAudit(inbound InboundEnvelope, sessionID, turnID string, outcome Outcome, reason, message, command string) {
	rec := auditRecord{
		TsMs:           time.Now().UnixMilli(),
		Kind:           "operator.turn",
		RepoRoot:       inbound.RepoRoot,
		Channel:        string(inbound.Channel),
		RequestID:      inbound.RequestID,
		SessionID:      sessionID,
		TurnID:         turnID,
		Outcome:        outcome,
		Reason:         reason,
		MessagePreview: messagePreview(message),
		Command:        command,
	}
	b.auditMu.Lock()
	defer b.auditMu.Unlock()
	if err := b.audit.Append(rec); err != nil {
		logging.Warn().Err(err).Str("request_id", inbound.RequestID).Msg("operator turn audit write failed")
	}
}

func validResponse(msg string) bool {
	trimmed := strings.TrimSpace(msg)
	return len(trimmed) >= minResponseLen && len(trimmed) <= maxResponseLen
}

// Turn runs one inbound through the broker (spec §4.4 "Per-turn
// runtime"). It never returns an error across its boundary — every
// failure mode is folded into the returned Decision (spec §7 "Operator
// errors").
func (b *Broker) Turn(ctx context.Context, inbound InboundEnvelope) Decision {
	turnID := newTurnID()

	if !b.cfg.Enabled || (len(b.cfg.EnabledChannels) > 0 && !b.cfg.EnabledChannels[string(inbound.Channel)]) {
		b.recordAudit(inbound, "", turnID, OutcomeInvalidDirective, string(errkind.OperatorDisabled), "", "")
		return Decision{Reject: &RejectDecision{Reason: string(errkind.OperatorDisabled)}, OperatorTurnID: turnID}
	}

	key := ConversationKey{
		Channel:        inbound.Channel,
		TenantID:       inbound.ChannelTenantID,
		ConversationID: inbound.ChannelConversationID,
	}
	if inbound.Binding != nil {
		key.BindingID = inbound.Binding.BindingID
	}
	session := b.sessions.resolve(key, time.Now())
	session.MessageCount++

	turnCtx, cancel := context.WithTimeout(ctx, b.cfg.TurnTimeout)
	defer cancel()

	outcome, err := b.backend.RunTurn(turnCtx, session, inbound)
	if err != nil {
		reason := string(errkind.OperatorInvalidOutput)
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		msg := formatInternalFailure(turnID)
		b.recordAudit(inbound, session.OperatorSessionID, turnID, OutcomeError, reason, msg, "")
		return Decision{
			Response:          &ResponseDecision{Message: msg},
			OperatorSessionID: session.OperatorSessionID,
			OperatorTurnID:    turnID,
		}
	}

	switch {
	case outcome.Respond != nil && outcome.Command == nil:
		msg := outcome.Respond.Message
		if !validResponse(msg) {
			msg = formatInternalFailure(turnID)
		}
		b.recordAudit(inbound, session.OperatorSessionID, turnID, OutcomeRespond, "", msg, "")
		return Decision{
			Response:          &ResponseDecision{Message: strings.TrimSpace(msg)},
			OperatorSessionID: session.OperatorSessionID,
			OperatorTurnID:    turnID,
		}

	case outcome.Command != nil && outcome.Respond == nil:
		return b.handleCommand(inbound, session, turnID, *outcome.Command)

	default:
		msg := formatInternalFailure(turnID)
		b.recordAudit(inbound, session.OperatorSessionID, turnID, OutcomeError, string(errkind.OperatorInvalidOutput), msg, "")
		return Decision{
			Response:          &ResponseDecision{Message: msg},
			OperatorSessionID: session.OperatorSessionID,
			OperatorTurnID:    turnID,
		}
	}
}

func (b *Broker) handleCommand(inbound InboundEnvelope, session *Session, turnID string, proposal Proposal) Decision {
	if runTriggerCommands[proposal.Kind] && !b.cfg.RunTriggers {
		reason := string(errkind.OperatorActionDisallow)
		b.recordAudit(inbound, session.OperatorSessionID, turnID, OutcomeInvalidDirective, reason, "", "")
		return Decision{
			Reject:            &RejectDecision{Reason: reason},
			OperatorSessionID: session.OperatorSessionID,
			OperatorTurnID:    turnID,
		}
	}

	normalized, err := b.resolver.Resolve(proposal, inbound)
	if err != nil {
		reason := string(errkind.KindOf(err))
		if reason == "" {
			reason = string(errkind.CLIValidationFailed)
		}
		b.recordAudit(inbound, session.OperatorSessionID, turnID, OutcomeInvalidDirective, reason, "", "")
		return Decision{
			Reject:            &RejectDecision{Reason: reason},
			OperatorSessionID: session.OperatorSessionID,
			OperatorTurnID:    turnID,
		}
	}

	b.recordAudit(inbound, session.OperatorSessionID, turnID, OutcomeCommand, "", "", normalized)
	return Decision{
		Command:           &CommandDecision{CommandText: normalized},
		OperatorSessionID: session.OperatorSessionID,
		OperatorTurnID:    turnID,
	}
}

// formatInternalFailure builds the fallback message that preserves the
// turn id and tells the user how to retry (spec §4.4 step 4).
func formatInternalFailure(hint string) string {
	return "the operator could not complete that request (ref " + hint + "); please try again"
}

// SessionCount reports the broker's current live-session count, for
// observability.
func (b *Broker) SessionCount() int { return b.sessions.count() }
