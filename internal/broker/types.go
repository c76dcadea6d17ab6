// Package broker is the operator-message broker (spec §4.4): it mediates
// between an LLM-backed "operator" and the workspace, validating
// LLM-produced proposals into commands the workspace would otherwise take
// from a human typing at the CLI.
package broker

import (
	"github.com/agentctl/agentctl/internal/identity"
)

// InboundEnvelope carries one free-form command text plus its channel
// context (spec §4.4 "Inbound envelope").
type InboundEnvelope struct {
	Channel              identity.Channel  `json:"channel"`
	ChannelTenantID      string            `json:"channel_tenant_id"`
	ChannelConversationID string           `json:"channel_conversation_id"`
	RequestID            string            `json:"request_id"`
	RepoRoot             string            `json:"repo_root"`
	CommandText          string            `json:"command_text"`
	TargetType           string            `json:"target_type,omitempty"`
	TargetID             string            `json:"target_id,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`

	Binding *identity.Binding `json:"-"`
}

// CommandKind is the closed set of approved-command schema variants (spec
// §4.4 "Approved-command schema").
type CommandKind string

const (
	CommandStatus       CommandKind = "status"
	CommandReady        CommandKind = "ready"
	CommandIssueList    CommandKind = "issue_list"
	CommandIssueGet     CommandKind = "issue_get"
	CommandForumRead    CommandKind = "forum_read"
	CommandRunList      CommandKind = "run_list"
	CommandRunStatus    CommandKind = "run_status"
	CommandRunResume    CommandKind = "run_resume"
	CommandRunInterrupt CommandKind = "run_interrupt"
	CommandRunStart     CommandKind = "run_start"
)

// runTriggerCommands is the subset gated by the runtime's run-triggers
// flag (spec §4.4 step 5a).
var runTriggerCommands = map[CommandKind]bool{
	CommandRunStart:     true,
	CommandRunResume:    true,
	CommandRunInterrupt: true,
}

// Proposal is what the operator backend returns for a `command` turn: a
// tagged CommandKind plus its per-case fields.
type Proposal struct {
	Kind CommandKind `json:"kind"`

	IssueID     string `json:"issue_id,omitempty"`
	Topic       string `json:"topic,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	RootIssueID string `json:"root_issue_id,omitempty"`
	MaxSteps    int    `json:"max_steps,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
}

// TurnOutcome is how the backend resolved one turn: exactly one of
// Respond or Command is set.
type TurnOutcome struct {
	Respond *RespondTurn `json:"respond,omitempty"`
	Command *Proposal    `json:"command,omitempty"`
}

// RespondTurn is a plain-reply turn result.
type RespondTurn struct {
	Message string `json:"message"`
}

// Decision is the broker's per-turn output (spec §4.4 step 6, §8 property
// 5): exactly one of Response, Command, Reject is non-nil.
type Decision struct {
	Response *ResponseDecision `json:"response,omitempty"`
	Command  *CommandDecision  `json:"command,omitempty"`
	Reject   *RejectDecision   `json:"reject,omitempty"`

	OperatorSessionID string `json:"operator_session_id"`
	OperatorTurnID    string `json:"operator_turn_id"`
}

// ResponseDecision carries a plain text reply bounded to 1..2000 chars.
type ResponseDecision struct {
	Message string `json:"message"`
}

// CommandDecision carries one approved command text of the form
// "/<namespace> <normalized>".
type CommandDecision struct {
	CommandText string `json:"command_text"`
}

// RejectDecision carries a stable reason code (spec §7).
type RejectDecision struct {
	Reason string `json:"reason"`
}

// Outcome classifies a Decision for audit purposes (spec §4.4 "Audit").
type Outcome string

const (
	OutcomeRespond         Outcome = "respond"
	OutcomeCommand         Outcome = "command"
	OutcomeInvalidDirective Outcome = "invalid_directive"
	OutcomeError            Outcome = "error"
)
