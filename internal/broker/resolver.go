package broker

import (
	"fmt"
	"strings"

	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/identity"
	"github.com/agentctl/agentctl/internal/store"
)

// Resolver is the command-context resolver (spec §4.4 step 5c): it turns
// a proposal plus its inbound context into an approved normalized command
// text, or one of the resolver's four rejection kinds.
type Resolver interface {
	Resolve(p Proposal, inbound InboundEnvelope) (string, error)
}

// storeResolver is the default Resolver, grounded directly on the
// workspace store for id resolution and existence checks.
type storeResolver struct {
	store *store.Store
}

// NewResolver builds the default command-context resolver over s.
func NewResolver(s *store.Store) Resolver {
	return &storeResolver{store: s}
}

func requireScope(inbound InboundEnvelope, scope identity.Scope) error {
	if inbound.Binding == nil || !inbound.Binding.HasScope(scope) {
		return errkind.Newf(errkind.ContextUnauthorized, "binding lacks %s scope", scope)
	}
	return nil
}

// resolveRootIssueID resolves an explicit id (a prefix is fine), falling
// back to the inbound's target context when empty.
func (r *storeResolver) resolveRootIssueID(explicit string, inbound InboundEnvelope) (string, error) {
	id := strings.TrimSpace(explicit)
	if id == "" && inbound.TargetType == "issue" {
		id = inbound.TargetID
	}
	if id == "" {
		return "", errkind.New(errkind.ContextMissing, "no root_issue_id given or inferable from context")
	}
	issue, err := r.store.Get(id)
	if err != nil {
		if errkind.Is(err, errkind.Ambiguous) {
			return "", errkind.Wrap(errkind.ContextAmbiguous, "root_issue_id prefix is ambiguous", err)
		}
		return "", errkind.Wrap(errkind.ContextMissing, "root_issue_id not found", err)
	}
	return issue.ID, nil
}

func (r *storeResolver) Resolve(p Proposal, inbound InboundEnvelope) (string, error) {
	switch p.Kind {
	case CommandStatus:
		if err := requireScope(inbound, identity.ScopeRead); err != nil {
			return "", err
		}
		return "/status", nil

	case CommandReady:
		if err := requireScope(inbound, identity.ScopeRead); err != nil {
			return "", err
		}
		return "/issues ready", nil

	case CommandIssueList:
		if err := requireScope(inbound, identity.ScopeRead); err != nil {
			return "", err
		}
		return "/issues list", nil

	case CommandIssueGet:
		if err := requireScope(inbound, identity.ScopeRead); err != nil {
			return "", err
		}
		id, err := r.resolveRootIssueID(p.IssueID, inbound)
		if err != nil {
			return "", err
		}
		return "/issues get " + id, nil

	case CommandForumRead:
		if err := requireScope(inbound, identity.ScopeRead); err != nil {
			return "", err
		}
		limit := p.Limit
		if limit == 0 {
			limit = 50
		}
		if limit < 1 || limit > 500 {
			return "", errkind.Newf(errkind.CLIValidationFailed, "limit %d out of range [1..500]", limit)
		}
		topic := strings.TrimSpace(p.Topic)
		if topic == "" {
			return fmt.Sprintf("/forum read --limit %d", limit), nil
		}
		return fmt.Sprintf("/forum read --topic %s --limit %d", topic, limit), nil

	case CommandRunList:
		if err := requireScope(inbound, identity.ScopeRead); err != nil {
			return "", err
		}
		return "/run list", nil

	case CommandRunStatus:
		if err := requireScope(inbound, identity.ScopeRead); err != nil {
			return "", err
		}
		id, err := r.resolveRootIssueID(p.RootIssueID, inbound)
		if err != nil {
			return "", err
		}
		return "/run status " + id, nil

	case CommandRunResume:
		if err := requireScope(inbound, identity.ScopeExecute); err != nil {
			return "", err
		}
		id, err := r.resolveRootIssueID(p.RootIssueID, inbound)
		if err != nil {
			return "", err
		}
		maxSteps := p.MaxSteps
		if maxSteps == 0 {
			maxSteps = 50
		}
		if maxSteps < 1 || maxSteps > 500 {
			return "", errkind.Newf(errkind.CLIValidationFailed, "max_steps %d out of range [1..500]", maxSteps)
		}
		return fmt.Sprintf("/run resume %s --max-steps %d", id, maxSteps), nil

	case CommandRunInterrupt:
		if err := requireScope(inbound, identity.ScopeExecute); err != nil {
			return "", err
		}
		// The resolver only confirms that the root issue exists (missing
		// or ambiguous ids fail in resolveRootIssueID); it does not check
		// whether a run is active for that root.
		id, err := r.resolveRootIssueID(p.RootIssueID, inbound)
		if err != nil {
			return "", err
		}
		if _, err := r.store.Get(id); err != nil {
			return "", errkind.New(errkind.CLIValidationFailed, "no active run matches root_issue_id")
		}
		return "/run interrupt " + id, nil

	case CommandRunStart:
		if err := requireScope(inbound, identity.ScopeExecute); err != nil {
			return "", err
		}
		tokens := strings.Fields(p.Prompt)
		if len(tokens) == 0 {
			return "", errkind.New(errkind.CLIValidationFailed, "prompt must not be empty")
		}
		maxSteps := p.MaxSteps
		if maxSteps == 0 {
			maxSteps = 50
		}
		if maxSteps < 1 || maxSteps > 500 {
			return "", errkind.Newf(errkind.CLIValidationFailed, "max_steps %d out of range [1..500]", maxSteps)
		}
		return fmt.Sprintf("/run start %s --max-steps %d", strings.Join(tokens, " "), maxSteps), nil

	default:
		return "", errkind.Newf(errkind.CLIValidationFailed, "unknown command kind %q", p.Kind)
	}
}
