package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentctl/agentctl/internal/store"
)

const (
	orchestratorSystemPrompt = `You are the orchestrator for this work item. Break the goal down into
a dependency graph of child issues when the task is too large for one
step; close this issue with outcome "expanded" once the children exist.
Close with "success" only when the goal is genuinely finished by you
directly, "needs_work" if the result should be revisited, "failure" on
an unrecoverable error, or "skipped" if the work no longer applies.`

	workerSystemPrompt = `You are a worker executing one concrete, leaf-level task. Do the work
described in the issue body, consulting the forum thread for context
other collaborators have left. Close with "success", "needs_work",
"failure", or "skipped" — workers do not expand issues into children.`
)

// role returns "orchestrator" or "worker" for issue, per its tags.
func role(issue *store.Issue) string {
	for _, t := range issue.Tags {
		if t == store.TagRoleOrchestra {
			return "orchestrator"
		}
	}
	return "worker"
}

func systemPrompt(r string) string {
	if r == "orchestrator" {
		return orchestratorSystemPrompt
	}
	return workerSystemPrompt
}

// compose builds the backend prompt from the issue, its accumulated forum
// thread, and the role-specific system prompt (spec §4.2 step 3).
func compose(issue *store.Issue, thread []*store.Message, r string) string {
	var b strings.Builder

	b.WriteString(systemPrompt(r))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "# %s\n\n%s\n", issue.Title, issue.Body)

	if len(thread) > 0 {
		b.WriteString("\n# Forum thread\n")
		for _, m := range thread {
			ts := time.UnixMilli(m.CreatedAt).UTC().Format(time.RFC3339)
			fmt.Fprintf(&b, "\n[%s] %s:\n%s\n", ts, m.Author, m.Body)
		}
	}

	return b.String()
}
