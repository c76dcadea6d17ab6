package config

import (
	"os"
	"path/filepath"
	"strings"
)

// storeDirName is the well-known store directory name inside a workspace
// repository root (spec §3, §6).
const storeDirName = ".agentctl"

// Paths resolves every path named in the store directory layout, relative
// to a single repository root.
type Paths struct {
	Root string
}

// NewPaths anchors all store paths at repoRoot.
func NewPaths(repoRoot string) *Paths {
	return &Paths{Root: repoRoot}
}

func (p *Paths) StoreDir() string { return filepath.Join(p.Root, storeDirName) }

func (p *Paths) IssuesLog() string { return filepath.Join(p.StoreDir(), "issues.jsonl") }
func (p *Paths) ForumLog() string  { return filepath.Join(p.StoreDir(), "forum.jsonl") }
func (p *Paths) EventsLog() string { return filepath.Join(p.StoreDir(), "events.jsonl") }
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.StoreDir(), "config.json")
}
func (p *Paths) HeartbeatsLog() string {
	return filepath.Join(p.StoreDir(), "heartbeats.jsonl")
}
func (p *Paths) CronLog() string { return filepath.Join(p.StoreDir(), "cron.jsonl") }
func (p *Paths) RunsLog() string { return filepath.Join(p.StoreDir(), "runs.jsonl") }

// LogsDir returns the per-run trace directory for rootIssueID, or the
// logs root when rootIssueID is empty.
func (p *Paths) LogsDir(rootIssueID string) string {
	if rootIssueID == "" {
		return filepath.Join(p.StoreDir(), "logs")
	}
	return filepath.Join(p.StoreDir(), "logs", rootIssueID)
}

func (p *Paths) ControlPlaneDir() string { return filepath.Join(p.StoreDir(), "control-plane") }
func (p *Paths) DiscoveryFile() string   { return filepath.Join(p.ControlPlaneDir(), "server.json") }
func (p *Paths) WriterLockFile() string  { return filepath.Join(p.ControlPlaneDir(), "writer.lock") }
func (p *Paths) IdentitiesLog() string   { return filepath.Join(p.ControlPlaneDir(), "identities.jsonl") }
func (p *Paths) CommandsLog() string     { return filepath.Join(p.ControlPlaneDir(), "commands.jsonl") }
func (p *Paths) OutboxLog() string       { return filepath.Join(p.ControlPlaneDir(), "outbox.jsonl") }
func (p *Paths) PolicyFile() string      { return filepath.Join(p.ControlPlaneDir(), "policy.json") }
func (p *Paths) OperatorTurnsLog() string {
	return filepath.Join(p.ControlPlaneDir(), "operator_turns.jsonl")
}
func (p *Paths) OperatorConversationsFile() string {
	return filepath.Join(p.ControlPlaneDir(), "operator_conversations.json")
}
func (p *Paths) IngressAuditLog(adapter string) string {
	return filepath.Join(p.ControlPlaneDir(), "ingress_"+adapter+".jsonl")
}

// EnsurePaths creates the store directory tree and writes the .gitignore
// stub that keeps the whole store out of the workspace's own VCS history.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.StoreDir(), p.LogsDir(""), p.ControlPlaneDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return p.writeGitignore()
}

func (p *Paths) writeGitignore() error {
	path := filepath.Join(p.Root, ".gitignore")
	marker := storeDirName + "/\n"

	existing, readErr := os.ReadFile(path)
	if readErr == nil && strings.Contains(string(existing), marker) {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if readErr == nil && len(existing) > 0 && existing[len(existing)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(marker)
	return err
}
