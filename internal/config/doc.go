// Package config resolves the store directory layout for a workspace
// repository root and loads its config.json.
//
// # Loading
//
// Load reads <root>/.agentctl/config.json if present, merges it onto
// Default(), then applies a small set of environment overrides
// (AGENTCTL_MODEL, AGENTCTL_PROVIDER, AGENTCTL_RUN_TRIGGERS,
// AGENTCTL_SERVER_PORT). Environment variables always win, matching the
// precedence the teacher's config loader uses for provider API keys.
//
// # Paths
//
// Paths resolves every file named in the store directory layout (issue,
// forum, and event logs; heartbeat and cron journals; the control-plane
// subtree) relative to one repository root, and EnsurePaths creates the
// directory tree plus the auto-written .gitignore stub on first use.
package config
