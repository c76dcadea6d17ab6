// Package config loads the workspace configuration from the store's
// config.json, merged with environment overrides, the way the teacher's
// config package loads opencode.json/opencode.jsonc (global, then project,
// then env).
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Load reads config.json from the store directory under repoRoot, applies
// environment overrides, and returns the merged Config. A missing file is
// not an error — Load falls back to Default().
func Load(repoRoot string) (*Config, error) {
	cfg := Default()

	path := NewPaths(repoRoot).ConfigFile()
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg Config
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return nil, err
		}
		merge(cfg, &fileCfg)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// merge overlays non-zero fields of src onto dst; RunTriggers is always
// taken from src, so a file that omits it turns run triggers off.
func merge(dst, src *Config) {
	if src.Operator.Provider != "" {
		dst.Operator.Provider = src.Operator.Provider
	}
	if src.Operator.Model != "" {
		dst.Operator.Model = src.Operator.Model
	}
	if src.Operator.Thinking != "" {
		dst.Operator.Thinking = src.Operator.Thinking
	}
	if len(src.Channels) > 0 {
		dst.Channels = src.Channels
	}
	dst.RunTriggers = src.RunTriggers
	if src.MaxSessions > 0 {
		dst.MaxSessions = src.MaxSessions
	}
	if src.SessionIdleTTLSeconds > 0 {
		dst.SessionIdleTTLSeconds = src.SessionIdleTTLSeconds
	}
	if src.ServerPort > 0 {
		dst.ServerPort = src.ServerPort
	}
}

// applyEnvOverrides mirrors the teacher's env-override pass: a small,
// explicit set of variables that always win over file config.
func applyEnvOverrides(cfg *Config) {
	if model := os.Getenv("AGENTCTL_MODEL"); model != "" {
		cfg.Operator.Model = model
	}
	if provider := os.Getenv("AGENTCTL_PROVIDER"); provider != "" {
		cfg.Operator.Provider = provider
	}
	if v := os.Getenv("AGENTCTL_RUN_TRIGGERS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RunTriggers = b
		}
	}
	if v := os.Getenv("AGENTCTL_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ServerPort = n
		}
	}
}

// Save writes cfg to the store's config.json.
func Save(repoRoot string, cfg *Config) error {
	path := NewPaths(repoRoot).ConfigFile()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
