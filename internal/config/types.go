package config

// Config holds the merged workspace configuration: operator defaults,
// enabled messaging channels, and control-plane knobs. It is loaded once
// per invocation by Load and is otherwise read-only.
type Config struct {
	// Operator holds the defaults handed to the operator TUI / broker
	// backend when a command doesn't override them.
	Operator OperatorConfig `json:"operator"`

	// Channels lists the messaging channels the operator broker accepts
	// inbounds from. Values are drawn from the fixed channel set in
	// internal/identity (chat_a, chat_b, chat_c, email, ...).
	Channels []string `json:"channels,omitempty"`

	// RunTriggers, when false, causes the approved-command broker to
	// reject run_start/run_resume/run_interrupt proposals.
	RunTriggers bool `json:"run_triggers"`

	// MaxSessions bounds the operator broker's live session count before
	// least-recently-used eviction kicks in.
	MaxSessions int `json:"max_sessions"`

	// SessionIdleTTLSeconds is how long an operator session may sit idle
	// before it is disposed.
	SessionIdleTTLSeconds int `json:"session_idle_ttl_seconds"`

	// ServerPort is the default control-plane HTTP port.
	ServerPort int `json:"server_port"`
}

// OperatorConfig carries provider/model/thinking defaults for both the
// interactive TUI attachment and the headless operator broker backend.
type OperatorConfig struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

// Default returns the configuration used when no file or env override is
// present.
func Default() *Config {
	return &Config{
		Operator:              OperatorConfig{},
		Channels:              nil,
		RunTriggers:           false,
		MaxSessions:           64,
		SessionIdleTTLSeconds: 1800,
		ServerPort:            8765,
	}
}
