package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, Default().MaxSessions, cfg.MaxSessions)
	require.False(t, cfg.RunTriggers)
}

func TestLoadMergesFileAndSave(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.RunTriggers = true
	cfg.Channels = []string{"chat_a", "email"}
	cfg.Operator.Model = "anthropic/claude-sonnet"
	require.NoError(t, Save(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.True(t, loaded.RunTriggers)
	require.Equal(t, []string{"chat_a", "email"}, loaded.Channels)
	require.Equal(t, "anthropic/claude-sonnet", loaded.Operator.Model)
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, Default()))

	t.Setenv("AGENTCTL_RUN_TRIGGERS", "true")
	t.Setenv("AGENTCTL_MODEL", "openai/gpt-5")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.True(t, cfg.RunTriggers)
	require.Equal(t, "openai/gpt-5", cfg.Operator.Model)
}

func TestEnsurePathsWritesGitignore(t *testing.T) {
	dir := t.TempDir()
	paths := NewPaths(dir)

	require.NoError(t, paths.EnsurePaths())

	for _, p := range []string{paths.StoreDir(), paths.LogsDir(""), paths.ControlPlaneDir()} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	require.Contains(t, string(data), ".agentctl/")

	// Running twice must not duplicate the marker line.
	require.NoError(t, paths.EnsurePaths())
	data2, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	require.Equal(t, 1, countOccurrences(string(data2), ".agentctl/\n"))
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
			i += len(sub) - 1
		}
	}
	return count
}
