package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleConfig = `# generation settings
num_users: 4
months: 1
batch_size: 2
tx_batch_size: 1
output_dir: "out"
provider: offline
model: "claude-sonnet-4-5-20250929"
temperature: 0.7
max_tokens: 2000
mode: async
max_concurrency: 3
cache_ttl_seconds: 60
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.NumUsers)
	assert.Equal(t, 6, cfg.Months)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, "data", cfg.OutputDir)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Model)
	assert.InDelta(t, 0.7, cfg.Temperature, 0.001)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, ModeSync, cfg.Mode)
	assert.Equal(t, time.Hour, cfg.CacheTTL())
	assert.Equal(t, LogConfig{Level: "info", Format: "console"}, cfg.Log())
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.NumUsers)
	assert.Equal(t, 1, cfg.Months)
	assert.Equal(t, 2, cfg.BatchSize)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, "offline", cfg.Provider)
	assert.Equal(t, 2000, cfg.MaxTokens)
	assert.Equal(t, ModeAsync, cfg.Mode)
	assert.Equal(t, 3, cfg.MaxConcurrency)
	assert.Equal(t, time.Minute, cfg.CacheTTL())
	// Unset keys keep defaults.
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BANKGEN_NUM_USERS", "12")
	t.Setenv("BANKGEN_MODE", "async")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.NumUsers)
	assert.Equal(t, ModeAsync, cfg.Mode)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud"}))
}

func TestCredential(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := &Config{Provider: "anthropic"}
	_, err := cfg.Credential()
	assert.ErrorIs(t, err, ErrMissingCredential)

	cfg.APIKey = "from-file"
	key, err := cfg.Credential()
	require.NoError(t, err)
	assert.Equal(t, "from-file", key)

	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	key, err = cfg.Credential()
	require.NoError(t, err)
	assert.Equal(t, "from-env", key, "environment wins over api_key")

	gem := &Config{Provider: "gemini"}
	t.Setenv("GOOGLE_API_KEY", "google")
	key, err = gem.Credential()
	require.NoError(t, err)
	assert.Equal(t, "google", key)

	t.Setenv("GEMINI_API_KEY", "gemini")
	key, err = gem.Credential()
	require.NoError(t, err)
	assert.Equal(t, "gemini", key)

	key, err = (&Config{Provider: "offline"}).Credential()
	require.NoError(t, err)
	assert.Empty(t, key)
}
