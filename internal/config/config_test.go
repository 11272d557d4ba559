package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
llm:
  model: claude-opus
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "-dlq", cfg.Monitor.DLQNamePattern)
	assert.Equal(t, 10, cfg.Monitor.MaxMessagesPerPoll)
	assert.Equal(t, 300, cfg.Monitor.VisibilityTimeoutS)
	assert.Equal(t, 3, cfg.Monitor.MaxRetriesMonitor)
	assert.Equal(t, 0.85, cfg.Analyzer.ConfidenceThreshold)
	assert.Equal(t, 10, cfg.Analyzer.SystemicMinSimilar)
	assert.Equal(t, 5, cfg.Executor.MaxRetriesExecutor)
	assert.Equal(t, 30, cfg.Executor.BackoffBaseS)
	assert.Equal(t, 900, cfg.Executor.BackoffMaxS)
	assert.True(t, cfg.Features.AutoReplayEnabled)
	assert.True(t, cfg.Features.LLMClassificationEnabled)
	assert.Equal(t, "pretty", cfg.Server.LoggingFormat)
}

func TestLoad_EnvIndirection(t *testing.T) {
	t.Setenv("DLQ_DB_URL", "postgres://example/pipeline")
	path := writeConfig(t, `
server:
  port: 8080
store:
  database_url: os.environ/DLQ_DB_URL
llm:
  model: claude-opus
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://example/pipeline", cfg.Store.DatabaseURL)
}

func TestLoad_InvalidPort(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 70000
llm:
  model: claude-opus
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_LLMRequiredWhenEnabled(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_BackoffBoundsValidated(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
llm:
  model: claude-opus
executor:
  backoff_base_s: 900
  backoff_max_s: 30
`)

	_, err := Load(path)
	require.Error(t, err)
}
