package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10, cfg.Orchestrator.WorkerConcurrency)
	assert.Equal(t, 20*time.Minute, cfg.Orchestrator.CompletionTimeout)
	assert.Equal(t, time.Second, cfg.Orchestrator.SettleDelay)
	assert.Equal(t, 2, cfg.Orchestrator.DispatchRetries)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestNewFromEnv_Overrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("WORKER_CONCURRENCY", "3")
	t.Setenv("COMPLETION_TIMEOUT", "90s")
	t.Setenv("SETTLE_DELAY", "10ms")
	t.Setenv("HTTP_ADDR", ":9999")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Orchestrator.WorkerConcurrency)
	assert.Equal(t, 90*time.Second, cfg.Orchestrator.CompletionTimeout)
	assert.Equal(t, 10*time.Millisecond, cfg.Orchestrator.SettleDelay)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestNewFromEnv_RequiresAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")

	_, err := NewFromEnv()
	require.Error(t, err)
}

func TestNewFromEnv_RejectsBadConcurrency(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("WORKER_CONCURRENCY", "-1")

	_, err := NewFromEnv()
	require.Error(t, err)
}
