package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FARUM_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ModeLocal, cfg.Mode)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, StorageMemory, cfg.StorageBackend)
	require.True(t, cfg.MockLLM())
	require.Equal(t, 4000, cfg.MaxPromptLength)
	require.Equal(t, 30*time.Second, cfg.Completion.Timeout)
	require.Equal(t, 4096, cfg.Completion.MaxResponseTokens)
	require.InDelta(t, 0.7, cfg.Completion.DefaultTemperature, 1e-6)
	require.Equal(t, 10, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, 200, cfg.RateLimit.RequestsPerDay)
	require.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FARUM_JWT_SECRET", "secret")
	t.Setenv("FARUM_STORAGE_BACKEND", "sqlite")
	t.Setenv("FARUM_USE_MOCK_LLM", "false")
	t.Setenv("FARUM_RATE_REQUESTS_PER_MINUTE", "3")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StorageSQLite, cfg.StorageBackend)
	require.False(t, cfg.MockLLM())
	require.Equal(t, 3, cfg.RateLimit.RequestsPerMinute)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("FARUM_JWT_SECRET", "")
	t.Setenv("FARUM_MODE", "gcp")
	t.Setenv("FARUM_STORAGE_BACKEND", "postgres")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "FARUM_GCP_PROJECT")
	require.Contains(t, err.Error(), "FARUM_STORAGE_BACKEND")
	require.Contains(t, err.Error(), "FARUM_JWT_SECRET")
}
