package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(256<<10), cfg.Request.MaxBytes)
	assert.Equal(t, 5*time.Second, cfg.Request.Deadline)
	assert.Equal(t, 2, cfg.Policy.TopK)
	assert.EqualValues(t, 2, cfg.Circuit.FailuresThreshold)
	assert.Equal(t, 15*time.Second, cfg.Circuit.Cooldown)
	assert.Equal(t, 60*time.Second, cfg.Circuit.Window)
	assert.True(t, cfg.PHIGuardEnabled)
	assert.Equal(t, triage.BackendDeterministic, cfg.Reasoning.Backend)
	assert.Equal(t, 30*time.Second, cfg.Reasoning.Timeout)
	assert.Equal(t, 1, cfg.Reasoning.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Reasoning.RetryBackoff)
	assert.InDelta(t, 0.2, cfg.Reasoning.Temperature, 0.0001)
	assert.Equal(t, 600, cfg.Reasoning.MaxTokens)
	assert.False(t, cfg.Reasoning.SendImages)
	assert.Equal(t, 2, cfg.Reasoning.MaxImages)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TRIAGE_PHI_GUARD", "0")
	t.Setenv("TRIAGE_REQUEST_DEADLINE", "2s")
	t.Setenv("TRIAGE_POLICY_TOPK", "3")
	t.Setenv("TRIAGE_REASONING_BACKEND", "external")
	t.Setenv("TRIAGE_REASONING_BASE_URL", "http://localhost:9999")
	t.Setenv("TRIAGE_REASONING_MODEL", "medgemma")
	t.Setenv("TRIAGE_COMMUNICATION_BACKEND", "deterministic")

	cfg := Load()
	assert.False(t, cfg.PHIGuardEnabled)
	assert.Equal(t, 2*time.Second, cfg.Request.Deadline)
	assert.Equal(t, 3, cfg.Policy.TopK)
	assert.Equal(t, triage.BackendExternal, cfg.Reasoning.Backend)
	assert.Equal(t, "http://localhost:9999", cfg.Reasoning.BaseURL)
	// The communication backend falls back to the reasoning endpoint but
	// keeps its own backend selection.
	assert.Equal(t, triage.BackendDeterministic, cfg.Communication.Backend)
	assert.Equal(t, "http://localhost:9999", cfg.Communication.BaseURL)
	assert.Equal(t, "medgemma", cfg.Communication.Model)
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.yaml")
	data := "port: \"9090\"\npolicy:\n  top_k: 4\nreasoning:\n  backend: external\n  base_url: http://example.test\n  model: m\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadFile(path, Default())
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 4, cfg.Policy.TopK)
	assert.Equal(t, triage.BackendExternal, cfg.Reasoning.Backend)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), Default())
	assert.Error(t, err)
}
