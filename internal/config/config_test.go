package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "es-MX", cfg.STT.Language)
	assert.Equal(t, "latest_long", cfg.STT.Model)
	assert.Equal(t, "gemini-1.5-flash", cfg.Reasoning.Model)
	assert.Equal(t, 0.7, cfg.Intent.ConfidenceThreshold)
	assert.Equal(t, float64(200), cfg.Intent.AntExpenseThreshold)
	assert.Equal(t, 8*time.Second, cfg.RequestDeadline())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "es-MX", cfg.STT.Language)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "numa.yaml")
	data := []byte("stt:\n  language: es-ES\nrequest:\n  deadline_ms: 5000\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "es-ES", cfg.STT.Language)
	assert.Equal(t, 5000, cfg.Request.DeadlineMS)
	// Untouched sections keep defaults.
	assert.Equal(t, "latest_long", cfg.STT.Model)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NUMA_GEMINI_API_KEY", "test-key")
	t.Setenv("NUMA_DB_PATH", "/tmp/other.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.Reasoning.APIKey)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.Path)
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "numa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("intent:\n  confidence_threshold: 1.5\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestParseTimeout(t *testing.T) {
	assert.Equal(t, 3*time.Second, ParseTimeout("3s", time.Second))
	assert.Equal(t, time.Second, ParseTimeout("", time.Second))
	assert.Equal(t, time.Second, ParseTimeout("garbage", time.Second))
	assert.Equal(t, time.Second, ParseTimeout("-2s", time.Second))
}
