package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, 2, cfg.Graph.MaxCorrection)
	assert.Equal(t, 2, cfg.Graph.MaxReflection)
	assert.Equal(t, 24, cfg.Graph.MaxHops)
	assert.Equal(t, "yaegi", cfg.Sandbox.Runtime)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.WallClock.Std())
	assert.Equal(t, 64*1024, cfg.Sandbox.MaxOutputBytes)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.Graph.MaxHops)
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarry.yaml")
	yaml := `
log_level: debug
prompts_dir: ./prompts
model:
  name: local-model
  base_url: http://localhost:11434/v1
  timeout: 90s
graph:
  max_hops: 40
  warehouse_timeout: 5s
sandbox:
  wall_clock: 10s
stores:
  warehouse_path: ./data.db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "local-model", cfg.Model.Name)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Model.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Model.Timeout.Std())
	assert.Equal(t, 40, cfg.Graph.MaxHops)
	assert.Equal(t, 5*time.Second, cfg.Graph.WarehouseTimeout.Std())
	assert.Equal(t, 10*time.Second, cfg.Sandbox.WallClock.Std())
	assert.Equal(t, "./data.db", cfg.Stores.WarehousePath)

	// Fields the file does not touch keep their defaults.
	assert.Equal(t, 2, cfg.Graph.MaxCorrection)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("graph:\n  max_hops: 40\n"), 0o644))

	t.Setenv("QUARRY_MAX_HOPS", "12")
	t.Setenv("QUARRY_MODEL_TIMEOUT", "7s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Graph.MaxHops)
	assert.Equal(t, 7*time.Second, cfg.Model.Timeout.Std())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [broken"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDurationYAMLForms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  timeout: 1500000000\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.Model.Timeout.Std())
}
