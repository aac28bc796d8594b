package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "mock", cfg.Model)
	assert.Equal(t, 0.40, cfg.Weights.Vector)
	assert.Equal(t, 0.15, cfg.Weights.BM25)
	assert.Equal(t, 0.45, cfg.Weights.PPR)
	assert.Equal(t, 60, cfg.RRFConstant)
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".memoryd.yaml"), []byte(`
model: e5_small
cache_size: 5000
log_level: debug
`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "e5_small", cfg.Model)
	assert.Equal(t, 5000, cfg.CacheSize)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvOverridesProjectConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".memoryd.yaml"), []byte(`model: e5_small`), 0o644))

	t.Setenv("MEMORYD_MODEL", "bge_m3")
	t.Setenv("MEMORYD_BATCH_SIZE", "64")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "bge_m3", cfg.Model)
	assert.Equal(t, 64, cfg.BatchSize)
}

func TestValidate_RejectsUnrecognizedModel(t *testing.T) {
	cfg := NewConfig()
	cfg.Model = "not-a-model"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsMRLOnUnsupportedModel(t *testing.T) {
	cfg := NewConfig()
	cfg.Model = "e5_small" // Bert family, no MRL support
	cfg.MRLDim = 128
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsMRLDimAboveBase(t *testing.T) {
	cfg := NewConfig()
	cfg.Model = "qwen3" // base 1024, supports MRL
	cfg.MRLDim = 2048
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsMRLDimWithinBase(t *testing.T) {
	cfg := NewConfig()
	cfg.Model = "gemma"
	cfg.MRLDim = 512
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsWeightsNotSummingToOne(t *testing.T) {
	cfg := NewConfig()
	cfg.Weights = Weights{Vector: 0.5, BM25: 0.5, PPR: 0.5}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveBatchSize(t *testing.T) {
	cfg := NewConfig()
	cfg.BatchSize = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	cfg := NewConfig()
	cfg.Model = "nomic"
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, "nomic", loaded.Model)
}
