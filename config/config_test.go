package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 1000, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 200, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, float32(0.6), cfg.Retrieval.SimilarityThreshold)
	assert.Equal(t, float32(0.7), cfg.Retrieval.VectorWeight)
	assert.Equal(t, 10, cfg.Retrieval.DefaultLimit)
	assert.Equal(t, 1, cfg.Retrieval.NeighborWindow)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
store:
  path: /var/lib/policykb
ingestion:
  chunk_size: 500
  chunk_overlap: 50
retrieval:
  similarity_threshold: 0
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/policykb", cfg.Store.Path)
	assert.Equal(t, 500, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 50, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, float32(0), cfg.Retrieval.SimilarityThreshold)
	assert.Equal(t, float32(0.7), cfg.Retrieval.VectorWeight)
	assert.Equal(t, "embeddinggemma", cfg.AI.EmbeddingModel)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POLICYKB_BASE_DIR", "/snapshots")
	t.Setenv("POLICYKB_CHUNK_SIZE", "800")
	t.Setenv("POLICYKB_VECTOR_WEIGHT", "0.25")
	t.Setenv("POLICYKB_REQUESTS_PER_SECOND", "3.5")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/snapshots", cfg.Ingestion.BaseDir)
	assert.Equal(t, 800, cfg.Ingestion.ChunkSize)
	assert.Equal(t, float32(0.25), cfg.Retrieval.VectorWeight)
	assert.Equal(t, 3.5, cfg.AI.RequestsPerSecond)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("POLICYKB_CHUNK_SIZE", "large")

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Ingestion.BaseDir = "/data"
	cfg.Retrieval.Dimension = 768

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("POLICYKB_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("POLICYKB_TEST_DOTENV", "")
	os.Unsetenv("POLICYKB_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("POLICYKB_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap not below size", func(c *Config) { c.Ingestion.ChunkOverlap = c.Ingestion.ChunkSize }},
		{"threshold too high", func(c *Config) { c.Retrieval.SimilarityThreshold = 1.5 }},
		{"threshold too low", func(c *Config) { c.Retrieval.SimilarityThreshold = -1.5 }},
		{"weight out of range", func(c *Config) { c.Retrieval.VectorWeight = 1.1 }},
		{"negative limit", func(c *Config) { c.Retrieval.DefaultLimit = -1 }},
		{"negative window", func(c *Config) { c.Retrieval.NeighborWindow = -1 }},
		{"missing path", func(c *Config) { c.Store.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("in memory needs no path", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Path = ""
		cfg.Store.InMemory = true
		assert.NoError(t, cfg.Validate())
	})
}

func TestEmbeddingConfig(t *testing.T) {
	t.Setenv("TEST_EMBEDDING_TOKEN", "sk-test")
	cfg := Default()
	cfg.AI.APIKeyEnv = "TEST_EMBEDDING_TOKEN"
	cfg.AI.RequestsPerSecond = 2

	aiCfg := cfg.EmbeddingConfig()
	assert.Equal(t, "sk-test", aiCfg.APIToken)
	assert.Equal(t, 2.0, aiCfg.RequestsPerSecond)
	assert.Equal(t, cfg.AI.EmbeddingModel, aiCfg.EmbeddingModel)
	assert.NoError(t, aiCfg.Validate())
}
