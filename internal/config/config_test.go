package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Chunker.MaxTokens)
	assert.Equal(t, 64, cfg.Chunker.OverlapTokens)
	assert.Equal(t, 24*60, cfg.QueryCache.TTLMinutes)
	assert.Equal(t, 30, cfg.ResultCache.TTLMinutes)
	assert.Equal(t, "local", cfg.Embedder.Provider)
	assert.Equal(t, "balanced", cfg.Search.DefaultTier)
	assert.InDelta(t, 0.65, cfg.Rerank.BlendWeight, 1e-9)
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunker:
  max_tokens: 256
embedder:
  provider: ollama
  host: http://localhost:11434
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Chunker.MaxTokens)
	assert.Equal(t, 64, cfg.Chunker.OverlapTokens)
	assert.Equal(t, "ollama", cfg.Embedder.Provider)
	assert.Equal(t, 4096, cfg.QueryCache.Capacity)
	assert.Equal(t, 750, cfg.Syncer.DebounceMs)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [not: a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Storage.Path = "/tmp/custom.db"
	cfg.Search.DefaultTier = "quality"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", loaded.Storage.Path)
	assert.Equal(t, "quality", loaded.Search.DefaultTier)
}
