package cache

import (
	"time"

	"github.com/notectx/notectx-mcp/pkg/types"
)

// Defaults for the two namespaces. Embeddings are reproducible for a fixed
// model configuration, so they tolerate a long TTL; result sets go stale
// whenever the index changes, so theirs is short.
const (
	DefaultEmbeddingCapacity = 4096
	DefaultEmbeddingTTL      = 24 * time.Hour

	DefaultResultCapacity = 1024
	DefaultResultTTL      = 30 * time.Minute
)

// Config sizes the two cache namespaces
type Config struct {
	EmbeddingCapacity int
	EmbeddingTTL      time.Duration
	ResultCapacity    int
	ResultTTL         time.Duration
}

// Manager owns the two cache namespaces shared by the ingestion and search
// paths. It is constructed explicitly and injected; tests substitute a
// fresh instance rather than sharing process state.
type Manager struct {
	Embeddings *Cache[[]float32]
	Results    *Cache[[]types.SearchResult]
}

// NewManager creates a Manager, applying defaults for zero fields
func NewManager(cfg Config) *Manager {
	if cfg.EmbeddingCapacity <= 0 {
		cfg.EmbeddingCapacity = DefaultEmbeddingCapacity
	}
	if cfg.EmbeddingTTL <= 0 {
		cfg.EmbeddingTTL = DefaultEmbeddingTTL
	}
	if cfg.ResultCapacity <= 0 {
		cfg.ResultCapacity = DefaultResultCapacity
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = DefaultResultTTL
	}

	return &Manager{
		Embeddings: NewCache[[]float32](cfg.EmbeddingCapacity, cfg.EmbeddingTTL),
		Results:    NewCache[[]types.SearchResult](cfg.ResultCapacity, cfg.ResultTTL),
	}
}

// Clear empties both namespaces. Used after bulk re-ingestion invalidates
// previously cached result sets.
func (m *Manager) Clear() {
	m.Embeddings.Clear()
	m.Results.Clear()
}
