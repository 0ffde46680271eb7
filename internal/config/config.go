// Package config loads the YAML application configuration with sensible
// defaults for every field, so an empty or missing file still yields a
// working setup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ChunkerConfig configures how note sections are split into chunks
type ChunkerConfig struct {
	MaxTokens     int `yaml:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// CacheConfig configures one cache namespace
type CacheConfig struct {
	Capacity   int `yaml:"capacity"`
	TTLMinutes int `yaml:"ttl_minutes"`
}

// StorageConfig configures the SQLite vector store
type StorageConfig struct {
	Path string `yaml:"path"`

	// IndexNeighbors and SearchBreadth override corpus-derived tuning
	// when non-zero
	IndexNeighbors int `yaml:"index_neighbors"`
	SearchBreadth  int `yaml:"search_breadth"`
}

// EmbedderConfig selects and configures the embedding provider
type EmbedderConfig struct {
	Provider  string `yaml:"provider"` // openai, ollama, local
	APIKeyEnv string `yaml:"api_key_env"`
	Host      string `yaml:"host"` // ollama only
	CacheSize int    `yaml:"cache_size"`
}

// RerankConfig configures the secondary relevance scorer
type RerankConfig struct {
	Provider    string  `yaml:"provider"` // jina, lexical, none
	APIKeyEnv   string  `yaml:"api_key_env"`
	BlendWeight float64 `yaml:"blend_weight"`
}

// SearchConfig sets retrieval engine defaults
type SearchConfig struct {
	DefaultTier   string `yaml:"default_tier"` // fastest, fast, balanced, quality
	DefaultLimit  int    `yaml:"default_limit"`
	RerankTopK    int    `yaml:"rerank_top_k"`
	MaxExpansions int    `yaml:"max_expansions"`
}

// SyncerConfig configures the consistency service
type SyncerConfig struct {
	NotesRoot       string `yaml:"notes_root"`
	DebounceMs      int    `yaml:"debounce_ms"`
	MaxInFlight     int    `yaml:"max_in_flight"`
	MemoryCeilingMB int    `yaml:"memory_ceiling_mb"`
	Workers         int    `yaml:"workers"`
}

// Config is the root application configuration
type Config struct {
	Chunker     ChunkerConfig  `yaml:"chunker"`
	QueryCache  CacheConfig    `yaml:"query_cache"`
	ResultCache CacheConfig    `yaml:"result_cache"`
	Storage     StorageConfig  `yaml:"storage"`
	Embedder    EmbedderConfig `yaml:"embedder"`
	Rerank      RerankConfig   `yaml:"rerank"`
	Search      SearchConfig   `yaml:"search"`
	Syncer      SyncerConfig   `yaml:"syncer"`
}

// Load reads a config from path. A missing file returns defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./notectx.yaml, then ~/.config/notectx/config.yaml,
// and falls back to built-in defaults when neither exists.
func LoadDefault() (*Config, string, error) {
	cwdPath := "notectx.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}

	userPath, err := defaultUserConfigPath()
	if err == nil {
		if _, statErr := os.Stat(userPath); statErr == nil {
			cfg, loadErr := Load(userPath)
			return cfg, userPath, loadErr
		}
	}

	return Default(), "", nil
}

// Save writes the config to path, creating directories as needed
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "notectx", "config.yaml"), nil
}

// Default returns the built-in configuration
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = 512
	}
	if cfg.Chunker.OverlapTokens == 0 {
		cfg.Chunker.OverlapTokens = 64
	}

	if cfg.QueryCache.Capacity == 0 {
		cfg.QueryCache.Capacity = 4096
	}
	if cfg.QueryCache.TTLMinutes == 0 {
		cfg.QueryCache.TTLMinutes = 24 * 60
	}
	if cfg.ResultCache.Capacity == 0 {
		cfg.ResultCache.Capacity = 1024
	}
	if cfg.ResultCache.TTLMinutes == 0 {
		cfg.ResultCache.TTLMinutes = 30
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "notectx.db"
	}

	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = "local"
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 10000
	}

	if cfg.Rerank.Provider == "" {
		cfg.Rerank.Provider = "lexical"
	}
	if cfg.Rerank.BlendWeight == 0 {
		cfg.Rerank.BlendWeight = 0.65
	}

	if cfg.Search.DefaultTier == "" {
		cfg.Search.DefaultTier = "balanced"
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.RerankTopK == 0 {
		cfg.Search.RerankTopK = 30
	}
	if cfg.Search.MaxExpansions == 0 {
		cfg.Search.MaxExpansions = 3
	}

	if cfg.Syncer.NotesRoot == "" {
		cfg.Syncer.NotesRoot = "."
	}
	if cfg.Syncer.DebounceMs == 0 {
		cfg.Syncer.DebounceMs = 750
	}
	if cfg.Syncer.MaxInFlight == 0 {
		cfg.Syncer.MaxInFlight = 4
	}
	if cfg.Syncer.MemoryCeilingMB == 0 {
		cfg.Syncer.MemoryCeilingMB = 512
	}
	if cfg.Syncer.Workers == 0 {
		cfg.Syncer.Workers = 4
	}
}
