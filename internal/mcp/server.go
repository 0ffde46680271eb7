package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/notectx/notectx-mcp/internal/cache"
	"github.com/notectx/notectx-mcp/internal/chunker"
	"github.com/notectx/notectx-mcp/internal/config"
	"github.com/notectx/notectx-mcp/internal/embedder"
	"github.com/notectx/notectx-mcp/internal/expand"
	"github.com/notectx/notectx-mcp/internal/metrics"
	"github.com/notectx/notectx-mcp/internal/notes"
	"github.com/notectx/notectx-mcp/internal/rerank"
	"github.com/notectx/notectx-mcp/internal/searcher"
	"github.com/notectx/notectx-mcp/internal/storage"
	"github.com/notectx/notectx-mcp/internal/syncer"
)

const (
	// ServerName is the MCP server name
	ServerName = "notectx-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp        *server.MCPServer
	store      storage.Store
	engine     *searcher.Engine
	ingestor   *syncer.Ingestor
	reconciler *syncer.Reconciler
	watcher    *syncer.Watcher
	caches     *cache.Manager
	metrics    *metrics.Metrics
	logger     *log.Logger
	notesRoot  string

	mu         sync.Mutex
	lastReport *syncer.Report
}

// NewServer wires all components from the given configuration. The logger
// must write to stderr; stdout carries the MCP protocol.
func NewServer(cfg *config.Config, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.Path, storage.Tuning{
		IndexNeighbors: cfg.Storage.IndexNeighbors,
		SearchBreadth:  cfg.Storage.SearchBreadth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	caches := cache.NewManager(cache.Config{
		EmbeddingCapacity: cfg.QueryCache.Capacity,
		EmbeddingTTL:      time.Duration(cfg.QueryCache.TTLMinutes) * time.Minute,
		ResultCapacity:    cfg.ResultCache.Capacity,
		ResultTTL:         time.Duration(cfg.ResultCache.TTLMinutes) * time.Minute,
	})

	m := &metrics.Metrics{}

	scorer, err := buildScorer(cfg.Rerank, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize reranker: %w", err)
	}

	// The engine and the ingestor share one embedder, so embeddings
	// cached during ingestion are visible to search.
	engine := searcher.NewEngine(store, emb, caches, expand.NewExpander(), scorer, m,
		searcher.Options{
			DefaultTier:   searcher.Tier(cfg.Search.DefaultTier),
			DefaultLimit:  cfg.Search.DefaultLimit,
			RerankTopK:    cfg.Search.RerankTopK,
			MaxExpansions: cfg.Search.MaxExpansions,
			BlendWeight:   cfg.Rerank.BlendWeight,
		})

	loader := notes.NewLoader(cfg.Syncer.NotesRoot)
	ch := chunker.New(chunker.Config{
		MaxTokens:     cfg.Chunker.MaxTokens,
		OverlapTokens: cfg.Chunker.OverlapTokens,
	})

	ingestor := syncer.NewIngestor(loader, ch, emb, store, m, logger, cfg.Syncer.Workers)
	reconciler := syncer.NewReconciler(loader, store, ingestor, m, logger)

	watcher, err := syncer.NewWatcher(cfg.Syncer.NotesRoot, ingestor, m, logger,
		syncer.WatcherConfig{
			Debounce:           time.Duration(cfg.Syncer.DebounceMs) * time.Millisecond,
			MaxInFlight:        int64(cfg.Syncer.MaxInFlight),
			MemoryCeilingBytes: uint64(cfg.Syncer.MemoryCeilingMB) * 1024 * 1024,
		})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	s := &Server{
		mcp:        server.NewMCPServer(ServerName, ServerVersion),
		store:      store,
		engine:     engine,
		ingestor:   ingestor,
		reconciler: reconciler,
		watcher:    watcher,
		caches:     caches,
		metrics:    m,
		logger:     logger,
		notesRoot:  cfg.Syncer.NotesRoot,
	}
	s.registerTools()

	return s, nil
}

// Serve reconciles the index against the note tree, starts the filesystem
// watcher, and serves the MCP protocol on stdio until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()

	report, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("startup reconcile failed: %w", err)
	}
	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	if err := s.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	s.logger.Println("MCP server ready, listening on stdio...")
	return server.ServeStdio(s.mcp)
}

// Close releases the watcher and the storage connection
func (s *Server) Close() {
	_ = s.watcher.Close()
	_ = s.store.Close()
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchNotesTool(), s.handleSearchNotes)
	s.mcp.AddTool(indexNotesTool(), s.handleIndexNotes)
	s.mcp.AddTool(syncStatusTool(), s.handleSyncStatus)
	s.mcp.AddTool(cacheStatsTool(), s.handleCacheStats)
}

func buildEmbedder(cfg config.EmbedderConfig) (embedder.Embedder, error) {
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	return embedder.New(embedder.Config{
		Provider:  cfg.Provider,
		APIKey:    apiKey,
		Host:      cfg.Host,
		CacheSize: cfg.CacheSize,
	})
}

// buildScorer resolves the rerank provider. A Jina scorer without an API
// key falls back to the lexical scorer rather than failing startup.
func buildScorer(cfg config.RerankConfig, logger *log.Logger) (rerank.Scorer, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "jina":
		apiKey := ""
		if cfg.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.APIKeyEnv)
		}
		scorer, err := rerank.NewJinaScorer(apiKey)
		if err != nil {
			logger.Printf("jina reranker unavailable (%v), using lexical scorer", err)
			return rerank.NewLexicalScorer(), nil
		}
		return scorer, nil
	case "", "lexical":
		return rerank.NewLexicalScorer(), nil
	default:
		return nil, fmt.Errorf("unknown rerank provider %q", cfg.Provider)
	}
}
