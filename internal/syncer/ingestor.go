package syncer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/notectx/notectx-mcp/internal/chunker"
	"github.com/notectx/notectx-mcp/internal/embedder"
	"github.com/notectx/notectx-mcp/internal/metrics"
	"github.com/notectx/notectx-mcp/internal/notes"
	"github.com/notectx/notectx-mcp/internal/storage"
)

// FileResult records the outcome of syncing one path
type FileResult struct {
	Path    string `json:"path"`
	Chunks  int    `json:"chunks"`
	Deleted int    `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

// Report summarizes one ingest batch
type Report struct {
	BatchID  string       `json:"batch_id"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Indexed  int          `json:"indexed"`
	Deleted  int          `json:"deleted"`
	Failed   int          `json:"failed"`
	Results  []FileResult `json:"results"`
}

// Ingestor moves note files into the vector store: load, chunk, embed,
// delete-then-reinsert. A path is always replaced whole, never patched.
type Ingestor struct {
	loader   *notes.Loader
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	store    storage.Store
	metrics  *metrics.Metrics
	logger   *log.Logger
	workers  int
}

// NewIngestor creates an Ingestor. logger and m may be nil.
func NewIngestor(loader *notes.Loader, ch *chunker.Chunker, emb embedder.Embedder,
	store storage.Store, m *metrics.Metrics, logger *log.Logger, workers int) *Ingestor {
	if m == nil {
		m = &metrics.Metrics{}
	}
	if logger == nil {
		logger = log.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Ingestor{
		loader:   loader,
		chunker:  ch,
		embedder: emb,
		store:    store,
		metrics:  m,
		logger:   logger,
		workers:  workers,
	}
}

// IngestPaths re-indexes the given paths concurrently. A failing path is
// logged and recorded in the report; it never aborts the batch.
func (ing *Ingestor) IngestPaths(ctx context.Context, paths []string) *Report {
	report := &Report{
		BatchID: uuid.NewString(),
		Started: time.Now(),
		Results: make([]FileResult, 0, len(paths)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.workers)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			result := ing.ingestPath(gctx, path)

			mu.Lock()
			report.Results = append(report.Results, result)
			if result.Error != "" {
				report.Failed++
			} else {
				report.Indexed++
			}
			mu.Unlock()

			if result.Error != "" {
				ing.logger.Printf("sync: %s failed: %s", path, result.Error)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Path < report.Results[j].Path
	})
	report.Finished = time.Now()
	ing.metrics.FilesIndexed.Add(int64(report.Indexed))
	return report
}

// DeletePaths removes every chunk owned by the given paths
func (ing *Ingestor) DeletePaths(ctx context.Context, paths []string) *Report {
	report := &Report{
		BatchID: uuid.NewString(),
		Started: time.Now(),
		Results: make([]FileResult, 0, len(paths)),
	}

	for _, path := range paths {
		count, err := ing.store.DeleteByPath(ctx, path)
		result := FileResult{Path: path, Deleted: count}
		if err != nil {
			result.Error = err.Error()
			report.Failed++
			ing.logger.Printf("sync: delete %s failed: %v", path, err)
		} else {
			report.Deleted++
		}
		report.Results = append(report.Results, result)
	}

	report.Finished = time.Now()
	ing.metrics.FilesDeleted.Add(int64(report.Deleted))
	return report
}

// ingestPath replaces a single path in the store
func (ing *Ingestor) ingestPath(ctx context.Context, path string) FileResult {
	result := FileResult{Path: path}

	doc, err := ing.loader.Load(ctx, path)
	if err != nil {
		result.Error = fmt.Sprintf("load: %v", err)
		return result
	}

	chunks := ing.chunker.Chunk(doc)

	// Stale chunks go first so a path whose new version yields fewer
	// chunks (or none) leaves nothing behind
	deleted, err := ing.store.DeleteByPath(ctx, path)
	if err != nil {
		result.Error = fmt.Sprintf("delete: %v", err)
		return result
	}
	result.Deleted = deleted

	if len(chunks) == 0 {
		return result
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	ing.metrics.EmbedCalls.Add(1)
	vectors, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		ing.metrics.EmbedErrors.Add(1)
		result.Error = fmt.Sprintf("embed: %v", err)
		return result
	}

	if err := ing.store.UpsertChunks(ctx, chunks, vectors); err != nil {
		result.Error = fmt.Sprintf("upsert: %v", err)
		return result
	}

	result.Chunks = len(chunks)
	ing.metrics.ChunksUpserted.Add(int64(len(chunks)))
	return result
}
