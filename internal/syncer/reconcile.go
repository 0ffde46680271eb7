package syncer

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/notectx/notectx-mcp/internal/metrics"
	"github.com/notectx/notectx-mcp/internal/notes"
	"github.com/notectx/notectx-mcp/internal/storage"
	"github.com/notectx/notectx-mcp/pkg/types"
)

// Reconciler computes and applies the startup diff between the filesystem
// and the index. Running it twice in a row converges: the second plan is
// empty when nothing changed in between.
type Reconciler struct {
	loader   *notes.Loader
	store    storage.Store
	ingestor *Ingestor
	metrics  *metrics.Metrics
	logger   *log.Logger
}

// NewReconciler creates a Reconciler. logger and m may be nil.
func NewReconciler(loader *notes.Loader, store storage.Store, ingestor *Ingestor,
	m *metrics.Metrics, logger *log.Logger) *Reconciler {
	if m == nil {
		m = &metrics.Metrics{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{
		loader:   loader,
		store:    store,
		ingestor: ingestor,
		metrics:  m,
		logger:   logger,
	}
}

// BuildPlan diffs the note tree against the stored path states. A path is
// modified when mtime, size, or word count disagree.
func (r *Reconciler) BuildPlan(ctx context.Context) (*types.SyncPlan, error) {
	paths, err := r.loader.DiscoverPaths()
	if err != nil {
		return nil, fmt.Errorf("discover notes: %w", err)
	}

	states, err := r.store.ListPathStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexed paths: %w", err)
	}
	indexed := make(map[string]types.PathState, len(states))
	for _, state := range states {
		indexed[state.Path] = state
	}

	plan := &types.SyncPlan{}
	onDisk := make(map[string]bool, len(paths))

	for _, path := range paths {
		onDisk[path] = true
		state, ok := indexed[path]
		if !ok {
			plan.New = append(plan.New, path)
			continue
		}

		modTime, size, err := r.loader.Stat(path)
		if err != nil {
			// Disappeared between discovery and stat; the next run
			// will classify it as deleted
			continue
		}
		// Stored mtimes carry second precision
		if modTime.Unix() != state.ModTime.Unix() || size != state.SizeBytes {
			plan.Modified = append(plan.Modified, path)
			continue
		}

		// Mtime and size agree; the word count catches content swapped
		// in place. Re-reading unchanged files costs far less than
		// re-embedding them.
		doc, err := r.loader.Load(ctx, path)
		if err != nil {
			continue
		}
		if doc.WordCount != state.WordCount {
			plan.Modified = append(plan.Modified, path)
			continue
		}
		plan.Unchanged = append(plan.Unchanged, path)
	}

	for path := range indexed {
		if !onDisk[path] {
			plan.Deleted = append(plan.Deleted, path)
		}
	}

	sort.Strings(plan.New)
	sort.Strings(plan.Deleted)
	sort.Strings(plan.Modified)
	sort.Strings(plan.Unchanged)
	return plan, nil
}

// Apply executes a plan through the ingestor and returns the combined
// report. Unchanged paths are untouched.
func (r *Reconciler) Apply(ctx context.Context, plan *types.SyncPlan) *Report {
	r.metrics.SyncRuns.Add(1)

	if plan.Empty() {
		r.logger.Printf("sync: index up to date (%d paths)", len(plan.Unchanged))
		return &Report{}
	}
	r.logger.Printf("sync: %d new, %d modified, %d deleted, %d unchanged",
		len(plan.New), len(plan.Modified), len(plan.Deleted), len(plan.Unchanged))

	deleteReport := r.ingestor.DeletePaths(ctx, plan.Deleted)

	toIngest := make([]string, 0, len(plan.New)+len(plan.Modified))
	toIngest = append(toIngest, plan.New...)
	toIngest = append(toIngest, plan.Modified...)
	ingestReport := r.ingestor.IngestPaths(ctx, toIngest)

	ingestReport.Deleted = deleteReport.Deleted
	ingestReport.Failed += deleteReport.Failed
	ingestReport.Results = append(deleteReport.Results, ingestReport.Results...)
	return ingestReport
}

// Reconcile builds and applies a plan in one call
func (r *Reconciler) Reconcile(ctx context.Context) (*Report, error) {
	plan, err := r.BuildPlan(ctx)
	if err != nil {
		return nil, err
	}
	return r.Apply(ctx, plan), nil
}
