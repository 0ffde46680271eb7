package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notectx/notectx-mcp/internal/chunker"
	"github.com/notectx/notectx-mcp/internal/embedder"
	"github.com/notectx/notectx-mcp/internal/notes"
	"github.com/notectx/notectx-mcp/internal/storage"
)

type fixture struct {
	root     string
	loader   *notes.Loader
	store    *storage.SQLiteStore
	ingestor *Ingestor
	rec      *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "notes.db"), storage.Tuning{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	loader := notes.NewLoader(root)
	ing := NewIngestor(loader, chunker.New(chunker.Config{}), emb, store, nil, nil, 2)
	rec := NewReconciler(loader, store, ing, nil, nil)

	return &fixture{root: root, loader: loader, store: store, ingestor: ing, rec: rec}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(f.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestReconciler_NewFilesIndexed(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "# Alpha\n\nFirst note body.\n")
	f.write(t, "sub/b.md", "# Beta\n\nSecond note body.\n")

	ctx := context.Background()
	plan, err := f.rec.BuildPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "sub/b.md"}, plan.New)
	assert.Empty(t, plan.Deleted)
	assert.Empty(t, plan.Modified)

	report := f.rec.Apply(ctx, plan)
	assert.Equal(t, 2, report.Indexed)
	assert.Zero(t, report.Failed)
	assert.NotEmpty(t, report.BatchID)

	count, err := f.store.CountChunks(ctx)
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestReconciler_Converges(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "# Alpha\n\nBody.\n")

	ctx := context.Background()
	_, err := f.rec.Reconcile(ctx)
	require.NoError(t, err)

	// Second run with no filesystem changes finds nothing to do
	plan, err := f.rec.BuildPlan(ctx)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, []string{"a.md"}, plan.Unchanged)
}

func TestReconciler_DetectsModification(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "# Alpha\n\nOriginal body.\n")

	ctx := context.Background()
	_, err := f.rec.Reconcile(ctx)
	require.NoError(t, err)

	// Backdate then rewrite so both mtime and size change
	f.write(t, "a.md", "# Alpha\n\nRewritten body with considerably more text.\n")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(f.root, "a.md"), past, past))

	plan, err := f.rec.BuildPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, plan.Modified)
	assert.Empty(t, plan.New)
}

func TestReconciler_DetectsInPlaceContentSwap(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "# Alpha\n\none two three four\n")

	ctx := context.Background()
	_, err := f.rec.Reconcile(ctx)
	require.NoError(t, err)

	abs := filepath.Join(f.root, "a.md")
	info, err := os.Stat(abs)
	require.NoError(t, err)

	// Same byte length, same restored mtime, different word count
	f.write(t, "a.md", "# Alpha\n\nonetwothree fourxx\n")
	require.NoError(t, os.Chtimes(abs, info.ModTime(), info.ModTime()))

	plan, err := f.rec.BuildPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, plan.Modified)
	assert.Empty(t, plan.Unchanged)
}

func TestReconciler_DetectsDeletion(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "# Alpha\n\nBody.\n")
	f.write(t, "b.md", "# Beta\n\nBody.\n")

	ctx := context.Background()
	_, err := f.rec.Reconcile(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.root, "a.md")))

	plan, err := f.rec.BuildPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, plan.Deleted)
	assert.Equal(t, []string{"b.md"}, plan.Unchanged)

	f.rec.Apply(ctx, plan)

	chunks, err := f.store.GetByMetadata(ctx, &storage.Filter{PathPrefix: "a.md"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngestor_DeleteThenReinsert(t *testing.T) {
	f := newFixture(t)
	f.write(t, "note.md", "# One\n\nFirst.\n\n# Two\n\nSecond.\n\n# Three\n\nThird.\n")

	ctx := context.Background()
	report := f.ingestor.IngestPaths(ctx, []string{"note.md"})
	require.Equal(t, 1, report.Indexed)

	before, err := f.store.GetByMetadata(ctx, &storage.Filter{PathPrefix: "note.md"})
	require.NoError(t, err)
	require.Len(t, before, 3)

	// Shrink the note; stale sections must not survive
	f.write(t, "note.md", "# Only\n\nJust this now.\n")
	report = f.ingestor.IngestPaths(ctx, []string{"note.md"})
	require.Equal(t, 1, report.Indexed)

	after, err := f.store.GetByMetadata(ctx, &storage.Filter{PathPrefix: "note.md"})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "Only", after[0].Heading)
}

func TestIngestor_FailingPathDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	f.write(t, "good.md", "# Good\n\nBody.\n")

	report := f.ingestor.IngestPaths(context.Background(), []string{"good.md", "missing.md"})
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 2)

	// Results are sorted by path
	assert.Equal(t, "good.md", report.Results[0].Path)
	assert.Empty(t, report.Results[0].Error)
	assert.Equal(t, "missing.md", report.Results[1].Path)
	assert.NotEmpty(t, report.Results[1].Error)
}

func TestIngestor_EmptyNoteLeavesNoChunks(t *testing.T) {
	f := newFixture(t)
	f.write(t, "note.md", "# Heading\n\nBody.\n")

	ctx := context.Background()
	f.ingestor.IngestPaths(ctx, []string{"note.md"})

	f.write(t, "note.md", "")
	report := f.ingestor.IngestPaths(ctx, []string{"note.md"})
	assert.Equal(t, 1, report.Indexed)

	chunks, err := f.store.GetByMetadata(ctx, &storage.Filter{PathPrefix: "note.md"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func newTestWatcher(t *testing.T, f *fixture, cfg WatcherConfig, onSync func(string)) *Watcher {
	t.Helper()
	w, err := NewWatcher(f.root, f.ingestor, nil, nil, cfg)
	require.NoError(t, err)
	w.onSync = onSync
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWatcher_IndexesNewFile(t *testing.T) {
	f := newFixture(t)
	synced := make(chan string, 16)
	newTestWatcher(t, f, WatcherConfig{Debounce: 50 * time.Millisecond}, func(path string) {
		synced <- path
	})

	f.write(t, "live.md", "# Live\n\nWritten while watching.\n")

	select {
	case path := <-synced:
		assert.Equal(t, "live.md", path)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sync")
	}

	chunks, err := f.store.GetByMetadata(context.Background(), &storage.Filter{PathPrefix: "live.md"})
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestWatcher_BurstCollapsesToOneSync(t *testing.T) {
	f := newFixture(t)
	synced := make(chan string, 16)
	newTestWatcher(t, f, WatcherConfig{Debounce: 200 * time.Millisecond}, func(path string) {
		synced <- path
	})

	// Rapid rewrites within the quiet window
	for i := 0; i < 5; i++ {
		f.write(t, "burst.md", "# Burst\n\nRevision.\n")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-synced:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sync")
	}

	// The quiet window collapsed the burst; no second sync follows
	select {
	case path := <-synced:
		t.Fatalf("unexpected second sync for %s", path)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_RemovesDeletedFile(t *testing.T) {
	f := newFixture(t)
	f.write(t, "gone.md", "# Gone\n\nSoon deleted.\n")
	f.ingestor.IngestPaths(context.Background(), []string{"gone.md"})

	synced := make(chan string, 16)
	newTestWatcher(t, f, WatcherConfig{Debounce: 50 * time.Millisecond}, func(path string) {
		synced <- path
	})

	require.NoError(t, os.Remove(filepath.Join(f.root, "gone.md")))

	select {
	case <-synced:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sync")
	}

	chunks, err := f.store.GetByMetadata(context.Background(), &storage.Filter{PathPrefix: "gone.md"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestWatcher_MemoryGuardDefers(t *testing.T) {
	f := newFixture(t)
	w, err := NewWatcher(f.root, f.ingestor, nil, nil, WatcherConfig{
		Debounce:           20 * time.Millisecond,
		MemoryCeilingBytes: 1, // always over
		DeferRetry:         time.Hour,
	})
	require.NoError(t, err)
	synced := make(chan string, 16)
	w.onSync = func(path string) { synced <- path }
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Close() })

	f.write(t, "deferred.md", "# Deferred\n\nBody.\n")

	// The fire defers instead of syncing
	select {
	case <-synced:
		t.Fatal("sync ran despite memory guard")
	case <-time.After(400 * time.Millisecond):
	}
	assert.Greater(t, w.metrics.Snapshot().SyncDeferred, int64(0))
}

func TestWatcher_IgnoresNonNoteFiles(t *testing.T) {
	f := newFixture(t)
	synced := make(chan string, 16)
	newTestWatcher(t, f, WatcherConfig{Debounce: 50 * time.Millisecond}, func(path string) {
		synced <- path
	})

	f.write(t, "image.png", "not a note")

	select {
	case path := <-synced:
		t.Fatalf("unexpected sync for %s", path)
	case <-time.After(400 * time.Millisecond):
	}
}
