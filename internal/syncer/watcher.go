package syncer

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/semaphore"

	"github.com/notectx/notectx-mcp/internal/metrics"
	"github.com/notectx/notectx-mcp/internal/notes"
)

// WatcherConfig tunes debounce and resource guard behavior
type WatcherConfig struct {
	// Debounce is the quiet window per path; each new event re-arms it
	Debounce time.Duration

	// MaxInFlight caps concurrent per-path syncs
	MaxInFlight int64

	// MemoryCeilingBytes defers syncs while heap use exceeds it;
	// zero disables the guard
	MemoryCeilingBytes uint64

	// DeferRetry is how long a deferred path waits before re-arming
	DeferRetry time.Duration
}

func (c WatcherConfig) withDefaults() WatcherConfig {
	if c.Debounce <= 0 {
		c.Debounce = 750 * time.Millisecond
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 4
	}
	if c.DeferRetry <= 0 {
		c.DeferRetry = 2 * time.Second
	}
	return c
}

// Watcher keeps the index consistent with live filesystem changes. Each
// changed path gets its own debounce timer; a burst of writes to one file
// collapses into a single sync after the quiet window.
type Watcher struct {
	root     string
	ingestor *Ingestor
	metrics  *metrics.Metrics
	logger   *log.Logger
	cfg      WatcherConfig

	fsw    *fsnotify.Watcher
	sem    *semaphore.Weighted
	onSync func(path string) // test hook, may be nil

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	// memUsage reports current heap use; replaced in tests
	memUsage func() uint64

	wg sync.WaitGroup
}

// NewWatcher creates a watcher rooted at the ingestor's note tree
func NewWatcher(root string, ingestor *Ingestor, m *metrics.Metrics,
	logger *log.Logger, cfg WatcherConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &metrics.Metrics{}
	}
	if logger == nil {
		logger = log.Default()
	}
	cfg = cfg.withDefaults()

	return &Watcher{
		root:     root,
		ingestor: ingestor,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		fsw:      fsw,
		sem:      semaphore.NewWeighted(cfg.MaxInFlight),
		timers:   make(map[string]*time.Timer),
		memUsage: heapInUse,
	}, nil
}

// Start watches the note tree until ctx is cancelled
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Close stops watching and waits for pending syncs
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watch: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	// New directories need their own watch before events inside them
	// can arrive
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || !notes.Indexable(rel) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.debounce(ctx, rel)
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		w.debounce(ctx, rel)
	}
}

// debounce arms the per-path timer, cancelling any previous arm. The timer
// firing after a newer event for the same path is impossible: re-arming
// stops the old timer first, and a stop after fire is a no-op.
func (w *Watcher) debounce(ctx context.Context, rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if timer, ok := w.timers[rel]; ok {
		timer.Stop()
	}
	w.timers[rel] = time.AfterFunc(w.cfg.Debounce, func() {
		w.fire(ctx, rel)
	})
}

// fire runs one path sync, re-arming instead when resource guards say no
func (w *Watcher) fire(ctx context.Context, rel string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.timers, rel)
	w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	// Memory guard: defer rather than drop
	if w.cfg.MemoryCeilingBytes > 0 && w.memUsage() > w.cfg.MemoryCeilingBytes {
		w.metrics.SyncDeferred.Add(1)
		w.requeue(ctx, rel)
		return
	}

	if !w.sem.TryAcquire(1) {
		w.metrics.SyncDeferred.Add(1)
		w.requeue(ctx, rel)
		return
	}
	defer w.sem.Release(1)

	w.syncPath(ctx, rel)
}

// requeue re-arms a deferred path after a back-off delay
func (w *Watcher) requeue(ctx context.Context, rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, ok := w.timers[rel]; ok {
		timer.Stop()
	}
	w.timers[rel] = time.AfterFunc(w.cfg.DeferRetry, func() {
		w.fire(ctx, rel)
	})
}

// syncPath reconciles one path: ingest when present, delete when gone
func (w *Watcher) syncPath(ctx context.Context, rel string) {
	abs := filepath.Join(w.root, rel)
	if _, err := os.Stat(abs); os.IsNotExist(err) {
		w.ingestor.DeletePaths(ctx, []string{rel})
	} else {
		w.ingestor.IngestPaths(ctx, []string{rel})
	}
	if w.onSync != nil {
		w.onSync(rel)
	}
}

// addRecursive watches a directory tree, skipping hidden directories
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func heapInUse() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapInuse
}
