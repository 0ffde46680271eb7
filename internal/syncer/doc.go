// Package syncer keeps the vector index consistent with the note tree.
//
// Two mechanisms cover the two ways drift happens:
//
// The Reconciler handles drift accumulated while the process was down. At
// startup it diffs discovered note paths against the per-path fingerprints
// stored in the index (mtime, size) and produces a SyncPlan of new,
// deleted, modified, and unchanged paths. Applying the plan touches only
// the first three classes, so reconciliation is re-runnable and converges.
//
// The Watcher handles live drift. Filesystem events arm a per-path
// debounce timer; re-arming cancels the previous timer, so a burst of
// writes to one file collapses into a single sync after the quiet window.
// Resource guards (an in-flight semaphore and a heap ceiling) defer fires
// rather than dropping them.
//
// Both paths converge on the Ingestor, which replaces a path's chunks
// whole: delete everything owned by the path, then insert the new chunk
// set in one transaction. A partial patch is never attempted, so a crash
// mid-sync leaves either the old version or the new one, not a mix.
// Per-path failures are logged and reported; they never abort a batch.
package syncer
