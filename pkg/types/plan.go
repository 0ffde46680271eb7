package types

import "time"

// PathState is the per-path fingerprint the consistency service compares:
// a path is modified when any of the three fields disagree with the
// filesystem.
type PathState struct {
	Path      string
	ModTime   time.Time
	SizeBytes int64
	WordCount int
}

// SyncPlan is the diff between filesystem state and index state, computed
// once at startup. The three action sets are disjoint.
type SyncPlan struct {
	New       []string // On disk, not in the index
	Deleted   []string // In the index, gone from disk
	Modified  []string // Present in both with mismatched fingerprints
	Unchanged []string // Present in both, fingerprints agree
}

// Actions returns the number of paths the plan will touch
func (p *SyncPlan) Actions() int {
	return len(p.New) + len(p.Deleted) + len(p.Modified)
}

// Empty reports whether the plan requires no work
func (p *SyncPlan) Empty() bool {
	return p.Actions() == 0
}
