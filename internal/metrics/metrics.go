// Package metrics keeps lightweight in-process counters for the search
// and sync paths. Counters are exposed through the MCP status tools, not
// scraped externally.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"
)

// latencyBucketsMs are upper bounds for search latency buckets; the last
// bucket is unbounded
var latencyBucketsMs = []int64{10, 50, 100, 250, 500, 1000, 5000}

// Metrics aggregates counters shared across components. The zero value is
// ready to use.
type Metrics struct {
	SearchTotal        atomic.Int64
	SearchErrors       atomic.Int64
	SearchDegraded     atomic.Int64
	SearchTargetMissed atomic.Int64

	CacheHits   atomic.Int64
	CacheMisses atomic.Int64

	EmbedCalls  atomic.Int64
	EmbedErrors atomic.Int64

	SyncRuns       atomic.Int64
	SyncDeferred   atomic.Int64
	FilesIndexed   atomic.Int64
	FilesDeleted   atomic.Int64
	ChunksUpserted atomic.Int64

	latency [8]atomic.Int64
}

// ObserveSearchLatency records one search duration
func (m *Metrics) ObserveSearchLatency(d time.Duration) {
	ms := d.Milliseconds()
	for i, bound := range latencyBucketsMs {
		if ms <= bound {
			m.latency[i].Add(1)
			return
		}
	}
	m.latency[len(latencyBucketsMs)].Add(1)
}

// Snapshot is a point-in-time copy of all counters
type Snapshot struct {
	SearchTotal        int64 `json:"search_total"`
	SearchErrors       int64 `json:"search_errors"`
	SearchDegraded     int64 `json:"search_degraded"`
	SearchTargetMissed int64 `json:"search_target_missed"`

	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	EmbedCalls  int64 `json:"embed_calls"`
	EmbedErrors int64 `json:"embed_errors"`

	SyncRuns       int64 `json:"sync_runs"`
	SyncDeferred   int64 `json:"sync_deferred"`
	FilesIndexed   int64 `json:"files_indexed"`
	FilesDeleted   int64 `json:"files_deleted"`
	ChunksUpserted int64 `json:"chunks_upserted"`

	SearchLatencyBuckets map[string]int64 `json:"search_latency_buckets"`
}

// Snapshot returns current counter values
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		SearchTotal:        m.SearchTotal.Load(),
		SearchErrors:       m.SearchErrors.Load(),
		SearchDegraded:     m.SearchDegraded.Load(),
		SearchTargetMissed: m.SearchTargetMissed.Load(),
		CacheHits:          m.CacheHits.Load(),
		CacheMisses:        m.CacheMisses.Load(),
		EmbedCalls:         m.EmbedCalls.Load(),
		EmbedErrors:        m.EmbedErrors.Load(),
		SyncRuns:           m.SyncRuns.Load(),
		SyncDeferred:       m.SyncDeferred.Load(),
		FilesIndexed:       m.FilesIndexed.Load(),
		FilesDeleted:       m.FilesDeleted.Load(),
		ChunksUpserted:     m.ChunksUpserted.Load(),

		SearchLatencyBuckets: make(map[string]int64, len(m.latency)),
	}

	for i, bound := range latencyBucketsMs {
		s.SearchLatencyBuckets[bucketLabel(bound)] = m.latency[i].Load()
	}
	s.SearchLatencyBuckets["+inf"] = m.latency[len(latencyBucketsMs)].Load()
	return s
}

func bucketLabel(bound int64) string {
	if bound < 1000 {
		return "le_" + strconv.FormatInt(bound, 10) + "ms"
	}
	return "le_" + strconv.FormatInt(bound/1000, 10) + "s"
}
