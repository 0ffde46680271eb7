package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Snapshot(t *testing.T) {
	var m Metrics
	m.SearchTotal.Add(3)
	m.CacheHits.Add(2)
	m.CacheMisses.Add(1)
	m.FilesIndexed.Add(10)

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.SearchTotal)
	assert.Equal(t, int64(2), s.CacheHits)
	assert.Equal(t, int64(1), s.CacheMisses)
	assert.Equal(t, int64(10), s.FilesIndexed)
	assert.Equal(t, int64(0), s.SearchErrors)
}

func TestMetrics_LatencyBuckets(t *testing.T) {
	var m Metrics
	m.ObserveSearchLatency(5 * time.Millisecond)
	m.ObserveSearchLatency(30 * time.Millisecond)
	m.ObserveSearchLatency(30 * time.Millisecond)
	m.ObserveSearchLatency(10 * time.Second)

	buckets := m.Snapshot().SearchLatencyBuckets
	assert.Equal(t, int64(1), buckets["le_10ms"])
	assert.Equal(t, int64(2), buckets["le_50ms"])
	assert.Equal(t, int64(0), buckets["le_5s"])
	assert.Equal(t, int64(1), buckets["+inf"])
}
