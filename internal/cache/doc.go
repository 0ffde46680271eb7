// Package cache provides TTL+LRU caching for expensive retrieval artifacts.
//
// Two independent namespaces hang off a Manager: query embeddings (long TTL)
// and search result sets (short TTL). Each namespace is a generic Cache with
// a two-phase eviction policy: entries past their TTL are invalid
// regardless of recency, and the LRU list bounds memory independent of TTL.
// TTL bounds staleness for content that can change out of band; LRU protects
// against cache-key explosion when queries are highly diverse.
//
// # Basic Usage
//
//	mgr := cache.NewManager(cache.Config{})
//	key := cache.Key("jwt authentication")
//
//	if vec, ok := mgr.Embeddings.Get(key); ok {
//	    return vec
//	}
//	mgr.Embeddings.Put(key, computed)
//
// A cache is an optimization, never a correctness dependency: lookups report
// miss rather than returning an error, and callers always fall back to
// recomputation.
//
// # Concurrency
//
// All operations take the namespace's RWMutex; Get holds the write lock
// because it updates recency and hit counters. The cache maps are the only
// structure shared between the ingestion and search paths.
package cache
