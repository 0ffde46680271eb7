// Package searcher implements the retrieval engine over the note corpus.
//
// A search runs a fixed pipeline: normalize the query, look up the result
// cache, resolve the query embedding (cached for 24h), run the vector
// query, then apply tier-dependent optional stages before a stable final
// ranking:
//
//	fastest   vector similarity only
//	fast      + keyword stage (technical queries fan out to the full-text
//	            index and are restricted to exact matches)
//	balanced  + cross-encoder rerank over the top candidates
//	quality   + query expansion fan-out, merged before rerank
//
// Failure handling is deliberately asymmetric. The vector query is the
// spine of the pipeline: if it fails, the search fails. Every optional
// stage instead degrades: a rerank error, an expansion embedding error, or
// an exhausted request deadline marks the response Degraded and the caller
// gets the best result the cheaper strategies produced. Degraded responses
// are flagged, never retried. The same applies to per-tier targets: a
// response slower than its tier's latency budget, or with an average final
// score below the floor, is flagged TargetMissed and returned as is.
//
// Ranking sorts by final score with deterministic tie-breaking (vector
// similarity, then chunk identity key), so equal inputs always produce the
// same ordering.
package searcher
