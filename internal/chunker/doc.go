// Package chunker divides note documents into bounded, overlap-aware
// semantic chunks ready for embedding.
//
// The primary split is structural: the document is segmented at heading
// boundaries (levels 1-3), each segment inheriting the preceding heading as
// its label. A segment whose token estimate exceeds the configured maximum
// is further split by a sentence-level sliding window: sentences are grouped
// greedily until the budget is reached, then a new window starts seeded with
// a trailing run of whole sentences whose cumulative token count stays
// within the overlap budget.
//
// Overlapping at sentence granularity, not raw cut points, is deliberate:
// mid-sentence truncation degrades embedding quality at window boundaries.
//
// # Basic Usage
//
//	c := chunker.New(chunker.Config{MaxTokens: 512, OverlapTokens: 64})
//	chunks := c.Chunk(doc)
//
//	for _, chunk := range chunks {
//	    fmt.Printf("%s#%d %q: %d tokens\n",
//	        chunk.Path, chunk.Ordinal, chunk.Heading, chunk.TokenCount)
//	}
//
// Chunking is deterministic for identical input and configuration, and it
// never fails: malformed text degrades to single-sentence chunks at worst,
// and an empty document legitimately produces zero chunks.
//
// Token estimation uses the chars/4 heuristic throughout the index; chunks
// are compared against budgets with the same estimator used at query time.
package chunker
