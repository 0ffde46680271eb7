package types

// Strategy identifies which retrieval path produced a result
type Strategy string

const (
	StrategyVector   Strategy = "vector"   // Plain vector similarity
	StrategyKeyword  Strategy = "keyword"  // Vector restricted by substring match
	StrategyExpanded Strategy = "expanded" // Query expansion fan-out
	StrategyReranked Strategy = "reranked" // Cross-encoder re-ranked
)

// SearchResult is a chunk reference plus scoring and provenance metadata.
// Many results may reference the same chunk across queries; within one
// response each chunk appears at most once.
type SearchResult struct {
	Chunk Chunk
	Rank  int // Position in the result set, 1-based

	// Similarity is the vector-stage cosine similarity in [0, 1].
	Similarity float64

	// RerankScore is the normalized secondary relevance score in [0, 1].
	// Nil when the re-ranking stage did not run.
	RerankScore *float64

	// FinalScore is the blended score results are ordered by. Equal to
	// Similarity when no re-ranking was applied.
	FinalScore float64

	// KeywordMatch reports whether the chunk passed a required-substring
	// filter. Always false when no keyword filter was applied.
	KeywordMatch bool

	Strategy Strategy
}

// Validate checks the scoring invariants of a populated result
func (sr *SearchResult) Validate() error {
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	if sr.Similarity < 0 || sr.Similarity > 1 {
		return ErrInvalidScore
	}
	if sr.FinalScore < 0 || sr.FinalScore > 1 {
		return ErrInvalidScore
	}
	if sr.RerankScore != nil && (*sr.RerankScore < 0 || *sr.RerankScore > 1) {
		return ErrInvalidScore
	}
	if sr.Chunk.Path == "" {
		return ErrMissingPath
	}
	return nil
}
