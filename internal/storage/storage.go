package storage

import (
	"context"
	"errors"

	"github.com/notectx/notectx-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when the backing store cannot be reached.
	// Distinct from an empty result set.
	ErrUnavailable = errors.New("vector store unavailable")
	// ErrDimensionMismatch is returned when chunk and vector counts or
	// vector dimensions disagree
	ErrDimensionMismatch = errors.New("chunks and embeddings do not align")
)

// Store is the vector store adapter the retrieval engine and consistency
// service share
type Store interface {
	// UpsertChunks persists chunks with their embeddings. Idempotent at
	// the (path, heading, ordinal) identity.
	UpsertChunks(ctx context.Context, chunks []types.Chunk, vectors [][]float32) error

	// DeleteByPath removes every chunk owned by a path, returning the count
	DeleteByPath(ctx context.Context, path string) (int, error)

	// Query returns the k nearest candidates by cosine similarity,
	// optionally constrained by metadata and content filters
	Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Candidate, error)

	// SearchKeyword returns chunks matching a full-text query, ranked by
	// normalized BM25 score
	SearchKeyword(ctx context.Context, query string, k int, filter *Filter) ([]Candidate, error)

	// GetByMetadata returns unordered chunks matching a metadata filter
	GetByMetadata(ctx context.Context, filter *Filter) ([]types.Chunk, error)

	// ListPathStates returns the per-path fingerprint of the index,
	// grouped from chunk metadata, for startup reconciliation
	ListPathStates(ctx context.Context) ([]types.PathState, error)

	// CountChunks returns the number of persisted chunks
	CountChunks(ctx context.Context) (int, error)

	Close() error
}

// Filter narrows queries by inherited metadata and, optionally, by a
// required content substring
type Filter struct {
	PathPrefix string
	Tags       []string // All listed tags must be present
	NoteTypes  []string
	Category   string
	Year       int
	Month      int
	Day        int

	// ContentSubstring restricts candidates to chunks whose raw text
	// contains this substring. Trades recall for precision; the engine
	// only applies it to technical queries.
	ContentSubstring string

	// MinSimilarity drops candidates below this cosine similarity
	MinSimilarity float64
}

// Candidate is one ranked hit from a similarity query
type Candidate struct {
	Chunk      types.Chunk
	Similarity float64
}

// Tuning is the index tuning configuration surface. Construction-time
// connectivity and search-time breadth trade build cost and memory against
// recall; it scales with corpus size, never decided at query time.
type Tuning struct {
	// IndexNeighbors is the per-record connectivity used when the vector
	// extension builds its graph index
	IndexNeighbors int

	// SearchBreadth is the candidate pool examined per query before the
	// top k are returned
	SearchBreadth int
}

// TuningForCorpus picks tuning appropriate to a corpus size. Small corpora
// favor cheaper settings; large corpora need higher connectivity and
// broader search to preserve recall.
func TuningForCorpus(chunkCount int) Tuning {
	switch {
	case chunkCount < 10_000:
		return Tuning{IndexNeighbors: 16, SearchBreadth: 64}
	case chunkCount < 100_000:
		return Tuning{IndexNeighbors: 32, SearchBreadth: 128}
	default:
		return Tuning{IndexNeighbors: 48, SearchBreadth: 256}
	}
}

// normalize applies defaults for zero fields
func (t Tuning) normalize() Tuning {
	if t.IndexNeighbors <= 0 {
		t.IndexNeighbors = 16
	}
	if t.SearchBreadth <= 0 {
		t.SearchBreadth = 64
	}
	return t
}
