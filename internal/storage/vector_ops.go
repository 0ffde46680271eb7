package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/notectx/notectx-mcp/pkg/types"
)

// queryOptimized uses the sqlite-vec extension for SQL-based similarity search
func (s *SQLiteStore) queryOptimized(ctx context.Context, vector []float32, k int, filter *Filter) ([]Candidate, error) {
	queryVectorBlob := serializeVector(vector)

	// sqlite-vec's vec_distance_cosine returns distance (lower is better);
	// convert to similarity so both paths agree
	query := `
		SELECT ` + chunkColumns + `,
			1.0 - vec_distance_cosine(e.vector, ?) as similarity
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		WHERE 1=1
	`
	args := []interface{}{queryVectorBlob}
	query, args = applyFilter(query, args, filter)

	if filter != nil && filter.MinSimilarity > 0 {
		query += " AND (1.0 - vec_distance_cosine(e.vector, ?)) >= ?"
		args = append(args, queryVectorBlob, filter.MinSimilarity)
	}

	// Examine the tuned candidate pool, then keep the top k
	pool := k
	if s.tuning.SearchBreadth > pool {
		pool = s.tuning.SearchBreadth
	}
	query += " ORDER BY similarity DESC LIMIT ?"
	args = append(args, pool)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]Candidate, 0, k)
	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// queryFallback computes cosine similarity in Go. Used when the vector
// extension is not available (purego builds).
func (s *SQLiteStore) queryFallback(ctx context.Context, vector []float32, k int, filter *Filter) ([]Candidate, error) {
	query := `
		SELECT ` + chunkColumns + `,
			e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		WHERE 1=1
	`
	var args []interface{}
	query, args = applyFilter(query, args, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]Candidate, 0, 256)
	for rows.Next() {
		chunk, _, blob, err := scanChunkWithBlob(rows)
		if err != nil {
			return nil, err
		}

		stored := deserializeVector(blob)
		if len(stored) != len(vector) {
			continue // dimension mismatch, skip
		}

		similarity := cosineSimilarity(vector, stored)
		if filter != nil && filter.MinSimilarity > 0 && similarity < filter.MinSimilarity {
			continue
		}

		candidates = append(candidates, Candidate{Chunk: chunk, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// SearchKeyword performs BM25 full-text search over chunk content and
// headings using FTS5
func (s *SQLiteStore) SearchKeyword(ctx context.Context, queryText string, k int, filter *Filter) ([]Candidate, error) {
	sanitized := sanitizeFTSQuery(queryText)
	if sanitized == "" {
		return []Candidate{}, nil
	}
	if k <= 0 {
		return []Candidate{}, nil
	}

	query := `
		SELECT ` + chunkColumns + `,
			bm25(chunks_fts) as score
		FROM chunks_fts
		INNER JOIN chunks c ON chunks_fts.rowid = c.id
		WHERE chunks_fts MATCH ?
	`
	args := []interface{}{sanitized}
	query, args = applyFilter(query, args, filter)

	// BM25 scores are negative, lower is better
	query += " ORDER BY score LIMIT ?"
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]Candidate, 0, k)
	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		// Normalize BM25 into (0, 1], typical scores fall in [-50, 0]
		cand.Similarity = 1.0 / (1.0 + math.Abs(cand.Similarity)/50.0)
		if filter != nil && filter.MinSimilarity > 0 && cand.Similarity < filter.MinSimilarity {
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}

// scanCandidate reads a chunk row with a trailing score column
func scanCandidate(rows *sql.Rows) (Candidate, error) {
	var cand Candidate
	var id int64
	var key, tags, noteType string

	err := rows.Scan(&id, &key, &cand.Chunk.Path, &cand.Chunk.Heading, &cand.Chunk.Ordinal,
		&cand.Chunk.Content, &cand.Chunk.TokenCount, &cand.Chunk.WordCount, &cand.Chunk.CharCount,
		&tags, &noteType,
		&cand.Chunk.Facets.Category, &cand.Chunk.Facets.Subcategory,
		&cand.Chunk.Facets.Year, &cand.Chunk.Facets.Month, &cand.Chunk.Facets.Day,
		&cand.Chunk.DocStats.ModTime, &cand.Chunk.DocStats.SizeBytes, &cand.Chunk.DocStats.WordCount,
		&cand.Similarity)
	if err != nil {
		return cand, fmt.Errorf("failed to scan candidate: %w", err)
	}

	cand.Chunk.Tags = decodeTags(tags)
	cand.Chunk.NoteType = types.NoteType(noteType)
	return cand, nil
}

// scanChunkWithBlob reads a chunk row with a trailing vector blob column
func scanChunkWithBlob(rows *sql.Rows) (types.Chunk, int64, []byte, error) {
	var chunk types.Chunk
	var id int64
	var key, tags, noteType string
	var blob []byte

	err := rows.Scan(&id, &key, &chunk.Path, &chunk.Heading, &chunk.Ordinal,
		&chunk.Content, &chunk.TokenCount, &chunk.WordCount, &chunk.CharCount,
		&tags, &noteType,
		&chunk.Facets.Category, &chunk.Facets.Subcategory,
		&chunk.Facets.Year, &chunk.Facets.Month, &chunk.Facets.Day,
		&chunk.DocStats.ModTime, &chunk.DocStats.SizeBytes, &chunk.DocStats.WordCount,
		&blob)
	if err != nil {
		return chunk, 0, nil, fmt.Errorf("failed to scan chunk: %w", err)
	}

	chunk.Tags = decodeTags(tags)
	chunk.NoteType = types.NoteType(noteType)
	return chunk, id, blob, nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortCandidates sorts candidates by similarity descending, breaking ties
// by identity so ordering stays deterministic
func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Chunk.Key() < candidates[j].Chunk.Key()
	})
}

// FTS5 operator pattern for escaping Boolean operators
var ftsOperatorPattern = regexp.MustCompile(`\b(AND|OR|NOT|NEAR)\b`)

// sanitizeFTSQuery sanitizes a search query for FTS5 to prevent injection.
// Escapes special FTS5 operators and characters.
func sanitizeFTSQuery(query string) string {
	if query == "" {
		return ""
	}

	replacer := strings.NewReplacer(
		`"`, `\"`,
		`*`, `\*`,
		`(`, `\(`,
		`)`, `\)`,
	)
	escaped := replacer.Replace(query)

	escaped = ftsOperatorPattern.ReplaceAllStringFunc(escaped, func(match string) string {
		return `\` + match
	})

	return escaped
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
