package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/notectx/notectx-mcp/pkg/types"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	tuning Tuning
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore creates a new SQLite-backed store at dbPath
func NewSQLiteStore(dbPath string, tuning Tuning) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db, tuning: tuning.normalize()}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Tuning returns the active tuning configuration
func (s *SQLiteStore) Tuning() Tuning {
	return s.tuning
}

const chunkColumns = `c.id, c.chunk_key, c.path, c.heading, c.ordinal, c.content,
	c.token_count, c.word_count, c.char_count, c.tags, c.note_type,
	c.category, c.subcategory, c.year, c.month, c.day,
	c.doc_mtime, c.doc_size, c.doc_word_count`

// UpsertChunks persists chunks with their embeddings in one transaction.
// Idempotent at the (path, heading, ordinal) identity.
func (s *SQLiteStore) UpsertChunks(ctx context.Context, chunks []types.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", ErrDimensionMismatch, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range chunks {
		if err := upsertChunk(ctx, tx, &chunks[i], vectors[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

func upsertChunk(ctx context.Context, tx *sql.Tx, chunk *types.Chunk, vector []float32) error {
	if err := chunk.Validate(); err != nil {
		return fmt.Errorf("chunk %s#%d: %w", chunk.Path, chunk.Ordinal, err)
	}

	query := `
		INSERT INTO chunks (chunk_key, path, heading, ordinal, content,
			token_count, word_count, char_count, tags, note_type,
			category, subcategory, year, month, day,
			doc_mtime, doc_size, doc_word_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, heading, ordinal) DO UPDATE SET
			chunk_key = excluded.chunk_key,
			content = excluded.content,
			token_count = excluded.token_count,
			word_count = excluded.word_count,
			char_count = excluded.char_count,
			tags = excluded.tags,
			note_type = excluded.note_type,
			category = excluded.category,
			subcategory = excluded.subcategory,
			year = excluded.year,
			month = excluded.month,
			day = excluded.day,
			doc_mtime = excluded.doc_mtime,
			doc_size = excluded.doc_size,
			doc_word_count = excluded.doc_word_count,
			updated_at = excluded.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		chunk.Key(), chunk.Path, chunk.Heading, chunk.Ordinal, chunk.Content,
		chunk.TokenCount, chunk.WordCount, chunk.CharCount,
		encodeTags(chunk.Tags), string(chunk.NoteType),
		chunk.Facets.Category, chunk.Facets.Subcategory,
		chunk.Facets.Year, chunk.Facets.Month, chunk.Facets.Day,
		chunk.DocStats.ModTime, chunk.DocStats.SizeBytes, chunk.DocStats.WordCount,
		time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s#%d: %w", chunk.Path, chunk.Ordinal, err)
	}

	var chunkID int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM chunks WHERE path = ? AND heading = ? AND ordinal = ?",
		chunk.Path, chunk.Heading, chunk.Ordinal).Scan(&chunkID)
	if err != nil {
		return fmt.Errorf("failed to resolve chunk id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, vector, dimension)
		VALUES (?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension
	`, chunkID, serializeVector(vector), len(vector))
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	return nil
}

// DeleteByPath removes every chunk owned by path and returns the count
func (s *SQLiteStore) DeleteByPath(ctx context.Context, path string) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE path = ?", path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Query returns the k nearest candidates by cosine similarity
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Candidate, error) {
	if k <= 0 {
		return []Candidate{}, nil
	}
	if VectorExtensionAvailable {
		return s.queryOptimized(ctx, vector, k, filter)
	}
	return s.queryFallback(ctx, vector, k, filter)
}

// GetByMetadata returns unordered chunks matching a metadata filter
func (s *SQLiteStore) GetByMetadata(ctx context.Context, filter *Filter) ([]types.Chunk, error) {
	query := "SELECT " + chunkColumns + " FROM chunks c WHERE 1=1"
	var args []interface{}
	query, args = applyFilter(query, args, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []types.Chunk
	for rows.Next() {
		chunk, _, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// ListPathStates groups chunk metadata by path into reconciliation
// fingerprints
func (s *SQLiteStore) ListPathStates(ctx context.Context) ([]types.PathState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, MAX(doc_mtime), MAX(doc_size), MAX(doc_word_count)
		FROM chunks
		GROUP BY path
		ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var states []types.PathState
	for rows.Next() {
		var state types.PathState
		var mtime int64
		if err := rows.Scan(&state.Path, &mtime, &state.SizeBytes, &state.WordCount); err != nil {
			return nil, err
		}
		state.ModTime = time.Unix(mtime, 0)
		states = append(states, state)
	}
	return states, rows.Err()
}

// CountChunks returns the number of persisted chunks
func (s *SQLiteStore) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

// applyFilter appends WHERE clauses for a metadata/content filter
func applyFilter(query string, args []interface{}, filter *Filter) (string, []interface{}) {
	if filter == nil {
		return query, args
	}

	if filter.PathPrefix != "" {
		query += ` AND c.path LIKE ? ESCAPE '\'`
		args = append(args, likePrefix(filter.PathPrefix))
	}
	for _, tag := range filter.Tags {
		query += " AND c.tags LIKE ?"
		args = append(args, "%,"+strings.ToLower(tag)+",%")
	}
	if len(filter.NoteTypes) > 0 {
		query += " AND c.note_type IN (" + placeholders(len(filter.NoteTypes)) + ")"
		for _, nt := range filter.NoteTypes {
			args = append(args, nt)
		}
	}
	if filter.Category != "" {
		query += " AND c.category = ?"
		args = append(args, filter.Category)
	}
	if filter.Year != 0 {
		query += " AND c.year = ?"
		args = append(args, filter.Year)
	}
	if filter.Month != 0 {
		query += " AND c.month = ?"
		args = append(args, filter.Month)
	}
	if filter.Day != 0 {
		query += " AND c.day = ?"
		args = append(args, filter.Day)
	}
	if filter.ContentSubstring != "" {
		query += " AND instr(lower(c.content), lower(?)) > 0"
		args = append(args, filter.ContentSubstring)
	}

	return query, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// likePrefix escapes LIKE metacharacters in a literal prefix
func likePrefix(prefix string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(prefix) + "%"
}

// encodeTags stores a tag list as ",a,b," so a single LIKE matches one tag
func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "," + strings.Join(tags, ",") + ","
}

// decodeTags reverses encodeTags
func decodeTags(encoded string) []string {
	trimmed := strings.Trim(encoded, ",")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ",")
}

// scanChunk reads one chunk row, returning the chunk and its rowid
func scanChunk(rows *sql.Rows) (types.Chunk, int64, error) {
	var chunk types.Chunk
	var id int64
	var key, tags, noteType string

	err := rows.Scan(&id, &key, &chunk.Path, &chunk.Heading, &chunk.Ordinal,
		&chunk.Content, &chunk.TokenCount, &chunk.WordCount, &chunk.CharCount,
		&tags, &noteType,
		&chunk.Facets.Category, &chunk.Facets.Subcategory,
		&chunk.Facets.Year, &chunk.Facets.Month, &chunk.Facets.Day,
		&chunk.DocStats.ModTime, &chunk.DocStats.SizeBytes, &chunk.DocStats.WordCount)
	if err != nil {
		return chunk, 0, fmt.Errorf("failed to scan chunk: %w", err)
	}

	chunk.Tags = decodeTags(tags)
	chunk.NoteType = types.NoteType(noteType)
	return chunk, id, nil
}
