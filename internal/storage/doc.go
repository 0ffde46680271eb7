// Package storage persists chunk records and serves similarity queries
// over them using SQLite.
//
// Each record carries the chunk's raw text, its embedding vector, and the
// full inherited document metadata (path, heading, ordinal, file stats, tag
// list, path facets, chunk stats). Record identity is derived from
// (path, heading, ordinal); the SQLite rowid acts as an insertion-order
// salt, so identity holds even under a hash collision of the derived key.
//
// # Build Modes
//
// Two build configurations select the SQLite driver:
//
//   - purego (default): modernc.org/sqlite, no C compiler, vector
//     similarity computed in Go
//   - sqlite_vec: mattn/go-sqlite3 with the sqlite-vec extension, distance
//     computed at the database layer
//
// Build with the extension:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...
//
// # Invariants
//
// UpsertChunks is idempotent at the (path, heading, ordinal) identity:
// re-ingesting identical content does not duplicate rows. Callers needing
// true replacement call DeleteByPath first — the consistency service always
// does.
//
// A query against a missing or closed store returns ErrUnavailable, which
// is distinct from an empty result set; callers must not conflate the two.
package storage
