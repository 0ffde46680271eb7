package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Chunk is the atomic retrievable unit: a bounded section of one document.
// All chunks for a path are deleted and fully replaced when the document
// changes; there is no partial-chunk update.
type Chunk struct {
	// Identity: (Path, Heading, Ordinal) is unique within the index.
	// Ordinal is the chunk's position within its document, 0-based.
	Path    string
	Heading string
	Ordinal int

	// Content
	Content    string
	TokenCount int
	WordCount  int
	CharCount  int

	// Inherited document metadata
	Tags      []string
	Facets    PathFacets
	NoteType  NoteType
	DocStats  DocStats
}

// DocStats carries the owning document's file stats, used by the
// consistency service to detect modified paths without re-reading content.
type DocStats struct {
	ModTime   int64 // Unix seconds
	SizeBytes int64
	WordCount int // Whole-document word count
}

// Key derives the chunk's deterministic storage key. The storage layer adds
// an insertion-order salt so identity survives even a hash collision.
func (c *Chunk) Key() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", c.Path, c.Heading, c.Ordinal)))
	return hex.EncodeToString(h[:])
}

// ComputeCounts fills the token, word, and char counts from the content
func (c *Chunk) ComputeCounts() {
	c.CharCount = len(c.Content)
	c.TokenCount = EstimateTokenCount(c.Content)
	c.WordCount = CountWords(c.Content)
}

// Validate performs the structural checks required before persisting a chunk.
// A failing chunk is skipped and logged; it never aborts the batch.
func (c *Chunk) Validate() error {
	if c.Path == "" {
		return ErrMissingPath
	}
	if c.Content == "" {
		return ErrEmptyContent
	}
	if c.Ordinal < 0 {
		return ErrInvalidOrdinal
	}
	return nil
}

// EstimateTokenCount estimates the number of tokens in a string
func EstimateTokenCount(text string) int {
	return len(text) / TokensPerChar
}
