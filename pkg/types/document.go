package types

import (
	"strings"
	"time"
	"unicode"
)

// NoteType is a coarse classification of a document derived at ingestion
type NoteType string

const (
	NoteDated     NoteType = "dated"     // Daily/journal note under a date path
	NoteTemplated NoteType = "templated" // Front-matter driven note from a template
	NoteDiagram   NoteType = "diagram"   // Mostly diagram/code-fence content
	NotePlain     NoteType = "plain"     // Everything else
)

// PathFacets are retrieval facets inferred from a document's relative path
type PathFacets struct {
	Year        int
	Month       int
	Day         int
	Category    string // First directory level
	Subcategory string // Second directory level
}

// Document represents a note file identified by its stable relative path.
// It is created by the consistency service, read by the chunker, and never
// mutated by the retrieval path.
type Document struct {
	// Identity
	Path string // Relative to corpus root, forward slashes

	// Content
	Content   string
	WordCount int

	// File stats
	ModTime   time.Time
	CreatedAt time.Time
	SizeBytes int64

	// Derived metadata, validated once at ingestion
	Tags   []string // Front-matter tags plus inline hashtags, deduplicated
	Facets PathFacets
	Type   NoteType
}

// Validate checks the invariants required before a document enters the
// ingestion pipeline. Empty content is valid: it produces zero chunks.
func (d *Document) Validate() error {
	if d.Path == "" {
		return ErrMissingPath
	}
	if strings.Contains(d.Path, "..") {
		return ErrInvalidPath
	}
	switch d.Type {
	case NoteDated, NoteTemplated, NoteDiagram, NotePlain:
	default:
		return ErrInvalidNoteType
	}
	return nil
}

// ComputeWordCount counts whitespace-separated words in the content
func (d *Document) ComputeWordCount() int {
	d.WordCount = CountWords(d.Content)
	return d.WordCount
}

// CountWords counts whitespace-separated words in text
func CountWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
		} else if !inWord {
			inWord = true
			count++
		}
	}
	return count
}
