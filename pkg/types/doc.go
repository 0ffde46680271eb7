// Package types provides shared type definitions for the notectx MCP server.
//
// This package defines domain types used across multiple components of
// notectx, including documents, chunks, sync plans, and search results.
//
// # Core Types
//
// Document represents a note file from the corpus with its derived metadata:
//
//	doc := &types.Document{
//	    Path:    "projects/auth/jwt.md",
//	    Content: rawText,
//	    Tags:    []string{"auth", "jwt"},
//	}
//
// Chunk represents a bounded, embeddable section of a document:
//
//	chunk := &types.Chunk{
//	    Path:    doc.Path,
//	    Heading: "Token rotation",
//	    Ordinal: 2,
//	    Content: sectionText,
//	}
//
// A chunk's storage key is derived deterministically from
// (path, heading, ordinal), so re-ingesting identical content produces
// stable identifiers:
//
//	key := chunk.Key() // sha256 hex of "path|heading|ordinal"
//
// # Validation
//
// Domain types implement validation methods that run once at ingestion time:
//
//	if err := chunk.Validate(); err != nil {
//	    log.Printf("skipping chunk: %v", err)
//	}
//
// # Search Results
//
// SearchResult combines a chunk with relevance scoring and provenance:
//
//	result := types.SearchResult{
//	    Chunk:      chunk,
//	    Similarity: 0.87,
//	    FinalScore: 0.91,
//	    Strategy:   types.StrategyReranked,
//	}
//
// Scores are normalized to [0, 1], higher is better. Result ordering is the
// primary contract consumers depend on.
package types
