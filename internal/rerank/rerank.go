// Package rerank re-scores search candidates with a cross-encoder style
// relevance model. The quality search tier blends these scores with vector
// similarity; when no scorer is reachable the engine degrades to vector
// order alone.
package rerank

import (
	"context"
	"errors"
	"strings"
)

// Common errors
var (
	ErrScorerFailed = errors.New("rerank scorer failed")
	ErrNoAPIKey     = errors.New("rerank API key not set")
)

// DefaultBlendWeight is the share of the final score taken from the
// rerank model; the remainder comes from vector similarity.
const DefaultBlendWeight = 0.65

// Scorer scores query/document relevance. Scores are in [0, 1], higher
// is more relevant.
type Scorer interface {
	// Score returns one relevance score per document, aligned by index
	Score(ctx context.Context, query string, documents []string) ([]float64, error)

	// Name identifies the scorer for logging and result metadata
	Name() string

	Close() error
}

// Blend combines a rerank score with the original vector similarity.
// weight is the rerank share; values outside (0, 1] fall back to the
// default.
func Blend(vectorScore, rerankScore, weight float64) float64 {
	if weight <= 0 || weight > 1 {
		weight = DefaultBlendWeight
	}
	return weight*rerankScore + (1-weight)*vectorScore
}

// LexicalScorer is a local fallback scorer based on term overlap between
// the query and the document. Crude, but deterministic and dependency-free.
type LexicalScorer struct{}

// NewLexicalScorer creates a LexicalScorer
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

func (s *LexicalScorer) Score(_ context.Context, query string, documents []string) ([]float64, error) {
	queryTerms := termSet(query)
	scores := make([]float64, len(documents))
	if len(queryTerms) == 0 {
		return scores, nil
	}

	for i, doc := range documents {
		docTerms := termSet(doc)
		matched := 0
		for term := range queryTerms {
			if docTerms[term] {
				matched++
			}
		}
		scores[i] = float64(matched) / float64(len(queryTerms))
	}
	return scores, nil
}

func (s *LexicalScorer) Name() string { return "lexical" }

func (s *LexicalScorer) Close() error { return nil }

func termSet(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()[]\"'")
		if len(word) > 2 {
			terms[word] = true
		}
	}
	return terms
}
