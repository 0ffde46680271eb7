// Package expand rewrites search queries into alternative phrasings used
// to broaden recall on the highest-quality search tier.
package expand

import (
	"context"
	"strings"
)

// Variant is one alternative phrasing of a query
type Variant struct {
	Text       string
	Confidence float64
}

// Generator produces query variants, typically via a language model.
// Implementations may fail; the Expander falls back to rule-based
// expansion when they do.
type Generator interface {
	Generate(ctx context.Context, query string) ([]Variant, error)
}

// Expander produces query variants. With no Generator configured it is
// purely rule-based.
type Expander struct {
	gen      Generator
	synonyms map[string][]string
}

// Option configures an Expander
type Option func(*Expander)

// WithGenerator attaches a generative rewriter tried before the rules
func WithGenerator(gen Generator) Option {
	return func(e *Expander) { e.gen = gen }
}

// WithSynonyms replaces the built-in synonym table
func WithSynonyms(table map[string][]string) Option {
	return func(e *Expander) { e.synonyms = table }
}

// NewExpander creates an Expander with the default synonym table
func NewExpander(opts ...Option) *Expander {
	e := &Expander{synonyms: defaultSynonyms()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns up to max variants of query, best first. The original
// query is never included. Both the generator and the rules run; the set
// with the higher confidence wins. Expansion never fails: if the generator
// errors or returns nothing useful, rule-based variants are returned
// instead.
func (e *Expander) Expand(ctx context.Context, query string, max int) []Variant {
	if max <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}

	var generated []Variant
	if e.gen != nil {
		if variants, err := e.gen.Generate(ctx, query); err == nil {
			generated = dedupe(query, variants, max)
		}
	}
	ruled := dedupe(query, e.ruleVariants(query), max)

	switch {
	case len(generated) == 0:
		return ruled
	case len(ruled) == 0:
		return generated
	case maxConfidence(generated) >= maxConfidence(ruled):
		return generated
	default:
		return ruled
	}
}

// maxConfidence returns the highest confidence in a non-empty variant set
func maxConfidence(variants []Variant) float64 {
	best := variants[0].Confidence
	for _, v := range variants[1:] {
		if v.Confidence > best {
			best = v.Confidence
		}
	}
	return best
}

// ruleVariants substitutes one known synonym at a time, producing a
// variant per substitution
func (e *Expander) ruleVariants(query string) []Variant {
	words := strings.Fields(query)
	var variants []Variant

	for i, word := range words {
		key := strings.ToLower(strings.Trim(word, ".,;:!?"))
		for _, syn := range e.synonyms[key] {
			replaced := make([]string, len(words))
			copy(replaced, words)
			replaced[i] = syn
			variants = append(variants, Variant{
				Text:       strings.Join(replaced, " "),
				Confidence: 0.5,
			})
		}
	}
	return variants
}

// dedupe drops the original query, duplicates, and blanks, keeping order
func dedupe(original string, variants []Variant, max int) []Variant {
	seen := map[string]bool{normalizeKey(original): true}
	out := make([]Variant, 0, max)

	for _, v := range variants {
		key := normalizeKey(v.Text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
		if len(out) == max {
			break
		}
	}
	return out
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// defaultSynonyms covers common note-taking vocabulary
func defaultSynonyms() map[string][]string {
	return map[string][]string{
		"meeting":  {"standup", "sync"},
		"todo":     {"task", "action item"},
		"task":     {"todo"},
		"note":     {"entry"},
		"notes":    {"entries"},
		"idea":     {"thought"},
		"bug":      {"issue", "defect"},
		"issue":    {"bug"},
		"fix":      {"repair", "resolve"},
		"plan":     {"roadmap"},
		"project":  {"initiative"},
		"deadline": {"due date"},
		"recipe":   {"instructions"},
		"setup":    {"configuration", "install"},
		"config":   {"configuration", "settings"},
		"error":    {"failure", "fault"},
		"journal":  {"diary", "log"},
		"book":     {"reading"},
	}
}
