package expand

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	variants []Variant
	err      error
}

func (s *stubGenerator) Generate(_ context.Context, _ string) ([]Variant, error) {
	return s.variants, s.err
}

func TestExpander_RuleVariants(t *testing.T) {
	e := NewExpander()
	variants := e.Expand(context.Background(), "meeting notes from tuesday", 5)

	require.NotEmpty(t, variants)
	texts := make([]string, len(variants))
	for i, v := range variants {
		texts[i] = v.Text
	}
	assert.Contains(t, texts, "standup notes from tuesday")
	assert.Contains(t, texts, "meeting entries from tuesday")
}

func TestExpander_NeverReturnsOriginal(t *testing.T) {
	e := NewExpander()
	for _, v := range e.Expand(context.Background(), "todo list", 10) {
		assert.NotEqual(t, "todo list", v.Text)
	}
}

func TestExpander_MaxBound(t *testing.T) {
	e := NewExpander()
	variants := e.Expand(context.Background(), "fix config error in setup", 2)
	assert.Len(t, variants, 2)

	assert.Nil(t, e.Expand(context.Background(), "fix the bug", 0))
	assert.Nil(t, e.Expand(context.Background(), "   ", 5))
}

func TestExpander_NoSynonymsNoVariants(t *testing.T) {
	e := NewExpander()
	assert.Empty(t, e.Expand(context.Background(), "xylophone quartet", 5))
}

func TestExpander_GeneratorPreferred(t *testing.T) {
	gen := &stubGenerator{variants: []Variant{
		{Text: "rewritten query", Confidence: 0.9},
	}}
	e := NewExpander(WithGenerator(gen))

	variants := e.Expand(context.Background(), "meeting notes", 5)
	require.Len(t, variants, 1)
	assert.Equal(t, "rewritten query", variants[0].Text)
	assert.InDelta(t, 0.9, variants[0].Confidence, 1e-9)
}

func TestExpander_LowConfidenceGeneratorLosesToRules(t *testing.T) {
	gen := &stubGenerator{variants: []Variant{
		{Text: "meeting notes rewritten", Confidence: 0.01},
	}}
	e := NewExpander(WithGenerator(gen))

	// Rule variants carry 0.5; the 0.01 generator output must not win
	variants := e.Expand(context.Background(), "meeting notes", 5)
	require.NotEmpty(t, variants)
	for _, v := range variants {
		assert.NotEqual(t, "meeting notes rewritten", v.Text)
		assert.InDelta(t, 0.5, v.Confidence, 1e-9)
	}
}

func TestExpander_LowConfidenceGeneratorWinsWhenRulesEmpty(t *testing.T) {
	gen := &stubGenerator{variants: []Variant{
		{Text: "percussion ensemble", Confidence: 0.1},
	}}
	e := NewExpander(WithGenerator(gen))

	// No synonym matches "xylophone quartet"; a weak variant beats none
	variants := e.Expand(context.Background(), "xylophone quartet", 5)
	require.Len(t, variants, 1)
	assert.Equal(t, "percussion ensemble", variants[0].Text)
}

func TestExpander_GeneratorFailureFallsBackToRules(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model unavailable")}
	e := NewExpander(WithGenerator(gen))

	variants := e.Expand(context.Background(), "meeting notes", 5)
	require.NotEmpty(t, variants)
	assert.Equal(t, "standup notes", variants[0].Text)
}

func TestExpander_GeneratorEchoFallsBackToRules(t *testing.T) {
	// A generator that only echoes the original adds nothing
	gen := &stubGenerator{variants: []Variant{
		{Text: "Meeting  Notes", Confidence: 1},
	}}
	e := NewExpander(WithGenerator(gen))

	variants := e.Expand(context.Background(), "meeting notes", 5)
	require.NotEmpty(t, variants)
	assert.Equal(t, "standup notes", variants[0].Text)
}

func TestExpander_CustomSynonyms(t *testing.T) {
	e := NewExpander(WithSynonyms(map[string][]string{
		"cat": {"feline"},
	}))

	variants := e.Expand(context.Background(), "the cat sat", 5)
	require.Len(t, variants, 1)
	assert.Equal(t, "the feline sat", variants[0].Text)
}

func TestDedupe_DropsDuplicates(t *testing.T) {
	variants := dedupe("base", []Variant{
		{Text: "alpha"},
		{Text: "  ALPHA  "},
		{Text: "base"},
		{Text: ""},
		{Text: "beta"},
	}, 10)

	require.Len(t, variants, 2)
	assert.Equal(t, "alpha", variants[0].Text)
	assert.Equal(t, "beta", variants[1].Text)
}
