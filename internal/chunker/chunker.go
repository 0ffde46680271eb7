package chunker

import (
	"regexp"
	"strings"

	"github.com/notectx/notectx-mcp/pkg/types"
)

const (
	// DefaultMaxTokens is the default per-chunk token budget
	DefaultMaxTokens = 512

	// DefaultOverlapTokens is the default window-overlap token budget
	DefaultOverlapTokens = 64
)

// Config controls chunk sizing. Both budgets are token estimates.
type Config struct {
	MaxTokens     int
	OverlapTokens int
}

// Chunker splits documents into bounded, overlap-aware chunks
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// New creates a Chunker, applying defaults for zero or negative budgets
func New(cfg Config) *Chunker {
	c := &Chunker{
		maxTokens:     cfg.MaxTokens,
		overlapTokens: cfg.OverlapTokens,
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.overlapTokens < 0 {
		c.overlapTokens = DefaultOverlapTokens
	}
	if c.overlapTokens >= c.maxTokens {
		c.overlapTokens = c.maxTokens / 4
	}
	return c
}

var (
	headingPattern  = regexp.MustCompile(`^(#{1,3})\s+(.*)$`)
	sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]+[)"']?|[^.!?\n]+\n|[^.!?\n]+$`)
)

// section is an intermediate unit between heading split and window split
type section struct {
	heading string
	content string
}

// Chunk splits a document into ordered chunks. It never fails: an empty
// document produces zero chunks, which callers treat as a valid result.
func (c *Chunker) Chunk(doc *types.Document) []types.Chunk {
	sections := splitSections(doc.Content)

	var chunks []types.Chunk
	ordinal := 0
	for _, sec := range sections {
		for _, content := range c.windows(sec.content) {
			chunk := types.Chunk{
				Path:     doc.Path,
				Heading:  sec.heading,
				Ordinal:  ordinal,
				Content:  content,
				Tags:     doc.Tags,
				Facets:   doc.Facets,
				NoteType: doc.Type,
				DocStats: types.DocStats{
					ModTime:   doc.ModTime.Unix(),
					SizeBytes: doc.SizeBytes,
					WordCount: doc.WordCount,
				},
			}
			chunk.ComputeCounts()
			chunks = append(chunks, chunk)
			ordinal++
		}
	}

	return chunks
}

// splitSections segments content at heading boundaries (levels 1-3). Content
// before the first heading becomes an unlabeled section; sections with no
// content are skipped.
func splitSections(content string) []section {
	lines := strings.Split(content, "\n")

	var sections []section
	current := section{}
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text != "" {
			current.content = text
			sections = append(sections, current)
		}
		body.Reset()
	}

	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence {
			if m := headingPattern.FindStringSubmatch(line); m != nil {
				flush()
				current = section{heading: strings.TrimSpace(m[2])}
				continue
			}
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return sections
}

// windows applies the sentence sliding window to one section. Sections
// within budget come back as a single window.
func (c *Chunker) windows(content string) []string {
	if types.EstimateTokenCount(content) <= c.maxTokens {
		return []string{content}
	}

	sentences := splitSentences(content)
	sentences = c.boundSentences(sentences)

	// Character accounting mirrors the token estimator exactly, separators
	// included, so the emitted chunk's token count honors the budget.
	var out []string
	var window []string
	windowChars := 0

	flush := func() {
		if len(window) > 0 {
			out = append(out, strings.Join(window, " "))
		}
	}

	fits := func(s string) bool {
		chars := windowChars + len(s)
		if len(window) > 0 {
			chars++ // joining space
		}
		return chars/types.TokensPerChar <= c.maxTokens
	}

	for _, s := range sentences {
		if len(window) > 0 && !fits(s) {
			flush()
			window, windowChars = c.carryOverlap(window)
			if len(window) > 0 && !fits(s) {
				// Overlap plus this sentence would overflow: drop the
				// overlap rather than the boundedness invariant.
				window, windowChars = nil, 0
			}
		}
		if len(window) > 0 {
			windowChars++
		}
		window = append(window, s)
		windowChars += len(s)
	}
	flush()

	return out
}

// carryOverlap selects the trailing whole-sentence run of the previous
// window whose cumulative token estimate reaches but does not exceed the
// overlap budget. At least one sentence is always left behind so windows
// make forward progress.
func (c *Chunker) carryOverlap(window []string) ([]string, int) {
	carried := 0
	carriedChars := 0
	for i := len(window) - 1; i >= 0 && carried < len(window)-1; i-- {
		chars := carriedChars + len(window[i])
		if carried > 0 {
			chars++
		}
		if chars/types.TokensPerChar > c.overlapTokens {
			break
		}
		carriedChars = chars
		carried++
	}
	if carried == 0 {
		return nil, 0
	}
	next := make([]string, carried)
	copy(next, window[len(window)-carried:])
	return next, carriedChars
}

// splitSentences breaks text into sentences, falling back to line and then
// whole-text granularity so malformed input still chunks.
func splitSentences(text string) []string {
	matches := sentencePattern.FindAllString(text, -1)
	sentences := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m != "" {
			sentences = append(sentences, m)
		}
	}
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		sentences = []string{trimmed}
	}
	return sentences
}

// boundSentences hard-splits any single sentence whose token estimate
// exceeds the chunk budget, breaking at word boundaries. This is the
// worst-case degradation path; it keeps the boundedness invariant even for
// wall-of-text input with no punctuation.
func (c *Chunker) boundSentences(sentences []string) []string {
	maxChars := c.maxTokens * types.TokensPerChar

	var out []string
	for _, s := range sentences {
		if len(s) <= maxChars {
			out = append(out, s)
			continue
		}
		out = append(out, forceSplit(s, maxChars)...)
	}
	return out
}

// forceSplit splits text into pieces of at most maxChars, preferring word
// boundaries within the last 100 characters of the cut point
func forceSplit(text string, maxChars int) []string {
	var parts []string
	for len(text) > 0 {
		cut := maxChars
		if cut >= len(text) {
			parts = append(parts, text)
			break
		}
		for i := cut; i > cut-100 && i > 0; i-- {
			if text[i] == ' ' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	return parts
}
