package searcher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/notectx/notectx-mcp/internal/cache"
	"github.com/notectx/notectx-mcp/internal/embedder"
	"github.com/notectx/notectx-mcp/internal/expand"
	"github.com/notectx/notectx-mcp/internal/metrics"
	"github.com/notectx/notectx-mcp/internal/rerank"
	"github.com/notectx/notectx-mcp/internal/storage"
	"github.com/notectx/notectx-mcp/pkg/types"
)

// Tier selects the strategy trade-off between latency and quality
type Tier string

const (
	TierFastest  Tier = "fastest"  // vector similarity only
	TierFast     Tier = "fast"     // + keyword filter on technical queries
	TierBalanced Tier = "balanced" // + cross-encoder rerank
	TierQuality  Tier = "quality"  // + query expansion fan-out
)

// ErrEmptyQuery is returned when the query normalizes to nothing
var ErrEmptyQuery = errors.New("query cannot be empty")

// Request contains parameters for one search
type Request struct {
	Query    string
	Limit    int
	Tier     Tier
	Filter   *storage.Filter
	UseCache bool
}

// Response contains ranked results and execution metadata
type Response struct {
	Results      []types.SearchResult
	TotalResults int
	Tier         Tier
	Strategy     types.Strategy
	Duration     time.Duration
	CacheHit     bool

	// Degraded is set when an optional stage failed or was cut by the
	// request deadline and the response fell back to a cheaper strategy.
	// Degraded responses are flagged, never retried.
	Degraded bool

	// TargetMissed is set when the observed latency exceeded the tier's
	// target or the average final score fell below the minimum. Like
	// degradation, a missed target is flagged, never retried.
	TargetMissed bool

	// Expansions lists query variants that contributed candidates
	Expansions []string
}

// Options configure engine behavior beyond its collaborators
type Options struct {
	DefaultTier   Tier
	DefaultLimit  int
	MaxLimit      int
	RerankTopK    int
	MaxExpansions int
	BlendWeight   float64

	// LatencyTargets sets the per-tier latency budget; a slower response
	// is flagged TargetMissed. Missing tiers use the defaults.
	LatencyTargets map[Tier]time.Duration

	// MinAvgScore is the minimum average final score a non-empty
	// response must reach before it is flagged TargetMissed
	MinAvgScore float64
}

// Cheaper tiers promise tighter latency
var defaultLatencyTargets = map[Tier]time.Duration{
	TierFastest:  100 * time.Millisecond,
	TierFast:     250 * time.Millisecond,
	TierBalanced: 500 * time.Millisecond,
	TierQuality:  1500 * time.Millisecond,
}

// DefaultMinAvgScore is the default average-score floor for a response
const DefaultMinAvgScore = 0.2

func (o Options) withDefaults() Options {
	if o.DefaultTier == "" {
		o.DefaultTier = TierBalanced
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 10
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 100
	}
	if o.RerankTopK <= 0 {
		o.RerankTopK = 30
	}
	if o.MaxExpansions <= 0 {
		o.MaxExpansions = 3
	}
	if o.BlendWeight <= 0 || o.BlendWeight > 1 {
		o.BlendWeight = rerank.DefaultBlendWeight
	}
	targets := make(map[Tier]time.Duration, len(defaultLatencyTargets))
	for tier, target := range defaultLatencyTargets {
		targets[tier] = target
	}
	for tier, target := range o.LatencyTargets {
		if target > 0 {
			targets[tier] = target
		}
	}
	o.LatencyTargets = targets
	if o.MinAvgScore <= 0 || o.MinAvgScore > 1 {
		o.MinAvgScore = DefaultMinAvgScore
	}
	return o
}

// Engine coordinates the retrieval pipeline: normalize, cached query
// embedding, vector query, tier-dependent optional stages, stable rank,
// result caching.
type Engine struct {
	store    storage.Store
	embedder embedder.Embedder
	caches   *cache.Manager
	expander *expand.Expander
	scorer   rerank.Scorer
	metrics  *metrics.Metrics
	opts     Options
}

// NewEngine creates a retrieval engine. expander, scorer, and m may be nil;
// the corresponding stages are then skipped.
func NewEngine(store storage.Store, emb embedder.Embedder, caches *cache.Manager,
	expander *expand.Expander, scorer rerank.Scorer, m *metrics.Metrics, opts Options) *Engine {
	if m == nil {
		m = &metrics.Metrics{}
	}
	return &Engine{
		store:    store,
		embedder: emb,
		caches:   caches,
		expander: expander,
		scorer:   scorer,
		metrics:  m,
		opts:     opts.withDefaults(),
	}
}

// Search runs the retrieval pipeline for one request. Only a failing
// vector query is fatal; every optional stage degrades.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	e.metrics.SearchTotal.Add(1)

	e.applyDefaults(&req)
	normalized := normalizeQuery(req.Query)
	if normalized == "" {
		e.metrics.SearchErrors.Add(1)
		return nil, ErrEmptyQuery
	}

	if req.UseCache {
		if resp, ok := e.lookupResultCache(normalized, req); ok {
			resp.Duration = time.Since(start)
			e.flagTargetMiss(req.Tier, resp)
			e.metrics.CacheHits.Add(1)
			return resp, nil
		}
		e.metrics.CacheMisses.Add(1)
	}

	vector, err := e.queryEmbedding(ctx, normalized)
	if err != nil {
		e.metrics.SearchErrors.Add(1)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// Over-fetch so optional stages have candidates to work with
	fetchK := req.Limit * 2
	if tierUsesRerank(req.Tier) && e.opts.RerankTopK > fetchK {
		fetchK = e.opts.RerankTopK
	}

	candidates, err := e.store.Query(ctx, vector, fetchK, req.Filter)
	if err != nil {
		e.metrics.SearchErrors.Add(1)
		return nil, fmt.Errorf("vector query: %w", err)
	}

	resp := &Response{Tier: req.Tier, Strategy: types.StrategyVector}
	results := baseResults(candidates)

	// Optional stages, cheapest first. Each checks the remaining deadline
	// and degrades instead of failing the request.
	if req.Tier != TierFastest {
		results = e.applyKeywordFilter(ctx, normalized, fetchK, req, results, resp)
	}
	if req.Tier == TierQuality {
		results = e.applyExpansion(ctx, normalized, req, fetchK, results, resp)
	}
	if tierUsesRerank(req.Tier) {
		results = e.applyRerank(ctx, normalized, results, resp)
	}

	rankResults(results)
	results = pruneInvalid(results, resp)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	resp.Results = results
	resp.TotalResults = len(results)
	resp.Duration = time.Since(start)
	e.flagTargetMiss(req.Tier, resp)

	if resp.Degraded {
		e.metrics.SearchDegraded.Add(1)
	}
	if req.UseCache && len(results) > 0 {
		e.storeResultCache(normalized, req, resp)
	}
	e.metrics.ObserveSearchLatency(resp.Duration)
	return resp, nil
}

func (e *Engine) applyDefaults(req *Request) {
	if req.Tier == "" {
		req.Tier = e.opts.DefaultTier
	}
	if req.Limit <= 0 {
		req.Limit = e.opts.DefaultLimit
	}
	if req.Limit > e.opts.MaxLimit {
		req.Limit = e.opts.MaxLimit
	}
}

func tierUsesRerank(tier Tier) bool {
	return tier == TierBalanced || tier == TierQuality
}

// queryEmbedding returns the embedding for a normalized query, consulting
// the query-embedding cache first
func (e *Engine) queryEmbedding(ctx context.Context, normalized string) ([]float32, error) {
	key := cache.Key("query-embedding", e.embedder.Provider(), e.embedder.Model(), normalized)
	if e.caches != nil {
		if vector, ok := e.caches.Embeddings.Get(key); ok {
			return vector, nil
		}
	}

	e.metrics.EmbedCalls.Add(1)
	vector, err := e.embedder.Embed(ctx, normalized)
	if err != nil {
		e.metrics.EmbedErrors.Add(1)
		return nil, err
	}

	if e.caches != nil {
		e.caches.Embeddings.Put(key, vector)
	}
	return vector, nil
}

// applyKeywordFilter marks keyword matches; for technical queries it also
// fans out to the full-text index and restricts the set to matching
// candidates when any exist
func (e *Engine) applyKeywordFilter(ctx context.Context, normalized string, fetchK int,
	req Request, results []types.SearchResult, resp *Response) []types.SearchResult {
	terms := significantTerms(normalized)
	if len(terms) == 0 {
		return results
	}

	matched := 0
	for i := range results {
		content := strings.ToLower(results[i].Chunk.Content)
		for _, term := range terms {
			if strings.Contains(content, term) {
				results[i].KeywordMatch = true
				matched++
				break
			}
		}
	}

	if !isTechnicalQuery(normalized) {
		return results
	}

	// Technical queries also consult the full-text index; exact-token
	// hits the vector stage missed join the set as keyword matches
	if ctx.Err() != nil {
		resp.Degraded = true
	} else if hits, err := e.store.SearchKeyword(ctx, normalized, fetchK, req.Filter); err != nil {
		resp.Degraded = true
	} else {
		seen := make(map[string]int, len(results))
		for i, r := range results {
			seen[r.Chunk.Key()] = i
		}
		for _, hit := range hits {
			if i, ok := seen[hit.Chunk.Key()]; ok {
				if !results[i].KeywordMatch {
					results[i].KeywordMatch = true
					matched++
				}
				continue
			}
			results = append(results, types.SearchResult{
				Chunk:        hit.Chunk,
				Similarity:   hit.Similarity,
				FinalScore:   hit.Similarity,
				KeywordMatch: true,
				Strategy:     types.StrategyKeyword,
			})
			matched++
		}
	}

	// Precision filter only when it would not empty the result set
	if matched > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.KeywordMatch {
				filtered = append(filtered, r)
			}
		}
		results = filtered
		resp.Strategy = types.StrategyKeyword
	}
	return results
}

// pruneInvalid drops results violating the scoring invariants, keeping
// the response usable when a provider returns an out-of-range score
func pruneInvalid(results []types.SearchResult, resp *Response) []types.SearchResult {
	valid := results[:0]
	for _, r := range results {
		if err := r.Validate(); err != nil {
			resp.Degraded = true
			continue
		}
		valid = append(valid, r)
	}
	for i := range valid {
		valid[i].Rank = i + 1
	}
	return valid
}

// flagTargetMiss compares the response against the tier's latency target
// and the average-score floor. A miss is flagged, never retried.
func (e *Engine) flagTargetMiss(tier Tier, resp *Response) {
	if target := e.opts.LatencyTargets[tier]; target > 0 && resp.Duration > target {
		resp.TargetMissed = true
	}
	if n := len(resp.Results); n > 0 {
		sum := 0.0
		for _, r := range resp.Results {
			sum += r.FinalScore
		}
		if sum/float64(n) < e.opts.MinAvgScore {
			resp.TargetMissed = true
		}
	}
	if resp.TargetMissed {
		e.metrics.SearchTargetMissed.Add(1)
	}
}

// applyExpansion fans the query out to rule or model generated variants
// and merges their candidates into the working set
func (e *Engine) applyExpansion(ctx context.Context, normalized string, req Request, fetchK int,
	results []types.SearchResult, resp *Response) []types.SearchResult {
	if e.expander == nil {
		return results
	}
	if ctx.Err() != nil {
		resp.Degraded = true
		return results
	}

	variants := e.expander.Expand(ctx, normalized, e.opts.MaxExpansions)
	if len(variants) == 0 {
		return results
	}

	seen := make(map[string]int, len(results))
	for i, r := range results {
		seen[r.Chunk.Key()] = i
	}

	merged := false
	for _, variant := range variants {
		if ctx.Err() != nil {
			resp.Degraded = true
			break
		}

		vector, err := e.queryEmbedding(ctx, normalizeQuery(variant.Text))
		if err != nil {
			resp.Degraded = true
			continue
		}
		candidates, err := e.store.Query(ctx, vector, fetchK, req.Filter)
		if err != nil {
			// Expansion queries are optional even though the primary
			// vector query is not
			resp.Degraded = true
			continue
		}

		merged = true
		resp.Expansions = append(resp.Expansions, variant.Text)
		for _, cand := range candidates {
			key := cand.Chunk.Key()
			if i, ok := seen[key]; ok {
				if cand.Similarity > results[i].Similarity {
					results[i].Similarity = cand.Similarity
					results[i].FinalScore = cand.Similarity
				}
				continue
			}
			seen[key] = len(results)
			results = append(results, types.SearchResult{
				Chunk:      cand.Chunk,
				Similarity: cand.Similarity,
				FinalScore: cand.Similarity,
				Strategy:   types.StrategyExpanded,
			})
		}
	}

	if merged {
		resp.Strategy = types.StrategyExpanded
	}
	return results
}

// applyRerank re-scores the top candidates with the secondary relevance
// model and blends the scores. Any failure keeps vector order.
func (e *Engine) applyRerank(ctx context.Context, normalized string, results []types.SearchResult, resp *Response) []types.SearchResult {
	if e.scorer == nil || len(results) == 0 {
		return results
	}
	if ctx.Err() != nil {
		resp.Degraded = true
		return results
	}

	top := len(results)
	if top > e.opts.RerankTopK {
		top = e.opts.RerankTopK
	}

	documents := make([]string, top)
	for i := 0; i < top; i++ {
		documents[i] = results[i].Chunk.Content
	}

	scores, err := e.scorer.Score(ctx, normalized, documents)
	if err != nil || len(scores) != top {
		resp.Degraded = true
		return results
	}

	for i := 0; i < top; i++ {
		score := scores[i]
		results[i].RerankScore = &score
		results[i].FinalScore = rerank.Blend(results[i].Similarity, score, e.opts.BlendWeight)
		results[i].Strategy = types.StrategyReranked
	}
	resp.Strategy = types.StrategyReranked
	return results
}

// baseResults converts store candidates into working results
func baseResults(candidates []storage.Candidate) []types.SearchResult {
	results := make([]types.SearchResult, len(candidates))
	for i, cand := range candidates {
		results[i] = types.SearchResult{
			Chunk:      cand.Chunk,
			Similarity: cand.Similarity,
			FinalScore: cand.Similarity,
			Strategy:   types.StrategyVector,
		}
	}
	return results
}

// rankResults sorts by final score descending with deterministic
// tie-breaking and assigns ranks
func rankResults(results []types.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Chunk.Key() < results[j].Chunk.Key()
	})
	for i := range results {
		results[i].Rank = i + 1
	}
}

// normalizeQuery lowercases and collapses whitespace
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// stopTerms excluded from keyword matching
var stopTerms = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"that": true, "this": true, "what": true, "how": true, "about": true,
	"are": true, "was": true, "were": true, "have": true, "has": true,
}

// significantTerms extracts keyword-filter terms from a normalized query
func significantTerms(normalized string) []string {
	var terms []string
	for _, word := range strings.Fields(normalized) {
		word = strings.Trim(word, ".,;:!?\"'")
		if len(word) < 3 || stopTerms[word] {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

var technicalTokenPattern = regexp.MustCompile(`[a-z0-9]+(?:[_./-][a-z0-9]+)+|\x60`)

// isTechnicalQuery detects queries that name identifiers, file paths,
// versions, or code fragments, where exact occurrence matters more than
// semantic closeness
func isTechnicalQuery(normalized string) bool {
	if technicalTokenPattern.MatchString(normalized) {
		return true
	}
	for _, word := range strings.Fields(normalized) {
		if _, err := strconv.Atoi(word); err == nil && len(word) >= 2 {
			return true
		}
	}
	return false
}

// filterKey builds a stable cache key fragment for a filter
func filterKey(f *storage.Filter) string {
	if f == nil {
		return ""
	}
	return strings.Join([]string{
		f.PathPrefix,
		strings.Join(f.Tags, ","),
		strings.Join(f.NoteTypes, ","),
		f.Category,
		strconv.Itoa(f.Year), strconv.Itoa(f.Month), strconv.Itoa(f.Day),
		f.ContentSubstring,
		strconv.FormatFloat(f.MinSimilarity, 'f', 4, 64),
	}, "|")
}

func (e *Engine) resultCacheKey(normalized string, req Request) string {
	return cache.Key("search", normalized, string(req.Tier),
		strconv.Itoa(req.Limit), filterKey(req.Filter))
}

func (e *Engine) lookupResultCache(normalized string, req Request) (*Response, bool) {
	if e.caches == nil {
		return nil, false
	}
	results, ok := e.caches.Results.Get(e.resultCacheKey(normalized, req))
	if !ok {
		return nil, false
	}

	copied := make([]types.SearchResult, len(results))
	copy(copied, results)
	resp := &Response{
		Results:      copied,
		TotalResults: len(copied),
		Tier:         req.Tier,
		CacheHit:     true,
	}
	if len(copied) > 0 {
		resp.Strategy = copied[0].Strategy
	}
	return resp, true
}

func (e *Engine) storeResultCache(normalized string, req Request, resp *Response) {
	if e.caches == nil {
		return
	}
	stored := make([]types.SearchResult, len(resp.Results))
	copy(stored, resp.Results)
	e.caches.Results.Put(e.resultCacheKey(normalized, req), stored)
}

// InvalidateCache drops all cached search results, typically after
// re-indexing changes the corpus
func (e *Engine) InvalidateCache() {
	if e.caches != nil {
		e.caches.Results.Clear()
	}
}
