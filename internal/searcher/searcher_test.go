package searcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notectx/notectx-mcp/internal/cache"
	"github.com/notectx/notectx-mcp/internal/expand"
	"github.com/notectx/notectx-mcp/internal/rerank"
	"github.com/notectx/notectx-mcp/internal/storage"
	"github.com/notectx/notectx-mcp/pkg/types"
)

// mockStore returns canned candidates and counts queries
type mockStore struct {
	candidates   []storage.Candidate
	queryErr     error
	queries      atomic.Int32
	keywordHits  []storage.Candidate
	keywordErr   error
	keywordCalls atomic.Int32
}

func (m *mockStore) UpsertChunks(context.Context, []types.Chunk, [][]float32) error { return nil }
func (m *mockStore) DeleteByPath(context.Context, string) (int, error)             { return 0, nil }
func (m *mockStore) GetByMetadata(context.Context, *storage.Filter) ([]types.Chunk, error) {
	return nil, nil
}
func (m *mockStore) SearchKeyword(context.Context, string, int, *storage.Filter) ([]storage.Candidate, error) {
	m.keywordCalls.Add(1)
	if m.keywordErr != nil {
		return nil, m.keywordErr
	}
	return m.keywordHits, nil
}
func (m *mockStore) ListPathStates(context.Context) ([]types.PathState, error) { return nil, nil }
func (m *mockStore) CountChunks(context.Context) (int, error)                  { return len(m.candidates), nil }
func (m *mockStore) Close() error                                              { return nil }

func (m *mockStore) Query(_ context.Context, _ []float32, k int, _ *storage.Filter) ([]storage.Candidate, error) {
	m.queries.Add(1)
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if k > len(m.candidates) {
		k = len(m.candidates)
	}
	out := make([]storage.Candidate, k)
	copy(out, m.candidates[:k])
	return out, nil
}

// mockEmbedder returns a fixed vector and counts calls
type mockEmbedder struct {
	err   error
	calls atomic.Int32
}

func (m *mockEmbedder) Embed(context.Context, string) ([]float32, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return []float32{1, 0, 0}, nil
}
func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}
func (m *mockEmbedder) Dimension() int   { return 3 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

// mockScorer scores by a canned table keyed on document content
type mockScorer struct {
	scores map[string]float64
	err    error
}

func (m *mockScorer) Score(_ context.Context, _ string, documents []string) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float64, len(documents))
	for i, doc := range documents {
		out[i] = m.scores[doc]
	}
	return out, nil
}
func (m *mockScorer) Name() string { return "mock" }
func (m *mockScorer) Close() error { return nil }

func candidate(path, content string, similarity float64) storage.Candidate {
	chunk := types.Chunk{
		Path:     path,
		Ordinal:  0,
		Content:  content,
		NoteType: types.NotePlain,
	}
	chunk.ComputeCounts()
	return storage.Candidate{Chunk: chunk, Similarity: similarity}
}

func newEngine(store storage.Store, emb *mockEmbedder, scorer *mockScorer, opts Options) *Engine {
	var s rerank.Scorer
	if scorer != nil {
		s = scorer
	}
	return NewEngine(store, emb, cache.NewManager(cache.Config{}), expand.NewExpander(), s, nil, opts)
}

func TestEngine_VectorOnlyTier(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "First note.", 0.9),
		candidate("b.md", "Second note.", 0.7),
		candidate("c.md", "Third note.", 0.5),
	}}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{})

	resp, err := engine.Search(context.Background(), Request{
		Query: "anything at all", Limit: 2, Tier: TierFastest,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a.md", resp.Results[0].Chunk.Path)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, 2, resp.Results[1].Rank)
	assert.Equal(t, types.StrategyVector, resp.Strategy)
	assert.False(t, resp.Degraded)
}

func TestEngine_EmptyQuery(t *testing.T) {
	engine := newEngine(&mockStore{}, &mockEmbedder{}, nil, Options{})
	_, err := engine.Search(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestEngine_VectorQueryFailureIsFatal(t *testing.T) {
	store := &mockStore{queryErr: storage.ErrUnavailable}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{})

	_, err := engine.Search(context.Background(), Request{Query: "query", Tier: TierFastest})
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestEngine_EmbedFailureIsFatal(t *testing.T) {
	emb := &mockEmbedder{err: errors.New("provider down")}
	engine := newEngine(&mockStore{}, emb, nil, Options{})

	_, err := engine.Search(context.Background(), Request{Query: "query"})
	assert.Error(t, err)
}

func TestEngine_ResultCacheHit(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "Cached note.", 0.8),
	}}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{})

	req := Request{Query: "Meeting Notes", Limit: 5, Tier: TierFastest, UseCache: true}
	first, err := engine.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	// Whitespace and case differences hit the same entry
	second, err := engine.Search(context.Background(), Request{
		Query: "  meeting   NOTES ", Limit: 5, Tier: TierFastest, UseCache: true,
	})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, int32(1), store.queries.Load())
}

func TestEngine_QueryEmbeddingCached(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "Note.", 0.8),
	}}
	emb := &mockEmbedder{}
	engine := newEngine(store, emb, nil, Options{})

	ctx := context.Background()
	// Different limits miss the result cache but share the embedding
	_, err := engine.Search(ctx, Request{Query: "same query", Limit: 1, Tier: TierFastest, UseCache: true})
	require.NoError(t, err)
	_, err = engine.Search(ctx, Request{Query: "same query", Limit: 2, Tier: TierFastest, UseCache: true})
	require.NoError(t, err)

	assert.Equal(t, int32(1), emb.calls.Load())
	assert.Equal(t, int32(2), store.queries.Load())
}

func TestEngine_KeywordFilterOnTechnicalQuery(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "Set max_tokens in the chunker config.", 0.6),
		candidate("b.md", "A note about gardening.", 0.9),
	}}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{})

	resp, err := engine.Search(context.Background(), Request{
		Query: "max_tokens setting", Limit: 5, Tier: TierFast,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a.md", resp.Results[0].Chunk.Path)
	assert.True(t, resp.Results[0].KeywordMatch)
	assert.Equal(t, types.StrategyKeyword, resp.Strategy)
}

func TestEngine_KeywordFilterNeverEmptiesResults(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "Nothing matches here.", 0.9),
	}}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{})

	resp, err := engine.Search(context.Background(), Request{
		Query: "v1.2.3 changelog", Limit: 5, Tier: TierFast,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, types.StrategyVector, resp.Strategy)
}

func TestEngine_NonTechnicalQueryKeepsAllCandidates(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "Thoughts about gardening.", 0.9),
		candidate("b.md", "Unrelated entry.", 0.7),
	}}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{})

	resp, err := engine.Search(context.Background(), Request{
		Query: "gardening thoughts", Limit: 5, Tier: TierFast,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].KeywordMatch)
	assert.False(t, resp.Results[1].KeywordMatch)
}

func TestEngine_TechnicalQueryConsultsFullTextIndex(t *testing.T) {
	store := &mockStore{
		candidates: []storage.Candidate{
			candidate("a.md", "A note about gardening.", 0.9),
		},
		keywordHits: []storage.Candidate{
			candidate("c.md", "Tune max_tokens for longer chunks.", 0.55),
		},
	}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{})

	resp, err := engine.Search(context.Background(), Request{
		Query: "max_tokens setting", Limit: 5, Tier: TierFast,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.keywordCalls.Load())

	// The vector stage missed the exact-token hit; the FTS fan-out
	// supplies it and the precision filter keeps only matches
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c.md", resp.Results[0].Chunk.Path)
	assert.True(t, resp.Results[0].KeywordMatch)
	assert.Equal(t, types.StrategyKeyword, resp.Strategy)
	assert.False(t, resp.Degraded)
}

func TestEngine_KeywordSearchFailureDegrades(t *testing.T) {
	store := &mockStore{
		candidates: []storage.Candidate{
			candidate("a.md", "Set max_tokens in the chunker config.", 0.6),
			candidate("b.md", "A note about gardening.", 0.9),
		},
		keywordErr: storage.ErrUnavailable,
	}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{})

	resp, err := engine.Search(context.Background(), Request{
		Query: "max_tokens setting", Limit: 5, Tier: TierFast,
	})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)

	// Substring matching still filters without the full-text index
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a.md", resp.Results[0].Chunk.Path)
	assert.Equal(t, types.StrategyKeyword, resp.Strategy)
}

func TestEngine_NonTechnicalQuerySkipsFullTextIndex(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "Thoughts about gardening.", 0.9),
	}}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{})

	_, err := engine.Search(context.Background(), Request{
		Query: "gardening thoughts", Limit: 5, Tier: TierFast,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), store.keywordCalls.Load())
}

func TestEngine_LatencyTargetMissFlagged(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "A note.", 0.9),
	}}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{
		LatencyTargets: map[Tier]time.Duration{TierFastest: time.Nanosecond},
	})

	resp, err := engine.Search(context.Background(), Request{
		Query: "anything", Limit: 5, Tier: TierFastest,
	})
	require.NoError(t, err)
	assert.True(t, resp.TargetMissed)
	assert.Len(t, resp.Results, 1, "a missed target flags the response, results stay")
}

func TestEngine_LowAverageScoreFlagged(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "Weak match.", 0.05),
		candidate("b.md", "Weaker match.", 0.02),
	}}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{})

	resp, err := engine.Search(context.Background(), Request{
		Query: "barely related", Limit: 5, Tier: TierFastest,
	})
	require.NoError(t, err)
	assert.True(t, resp.TargetMissed)
}

func TestEngine_TargetMetNotFlagged(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "Strong match.", 0.9),
	}}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{})

	resp, err := engine.Search(context.Background(), Request{
		Query: "something relevant", Limit: 5, Tier: TierFastest,
	})
	require.NoError(t, err)
	assert.False(t, resp.TargetMissed)
}

func TestEngine_OutOfRangeRerankScoreDropped(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "Overconfident scorer target.", 0.9),
		candidate("b.md", "Sane result.", 0.8),
	}}
	scorer := &mockScorer{scores: map[string]float64{
		"Overconfident scorer target.": 1.5,
		"Sane result.":                 0.5,
	}}
	engine := newEngine(store, &mockEmbedder{}, scorer, Options{})

	resp, err := engine.Search(context.Background(), Request{
		Query: "which survives", Limit: 5, Tier: TierBalanced,
	})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "b.md", resp.Results[0].Chunk.Path)
	assert.Equal(t, 1, resp.Results[0].Rank)
}

func TestEngine_RerankReordersResults(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "Vector favorite.", 0.9),
		candidate("b.md", "Rerank favorite.", 0.8),
	}}
	scorer := &mockScorer{scores: map[string]float64{
		"Vector favorite.": 0.1,
		"Rerank favorite.": 1.0,
	}}
	engine := newEngine(store, &mockEmbedder{}, scorer, Options{BlendWeight: 0.65})

	resp, err := engine.Search(context.Background(), Request{
		Query: "which wins", Limit: 2, Tier: TierBalanced,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	// blend: a = 0.65*0.1 + 0.35*0.9 = 0.38; b = 0.65*1.0 + 0.35*0.8 = 0.93
	assert.Equal(t, "b.md", resp.Results[0].Chunk.Path)
	assert.InDelta(t, 0.93, resp.Results[0].FinalScore, 1e-9)
	require.NotNil(t, resp.Results[0].RerankScore)
	assert.InDelta(t, 1.0, *resp.Results[0].RerankScore, 1e-9)
	assert.Equal(t, types.StrategyReranked, resp.Strategy)
	assert.False(t, resp.Degraded)
}

func TestEngine_RerankFailureDegrades(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "First.", 0.9),
		candidate("b.md", "Second.", 0.8),
	}}
	scorer := &mockScorer{err: errors.New("rerank api down")}
	engine := newEngine(store, &mockEmbedder{}, scorer, Options{})

	resp, err := engine.Search(context.Background(), Request{
		Query: "still works", Limit: 2, Tier: TierBalanced,
	})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	// Vector order preserved
	assert.Equal(t, "a.md", resp.Results[0].Chunk.Path)
	assert.Nil(t, resp.Results[0].RerankScore)
}

func TestEngine_CancelledContextDegradesOptionalStages(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "Only hope.", 0.9),
	}}
	scorer := &mockScorer{scores: map[string]float64{"Only hope.": 1}}
	engine := newEngine(store, &mockEmbedder{}, scorer, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := engine.Search(ctx, Request{
		Query: "deadline hit", Limit: 1, Tier: TierQuality,
	})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Nil(t, resp.Results[0].RerankScore)
}

func TestEngine_QualityTierExpands(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "A meeting summary.", 0.9),
	}}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{MaxExpansions: 2})

	resp, err := engine.Search(context.Background(), Request{
		Query: "meeting notes", Limit: 5, Tier: TierQuality,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Expansions)
	assert.Equal(t, types.StrategyExpanded, resp.Strategy)
	// Variant queries hit the store too
	assert.Greater(t, store.queries.Load(), int32(1))
}

func TestEngine_RankDeterminism(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("b.md", "Tied.", 0.5),
		candidate("a.md", "Tied too.", 0.5),
		candidate("c.md", "Tied as well.", 0.5),
	}}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{})

	var prev []string
	for i := 0; i < 5; i++ {
		resp, err := engine.Search(context.Background(), Request{
			Query: "tie break", Limit: 3, Tier: TierFastest,
		})
		require.NoError(t, err)
		order := make([]string, len(resp.Results))
		for j, r := range resp.Results {
			order[j] = r.Chunk.Path
		}
		if prev != nil {
			assert.Equal(t, prev, order)
		}
		prev = order
	}
}

func TestEngine_LimitClamped(t *testing.T) {
	store := &mockStore{candidates: []storage.Candidate{
		candidate("a.md", "Note.", 0.9),
	}}
	engine := newEngine(store, &mockEmbedder{}, nil, Options{MaxLimit: 50})

	resp, err := engine.Search(context.Background(), Request{
		Query: "clamp", Limit: 10_000, Tier: TierFastest,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "hello world", normalizeQuery("  Hello   WORLD  "))
	assert.Equal(t, "", normalizeQuery("\t\n"))
}

func TestIsTechnicalQuery(t *testing.T) {
	assert.True(t, isTechnicalQuery("max_tokens setting"))
	assert.True(t, isTechnicalQuery("notes/2025/06 entries"))
	assert.True(t, isTechnicalQuery("release v1.2.3"))
	assert.True(t, isTechnicalQuery("error 404"))
	assert.False(t, isTechnicalQuery("what did i write about bread"))
}
