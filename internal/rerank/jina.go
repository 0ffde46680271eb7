package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	// DefaultJinaModel is the reranker model requested by default
	DefaultJinaModel = "jina-reranker-v2-base-multilingual"

	// EnvJinaAPIKey holds the Jina API key
	EnvJinaAPIKey = "JINA_API_KEY"

	defaultJinaEndpoint = "https://api.jina.ai/v1/rerank"
)

// JinaScorer scores relevance through the Jina rerank API
type JinaScorer struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// NewJinaScorer creates a Jina-backed scorer. Falls back to the
// JINA_API_KEY environment variable when apiKey is empty.
func NewJinaScorer(apiKey string) (*JinaScorer, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAPIKey, EnvJinaAPIKey)
	}

	return &JinaScorer{
		apiKey:   apiKey,
		model:    DefaultJinaModel,
		endpoint: defaultJinaEndpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

func (s *JinaScorer) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	reqBody := map[string]interface{}{
		"model":     s.model,
		"query":     query,
		"documents": documents,
		"top_n":     len(documents),
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScorerFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: api error %d: %s", ErrScorerFailed, resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// The API returns results in relevance order; realign by index
	scores := make([]float64, len(documents))
	for _, r := range apiResp.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("%w: result index %d out of range", ErrScorerFailed, r.Index)
		}
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}

func (s *JinaScorer) Name() string { return "jina" }

func (s *JinaScorer) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}
