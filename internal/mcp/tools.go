package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/notectx/notectx-mcp/internal/searcher"
	"github.com/notectx/notectx-mcp/internal/storage"
	"github.com/notectx/notectx-mcp/internal/syncer"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeStoreUnavailable = -32001 // Vector store cannot be reached
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
)

// handleSearchNotes handles the search_notes tool invocation
func (s *Server) handleSearchNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 0)
	if limit < 0 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	tier := getStringDefault(args, "tier", "")
	switch searcher.Tier(tier) {
	case "", searcher.TierFastest, searcher.TierFast, searcher.TierBalanced, searcher.TierQuality:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid tier", map[string]interface{}{
			"param":   "tier",
			"value":   tier,
			"allowed": []string{"fastest", "fast", "balanced", "quality"},
		})
	}

	filter, err := parseFilter(args)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid filters", map[string]interface{}{
			"param":  "filters",
			"reason": err.Error(),
		})
	}

	resp, err := s.engine.Search(ctx, searcher.Request{
		Query:    query,
		Limit:    limit,
		Tier:     searcher.Tier(tier),
		Filter:   filter,
		UseCache: getBoolDefault(args, "use_cache", true),
	})
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, newMCPError(ErrorCodeStoreUnavailable, "vector store unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		}
		if errors.Is(err, searcher.ErrEmptyQuery) {
			return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		entry := map[string]interface{}{
			"rank":        r.Rank,
			"path":        r.Chunk.Path,
			"heading":     r.Chunk.Heading,
			"content":     r.Chunk.Content,
			"score":       r.FinalScore,
			"similarity":  r.Similarity,
			"strategy":    string(r.Strategy),
			"note_type":   string(r.Chunk.NoteType),
			"tags":        r.Chunk.Tags,
			"token_count": r.Chunk.TokenCount,
		}
		if r.RerankScore != nil {
			entry["rerank_score"] = *r.RerankScore
		}
		if r.KeywordMatch {
			entry["keyword_match"] = true
		}
		results = append(results, entry)
	}

	response := map[string]interface{}{
		"results":       results,
		"total_results": resp.TotalResults,
		"tier":          string(resp.Tier),
		"strategy":      string(resp.Strategy),
		"duration_ms":   resp.Duration.Milliseconds(),
		"cache_hit":     resp.CacheHit,
	}
	if resp.Degraded {
		response["degraded"] = true
	}
	if resp.TargetMissed {
		response["target_missed"] = true
	}
	if len(resp.Expansions) > 0 {
		response["expansions"] = resp.Expansions
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexNotes handles the index_notes tool invocation. With explicit
// paths it re-ingests exactly those; without, it diffs the note tree
// against the index and applies the plan.
func (s *Server) handleIndexNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	paths, err := getStringSlice(args, "paths")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "paths must be an array of strings", map[string]interface{}{
			"param":  "paths",
			"reason": err.Error(),
		})
	}

	var report *syncerReport
	if len(paths) > 0 {
		report = summarize(s.ingestor.IngestPaths(ctx, paths))
	} else {
		full, err := s.reconciler.Reconcile(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrUnavailable) {
				return nil, newMCPError(ErrorCodeStoreUnavailable, "vector store unavailable", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return nil, newMCPError(ErrorCodeInternalError, "reconcile failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		report = summarize(full)
	}

	s.mu.Lock()
	s.lastReport = report.raw
	s.mu.Unlock()

	// Re-ingestion invalidates cached result sets
	s.engine.InvalidateCache()

	response := map[string]interface{}{
		"batch_id":    report.raw.BatchID,
		"indexed":     report.raw.Indexed,
		"deleted":     report.raw.Deleted,
		"failed":      report.raw.Failed,
		"duration_ms": report.raw.Finished.Sub(report.raw.Started).Milliseconds(),
	}
	if len(report.failures) > 0 {
		if len(report.failures) > 5 {
			response["errors"] = report.failures[:5]
			response["error_count"] = len(report.failures)
		} else {
			response["errors"] = report.failures
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSyncStatus handles the sync_status tool invocation
func (s *Server) handleSyncStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plan, err := s.reconciler.BuildPlan(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, newMCPError(ErrorCodeStoreUnavailable, "vector store unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "failed to diff note tree", map[string]interface{}{
			"error": err.Error(),
		})
	}

	chunkCount, err := s.store.CountChunks(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeStoreUnavailable, "vector store unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	}

	snap := s.metrics.Snapshot()
	response := map[string]interface{}{
		"notes_root":  s.notesRoot,
		"chunk_count": chunkCount,
		"in_sync":     plan.Empty(),
		"pending": map[string]interface{}{
			"new":      len(plan.New),
			"modified": len(plan.Modified),
			"deleted":  len(plan.Deleted),
		},
		"unchanged": len(plan.Unchanged),
		"counters":  snap,
	}

	s.mu.Lock()
	last := s.lastReport
	s.mu.Unlock()
	if last != nil {
		response["last_sync"] = map[string]interface{}{
			"batch_id":    last.BatchID,
			"finished_at": last.Finished.Format("2006-01-02T15:04:05Z07:00"),
			"indexed":     last.Indexed,
			"deleted":     last.Deleted,
			"failed":      last.Failed,
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCacheStats handles the cache_stats tool invocation
func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	embStats := s.caches.Embeddings.Stats()
	resStats := s.caches.Results.Stats()

	response := map[string]interface{}{
		"query_embeddings": map[string]interface{}{
			"hits":     embStats.Hits,
			"misses":   embStats.Misses,
			"size":     embStats.Size,
			"hit_rate": hitRate(embStats.Hits, embStats.Misses),
		},
		"search_results": map[string]interface{}{
			"hits":     resStats.Hits,
			"misses":   resStats.Misses,
			"size":     resStats.Size,
			"hit_rate": hitRate(resStats.Hits, resStats.Misses),
		},
	}

	if getBoolDefault(args, "clear", false) {
		s.caches.Clear()
		response["cleared"] = true
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// parseFilter converts the filters argument into a storage filter
func parseFilter(args map[string]interface{}) (*storage.Filter, error) {
	raw, ok := args["filters"].(map[string]interface{})
	if !ok {
		return nil, nil
	}

	f := &storage.Filter{}
	f.PathPrefix = getStringDefault(raw, "path_prefix", "")
	f.Category = getStringDefault(raw, "category", "")
	f.ContentSubstring = getStringDefault(raw, "content_substring", "")
	f.Year = getIntDefault(raw, "year", 0)
	f.Month = getIntDefault(raw, "month", 0)
	f.Day = getIntDefault(raw, "day", 0)

	if f.Month != 0 && f.Year == 0 {
		return nil, errors.New("month filter requires year")
	}
	if f.Month < 0 || f.Month > 12 {
		return nil, fmt.Errorf("month %d out of range", f.Month)
	}

	var err error
	if f.Tags, err = getStringSlice(raw, "tags"); err != nil {
		return nil, err
	}
	if f.NoteTypes, err = getStringSlice(raw, "note_types"); err != nil {
		return nil, err
	}

	if v, ok := raw["min_similarity"].(float64); ok {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("min_similarity %v out of range", v)
		}
		f.MinSimilarity = v
	}

	return f, nil
}

// syncerReport pairs a report with its extracted failure messages
type syncerReport struct {
	raw      *syncer.Report
	failures []string
}

func summarize(r *syncer.Report) *syncerReport {
	out := &syncerReport{raw: r}
	for _, fr := range r.Results {
		if fr.Error != "" {
			out.failures = append(out.failures, fmt.Sprintf("%s: %s", fr.Path, fr.Error))
		}
	}
	return out
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// hitRate computes hits/(hits+misses), zero when the cache is untouched
func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array-of-strings parameter
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s is not an array", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s contains a non-string element", key)
		}
		out = append(out, s)
	}
	return out, nil
}
