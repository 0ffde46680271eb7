package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notectx/notectx-mcp/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	notesRoot := t.TempDir()
	writeNote(t, notesRoot, "meetings/standup.md",
		"# Standup\n\nDiscussed the quarterly roadmap and database migration plan.\n")
	writeNote(t, notesRoot, "projects/search.md",
		"# Search Engine\n\nThe retrieval pipeline embeds queries and ranks chunks by cosine similarity.\n")

	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Embedder.Provider = "local"
	cfg.Rerank.Provider = "lexical"
	cfg.Syncer.NotesRoot = notesRoot

	srv, err := NewServer(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	return srv
}

func writeNote(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error),
	name string, args map[string]interface{}) map[string]interface{} {
	t.Helper()

	result, err := handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "tool result should be text content")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &decoded))
	return decoded
}

func TestNewServer_Components(t *testing.T) {
	srv := newTestServer(t)

	assert.NotNil(t, srv.mcp)
	assert.NotNil(t, srv.store)
	assert.NotNil(t, srv.engine)
	assert.NotNil(t, srv.ingestor)
	assert.NotNil(t, srv.reconciler)
	assert.NotNil(t, srv.watcher)
	assert.NotNil(t, srv.caches)
}

func TestIndexNotesTool_FullReconcile(t *testing.T) {
	srv := newTestServer(t)

	resp := callTool(t, srv.handleIndexNotes, "index_notes", map[string]interface{}{})

	assert.EqualValues(t, 2, resp["indexed"])
	assert.EqualValues(t, 0, resp["failed"])
	assert.NotEmpty(t, resp["batch_id"])
}

func TestIndexNotesTool_ExplicitPaths(t *testing.T) {
	srv := newTestServer(t)

	resp := callTool(t, srv.handleIndexNotes, "index_notes", map[string]interface{}{
		"paths": []interface{}{"meetings/standup.md"},
	})

	assert.EqualValues(t, 1, resp["indexed"])
}

func TestIndexNotesTool_RejectsBadPaths(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.handleIndexNotes(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      "index_notes",
			Arguments: map[string]interface{}{"paths": "not-an-array"},
		},
	})
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestSearchNotesTool(t *testing.T) {
	srv := newTestServer(t)
	callTool(t, srv.handleIndexNotes, "index_notes", map[string]interface{}{})

	resp := callTool(t, srv.handleSearchNotes, "search_notes", map[string]interface{}{
		"query": "quarterly roadmap",
		"tier":  "fastest",
	})

	results, ok := resp["results"].([]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, results)
	assert.Equal(t, "fastest", resp["tier"])

	first, ok := results[0].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, first["rank"])
	assert.NotEmpty(t, first["path"])
	assert.NotEmpty(t, first["content"])
}

func TestSearchNotesTool_Validation(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing query", map[string]interface{}{}, ErrorCodeEmptyQuery},
		{"empty query", map[string]interface{}{"query": ""}, ErrorCodeEmptyQuery},
		{"limit out of range", map[string]interface{}{"query": "x", "limit": float64(500)}, ErrorCodeInvalidParams},
		{"bad tier", map[string]interface{}{"query": "x", "tier": "turbo"}, ErrorCodeInvalidParams},
		{"month without year", map[string]interface{}{
			"query":   "x",
			"filters": map[string]interface{}{"month": float64(3)},
		}, ErrorCodeInvalidParams},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := srv.handleSearchNotes(context.Background(), mcp.CallToolRequest{
				Params: mcp.CallToolParams{Name: "search_notes", Arguments: tc.args},
			})
			require.Error(t, err)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, tc.code, mcpErr.Code)
		})
	}
}

func TestSearchNotesTool_Filters(t *testing.T) {
	srv := newTestServer(t)
	callTool(t, srv.handleIndexNotes, "index_notes", map[string]interface{}{})

	resp := callTool(t, srv.handleSearchNotes, "search_notes", map[string]interface{}{
		"query": "retrieval pipeline",
		"tier":  "fastest",
		"filters": map[string]interface{}{
			"path_prefix": "projects",
		},
	})

	results, ok := resp["results"].([]interface{})
	require.True(t, ok)
	for _, raw := range results {
		entry := raw.(map[string]interface{})
		assert.Contains(t, entry["path"], "projects/")
	}
}

func TestSyncStatusTool(t *testing.T) {
	srv := newTestServer(t)

	// Before any indexing the tree is ahead of the index
	resp := callTool(t, srv.handleSyncStatus, "sync_status", nil)
	assert.Equal(t, false, resp["in_sync"])

	callTool(t, srv.handleIndexNotes, "index_notes", map[string]interface{}{})

	resp = callTool(t, srv.handleSyncStatus, "sync_status", nil)
	assert.Equal(t, true, resp["in_sync"])

	count, ok := resp["chunk_count"].(float64)
	require.True(t, ok)
	assert.Greater(t, count, 0.0)

	last, ok := resp["last_sync"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, last["indexed"])
}

func TestCacheStatsTool(t *testing.T) {
	srv := newTestServer(t)
	callTool(t, srv.handleIndexNotes, "index_notes", map[string]interface{}{})

	search := map[string]interface{}{"query": "roadmap", "tier": "fastest"}
	callTool(t, srv.handleSearchNotes, "search_notes", search)
	callTool(t, srv.handleSearchNotes, "search_notes", search)

	resp := callTool(t, srv.handleCacheStats, "cache_stats", map[string]interface{}{})

	results, ok := resp["search_results"].(map[string]interface{})
	require.True(t, ok)
	hits, ok := results["hits"].(float64)
	require.True(t, ok)
	assert.Greater(t, hits, 0.0, "second identical search should hit the result cache")

	// Clearing reports and empties
	resp = callTool(t, srv.handleCacheStats, "cache_stats", map[string]interface{}{"clear": true})
	assert.Equal(t, true, resp["cleared"])

	resp = callTool(t, srv.handleCacheStats, "cache_stats", map[string]interface{}{})
	results = resp["search_results"].(map[string]interface{})
	assert.EqualValues(t, 0, results["size"])
}

func TestIndexNotes_InvalidatesResultCache(t *testing.T) {
	srv := newTestServer(t)
	callTool(t, srv.handleIndexNotes, "index_notes", map[string]interface{}{})

	search := map[string]interface{}{"query": "roadmap", "tier": "fastest"}
	callTool(t, srv.handleSearchNotes, "search_notes", search)

	callTool(t, srv.handleIndexNotes, "index_notes", map[string]interface{}{})

	resp := callTool(t, srv.handleSearchNotes, "search_notes", search)
	assert.Equal(t, false, resp["cache_hit"], "re-indexing should drop cached result sets")
}
