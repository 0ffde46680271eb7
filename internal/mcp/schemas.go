package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchNotesTool returns the tool definition for search_notes
func searchNotesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_notes",
		Description: "Search the indexed note corpus with natural language queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"tier": map[string]interface{}{
					"type":        "string",
					"description": "Latency/quality trade-off: fastest (vector only), fast (+ keyword filter), balanced (+ rerank), quality (+ query expansion)",
					"enum":        []string{"fastest", "fast", "balanced", "quality"},
					"default":     "balanced",
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional filters to narrow search",
					"properties": map[string]interface{}{
						"path_prefix": map[string]interface{}{
							"type":        "string",
							"description": "Restrict to notes under this relative path prefix (e.g., 'work/meetings')",
						},
						"tags": map[string]interface{}{
							"type":        "array",
							"description": "Require all listed tags to be present",
							"items": map[string]interface{}{
								"type": "string",
							},
						},
						"note_types": map[string]interface{}{
							"type":        "array",
							"description": "Filter by note type",
							"items": map[string]interface{}{
								"type": "string",
								"enum": []string{"daily", "meeting", "project", "reference", "journal", "plain"},
							},
						},
						"category": map[string]interface{}{
							"type":        "string",
							"description": "Filter by top-level directory category",
						},
						"year": map[string]interface{}{
							"type":        "integer",
							"description": "Filter by year derived from the note path",
						},
						"month": map[string]interface{}{
							"type":        "integer",
							"description": "Filter by month (1-12), requires year",
							"minimum":     1,
							"maximum":     12,
						},
						"content_substring": map[string]interface{}{
							"type":        "string",
							"description": "Require chunk text to contain this exact substring (case-insensitive)",
						},
						"min_similarity": map[string]interface{}{
							"type":        "number",
							"description": "Minimum cosine similarity threshold (0.0-1.0)",
							"minimum":     0.0,
							"maximum":     1.0,
						},
					},
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "If false, bypass the result cache for this query",
					"default":     true,
				},
			},
			Required: []string{"query"},
		},
	}
}

// indexNotesTool returns the tool definition for index_notes
func indexNotesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_notes",
		Description: "Reconcile the vector index with the note tree, or re-index specific paths",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"description": "Relative note paths to re-index. When omitted, the whole tree is diffed against the index and only new, modified, and deleted paths are touched",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
		},
	}
}

// syncStatusTool returns the tool definition for sync_status
func syncStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "sync_status",
		Description: "Report index freshness: pending sync work, corpus size, and runtime counters",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// cacheStatsTool returns the tool definition for cache_stats
func cacheStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cache_stats",
		Description: "Report hit rates and occupancy for the query-embedding and search-result caches",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"clear": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, empty both caches after reporting",
					"default":     false,
				},
			},
		},
	}
}
