// Package mcp implements the Model Context Protocol (MCP) server for NoteCtx.
//
// The MCP server exposes four tools to AI assistants:
//   - search_notes: Search the note corpus with natural language queries
//   - index_notes: Reconcile the vector index with the note tree
//   - sync_status: Report index freshness and runtime counters
//   - cache_stats: Report cache hit rates and occupancy
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output. All
// logging goes to stderr; stdout carries only protocol frames.
//
// # Startup
//
// NewServer wires the full pipeline from a single configuration: the
// SQLite vector store, the embedding provider, the two cache namespaces,
// the retrieval engine, and the consistency service. Serve then diffs the
// note tree against the index, applies the resulting plan, starts the
// filesystem watcher, and blocks on stdio until shutdown.
//
// # Tool: search_notes
//
// Search indexed notes semantically:
//
//	Request:
//	{
//	  "name": "search_notes",
//	  "arguments": {
//	    "query": "quarterly planning decisions",
//	    "limit": 10,
//	    "tier": "balanced",
//	    "filters": {
//	      "tags": ["work"],
//	      "path_prefix": "meetings"
//	    }
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "path": "meetings/2026-01-15.md",
//	      "heading": "Q1 Planning",
//	      "score": 0.87,
//	      "similarity": 0.82,
//	      "strategy": "reranked",
//	      "content": "..."
//	    }
//	  ],
//	  "tier": "balanced",
//	  "duration_ms": 42,
//	  "cache_hit": false
//	}
//
// The tier argument selects the latency/quality trade-off. Optional stages
// that fail mark the response degraded instead of failing the call; only
// an unreachable vector store is fatal.
//
// # Tool: index_notes
//
// Without arguments, diffs the whole note tree against the index and
// applies only the necessary work. With an explicit paths array, those
// paths are re-ingested unconditionally:
//
//	Request:
//	{
//	  "name": "index_notes",
//	  "arguments": {"paths": ["projects/notectx.md"]}
//	}
//
//	Response:
//	{
//	  "batch_id": "6e1f...",
//	  "indexed": 1,
//	  "deleted": 0,
//	  "failed": 0,
//	  "duration_ms": 118
//	}
//
// Each re-ingested path is replaced whole: its stale chunks are deleted
// before the fresh ones go in. The search-result cache is invalidated
// after every batch.
//
// # Tool: sync_status
//
// Reports whether the index matches the note tree (a dry-run diff), the
// corpus size, the last applied batch, and runtime counters.
//
// # Tool: cache_stats
//
// Reports hits, misses, occupancy, and hit rate for the query-embedding
// and search-result caches. Pass "clear": true to empty both after
// reporting.
package mcp
