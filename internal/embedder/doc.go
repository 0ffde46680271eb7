// Package embedder generates vector embeddings for note chunks and search
// queries.
//
// Three providers are available:
//
//   - openai: the OpenAI embeddings API (text-embedding-3-small, 1536 dims)
//   - ollama: a local Ollama server (nomic-embed-text, 768 dims)
//   - local:  deterministic hash-derived vectors (384 dims), used for tests
//     and fully offline operation
//
// Provider selection happens through NewFromEnv, which honors
// NOTECTX_EMBEDDING_PROVIDER and falls back to auto-detection from
// OPENAI_API_KEY and OLLAMA_HOST, or through New with an explicit Config.
//
// Batch requests are split by an estimated token budget rather than a fixed
// item count, so a batch of long chunks makes more API calls than a batch
// of short ones. API calls retry with exponential backoff and respect
// context cancellation.
//
// A content-hash LRU cache in front of each provider absorbs repeat
// embedding of unchanged text during re-indexing. It is separate from the
// query-embedding cache owned by the retrieval engine.
package embedder
