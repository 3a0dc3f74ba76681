// Package knowledge implements the ingestion and retrieval engine behind
// the reqflow requirements pipeline.
//
// Documents are split into overlapping chunks, embedded through an external
// provider, and stored in PostgreSQL with pgvector, partitioned by project.
// Retrieval embeds the query and runs an approximate nearest-neighbor search
// over the same partition; when the vector path is unavailable (provider
// outage, missing index) it degrades to a lexical keyword match so callers
// never hard-fail on semantic search alone.
//
// # Architecture
//
//	Engine
//	  |
//	  +-- chunker.Split          (deterministic overlapping segments)
//	  +-- embedding.Provider     (Gemini or OpenAI-compatible adapter)
//	  |
//	  v
//	Store (PostgresStore)
//	  +-- chunks table, HNSW cosine index, project_id partition
//	  +-- ILIKE keyword fallback over the same rows
//
// # Failure model
//
// Ingestion is best-effort per chunk: an embedding or write failure skips
// that segment and the returned count reflects what was actually stored.
// Re-ingestion of a document deletes its previous chunks first, so a partial
// ingest is always recoverable by ingesting again.
//
// # Thread safety
//
// Engine and PostgresStore are safe for concurrent use; the pgx pool is the
// only shared resource and all mutations are keyed by document or project.
package knowledge
