package knowledge

import (
	"context"
	"errors"
)

// ErrStore marks a failed store operation: missing index, malformed query,
// or lost connectivity. During retrieval it triggers the keyword fallback;
// during ingestion a failed chunk write is logged and counted as not stored.
var ErrStore = errors.New("knowledge store failure")

// Store defines the storage operations the Engine depends on. The interface
// is defined by the consumer so tests can substitute deterministic doubles
// for the Postgres adapter.
type Store interface {
	// UpsertChunks persists chunks independently and returns how many were
	// written; partial success is possible.
	UpsertChunks(ctx context.Context, chunks []Chunk) (int, error)

	// DeleteByDocument removes all chunks for a document. Idempotent.
	DeleteByDocument(ctx context.Context, documentID string) error

	// DeleteByProject removes all chunks for a tenant. Idempotent.
	DeleteByProject(ctx context.Context, projectID string) error

	// NearestNeighbors returns up to k results within the project, ordered
	// by descending cosine similarity to vec.
	NearestNeighbors(ctx context.Context, projectID string, vec []float32, k int) ([]Result, error)

	// KeywordSearch returns up to k chunks within the project whose content
	// contains every keyword, case-insensitive, each with FallbackScore.
	KeywordSearch(ctx context.Context, projectID string, keywords []string, k int) ([]Result, error)

	// CountsByProject returns distinct document and total chunk counts.
	CountsByProject(ctx context.Context, projectID string) (Stats, error)
}
