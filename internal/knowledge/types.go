package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Metadata carries display information stored alongside each chunk.
type Metadata struct {
	Filename string `json:"filename"`
	Section  string `json:"section"`
}

// Chunk is a retrievable segment of a document's text. ChunkIndex reflects
// left-to-right position in the source; Embedding always has the provider's
// fixed dimensionality (a chunk is never persisted with a partial vector).
type Chunk struct {
	ID         uuid.UUID
	DocumentID string
	ProjectID  string
	Content    string
	ChunkIndex int
	Embedding  []float32
	Metadata   Metadata
	CreatedAt  time.Time
}

// Result is a single search hit, ordered by descending Score. Under the
// vector path Score is cosine similarity; under the keyword fallback it is
// the fixed FallbackScore placeholder.
type Result struct {
	Content  string
	Filename string
	Score    float64
}

// Stats aggregates a project's stored knowledge.
type Stats struct {
	DocumentCount int
	ChunkCount    int
}
