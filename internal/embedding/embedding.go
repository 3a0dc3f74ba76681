// Package embedding converts text into fixed-dimension vectors via an
// external provider.
//
// The Provider interface abstracts the network call so the retrieval engine,
// the lexical fallback, and test doubles can substitute deterministic
// stand-ins. Two adapters ship with reqflow: Gemini (google.golang.org/genai)
// and any OpenAI-compatible embeddings endpoint. Decorators add rate
// limiting and an optional Redis cache.
package embedding

import (
	"context"
	"errors"
)

// ErrProvider marks any embedding call failure: network errors, non-success
// HTTP status, or a malformed response. Callers decide whether to skip the
// segment or fall back to lexical search.
var ErrProvider = errors.New("embedding provider failure")

// Provider converts one text string into a fixed-length vector.
//
// Implementations hold no mutable state beyond provider configuration and
// are safe for concurrent use.
type Provider interface {
	// Name identifies the provider, used in cache keys and logs.
	Name() string

	// Dimension returns the fixed length of vectors this provider emits.
	Dimension() int

	// Embed returns the vector for text. Failures wrap ErrProvider except
	// for context cancellation, which is returned as-is.
	Embed(ctx context.Context, text string) ([]float32, error)
}
