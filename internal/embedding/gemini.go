package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the default Gemini embedding model.
// gemini-embedding-001 emits 3072 dimensions by default and supports
// truncation via OutputDimensionality (Matryoshka Representation Learning);
// the chunk schema stores 768.
const DefaultGeminiModel = "gemini-embedding-001"

// GeminiConfig configures the Gemini embedding adapter.
type GeminiConfig struct {
	APIKey    string
	Model     string // default: DefaultGeminiModel
	Dimension int    // default: 768
}

// Gemini embeds text through the Gemini API.
type Gemini struct {
	client    *genai.Client
	model     string
	dimension int32
	logger    *slog.Logger
}

// NewGemini creates a Gemini embedding provider.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedder: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Gemini{
		client:    client,
		model:     cfg.Model,
		dimension: int32(cfg.Dimension), //nolint:gosec // validated positive, bounded by model dims
		logger:    logger,
	}, nil
}

// Name implements Provider.
func (*Gemini) Name() string { return "gemini" }

// Dimension implements Provider.
func (g *Gemini) Dimension() int { return int(g.dimension) }

// Embed implements Provider.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := g.dimension
	resp, err := g.client.Models.EmbedContent(ctx, g.model,
		genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: gemini embed: %v", ErrProvider, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: gemini returned empty embedding", ErrProvider)
	}

	vec := resp.Embeddings[0].Values
	if len(vec) != int(dim) {
		return nil, fmt.Errorf("%w: gemini returned %d dimensions, want %d", ErrProvider, len(vec), dim)
	}
	return vec, nil
}
