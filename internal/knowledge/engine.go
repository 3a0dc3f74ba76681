package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reqflow/reqflow/internal/chunker"
	"github.com/reqflow/reqflow/internal/embedding"
)

const (
	// DefaultSearchLimit is the number of results returned when the caller
	// does not specify one.
	DefaultSearchLimit = 5

	// FallbackScore is the placeholder relevance assigned to keyword-fallback
	// results. Lexical matching provides no measure comparable to cosine
	// similarity, so the score is a rough binary signal.
	FallbackScore = 0.5

	// minKeywordLength is the exclusive length floor for fallback keywords;
	// shorter tokens are mostly stop words.
	minKeywordLength = 3
)

const tracerName = "github.com/reqflow/reqflow/internal/knowledge"

// Engine orchestrates chunking, embedding, and storage for ingestion, and
// query embedding plus nearest-neighbor search for retrieval.
//
// Engine is safe for concurrent use by multiple goroutines.
type Engine struct {
	store     Store
	provider  embedding.Provider
	logger    *slog.Logger
	tracer    trace.Tracer
	chunkOpts []chunker.Option
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithChunkOptions overrides the chunking parameters used during ingestion.
func WithChunkOptions(opts ...chunker.Option) EngineOption {
	return func(e *Engine) {
		e.chunkOpts = opts
	}
}

// NewEngine creates an Engine over the given store and embedding provider.
func NewEngine(store Store, provider embedding.Provider, logger *slog.Logger, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:    store,
		provider: provider,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Ingest turns one document's raw text into stored, searchable chunks,
// replacing any previous version of the document.
//
// Ingestion is best-effort per chunk: an embedding or store-write failure
// skips that segment and processing continues. The returned count is the
// number of chunks actually stored, which may be lower than the number of
// segments produced. Context cancellation stops the walk and leaves a
// partial state that the next Ingest call repairs via delete-then-rewrite.
func (e *Engine) Ingest(ctx context.Context, documentID, projectID, filename, content string) (int, error) {
	if documentID == "" || projectID == "" {
		return 0, fmt.Errorf("documentID and projectID are required")
	}

	ctx, span := e.tracer.Start(ctx, "knowledge.Ingest", trace.WithAttributes(
		attribute.String("document_id", documentID),
		attribute.String("project_id", projectID),
	))
	defer span.End()

	// Old chunks must be gone before the first replacement write, so old and
	// new versions never coexist in query results.
	if err := e.store.DeleteByDocument(ctx, documentID); err != nil {
		return 0, fmt.Errorf("replacing document %q: %w", documentID, err)
	}

	segments := chunker.Split(content, e.chunkOpts...)
	if len(segments) == 0 {
		e.logger.Debug("document produced no chunks", "document_id", documentID)
		return 0, nil
	}

	stored := 0
	skipped := 0
	for i, segment := range segments {
		if ctx.Err() != nil {
			return stored, ctx.Err()
		}

		vec, err := e.provider.Embed(ctx, segment)
		if err != nil {
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			skipped++
			e.logger.Warn("skipping segment, embedding failed",
				"document_id", documentID, "segment", i, "error", err)
			continue
		}

		n, err := e.store.UpsertChunks(ctx, []Chunk{{
			ID:         uuid.New(),
			DocumentID: documentID,
			ProjectID:  projectID,
			Content:    segment,
			ChunkIndex: i,
			Embedding:  vec,
			Metadata: Metadata{
				Filename: filename,
				Section:  fmt.Sprintf("Chunk %d of %d", i+1, len(segments)),
			},
		}})
		if err != nil {
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			skipped++
			e.logger.Warn("skipping segment, store write failed",
				"document_id", documentID, "segment", i, "error", err)
			continue
		}
		if n == 0 {
			skipped++
			continue
		}
		stored++
	}

	span.SetAttributes(
		attribute.Int("chunks.stored", stored),
		attribute.Int("chunks.skipped", skipped),
	)
	e.logger.Info("ingested document",
		"document_id", documentID, "project_id", projectID,
		"filename", filename, "stored", stored, "skipped", skipped)
	return stored, nil
}

// Search answers a natural-language query with the most relevant ingested
// content, scoped to one project.
//
// The vector path is the source of truth for relevance; when it fails for
// any provider or store reason the keyword fallback substitutes a
// best-effort lexical match rather than failing the caller. Only context
// cancellation propagates as an error.
func (e *Engine) Search(ctx context.Context, projectID, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	ctx, span := e.tracer.Start(ctx, "knowledge.Search", trace.WithAttributes(
		attribute.String("project_id", projectID),
		attribute.Int("limit", limit),
	))
	defer span.End()

	primary := e.trySemanticSearch(ctx, projectID, query, limit, span)
	if primary.err == nil {
		return primary.results, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.logger.Warn("vector search unavailable, falling back to keyword match",
		"project_id", projectID, "error", primary.err)
	span.SetAttributes(attribute.Bool("fallback", true))

	keywords := queryKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}
	results, err := e.store.KeywordSearch(ctx, projectID, keywords, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Error("keyword fallback failed", "project_id", projectID, "error", err)
		return nil, nil
	}
	return results, nil
}

// semanticOutcome carries the primary-path result so the fallback branch can
// distinguish "succeeded with no hits" from "failed".
type semanticOutcome struct {
	results []Result
	err     error
}

func (e *Engine) trySemanticSearch(ctx context.Context, projectID, query string, limit int, span trace.Span) semanticOutcome {
	vec, err := e.provider.Embed(ctx, query)
	if err != nil {
		return semanticOutcome{err: err}
	}

	results, err := e.store.NearestNeighbors(ctx, projectID, vec, limit)
	if err != nil {
		return semanticOutcome{err: err}
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return semanticOutcome{results: results}
}

// DeleteDocument removes all stored chunks for a document. Idempotent.
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) error {
	return e.store.DeleteByDocument(ctx, documentID)
}

// DeleteProject removes all stored chunks for a tenant. Idempotent.
func (e *Engine) DeleteProject(ctx context.Context, projectID string) error {
	return e.store.DeleteByProject(ctx, projectID)
}

// Stats reports how many documents and chunks a project currently holds.
func (e *Engine) Stats(ctx context.Context, projectID string) (Stats, error) {
	return e.store.CountsByProject(ctx, projectID)
}

// queryKeywords decomposes a query into lowercase tokens longer than
// minKeywordLength, deduplicated in order of first appearance.
func queryKeywords(query string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(tokens))
	var keywords []string
	for _, tok := range tokens {
		if len(tok) <= minKeywordLength {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}
