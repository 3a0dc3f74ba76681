package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// NewPool opens a pgx pool with pgvector types registered on every
// connection.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	return pool, nil
}

// PostgresStore persists chunks in PostgreSQL with pgvector.
//
// The ANN index (HNSW, cosine) and the chunks table are created by the
// migrations in db/; NearestNeighbors assumes they exist and surfaces
// ErrStore otherwise, which the Engine converts into the keyword fallback.
//
// PostgresStore is safe for concurrent use by multiple goroutines.
type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
}

// NewPostgresStore creates a chunk store over an existing pool. dimension is
// the embedding width enforced at write time; it must match the vector
// column in the schema.
func NewPostgresStore(pool *pgxpool.Pool, dimension int, logger *slog.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, dimension: dimension, logger: logger}, nil
}

const upsertChunkSQL = `INSERT INTO chunks (id, document_id, project_id, content, chunk_index, embedding, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (document_id, chunk_index) DO UPDATE
	SET project_id = EXCLUDED.project_id,
	    content    = EXCLUDED.content,
	    embedding  = EXCLUDED.embedding,
	    metadata   = EXCLUDED.metadata,
	    created_at = EXCLUDED.created_at`

// UpsertChunks implements Store. Chunks are written independently: a failed
// write is logged and skipped, and the returned count reflects what landed.
func (s *PostgresStore) UpsertChunks(ctx context.Context, chunks []Chunk) (int, error) {
	written := 0
	for _, c := range chunks {
		if err := s.upsertOne(ctx, c); err != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			s.logger.Warn("skipping chunk write",
				"document_id", c.DocumentID, "chunk_index", c.ChunkIndex, "error", err)
			continue
		}
		written++
	}
	return written, nil
}

func (s *PostgresStore) upsertOne(ctx context.Context, c Chunk) error {
	if len(c.Embedding) != s.dimension {
		return fmt.Errorf("%w: chunk %d of %q has %d dimensions, want %d",
			ErrStore, c.ChunkIndex, c.DocumentID, len(c.Embedding), s.dimension)
	}

	id := c.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("%w: marshaling metadata: %v", ErrStore, err)
	}

	_, err = s.pool.Exec(ctx, upsertChunkSQL,
		id, c.DocumentID, c.ProjectID, c.Content, c.ChunkIndex,
		pgvector.NewVector(c.Embedding), metadata, createdAt,
	)
	if err != nil {
		return fmt.Errorf("%w: inserting chunk: %v", ErrStore, err)
	}
	return nil
}

// DeleteByDocument implements Store.
func (s *PostgresStore) DeleteByDocument(ctx context.Context, documentID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("%w: deleting document %q: %v", ErrStore, documentID, err)
	}
	s.logger.Debug("deleted document chunks", "document_id", documentID, "count", tag.RowsAffected())
	return nil
}

// DeleteByProject implements Store.
func (s *PostgresStore) DeleteByProject(ctx context.Context, projectID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE project_id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("%w: deleting project %q: %v", ErrStore, projectID, err)
	}
	s.logger.Debug("deleted project chunks", "project_id", projectID, "count", tag.RowsAffected())
	return nil
}

// NearestNeighbors implements Store using cosine similarity over the HNSW
// index, filtered to one project.
func (s *PostgresStore) NearestNeighbors(ctx context.Context, projectID string, vec []float32, k int) ([]Result, error) {
	if len(vec) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, want %d", ErrStore, len(vec), s.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT content, metadata->>'filename', 1 - (embedding <=> $2) AS score
		 FROM chunks
		 WHERE project_id = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		projectID, pgvector.NewVector(vec), k,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", ErrStore, err)
	}
	defer rows.Close()

	return scanResults(rows, -1)
}

// KeywordSearch implements Store. Every keyword must appear in the chunk
// content, case-insensitive, in any order. Results carry the fixed
// FallbackScore since lexical matching has no calibrated similarity.
func (s *PostgresStore) KeywordSearch(ctx context.Context, projectID string, keywords []string, k int) ([]Result, error) {
	if len(keywords) == 0 || k <= 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`SELECT content, metadata->>'filename'
		 FROM chunks
		 WHERE project_id = $1`)
	args := []any{projectID}
	for _, kw := range keywords {
		args = append(args, "%"+escapeLike(kw)+"%")
		fmt.Fprintf(&sb, ` AND content ILIKE $%d`, len(args))
	}
	args = append(args, k)
	fmt.Fprintf(&sb, ` ORDER BY chunk_index LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: keyword search: %v", ErrStore, err)
	}
	defer rows.Close()

	return scanResults(rows, FallbackScore)
}

// CountsByProject implements Store.
func (s *PostgresStore) CountsByProject(ctx context.Context, projectID string) (Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT document_id), COUNT(*) FROM chunks WHERE project_id = $1`,
		projectID,
	).Scan(&stats.DocumentCount, &stats.ChunkCount)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: counting project %q: %v", ErrStore, projectID, err)
	}
	return stats, nil
}

// scanResults collects (content, filename[, score]) rows. fixedScore >= 0
// substitutes a constant score for queries that do not compute one.
func scanResults(rows pgx.Rows, fixedScore float64) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		var filename *string
		var err error
		if fixedScore >= 0 {
			r.Score = fixedScore
			err = rows.Scan(&r.Content, &filename)
		} else {
			err = rows.Scan(&r.Content, &filename, &r.Score)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: scanning result row: %v", ErrStore, err)
		}
		if filename != nil {
			r.Filename = *filename
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading result rows: %v", ErrStore, err)
	}
	return results, nil
}

// escapeLike neutralizes ILIKE wildcards in user-supplied keywords.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
