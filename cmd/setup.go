package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/reqflow/reqflow/internal/chunker"
	"github.com/reqflow/reqflow/internal/config"
	"github.com/reqflow/reqflow/internal/embedding"
	"github.com/reqflow/reqflow/internal/knowledge"
	"github.com/reqflow/reqflow/internal/log"
	"github.com/reqflow/reqflow/internal/observability"
)

// app bundles everything a command needs after startup.
type app struct {
	cfg    *config.Config
	logger log.Logger
	pool   *pgxpool.Pool
	engine *knowledge.Engine

	redisClient     *redis.Client
	shutdownTracing func(context.Context) error
}

// setup loads configuration and wires the engine. Callers must invoke
// Close when done.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	if cfg.TracingEnabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.OTLPEndpoint,
			ServiceName: "reqflow",
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.shutdownTracing = shutdown
	}

	pool, err := knowledge.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	a.pool = pool

	store, err := knowledge.NewPostgresStore(pool, config.EmbeddingDimension, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	provider, err := a.newProvider(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	engine, err := knowledge.NewEngine(store, provider, logger,
		knowledge.WithChunkOptions(
			chunker.WithTargetSize(cfg.ChunkSize),
			chunker.WithOverlap(cfg.ChunkOverlap),
		))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	a.engine = engine

	return a, nil
}

// newProvider builds the configured embedding provider, wrapped with rate
// limiting and, when Redis is configured, an embedding cache.
func (a *app) newProvider(ctx context.Context) (embedding.Provider, error) {
	cfg := a.cfg

	var provider embedding.Provider
	var err error
	switch cfg.Provider {
	case config.ProviderGemini:
		provider, err = embedding.NewGemini(ctx, embedding.GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.EmbedderModel,
			Dimension: config.EmbeddingDimension,
		}, a.logger)
	case config.ProviderOpenAI:
		provider, err = embedding.NewOpenAI(embedding.OpenAIConfig{
			BaseURL:   cfg.OpenAIBaseURL,
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.EmbedderModel,
			Dimension: config.EmbeddingDimension,
		}, a.logger)
	default:
		err = fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	if cfg.EmbedRateLimit > 0 {
		provider = embedding.NewRateLimited(provider, cfg.EmbedRateLimit, 1)
	}

	if cfg.RedisAddr != "" {
		a.redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		provider = embedding.NewCached(provider, a.redisClient, embedding.DefaultCacheTTL, a.logger)
	}

	return provider, nil
}

// Close releases all resources acquired by setup.
func (a *app) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("closing redis client", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(context.Background()); err != nil {
			a.logger.Warn("shutting down tracing", "error", err)
		}
	}
}

// newLogger builds the process logger from config. DEBUG in the
// environment overrides the configured level. Logs go to stderr; stdout is
// reserved for command output and MCP JSON-RPC.
func newLogger(cfg *config.Config) log.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.NewWithWriter(os.Stderr, log.Config{Level: level, JSON: cfg.LogJSON})
}
