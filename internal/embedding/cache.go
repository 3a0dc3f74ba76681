package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long cached embeddings are kept. Embeddings are
// deterministic per provider+model, so a long TTL is safe; the TTL exists to
// bound memory after model upgrades.
const DefaultCacheTTL = 7 * 24 * time.Hour

// Cached wraps a Provider with a Redis lookaside cache keyed by content
// hash. Cache failures are transparent: any Redis error falls through to the
// inner provider so caching never affects correctness.
type Cached struct {
	inner  Provider
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached creates a caching Provider. ttl <= 0 uses DefaultCacheTTL.
func NewCached(inner Provider, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

// Name implements Provider.
func (c *Cached) Name() string { return c.inner.Name() }

// Dimension implements Provider.
func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Embed implements Provider.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var vec []float32
		if err := json.Unmarshal(data, &vec); err == nil && len(vec) == c.inner.Dimension() {
			return vec, nil
		}
		c.logger.Debug("dropping malformed cache entry", "key", key)
	} else if !errors.Is(err, redis.Nil) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debug("embedding cache read failed", "error", err)
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vec); err == nil {
		// Best-effort write; a failed Set only costs a future cache miss.
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Debug("embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}

func (c *Cached) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("reqflow:embed:%s:%s", c.inner.Name(), hex.EncodeToString(sum[:]))
}
