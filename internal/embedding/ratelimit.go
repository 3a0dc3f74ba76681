package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a token-bucket limiter so sequential
// ingestion cannot exceed the provider's request-rate allowance.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited creates a rate-limited Provider allowing rps requests per
// second with the given burst. Non-positive values disable limiting.
func NewRateLimited(inner Provider, rps float64, burst int) *RateLimited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Name implements Provider.
func (r *RateLimited) Name() string { return r.inner.Name() }

// Dimension implements Provider.
func (r *RateLimited) Dimension() int { return r.inner.Dimension() }

// Embed implements Provider, blocking until the limiter grants a slot or the
// context is canceled.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}
