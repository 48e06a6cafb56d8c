package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// WrapRateLimitToEmbedder spaces calls to e with a token bucket. A
// non-positive qps disables limiting.
func WrapRateLimitToEmbedder(e IEmbedder, qps float64, burst int) IEmbedder {
	if e == nil || qps <= 0 {
		return e
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitEmbedder{next: e, limiter: rate.NewLimiter(rate.Limit(qps), burst)}
}

type rateLimitEmbedder struct {
	next    IEmbedder
	limiter *rate.Limiter
}

func (r *rateLimitEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for embed rate limit: %w", err)
	}
	return r.next.Embed(ctx, text, taskType)
}

func (r *rateLimitEmbedder) ModelName() string {
	return r.next.ModelName()
}
