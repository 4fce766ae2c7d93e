package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)
}

// RateLimited throttles completions to a fixed request rate shared by all callers.
type RateLimited struct {
	inner   completer
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a token bucket of perSecond requests and
// the given burst. A burst below 1 is raised to 1.
func NewRateLimited(inner completer, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Complete waits for a token, then delegates. A context that ends while
// waiting is reported as a service call failure.
func (r *RateLimited) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w: %w", ErrServiceCall, err)
	}
	return r.inner.Complete(ctx, systemPrompt, userPrompt, temperature)
}
