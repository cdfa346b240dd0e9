package provider

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/conclavehq/conclave/internal/tool"
)

// RateLimiter provides per-key request rate limiting for provider calls
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit // requests per second
	burst    int        // max burst size
}

// NewRateLimiter creates a new rate limiter
// rate: requests per second allowed
// burst: maximum burst size (requests allowed at once)
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// DefaultRateLimiter returns a rate limiter with sensible defaults for
// LLM traffic: 2 requests/second with burst of 5 per key
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(2, 5)
}

// getLimiter returns the rate limiter for a given key (provider name)
func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[key]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = r.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(r.rate, r.burst)
	r.limiters[key] = limiter
	return limiter
}

// Wait blocks until the key is allowed to proceed or the context ends
func (r *RateLimiter) Wait(ctx context.Context, key string) error {
	return r.getLimiter(key).Wait(ctx)
}

// Allow reports whether a request for the key may proceed immediately
func (r *RateLimiter) Allow(key string) bool {
	return r.getLimiter(key).Allow()
}

// RateLimited wraps a provider so Generate waits on a shared limiter
// before each call. Keys are per provider name, so sessions sharing one
// backend share its budget.
type RateLimited struct {
	inner   Provider
	limiter *RateLimiter
}

// NewRateLimited wraps a provider with the given limiter
func NewRateLimited(inner Provider, limiter *RateLimiter) *RateLimited {
	return &RateLimited{inner: inner, limiter: limiter}
}

func (p *RateLimited) Name() string  { return p.inner.Name() }
func (p *RateLimited) Model() string { return p.inner.Model() }

// Generate waits for rate-limit clearance and delegates
func (p *RateLimited) Generate(ctx context.Context, messages []ChatMessage, tools []tool.Schema) (*Response, error) {
	if err := p.limiter.Wait(ctx, p.inner.Name()); err != nil {
		return nil, fmt.Errorf("rate limit wait aborted: %w", err)
	}
	return p.inner.Generate(ctx, messages, tools)
}
