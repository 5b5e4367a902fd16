package limiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter hands out token buckets keyed by operation, e.g.
// "reconnect:wss://relay.example.com" or "gateway". Unknown keys get the
// default limit.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	defaults rate.Limit
	burst    int
}

// New creates a limiter whose unknown keys allow eventsPerSecond with the
// given burst. eventsPerSecond <= 0 means unlimited.
func New(eventsPerSecond float64, burst int) *RateLimiter {
	limit := rate.Inf
	if eventsPerSecond > 0 {
		limit = rate.Limit(eventsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		defaults: limit,
		burst:    burst,
	}
}

// SetLimit overrides the bucket for a specific key.
func (rl *RateLimiter) SetLimit(key string, eventsPerSecond float64, burst int) {
	limit := rate.Inf
	if eventsPerSecond > 0 {
		limit = rate.Limit(eventsPerSecond)
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiters[key] = rate.NewLimiter(limit, burst)
}

// Allow reports whether one token is available for key right now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.bucket(key).Allow()
}

// Wait blocks until a token is available for key or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.bucket(key).Wait(ctx)
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.defaults, rl.burst)
		rl.limiters[key] = l
	}
	return l
}
