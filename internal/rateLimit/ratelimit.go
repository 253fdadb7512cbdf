package rateLimit

import (
	"context"
	"time"
)

// Counter counts hits in a fixed window. Implemented by the redis Cache.
type Counter interface {
	IncrWindow(ctx context.Context, key string, period time.Duration) (int64, error)
}

type RateLimiter struct {
	counter Counter
	rate    int
	period  time.Duration
}

func NewRateLimiter(counter Counter, rate int, period time.Duration) *RateLimiter {
	return &RateLimiter{counter: counter, rate: rate, period: period}
}

// Allow reports whether key may make another request in the current
// window. A counter failure lets the request through.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := rl.counter.IncrWindow(ctx, key, rl.period)
	if err != nil {
		return true, err
	}
	return n <= int64(rl.rate), nil
}
