// Package ratelimiter provides a shared request budget for outbound venue calls.
package ratelimiter

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Limiter blocks until one more call fits the budget or ctx ends.
type Limiter interface {
	Wait(ctx context.Context) error
}

// RateLimiter allows limit calls per interval, refilled evenly, with a burst of limit.
// It is safe for concurrent use by every feed and request sharing one venue quota.
type RateLimiter struct {
	name string
	l    *rate.Limiter
}

var _ Limiter = (*RateLimiter)(nil)

// NewRateLimiter returns a limiter for limit calls per interval. A non-positive limit disables limiting.
func NewRateLimiter(name string, limit int, interval time.Duration) *RateLimiter {
	if limit <= 0 || interval <= 0 {
		return &RateLimiter{name: name, l: rate.NewLimiter(rate.Inf, 0)}
	}
	return &RateLimiter{
		name: name,
		l:    rate.NewLimiter(rate.Every(interval/time.Duration(limit)), limit),
	}
}

// Wait blocks until the next call is allowed.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.l.Tokens() < 1 {
		slog.Debug("rate limit reached, waiting", "limiter", r.name)
	}
	return r.l.Wait(ctx)
}
