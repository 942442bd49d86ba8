// Package ratelimit controls the pace of outbound exchange requests.
// Every REST call the bridge makes goes through a RateLimiter so the
// process as a whole stays inside the exchange's advertised request
// budget. The implementation wraps Uber's token bucket limiter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/ratelimit"
)

// Rate represents a rate limit configuration: Limit operations are
// allowed per Interval.
type Rate struct {
	Limit    int
	Interval time.Duration
}

// PerInterval returns the minimum spacing between two operations under
// this rate. Exchanges advertise their rate limit as exactly this value,
// so it doubles as the inter-attempt retry delay.
func (r Rate) PerInterval() time.Duration {
	if r.Limit <= 0 {
		return 0
	}
	return r.Interval / time.Duration(r.Limit)
}

// RateLimiter forces callers to wait when necessary to comply with a
// configured rate limit.
type RateLimiter interface {
	// Wait blocks until an operation is permitted or the context is
	// cancelled.
	Wait(ctx context.Context) error

	// SetLimit updates the rate limiting configuration at runtime.
	SetLimit(limit Rate) error
}

// uberLimiter implements RateLimiter using Uber's token bucket
type uberLimiter struct {
	limiter ratelimit.Limiter
	rate    Rate
}

// NewTokenBucketLimiter creates a rate limiter allowing rate.Limit
// operations per rate.Interval.
func NewTokenBucketLimiter(rate Rate) RateLimiter {
	rps := float64(rate.Limit) / rate.Interval.Seconds()
	if rps < 1 {
		rps = 1
	}
	return &uberLimiter{
		limiter: ratelimit.New(int(rps)),
		rate:    rate,
	}
}

func (l *uberLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait cancelled: %w", ctx.Err())
	default:
		l.limiter.Take()
		return nil
	}
}

func (l *uberLimiter) SetLimit(rate Rate) error {
	if rate.Limit <= 0 || rate.Interval <= 0 {
		return fmt.Errorf("invalid rate limit: %+v", rate)
	}
	rps := float64(rate.Limit) / rate.Interval.Seconds()
	if rps < 1 {
		rps = 1
	}
	l.limiter = ratelimit.New(int(rps))
	l.rate = rate
	return nil
}
