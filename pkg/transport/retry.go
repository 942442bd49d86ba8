// Package transport wraps outbound exchange calls with bounded retry
// and rate limiting. It is the single choke point between the bridge and
// the exchange client: the store routes every operation through a
// Caller so rate budget and retry policy are applied uniformly.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/veiloq/exchange-bridge/pkg/exchange"
	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/ratelimit"
)

// Config holds configuration for a retrying Caller.
type Config struct {
	// Attempts is the total retry budget per operation, first try included.
	Attempts uint

	// Delay is the fixed inter-attempt delay. Callers derive it from the
	// exchange's advertised rate limit.
	Delay time.Duration

	// RateLimit paces calls across operations. Zero disables pacing.
	RateLimit ratelimit.Rate

	// Optional logger
	Logger logging.Logger
}

// DefaultConfig returns a default transport configuration
func DefaultConfig() *Config {
	return &Config{
		Attempts: 5,
		Delay:    time.Second,
		RateLimit: ratelimit.Rate{
			Limit:    10,
			Interval: time.Second,
		},
		Logger: logging.NewLogger(),
	}
}

// Caller executes exchange operations with retries and rate limiting.
type Caller struct {
	config  *Config
	limiter ratelimit.RateLimiter
	logger  logging.Logger
}

// NewCaller creates a Caller with the given configuration.
func NewCaller(config *Config) *Caller {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}

	var limiter ratelimit.RateLimiter
	if config.RateLimit.Limit > 0 && config.RateLimit.Interval > 0 {
		limiter = ratelimit.NewTokenBucketLimiter(config.RateLimit)
	}

	return &Caller{
		config:  config,
		limiter: limiter,
		logger:  logger,
	}
}

// Call runs fn with the configured retry budget. Only transient errors
// (exchange.NetworkError, exchange.ExchangeError) are retried; logical
// errors surface immediately. After the budget is exhausted the last
// error is returned.
func (c *Caller) Call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait error: %w", err)
		}
	}

	err := retry.Do(
		func() error { return fn(ctx) },
		retry.Attempts(c.config.Attempts),
		retry.Delay(c.config.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(exchange.IsTransient),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying exchange call",
				logging.String("op", op),
				logging.Int("attempt", int(n+1)),
				logging.Error(err),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return nil
}
