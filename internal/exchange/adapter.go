// Package exchange provides reference implementations of
// model.ExchangeClient: a REST poller, a websocket-backed ticker cache,
// and a deterministic in-memory mock for tests and the backtest tool.
// Every call is wrapped with a retry budget and a circuit breaker so a
// flaky upstream degrades a pair's cycle instead of the whole process.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"levelcore/internal/model"
	"levelcore/internal/ratelimit"
)

// RetryConfig bounds how hard an adapter call retries before giving up.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig mirrors the teacher's backoff-and-trip idiom: a
// handful of attempts with exponential backoff plus jitter.
var DefaultRetryConfig = RetryConfig{MaxAttempts: 4, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}

// Retrier wraps a model.ExchangeClient with a token-bucket rate limit,
// a circuit breaker, and exponential-backoff retries, per spec.md §5's
// "≤8 concurrent exchange fetches" and "timeouts and retry budgets on
// exchange calls" requirements.
type Retrier struct {
	inner   model.ExchangeClient
	limiter *ratelimit.TokenBucket
	breaker *CircuitBreaker
	retry   RetryConfig
}

// NewRetrier wraps inner with rate limiting, circuit breaking, and retry.
func NewRetrier(inner model.ExchangeClient, limiter *ratelimit.TokenBucket, breaker *CircuitBreaker, retry RetryConfig) *Retrier {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig
	}
	return &Retrier{inner: inner, limiter: limiter, breaker: breaker, retry: retry}
}

func (r *Retrier) FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, since time.Time, limit int) ([]model.Candle, error) {
	var candles []model.Candle
	err := r.call(ctx, func() error {
		var err error
		candles, err = r.inner.FetchOHLCV(ctx, symbol, tf, since, limit)
		return err
	})
	return candles, err
}

func (r *Retrier) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := r.call(ctx, func() error {
		var err error
		price, err = r.inner.FetchTicker(ctx, symbol)
		return err
	})
	return price, err
}

func (r *Retrier) call(ctx context.Context, fn func() error) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < r.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(r.retry, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		var err error
		if r.breaker != nil {
			err = r.breaker.Execute(fn)
		} else {
			err = fn()
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		slog.Warn("exchange call failed, retrying", "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("exchange: exhausted %d attempts: %w", r.retry.MaxAttempts, lastErr)
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := cfg.BaseDelay * time.Duration(1<<uint(attempt-1))
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d/2 + jitter
}
