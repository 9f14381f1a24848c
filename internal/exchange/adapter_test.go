package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"levelcore/internal/model"
	"levelcore/internal/ratelimit"
)

func TestRetrierSucceedsAfterTransientFailures(t *testing.T) {
	mock := NewMock()
	mock.Seed("BTCUSDT", model.TF1h, []model.Candle{{Symbol: "BTCUSDT", TF: model.TF1h, TS: time.Unix(0, 0), Close: 100}})

	calls := 0
	failing := failNTimes{inner: mock, n: 2, calls: &calls}

	r := NewRetrier(failing, ratelimit.New(10, 100), NewCircuitBreaker(10, time.Second), RetryConfig{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})
	candles, err := r.FetchOHLCV(context.Background(), "BTCUSDT", model.TF1h, time.Time{}, 10)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(candles))
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls (2 failures + 1 success), got %d", calls)
	}
}

func TestRetrierGivesUpAfterMaxAttempts(t *testing.T) {
	mock := NewMock()
	failing := failNTimes{inner: mock, n: 100, calls: new(int)}

	r := NewRetrier(failing, ratelimit.New(10, 100), NewCircuitBreaker(100, time.Second), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})
	_, err := r.FetchOHLCV(context.Background(), "BTCUSDT", model.TF1h, time.Time{}, 10)
	if err == nil {
		t.Fatal("expected an error after exhausting retry attempts")
	}
}

// failNTimes fails the first n calls to FetchOHLCV, then delegates to inner.
type failNTimes struct {
	inner model.ExchangeClient
	n     int
	calls *int
}

func (f failNTimes) FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, since time.Time, limit int) ([]model.Candle, error) {
	*f.calls++
	if *f.calls <= f.n {
		return nil, errors.New("transient upstream error")
	}
	return f.inner.FetchOHLCV(ctx, symbol, tf, since, limit)
}

func (f failNTimes) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	return f.inner.FetchTicker(ctx, symbol)
}
