// Package ohlcv implements the authoritative per-(symbol, timeframe)
// candle store (spec.md §4.1): an in-memory ring cache backed by SQLite,
// fetching from the upstream exchange on a miss or interior gap and
// enforcing closed-candle immutability at the write boundary.
package ohlcv

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"levelcore/internal/model"
	"levelcore/internal/ringbuf"
)

const (
	// gapFactor is the multiple of a timeframe's duration beyond which a
	// discontinuity between two stored candles counts as an interior gap.
	gapFactor = 1.5
	// batchChunkSize bounds how many candles one backfill fetch asks for.
	batchChunkSize = 1000
	// minHistoryCoverage is ensure_history's "≥80% of expected count" guarantee.
	minHistoryCoverage = 0.80
	backfillDelay       = 150 * time.Millisecond
)

// Store serves get_candles/get_candles_since, guaranteeing the tail is
// fresh and the window is contiguous, per spec.md §4.1.
type Store struct {
	exchange model.ExchangeClient
	repo     model.CandleRepository

	// cache holds one lock-free ring per (symbol, tf) series as a warm,
	// in-memory mirror of the tail GetCandles just served — read by
	// CachedTail for callers (e.g. the scheduler's level cleanup sweep)
	// that want the last-known window without a repo round trip.
	cache map[string]*ringbuf.Ring
}

// New creates an OHLCV store fronting repo with exchange as the
// upstream fetch-on-miss source. Callers should construct one Store per
// process; each (symbol, tf) series gets its own ring buffer lazily.
func New(exchange model.ExchangeClient, repo model.CandleRepository) *Store {
	return &Store{exchange: exchange, repo: repo, cache: make(map[string]*ringbuf.Ring)}
}

func seriesKey(symbol string, tf model.Timeframe) string { return symbol + ":" + string(tf) }

func (s *Store) ringFor(symbol string, tf model.Timeframe) *ringbuf.Ring {
	key := seriesKey(symbol, tf)
	if r, ok := s.cache[key]; ok {
		return r
	}
	r := ringbuf.New(4096)
	s.cache[key] = r
	return r
}

// GetCandles returns up to limit most recent candles for (symbol, tf),
// ascending by time, with the tail refreshed from upstream and any
// interior gap backfilled. The returned slice's last element is always
// the freshest candle available at call time.
func (s *Store) GetCandles(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("ohlcv: unsupported timeframe %q", tf)
	}
	if limit < 1 {
		limit = 1
	}

	stored, err := s.repo.Recent(ctx, symbol, tf, limit)
	if err != nil {
		return nil, fmt.Errorf("ohlcv: read recent %s %s: %w", symbol, tf, err)
	}

	if len(stored) < limit {
		if err := s.fillMissingTail(ctx, symbol, tf, limit); err != nil {
			if len(stored) == 0 {
				slog.Warn("ohlcv: upstream failed and nothing stored, returning empty", "symbol", symbol, "tf", tf, "error", err)
				return nil, nil
			}
			slog.Warn("ohlcv: upstream failed, serving from store", "symbol", symbol, "tf", tf, "error", err)
		} else {
			stored, err = s.repo.Recent(ctx, symbol, tf, limit)
			if err != nil {
				return nil, fmt.Errorf("ohlcv: read recent after backfill %s %s: %w", symbol, tf, err)
			}
		}
	}

	if gapStart, gapEnd, found := findInteriorGap(stored, tf); found {
		if err := s.fillGap(ctx, symbol, tf, gapStart, gapEnd); err != nil {
			slog.Warn("ohlcv: gap fill failed", "symbol", symbol, "tf", tf, "error", err)
		} else {
			stored, err = s.repo.Recent(ctx, symbol, tf, limit)
			if err != nil {
				return nil, fmt.Errorf("ohlcv: read recent after gap fill %s %s: %w", symbol, tf, err)
			}
		}
	}

	if err := s.refreshOpenCandle(ctx, symbol, tf); err != nil {
		slog.Warn("ohlcv: open-candle refresh failed", "symbol", symbol, "tf", tf, "error", err)
	} else {
		stored, err = s.repo.Recent(ctx, symbol, tf, limit)
		if err != nil {
			return nil, fmt.Errorf("ohlcv: read recent after refresh %s %s: %w", symbol, tf, err)
		}
	}

	s.warm(symbol, tf, stored)
	return stored, nil
}

// warm pushes freshly-served candles into the series' ring cache so
// CachedTail can serve a fast, lock-free read of the last-known window.
func (s *Store) warm(symbol string, tf model.Timeframe, candles []model.Candle) {
	if len(candles) == 0 {
		return
	}
	r := s.ringFor(symbol, tf)
	for _, c := range candles {
		for r.Len() >= r.Cap() {
			r.Pop() // make room: ring mirrors the *recent* tail, not full history
		}
		r.Push(c)
	}
}

// CachedTail returns up to limit of the most recently warmed candles
// for (symbol, tf) without touching the repository, oldest first.
func (s *Store) CachedTail(symbol string, tf model.Timeframe, limit int) []model.Candle {
	r, ok := s.cache[seriesKey(symbol, tf)]
	if !ok {
		return nil
	}
	return r.Snapshot(limit)
}

// GetCandlesSince returns every stored candle for (symbol, tf) at or
// after since, ascending by time.
func (s *Store) GetCandlesSince(ctx context.Context, symbol string, tf model.Timeframe, since time.Time) ([]model.Candle, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("ohlcv: unsupported timeframe %q", tf)
	}
	candles, err := s.repo.Since(ctx, symbol, tf, since)
	if err != nil {
		return nil, fmt.Errorf("ohlcv: read since %s %s: %w", symbol, tf, err)
	}
	return candles, nil
}

// fillMissingTail fetches from upstream to cover a short store.
func (s *Store) fillMissingTail(ctx context.Context, symbol string, tf model.Timeframe, limit int) error {
	fetched, err := s.exchange.FetchOHLCV(ctx, symbol, tf, time.Time{}, limit)
	if err != nil {
		return fmt.Errorf("fetch tail: %w", err)
	}
	return s.upsertBatched(ctx, fetched, tf.BucketStart(time.Now().UTC()))
}

// fillGap fetches just the missing span [from, to].
func (s *Store) fillGap(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) error {
	fetched, err := s.exchange.FetchOHLCV(ctx, symbol, tf, from, 0)
	if err != nil {
		return fmt.Errorf("fetch gap: %w", err)
	}
	var span []model.Candle
	for _, c := range fetched {
		if !c.TS.After(to) {
			span = append(span, c)
		}
	}
	return s.upsertBatched(ctx, span, tf.BucketStart(time.Now().UTC()))
}

// refreshOpenCandle re-fetches just the current, in-progress bucket and
// overwrites it — the only candle allowed to be rewritten in steady state.
func (s *Store) refreshOpenCandle(ctx context.Context, symbol string, tf model.Timeframe) error {
	fetched, err := s.exchange.FetchOHLCV(ctx, symbol, tf, time.Time{}, 1)
	if err != nil {
		return fmt.Errorf("refresh open candle: %w", err)
	}
	if len(fetched) == 0 {
		return nil
	}
	latest := fetched[len(fetched)-1]
	now := time.Now().UTC()
	allowOverwrite := !latest.Closed(now)
	return s.repo.Upsert(ctx, latest, allowOverwrite)
}

// upsertBatched writes candles in chunks of at most batchChunkSize,
// marking each overwritable only while its own bucket is still open.
func (s *Store) upsertBatched(ctx context.Context, candles []model.Candle, _ time.Time) error {
	if len(candles) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for start := 0; start < len(candles); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(candles) {
			end = len(candles)
		}
		chunk := candles[start:end]
		closed := make([]model.Candle, 0, len(chunk))
		var openCandle *model.Candle
		for i := range chunk {
			c := chunk[i]
			if c.Closed(now) {
				closed = append(closed, c)
			} else {
				openCandle = &chunk[i]
			}
		}
		if len(closed) > 0 {
			if err := s.repo.UpsertBatch(ctx, closed, false); err != nil {
				return fmt.Errorf("upsert closed batch: %w", err)
			}
		}
		if openCandle != nil {
			if err := s.repo.Upsert(ctx, *openCandle, true); err != nil {
				return fmt.Errorf("upsert open candle: %w", err)
			}
		}
	}
	return nil
}

// RepairHistory performs an explicit historical repair: the only
// legitimate path (spec.md §4.1) to overwrite already-closed candles,
// used for backfilling bad data outside steady-state operation.
func (s *Store) RepairHistory(ctx context.Context, candles []model.Candle) error {
	return s.repo.UpsertBatch(ctx, candles, true)
}

// EnsureHistory guarantees at least minHistoryCoverage of the expected
// candle count across [now-days, now] is stored for (symbol, tf),
// fetching missing history in chunked batches with a small inter-request
// delay to stay polite to the upstream rate limit.
func (s *Store) EnsureHistory(ctx context.Context, symbol string, tf model.Timeframe, days int) error {
	if !tf.Valid() {
		return fmt.Errorf("ohlcv: unsupported timeframe %q", tf)
	}
	window := time.Duration(days) * 24 * time.Hour
	since := time.Now().UTC().Add(-window)
	expected := int(window / tf.Duration())
	if expected <= 0 {
		return nil
	}

	have, err := s.repo.Count(ctx, symbol, tf, since, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ensure history count: %w", err)
	}
	if float64(have) >= minHistoryCoverage*float64(expected) {
		return nil
	}

	cursor := since
	for cursor.Before(time.Now().UTC()) {
		fetched, err := s.exchange.FetchOHLCV(ctx, symbol, tf, cursor, batchChunkSize)
		if err != nil {
			return fmt.Errorf("ensure history fetch: %w", err)
		}
		if len(fetched) == 0 {
			break
		}
		if err := s.upsertBatched(ctx, fetched, time.Now().UTC()); err != nil {
			return fmt.Errorf("ensure history upsert: %w", err)
		}
		last := fetched[len(fetched)-1].TS
		if !last.After(cursor) {
			break
		}
		cursor = last.Add(tf.Duration())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backfillDelay):
		}
	}
	return nil
}

// findInteriorGap scans a candle slice, already sorted ascending by the
// caller (Recent/Since guarantee this), for a discontinuity wider than
// gapFactor×tf between two adjacent stored candles. Linear, runs once
// per GetCandles call, per spec.md §4.1.
func findInteriorGap(candles []model.Candle, tf model.Timeframe) (from, to time.Time, found bool) {
	if len(candles) < 2 {
		return time.Time{}, time.Time{}, false
	}
	threshold := time.Duration(float64(tf.Duration()) * gapFactor)
	sorted := candles
	if !sort.SliceIsSorted(sorted, func(i, j int) bool { return sorted[i].TS.Before(sorted[j].TS) }) {
		sorted = append([]model.Candle(nil), candles...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].TS.Before(sorted[j].TS) })
	}
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].TS.Sub(sorted[i-1].TS)
		if gap > threshold {
			return sorted[i-1].TS.Add(tf.Duration()), sorted[i].TS.Add(-tf.Duration()), true
		}
	}
	return time.Time{}, time.Time{}, false
}
