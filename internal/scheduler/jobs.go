package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"levelcore/internal/filter"
	"levelcore/internal/indicator"
	"levelcore/internal/level"
	"levelcore/internal/logger"
	"levelcore/internal/model"
	"levelcore/internal/signal"
	"levelcore/internal/trend"
)

// candleTailRefresh fetches the latest candle for every (pair,
// timeframe) and lets the OHLCV store's own open-candle-overwrite logic
// keep the tail fresh (spec.md §4.5: "every 1 min ... upsert (open-
// candle overwrite only)").
func (s *Scheduler) candleTailRefresh(ctx context.Context) {
	pairs, err := s.enabledPairs(ctx, "candle_tail_refresh")
	if err != nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.WorkerPoolSize)
	for _, p := range pairs {
		for _, tf := range s.params.Timeframes {
			p, tf := p, tf
			g.Go(func() error {
				err := s.withFetchSlot(gctx, func(callCtx context.Context) error {
					_, err := s.deps.Candles.GetCandles(callCtx, p.Symbol, tf, 2)
					return err
				})
				if err != nil {
					slog.Warn("scheduler: candle tail refresh failed", "symbol", p.Symbol, "tf", tf, "error", err)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

// gapDetectionFill forces a full read over a 24h window per (pair,
// timeframe) so the store's interior-gap scan and backfill runs
// end-to-end, per spec.md §4.5's "every 6h ... scan for interior gaps
// up to 24h wide and backfill".
func (s *Scheduler) gapDetectionFill(ctx context.Context) {
	pairs, err := s.enabledPairs(ctx, "gap_detection_fill")
	if err != nil {
		return
	}
	since := time.Now().UTC().Add(-24 * time.Hour)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.WorkerPoolSize)
	for _, p := range pairs {
		for _, tf := range s.params.Timeframes {
			p, tf := p, tf
			g.Go(func() error {
				span, err := s.deps.Candles.GetCandlesSince(gctx, p.Symbol, tf, since)
				if err != nil {
					slog.Warn("scheduler: gap detection read failed", "symbol", p.Symbol, "tf", tf, "error", err)
					return nil
				}
				if err := s.withFetchSlot(gctx, func(callCtx context.Context) error {
					_, err := s.deps.Candles.GetCandles(callCtx, p.Symbol, tf, len(span)+1)
					return err
				}); err != nil {
					slog.Warn("scheduler: gap fill failed", "symbol", p.Symbol, "tf", tf, "error", err)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

// historicalEnsure guarantees at least historyDays of coverage per
// (pair, timeframe), per spec.md §4.5's "every 12h ... ≥7 days".
func (s *Scheduler) historicalEnsure(ctx context.Context) {
	pairs, err := s.enabledPairs(ctx, "historical_ensure")
	if err != nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.WorkerPoolSize)
	for _, p := range pairs {
		for _, tf := range s.params.Timeframes {
			p, tf := p, tf
			g.Go(func() error {
				if err := s.withFetchSlot(gctx, func(callCtx context.Context) error {
					return s.deps.Candles.EnsureHistory(callCtx, p.Symbol, tf, historyDays)
				}); err != nil {
					slog.Warn("scheduler: historical ensure failed", "symbol", p.Symbol, "tf", tf, "error", err)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

// perPairAnalysisCycle is the per-pair analysis task: for each enabled
// pair, guarded against re-entrance, discover levels, re-score, evict,
// re-check Elder screens, evaluate admission, and emit signals
// (spec.md §4.5's "every ~60s per pair").
func (s *Scheduler) perPairAnalysisCycle(ctx context.Context) {
	start := time.Now()
	pairs, err := s.enabledPairs(ctx, "per_pair_analysis")
	if err != nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.WorkerPoolSize)
	for _, p := range pairs {
		p := p
		g.Go(func() error {
			guard := s.guardFor(p.ID)
			if !guard.TryAcquire() {
				slog.Debug("scheduler: skipping pair, analysis already in flight", "symbol", p.Symbol)
				return nil
			}
			defer guard.Release()

			traceID := logger.GenerateTraceID(p.Symbol, start)
			pctx := logger.WithTraceID(gctx, traceID)

			if err := s.analyzePair(pctx, p); err != nil {
				reason := classifyError(err)
				if s.deps.Metrics != nil {
					s.deps.Metrics.PairErrorsTotal.WithLabelValues(reason).Inc()
				}
				streak := s.health.recordFailure(p.Symbol)
				attrs := append([]any{"symbol", p.Symbol, "reason", reason, "consecutive_failures", streak, "error", err}, logger.LogWithTrace(pctx)...)
				slog.Warn("scheduler: pair analysis failed", attrs...)
				return nil
			}
			s.health.recordSuccess(p.Symbol)
			if s.deps.Metrics != nil {
				s.deps.Metrics.PairsProcessed.Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.deps.Metrics != nil {
		s.deps.Metrics.CyclesTotal.Inc()
		s.deps.Metrics.CycleDur.Observe(time.Since(start).Seconds())
	}
}

// analyzePair runs one pair's sequential analysis: fetch candles,
// discover levels, filter, admit, emit. It holds no cross-step locks
// and surfaces any invariant violation to the per-pair task boundary
// (the caller above), which logs and counts the failure without
// touching other pairs. There is no transaction around the steps: each
// write (level upsert, verdict update, signal insert) is persisted as
// it happens, and an error partway through does not undo earlier ones.
func (s *Scheduler) analyzePair(ctx context.Context, pair model.Pair) error {
	btc, err := s.trendContext(ctx, "BTC/USDT", model.TF4h)
	if err != nil {
		return fmt.Errorf("scheduler: btc trend context: %w", err)
	}
	pairTrend, err := s.trendContext(ctx, pair.Symbol, model.TF4h)
	if err != nil {
		return fmt.Errorf("scheduler: pair trend context: %w", err)
	}

	var recent1h []model.Candle
	if err := s.withFetchSlot(ctx, func(callCtx context.Context) error {
		var err error
		recent1h, err = s.deps.Candles.GetCandles(callCtx, pair.Symbol, model.TF1h, oneHourIndicatorBars)
		return err
	}); err != nil {
		return fmt.Errorf("scheduler: 1h candles: %w", err)
	}
	rsi, macdLine, macdSignal := compute1hIndicators(recent1h)

	currentPx, err := s.fetchTicker(ctx, pair.Symbol)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, tf := range s.params.Timeframes {
		if err := s.analyzePairTimeframe(ctx, pair, tf, btc, pairTrend, recent1h, rsi, macdLine, macdSignal, currentPx, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) analyzePairTimeframe(
	ctx context.Context,
	pair model.Pair,
	tf model.Timeframe,
	btc, pairTrend filter.TrendContext,
	recent1h []model.Candle,
	rsi, macdLine, macdSignal, currentPx float64,
	now time.Time,
) error {
	var candles []model.Candle
	if err := s.withFetchSlot(ctx, func(callCtx context.Context) error {
		var err error
		candles, err = s.deps.Candles.GetCandles(callCtx, pair.Symbol, tf, analysisWindowBars)
		return err
	}); err != nil {
		return fmt.Errorf("scheduler: %s candles: %w", tf, err)
	}
	if len(candles) == 0 {
		slog.Debug("scheduler: data insufficient, skipping timeframe", "symbol", pair.Symbol, "tf", tf)
		return nil
	}

	scan, err := s.deps.Engine.Scan(ctx, pair, tf, candles, pairTrend.Classification, currentPx)
	if err != nil {
		return fmt.Errorf("scheduler: level scan %s: %w", tf, err)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.LevelsDiscovered.Add(float64(len(scan.Discovered)))
		if len(scan.Evicted) > 0 {
			s.deps.Metrics.LevelsBroken.Add(float64(len(scan.Evicted)))
		}
	}

	active, err := s.deps.Levels.Active(ctx, pair.ID)
	if err != nil {
		return fmt.Errorf("scheduler: active levels %s: %w", tf, err)
	}

	last := candles[len(candles)-1]
	for i := range active {
		lvl := active[i]
		if lvl.Timeframe != tf {
			continue
		}

		liveTouch := level.ObserveLiveTouch(&lvl, last, s.params.Level.LiveTouchTol)
		if err := s.deps.Engine.ObserveTouch(ctx, &lvl, last); err != nil {
			return fmt.Errorf("scheduler: observe touch %d: %w", lvl.ID, err)
		}

		if err := s.evaluateAndEmit(ctx, pair, &lvl, tf, btc, pairTrend, recent1h, rsi, macdLine, macdSignal, currentPx, liveTouch, now); err != nil {
			return err
		}
	}
	return nil
}

// evaluateAndEmit runs the filter chain for one active level, persists
// its refreshed verdict, and emits a signal if admitted.
func (s *Scheduler) evaluateAndEmit(
	ctx context.Context,
	pair model.Pair,
	lvl *model.Level,
	tf model.Timeframe,
	btc, pairTrend filter.TrendContext,
	recent1h []model.Candle,
	rsi, macdLine, macdSignal, currentPx float64,
	liveTouch bool,
	now time.Time,
) error {
	triangle, hasTriangle := s.deps.Triangles.ActiveTriangle(pair.Symbol, tf, lvl.Price)

	in := filter.Input{
		Pair:         pair.Symbol,
		Direction:    lvl.Type.Direction(),
		LevelType:    lvl.Type,
		LevelPrice:   lvl.Price,
		LevelScore:   lvl.Score,
		DistancePct:  lvl.DistancePct(currentPx),
		TestCount:    lvl.LiveTestCount,
		BTC:          btc,
		PairTrend:    pairTrend,
		Recent1h:     recent1h,
		RSI:          rsi,
		MACDLine:     macdLine,
		MACDSignal:   macdSignal,
		HasTriangle:  hasTriangle,
		TriangleBias: triangle.Bias,
		Policy:       s.params.FilterPolicy[tf],
	}

	verdict := s.deps.Chain.Evaluate(in, now)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ScreensEvaluated.Inc()
		if !verdict.Admitted {
			if name, reason := verdict.FirstFailingScreen(); name != "" {
				s.deps.Metrics.ScreensBlocked.WithLabelValues(name, reason).Inc()
			}
		}
	}

	lvl.Meta.Verdict = verdict
	lvl.Meta.VerdictTimestamp = now
	if err := s.deps.Levels.Update(ctx, *lvl); err != nil {
		return fmt.Errorf("scheduler: persist verdict %d: %w", lvl.ID, err)
	}

	cand := signal.Candidate{
		PairID:    pair.ID,
		Symbol:    pair.Symbol,
		Level:     lvl,
		Verdict:   verdict,
		CurrentPx: currentPx,
		LiveTouch: liveTouch,
	}
	sig, emitted, err := s.deps.Lifecycle.Emit(ctx, cand, now)
	if err != nil {
		return model.NewInvariantError("signal emission", err)
	}
	if !emitted {
		if s.deps.Metrics != nil {
			s.deps.Metrics.SignalsDuplicate.Inc()
		}
		return nil
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.SignalsGenerated.WithLabelValues(string(sig.Direction)).Inc()
		s.deps.Metrics.SignalsActive.Inc()
	}
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifySignal(ctx, *sig, "generated"); err != nil {
			slog.Warn("scheduler: notify generated failed", "signal_id", sig.ID, "error", err)
		}
	}
	return nil
}

// levelCleanupSweep is the global eviction pass enforcing every level
// invariant across all pairs, per spec.md §4.5's "every 5-10 min".
// It reads from the OHLCV store's warm ring cache rather than issuing
// fresh exchange fetches, so it never competes for the fetch semaphore.
func (s *Scheduler) levelCleanupSweep(ctx context.Context) {
	active, err := s.deps.Levels.AllActive(ctx)
	if err != nil {
		slog.Warn("scheduler: level cleanup sweep: list failed", "error", err)
		return
	}

	now := time.Now().UTC()
	policy := level.EvictionPolicy{
		BreakTolerancePct: s.params.Level.BreakTolerancePct,
		MaxLiveTests:      s.params.Level.MaxLiveTests,
		MaxAge:            s.params.Level.MaxAge,
		MaxDistancePct:    s.params.Level.MaxDistancePct,
	}

	evicted := 0
	for i := range active {
		lvl := active[i]
		recent := s.deps.Candles.CachedTail(lvl.Symbol, lvl.Timeframe, cleanupSweepWindow)
		if len(recent) == 0 {
			continue // series not warmed yet; the next per-pair tick will populate it
		}
		currentPx := recent[len(recent)-1].Close

		reason := level.Evaluate(&lvl, currentPx, recent, now, policy)
		if reason == level.EvictionNone {
			continue
		}
		if err := s.deps.Levels.Delete(ctx, lvl.ID); err != nil {
			slog.Warn("scheduler: level cleanup sweep: delete failed", "id", lvl.ID, "error", err)
			continue
		}
		evicted++
		slog.Info("level evicted by cleanup sweep", "symbol", lvl.Symbol, "tf", lvl.Timeframe, "price", lvl.Price, "reason", reason)
	}
	if evicted > 0 && s.deps.Metrics != nil {
		s.deps.Metrics.LevelsBroken.Add(float64(evicted))
	}

	if sweeper, ok := s.deps.Cache.(interface{ Sweep() int }); ok {
		if n := sweeper.Sweep(); n > 0 {
			slog.Debug("scheduler: verdict cache sweep removed expired entries", "count", n)
		}
	}
}

// outcomeUpdate advances MFE/MAE and threshold timestamps for every
// ACTIVE signal and closes any that have hit their stop loss or fixed
// their result, per spec.md §4.5's "every ~30s".
func (s *Scheduler) outcomeUpdate(ctx context.Context) {
	active, err := s.deps.Signals.ActiveAll(ctx)
	if err != nil {
		slog.Warn("scheduler: outcome updater: list active failed", "error", err)
		return
	}

	now := time.Now().UTC()
	for i := range active {
		sig := active[i]
		candles, err := s.deps.Candles.GetCandlesSince(ctx, sig.Symbol, model.TF1m, sig.Timestamp)
		if err != nil {
			slog.Warn("scheduler: outcome updater: candles failed", "symbol", sig.Symbol, "error", err)
			continue
		}
		if len(candles) == 0 {
			continue
		}

		if err := s.deps.Tracker.Update(ctx, &sig, candles, now); err != nil {
			slog.Warn("scheduler: outcome updater: update failed", "signal_id", sig.ID, "error", err)
			continue
		}

		last := candles[len(candles)-1].Close
		var exitReason model.ExitReason
		switch {
		case stopLossBreached(&sig, last):
			exitReason = model.ExitStopLoss
		case sig.ResultFixed != nil:
			exitReason = model.ExitThresholdFavorable
			if *sig.ResultFixed < 0 {
				exitReason = model.ExitThresholdAdverse
			}
		default:
			continue
		}

		if err := s.deps.Tracker.Close(ctx, &sig, last, exitReason, now); err != nil {
			slog.Warn("scheduler: outcome updater: close failed", "signal_id", sig.ID, "error", err)
			continue
		}
		s.closeAccounting(ctx, &sig, exitReason)
	}
}

// staleSignalCleanup archives signals older than the retention window,
// closing any still ACTIVE with ExitRetention first, per spec.md §4.5's
// daily cadence.
func (s *Scheduler) staleSignalCleanup(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.params.SignalRetention)
	stale, err := s.deps.Signals.OlderThan(ctx, cutoff)
	if err != nil {
		slog.Warn("scheduler: stale signal cleanup: query failed", "error", err)
		return
	}

	now := time.Now().UTC()
	for i := range stale {
		sig := stale[i]
		if sig.Status == model.SignalActive {
			if err := s.deps.Tracker.Close(ctx, &sig, sig.EntryPrice, model.ExitRetention, now); err != nil {
				slog.Warn("scheduler: stale signal cleanup: close failed", "signal_id", sig.ID, "error", err)
				continue
			}
			s.closeAccounting(ctx, &sig, model.ExitRetention)
		}
		sig.Archived = true
		if err := s.deps.Signals.Update(ctx, sig); err != nil {
			slog.Warn("scheduler: stale signal cleanup: archive failed", "signal_id", sig.ID, "error", err)
		}
	}
}

func (s *Scheduler) closeAccounting(ctx context.Context, sig *model.Signal, reason model.ExitReason) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.SignalsClosed.WithLabelValues(string(reason)).Inc()
		s.deps.Metrics.SignalsActive.Dec()
	}
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifySignal(ctx, *sig, "closed"); err != nil {
			slog.Warn("scheduler: notify closed failed", "signal_id", sig.ID, "error", err)
		}
	}
}

func stopLossBreached(sig *model.Signal, price float64) bool {
	if sig.Direction == model.DirectionLong {
		return price <= sig.StopLoss
	}
	return price >= sig.StopLoss
}

// enabledPairs fetches the universe, logging and returning an error
// sentinel the caller can use to bail out of the whole task cleanly.
func (s *Scheduler) enabledPairs(ctx context.Context, task string) ([]model.Pair, error) {
	pairs, err := s.deps.Pairs.Enabled(ctx)
	if err != nil {
		slog.Warn("scheduler: list enabled pairs failed", "task", task, "error", err)
		return nil, err
	}
	return pairs, nil
}

// trendContext classifies symbol's trend on tf from a one-shot series
// read, used for Screen 1's BTC-market and pair's-own-trend context.
func (s *Scheduler) trendContext(ctx context.Context, symbol string, tf model.Timeframe) (filter.TrendContext, error) {
	var candles []model.Candle
	if err := s.withFetchSlot(ctx, func(callCtx context.Context) error {
		var err error
		candles, err = s.deps.Candles.GetCandles(callCtx, symbol, tf, trendWarmupBars)
		return err
	}); err != nil {
		return filter.TrendContext{}, err
	}
	cls, ema20, ema50, adx := trend.FromSeries(candles)
	return filter.TrendContext{Classification: cls, EMA20: ema20, EMA50: ema50, ADX: adx}, nil
}

// compute1hIndicators runs fresh RSI(14) and MACD(12,26,9) over an
// ascending 1h candle series for Screen 2's oscillator checks.
func compute1hIndicators(candles []model.Candle) (rsi, macdLine, macdSignal float64) {
	r := indicator.NewRSI(14)
	m := indicator.NewMACD(12, 26, 9)
	for _, c := range candles {
		r.Update(c)
		m.Update(c)
	}
	return r.Value(), m.Line(), m.Signal()
}
