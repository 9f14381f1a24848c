// cmd/backtest replays one fixed historical window through the level
// engine, filter chain, and signal lifecycle for a single pair/timeframe,
// for grounding config tuning decisions in data rather than intuition.
// It is explicitly not parameter optimization or predictive modelling
// (spec.md §1 Non-goals) — one pass over one window, no search over
// parameter space. Grounded on the teacher's cmd/backtest/main.go idiom:
// flags, a SQLite reader, a replay loop over historical bars, and a
// boxed summary printout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"levelcore/config"
	"levelcore/internal/exchange"
	"levelcore/internal/filter"
	"levelcore/internal/indicator"
	"levelcore/internal/level"
	"levelcore/internal/logger"
	"levelcore/internal/model"
	"levelcore/internal/signal"
	"levelcore/internal/store/cache"
	"levelcore/internal/store/ohlcv"
	"levelcore/internal/store/sqlite"
	"levelcore/internal/trend"
	"levelcore/internal/triangle"
)

func main() {
	dbPath := flag.String("db", "data/levelcore.db", "sqlite database to read historical candles from (read-only)")
	symbol := flag.String("symbol", "BTC/USDT", "pair to replay")
	tfFlag := flag.String("tf", "1h", "level timeframe to replay signals on")
	btcSymbol := flag.String("btc-symbol", "BTC/USDT", "symbol used for the market-wide trend context")
	lookback := flag.Duration("lookback", 60*24*time.Hour, "fixed historical window to replay, ending now")
	minWindow := flag.Int("min-window", 60, "bars of warm-up before the first scan")
	flag.Parse()

	log := logger.Init("levelcore-backtest", slog.LevelInfo)

	tf, err := model.ParseTimeframe(*tfFlag)
	if err != nil {
		log.Error("invalid timeframe", "error", err)
		os.Exit(1)
	}

	cfg := config.Load()

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Error("open sqlite store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	since := time.Now().UTC().Add(-*lookback)

	primary, err := store.Since(ctx, *symbol, tf, since)
	if err != nil {
		log.Error("read primary series", "error", err)
		os.Exit(1)
	}
	if len(primary) < *minWindow {
		log.Error("not enough history for the requested window", "have", len(primary), "need", *minWindow)
		os.Exit(1)
	}
	pairTrendSeries, err := store.Since(ctx, *symbol, model.TF4h, since)
	if err != nil {
		log.Error("read pair trend series", "error", err)
		os.Exit(1)
	}
	btcTrendSeries, err := store.Since(ctx, *btcSymbol, model.TF4h, since)
	if err != nil {
		log.Error("read btc trend series", "error", err)
		os.Exit(1)
	}
	indicatorSeries, err := store.Since(ctx, *symbol, model.TF1h, since)
	if err != nil {
		log.Error("read 1h indicator series", "error", err)
		os.Exit(1)
	}

	// One fixed historical window, loaded through a real exchange adapter
	// and the real OHLCV store once, rather than re-fetched bar by bar —
	// the replay loop below walks the in-memory result, it never calls
	// back out to the exchange again.
	mock := exchange.NewMock()
	mock.Seed(*symbol, tf, primary)
	mock.SetTicker(*symbol, primary[len(primary)-1].Close)
	replayRepo := newReplayCandleRepo()
	candles := ohlcv.New(mock, replayRepo)
	window, err := candles.GetCandles(ctx, *symbol, tf, len(primary))
	if err != nil {
		log.Error("load replay window through ohlcv store", "error", err)
		os.Exit(1)
	}

	pairCls, pairEMA20, pairEMA50, pairADX := trend.FromSeries(pairTrendSeries)
	btcCls, btcEMA20, btcEMA50, btcADX := trend.FromSeries(btcTrendSeries)
	pairTrend := filter.TrendContext{Classification: pairCls, EMA20: pairEMA20, EMA50: pairEMA50, ADX: pairADX}
	btcTrend := filter.TrendContext{Classification: btcCls, EMA20: btcEMA20, EMA50: btcEMA50, ADX: btcADX}
	rsi, macdLine, macdSignal := compute1hIndicators(indicatorSeries)

	pair := model.Pair{ID: 1, Symbol: *symbol, Venue: cfg.ExchangeVenue, Enabled: true}
	levels := newReplayLevelRepo()
	signals := newReplaySignalRepo()
	logs := newReplayLiveLogRepo()

	triangleProvider := triangle.New()
	engine := level.New(levels, triangleProvider, level.Params{
		ExcludeRecentMinutes: cfg.ExcludeRecentMinutes,
		FractalLookback:      cfg.FractalLookback,
		HistoricalTouchTol:   cfg.HistoricalTouchTol,
		LiveTouchTol:         cfg.LiveTouchTol,
		BreakTolerancePct:    cfg.BreakTolerance,
		MinHistoricalTouches: cfg.MinHistoricalTouches,
		MaxHistoricalTouches: cfg.MaxHistoricalTouches,
		MaxLiveTests:         cfg.MaxLiveTests,
		MinDistancePct:       cfg.MinDistancePct,
		MaxDistancePct:       cfg.MaxDistancePct,
		MaxAge:               time.Duration(cfg.LevelMaxAgeHours) * time.Hour,
	})
	chain := filter.NewChain(cache.NewMemory())
	policy := filter.PolicyParams{
		MinScoreForTimeframe: cfg.TimeframeMinScore[string(tf)],
		BlockSideways:        cfg.BlockSideways,
		MaxDistancePct:       cfg.FilterMaxDistPct,
		MaxTestCount:         cfg.FilterMaxTestCnt,
	}
	lifecycle := signal.NewLifecycle(signals, logs, signal.Params{
		ReadyDistancePct:  cfg.ReadyDistancePct,
		TouchDistancePct:  cfg.TouchDistancePct,
		StopLossPct:       cfg.StopLossPct,
		DuplicatePriceTol: cfg.DuplicatePriceTol,
		DuplicateWindow:   time.Duration(cfg.SignalDuplicateWindow) * time.Hour,
	})
	tracker := signal.NewTracker(signals, logs)

	log.Info("replaying", "symbol", *symbol, "tf", tf, "bars", len(window), "from", window[0].TS, "to", window[len(window)-1].TS)

	for i := *minWindow; i < len(window); i++ {
		bar := window[i]
		asOf := bar.TS.Add(tf.Duration())
		slice := window[:i+1]

		scan, err := engine.Scan(ctx, pair, tf, slice, pairTrend.Classification, bar.Close)
		if err != nil {
			log.Warn("level scan failed", "at", bar.TS, "error", err)
			continue
		}
		if len(scan.Discovered) > 0 {
			log.Debug("levels discovered", "at", bar.TS, "count", len(scan.Discovered))
		}

		active, err := levels.Active(ctx, pair.ID)
		if err != nil {
			log.Warn("read active levels failed", "at", bar.TS, "error", err)
			continue
		}
		for j := range active {
			lvl := active[j]
			if lvl.Timeframe != tf {
				continue
			}
			liveTouch := level.ObserveLiveTouch(&lvl, bar, cfg.LiveTouchTol)
			if err := engine.ObserveTouch(ctx, &lvl, bar); err != nil {
				log.Warn("observe touch failed", "level_id", lvl.ID, "error", err)
				continue
			}

			triangleGeo, hasTriangle := triangleProvider.ActiveTriangle(pair.Symbol, tf, lvl.Price)
			in := filter.Input{
				Pair:         pair.Symbol,
				Direction:    lvl.Type.Direction(),
				LevelType:    lvl.Type,
				LevelPrice:   lvl.Price,
				LevelScore:   lvl.Score,
				DistancePct:  lvl.DistancePct(bar.Close),
				TestCount:    lvl.LiveTestCount,
				BTC:          btcTrend,
				PairTrend:    pairTrend,
				Recent1h:     indicatorSeries,
				RSI:          rsi,
				MACDLine:     macdLine,
				MACDSignal:   macdSignal,
				HasTriangle:  hasTriangle,
				TriangleBias: triangleGeo.Bias,
				Policy:       policy,
			}
			verdict := chain.Evaluate(in, asOf)
			lvl.Meta.Verdict = verdict
			lvl.Meta.VerdictTimestamp = asOf
			if err := levels.Update(ctx, lvl); err != nil {
				log.Warn("persist verdict failed", "level_id", lvl.ID, "error", err)
				continue
			}

			cand := signal.Candidate{
				PairID:    pair.ID,
				Symbol:    pair.Symbol,
				Level:     &lvl,
				Verdict:   verdict,
				CurrentPx: bar.Close,
				LiveTouch: liveTouch,
			}
			if _, emitted, err := lifecycle.Emit(ctx, cand, asOf); err != nil {
				log.Warn("signal emission failed", "level_id", lvl.ID, "error", err)
			} else if emitted {
				log.Debug("signal emitted", "at", asOf, "price", lvl.Price, "direction", lvl.Type.Direction())
			}
		}
	}

	settleOutcomes(ctx, tracker, signals, window, log)
	printSummary(*symbol, tf, window, signals.rows)
}

// settleOutcomes folds the full replay window into every signal's
// MFE/MAE and closes it if the window's last close is past its stop loss
// or a fixed result threshold was crossed, at the replay's own timeframe
// granularity (the stop is not checked bar by bar) — coarser than
// the live system's 1-minute tracking, an accepted simplification for
// an offline summary tool.
func settleOutcomes(ctx context.Context, tracker *signal.Tracker, signals *replaySignalRepo, window []model.Candle, log *slog.Logger) {
	now := window[len(window)-1].TS
	for i := range signals.rows {
		sig := signals.rows[i]
		if sig.Status != model.SignalActive {
			continue
		}
		var tail []model.Candle
		for _, c := range window {
			if !c.TS.Before(sig.Timestamp) {
				tail = append(tail, c)
			}
		}
		if len(tail) == 0 {
			continue
		}
		if err := tracker.Update(ctx, &sig, tail, now); err != nil {
			log.Warn("outcome update failed", "signal_id", sig.ID, "error", err)
			continue
		}

		last := tail[len(tail)-1].Close
		var reason model.ExitReason
		switch {
		case stopLossBreached(&sig, last):
			reason = model.ExitStopLoss
		case sig.ResultFixed != nil:
			reason = model.ExitThresholdFavorable
			if *sig.ResultFixed < 0 {
				reason = model.ExitThresholdAdverse
			}
		default:
			continue
		}
		if err := tracker.Close(ctx, &sig, last, reason, now); err != nil {
			log.Warn("outcome close failed", "signal_id", sig.ID, "error", err)
		}
	}
}

func stopLossBreached(sig *model.Signal, price float64) bool {
	if sig.Direction == model.DirectionLong {
		return price <= sig.StopLoss
	}
	return price >= sig.StopLoss
}

func compute1hIndicators(candles []model.Candle) (rsi, macdLine, macdSignal float64) {
	r := indicator.NewRSI(14)
	m := indicator.NewMACD(12, 26, 9)
	for _, c := range candles {
		r.Update(c)
		m.Update(c)
	}
	return r.Value(), m.Line(), m.Signal()
}

func printSummary(symbol string, tf model.Timeframe, window []model.Candle, signals []model.Signal) {
	sort.Slice(signals, func(i, j int) bool { return signals[i].Timestamp.Before(signals[j].Timestamp) })

	var closed, favorable, adverse, stopped, stillActive int
	for _, s := range signals {
		if s.Status != model.SignalClosed {
			stillActive++
			continue
		}
		closed++
		switch {
		case s.ExitReason != nil && *s.ExitReason == model.ExitStopLoss:
			stopped++
		case s.ResultFixed != nil && *s.ResultFixed > 0:
			favorable++
		case s.ResultFixed != nil && *s.ResultFixed < 0:
			adverse++
		}
	}

	winRate := 0.0
	if closed > 0 {
		winRate = float64(favorable) / float64(closed) * 100
	}

	line := strings.Repeat("-", 52)
	fmt.Println(line)
	fmt.Printf("backtest summary: %s %s\n", symbol, tf)
	fmt.Printf("window:            %s -> %s\n", window[0].TS.Format(time.RFC3339), window[len(window)-1].TS.Format(time.RFC3339))
	fmt.Printf("bars replayed:     %d\n", len(window))
	fmt.Printf("signals emitted:   %d\n", len(signals))
	fmt.Printf("  closed:          %d\n", closed)
	fmt.Printf("    favorable:     %d\n", favorable)
	fmt.Printf("    adverse:       %d\n", adverse)
	fmt.Printf("    stopped out:   %d\n", stopped)
	fmt.Printf("  still active:    %d\n", stillActive)
	fmt.Printf("win rate:          %.1f%%\n", winRate)
	fmt.Println(line)
}
