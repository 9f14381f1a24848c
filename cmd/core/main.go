// cmd/core wires every collaborator scheduler.Deps names and runs the
// periodic analysis cycle to completion, per scheduler.go's own "built
// and wired by cmd/core" contract. Grounded on the teacher's
// cmd/indengine/main.go startup sequence: load config, connect
// persistence, restore/seed domain state, start the metrics/health
// server, launch the long-running engine, wait on SIGINT/SIGTERM, drain.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"levelcore/config"
	"levelcore/internal/exchange"
	"levelcore/internal/filter"
	"levelcore/internal/level"
	"levelcore/internal/logger"
	"levelcore/internal/metrics"
	"levelcore/internal/model"
	"levelcore/internal/notify"
	"levelcore/internal/ratelimit"
	"levelcore/internal/scheduler"
	"levelcore/internal/signal"
	"levelcore/internal/store/cache"
	"levelcore/internal/store/ohlcv"
	"levelcore/internal/store/sqlite"
	"levelcore/internal/triangle"
)

func main() {
	cfg := config.Load()
	log := logger.Init("levelcore-core", parseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := os.MkdirAll(dirOf(cfg.SQLitePath), 0o755); err != nil {
		log.Error("create sqlite data dir", "error", err)
		os.Exit(1)
	}
	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		log.Error("open sqlite store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	pairsRepo := sqlite.NewPairRepository(store)
	levelsRepo := sqlite.NewLevelRepository(store, 0.005) // same-level merge tolerance: 0.5%
	signalsRepo := sqlite.NewSignalRepository(store)
	liveLogsRepo := sqlite.NewLiveLogRepository(store)

	timeframes := parseTimeframes(cfg.Timeframes)
	if err := seedUniverse(ctx, pairsRepo, cfg); err != nil {
		log.Error("seed trading pair universe", "error", err)
		os.Exit(1)
	}

	exchangeClient := buildExchangeClient(cfg)
	candles := ohlcv.New(exchangeClient, store)

	var verdictCache model.VerdictCache
	if cfg.CacheBackend == "redis" {
		redisCache, err := cache.NewRedis(cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Error("connect redis verdict cache", "error", err)
			os.Exit(1)
		}
		verdictCache = redisCache
	} else {
		verdictCache = cache.NewMemory()
	}

	promMetrics := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.StartLivenessChecker(ctx, store.DB(), 30*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()
	defer func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutCancel()
		metricsSrv.Stop(shutCtx)
	}()

	triangleProvider := triangle.New()
	engine := level.New(levelsRepo, triangleProvider, level.Params{
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
	chain := filter.NewChain(verdictCache)
	lifecycle := signal.NewLifecycle(signalsRepo, liveLogsRepo, signal.Params{
		ReadyDistancePct:  cfg.ReadyDistancePct,
		TouchDistancePct:  cfg.TouchDistancePct,
		StopLossPct:       cfg.StopLossPct,
		DuplicatePriceTol: cfg.DuplicatePriceTol,
		DuplicateWindow:   time.Duration(cfg.SignalDuplicateWindow) * time.Hour,
	})
	tracker := signal.NewTracker(signalsRepo, liveLogsRepo)

	deps := scheduler.Deps{
		Pairs:     pairsRepo,
		Levels:    levelsRepo,
		Signals:   signalsRepo,
		Candles:   candles,
		Exchange:  exchangeClient,
		Engine:    engine,
		Chain:     chain,
		Lifecycle: lifecycle,
		Tracker:   tracker,
		Triangles: triangleProvider,
		Notifier:  buildNotifier(cfg),
		Cache:     verdictCache,
		Metrics:   promMetrics,
	}
	sched := scheduler.New(deps, scheduler.Params{
		AnalysisInterval:     time.Duration(cfg.AnalysisIntervalSeconds) * time.Second,
		MaxConcurrentFetches: int64(cfg.MaxConcurrentFetches),
		WorkerPoolSize:       cfg.WorkerPoolSize,
		Level: level.Params{
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
		},
		FilterPolicy: buildFilterPolicy(cfg),
		Signal: signal.Params{
			ReadyDistancePct:  cfg.ReadyDistancePct,
			TouchDistancePct:  cfg.TouchDistancePct,
			StopLossPct:       cfg.StopLossPct,
			DuplicatePriceTol: cfg.DuplicatePriceTol,
			DuplicateWindow:   time.Duration(cfg.SignalDuplicateWindow) * time.Hour,
		},
		SignalRetention: 30 * 24 * time.Hour,
		Timeframes:      timeframes,
	})

	health.SetSchedulerOK(true)
	health.SetExchangeOK(true)
	health.SetCacheOK(true)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- sched.Run(ctx) }()

	log.Info("levelcore core started", "pairs", len(cfg.Universe), "timeframes", cfg.Timeframes, "metrics_addr", cfg.MetricsAddr)

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
		cancel()
		<-runErrCh
	case err := <-runErrCh:
		if err != nil {
			log.Error("scheduler exited", "error", err)
		}
	}
	log.Info("levelcore core shutdown complete")
}

func buildExchangeClient(cfg *config.Config) model.ExchangeClient {
	rest := exchange.NewREST(exchange.RESTConfig{BaseURL: cfg.ExchangeREST, Timeout: 7 * time.Second})
	tickers := exchange.NewTickerCache(cfg.ExchangeWS, cfg.Universe)
	go tickers.Run(context.Background())

	limiter := ratelimit.New(20, 10)
	breaker := exchange.NewCircuitBreaker(5, 30*time.Second)
	return exchange.NewRetrier(hybridClient{rest: rest, tickers: tickers}, limiter, breaker, exchange.DefaultRetryConfig)
}

// hybridClient sources OHLCV from the REST poller and tickers from the
// websocket cache, falling back to a REST ticker fetch while the cache
// hasn't seen a price yet — matching the teacher's websocket-warm,
// REST-authoritative split between candles and live price.
type hybridClient struct {
	rest    *exchange.REST
	tickers *exchange.TickerCache
}

func (h hybridClient) FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, since time.Time, limit int) ([]model.Candle, error) {
	return h.rest.FetchOHLCV(ctx, symbol, tf, since, limit)
}

func (h hybridClient) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	if px, ok := h.tickers.Price(symbol); ok {
		return px, nil
	}
	return h.rest.FetchTicker(ctx, symbol)
}

func buildNotifier(cfg *config.Config) model.Notifier {
	if cfg.NotifyWebhookURL == "" {
		return notify.NewLogNotifier()
	}
	return notify.NewMultiNotifier(notify.NewLogNotifier(), notify.NewWebhookNotifier(cfg.NotifyWebhookURL))
}

func buildFilterPolicy(cfg *config.Config) map[model.Timeframe]filter.PolicyParams {
	policy := make(map[model.Timeframe]filter.PolicyParams, len(cfg.TimeframeMinScore))
	for tfStr, minScore := range cfg.TimeframeMinScore {
		policy[model.Timeframe(tfStr)] = filter.PolicyParams{
			MinScoreForTimeframe: minScore,
			BlockSideways:        cfg.BlockSideways,
			MaxDistancePct:       cfg.FilterMaxDistPct,
			MaxTestCount:         cfg.FilterMaxTestCnt,
		}
	}
	return policy
}

func seedUniverse(ctx context.Context, repo sqlite.PairStore, cfg *config.Config) error {
	for _, symbol := range cfg.Universe {
		if _, err := repo.Upsert(ctx, model.Pair{Symbol: symbol, Venue: cfg.ExchangeVenue, Enabled: true}); err != nil {
			return fmt.Errorf("upsert pair %s: %w", symbol, err)
		}
	}
	return nil
}

func parseTimeframes(raw []string) []model.Timeframe {
	tfs := make([]model.Timeframe, 0, len(raw))
	for _, r := range raw {
		tf := model.Timeframe(strings.TrimSpace(r))
		if tf.Valid() {
			tfs = append(tfs, tf)
		}
	}
	return tfs
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func dirOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return "."
}
