// Package scheduler drives the OHLCV store, level engine, filter
// chain, and signal lifecycle on the periodic cadence spec.md §4.5
// describes, with the bounded concurrency spec.md §5 requires.
// Grounded on the teacher's cmd/indengine/main.go goroutine-per-subsystem
// wiring (one ticker-driven goroutine per concern, select on ctx.Done
// and the ticker, graceful drain on shutdown). The per-pair "currently
// analysing" guard reuses two of the states of
// internal/exchange.CircuitBreaker's state machine rather than a
// raw sync.Mutex.TryLock, so guard state is observable the same way
// circuit-breaker state is.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"levelcore/internal/exchange"
	"levelcore/internal/filter"
	"levelcore/internal/level"
	"levelcore/internal/metrics"
	"levelcore/internal/model"
	"levelcore/internal/signal"
	"levelcore/internal/store/ohlcv"
)

// Cadences for the seven periodic tasks of spec.md §4.5's table.
const (
	candleTailInterval      = 1 * time.Minute
	gapDetectInterval       = 6 * time.Hour
	historicalEnsureInterval = 12 * time.Hour
	levelCleanupInterval    = 7 * time.Minute
	outcomeUpdateInterval   = 30 * time.Second
	staleSignalInterval     = 24 * time.Hour

	drainTimeout        = 30 * time.Second
	exchangeCallTimeout = 10 * time.Second
	historyDays         = 7

	trendWarmupBars      = 120
	oneHourIndicatorBars = 120
	analysisWindowBars   = 300
	cleanupSweepWindow   = 20
)

// Deps bundles every collaborator the scheduler drives. All of them are
// built and wired by cmd/core; the scheduler itself owns no persistence
// or network code of its own.
type Deps struct {
	Pairs     model.PairRepository
	Levels    model.LevelRepository
	Signals   model.SignalRepository
	Candles   *ohlcv.Store
	Exchange  model.ExchangeClient
	Engine    *level.Engine
	Chain     *filter.Chain
	Lifecycle *signal.Lifecycle
	Tracker   *signal.Tracker
	Triangles model.TriangleProvider
	Notifier  model.Notifier // may be nil: purely an outbound side-channel
	Cache     model.VerdictCache
	Metrics   *metrics.Metrics
}

// Params bundles every scheduler tunable sourced from config (spec.md §6).
type Params struct {
	AnalysisInterval     time.Duration
	MaxConcurrentFetches int64
	WorkerPoolSize       int
	Level                level.Params
	FilterPolicy         map[model.Timeframe]filter.PolicyParams
	Signal               signal.Params
	SignalRetention      time.Duration
	Timeframes           []model.Timeframe
}

// Scheduler runs the seven periodic tasks against Deps on the cadence
// Params describes.
type Scheduler struct {
	deps   Deps
	params Params

	fetchSem *semaphore.Weighted

	guardsMu sync.Mutex
	guards   map[int64]*pairGuard

	health *pairHealth

	wg sync.WaitGroup
}

// New builds a Scheduler. It does not start any goroutines; call Run.
func New(deps Deps, params Params) *Scheduler {
	if params.MaxConcurrentFetches <= 0 {
		params.MaxConcurrentFetches = 8
	}
	if params.WorkerPoolSize <= 0 {
		params.WorkerPoolSize = 8
	}
	if params.AnalysisInterval <= 0 {
		params.AnalysisInterval = 60 * time.Second
	}
	if params.SignalRetention <= 0 {
		params.SignalRetention = 30 * 24 * time.Hour
	}
	var gauge *prometheus.GaugeVec
	if deps.Metrics != nil {
		gauge = deps.Metrics.PairFailureStreak
	}
	return &Scheduler{
		deps:     deps,
		params:   params,
		fetchSem: semaphore.NewWeighted(params.MaxConcurrentFetches),
		guards:   make(map[int64]*pairGuard),
		health:   newPairHealth(gauge),
	}
}

// Run launches one goroutine per periodic task and blocks until ctx is
// cancelled, then waits up to drainTimeout for in-flight tasks before
// returning.
func (s *Scheduler) Run(ctx context.Context) error {
	tasks := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{"candle_tail_refresh", candleTailInterval, s.candleTailRefresh},
		{"gap_detection_fill", gapDetectInterval, s.gapDetectionFill},
		{"historical_ensure", historicalEnsureInterval, s.historicalEnsure},
		{"per_pair_analysis", s.params.AnalysisInterval, s.perPairAnalysisCycle},
		{"level_cleanup_sweep", levelCleanupInterval, s.levelCleanupSweep},
		{"outcome_updater", outcomeUpdateInterval, s.outcomeUpdate},
		{"stale_signal_cleanup", staleSignalInterval, s.staleSignalCleanup},
	}

	s.wg.Add(len(tasks))
	for _, t := range tasks {
		go s.runTicker(ctx, t.name, t.interval, t.fn)
	}

	<-ctx.Done()
	slog.Info("scheduler: shutdown requested, draining in-flight tasks")

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		slog.Info("scheduler: drained cleanly")
	case <-time.After(drainTimeout):
		slog.Warn("scheduler: drain timeout exceeded, exiting with tasks still in flight")
	}
	return ctx.Err()
}

func (s *Scheduler) runTicker(ctx context.Context, name string, interval time.Duration, task func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

// pairGuard prevents re-entrant analysis of the same pair. It uses two
// of exchange.CircuitBreaker's states: StateClosed means idle
// (a new analysis may start); StateOpen means a prior tick is still in
// flight and this tick must be skipped, per spec.md §5's "try-lock; if
// taken, the task skips this tick".
type pairGuard struct {
	mu    sync.Mutex
	state exchange.State
}

// TryAcquire reports whether the guard was idle and is now held.
func (g *pairGuard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == exchange.StateOpen {
		return false
	}
	g.state = exchange.StateOpen
	return true
}

// Release returns the guard to idle.
func (g *pairGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = exchange.StateClosed
}

func (s *Scheduler) guardFor(pairID int64) *pairGuard {
	s.guardsMu.Lock()
	defer s.guardsMu.Unlock()
	g, ok := s.guards[pairID]
	if !ok {
		g = &pairGuard{}
		s.guards[pairID] = g
	}
	return g
}

// pairHealth tracks consecutive per-pair task failures since the pair's
// last success, surfaced as metrics.PairFailureStreak. Supplemented
// from original_source/core/analysis_engine.py, which keeps an
// in-process dict of consecutive failures per symbol to back off noisy
// pairs.
type pairHealth struct {
	mu     sync.Mutex
	streak map[string]int
	gauge  *prometheus.GaugeVec
}

func newPairHealth(gauge *prometheus.GaugeVec) *pairHealth {
	return &pairHealth{streak: make(map[string]int), gauge: gauge}
}

func (h *pairHealth) recordSuccess(symbol string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streak[symbol] = 0
	if h.gauge != nil {
		h.gauge.WithLabelValues(symbol).Set(0)
	}
}

func (h *pairHealth) recordFailure(symbol string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streak[symbol]++
	n := h.streak[symbol]
	if h.gauge != nil {
		h.gauge.WithLabelValues(symbol).Set(float64(n))
	}
	return n
}

// classifyError buckets an error for the pair_errors_total metric label,
// per spec.md §7's error-kind taxonomy.
func classifyError(err error) string {
	var inv *model.InvariantError
	if errors.As(err, &inv) {
		return "invariant"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	return "transient"
}

// fetchTicker wraps the exchange ticker call with the shared fetch
// semaphore (spec.md §5's "≤8 concurrent exchange fetches") and a hard
// per-call timeout.
func (s *Scheduler) fetchTicker(ctx context.Context, symbol string) (float64, error) {
	if err := s.fetchSem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer s.fetchSem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, exchangeCallTimeout)
	defer cancel()
	px, err := s.deps.Exchange.FetchTicker(callCtx, symbol)
	if s.deps.Metrics != nil {
		if err != nil {
			s.deps.Metrics.FetchesTotal.WithLabelValues("error").Inc()
		} else {
			s.deps.Metrics.FetchesTotal.WithLabelValues("ok").Inc()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("scheduler: fetch ticker %s: %w", symbol, err)
	}
	return px, nil
}

// withFetchSlot runs fn while holding one fetch-semaphore slot, for
// store calls that themselves issue exchange fetches (GetCandles,
// EnsureHistory) but don't expose that internally.
func (s *Scheduler) withFetchSlot(ctx context.Context, fn func(context.Context) error) error {
	if err := s.fetchSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.fetchSem.Release(1)
	callCtx, cancel := context.WithTimeout(ctx, exchangeCallTimeout)
	defer cancel()
	return fn(callCtx)
}
