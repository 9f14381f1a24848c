package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the core engine.
type Metrics struct {
	// Scheduler (C5)
	CyclesTotal     prometheus.Counter
	CycleDur        prometheus.Histogram
	PairsProcessed  prometheus.Counter
	PairErrorsTotal *prometheus.CounterVec // labels: reason
	FetchesTotal    *prometheus.CounterVec // labels: status=ok|error|ratelimited

	// OHLCV store (C1)
	CandlesFetched  *prometheus.CounterVec // labels: tf
	GapsBackfilled  prometheus.Counter
	RingBufOverflow prometheus.Counter

	// Level engine (C2)
	LevelsActive       *prometheus.GaugeVec // labels: type=support|resistance
	LevelsDiscovered   prometheus.Counter
	LevelsBroken       prometheus.Counter
	LevelScoreComputed prometheus.Histogram

	// Filter chain (C3)
	ScreensEvaluated prometheus.Counter
	ScreensBlocked   *prometheus.CounterVec // labels: screen, reason

	// Signal lifecycle (C4)
	SignalsGenerated *prometheus.CounterVec // labels: direction
	SignalsDuplicate prometheus.Counter
	SignalsClosed    *prometheus.CounterVec // labels: exit_reason
	SignalsActive    prometheus.Gauge

	// Persistence
	SQLiteCommitDur prometheus.Histogram
	CacheHits       *prometheus.CounterVec // labels: backend
	CacheMisses     *prometheus.CounterVec

	// Resilience
	CircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	CircuitBreakerTrips prometheus.Counter
	PairFailureStreak   *prometheus.GaugeVec // labels: pair; consecutive scheduler-task failures
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelcore_scheduler_cycles_total",
			Help: "Total analysis cycles run",
		}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "levelcore_scheduler_cycle_duration_seconds",
			Help:    "Wall-clock duration of a full analysis cycle",
			Buckets: prometheus.DefBuckets,
		}),
		PairsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelcore_scheduler_pairs_processed_total",
			Help: "Total pairs processed across all cycles",
		}),
		PairErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelcore_scheduler_pair_errors_total",
			Help: "Per-pair task errors by reason",
		}, []string{"reason"}),
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelcore_exchange_fetches_total",
			Help: "Exchange fetch attempts by outcome",
		}, []string{"status"}),

		CandlesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelcore_candles_fetched_total",
			Help: "Candles fetched from the exchange by timeframe",
		}, []string{"tf"}),
		GapsBackfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelcore_ohlcv_gaps_backfilled_total",
			Help: "Gap-backfill fetches triggered by missing candle ranges",
		}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelcore_ringbuf_overflow_total",
			Help: "In-memory recent-candle ring buffer push overflows",
		}),

		LevelsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "levelcore_levels_active",
			Help: "Currently active levels by type",
		}, []string{"type"}),
		LevelsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelcore_levels_discovered_total",
			Help: "New levels created from fractal discovery",
		}),
		LevelsBroken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelcore_levels_broken_total",
			Help: "Levels deleted by eviction (break, exhaustion, age or distance)",
		}),
		LevelScoreComputed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "levelcore_level_score",
			Help:    "Distribution of computed level composite scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		ScreensEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelcore_filter_screens_evaluated_total",
			Help: "Total Elder-screens verdicts evaluated",
		}),
		ScreensBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelcore_filter_screens_blocked_total",
			Help: "Verdicts blocked by screen and reason",
		}, []string{"screen", "reason"}),

		SignalsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelcore_signals_generated_total",
			Help: "Signals emitted by direction",
		}, []string{"direction"}),
		SignalsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelcore_signals_duplicate_suppressed_total",
			Help: "Candidate signals suppressed as duplicates",
		}),
		SignalsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelcore_signals_closed_total",
			Help: "Signals closed by exit reason",
		}, []string{"exit_reason"}),
		SignalsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "levelcore_signals_active",
			Help: "Currently active (open) signals",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "levelcore_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelcore_cache_hits_total",
			Help: "Verdict cache hits by backend",
		}, []string{"backend"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelcore_cache_misses_total",
			Help: "Verdict cache misses by backend",
		}, []string{"backend"}),

		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "levelcore_circuit_breaker_state",
			Help: "Exchange/cache circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		CircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelcore_circuit_breaker_trips_total",
			Help: "Times the circuit breaker tripped open",
		}),
		PairFailureStreak: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "levelcore_pair_failure_streak",
			Help: "Consecutive scheduler-task failures for a pair since its last success",
		}, []string{"pair"}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDur,
		m.PairsProcessed,
		m.PairErrorsTotal,
		m.FetchesTotal,
		m.CandlesFetched,
		m.GapsBackfilled,
		m.RingBufOverflow,
		m.LevelsActive,
		m.LevelsDiscovered,
		m.LevelsBroken,
		m.LevelScoreComputed,
		m.ScreensEvaluated,
		m.ScreensBlocked,
		m.SignalsGenerated,
		m.SignalsDuplicate,
		m.SignalsClosed,
		m.SignalsActive,
		m.SQLiteCommitDur,
		m.CacheHits,
		m.CacheMisses,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.PairFailureStreak,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	ExchangeOK    bool      `json:"exchange_ok"`
	LastFetchTime time.Time `json:"last_fetch_time"`
	CacheOK       bool      `json:"cache_ok"`
	SQLiteOK      bool      `json:"sqlite_ok"`
	SchedulerOK   bool      `json:"scheduler_ok"`

	CacheLatencyMs  float64   `json:"cache_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetExchangeOK(v bool) {
	h.mu.Lock()
	h.ExchangeOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastFetchTime(t time.Time) {
	h.mu.Lock()
	h.LastFetchTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetCacheOK(v bool) {
	h.mu.Lock()
	h.CacheOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSchedulerOK(v bool) {
	h.mu.Lock()
	h.SchedulerOK = v
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.ExchangeOK || !h.CacheOK || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	fetchAge := ""
	if !h.LastFetchTime.IsZero() {
		fetchAge = time.Since(h.LastFetchTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		ExchangeOK      bool    `json:"exchange_ok"`
		LastFetchTime   string  `json:"last_fetch_time"`
		FetchAge        string  `json:"fetch_age"`
		CacheOK         bool    `json:"cache_ok"`
		CacheLatencyMs  float64 `json:"cache_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		SchedulerOK     bool    `json:"scheduler_ok"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		ExchangeOK:      h.ExchangeOK,
		LastFetchTime:   h.LastFetchTime.Format(time.RFC3339),
		FetchAge:        fetchAge,
		CacheOK:         h.CacheOK,
		CacheLatencyMs:  h.CacheLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		SchedulerOK:     h.SchedulerOK,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
