// Package config loads all of levelcore's tunables from environment
// variables. There is no config-file format — that surface is explicitly
// out of scope (spec.md §1) — but every option in spec.md §6's table is
// represented here with its documented default.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	ExchangeVenue string
	ExchangeREST  string
	ExchangeWS    string
	RedisAddr     string
	RedisPassword string
	CacheBackend  string // "memory" or "redis"
	SQLitePath    string
	MetricsAddr   string
	LogLevel      string

	// Universe
	Universe   []string // "BTC/USDT,ETH/USDT,..."
	Timeframes []string // default "15m,1h,4h"

	// Level engine (spec.md §6)
	ExcludeRecentMinutes    int
	FractalLookback         int
	HistoricalTouchTol      float64
	LiveTouchTol            float64
	BreakTolerance          float64
	MinHistoricalTouches    int
	MaxHistoricalTouches    int
	MaxLiveTests            int
	MinDistancePct          float64
	MaxDistancePct          float64
	LevelMaxAgeHours        int

	// Filter chain
	TimeframeMinScore map[string]float64
	FilterMaxDistPct  float64
	FilterMaxTestCnt  int
	BlockSideways     bool

	// Signal lifecycle
	StopLossPct           float64
	DuplicatePriceTol     float64
	ReadyDistancePct      float64
	TouchDistancePct      float64
	SignalDuplicateWindow int // hours a CLOSED signal still blocks new ones

	// Scheduler
	AnalysisIntervalSeconds int
	WorkerPoolSize          int
	MaxConcurrentFetches    int

	// Notification
	NotifyWebhookURL string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ExchangeVenue: getEnv("EXCHANGE_VENUE", "binanceusdm"),
		ExchangeREST:  getEnv("EXCHANGE_REST_URL", "https://fapi.binance.com"),
		ExchangeWS:    getEnv("EXCHANGE_WS_URL", "wss://fstream.binance.com/ws"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CacheBackend:  getEnv("CACHE_BACKEND", "memory"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/levelcore.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		Universe:   parseList(getEnv("UNIVERSE", defaultUniverse)),
		Timeframes: parseList(getEnv("TIMEFRAMES", "15m,1h,4h")),

		ExcludeRecentMinutes: getEnvInt("LEVEL_EXCLUDE_RECENT_MINUTES", 60),
		FractalLookback:      getEnvInt("LEVEL_FRACTAL_LOOKBACK", 5),
		HistoricalTouchTol:   getEnvFloat("LEVEL_HISTORICAL_TOUCH_TOLERANCE", 0.003),
		LiveTouchTol:         getEnvFloat("LEVEL_LIVE_TOUCH_TOLERANCE", 0.004),
		BreakTolerance:       getEnvFloat("LEVEL_BREAK_TOLERANCE", 0.005),
		MinHistoricalTouches: getEnvInt("LEVEL_MIN_HISTORICAL_TOUCHES", 2),
		MaxHistoricalTouches: getEnvInt("LEVEL_MAX_HISTORICAL_TOUCHES", 8),
		MaxLiveTests:         getEnvInt("LEVEL_MAX_LIVE_TESTS", 5),
		MinDistancePct:       getEnvFloat("LEVEL_MIN_DISTANCE_PCT", 0.0),
		MaxDistancePct:       getEnvFloat("LEVEL_MAX_DISTANCE_PCT", 0.05),
		LevelMaxAgeHours:     getEnvInt("LEVEL_MAX_AGE_HOURS", 168),

		TimeframeMinScore: map[string]float64{
			"15m": getEnvFloat("FILTER_15M_MIN_SCORE", 60),
			"1h":  getEnvFloat("FILTER_1H_MIN_SCORE", 50),
			"4h":  getEnvFloat("FILTER_4H_MIN_SCORE", 40),
		},
		FilterMaxDistPct: getEnvFloat("FILTER_MAX_DISTANCE_PCT", 0.008),
		FilterMaxTestCnt: getEnvInt("FILTER_MAX_TEST_COUNT", 3),
		BlockSideways:    getEnvBool("FILTER_BLOCK_SIDEWAYS", false),

		StopLossPct:           getEnvFloat("SIGNAL_STOP_LOSS_PCT", 0.004),
		DuplicatePriceTol:     getEnvFloat("SIGNAL_DUPLICATE_PRICE_TOLERANCE", 0.001),
		ReadyDistancePct:      getEnvFloat("SIGNAL_READY_DISTANCE_PCT", 0.007),
		TouchDistancePct:      getEnvFloat("SIGNAL_TOUCH_DISTANCE_PCT", 0.005),
		SignalDuplicateWindow: getEnvInt("SIGNAL_DUPLICATE_WINDOW_HOURS", 24),

		AnalysisIntervalSeconds: getEnvInt("SCHEDULER_ANALYSIS_INTERVAL_SECONDS", 60),
		WorkerPoolSize:          getEnvInt("SCHEDULER_WORKER_POOL_SIZE", 8),
		MaxConcurrentFetches:    getEnvInt("SCHEDULER_MAX_CONCURRENT_FETCHES", 8),

		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
	}
}

// defaultUniverse is a representative ~28-symbol perpetuals universe,
// matching spec.md §3's "closed, configured set (~28 symbols)".
const defaultUniverse = "BTC/USDT,ETH/USDT,BNB/USDT,SOL/USDT,XRP/USDT,ADA/USDT,DOGE/USDT," +
	"AVAX/USDT,DOT/USDT,LINK/USDT,MATIC/USDT,LTC/USDT,TRX/USDT,ATOM/USDT," +
	"UNI/USDT,ETC/USDT,XLM/USDT,NEAR/USDT,APT/USDT,FIL/USDT,ARB/USDT," +
	"OP/USDT,SUI/USDT,INJ/USDT,TIA/USDT,SEI/USDT,RUNE/USDT,AAVE/USDT"

func parseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s=%q, using default %.6f", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return b
}
