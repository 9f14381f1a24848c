package model

import (
	"context"
	"time"
)

// ── External collaborator ports ──
// These interfaces decouple the core from the collaborators spec.md §1
// explicitly places out of scope (exchange client, persistence engine).

// ExchangeClient is the upstream exchange adapter's contract (spec.md §6).
type ExchangeClient interface {
	// FetchOHLCV returns candles for symbol/tf. If since is non-zero it
	// bounds the query to candles at or after since; if limit > 0 it caps
	// the number of candles returned (most recent limit).
	FetchOHLCV(ctx context.Context, symbol string, tf Timeframe, since time.Time, limit int) ([]Candle, error)

	// FetchTicker returns the last traded price for symbol.
	FetchTicker(ctx context.Context, symbol string) (float64, error)
}

// CandleRepository is the persistence contract for the OHLCV table.
type CandleRepository interface {
	// Upsert writes a candle. allowOverwrite must be true for the open
	// (in-progress) bucket or an explicit historical repair; closed
	// candles otherwise are never rewritten (INSERT OR IGNORE semantics).
	Upsert(ctx context.Context, c Candle, allowOverwrite bool) error
	UpsertBatch(ctx context.Context, cs []Candle, allowOverwrite bool) error

	// Recent returns up to limit candles for (symbol, tf), ascending by time.
	Recent(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error)

	// Since returns candles for (symbol, tf) at or after since, ascending.
	Since(ctx context.Context, symbol string, tf Timeframe, since time.Time) ([]Candle, error)

	// Count returns how many candles are stored for (symbol, tf) within [from, to].
	Count(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) (int, error)
}

// PairRepository is the persistence contract for trading_pairs.
type PairRepository interface {
	Enabled(ctx context.Context) ([]Pair, error)
	Upsert(ctx context.Context, p Pair) (Pair, error)
}

// LevelRepository is the persistence contract for the levels table.
type LevelRepository interface {
	// Upsert merges lv into any existing level within the merge tolerance
	// on the same pair/type/timeframe, or inserts a new row. Returns the
	// stored (possibly merged) level.
	Upsert(ctx context.Context, lv Level) (Level, error)
	Active(ctx context.Context, pairID int64) ([]Level, error)
	Delete(ctx context.Context, id int64) error
	Update(ctx context.Context, lv Level) error

	// AllActive is used by the global cleanup sweep.
	AllActive(ctx context.Context) ([]Level, error)
}

// SignalRepository is the persistence contract for the signals table.
type SignalRepository interface {
	Insert(ctx context.Context, s Signal) (Signal, error)
	Update(ctx context.Context, s Signal) error
	ActiveForPair(ctx context.Context, pairID int64) ([]Signal, error)
	ActiveAll(ctx context.Context) ([]Signal, error)
	OlderThan(ctx context.Context, cutoff time.Time) ([]Signal, error)

	// ForPair returns every signal for pairID regardless of status, used
	// by the signal lifecycle's dedup check (spec.md §4.4: "suppressed
	// ... regardless of status").
	ForPair(ctx context.Context, pairID int64) ([]Signal, error)
}

// LiveLogRepository is the persistence contract for signal_live_logs.
type LiveLogRepository interface {
	Append(ctx context.Context, l LiveLog) error
}

// VerdictCache is the shared, key-scoped, TTL'd cache spec.md §5
// describes ("per-key update-on-read semantics, no global lock") used
// to hold fresh Elder-screens verdicts and level-readiness state.
type VerdictCache interface {
	Get(key string) (*VerdictSnapshot, bool)
	Set(key string, v *VerdictSnapshot, ttl time.Duration)
}

// TriangleProvider is the port for the independent chart-pattern
// subsystem spec.md §4.2 describes only by its outputs. Detection logic
// is out of scope; the shipped implementation is a no-op.
type TriangleProvider interface {
	// ActiveTriangle reports whether an active triangle contains price
	// on (symbol, tf), and if so its borders and directional bias.
	ActiveTriangle(symbol string, tf Timeframe, price float64) (tri Triangle, ok bool)
}

// Triangle describes an active chart-pattern triangle's geometry as
// needed by the level engine's bonus/penalty computation.
type Triangle struct {
	UpperBorder float64
	LowerBorder float64
	Bias        Direction // directional bias the pattern implies
}

// Notifier is the outbound side-channel port (spec.md §6.1 addition):
// purely informational, never part of the decision path.
type Notifier interface {
	NotifySignal(ctx context.Context, s Signal, event string) error
}
