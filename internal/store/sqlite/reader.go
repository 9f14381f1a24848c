package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"levelcore/internal/model"
)

// Recent returns up to limit candles for (symbol, tf), ascending by time.
func (s *Store) Recent(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, tf, ts, open, high, low, close, volume, updated_at
		FROM ohlcv WHERE symbol = ? AND tf = ?
		ORDER BY ts DESC LIMIT ?
	`, symbol, string(tf), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent candles: %w", err)
	}
	defer rows.Close()

	candles, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}
	// reverse to ascending
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// Since returns candles for (symbol, tf) at or after since, ascending.
func (s *Store) Since(ctx context.Context, symbol string, tf model.Timeframe, since time.Time) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, tf, ts, open, high, low, close, volume, updated_at
		FROM ohlcv WHERE symbol = ? AND tf = ? AND ts >= ?
		ORDER BY ts ASC
	`, symbol, string(tf), since.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite: since candles: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// Count returns how many candles are stored for (symbol, tf) within [from, to].
func (s *Store) Count(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ohlcv WHERE symbol = ? AND tf = ? AND ts >= ? AND ts <= ?
	`, symbol, string(tf), from.Unix(), to.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count candles: %w", err)
	}
	return n, nil
}

func scanCandles(rows *sql.Rows) ([]model.Candle, error) {
	var out []model.Candle
	for rows.Next() {
		var c model.Candle
		var tf string
		var ts, updatedAt int64
		if err := rows.Scan(&c.Symbol, &tf, &ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan candle: %w", err)
		}
		c.TF = model.Timeframe(tf)
		c.TS = time.Unix(ts, 0).UTC()
		c.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Enabled returns all enabled trading pairs.
func (s *Store) Enabled(ctx context.Context) ([]model.Pair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, venue, enabled, created_at, updated_at FROM trading_pairs WHERE enabled = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: enabled pairs: %w", err)
	}
	defer rows.Close()

	var out []model.Pair
	for rows.Next() {
		p, err := scanPairRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPair(row rowScanner) (model.Pair, error) {
	var p model.Pair
	var enabled int
	var created, updated int64
	if err := row.Scan(&p.ID, &p.Symbol, &p.Venue, &enabled, &created, &updated); err != nil {
		return model.Pair{}, fmt.Errorf("sqlite: scan pair: %w", err)
	}
	p.Enabled = enabled != 0
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return p, nil
}

func scanPairRow(rows *sql.Rows) (model.Pair, error) {
	return scanPair(rows)
}

// Active returns all currently active levels for a pair.
func (s *Store) Active(ctx context.Context, pairID int64) ([]model.Level, error) {
	return s.activeLevels(ctx, pairID)
}

func (s *Store) activeLevels(ctx context.Context, pairID int64) ([]model.Level, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pair_id, symbol, price, type, timeframe, historical_touches, live_test_count,
			score, is_active, first_touch, last_touch, created_at, updated_at, meta
		FROM levels WHERE pair_id = ? AND is_active = 1
	`, pairID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: active levels: %w", err)
	}
	defer rows.Close()
	return scanLevels(rows)
}

// AllActive returns every active level across all pairs, used by the
// global cleanup sweep.
func (s *Store) AllActive(ctx context.Context) ([]model.Level, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pair_id, symbol, price, type, timeframe, historical_touches, live_test_count,
			score, is_active, first_touch, last_touch, created_at, updated_at, meta
		FROM levels WHERE is_active = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: all active levels: %w", err)
	}
	defer rows.Close()
	return scanLevels(rows)
}

func scanLevels(rows *sql.Rows) ([]model.Level, error) {
	var out []model.Level
	for rows.Next() {
		var lv model.Level
		var typ, tf string
		var isActive int
		var firstTouch, lastTouch, created, updated int64
		var metaJSON sql.NullString
		if err := rows.Scan(&lv.ID, &lv.PairID, &lv.Symbol, &lv.Price, &typ, &tf,
			&lv.HistoricalTouches, &lv.LiveTestCount, &lv.Score, &isActive,
			&firstTouch, &lastTouch, &created, &updated, &metaJSON); err != nil {
			return nil, fmt.Errorf("sqlite: scan level: %w", err)
		}
		lv.Type = model.LevelType(typ)
		lv.Timeframe = model.Timeframe(tf)
		lv.IsActive = isActive != 0
		lv.FirstTouch = time.Unix(firstTouch, 0).UTC()
		lv.LastTouch = time.Unix(lastTouch, 0).UTC()
		lv.CreatedAt = time.Unix(created, 0).UTC()
		lv.UpdatedAt = time.Unix(updated, 0).UTC()
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &lv.Meta); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal level meta: %w", err)
			}
		}
		out = append(out, lv)
	}
	return out, rows.Err()
}

// ActiveForPair returns active signals for one pair.
func (s *Store) ActiveForPair(ctx context.Context, pairID int64) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, signalSelect+` WHERE pair_id = ? AND status = 'ACTIVE'`, pairID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: active signals for pair: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// ActiveAll returns every active signal across all pairs.
func (s *Store) ActiveAll(ctx context.Context) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, signalSelect+` WHERE status = 'ACTIVE'`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: active signals: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// ForPair returns every signal for a pair regardless of status.
func (s *Store) ForPair(ctx context.Context, pairID int64) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, signalSelect+` WHERE pair_id = ?`, pairID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: signals for pair: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// OlderThan returns signals (any status) created at or before cutoff,
// used by the retention sweep that archives old CLOSED signals.
func (s *Store) OlderThan(ctx context.Context, cutoff time.Time) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, signalSelect+` WHERE ts <= ?`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite: signals older than: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

const signalSelect = `
	SELECT id, pair_id, symbol, direction, level_price, entry_price, stop_loss, ts,
		trend_classification, level_type, timeframe, test_count, status,
		exit_price, exit_timestamp, exit_reason, max_favorable_move_pct, max_adverse_move_pct,
		first_touch_05pct_ts, first_touch_10pct_ts, first_touch_15pct_ts,
		result_fixed, result_fixed_at, elder_screens, archived
	FROM signals`

func scanSignals(rows *sql.Rows) ([]model.Signal, error) {
	var out []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func scanSignal(rows *sql.Rows) (model.Signal, error) {
	var sig model.Signal
	var direction, trend, levelType, tf, status string
	var ts int64
	var exitPrice, maxFav, maxAdv, resultFixed sql.NullFloat64
	var exitTimestamp, firstTouch05, firstTouch10, firstTouch15, resultFixedAt sql.NullInt64
	var exitReason sql.NullString
	var elderScreens sql.NullString
	var archived int

	if err := rows.Scan(&sig.ID, &sig.PairID, &sig.Symbol, &direction, &sig.LevelPrice, &sig.EntryPrice,
		&sig.StopLoss, &ts, &trend, &levelType, &tf, &sig.TestCount, &status,
		&exitPrice, &exitTimestamp, &exitReason, &maxFav, &maxAdv,
		&firstTouch05, &firstTouch10, &firstTouch15, &resultFixed, &resultFixedAt,
		&elderScreens, &archived); err != nil {
		return model.Signal{}, fmt.Errorf("sqlite: scan signal: %w", err)
	}

	sig.Direction = model.Direction(direction)
	sig.Trend = model.TrendClassification(trend)
	sig.LevelType = model.LevelType(levelType)
	sig.Timeframe = model.Timeframe(tf)
	sig.Status = model.SignalStatus(status)
	sig.Timestamp = time.Unix(ts, 0).UTC()
	sig.MaxFavorableMovePct = maxFav.Float64
	sig.MaxAdverseMovePct = maxAdv.Float64
	sig.Archived = archived != 0

	if exitPrice.Valid {
		v := exitPrice.Float64
		sig.ExitPrice = &v
	}
	if exitTimestamp.Valid {
		t := time.Unix(exitTimestamp.Int64, 0).UTC()
		sig.ExitTimestamp = &t
	}
	if exitReason.Valid {
		r := model.ExitReason(exitReason.String)
		sig.ExitReason = &r
	}
	if firstTouch05.Valid {
		t := time.Unix(firstTouch05.Int64, 0).UTC()
		sig.FirstTouch05PctTS = &t
	}
	if firstTouch10.Valid {
		t := time.Unix(firstTouch10.Int64, 0).UTC()
		sig.FirstTouch10PctTS = &t
	}
	if firstTouch15.Valid {
		t := time.Unix(firstTouch15.Int64, 0).UTC()
		sig.FirstTouch15PctTS = &t
	}
	if resultFixed.Valid {
		v := resultFixed.Float64
		sig.ResultFixed = &v
	}
	if resultFixedAt.Valid {
		t := time.Unix(resultFixedAt.Int64, 0).UTC()
		sig.ResultFixedAt = &t
	}
	if elderScreens.Valid && elderScreens.String != "" {
		var v model.VerdictSnapshot
		if err := json.Unmarshal([]byte(elderScreens.String), &v); err != nil {
			return model.Signal{}, fmt.Errorf("sqlite: unmarshal elder screens: %w", err)
		}
		sig.ElderScreens = &v
	}

	return sig, nil
}
