package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"levelcore/internal/model"
)

// Upsert writes one candle. allowOverwrite must be true for the open
// (in-progress) bucket or an explicit historical repair; closed candles
// otherwise use INSERT OR IGNORE so they're never silently rewritten.
func (s *Store) Upsert(ctx context.Context, c model.Candle, allowOverwrite bool) error {
	return s.UpsertBatch(ctx, []model.Candle{c}, allowOverwrite)
}

// UpsertBatch writes candles in a single transaction, following the
// teacher's batched-commit writer idiom (internal/store/sqlite/writer.go).
func (s *Store) UpsertBatch(ctx context.Context, cs []model.Candle, allowOverwrite bool) error {
	if len(cs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}

	verb := "INSERT OR IGNORE"
	if allowOverwrite {
		verb = "INSERT OR REPLACE"
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		%s INTO ohlcv (symbol, tf, ts, open, high, low, close, volume, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, verb))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range cs {
		if _, err := stmt.ExecContext(ctx, c.Symbol, string(c.TF), c.TS.Unix(),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.UpdatedAt.Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: exec: %w", err)
		}
	}

	return tx.Commit()
}

// UpsertPair inserts or updates a trading_pairs row, keyed on (symbol, venue).
func (s *Store) UpsertPair(ctx context.Context, p model.Pair) (model.Pair, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trading_pairs (symbol, venue, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol, venue) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at
	`, p.Symbol, p.Venue, boolToInt(p.Enabled), now.Unix(), now.Unix())
	if err != nil {
		return model.Pair{}, fmt.Errorf("sqlite: upsert pair: %w", err)
	}
	return s.pairBySymbolVenue(ctx, p.Symbol, p.Venue)
}

func (s *Store) pairBySymbolVenue(ctx context.Context, symbol, venue string) (model.Pair, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, symbol, venue, enabled, created_at, updated_at
		FROM trading_pairs WHERE symbol = ? AND venue = ?`, symbol, venue)
	return scanPair(row)
}

// UpsertLevel merges lv into any existing active level on the same
// pair/type/timeframe within the merge tolerance, or inserts a new row.
func (s *Store) UpsertLevel(ctx context.Context, lv model.Level, mergeTolerancePct float64) (model.Level, error) {
	existing, err := s.activeLevels(ctx, lv.PairID)
	if err != nil {
		return model.Level{}, err
	}
	for _, e := range existing {
		if e.Type == lv.Type && e.Timeframe == lv.Timeframe && e.SameAs(&lv, mergeTolerancePct) {
			lv.ID = e.ID
			lv.CreatedAt = e.CreatedAt
			if err := s.UpdateLevel(ctx, lv); err != nil {
				return model.Level{}, err
			}
			return lv, nil
		}
	}
	return s.insertLevel(ctx, lv)
}

func (s *Store) insertLevel(ctx context.Context, lv model.Level) (model.Level, error) {
	metaJSON, err := json.Marshal(lv.Meta)
	if err != nil {
		return model.Level{}, fmt.Errorf("sqlite: marshal level meta: %w", err)
	}
	now := time.Now().UTC()
	if lv.CreatedAt.IsZero() {
		lv.CreatedAt = now
	}
	lv.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO levels (pair_id, symbol, price, type, timeframe, historical_touches,
			live_test_count, score, is_active, first_touch, last_touch, created_at, updated_at, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, lv.PairID, lv.Symbol, lv.Price, string(lv.Type), string(lv.Timeframe), lv.HistoricalTouches,
		lv.LiveTestCount, lv.Score, boolToInt(lv.IsActive), lv.FirstTouch.Unix(), lv.LastTouch.Unix(),
		lv.CreatedAt.Unix(), lv.UpdatedAt.Unix(), string(metaJSON))
	if err != nil {
		return model.Level{}, fmt.Errorf("sqlite: insert level: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Level{}, fmt.Errorf("sqlite: level id: %w", err)
	}
	lv.ID = id
	return lv, nil
}

// UpdateLevel rewrites a level row in place.
func (s *Store) UpdateLevel(ctx context.Context, lv model.Level) error {
	metaJSON, err := json.Marshal(lv.Meta)
	if err != nil {
		return fmt.Errorf("sqlite: marshal level meta: %w", err)
	}
	lv.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE levels SET price = ?, historical_touches = ?, live_test_count = ?, score = ?,
			is_active = ?, last_touch = ?, updated_at = ?, meta = ?
		WHERE id = ?
	`, lv.Price, lv.HistoricalTouches, lv.LiveTestCount, lv.Score,
		boolToInt(lv.IsActive), lv.LastTouch.Unix(), lv.UpdatedAt.Unix(), string(metaJSON), lv.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update level: %w", err)
	}
	return nil
}

// DeleteLevel removes a level row permanently (used for levels that
// break before ever generating a signal, per spec.md §4's cleanup rule).
func (s *Store) DeleteLevel(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM levels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete level: %w", err)
	}
	return nil
}

// InsertSignal writes a new signal row.
func (s *Store) InsertSignal(ctx context.Context, sig model.Signal) (model.Signal, error) {
	screensJSON, err := marshalVerdict(sig.ElderScreens)
	if err != nil {
		return model.Signal{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (pair_id, symbol, direction, level_price, entry_price, stop_loss, ts,
			trend_classification, level_type, timeframe, test_count, status, max_favorable_move_pct,
			max_adverse_move_pct, elder_screens, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sig.PairID, sig.Symbol, string(sig.Direction), sig.LevelPrice, sig.EntryPrice, sig.StopLoss,
		sig.Timestamp.Unix(), string(sig.Trend), string(sig.LevelType), string(sig.Timeframe),
		sig.TestCount, string(sig.Status), sig.MaxFavorableMovePct, sig.MaxAdverseMovePct,
		screensJSON, boolToInt(sig.Archived))
	if err != nil {
		return model.Signal{}, fmt.Errorf("sqlite: insert signal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Signal{}, fmt.Errorf("sqlite: signal id: %w", err)
	}
	sig.ID = id
	return sig, nil
}

// UpdateSignal rewrites a signal row's mutable fields (outcome tracking,
// exit, closure).
func (s *Store) UpdateSignal(ctx context.Context, sig model.Signal) error {
	screensJSON, err := marshalVerdict(sig.ElderScreens)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE signals SET status = ?, exit_price = ?, exit_timestamp = ?, exit_reason = ?,
			max_favorable_move_pct = ?, max_adverse_move_pct = ?,
			first_touch_05pct_ts = ?, first_touch_10pct_ts = ?, first_touch_15pct_ts = ?,
			result_fixed = ?, result_fixed_at = ?, elder_screens = ?, archived = ?
		WHERE id = ?
	`, string(sig.Status), nullableFloat(sig.ExitPrice), nullableUnix(sig.ExitTimestamp),
		nullableExitReason(sig.ExitReason), sig.MaxFavorableMovePct, sig.MaxAdverseMovePct,
		nullableUnix(sig.FirstTouch05PctTS), nullableUnix(sig.FirstTouch10PctTS),
		nullableUnix(sig.FirstTouch15PctTS), nullableFloat(sig.ResultFixed),
		nullableUnix(sig.ResultFixedAt), screensJSON, boolToInt(sig.Archived), sig.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update signal: %w", err)
	}
	return nil
}

// AppendLiveLog appends one audit row to signal_live_logs.
func (s *Store) AppendLiveLog(ctx context.Context, l model.LiveLog) error {
	var detailsJSON []byte
	if l.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(l.Details)
		if err != nil {
			return fmt.Errorf("sqlite: marshal live log details: %w", err)
		}
	}
	now := l.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signal_live_logs (signal_id, event_type, status, message, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.SignalID, string(l.EventType), l.Status, l.Message, string(detailsJSON), now.Unix())
	if err != nil {
		return fmt.Errorf("sqlite: insert live log: %w", err)
	}
	return nil
}

func marshalVerdict(v *model.VerdictSnapshot) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("sqlite: marshal verdict: %w", err)
	}
	s := string(b)
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullableUnix(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

func nullableExitReason(r *model.ExitReason) any {
	if r == nil {
		return nil
	}
	return string(*r)
}
