package main

import (
	"context"
	"sort"
	"time"

	"levelcore/internal/model"
)

// replayCandleRepo is an in-memory model.CandleRepository, grounded on
// internal/store/ohlcv's own test fake — it lets the replay window flow
// through the real ohlcv.Store/exchange.Mock path without ever touching
// the on-disk database the historical series was read from.
type replayCandleRepo struct {
	byKey map[string][]model.Candle
}

func newReplayCandleRepo() *replayCandleRepo {
	return &replayCandleRepo{byKey: make(map[string][]model.Candle)}
}

func candleKey(symbol string, tf model.Timeframe) string { return symbol + ":" + string(tf) }

func (r *replayCandleRepo) Upsert(_ context.Context, c model.Candle, allowOverwrite bool) error {
	return r.UpsertBatch(context.Background(), []model.Candle{c}, allowOverwrite)
}

func (r *replayCandleRepo) UpsertBatch(_ context.Context, cs []model.Candle, allowOverwrite bool) error {
	for _, c := range cs {
		k := candleKey(c.Symbol, c.TF)
		series := r.byKey[k]
		replaced := false
		for i := range series {
			if series[i].TS.Equal(c.TS) {
				if allowOverwrite {
					series[i] = c
				}
				replaced = true
				break
			}
		}
		if !replaced {
			series = append(series, c)
		}
		sort.Slice(series, func(i, j int) bool { return series[i].TS.Before(series[j].TS) })
		r.byKey[k] = series
	}
	return nil
}

func (r *replayCandleRepo) Recent(_ context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	series := r.byKey[candleKey(symbol, tf)]
	if len(series) <= limit {
		return append([]model.Candle(nil), series...), nil
	}
	return append([]model.Candle(nil), series[len(series)-limit:]...), nil
}

func (r *replayCandleRepo) Since(_ context.Context, symbol string, tf model.Timeframe, since time.Time) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range r.byKey[candleKey(symbol, tf)] {
		if !c.TS.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *replayCandleRepo) Count(_ context.Context, symbol string, tf model.Timeframe, from, to time.Time) (int, error) {
	n := 0
	for _, c := range r.byKey[candleKey(symbol, tf)] {
		if !c.TS.Before(from) && !c.TS.After(to) {
			n++
		}
	}
	return n, nil
}

// replayLevelRepo is an in-memory model.LevelRepository mirroring
// sqlite.LevelStore's merge-on-upsert behavior (writer.go's UpsertLevel)
// without a database, so a replay's discovered levels never leak into
// the real levels table.
type replayLevelRepo struct {
	rows   []model.Level
	nextID int64
	tol    float64
}

func newReplayLevelRepo() *replayLevelRepo {
	return &replayLevelRepo{tol: 0.005}
}

func (r *replayLevelRepo) Upsert(_ context.Context, lv model.Level) (model.Level, error) {
	now := time.Now().UTC()
	for i := range r.rows {
		e := r.rows[i]
		if e.IsActive && e.Type == lv.Type && e.Timeframe == lv.Timeframe && e.SameAs(&lv, r.tol) {
			lv.ID = e.ID
			lv.CreatedAt = e.CreatedAt
			lv.UpdatedAt = now
			r.rows[i] = lv
			return lv, nil
		}
	}
	r.nextID++
	lv.ID = r.nextID
	if lv.CreatedAt.IsZero() {
		lv.CreatedAt = now
	}
	lv.UpdatedAt = now
	lv.IsActive = true
	r.rows = append(r.rows, lv)
	return lv, nil
}

func (r *replayLevelRepo) Active(_ context.Context, pairID int64) ([]model.Level, error) {
	var out []model.Level
	for _, l := range r.rows {
		if l.PairID == pairID && l.IsActive {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *replayLevelRepo) AllActive(_ context.Context) ([]model.Level, error) {
	var out []model.Level
	for _, l := range r.rows {
		if l.IsActive {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *replayLevelRepo) Delete(_ context.Context, id int64) error {
	for i := range r.rows {
		if r.rows[i].ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *replayLevelRepo) Update(_ context.Context, lv model.Level) error {
	for i := range r.rows {
		if r.rows[i].ID == lv.ID {
			r.rows[i] = lv
			return nil
		}
	}
	return nil
}

// replaySignalRepo is an in-memory model.SignalRepository.
type replaySignalRepo struct {
	rows   []model.Signal
	nextID int64
}

func newReplaySignalRepo() *replaySignalRepo { return &replaySignalRepo{} }

func (r *replaySignalRepo) Insert(_ context.Context, s model.Signal) (model.Signal, error) {
	r.nextID++
	s.ID = r.nextID
	r.rows = append(r.rows, s)
	return s, nil
}

func (r *replaySignalRepo) Update(_ context.Context, s model.Signal) error {
	for i := range r.rows {
		if r.rows[i].ID == s.ID {
			r.rows[i] = s
			return nil
		}
	}
	return nil
}

func (r *replaySignalRepo) ActiveForPair(_ context.Context, pairID int64) ([]model.Signal, error) {
	var out []model.Signal
	for _, s := range r.rows {
		if s.PairID == pairID && s.Status == model.SignalActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *replaySignalRepo) ActiveAll(_ context.Context) ([]model.Signal, error) {
	var out []model.Signal
	for _, s := range r.rows {
		if s.Status == model.SignalActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *replaySignalRepo) OlderThan(_ context.Context, cutoff time.Time) ([]model.Signal, error) {
	var out []model.Signal
	for _, s := range r.rows {
		if s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *replaySignalRepo) ForPair(_ context.Context, pairID int64) ([]model.Signal, error) {
	var out []model.Signal
	for _, s := range r.rows {
		if s.PairID == pairID {
			out = append(out, s)
		}
	}
	return out, nil
}

// replayLiveLogRepo is an in-memory model.LiveLogRepository.
type replayLiveLogRepo struct {
	entries []model.LiveLog
}

func newReplayLiveLogRepo() *replayLiveLogRepo { return &replayLiveLogRepo{} }

func (r *replayLiveLogRepo) Append(_ context.Context, l model.LiveLog) error {
	r.entries = append(r.entries, l)
	return nil
}
