package sqlite

import (
	"context"

	"levelcore/internal/model"
)

// Store itself satisfies model.CandleRepository directly (Upsert,
// UpsertBatch, Recent, Since, Count are defined in writer.go/reader.go).
// The remaining ports collide on method names at the single-type level
// (e.g. "Upsert" means something different for pairs, levels, and
// candles), so each gets a small adapter type over the same *Store.

// PairStore adapts Store to model.PairRepository.
type PairStore struct{ *Store }

func NewPairRepository(s *Store) PairStore { return PairStore{s} }

func (p PairStore) Upsert(ctx context.Context, pair model.Pair) (model.Pair, error) {
	return p.Store.UpsertPair(ctx, pair)
}

// LevelStore adapts Store to model.LevelRepository. mergeTolerancePct
// is the percent-distance window within which a new level is merged
// into an existing active one rather than inserted as a new row.
type LevelStore struct {
	*Store
	mergeTolerancePct float64
}

func NewLevelRepository(s *Store, mergeTolerancePct float64) *LevelStore {
	return &LevelStore{Store: s, mergeTolerancePct: mergeTolerancePct}
}

func (l *LevelStore) Upsert(ctx context.Context, lv model.Level) (model.Level, error) {
	return l.Store.UpsertLevel(ctx, lv, l.mergeTolerancePct)
}

func (l *LevelStore) Delete(ctx context.Context, id int64) error {
	return l.Store.DeleteLevel(ctx, id)
}

func (l *LevelStore) Update(ctx context.Context, lv model.Level) error {
	return l.Store.UpdateLevel(ctx, lv)
}

// SignalStore adapts Store to model.SignalRepository.
type SignalStore struct{ *Store }

func NewSignalRepository(s *Store) SignalStore { return SignalStore{s} }

func (sg SignalStore) Insert(ctx context.Context, s model.Signal) (model.Signal, error) {
	return sg.Store.InsertSignal(ctx, s)
}

func (sg SignalStore) Update(ctx context.Context, s model.Signal) error {
	return sg.Store.UpdateSignal(ctx, s)
}

// LiveLogStore adapts Store to model.LiveLogRepository.
type LiveLogStore struct{ *Store }

func NewLiveLogRepository(s *Store) LiveLogStore { return LiveLogStore{s} }

func (ll LiveLogStore) Append(ctx context.Context, l model.LiveLog) error {
	return ll.Store.AppendLiveLog(ctx, l)
}
