package signal

import (
	"context"
	"testing"
	"time"

	"levelcore/internal/model"
)

type fakeSignalRepo struct {
	rows   []model.Signal
	nextID int64
}

func (f *fakeSignalRepo) Insert(_ context.Context, s model.Signal) (model.Signal, error) {
	f.nextID++
	s.ID = f.nextID
	f.rows = append(f.rows, s)
	return s, nil
}

func (f *fakeSignalRepo) Update(_ context.Context, s model.Signal) error {
	for i, r := range f.rows {
		if r.ID == s.ID {
			f.rows[i] = s
			return nil
		}
	}
	return nil
}

func (f *fakeSignalRepo) ActiveForPair(_ context.Context, pairID int64) ([]model.Signal, error) {
	var out []model.Signal
	for _, r := range f.rows {
		if r.PairID == pairID && r.Status == model.SignalActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSignalRepo) ActiveAll(_ context.Context) ([]model.Signal, error) {
	var out []model.Signal
	for _, r := range f.rows {
		if r.Status == model.SignalActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSignalRepo) OlderThan(_ context.Context, cutoff time.Time) ([]model.Signal, error) {
	return nil, nil
}

func (f *fakeSignalRepo) ForPair(_ context.Context, pairID int64) ([]model.Signal, error) {
	var out []model.Signal
	for _, r := range f.rows {
		if r.PairID == pairID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeLiveLogRepo struct {
	entries []model.LiveLog
}

func (f *fakeLiveLogRepo) Append(_ context.Context, l model.LiveLog) error {
	f.entries = append(f.entries, l)
	return nil
}

func testParams() Params {
	return Params{
		ReadyDistancePct:  0.007,
		TouchDistancePct:  0.005,
		StopLossPct:       0.004,
		DuplicatePriceTol: 0.001,
		DuplicateWindow:   24 * time.Hour,
	}
}

func admittedVerdict() *model.VerdictSnapshot {
	return &model.VerdictSnapshot{Admitted: true, Trend: model.TrendUpStrong}
}

// TestDuplicateSuppression is spec.md §8 Scenario 2: emit a LONG at
// 60000.00, then immediately attempt one at 60003.00 (a 0.005%
// difference, well inside the 0.1% dedup tolerance).
// The second emission is suppressed; only one ACTIVE signal exists.
func TestDuplicateSuppression(t *testing.T) {
	repo := &fakeSignalRepo{}
	logs := &fakeLiveLogRepo{}
	lc := NewLifecycle(repo, logs, testParams())
	now := time.Now().UTC()

	lvl1 := &model.Level{PairID: 1, Type: model.LevelSupport, Price: 60000.00}
	first, emitted, err := lc.Emit(context.Background(), Candidate{
		PairID: 1, Symbol: "BTC/USDT", Level: lvl1, Verdict: admittedVerdict(), CurrentPx: 60000.00,
	}, now)
	if err != nil || !emitted || first == nil {
		t.Fatalf("expected the first emission to succeed, got emitted=%v err=%v", emitted, err)
	}

	lvl2 := &model.Level{PairID: 1, Type: model.LevelSupport, Price: 60003.00}
	second, emitted2, err := lc.Emit(context.Background(), Candidate{
		PairID: 1, Symbol: "BTC/USDT", Level: lvl2, Verdict: admittedVerdict(), CurrentPx: 60003.00,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error on second emission: %v", err)
	}
	if emitted2 || second != nil {
		t.Fatal("expected the second emission within dedup tolerance to be suppressed")
	}
	if !lvl2.Meta.SignalGenerated {
		t.Error("expected the suppressed level to still be marked signal_generated")
	}

	active, _ := repo.ActiveForPair(context.Background(), 1)
	if len(active) != 1 {
		t.Fatalf("expected exactly one ACTIVE signal, got %d", len(active))
	}
}

// TestDuplicateWindowExpiry is spec.md §3: a CLOSED signal older than
// signal_duplicate_window no longer blocks a new signal at the same
// level price, while one still inside the window does.
func TestDuplicateWindowExpiry(t *testing.T) {
	repo := &fakeSignalRepo{}
	logs := &fakeLiveLogRepo{}
	lc := NewLifecycle(repo, logs, testParams())
	now := time.Now().UTC()

	closedRecently := now.Add(-23 * time.Hour)
	repo.rows = append(repo.rows, model.Signal{
		ID: 1, PairID: 1, LevelPrice: 60000.00, Status: model.SignalClosed,
		Timestamp: now.Add(-48 * time.Hour), ExitTimestamp: &closedRecently,
	})

	lvl := &model.Level{PairID: 1, Type: model.LevelSupport, Price: 60000.00}
	sig, emitted, err := lc.Emit(context.Background(), Candidate{
		PairID: 1, Symbol: "BTC/USDT", Level: lvl, Verdict: admittedVerdict(), CurrentPx: 60000.00,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emitted || sig != nil {
		t.Fatal("expected a CLOSED signal still inside the duplicate window to block emission")
	}

	closedLongAgo := now.Add(-25 * time.Hour)
	repo.rows[0].ExitTimestamp = &closedLongAgo

	sig2, emitted2, err := lc.Emit(context.Background(), Candidate{
		PairID: 1, Symbol: "BTC/USDT", Level: lvl, Verdict: admittedVerdict(), CurrentPx: 60000.00,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !emitted2 || sig2 == nil {
		t.Fatal("expected a CLOSED signal older than the duplicate window not to block emission")
	}
}

func TestEmitProducesValidStopForDirection(t *testing.T) {
	repo := &fakeSignalRepo{}
	lc := NewLifecycle(repo, &fakeLiveLogRepo{}, testParams())
	now := time.Now().UTC()

	support := &model.Level{PairID: 2, Type: model.LevelSupport, Price: 100.0}
	sig, emitted, err := lc.Emit(context.Background(), Candidate{
		PairID: 2, Symbol: "ETH/USDT", Level: support, Verdict: admittedVerdict(), CurrentPx: 100.0,
	}, now)
	if err != nil || !emitted {
		t.Fatalf("expected emission to succeed, got emitted=%v err=%v", emitted, err)
	}
	if sig.Direction != model.DirectionLong || sig.StopLoss >= sig.EntryPrice {
		t.Fatalf("expected a LONG signal with stop below entry, got direction=%v stop=%v entry=%v", sig.Direction, sig.StopLoss, sig.EntryPrice)
	}

	resistance := &model.Level{PairID: 3, Type: model.LevelResistance, Price: 100.0}
	sig2, emitted2, err := lc.Emit(context.Background(), Candidate{
		PairID: 3, Symbol: "ETH/USDT", Level: resistance, Verdict: admittedVerdict(), CurrentPx: 100.0,
	}, now)
	if err != nil || !emitted2 {
		t.Fatalf("expected emission to succeed, got emitted=%v err=%v", emitted2, err)
	}
	if sig2.Direction != model.DirectionShort || sig2.StopLoss <= sig2.EntryPrice {
		t.Fatalf("expected a SHORT signal with stop above entry, got direction=%v stop=%v entry=%v", sig2.Direction, sig2.StopLoss, sig2.EntryPrice)
	}
}

func TestNotAdmittedWithoutElderScreensPassing(t *testing.T) {
	repo := &fakeSignalRepo{}
	lc := NewLifecycle(repo, &fakeLiveLogRepo{}, testParams())

	lvl := &model.Level{PairID: 4, Type: model.LevelSupport, Price: 100.0}
	blocked := &model.VerdictSnapshot{Admitted: false}
	sig, emitted, err := lc.Emit(context.Background(), Candidate{
		PairID: 4, Symbol: "SOL/USDT", Level: lvl, Verdict: blocked, CurrentPx: 100.0,
	}, time.Now().UTC())
	if err != nil || emitted || sig != nil {
		t.Fatalf("expected no emission when Elder screens haven't admitted, got emitted=%v sig=%v err=%v", emitted, sig, err)
	}
}

func TestAdmittedRequiresReadyDistanceOrLiveTouch(t *testing.T) {
	params := testParams()
	lvl := &model.Level{Price: 100.0}
	verdict := admittedVerdict()

	far := Candidate{Level: lvl, Verdict: verdict, CurrentPx: 102.0} // 2% away, no touch
	if Admitted(far, params) {
		t.Fatal("expected a distant, non-touching candidate not to be admitted")
	}

	touch := Candidate{Level: lvl, Verdict: verdict, CurrentPx: 100.4, LiveTouch: true} // 0.4% away, touch
	if !Admitted(touch, params) {
		t.Fatal("expected a live touch within touch tolerance to be admitted")
	}

	ready := Candidate{Level: lvl, Verdict: verdict, CurrentPx: 100.6} // 0.6% away, no touch, within ready tolerance
	if !Admitted(ready, params) {
		t.Fatal("expected proximity within ready_distance_pct to be admitted without a touch")
	}
}
