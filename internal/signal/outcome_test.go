package signal

import (
	"context"
	"math"
	"testing"
	"time"

	"levelcore/internal/model"
)

func closesAt(start time.Time, closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{TS: start.Add(time.Duration(i) * time.Minute), TF: model.TF1m, Close: c, Open: c, High: c, Low: c}
	}
	return out
}

func approxEqual(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

// TestOutcomeThresholds is spec.md §8 Scenario 6: a LONG signal at
// entry 100.00 fed 1-minute closes 100.4, 100.7, 101.1, 100.2, 100.6,
// 101.6, 99.5. The three threshold timestamps land on the bars that
// first reach 100.5/101.0/101.5; MFE ~= 1.6%, MAE ~= -0.5%.
func TestOutcomeThresholds(t *testing.T) {
	repo := &fakeSignalRepo{}
	tracker := NewTracker(repo, &fakeLiveLogRepo{})

	start := time.Unix(0, 0).UTC()
	sig := &model.Signal{ID: 1, Symbol: "X/USDT", Direction: model.DirectionLong, EntryPrice: 100.0, Timestamp: start, Status: model.SignalActive}
	candles := closesAt(start, 100.4, 100.7, 101.1, 100.2, 100.6, 101.6, 99.5)

	if err := tracker.Update(context.Background(), sig, candles, start.Add(7*time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sig.FirstTouch05PctTS == nil || !sig.FirstTouch05PctTS.Equal(start.Add(1*time.Minute)) {
		t.Errorf("expected first_touch_0_5_pct_ts at the 100.7 bar, got %v", sig.FirstTouch05PctTS)
	}
	if sig.FirstTouch10PctTS == nil || !sig.FirstTouch10PctTS.Equal(start.Add(2*time.Minute)) {
		t.Errorf("expected first_touch_1_0_pct_ts at the 101.1 bar, got %v", sig.FirstTouch10PctTS)
	}
	if sig.FirstTouch15PctTS == nil || !sig.FirstTouch15PctTS.Equal(start.Add(5*time.Minute)) {
		t.Errorf("expected first_touch_1_5_pct_ts at the 101.6 bar, got %v", sig.FirstTouch15PctTS)
	}
	if !approxEqual(sig.MaxFavorableMovePct, 0.016) {
		t.Errorf("expected MFE ~= 1.6%%, got %v", sig.MaxFavorableMovePct)
	}
	if !approxEqual(sig.MaxAdverseMovePct, -0.005) {
		t.Errorf("expected MAE ~= -0.5%%, got %v", sig.MaxAdverseMovePct)
	}
	if sig.ResultFixed == nil || !approxEqual(*sig.ResultFixed, favorableFixedPct) {
		t.Errorf("expected the result to fix favorable at +1.5%%, got %v", sig.ResultFixed)
	}
}

func TestResultFixesAdverseFirstWhenItCrossesFirst(t *testing.T) {
	repo := &fakeSignalRepo{}
	tracker := NewTracker(repo, &fakeLiveLogRepo{})

	start := time.Unix(0, 0).UTC()
	sig := &model.Signal{ID: 2, Direction: model.DirectionLong, EntryPrice: 100.0, Timestamp: start, Status: model.SignalActive}
	candles := closesAt(start, 99.6, 99.4, 102.0) // adverse -0.5% crosses before the later favorable spike

	if err := tracker.Update(context.Background(), sig, candles, start.Add(3*time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.ResultFixed == nil || !approxEqual(*sig.ResultFixed, adverseFixedPct) {
		t.Fatalf("expected the result to fix adverse at -0.5%%, got %v", sig.ResultFixed)
	}
}

func TestCloseOfSubMinuteLosingTradePinsMFEToZero(t *testing.T) {
	repo := &fakeSignalRepo{}
	tracker := NewTracker(repo, &fakeLiveLogRepo{})

	start := time.Unix(0, 0).UTC()
	sig := &model.Signal{ID: 3, Direction: model.DirectionLong, EntryPrice: 100.0, Timestamp: start, Status: model.SignalActive, MaxFavorableMovePct: 0.002}

	if err := tracker.Close(context.Background(), sig, 99.8, model.ExitStopLoss, start.Add(30*time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.MaxFavorableMovePct != 0 {
		t.Errorf("expected MFE pinned to 0 for a sub-60s losing trade, got %v", sig.MaxFavorableMovePct)
	}
	if sig.Status != model.SignalClosed || sig.ExitPrice == nil || *sig.ExitPrice != 99.8 {
		t.Errorf("expected the signal to be closed with the exit price recorded")
	}
}

func TestCloseOfLongTradeDoesNotPinMFE(t *testing.T) {
	repo := &fakeSignalRepo{}
	tracker := NewTracker(repo, &fakeLiveLogRepo{})

	start := time.Unix(0, 0).UTC()
	sig := &model.Signal{ID: 4, Direction: model.DirectionLong, EntryPrice: 100.0, Timestamp: start, Status: model.SignalActive, MaxFavorableMovePct: 0.01}

	if err := tracker.Close(context.Background(), sig, 99.8, model.ExitStopLoss, start.Add(5*time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.MaxFavorableMovePct != 0.01 {
		t.Errorf("expected MFE to remain untouched for a trade longer than 60s, got %v", sig.MaxFavorableMovePct)
	}
}
