package level

import (
	"testing"
	"time"

	"levelcore/internal/model"
)

// TestSupportBreaksOnSixTenthsPercentDrop is spec.md §8 Scenario 3:
// a support at 100.00 breaks when price closes 0.6% below it.
func TestSupportBreaksOnSixTenthsPercentDrop(t *testing.T) {
	lvl := &model.Level{Type: model.LevelSupport, Price: 100.00}
	recent := []model.Candle{{Low: 99.3, High: 100.1, Close: 99.40}}

	if !IsBroken(lvl, 99.40, recent, 0.005) {
		t.Fatal("expected a 0.6% close below a 0.5% tolerance support to count as broken")
	}
}

func TestSupportNotBrokenWithinTolerance(t *testing.T) {
	lvl := &model.Level{Type: model.LevelSupport, Price: 100.00}
	recent := []model.Candle{{Low: 99.8, High: 100.2, Close: 99.80}}

	if IsBroken(lvl, 99.80, recent, 0.005) {
		t.Fatal("expected a 0.2% dip within tolerance not to count as broken")
	}
}

func TestResistanceBreaksSymmetrically(t *testing.T) {
	lvl := &model.Level{Type: model.LevelResistance, Price: 100.00}
	recent := []model.Candle{{Low: 99.9, High: 100.7, Close: 100.60}}

	if !IsBroken(lvl, 100.60, recent, 0.005) {
		t.Fatal("expected a 0.6% close above a 0.5% tolerance resistance to count as broken")
	}
}

func TestBreaksOnDeepDrift(t *testing.T) {
	lvl := &model.Level{Type: model.LevelSupport, Price: 100.00}
	recent := []model.Candle{{Low: 97.0, High: 98.0, Close: 97.50}}

	if !IsBroken(lvl, 97.50, recent, 0.005) {
		t.Fatal("expected a 2.5% drift below support to count as broken regardless of tolerance")
	}
}

func TestEvaluateOrdersBrokenFirst(t *testing.T) {
	lvl := &model.Level{Type: model.LevelSupport, Price: 100.00, LiveTestCount: 10}
	recent := []model.Candle{{Low: 99.3, High: 100.1, Close: 99.40}}
	policy := EvictionPolicy{BreakTolerancePct: 0.005, MaxLiveTests: 5}

	reason := Evaluate(lvl, 99.40, recent, time.Now().UTC(), policy)
	if reason != EvictionBroken {
		t.Fatalf("expected broken to take priority over exhausted, got %v", reason)
	}
}

func TestEvaluateReturnsExhaustedWhenNotBroken(t *testing.T) {
	lvl := &model.Level{Type: model.LevelSupport, Price: 100.00, LiveTestCount: 5, CreatedAt: time.Now().UTC()}
	recent := []model.Candle{{Low: 99.9, High: 100.2, Close: 100.0}}
	policy := EvictionPolicy{BreakTolerancePct: 0.005, MaxLiveTests: 5}

	reason := Evaluate(lvl, 100.0, recent, time.Now().UTC(), policy)
	if reason != EvictionExhausted {
		t.Fatalf("expected exhausted, got %v", reason)
	}
}

func TestEvaluateReturnsNoneWhenHealthy(t *testing.T) {
	lvl := &model.Level{Type: model.LevelSupport, Price: 100.00, LiveTestCount: 1, CreatedAt: time.Now().UTC()}
	recent := []model.Candle{{Low: 99.9, High: 100.2, Close: 100.0}}
	policy := EvictionPolicy{BreakTolerancePct: 0.005, MaxLiveTests: 5, MaxAge: 168 * time.Hour, MaxDistancePct: 0.05}

	reason := Evaluate(lvl, 100.0, recent, time.Now().UTC(), policy)
	if reason != EvictionNone {
		t.Fatalf("expected no eviction, got %v", reason)
	}
}
