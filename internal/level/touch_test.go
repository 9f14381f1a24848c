package level

import (
	"testing"
	"time"

	"levelcore/internal/model"
)

func TestCountHistoricalTouchesWithinTolerance(t *testing.T) {
	candles := []model.Candle{
		{Low: 99.8, High: 100.3, Close: 100.0},
		{Low: 95.0, High: 96.0, Close: 95.5},  // far away, no touch
		{Low: 99.9, High: 100.1, Close: 100.0}, // touch via close
	}
	touches := CountHistoricalTouches(candles, 100.0, 0.003)
	if touches != 2 {
		t.Fatalf("expected 2 touches within tolerance, got %d", touches)
	}
}

func TestObserveLiveTouchRespectsMinGap(t *testing.T) {
	lvl := &model.Level{Price: 100.0}
	base := time.Now().UTC()

	c1 := model.Candle{TS: base, Low: 99.8, High: 100.2, Close: 100.0}
	if !ObserveLiveTouch(lvl, c1, 0.004) {
		t.Fatal("expected the first touch to register")
	}
	lvl.LastTouch = c1.TS

	c2 := model.Candle{TS: base.Add(2 * time.Minute), Low: 99.8, High: 100.2, Close: 100.0}
	if ObserveLiveTouch(lvl, c2, 0.004) {
		t.Fatal("expected a touch inside the 5-minute gap to be suppressed")
	}

	c3 := model.Candle{TS: base.Add(10 * time.Minute), Low: 99.8, High: 100.2, Close: 100.0}
	if !ObserveLiveTouch(lvl, c3, 0.004) {
		t.Fatal("expected a touch after the 5-minute gap to register")
	}
}

func TestObserveLiveTouchIgnoresDistantCandle(t *testing.T) {
	lvl := &model.Level{Price: 100.0}
	c := model.Candle{TS: time.Now().UTC(), Low: 90, High: 91, Close: 90.5}
	if ObserveLiveTouch(lvl, c, 0.004) {
		t.Fatal("expected a candle far from the level not to register as a touch")
	}
}

func TestExhaustedAtMaxLiveTests(t *testing.T) {
	lvl := &model.Level{LiveTestCount: 5}
	if !Exhausted(lvl, 5) {
		t.Fatal("expected the level to be exhausted at the max live test count")
	}
	lvl.LiveTestCount = 4
	if Exhausted(lvl, 5) {
		t.Fatal("expected the level not to be exhausted below the max")
	}
}
