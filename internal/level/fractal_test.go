package level

import (
	"testing"
	"time"

	"levelcore/internal/model"
)

// seriesWithDips builds a flat 15m candle series of length n with a
// pronounced swing-low notch at each of dipIndices, matching spec.md §8 Scenario 1's literal
// setup: "200 consecutive 15m candles with a pronounced swing-low at
// index 198 ... and another at index 100".
func seriesWithDips(n int, dipIndices ...int) []model.Candle {
	isDip := make(map[int]bool, len(dipIndices))
	for _, i := range dipIndices {
		isDip[i] = true
	}
	start := time.Unix(0, 0).UTC()
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		price := 100.0
		if isDip[i] {
			price = 90.0 // a pronounced dip relative to the flat 100 baseline
		}
		out[i] = model.Candle{
			Symbol: "BTCUSDT", TF: model.TF15m,
			TS:     start.Add(time.Duration(i) * model.TF15m.Duration()),
			Open:   price, High: price + 1, Low: price, Close: price, Volume: 100,
		}
	}
	return out
}

func TestCoolingOffExcludesRecentFractal(t *testing.T) {
	candles := seriesWithDips(200, 198, 100)

	excludeBars := excludeRecentBars(model.TF15m, 60) // 60min / 15min = 4 bars
	if excludeBars != 4 {
		t.Fatalf("expected 4 excluded bars for 15m/60min, got %d", excludeBars)
	}

	fractals := DiscoverFractals(candles, 5, excludeBars)

	foundIndex198 := false
	foundIndex100 := false
	for _, fr := range fractals {
		if fr.Type != model.LevelSupport {
			continue
		}
		switch fr.Index {
		case 198:
			foundIndex198 = true
		case 100:
			foundIndex100 = true
		}
	}

	if foundIndex198 {
		t.Error("expected the index-198 fractal to be excluded by the cooling-off window")
	}
	if !foundIndex100 {
		t.Error("expected the index-100 fractal to be proposed")
	}
}

func TestDiscoverFractalsEmptyWhenAllExcluded(t *testing.T) {
	candles := seriesWithDips(10, 5)
	fractals := DiscoverFractals(candles, 5, 20)
	if fractals != nil {
		t.Fatalf("expected no fractals when the cooling-off window covers the whole series, got %v", fractals)
	}
}

func TestDiscoverFractalsShrinksLookbackForShortSeries(t *testing.T) {
	// A series too short for the default L=5 lookback; effectiveLookback
	// shrinks L so the index-3 swing-low is still found.
	candles := seriesWithDips(6, 3)
	fractals := DiscoverFractals(candles, 5, 0)

	found := false
	for _, fr := range fractals {
		if fr.Index == 3 && fr.Type == model.LevelSupport {
			found = true
		}
	}
	if !found {
		t.Error("expected the shrunk lookback to find the index-3 swing-low")
	}
}

func TestSwingHighDetection(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	candles := make([]model.Candle, 11)
	for i := range candles {
		price := 100.0
		if i == 5 {
			price = 110.0
		}
		candles[i] = model.Candle{TS: start.Add(time.Duration(i) * time.Hour), Open: price, High: price, Low: price - 1, Close: price}
	}

	fractals := scanFractals(candles, 5)
	found := false
	for _, fr := range fractals {
		if fr.Index == 5 && fr.Type == model.LevelResistance {
			found = true
		}
	}
	if !found {
		t.Error("expected a swing-high fractal at index 5")
	}
}
