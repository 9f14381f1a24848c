package trend

import (
	"testing"
	"time"

	"levelcore/internal/model"
)

func seriesCandle(i int, close float64) model.Candle {
	ts := time.Unix(int64(i)*3600, 0).UTC()
	return model.Candle{TS: ts, Open: close, High: close * 1.01, Low: close * 0.99, Close: close, Volume: 100}
}

func TestClassifyUnknownBeforeReady(t *testing.T) {
	c := New()
	c.Update(seriesCandle(0, 100))
	if c.Classify() != model.TrendUnknown {
		t.Fatalf("expected UNKNOWN before EMA50 warms up, got %v", c.Classify())
	}
}

func TestClassifyUpTrend(t *testing.T) {
	c := New()
	price := 100.0
	for i := 0; i < 80; i++ {
		c.Update(seriesCandle(i, price))
		price += 1.0
	}
	cls := c.Classify()
	if !cls.IsUp() {
		t.Fatalf("expected an UP classification for a steadily rising series, got %v", cls)
	}
}

func TestClassifyDownTrend(t *testing.T) {
	c := New()
	price := 500.0
	for i := 0; i < 80; i++ {
		c.Update(seriesCandle(i, price))
		price -= 1.0
	}
	cls := c.Classify()
	if !cls.IsDown() {
		t.Fatalf("expected a DOWN classification for a steadily falling series, got %v", cls)
	}
}

func TestClassifySidewaysWhenEMAsConverge(t *testing.T) {
	c := New()
	// flat series: EMA20 and EMA50 converge to the same value
	for i := 0; i < 80; i++ {
		c.Update(seriesCandle(i, 200))
	}
	if cls := c.Classify(); cls != model.TrendSideways {
		t.Fatalf("expected SIDEWAYS for a flat series, got %v", cls)
	}
}
