package filter

import (
	"strings"
	"testing"

	"levelcore/internal/model"
)

// TestScreen2BlocksOverboughtRSI is spec.md §8 Scenario 5: Screen 1
// has passed; the 1h RSI(14) reads 78 for a LONG candidate. Screen 2
// blocks with a reason naming "RSI 78.00 > 75".
func TestScreen2BlocksOverboughtRSI(t *testing.T) {
	recent := []model.Candle{
		{Close: 99.5}, {Close: 99.7}, {Close: 99.9}, {Close: 100.0}, {Close: 100.0},
	}

	result := Screen2(model.DirectionLong, model.LevelSupport, 100.0, recent, 78, 0.1, 0.05)
	if result.Passed {
		t.Fatal("expected Screen2 to block an overbought RSI for a LONG candidate")
	}
	if !strings.Contains(result.Reason, "RSI 78.00 > 75") {
		t.Fatalf("expected the blocked reason to cite RSI 78.00 > 75, got %q", result.Reason)
	}
}

func TestScreen2PassesCleanApproachNeutralOscillators(t *testing.T) {
	recent := []model.Candle{
		{Close: 102}, {Close: 101.5}, {Close: 101}, {Close: 100.5}, {Close: 100.2},
	}

	result := Screen2(model.DirectionLong, model.LevelSupport, 100.0, recent, 50, 0.02, 0.01)
	if !result.Passed {
		t.Fatalf("expected a clean approach with neutral oscillators to pass, got reason %q", result.Reason)
	}
}

func TestScreen2BlocksOversoldRSIForShort(t *testing.T) {
	recent := []model.Candle{
		{Close: 100.5}, {Close: 100.3}, {Close: 100.1}, {Close: 100.0}, {Close: 100.0},
	}

	result := Screen2(model.DirectionShort, model.LevelResistance, 100.0, recent, 18, -0.1, -0.05)
	if result.Passed {
		t.Fatal("expected Screen2 to block an oversold RSI for a SHORT candidate")
	}
}

func TestScreen2BlocksMACDContradiction(t *testing.T) {
	recent := []model.Candle{
		{Close: 99.5}, {Close: 99.7}, {Close: 99.9}, {Close: 100.0}, {Close: 100.0},
	}

	result := Screen2(model.DirectionLong, model.LevelSupport, 100.0, recent, 50, -0.05, 0.05)
	if result.Passed {
		t.Fatal("expected Screen2 to block when MACD sits well below signal for a LONG candidate")
	}
}

func TestScreen2BlocksBreakoutWithoutMajorityAdmitting(t *testing.T) {
	// Price has broken more than 1% below a support with most candles
	// on the wrong side of the level.
	recent := []model.Candle{
		{Close: 98.5}, {Close: 98.4}, {Close: 98.3}, {Close: 98.2}, {Close: 98.1},
	}

	result := Screen2(model.DirectionLong, model.LevelSupport, 100.0, recent, 50, 0.02, 0.01)
	if result.Passed {
		t.Fatal("expected a deep breakout with no admitting-side majority to block approach")
	}
}

func TestScreen2WaivesApproachWhenLevelWithinHalfPercent(t *testing.T) {
	// Closes sit mostly on the wrong side but stay within the 0.5%
	// waiver distance and never breach the 1% breakout threshold.
	recent := []model.Candle{
		{Close: 99.7}, {Close: 99.6}, {Close: 99.6}, {Close: 99.6}, {Close: 99.6},
	}

	result := Screen2(model.DirectionLong, model.LevelSupport, 100.0, recent, 50, 0.02, 0.01)
	if !result.Passed {
		t.Fatalf("expected the approach check to be waived within 0.5%% of the level, got reason %q", result.Reason)
	}
}
