package filter

import (
	"strings"
	"testing"

	"levelcore/internal/model"
)

// TestScreen1SidewaysBTCAdmitsOnlyEMAAlignedDirection is spec.md §8
// Scenario 4: BTC 4h is SIDEWAYS with ADX 22 and EMA20 60050 > EMA50
// 59900. The pair's own 4h trend is SIDEWAYS too, so it admits either
// direction without overriding BTC. A support/LONG candidate with
// level_score 45 passes; the same candidate as SHORT fails, citing
// SIDEWAYS and the EMA20 > EMA50 ordering.
func TestScreen1SidewaysBTCAdmitsOnlyEMAAlignedDirection(t *testing.T) {
	btc := TrendContext{Classification: model.TrendSideways, ADX: 22, EMA20: 60050, EMA50: 59900}
	pair := TrendContext{Classification: model.TrendSideways, ADX: 22, EMA20: 100, EMA50: 100}

	long := Screen1(model.DirectionLong, btc, pair, 45)
	if !long.Passed {
		t.Fatalf("expected LONG to pass Screen1 when BTC SIDEWAYS ADX>=20 and EMA20>EMA50, got reason %q", long.Reason)
	}

	short := Screen1(model.DirectionShort, btc, pair, 45)
	if short.Passed {
		t.Fatal("expected SHORT to fail Screen1 against a SIDEWAYS BTC market ordered for LONG")
	}
	if !strings.Contains(short.Reason, "SIDEWAYS") || !strings.Contains(short.Reason, "EMA20 > EMA50") {
		t.Fatalf("expected the failure reason to cite SIDEWAYS and EMA20 > EMA50, got %q", short.Reason)
	}
}

func TestScreen1BTCUpAdmitsLongWithoutScoreOverride(t *testing.T) {
	btc := TrendContext{Classification: model.TrendUpStrong, ADX: 30}
	pair := TrendContext{Classification: model.TrendUpStrong, ADX: 30}

	result := Screen1(model.DirectionLong, btc, pair, 10)
	if !result.Passed {
		t.Fatalf("expected LONG to pass a BTC/pair UP market regardless of score, got reason %q", result.Reason)
	}
}

func TestScreen1FailingPairTrendIsFatalEvenWithPassingBTC(t *testing.T) {
	btc := TrendContext{Classification: model.TrendUpStrong, ADX: 30}
	pair := TrendContext{Classification: model.TrendDownStrong, ADX: 30}

	result := Screen1(model.DirectionLong, btc, pair, 10)
	if result.Passed {
		t.Fatal("expected a failing, non-overriding pair trend to block the screen even though BTC passed")
	}
}

func TestScreen1DecisivePairTrendOverridesFailingBTC(t *testing.T) {
	btc := TrendContext{Classification: model.TrendDownStrong, ADX: 30}
	pair := TrendContext{Classification: model.TrendUpStrong, ADX: 30}

	result := Screen1(model.DirectionLong, btc, pair, 10)
	if !result.Passed {
		t.Fatalf("expected the pair's own decisive UP trend to override a failing BTC DOWN trend, got reason %q", result.Reason)
	}
}

func TestScreen1UnknownBTCTrendFails(t *testing.T) {
	btc := TrendContext{Classification: model.TrendUnknown}
	pair := TrendContext{Classification: model.TrendSideways}

	result := Screen1(model.DirectionLong, btc, pair, 90)
	if result.Passed {
		t.Fatal("expected an UNKNOWN BTC trend to block the screen")
	}
}
