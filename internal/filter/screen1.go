// Package filter implements the Elder-style multi-screen filter chain
// (spec.md §4.3): a 4H directional-context screen, a 1H oscillator/
// approach screen, and a universal policy filter, composed behind a
// cached Chain.
package filter

import (
	"fmt"

	"levelcore/internal/model"
)

// TrendContext is one timeframe's trend read, bundling the
// classification with the raw EMA/ADX values Screen 1's policy needs
// beyond the classification tag itself.
type TrendContext struct {
	Classification model.TrendClassification
	EMA20          float64
	EMA50          float64
	ADX            float64
}

// overrideThreshold is the level-score floor above which an off-trend
// (or counter-BTC-trend) direction is still admitted, per spec.md §4.3.
const overrideThreshold = 30.0

// sidewaysADXFloor is the minimum ADX for a SIDEWAYS BTC market to
// still admit a direction aligned with the EMA20/EMA50 ordering.
const sidewaysADXFloor = 20.0

// Screen1 evaluates the 4H directional-context screen: BTC market
// trend and the pair's own 4H trend. The pair's own decisive trend
// (a clean UP admitting LONG, or DOWN admitting SHORT) overrides a
// failing BTC check; a failing pair check is always fatal.
func Screen1(direction model.Direction, btc, pair TrendContext, levelScore float64) model.ScreenResult {
	btcCheck := btcTrendCheck(direction, btc, levelScore)
	pairCheck, overrides := pairTrendCheck(direction, pair, levelScore)

	passed := pairCheck.Passed && (btcCheck.Passed || overrides)
	reason := ""
	if !passed {
		if !pairCheck.Passed {
			reason = pairCheck.Detail
		} else {
			reason = btcCheck.Detail
		}
	}

	return model.ScreenResult{
		Name:   "4h_trend_context",
		Passed: passed,
		Checks: []model.CheckResult{btcCheck, pairCheck.CheckResult},
		Reason: reason,
	}
}

func btcTrendCheck(direction model.Direction, btc TrendContext, levelScore float64) model.CheckResult {
	name := "btc_trend"
	switch btc.Classification {
	case model.TrendUpStrong, model.TrendUpWeak:
		if direction == model.DirectionLong {
			return model.CheckResult{Name: name, Passed: true, Detail: "BTC UP admits LONG", Value: btc.ADX}
		}
		if levelScore > overrideThreshold {
			return model.CheckResult{Name: name, Passed: true, Detail: "BTC UP, SHORT admitted on score override", Value: levelScore}
		}
		return model.CheckResult{Name: name, Passed: false, Detail: "BTC UP blocks SHORT below score override", Value: levelScore}

	case model.TrendDownStrong, model.TrendDownWeak:
		if direction == model.DirectionShort {
			return model.CheckResult{Name: name, Passed: true, Detail: "BTC DOWN admits SHORT", Value: btc.ADX}
		}
		if levelScore > overrideThreshold {
			return model.CheckResult{Name: name, Passed: true, Detail: "BTC DOWN, LONG admitted on score override", Value: levelScore}
		}
		return model.CheckResult{Name: name, Passed: false, Detail: "BTC DOWN blocks LONG below score override", Value: levelScore}

	case model.TrendSideways:
		orderingAdmits := (direction == model.DirectionLong && btc.EMA20 > btc.EMA50) ||
			(direction == model.DirectionShort && btc.EMA20 < btc.EMA50)
		if btc.ADX >= sidewaysADXFloor && orderingAdmits {
			return model.CheckResult{Name: name, Passed: true, Detail: fmt.Sprintf("BTC SIDEWAYS, ADX %.1f >= %.0f, EMA ordering admits %s", btc.ADX, sidewaysADXFloor, direction), Value: btc.ADX}
		}
		return model.CheckResult{
			Name: name, Passed: false, Warning: false, Value: btc.ADX,
			Detail: fmt.Sprintf("BTC SIDEWAYS blocks %s: ADX %.1f, EMA20 %s EMA50", direction, btc.ADX, emaOrderingWord(btc)),
		}

	default: // UNKNOWN
		return model.CheckResult{Name: name, Passed: false, Detail: "BTC trend UNKNOWN: insufficient history"}
	}
}

func emaOrderingWord(ctx TrendContext) string {
	if ctx.EMA20 > ctx.EMA50 {
		return ">"
	}
	if ctx.EMA20 < ctx.EMA50 {
		return "<"
	}
	return "=="
}

type pairCheckResult struct {
	model.CheckResult
}

// pairTrendCheck evaluates the pair's own 4H trend. overrides reports
// whether this is a decisive, non-ambiguous pass (a clean UP admitting
// LONG or DOWN admitting SHORT) strong enough to override a failing
// BTC check; SIDEWAYS and off-trend-by-score passes do not override.
func pairTrendCheck(direction model.Direction, pair TrendContext, levelScore float64) (pairCheckResult, bool) {
	name := "pair_trend"
	switch pair.Classification {
	case model.TrendUpStrong, model.TrendUpWeak:
		if direction == model.DirectionLong {
			return pairCheckResult{model.CheckResult{Name: name, Passed: true, Detail: "pair UP admits LONG", Value: pair.ADX}}, true
		}
	case model.TrendDownStrong, model.TrendDownWeak:
		if direction == model.DirectionShort {
			return pairCheckResult{model.CheckResult{Name: name, Passed: true, Detail: "pair DOWN admits SHORT", Value: pair.ADX}}, true
		}
	case model.TrendSideways:
		return pairCheckResult{model.CheckResult{Name: name, Passed: true, Detail: "pair SIDEWAYS admits either direction", Value: pair.ADX}}, false
	}

	if levelScore > overrideThreshold {
		return pairCheckResult{model.CheckResult{Name: name, Passed: true, Detail: "pair off-trend, admitted on score override", Value: levelScore}}, false
	}
	return pairCheckResult{model.CheckResult{
		Name: name, Passed: false,
		Detail: fmt.Sprintf("pair trend %s does not admit %s and score %.1f <= %.0f", pair.Classification, direction, levelScore, overrideThreshold),
		Value:  levelScore,
	}}, false
}
