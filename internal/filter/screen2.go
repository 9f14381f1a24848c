package filter

import (
	"fmt"
	"math"

	"levelcore/internal/model"
)

// approachWindow bounds how many trailing 1H candles the approach
// check considers.
const approachWindow = 5

// minAdmittingRatio is the minimum share of the approach window's
// closes that must sit on the admitting side of the level.
const minAdmittingRatio = 0.40

// majorityAdmittingRatio is the share of closes on the admitting side
// needed to tolerate a shallow (<1%) breakout through the level.
const majorityAdmittingRatio = 0.50

// breakoutPct is the depth past the level that counts as a breakout.
const breakoutPct = 0.01

// waiverDistancePct lets a level within this distance of the last
// close skip the approach check entirely.
const waiverDistancePct = 0.005

// rsiOverboughtBlock / rsiOversoldBlock are RSI(14) hard gates.
const (
	rsiOverboughtBlock = 75.0
	rsiOverboughtWarn  = 70.0
	rsiOversoldBlock   = 25.0
	rsiOversoldWarn    = 30.0
)

// macdMinTolerance is the floor on the MACD neutral-zone tolerance so
// a near-zero signal line doesn't make the gate trivially tight.
const macdMinTolerance = 0.0005

// Screen2 evaluates the 1H oscillator & approach screen: is price
// approaching the level from the admitting side, is RSI(14) not
// already overextended against the direction, and does MACD(12,26,9)
// not contradict it. Screen2 is only meaningful once Screen1 passed.
func Screen2(direction model.Direction, levelType model.LevelType, levelPrice float64, recent1h []model.Candle, rsi, macdLine, macdSignal float64) model.ScreenResult {
	approach := approachCheck(levelType, levelPrice, recent1h)
	rsiRes := rsiCheck(direction, rsi)
	macdRes := macdCheck(direction, macdLine, macdSignal)

	checks := []model.CheckResult{approach, rsiRes, macdRes}
	passed := approach.Passed && rsiRes.Passed && macdRes.Passed
	reason := ""
	if !passed {
		for _, c := range checks {
			if !c.Passed {
				reason = c.Detail
				break
			}
		}
	}

	return model.ScreenResult{Name: "1h_oscillators", Passed: passed, Checks: checks, Reason: reason}
}

func approachCheck(levelType model.LevelType, levelPrice float64, recent []model.Candle) model.CheckResult {
	name := "approach_direction"
	if len(recent) == 0 {
		return model.CheckResult{Name: name, Passed: false, Detail: "no 1h candles available for approach check"}
	}
	if n := len(recent); n > approachWindow {
		recent = recent[n-approachWindow:]
	}

	admitting := 0
	shallowBreakout := false
	for _, c := range recent {
		onAdmittingSide, breakoutFrac := approachSide(levelType, levelPrice, c.Close)
		if onAdmittingSide {
			admitting++
		}
		if breakoutFrac > 0 && breakoutFrac <= breakoutPct {
			shallowBreakout = true
		}
	}

	n := len(recent)
	admittingRatio := float64(admitting) / float64(n)
	last := recent[n-1]
	_, lastBreakoutFrac := approachSide(levelType, levelPrice, last.Close)
	lastDistPct := math.Abs(last.Close-levelPrice) / levelPrice
	waived := lastDistPct <= waiverDistancePct

	// A current price more than 1% past the level is a definitive
	// breakout and blocks regardless of how many recent closes sat on
	// the admitting side; the candle-ratio tolerance below only ever
	// applies to shallower (<=1%) breakouts.
	if lastBreakoutFrac > breakoutPct {
		return model.CheckResult{
			Name: name, Passed: false, Value: lastBreakoutFrac,
			Detail: fmt.Sprintf("current price %.3f%% past the level is a definitive breakout", lastBreakoutFrac*100),
		}
	}
	if shallowBreakout && admittingRatio < majorityAdmittingRatio && !waived {
		return model.CheckResult{
			Name: name, Passed: false, Value: admittingRatio,
			Detail: fmt.Sprintf("approach breakout past level with only %.0f%% of candles on the admitting side", admittingRatio*100),
		}
	}
	if admittingRatio < minAdmittingRatio && !waived {
		return model.CheckResult{
			Name: name, Passed: false, Value: admittingRatio,
			Detail: fmt.Sprintf("only %.0f%% of the last %d 1h closes approached from the admitting side", admittingRatio*100, n),
		}
	}

	return model.CheckResult{Name: name, Passed: true, Value: admittingRatio, Detail: fmt.Sprintf("%.0f%% of recent closes approach from the admitting side", admittingRatio*100)}
}

// approachSide reports whether close sits on the side of levelPrice a
// touch of levelType would admit, and how far past the level (as a
// fraction) close has broken through if it's on the wrong side.
func approachSide(levelType model.LevelType, levelPrice, close float64) (onAdmittingSide bool, breakoutFrac float64) {
	switch levelType {
	case model.LevelSupport:
		onAdmittingSide = close >= levelPrice
		if close < levelPrice {
			breakoutFrac = (levelPrice - close) / levelPrice
		}
	case model.LevelResistance:
		onAdmittingSide = close <= levelPrice
		if close > levelPrice {
			breakoutFrac = (close - levelPrice) / levelPrice
		}
	}
	return onAdmittingSide, breakoutFrac
}

func rsiCheck(direction model.Direction, rsi float64) model.CheckResult {
	name := "rsi"
	switch direction {
	case model.DirectionLong:
		if rsi > rsiOverboughtBlock {
			return model.CheckResult{Name: name, Passed: false, Value: rsi, Detail: fmt.Sprintf("RSI %.2f > %.0f", rsi, rsiOverboughtBlock)}
		}
		if rsi > rsiOverboughtWarn {
			return model.CheckResult{Name: name, Passed: true, Warning: true, Value: rsi, Detail: fmt.Sprintf("RSI %.2f approaching overbought", rsi)}
		}
	case model.DirectionShort:
		if rsi < rsiOversoldBlock {
			return model.CheckResult{Name: name, Passed: false, Value: rsi, Detail: fmt.Sprintf("RSI %.2f < %.0f", rsi, rsiOversoldBlock)}
		}
		if rsi < rsiOversoldWarn {
			return model.CheckResult{Name: name, Passed: true, Warning: true, Value: rsi, Detail: fmt.Sprintf("RSI %.2f approaching oversold", rsi)}
		}
	}
	return model.CheckResult{Name: name, Passed: true, Value: rsi, Detail: fmt.Sprintf("RSI %.2f neutral", rsi)}
}

func macdCheck(direction model.Direction, macdLine, macdSignal float64) model.CheckResult {
	name := "macd"
	tol := math.Abs(macdSignal) * 0.005
	if tol < macdMinTolerance {
		tol = macdMinTolerance
	}

	switch direction {
	case model.DirectionLong:
		if macdLine < macdSignal-tol {
			return model.CheckResult{Name: name, Passed: false, Value: macdLine, Detail: fmt.Sprintf("MACD %.5f below signal %.5f by more than tolerance", macdLine, macdSignal)}
		}
	case model.DirectionShort:
		if macdLine > macdSignal+tol {
			return model.CheckResult{Name: name, Passed: false, Value: macdLine, Detail: fmt.Sprintf("MACD %.5f above signal %.5f by more than tolerance", macdLine, macdSignal)}
		}
	}
	return model.CheckResult{Name: name, Passed: true, Value: macdLine, Detail: "MACD does not contradict direction"}
}
