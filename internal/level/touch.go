package level

import (
	"time"

	"levelcore/internal/model"
)

// minLiveTouchGap is the spacing below which two consecutive
// observations near a level count as a single live test, per spec.md
// §4.2 ("each new observation closer than 5 min to the previous one
// counts as one test").
const minLiveTouchGap = 5 * time.Minute

// CountHistoricalTouches counts bars in the cooling-off window whose
// low, high, or close falls within tolerancePct of price — computed
// once at discovery time, per spec.md §4.2.
func CountHistoricalTouches(candles []model.Candle, price, tolerancePct float64) int {
	count := 0
	for _, c := range candles {
		if withinTolerance(c.Low, price, tolerancePct) ||
			withinTolerance(c.High, price, tolerancePct) ||
			withinTolerance(c.Close, price, tolerancePct) {
			count++
		}
	}
	return count
}

func withinTolerance(value, price, tolerancePct float64) bool {
	if price == 0 {
		return value == 0
	}
	diff := value - price
	if diff < 0 {
		diff = -diff
	}
	return diff/price <= tolerancePct
}

// ObserveLiveTouch reports whether the given candle constitutes a new
// live test of lvl (within liveTolerancePct of the level, and at least
// minLiveTouchGap after the level's last recorded touch). It does not
// mutate lvl; callers apply the resulting increment and LastTouch
// update themselves as part of a single persistence transaction.
func ObserveLiveTouch(lvl *model.Level, candle model.Candle, liveTolerancePct float64) (isNewTouch bool) {
	touched := withinTolerance(candle.Low, lvl.Price, liveTolerancePct) ||
		withinTolerance(candle.High, lvl.Price, liveTolerancePct) ||
		withinTolerance(candle.Close, lvl.Price, liveTolerancePct)
	if !touched {
		return false
	}
	if !lvl.LastTouch.IsZero() && candle.TS.Sub(lvl.LastTouch) < minLiveTouchGap {
		return false
	}
	return true
}

// Exhausted reports whether lvl has reached the live-test cap and
// should be evicted, per spec.md §4.2.
func Exhausted(lvl *model.Level, maxLiveTests int) bool {
	return lvl.LiveTestCount >= maxLiveTests
}
