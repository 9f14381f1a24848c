// Package trend derives a TrendClassification from a candle series's
// EMA20/EMA50 ordering, their relative gap, and ADX(14), per spec.md §3.
package trend

import (
	"levelcore/internal/indicator"
	"levelcore/internal/model"
)

const (
	// sidewaysGapPct is the EMA20/EMA50 relative-gap threshold below
	// which the two averages are considered too close to carry a
	// directional bias, regardless of ADX.
	sidewaysGapPct = 0.005
	// strongADX is the ADX(14) reading above which a trend is
	// classified STRONG rather than WEAK.
	strongADX = 25.0
)

// Classifier maintains the three indicators needed to classify trend
// for one (symbol, timeframe) series and updates incrementally as
// candles close.
type Classifier struct {
	ema20 *indicator.EMA
	ema50 *indicator.EMA
	adx   *indicator.ADX
}

// New creates a Classifier with the conventional 20/50/14 periods.
func New() *Classifier {
	return &Classifier{
		ema20: indicator.NewEMA(20),
		ema50: indicator.NewEMA(50),
		adx:   indicator.NewADX(14),
	}
}

// Update feeds one closed candle into the underlying indicators.
func (c *Classifier) Update(candle model.Candle) {
	c.ema20.Update(candle)
	c.ema50.Update(candle)
	c.adx.Update(candle)
}

// Ready reports whether enough history has accumulated to classify.
func (c *Classifier) Ready() bool {
	return c.ema20.Ready() && c.ema50.Ready()
}

// EMA20 returns the current EMA20 value.
func (c *Classifier) EMA20() float64 { return c.ema20.Value() }

// EMA50 returns the current EMA50 value.
func (c *Classifier) EMA50() float64 { return c.ema50.Value() }

// ADX returns the current ADX(14) value (0 if not yet ready).
func (c *Classifier) ADX() float64 { return c.adx.Value() }

// Classify returns the current trend classification.
func (c *Classifier) Classify() model.TrendClassification {
	if !c.Ready() {
		return model.TrendUnknown
	}

	ema20, ema50 := c.ema20.Value(), c.ema50.Value()
	if ema50 == 0 {
		return model.TrendUnknown
	}

	gap := (ema20 - ema50) / ema50
	absGap := gap
	if absGap < 0 {
		absGap = -absGap
	}
	if absGap < sidewaysGapPct {
		return model.TrendSideways
	}

	adx := c.adx.Value()
	if gap > 0 {
		if adx >= strongADX {
			return model.TrendUpStrong
		}
		return model.TrendUpWeak
	}
	if adx >= strongADX {
		return model.TrendDownStrong
	}
	return model.TrendDownWeak
}

// FromSeries runs a fresh Classifier over an ascending candle series and
// returns the final classification, EMA20, EMA50, and ADX values. Used
// where a one-shot classification is wanted without holding a live
// Classifier (e.g. the backtest tool).
func FromSeries(candles []model.Candle) (cls model.TrendClassification, ema20, ema50, adx float64) {
	c := New()
	for _, cd := range candles {
		c.Update(cd)
	}
	return c.Classify(), c.EMA20(), c.EMA50(), c.ADX()
}
