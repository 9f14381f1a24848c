package model

// TrendClassification tags a pair's or market's directional context on
// a given timeframe, derived from EMA20/EMA50 ordering, their relative
// gap, and ADX(14).
type TrendClassification string

const (
	TrendUpStrong   TrendClassification = "UP_STRONG"
	TrendUpWeak     TrendClassification = "UP_WEAK"
	TrendDownStrong TrendClassification = "DOWN_STRONG"
	TrendDownWeak   TrendClassification = "DOWN_WEAK"
	TrendSideways   TrendClassification = "SIDEWAYS"
	TrendUnknown    TrendClassification = "UNKNOWN"
)

// IsUp reports whether the classification is one of the UP variants.
func (t TrendClassification) IsUp() bool {
	return t == TrendUpStrong || t == TrendUpWeak
}

// IsDown reports whether the classification is one of the DOWN variants.
func (t TrendClassification) IsDown() bool {
	return t == TrendDownStrong || t == TrendDownWeak
}
