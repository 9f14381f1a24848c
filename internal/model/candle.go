package model

import (
	"encoding/json"
	"time"
)

// Candle is one OHLCV bar for a (symbol, timeframe, bucket-start) key.
// Prices and volume are float64, matching spec's data model directly
// rather than introducing an integer fixed-point representation.
type Candle struct {
	Symbol    string    `json:"symbol"`
	TF        Timeframe `json:"tf"`
	TS        time.Time `json:"ts"` // bucket start, UTC
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the store key for this candle's series: "symbol:tf".
func (c *Candle) Key() string {
	return c.Symbol + ":" + string(c.TF)
}

// Closed reports whether the candle's bucket has ended as of now.
func (c *Candle) Closed(now time.Time) bool {
	return c.TS.Add(c.TF.Duration()).Before(now) || c.TS.Add(c.TF.Duration()).Equal(now)
}

// JSON returns the JSON encoding, swallowing marshal errors (Candle has
// no fields that can fail to marshal).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
