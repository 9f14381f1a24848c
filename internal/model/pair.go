package model

import "time"

// Pair identifies one tradeable perpetual-futures instrument in the
// configured universe.
type Pair struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"` // e.g. "BTC/USDT"
	Venue     string    `json:"venue"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns "venue:symbol", used for exchange-adapter and cache keys.
func (p *Pair) Key() string {
	return p.Venue + ":" + p.Symbol
}
