package model

import "time"

// Direction is the side of a signal.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// SignalStatus is the lifecycle state of a signal.
type SignalStatus string

const (
	SignalActive SignalStatus = "ACTIVE"
	SignalClosed SignalStatus = "CLOSED"
)

// ExitReason explains why a signal transitioned to CLOSED.
type ExitReason string

const (
	ExitThresholdFavorable ExitReason = "threshold_favorable" // +1.5% result_fixed
	ExitThresholdAdverse   ExitReason = "threshold_adverse"   // -0.5% result_fixed
	ExitStopLoss           ExitReason = "stop_loss"
	ExitRetention          ExitReason = "retention_expired"
	ExitManual             ExitReason = "manual"
)

// Signal is an emitted directional trade decision plus its tracked outcome.
type Signal struct {
	ID         int64               `json:"id"`
	PairID     int64               `json:"pair_id"`
	Symbol     string              `json:"symbol"`
	Direction  Direction           `json:"signal_type"`
	LevelPrice float64             `json:"level_price"`
	EntryPrice float64             `json:"entry_price"`
	StopLoss   float64             `json:"stop_loss"`
	Timestamp  time.Time           `json:"timestamp"`
	Trend      TrendClassification `json:"trend_classification"`
	LevelType  LevelType           `json:"level_type"`
	Timeframe  Timeframe           `json:"timeframe"`
	TestCount  int                 `json:"test_count"`
	Status     SignalStatus        `json:"status"`

	ExitPrice     *float64    `json:"exit_price,omitempty"`
	ExitTimestamp *time.Time  `json:"exit_timestamp,omitempty"`
	ExitReason    *ExitReason `json:"exit_reason,omitempty"`

	MaxFavorableMovePct float64 `json:"max_favorable_move_pct"`
	MaxAdverseMovePct   float64 `json:"max_adverse_move_pct"`

	FirstTouch05PctTS *time.Time `json:"first_touch_0_5_pct_ts,omitempty"`
	FirstTouch10PctTS *time.Time `json:"first_touch_1_0_pct_ts,omitempty"`
	FirstTouch15PctTS *time.Time `json:"first_touch_1_5_pct_ts,omitempty"`

	ResultFixed   *float64   `json:"result_fixed,omitempty"`
	ResultFixedAt *time.Time `json:"result_fixed_at,omitempty"`

	ElderScreens *VerdictSnapshot `json:"elder_screens_metadata,omitempty"`

	Archived bool `json:"archived"`
}

// StopDistancePct returns |stop-entry|/entry.
func (s *Signal) StopDistancePct() float64 {
	if s.EntryPrice == 0 {
		return 0
	}
	d := s.StopLoss - s.EntryPrice
	if d < 0 {
		d = -d
	}
	return d / s.EntryPrice
}

// ValidStop reports whether the stop loss sits on the correct side of
// entry for the signal's direction (spec.md §3 invariant).
func (s *Signal) ValidStop() bool {
	if s.Direction == DirectionLong {
		return s.StopLoss < s.EntryPrice
	}
	return s.StopLoss > s.EntryPrice
}

// FavorableMovePct returns the signed percent move from entry that counts
// as "favorable" for this signal's direction (positive = in the trade's favor).
func (s *Signal) FavorableMovePct(price float64) float64 {
	if s.EntryPrice == 0 {
		return 0
	}
	pct := (price - s.EntryPrice) / s.EntryPrice
	if s.Direction == DirectionShort {
		pct = -pct
	}
	return pct
}
