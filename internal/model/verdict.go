package model

import "time"

// CheckResult is the outcome of one individual gate inside a screen
// (e.g. "btc_trend", "rsi", "macd"). It is a tagged record rather than
// the dynamic dict the Python original returned, per spec.md §9.
type CheckResult struct {
	Name    string  `json:"name"`
	Passed  bool    `json:"passed"`
	Detail  string  `json:"detail"`
	Value   float64 `json:"value,omitempty"`
	Warning bool    `json:"warning,omitempty"`
}

// ScreenResult is the outcome of one screen (a named group of checks).
type ScreenResult struct {
	Name    string        `json:"name"`
	Passed  bool          `json:"passed"`
	Checks  []CheckResult `json:"checks"`
	Reason  string        `json:"reason,omitempty"`
}

// VerdictSnapshot is the full, structured result of running a candidate
// (pair, level, direction) through the filter chain: a record-of-records
// keyed by screen name, plus the first failing check's human-readable
// reason and any non-blocking warnings collected along the way
// (spec.md §9's "record-of-records" and the RSI near-miss warnings
// supplemented from original_source/core/analysis_engine.py).
type VerdictSnapshot struct {
	Pair          string              `json:"pair"`
	Direction     Direction           `json:"direction"`
	LevelPrice    float64             `json:"level_price"`
	Admitted      bool                `json:"admitted"`
	Screens       []ScreenResult      `json:"screens"`
	BlockedReason string              `json:"blocked_reason,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
	Trend         TrendClassification `json:"trend_classification"`
	EvaluatedAt   time.Time           `json:"evaluated_at"`
}

// FirstFailingScreen returns the name+reason of the first screen that
// did not pass, or ("", "") if every screen passed.
func (v *VerdictSnapshot) FirstFailingScreen() (string, string) {
	for _, s := range v.Screens {
		if !s.Passed {
			return s.Name, s.Reason
		}
	}
	return "", ""
}
