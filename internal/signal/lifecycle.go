// Package signal implements the signal lifecycle (C4): admission of a
// level into a persisted trade signal, deduplication, emission, and
// outcome tracking through to a fixed result.
package signal

import (
	"context"
	"fmt"
	"time"

	"levelcore/internal/model"
)

// Params bundles the signal lifecycle's tunables (spec.md §4.4/§6).
type Params struct {
	ReadyDistancePct  float64
	TouchDistancePct  float64
	StopLossPct       float64
	DuplicatePriceTol float64

	// DuplicateWindow is signal_duplicate_window (spec.md §3): a CLOSED
	// signal older than this no longer blocks new creation on the same
	// level. An ACTIVE signal always blocks regardless of age.
	DuplicateWindow time.Duration
}

// Lifecycle turns admitted touches/approaches into persisted signals.
type Lifecycle struct {
	signals model.SignalRepository
	logs    model.LiveLogRepository
	params  Params
}

// NewLifecycle builds a Lifecycle over the given repositories.
func NewLifecycle(signals model.SignalRepository, logs model.LiveLogRepository, params Params) *Lifecycle {
	return &Lifecycle{signals: signals, logs: logs, params: params}
}

// Candidate is one (level, verdict, price) reading the lifecycle may
// turn into a signal this scan.
type Candidate struct {
	PairID    int64
	Symbol    string
	Level     *model.Level
	Verdict   *model.VerdictSnapshot
	CurrentPx float64
	LiveTouch bool
}

// Admitted reports whether the candidate is signal-eligible this scan
// (spec.md §4.4 Admission): Elder screens pass, plus either ready
// proximity (<= ready_distance_pct) or a live touch within the
// tighter touch tolerance.
func Admitted(c Candidate, params Params) bool {
	if c.Verdict == nil || !c.Verdict.Admitted {
		return false
	}
	dist := c.Level.DistancePct(c.CurrentPx)
	if dist <= params.ReadyDistancePct {
		return true
	}
	return c.LiveTouch && dist <= params.TouchDistancePct
}

// Emit attempts to turn an admitted candidate into a persisted signal.
// The bool return is false when the candidate was not admitted, or
// admitted but suppressed as a duplicate of an existing signal on the
// same pair (spec.md §4.4 Deduplication) — in the duplicate case the
// level's SignalGenerated flag is still set so it isn't re-attempted
// and re-logged every tick, per spec.md's "marked signal_generated but
// not evicted".
func (lc *Lifecycle) Emit(ctx context.Context, c Candidate, now time.Time) (*model.Signal, bool, error) {
	if !Admitted(c, lc.params) {
		return nil, false, nil
	}

	existing, err := lc.signals.ForPair(ctx, c.PairID)
	if err != nil {
		return nil, false, fmt.Errorf("signal lifecycle: checking duplicates: %w", err)
	}
	if lc.isDuplicate(existing, c.Level.Price, now) {
		c.Level.Meta.SignalGenerated = true
		lc.logAudit(ctx, 0, model.LiveLogDuplicate, fmt.Sprintf("%s at %.8f within %.3f%% dedup tolerance", c.Symbol, c.Level.Price, lc.params.DuplicatePriceTol*100), now)
		return nil, false, nil
	}

	direction := c.Level.Type.Direction()
	entry := c.Level.Price
	stop := stopLoss(direction, entry, lc.params.StopLossPct)

	sig := model.Signal{
		PairID:       c.PairID,
		Symbol:       c.Symbol,
		Direction:    direction,
		LevelPrice:   c.Level.Price,
		EntryPrice:   entry,
		StopLoss:     stop,
		Timestamp:    now,
		Trend:        c.Verdict.Trend,
		LevelType:    c.Level.Type,
		Timeframe:    c.Level.Timeframe,
		TestCount:    c.Level.LiveTestCount,
		Status:       model.SignalActive,
		ElderScreens: c.Verdict,
	}
	if !sig.ValidStop() {
		return nil, false, fmt.Errorf("signal lifecycle: computed stop %.8f invalid for %s entry %.8f", sig.StopLoss, direction, entry)
	}

	stored, err := lc.signals.Insert(ctx, sig)
	if err != nil {
		return nil, false, fmt.Errorf("signal lifecycle: inserting signal: %w", err)
	}
	c.Level.Meta.SignalGenerated = true
	lc.logAudit(ctx, stored.ID, model.LiveLogGenerated, fmt.Sprintf("%s %s at %.8f, stop %.8f", c.Symbol, direction, entry, stop), now)
	return &stored, true, nil
}

// isDuplicate reports whether price collides with an existing signal at
// the same level price (spec.md §3 Deduplication). An ACTIVE signal
// always blocks. A CLOSED signal only blocks while it's within
// DuplicateWindow of its close (or emission, if never closed); once
// older, it no longer counts as a duplicate.
func (lc *Lifecycle) isDuplicate(existing []model.Signal, price float64, now time.Time) bool {
	for _, s := range existing {
		if !withinPriceTolerance(s.LevelPrice, price, lc.params.DuplicatePriceTol) {
			continue
		}
		if s.Status != model.SignalClosed {
			return true
		}
		closedAt := s.Timestamp
		if s.ExitTimestamp != nil {
			closedAt = *s.ExitTimestamp
		}
		if now.Sub(closedAt) <= lc.params.DuplicateWindow {
			return true
		}
	}
	return false
}

func withinPriceTolerance(a, b, tol float64) bool {
	if a == 0 {
		return b == 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff/a < tol
}

func stopLoss(direction model.Direction, entry, stopLossPct float64) float64 {
	if direction == model.DirectionLong {
		return entry * (1 - stopLossPct)
	}
	return entry * (1 + stopLossPct)
}
