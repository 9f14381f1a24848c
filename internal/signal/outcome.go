package signal

import (
	"context"
	"fmt"
	"time"

	"levelcore/internal/model"
)

// Favorable-excursion thresholds whose first-crossing time is recorded
// on the signal (spec.md §4.4 Outcome tracking).
const (
	threshold05Pct = 0.005
	threshold10Pct = 0.010
	threshold15Pct = 0.015
)

// Final-result settlement thresholds (spec.md §4.4 "result_fixed").
const (
	favorableFixedPct = 0.015
	adverseFixedPct   = -0.005
)

// shortTradeDuration is the cutoff below which a losing trade's MFE is
// pinned to 0 rather than trusted from 1-minute closes.
const shortTradeDuration = 60 * time.Second

// Tracker advances MFE/MAE, threshold timestamps, and the fixed result
// for ACTIVE signals as new minute candles arrive.
type Tracker struct {
	signals model.SignalRepository
	logs    model.LiveLogRepository
}

// NewTracker builds a Tracker over the given repositories.
func NewTracker(signals model.SignalRepository, logs model.LiveLogRepository) *Tracker {
	return &Tracker{signals: signals, logs: logs}
}

// Update folds candles (ascending by time, spanning at least
// [sig.Timestamp, now]) into sig's running MFE/MAE, first-touch
// threshold timestamps, and fixed result, then persists it.
func (tr *Tracker) Update(ctx context.Context, sig *model.Signal, candles []model.Candle, now time.Time) error {
	for _, c := range candles {
		if c.TS.Before(sig.Timestamp) {
			continue
		}
		move := sig.FavorableMovePct(c.Close)
		if move > sig.MaxFavorableMovePct {
			sig.MaxFavorableMovePct = move
		}
		if move < sig.MaxAdverseMovePct {
			sig.MaxAdverseMovePct = move
		}
		tr.recordThreshold(ctx, sig, move, c.TS)
		tr.recordFixedResult(ctx, sig, c.TS)
	}

	return tr.signals.Update(ctx, *sig)
}

func (tr *Tracker) recordThreshold(ctx context.Context, sig *model.Signal, move float64, ts time.Time) {
	if sig.FirstTouch05PctTS == nil && move >= threshold05Pct {
		t := ts
		sig.FirstTouch05PctTS = &t
		logOutcomeAudit(ctx, tr.logs, sig.ID, model.LiveLogThresholdHit, fmt.Sprintf("%s crossed +0.5%% favorable", sig.Symbol), ts)
	}
	if sig.FirstTouch10PctTS == nil && move >= threshold10Pct {
		t := ts
		sig.FirstTouch10PctTS = &t
		logOutcomeAudit(ctx, tr.logs, sig.ID, model.LiveLogThresholdHit, fmt.Sprintf("%s crossed +1.0%% favorable", sig.Symbol), ts)
	}
	if sig.FirstTouch15PctTS == nil && move >= threshold15Pct {
		t := ts
		sig.FirstTouch15PctTS = &t
		logOutcomeAudit(ctx, tr.logs, sig.ID, model.LiveLogThresholdHit, fmt.Sprintf("%s crossed +1.5%% favorable", sig.Symbol), ts)
	}
}

// recordFixedResult applies the independent settlement rule: whichever
// of +1.5% favorable or -0.5% adverse is crossed first (by the time
// this bar is processed) fixes the result; it is never revisited once set.
func (tr *Tracker) recordFixedResult(ctx context.Context, sig *model.Signal, ts time.Time) {
	if sig.ResultFixed != nil {
		return
	}
	switch {
	case sig.MaxFavorableMovePct >= favorableFixedPct:
		fixed := favorableFixedPct
		sig.ResultFixed = &fixed
		t := ts
		sig.ResultFixedAt = &t
	case sig.MaxAdverseMovePct <= adverseFixedPct:
		fixed := adverseFixedPct
		sig.ResultFixed = &fixed
		t := ts
		sig.ResultFixedAt = &t
	default:
		return
	}
	logOutcomeAudit(ctx, tr.logs, sig.ID, model.LiveLogThresholdHit, fmt.Sprintf("%s result fixed at %.3f%%", sig.Symbol, *sig.ResultFixed*100), ts)
}

// Close finalizes a signal: records the exit price/time/reason, folds
// the exit close into MAE, and pins MFE to 0 for a sub-60s losing
// trade (spec.md §4.4: "the system cannot reliably claim a favourable
// excursion from 1-minute closes inside a sub-minute trade").
func (tr *Tracker) Close(ctx context.Context, sig *model.Signal, exitPrice float64, reason model.ExitReason, now time.Time) error {
	move := sig.FavorableMovePct(exitPrice)
	if move < sig.MaxAdverseMovePct {
		sig.MaxAdverseMovePct = move
	}

	sig.ExitPrice = &exitPrice
	sig.ExitTimestamp = &now
	sig.ExitReason = &reason
	sig.Status = model.SignalClosed

	if now.Sub(sig.Timestamp) < shortTradeDuration && move < 0 {
		sig.MaxFavorableMovePct = 0
	}

	logOutcomeAudit(ctx, tr.logs, sig.ID, model.LiveLogClosed, fmt.Sprintf("%s closed, exit %.8f, reason %s", sig.Symbol, exitPrice, reason), now)
	return tr.signals.Update(ctx, *sig)
}
