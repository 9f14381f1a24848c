package signal

import (
	"context"
	"log/slog"
	"time"

	"levelcore/internal/model"
)

// logAudit appends an immutable audit row for a signal state
// transition, adapted from the teacher's order-fill journal idiom
// (internal/execution/journal.go: "every fill gets a timestamped row").
// A logging failure never blocks the lifecycle operation it describes;
// it is only ever observed and logged.
func (lc *Lifecycle) logAudit(ctx context.Context, signalID int64, event model.LiveLogEvent, message string, now time.Time) {
	if lc.logs == nil {
		return
	}
	entry := model.LiveLog{
		SignalID:  signalID,
		EventType: event,
		Status:    "ok",
		Message:   message,
		CreatedAt: now,
	}
	if err := lc.logs.Append(ctx, entry); err != nil {
		slog.Warn("signal audit log append failed", "event", event, "signal_id", signalID, "err", err)
	}
}

// logOutcomeAudit appends an audit row for outcome-tracking events
// (threshold crossings, closes) from the Tracker.
func logOutcomeAudit(ctx context.Context, logs model.LiveLogRepository, signalID int64, event model.LiveLogEvent, message string, now time.Time) {
	if logs == nil {
		return
	}
	entry := model.LiveLog{
		SignalID:  signalID,
		EventType: event,
		Status:    "ok",
		Message:   message,
		CreatedAt: now,
	}
	if err := logs.Append(ctx, entry); err != nil {
		slog.Warn("signal audit log append failed", "event", event, "signal_id", signalID, "err", err)
	}
}
