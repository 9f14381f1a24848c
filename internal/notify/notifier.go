// Package notify provides outbound signal notification delivery. Per
// spec.md §6.1, this is a purely informational side-channel: it never
// participates in the decision path, and failures here never roll back
// or retry a signal's persistence.
package notify

import (
	"context"
	"log/slog"

	"levelcore/internal/model"
)

// LogNotifier is a notifier that logs signal events (useful for
// development and as the default when NOTIFY_WEBHOOK_URL is unset).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifySignal(ctx context.Context, s model.Signal, event string) error {
	slog.Info("signal notification",
		"event", event,
		"signal_id", s.ID,
		"pair_id", s.PairID,
		"direction", s.Direction,
		"level_price", s.LevelPrice,
	)
	return nil
}

// MultiNotifier fans a single notification out to several backends,
// logging (but not returning) individual backend errors so one
// misconfigured channel never blocks the others.
type MultiNotifier struct {
	backends []model.Notifier
}

// NewMultiNotifier combines backends into one Notifier.
func NewMultiNotifier(backends ...model.Notifier) *MultiNotifier {
	return &MultiNotifier{backends: backends}
}

func (m *MultiNotifier) NotifySignal(ctx context.Context, s model.Signal, event string) error {
	for _, b := range m.backends {
		if err := b.NotifySignal(ctx, s, event); err != nil {
			slog.Warn("notifier backend failed", "error", err)
		}
	}
	return nil
}
