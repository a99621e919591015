package app

import (
	"context"
	"fmt"

	"coinwatch/internal/domain"
	"coinwatch/internal/ports"
)

// Tracker drives the confirmation state machine over the filled-order
// ledger. Every record starts Pending (confirmed=0); a successful dispatch
// through the sink transitions it to Confirmed (confirmed=1), which is
// terminal. Failed dispatches stay Pending and are retried on the next
// tick with no backoff, so delivery is at-least-once.
type Tracker struct {
	history ports.HistoryRepository
	sink    ports.NotificationSink
	logger  ports.Logger
	retain  int
}

// NewTracker creates a confirmation tracker. retain bounds the number of
// confirmed rows kept per exchange.
func NewTracker(history ports.HistoryRepository, sink ports.NotificationSink, logger ports.Logger, retain int) (*Tracker, error) {
	if history == nil || sink == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Tracker")
	}
	if retain <= 0 {
		retain = 100
	}
	return &Tracker{history: history, sink: sink, logger: logger, retain: retain}, nil
}

// FormatNotification renders the one-line message for a filled order.
func FormatNotification(rec domain.HistoryRecord) string {
	return fmt.Sprintf("%s: %s %s %s for %s",
		rec.Exchange, rec.Symbol, rec.Side, rec.Quantity.String(), rec.Price.String())
}

// Process dispatches all pending records, confirms the acknowledged ones
// and prunes confirmed rows beyond the retention limit for the given
// exchanges. Pruning never touches pending rows.
func (t *Tracker) Process(ctx context.Context, exchanges []string) error {
	pending, err := t.history.PendingHistory(ctx)
	if err != nil {
		return fmt.Errorf("select pending history: %w", err)
	}

	for _, rec := range pending {
		if err := t.sink.Send(ctx, FormatNotification(rec)); err != nil {
			// Record stays pending and is retried next tick.
			t.logger.Warn(ctx, "Notification dispatch failed, will retry", map[string]interface{}{
				"id": rec.ID, "exchange": rec.Exchange, "error": err.Error(),
			})
			continue
		}
		if err := t.history.ConfirmHistory(ctx, rec.ID, rec.Exchange); err != nil {
			// The message went out but the flag did not stick; the
			// record is resent next tick (at-least-once).
			t.logger.Error(ctx, err, "Failed to confirm notified record", map[string]interface{}{
				"id": rec.ID, "exchange": rec.Exchange,
			})
			continue
		}
		t.logger.Info(ctx, "Filled order notified and confirmed", map[string]interface{}{
			"id": rec.ID, "exchange": rec.Exchange, "symbol": rec.Symbol,
		})
	}

	for _, exchange := range exchanges {
		if err := t.history.PruneConfirmed(ctx, exchange, t.retain); err != nil {
			t.logger.Error(ctx, err, "Failed to prune confirmed history", map[string]interface{}{
				"exchange": exchange,
			})
		}
	}
	return nil
}
