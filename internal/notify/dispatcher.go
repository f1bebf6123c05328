// Package notify delivers transaction events to account holders. Delivery is
// fire and forget: a lost notification never fails or retries a transaction.
package notify

import (
	"context"
	"log/slog"

	"github.com/meridian-bank/meridian-core/internal/engine"
	"github.com/meridian-bank/meridian-core/jobs"
)

// QueueDispatcher hands events to the background queue where the worker
// renders and sends the actual alerts.
type QueueDispatcher struct {
	client *jobs.Client
	logger *slog.Logger
}

// NewQueueDispatcher builds a QueueDispatcher.
func NewQueueDispatcher(client *jobs.Client, logger *slog.Logger) *QueueDispatcher {
	return &QueueDispatcher{client: client, logger: logger}
}

// Dispatch enqueues one transaction notification.
func (d *QueueDispatcher) Dispatch(ctx context.Context, event engine.TransactionEvent) error {
	info, err := d.client.EnqueueNotifyTransaction(ctx, event)
	if err != nil {
		return err
	}
	d.logger.Debug("transaction notification enqueued",
		slog.String("task_id", info.ID),
		slog.String("reference", event.Reference))
	return nil
}

var _ engine.Dispatcher = (*QueueDispatcher)(nil)
