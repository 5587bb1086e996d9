package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// NotificationWorker drains the outbox and hands each entry to the notifier.
type NotificationWorker struct {
	outbox         events.Outbox
	notifier       service.Notifier
	metrics        *observability.Metrics
	logger         *zap.Logger
	deliverTimeout time.Duration
	errorPause     time.Duration
}

// NewNotificationWorker builds a worker.
func NewNotificationWorker(outbox events.Outbox, notifier service.Notifier, metrics *observability.Metrics, logger *zap.Logger, deliverTimeout time.Duration) *NotificationWorker {
	if deliverTimeout <= 0 {
		deliverTimeout = 10 * time.Second
	}
	return &NotificationWorker{
		outbox:         outbox,
		notifier:       notifier,
		metrics:        metrics,
		logger:         logger,
		deliverTimeout: deliverTimeout,
		errorPause:     time.Second,
	}
}

// Run blocks until ctx is cancelled. Delivery failures are logged and dropped.
func (w *NotificationWorker) Run(ctx context.Context) error {
	w.logger.Info("notification worker started")
	for {
		n, err := w.outbox.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("notification worker stopped")
				return nil
			}
			w.logger.Warn("outbox read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.errorPause):
			}
			continue
		}
		w.deliver(ctx, n)
	}
}

func (w *NotificationWorker) deliver(ctx context.Context, n events.Notification) {
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.deliverTimeout)
	defer cancel()

	err := w.notifier.Notify(deliverCtx, n.Recipient, n.Ticket)
	w.metrics.RecordNotification("deliver", err)
	if err != nil {
		level := w.logger.Warn
		if errors.Is(err, context.DeadlineExceeded) {
			level = w.logger.Error
		}
		level("notification delivery failed",
			zap.String("notification_id", n.ID),
			zap.String("recipient", n.Recipient),
			zap.String("ticket_id", n.Ticket.ID),
			zap.Error(err))
	}
}
