package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

const (
	defaultSendTimeout = 30 * time.Second
	dequeueRetryDelay  = 2 * time.Second
)

// NotificationDispatcher drains the notification queue and hands each
// message to the Notifier. Delivery failures are logged and dropped.
type NotificationDispatcher struct {
	queue       driven.NotificationQueue
	notifier    driven.Notifier
	sendTimeout time.Duration
	retryDelay  time.Duration
}

// NewNotificationDispatcher creates a new NotificationDispatcher.
func NewNotificationDispatcher(queue driven.NotificationQueue, notifier driven.Notifier) *NotificationDispatcher {
	return &NotificationDispatcher{
		queue:       queue,
		notifier:    notifier,
		sendTimeout: defaultSendTimeout,
		retryDelay:  dequeueRetryDelay,
	}
}

// Start delivers notifications until the context is canceled or the queue is
// closed and drained.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	var sent, failed int

	for {
		n, err := d.queue.Dequeue(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil, errors.Is(err, driven.ErrQueueClosed):
			slog.Info("notification dispatcher stopped", "sent", sent, "failed", failed)
			return
		case errors.Is(err, model.ErrMalformedPayload):
			slog.Warn("dropping malformed notification", "error", err)
			failed++
			continue
		default:
			slog.Error("dequeue notification failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(d.retryDelay):
			}
			continue
		}

		if err := d.deliver(ctx, n); err != nil {
			slog.Error("notification delivery failed", "subject", n.Subject, "error", err)
			failed++
			continue
		}
		sent++
	}
}

func (d *NotificationDispatcher) deliver(ctx context.Context, n model.Notification) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	return d.notifier.Notify(sendCtx, n)
}
