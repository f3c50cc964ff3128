package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// ErrQueueClosed is returned by NotificationQueue.Dequeue once the queue has
// been closed and drained.
var ErrQueueClosed = errors.New("notification queue closed")

// Notifier delivers a notification to its recipient. Failures are reported
// to the caller, which treats them as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// NotificationQueue decouples producers of notifications from delivery.
// Enqueue must not block on delivery.
type NotificationQueue interface {
	Enqueue(ctx context.Context, n model.Notification) error

	// Dequeue blocks until a notification is available, the context is
	// canceled, or the queue is closed (ErrQueueClosed).
	Dequeue(ctx context.Context) (model.Notification, error)
}
