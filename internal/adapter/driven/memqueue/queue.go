// Package memqueue is an in-process NotificationQueue backed by a buffered
// channel. Pending notifications are lost when the process exits.
package memqueue

import (
	"context"
	"errors"
	"sync"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

// ErrQueueFull is returned by Enqueue when the buffer has no free slot.
var ErrQueueFull = errors.New("notification queue full")

var _ driven.NotificationQueue = (*Queue)(nil)

// Queue is safe for concurrent use.
type Queue struct {
	ch        chan model.Notification
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a queue holding up to size pending notifications.
func New(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		ch:     make(chan model.Notification, size),
		closed: make(chan struct{}),
	}
}

// Enqueue adds n without blocking.
func (q *Queue) Enqueue(_ context.Context, n model.Notification) error {
	select {
	case <-q.closed:
		return driven.ErrQueueClosed
	default:
	}

	select {
	case q.ch <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks for the next notification. After Close it keeps returning
// buffered notifications until the buffer is empty.
func (q *Queue) Dequeue(ctx context.Context) (model.Notification, error) {
	select {
	case n := <-q.ch:
		return n, nil
	case <-ctx.Done():
		return model.Notification{}, ctx.Err()
	case <-q.closed:
		select {
		case n := <-q.ch:
			return n, nil
		default:
			return model.Notification{}, driven.ErrQueueClosed
		}
	}
}

// Len reports the number of pending notifications.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting notifications. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
