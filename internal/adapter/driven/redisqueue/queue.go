// Package redisqueue is a NotificationQueue backed by a Redis list, so that
// pending notifications survive a restart and can be drained by any replica.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

// DefaultKey is the list that holds pending notifications.
const DefaultKey = "civicrecords:notifications"

var _ driven.NotificationQueue = (*Queue)(nil)

// Queue pushes with LPUSH and pops with BRPOP, giving FIFO order.
type Queue struct {
	client *redis.Client
	key    string
	poll   time.Duration
}

// New creates a Queue on key. poll bounds each BRPOP so that context
// cancellation is observed promptly.
func New(client *redis.Client, key string, poll time.Duration) *Queue {
	if key == "" {
		key = DefaultKey
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &Queue{client: client, key: key, poll: poll}
}

// Enqueue serialises n as JSON and pushes it onto the list.
func (q *Queue) Enqueue(ctx context.Context, n model.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.key, err)
	}
	return nil
}

// Dequeue blocks until a notification is available or ctx is done. A payload
// that is not a valid notification is consumed and reported as
// model.ErrMalformedPayload.
func (q *Queue) Dequeue(ctx context.Context) (model.Notification, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.Notification{}, err
		}

		res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return model.Notification{}, ctxErr
			}
			if errors.Is(err, redis.ErrClosed) {
				return model.Notification{}, driven.ErrQueueClosed
			}
			return model.Notification{}, fmt.Errorf("brpop %s: %w", q.key, err)
		}

		// BRPOP replies with [key, value].
		var n model.Notification
		if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
			return model.Notification{}, model.Wrap(model.ErrMalformedPayload, "decode notification", err)
		}
		return n, nil
	}
}

// Len reports the number of pending notifications.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
