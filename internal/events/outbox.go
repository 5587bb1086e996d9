package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ErrOutboxFull is returned when a bounded outbox rejects a notification.
var ErrOutboxFull = errors.New("notification outbox full")

// TicketSummary is the part of a ticket a notification carries.
type TicketSummary struct {
	ID          string                `json:"id"`
	Subject     string                `json:"subject"`
	SenderEmail string                `json:"sender_email"`
	Priority    domain.TicketPriority `json:"priority"`
	Urgency     domain.Urgency        `json:"urgency"`
	Status      domain.TicketStatus   `json:"status"`
}

// Notification is one pending staff notification.
type Notification struct {
	ID        string        `json:"id"`
	Kind      EventType     `json:"kind"`
	Recipient string        `json:"recipient"`
	Ticket    TicketSummary `json:"ticket"`
	CreatedAt time.Time     `json:"created_at"`
}

// Outbox buffers notifications between the request path and the worker.
type Outbox interface {
	// Enqueue must not block for long; callers are on the assignment path.
	Enqueue(ctx context.Context, n Notification) error
	// Dequeue blocks until a notification is available or ctx is done.
	Dequeue(ctx context.Context) (Notification, error)
}

type channelOutbox struct {
	queue chan Notification
}

// NewChannelOutbox returns an in-process outbox that drops on overflow.
func NewChannelOutbox(size int) Outbox {
	if size <= 0 {
		size = 1
	}
	return &channelOutbox{queue: make(chan Notification, size)}
}

func (o *channelOutbox) Enqueue(_ context.Context, n Notification) error {
	select {
	case o.queue <- n:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (o *channelOutbox) Dequeue(ctx context.Context) (Notification, error) {
	select {
	case n := <-o.queue:
		return n, nil
	case <-ctx.Done():
		return Notification{}, ctx.Err()
	}
}

func (o *channelOutbox) tryDequeue() (Notification, bool) {
	if o == nil {
		return Notification{}, false
	}
	select {
	case n := <-o.queue:
		return n, true
	default:
		return Notification{}, false
	}
}

// redisPollTimeout bounds each BRPOP so Dequeue notices cancellation.
const redisPollTimeout = time.Second

// redisPushTimeout bounds each LPUSH independently of the caller's deadline.
const redisPushTimeout = 500 * time.Millisecond

type redisOutbox struct {
	client *redis.Client
	key    string
	// spill holds notifications Redis refused; nil when spillSize is zero.
	spill *channelOutbox
}

// NewRedisOutbox returns an outbox backed by a Redis list (LPUSH / BRPOP).
// When spillSize is positive, notifications that cannot be pushed go to an
// in-process queue of that size and are delivered before the Redis list.
func NewRedisOutbox(client *redis.Client, key string, spillSize int) Outbox {
	o := &redisOutbox{client: client, key: key}
	if spillSize > 0 {
		o.spill = &channelOutbox{queue: make(chan Notification, spillSize)}
	}
	return o
}

func (o *redisOutbox) Enqueue(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	pushCtx, cancel := context.WithTimeout(ctx, redisPushTimeout)
	defer cancel()
	pushErr := o.client.LPush(pushCtx, o.key, payload).Err()
	if pushErr == nil {
		return nil
	}
	if o.spill != nil {
		if err := o.spill.Enqueue(ctx, n); err == nil {
			return nil
		}
	}
	return fmt.Errorf("push notification: %w", pushErr)
}

func (o *redisOutbox) Dequeue(ctx context.Context) (Notification, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Notification{}, err
		}
		if n, ok := o.spill.tryDequeue(); ok {
			return n, nil
		}
		res, err := o.client.BRPop(ctx, redisPollTimeout, o.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Notification{}, ctxErr
			}
			return Notification{}, fmt.Errorf("pop notification: %w", err)
		}
		// BRPOP replies with [key, value]
		if len(res) != 2 {
			continue
		}
		var n Notification
		if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
			return Notification{}, fmt.Errorf("decode notification: %w", err)
		}
		return n, nil
	}
}
