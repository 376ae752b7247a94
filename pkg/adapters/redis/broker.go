package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "conductor:"

// blockSlice bounds a single BRPOP call so cancellation is noticed promptly.
// Redis counts blocking timeouts in whole seconds.
const blockSlice = time.Second

// Broker implements ports.Broker on top of Redis lists.
// Publish pushes to the head of the list and Receive pops from the tail.
type Broker struct {
	client *backend.Client
	prefix string
	owned  bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithPrefix sets the key prefix for queues.
func WithPrefix(prefix string) Option {
	return func(b *Broker) {
		b.prefix = prefix
	}
}

// New creates a new Redis broker with options.
func New(address, password string, db int, opts ...Option) *Broker {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	broker := NewFromClient(rdb, opts...)
	broker.owned = true
	return broker
}

// NewFromClient creates a new Redis broker from an existing client.
// The client is not closed by Close.
func NewFromClient(client *backend.Client, opts ...Option) *Broker {
	broker := &Broker{
		client: client,
		prefix: DefaultPrefix,
	}

	for _, opt := range opts {
		opt(broker)
	}

	return broker
}

// Client exposes the underlying client so it can be shared with a Locker.
func (b *Broker) Client() *backend.Client {
	return b.client
}

func (b *Broker) key(queue string) string {
	return b.prefix + "queue:" + queue
}

// Publish encodes msg as JSON and pushes it to queue.
func (b *Broker) Publish(ctx context.Context, queue string, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message %s: %w", msg.ID, err)
	}
	if err := b.client.LPush(ctx, b.key(queue), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

// Receive blocks until a message is available on queue, the timeout elapses
// (domain.ErrNoMessage) or ctx is done. A zero timeout waits indefinitely.
func (b *Broker) Receive(ctx context.Context, queue string, timeout time.Duration) (*domain.Message, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		wait := blockSlice
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, domain.ErrNoMessage
			}
			if remaining < wait {
				wait = remaining
			}
		}

		res, err := b.client.BRPop(ctx, wait, b.key(queue)).Result()
		if errors.Is(err, backend.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to receive from %s: %w", queue, err)
		}

		// BRPOP replies with [key, value].
		var msg domain.Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message from %s: %w", queue, err)
		}
		return &msg, nil
	}
}

// Close releases the client when the broker created it.
func (b *Broker) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}
