package ports

import (
	"context"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
)

// Broker moves messages between named queues.
type Broker interface {
	// Publish appends msg to queue.
	Publish(ctx context.Context, queue string, msg domain.Message) error

	// Receive blocks until a message is available on queue, the context is canceled,
	// or timeout elapses. A zero timeout waits until the context is done.
	// Returns domain.ErrNoMessage when the timeout elapses.
	Receive(ctx context.Context, queue string, timeout time.Duration) (*domain.Message, error)

	// Close releases the broker's connections.
	Close() error
}
