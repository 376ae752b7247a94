package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
)

// Broker implements ports.Broker in memory.
// Safe for concurrent use.
type Broker struct {
	mu      sync.Mutex
	queues  map[string][]domain.Message
	waiters map[string]chan struct{}
	closed  bool
}

// NewBroker creates a new in-memory broker.
func NewBroker() *Broker {
	return &Broker{
		queues:  make(map[string][]domain.Message),
		waiters: make(map[string]chan struct{}),
	}
}

// Publish appends a copy of msg to queue and wakes up its receivers.
func (b *Broker) Publish(ctx context.Context, queue string, msg domain.Message) error {
	body, _ := domain.Clone(msg.Body).(map[string]any)
	msg.Body = body

	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[queue] = append(b.queues[queue], msg)
	if ch, ok := b.waiters[queue]; ok {
		close(ch)
		delete(b.waiters, queue)
	}
	return nil
}

// Receive pops the oldest message of queue, waiting for one if needed.
func (b *Broker) Receive(ctx context.Context, queue string, timeout time.Duration) (*domain.Message, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		b.mu.Lock()
		if msgs := b.queues[queue]; len(msgs) > 0 {
			msg := msgs[0]
			b.queues[queue] = msgs[1:]
			b.mu.Unlock()
			return &msg, nil
		}
		ch, ok := b.waiters[queue]
		if !ok {
			ch = make(chan struct{})
			b.waiters[queue] = ch
		}
		b.mu.Unlock()

		select {
		case <-ch:
		case <-expired:
			return nil, domain.ErrNoMessage
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of messages waiting on queue.
func (b *Broker) Len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

// Close is a no-op kept for interface compliance.
func (b *Broker) Close() error {
	return nil
}
