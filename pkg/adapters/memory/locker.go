package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/conductor/pkg/ports"
)

// Locker implements ports.DistributedLocker within a single process.
type Locker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	token uint64
	owner map[string]uint64
}

// NewLocker creates an in-process locker.
func NewLocker() *Locker {
	return &Locker{
		held:  make(map[string]time.Time),
		owner: make(map[string]uint64),
	}
}

func (l *Locker) tryLock(key string, ttl time.Duration) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if expires, ok := l.held[key]; ok && (ttl <= 0 || time.Now().Before(expires)) {
		return 0, false
	}
	l.token++
	l.held[key] = time.Now().Add(ttl)
	l.owner[key] = l.token
	return l.token, true
}

// Lock acquires key, polling until it is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if token, ok := l.tryLock(key, ttl); ok {
			return func(context.Context) error {
				l.mu.Lock()
				defer l.mu.Unlock()
				if l.owner[key] == token {
					delete(l.held, key)
					delete(l.owner, key)
				}
				return nil
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
