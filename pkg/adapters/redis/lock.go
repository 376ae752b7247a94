package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/conductor/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

var (
	// ErrLockAcquire is returned when the lock cannot be acquired.
	ErrLockAcquire = errors.New("failed to acquire distributed lock")
)

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker implements ports.DistributedLocker using Redis.
type Locker struct {
	client *backend.Client
	prefix string
}

// NewLocker creates a new Redis locker.
func NewLocker(client *backend.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Locker{
		client: client,
		prefix: prefix,
	}
}

func (l *Locker) tryLock(ctx context.Context, key, token string, ttl time.Duration) (ports.UnlockFunc, error) {
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockAcquire, err)
	}
	if !ok {
		return nil, nil
	}
	return func(ctx context.Context) error {
		// Only the holder of the token may release the key.
		return l.client.Eval(ctx, unlockScript, []string{key}, token).Err()
	}, nil
}

// Lock acquires a distributed lock for the given key using Redis SET NX PX,
// polling every 100ms until it succeeds or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	unlock, err := l.tryLock(ctx, lockKey, token, ttl)
	if err != nil || unlock != nil {
		return unlock, err
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			unlock, err := l.tryLock(ctx, lockKey, token, ttl)
			if err != nil || unlock != nil {
				return unlock, err
			}
		}
	}
}
