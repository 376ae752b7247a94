package ports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBrokerContract runs a suite of tests to verify that a Broker implementation
// adheres to the defined interface contract.
func RunBrokerContract(t *testing.T, broker Broker) {
	ctx := context.Background()
	queue := "contract-" + time.Now().Format("20060102150405.000000000")

	t.Run("Publish and Receive", func(t *testing.T) {
		msg := domain.Message{ID: "m-1", Body: map[string]any{"id": "t1", "count": 2.0}}
		require.NoError(t, broker.Publish(ctx, queue, msg))

		got, err := broker.Receive(ctx, queue, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "m-1", got.ID)
		assert.Equal(t, "t1", got.Body["id"])
		assert.NotNil(t, got.Body["count"])
	})

	t.Run("FIFO Order", func(t *testing.T) {
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, broker.Publish(ctx, queue, domain.Message{ID: id, Body: map[string]any{}}))
		}
		for _, id := range []string{"a", "b", "c"} {
			got, err := broker.Receive(ctx, queue, time.Second)
			require.NoError(t, err)
			assert.Equal(t, id, got.ID)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		_, err := broker.Receive(ctx, queue+"-empty", time.Second)
		assert.ErrorIs(t, err, domain.ErrNoMessage)
	})

	t.Run("Context Cancel", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()
		_, err := broker.Receive(cctx, queue+"-cancel", 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrNoMessage))
	})

	t.Run("Blocking Receive", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)
		var got *domain.Message
		var recvErr error
		go func() {
			defer wg.Done()
			got, recvErr = broker.Receive(ctx, queue+"-block", 5*time.Second)
		}()
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, broker.Publish(ctx, queue+"-block", domain.Message{ID: "late", Body: map[string]any{}}))
		wg.Wait()
		require.NoError(t, recvErr)
		assert.Equal(t, "late", got.ID)
	})
}

// RunLockerContract verifies that a DistributedLocker excludes concurrent holders.
func RunLockerContract(t *testing.T, locker DistributedLocker) {
	ctx := context.Background()
	key := "contract-" + time.Now().Format("150405.000000000")

	t.Run("Exclusive", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err)

		tctx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(tctx, key, 5*time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		require.NoError(t, unlock(ctx))

		unlock, err = locker.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))
	})
}
