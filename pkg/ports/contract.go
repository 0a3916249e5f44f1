package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDistributedLockerContract runs a suite of tests to verify that a DistributedLocker
// implementation adheres to the defined interface contract.
func RunDistributedLockerContract(t *testing.T, locker DistributedLocker) {
	ctx := context.Background()
	key := "contract-test-lock-" + time.Now().Format("20060102150405")

	t.Run("Lock and Unlock", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, key, time.Second)
		require.NoError(t, err, "Lock should not return error")
		require.NotNil(t, unlock)
		require.NoError(t, unlock(ctx), "Unlock should not return error")

		// The key is free again.
		unlock, err = locker.Lock(ctx, key, time.Second)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))
	})

	t.Run("Mutual Exclusion", func(t *testing.T) {
		var (
			mu      sync.Mutex
			holders int
			maxSeen int
			wg      sync.WaitGroup
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(ctx, key+"-mutex", 5*time.Second)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				holders++
				if holders > maxSeen {
					maxSeen = holders
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				holders--
				mu.Unlock()
				assert.NoError(t, unlock(ctx))
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxSeen, "at most one holder at a time")
	})

	t.Run("Canceled Context", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, key+"-busy", 5*time.Second)
		require.NoError(t, err)
		defer func() { _ = unlock(ctx) }()

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(waitCtx, key+"-busy", 5*time.Second)
		assert.Error(t, err, "a held key must not be acquired before the context ends")
	})
}
