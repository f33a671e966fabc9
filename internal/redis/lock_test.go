//go:build unit

package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLockManager(t *testing.T) (*LockManager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	m, err := NewLockManager(client, LockOptions{Expiry: 5 * time.Second, Tries: 200, RetryDelay: 5 * time.Millisecond})
	require.NoError(t, err)

	return m, mr
}

func lockers(t *testing.T) map[string]Locker {
	t.Helper()

	m, _ := setupLockManager(t)

	return map[string]Locker{
		"redsync": m,
		"local":   NewLocalLocker(),
	}
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), Config{Address: mr.Addr()}, log.NewNop())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()

	_, err = Connect(context.Background(), Config{Address: mr.Addr()}, nil)
	assert.Error(t, err)
}

func TestNewLockManagerRejectsNilClient(t *testing.T) {
	_, err := NewLockManager(nil, LockOptions{})
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestWithLockRunsFunctionAndPropagatesError(t *testing.T) {
	for name, locker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			executed := false
			require.NoError(t, locker.WithLock(ctx, "lock:account:1", func(context.Context) error {
				executed = true
				return nil
			}))
			assert.True(t, executed)

			boom := errors.New("boom")
			assert.ErrorIs(t, locker.WithLock(ctx, "lock:account:1", func(context.Context) error { return boom }), boom)

			assert.ErrorIs(t, locker.WithLock(ctx, " ", func(context.Context) error { return nil }), ErrEmptyLockKey)
		})
	}
}

func TestWithLockSerializesSameKey(t *testing.T) {
	for name, locker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var (
				inside  atomic.Int32
				overlap atomic.Bool
				wg      sync.WaitGroup
			)

			for range 5 {
				wg.Add(1)

				go func() {
					defer wg.Done()

					err := locker.WithLock(context.Background(), "lock:account:2", func(context.Context) error {
						if inside.Add(1) > 1 {
							overlap.Store(true)
						}

						time.Sleep(10 * time.Millisecond)
						inside.Add(-1)

						return nil
					})
					assert.NoError(t, err)
				}()
			}

			wg.Wait()
			assert.False(t, overlap.Load())
		})
	}
}

func TestTryLockContention(t *testing.T) {
	for name, locker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			handle, ok, err := locker.TryLock(ctx, "lock:emi-batch", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			_, ok, err = locker.TryLock(ctx, "lock:emi-batch", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, handle.Unlock(ctx))

			again, ok, err := locker.TryLock(ctx, "lock:emi-batch", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)
			require.NoError(t, again.Unlock(ctx))
		})
	}
}

func TestRedsyncLockExpires(t *testing.T) {
	m, mr := setupLockManager(t)
	ctx := context.Background()

	handle, ok, err := m.TryLock(ctx, "lock:short", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	assert.ErrorIs(t, handle.Unlock(ctx), ErrLockNotHeld)
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := NewLocalLocker()

	handle, ok, err := locker.TryLock(context.Background(), "k", 0)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = locker.WithLock(ctx, "k", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrLockBusy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, handle.Unlock(context.Background()))
	assert.ErrorIs(t, handle.Unlock(context.Background()), ErrLockNotHeld)
}
