package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/tracking"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrEmptyLockKey is returned when an empty lock key is provided.
	ErrEmptyLockKey = errors.New("lock key cannot be empty")
	// ErrLockNotHeld is returned when a lock expired before it was released.
	ErrLockNotHeld = errors.New("lock was not held or already expired")
	// ErrLockBusy is returned by WithLock when the lock could not be acquired in time.
	ErrLockBusy = errors.New("lock is held by another owner")
)

// LockOptions tunes lock acquisition.
type LockOptions struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultLockOptions suit short critical sections such as a balance update.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 25 * time.Millisecond,
	}
}

// LockHandle releases an acquired lock.
type LockHandle interface {
	Unlock(ctx context.Context) error
}

// Locker serializes work on a key across goroutines or processes.
type Locker interface {
	// WithLock runs fn while holding key, waiting for it if necessary.
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
	// TryLock acquires key without waiting; ok is false when another owner holds it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (handle LockHandle, ok bool, err error)
}

// LockManager implements Locker with the Redlock algorithm over one Redis.
type LockManager struct {
	rs   *redsync.Redsync
	opts LockOptions
}

var _ Locker = (*LockManager)(nil)

// NewLockManager builds a LockManager on client.
func NewLockManager(client redis.UniversalClient, opts LockOptions) (*LockManager, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	def := DefaultLockOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}

	if opts.Tries <= 0 {
		opts.Tries = def.Tries
	}

	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}

	return &LockManager{rs: redsync.New(goredis.NewPool(client)), opts: opts}, nil
}

// WithLock runs fn while holding key.
func (m *LockManager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyLockKey
	}

	logger, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "redis.lock.with_lock")
	defer span.End()

	mutex := m.rs.NewMutex(key,
		redsync.WithExpiry(m.opts.Expiry),
		redsync.WithTries(m.opts.Tries),
		redsync.WithRetryDelay(m.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		tracking.HandleSpanError(span, "failed to acquire lock", err)

		if isContention(err) {
			return fmt.Errorf("%w: %s", ErrLockBusy, key)
		}

		return fmt.Errorf("acquire lock %s: %w", key, err)
	}

	defer func() {
		// Release on a context that survives fn's cancellation.
		if ok, err := mutex.UnlockContext(tracking.Detach(ctx)); !ok || err != nil {
			logger.Log(ctx, log.LevelWarn, "failed to release lock",
				log.String("lock_key", key), log.Bool("unlock_ok", ok), log.Err(err))
		}
	}()

	return fn(ctx)
}

// TryLock acquires key once, without retries.
func (m *LockManager) TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrEmptyLockKey
	}

	if ttl <= 0 {
		ttl = m.opts.Expiry
	}

	mutex := m.rs.NewMutex(key, redsync.WithExpiry(ttl), redsync.WithTries(1))

	if err := mutex.LockContext(ctx); err != nil {
		if isContention(err) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("try lock %s: %w", key, err)
	}

	return &redsyncHandle{mutex: mutex}, true, nil
}

func isContention(err error) bool {
	var taken *redsync.ErrTaken

	return errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) ||
		strings.Contains(err.Error(), "lock already taken")
}

type redsyncHandle struct {
	mutex *redsync.Mutex
}

func (h *redsyncHandle) Unlock(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	if ok {
		return nil
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrLockNotHeld, err)
	}

	return ErrLockNotHeld
}

// LocalLocker implements Locker inside one process. It backs single-replica
// deployments and tests that run without Redis.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

var _ Locker = (*LocalLocker)(nil)

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}

	return ch
}

// WithLock runs fn while holding key, waiting until ctx ends.
func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyLockKey
	}

	ch := l.slot(key)

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrLockBusy, key, ctx.Err())
	}

	defer func() { <-ch }()

	return fn(ctx)
}

// TryLock acquires key if it is free. ttl is ignored.
func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (LockHandle, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrEmptyLockKey
	}

	ch := l.slot(key)

	select {
	case ch <- struct{}{}:
		return &localHandle{ch: ch}, true, nil
	default:
		return nil, false, nil
	}
}

type localHandle struct {
	once sync.Once
	ch   chan struct{}
}

func (h *localHandle) Unlock(context.Context) error {
	released := false

	h.once.Do(func() {
		<-h.ch
		released = true
	})

	if !released {
		return ErrLockNotHeld
	}

	return nil
}
