//go:build unit

package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) Log(_ context.Context, _ log.Level, msg string, _ ...log.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, msg)
}

func (l *recordingLogger) With(...log.Field) log.Logger { return l }
func (l *recordingLogger) WithGroup(string) log.Logger  { return l }
func (l *recordingLogger) Enabled(log.Level) bool       { return true }
func (l *recordingLogger) Sync(context.Context) error   { return nil }

func (l *recordingLogger) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.messages...)
}

func freeAddress(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	return addr
}

func TestNoServersConfigured(t *testing.T) {
	t.Parallel()

	err := NewServerManager(nil).StartWithGracefulShutdown()
	assert.ErrorIs(t, err, ErrNoServersConfigured)
}

func TestShutdownStopsWorkersThenRunsHooks(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}
	stop := make(chan struct{})

	var (
		order   []string
		orderMu sync.Mutex
	)

	record := func(s string) {
		orderMu.Lock()
		defer orderMu.Unlock()

		order = append(order, s)
	}

	addr := freeAddress(t)

	sm := NewServerManager(logger).
		WithHTTPServer(fiber.New(fiber.Config{DisableStartupMessage: true}), addr).
		WithWorker("ticker", func(ctx context.Context) {
			<-ctx.Done()
			record("worker stopped")
		}).
		WithShutdownHook("drain", func(context.Context) error {
			record("hook ran")
			return nil
		}).
		WithShutdownChannel(stop).
		WithShutdownTimeout(5 * time.Second)

	errCh := make(chan error, 1)
	go func() { errCh <- sm.StartWithGracefulShutdown() }()

	<-sm.ServersStarted()
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}

		_ = conn.Close()

		return true
	}, 5*time.Second, 20*time.Millisecond)
	close(stop)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	assert.Equal(t, []string{"worker stopped", "hook ran"}, order)
	assert.Contains(t, logger.all(), "graceful shutdown completed")
}

func TestHookErrorsAreReturned(t *testing.T) {
	t.Parallel()

	stop := make(chan struct{})
	var ran atomic.Bool

	sm := NewServerManager(nil).
		WithWorker("idle", func(ctx context.Context) { <-ctx.Done() }).
		WithShutdownHook("broken", func(context.Context) error { return errors.New("close failed") }).
		WithShutdownHook("after", func(context.Context) error {
			ran.Store(true)
			return nil
		}).
		WithShutdownChannel(stop)

	close(stop)

	err := sm.StartWithGracefulShutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close failed")
	assert.True(t, ran.Load())
}

func TestListenFailureTriggersShutdown(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	sm := NewServerManager(nil).
		WithHTTPServer(fiber.New(fiber.Config{DisableStartupMessage: true}), ln.Addr().String()).
		WithShutdownChannel(make(chan struct{}))

	err = sm.StartWithGracefulShutdown()
	assert.ErrorContains(t, err, "http server")
}
