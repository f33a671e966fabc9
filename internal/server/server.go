// Package server runs the corebank fiber app together with its background
// workers and tears everything down in order on SIGINT or SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/runtime"
	"github.com/gofiber/fiber/v2"
)

// ErrNoServersConfigured indicates that neither an HTTP server nor a worker
// was configured.
var ErrNoServersConfigured = errors.New("no servers configured: use WithHTTPServer() or WithWorker()")

type worker struct {
	name string
	fn   func(ctx context.Context)
}

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// ServerManager owns the process lifecycle.
type ServerManager struct {
	httpServer      *fiber.App
	httpAddress     string
	workers         []worker
	hooks           []hook
	logger          log.Logger
	serversStarted  chan struct{}
	startedOnce     sync.Once
	shutdownChan    <-chan struct{}
	shutdownOnce    sync.Once
	shutdownTimeout time.Duration
	startupErrors   chan error
	cancelWorkers   context.CancelFunc
	workersDone     sync.WaitGroup
}

// NewServerManager creates a ServerManager. A nil logger is replaced by a
// no-op logger.
func NewServerManager(logger log.Logger) *ServerManager {
	if logger == nil {
		logger = log.NewNop()
	}

	return &ServerManager{
		logger:          logger,
		serversStarted:  make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startupErrors:   make(chan error, 1),
	}
}

// WithHTTPServer serves app on address.
func (sm *ServerManager) WithHTTPServer(app *fiber.App, address string) *ServerManager {
	sm.httpServer = app
	sm.httpAddress = address

	return sm
}

// WithWorker runs fn in the background until shutdown cancels its context.
func (sm *ServerManager) WithWorker(name string, fn func(ctx context.Context)) *ServerManager {
	sm.workers = append(sm.workers, worker{name: name, fn: fn})

	return sm
}

// WithShutdownHook registers fn to run after the HTTP server and workers have
// stopped. Hooks run in registration order.
func (sm *ServerManager) WithShutdownHook(name string, fn func(ctx context.Context) error) *ServerManager {
	sm.hooks = append(sm.hooks, hook{name: name, fn: fn})

	return sm
}

// WithShutdownChannel replaces OS signal handling with ch.
func (sm *ServerManager) WithShutdownChannel(ch <-chan struct{}) *ServerManager {
	sm.shutdownChan = ch

	return sm
}

// WithShutdownTimeout bounds the whole shutdown sequence. Defaults to 30s.
func (sm *ServerManager) WithShutdownTimeout(d time.Duration) *ServerManager {
	sm.shutdownTimeout = d

	return sm
}

// ServersStarted is closed once the server and worker goroutines are launched.
func (sm *ServerManager) ServersStarted() <-chan struct{} {
	return sm.serversStarted
}

// StartWithGracefulShutdown starts everything and blocks until a shutdown
// signal arrives, the shutdown channel closes or the HTTP server fails.
func (sm *ServerManager) StartWithGracefulShutdown() error {
	if sm.httpServer == nil && len(sm.workers) == 0 {
		return ErrNoServersConfigured
	}

	sm.start()

	startupErr := sm.wait()

	sm.logger.Log(context.Background(), log.LevelInfo, "gracefully shutting down")

	if err := sm.shutdown(); err != nil {
		return errors.Join(startupErr, err)
	}

	return startupErr
}

func (sm *ServerManager) start() {
	ctx, cancel := context.WithCancel(context.Background())
	sm.cancelWorkers = cancel

	if sm.httpServer != nil {
		runtime.SafeGo(ctx, sm.logger, "server", "http", func(context.Context) {
			sm.logger.Log(ctx, log.LevelInfo, "starting HTTP server", log.String("address", sm.httpAddress))

			if err := sm.httpServer.Listen(sm.httpAddress); err != nil {
				select {
				case sm.startupErrors <- fmt.Errorf("http server: %w", err):
				default:
				}
			}
		})
	}

	for _, w := range sm.workers {
		sm.workersDone.Add(1)

		runtime.SafeGo(ctx, sm.logger, "server", w.name, func(ctx context.Context) {
			defer sm.workersDone.Done()

			sm.logger.Log(ctx, log.LevelInfo, "starting worker", log.String("worker", w.name))
			w.fn(ctx)
		})
	}

	sm.startedOnce.Do(func() { close(sm.serversStarted) })
}

func (sm *ServerManager) wait() error {
	if sm.shutdownChan != nil {
		select {
		case <-sm.shutdownChan:
			return nil
		case err := <-sm.startupErrors:
			sm.logger.Log(context.Background(), log.LevelError, "server startup failed", log.Err(err))
			return err
		}
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	defer signal.Stop(c)

	select {
	case sig := <-c:
		sm.logger.Log(context.Background(), log.LevelInfo, "signal received", log.String("signal", sig.String()))
		return nil
	case err := <-sm.startupErrors:
		sm.logger.Log(context.Background(), log.LevelError, "server startup failed", log.Err(err))
		return err
	}
}

// shutdown stops intake first, then workers, then runs the hooks. It is safe
// to call more than once.
func (sm *ServerManager) shutdown() error {
	var errs []error

	sm.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
		defer cancel()

		if sm.httpServer != nil {
			sm.logger.Log(ctx, log.LevelInfo, "shutting down HTTP server")

			if err := sm.httpServer.ShutdownWithContext(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}

		if sm.cancelWorkers != nil {
			sm.cancelWorkers()
		}

		done := make(chan struct{})
		go func() {
			sm.workersDone.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("workers did not stop: %w", ctx.Err()))
		}

		for _, h := range sm.hooks {
			sm.logger.Log(ctx, log.LevelInfo, "running shutdown hook", log.String("hook", h.name))

			if err := h.fn(ctx); err != nil {
				sm.logger.Log(ctx, log.LevelError, "shutdown hook failed", log.String("hook", h.name), log.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			}
		}

		if err := sm.logger.Sync(ctx); err != nil {
			errs = append(errs, fmt.Errorf("sync logger: %w", err))
		}

		sm.logger.Log(ctx, log.LevelInfo, "graceful shutdown completed")
	})

	return errors.Join(errs...)
}
