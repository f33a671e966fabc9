// Package errgroup runs related goroutines that share a cancellation context,
// converting panics into errors instead of crashing the process.
package errgroup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/runtime"
)

// ErrPanicRecovered is returned by Wait when a goroutine in the group panicked.
var ErrPanicRecovered = errors.New("errgroup: panic recovered")

// Group is a collection of goroutines working on subtasks of the same task.
// The first error cancels the group context and is returned by Wait.
type Group struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sem     chan struct{}
	errOnce sync.Once
	err     error
	logger  log.Logger
}

// WithContext returns a new Group and a derived context that is cancelled on
// the first error or when Wait returns.
func WithContext(ctx context.Context) (*Group, context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	return &Group{ctx: ctx, cancel: cancel}, ctx
}

// SetLogger sets the logger used to report recovered panics.
func (g *Group) SetLogger(logger log.Logger) {
	g.logger = logger
}

// SetLimit bounds the number of goroutines running at once. n <= 0 removes the
// bound. It must not be called while goroutines are active.
func (g *Group) SetLimit(n int) {
	if n <= 0 {
		g.sem = nil
		return
	}

	g.sem = make(chan struct{}, n)
}

func (g *Group) context() context.Context {
	if g.ctx != nil {
		return g.ctx
	}

	return context.Background()
}

func (g *Group) fail(err error) {
	g.errOnce.Do(func() {
		g.err = err
		if g.cancel != nil {
			g.cancel()
		}
	})
}

// Go runs fn in a new goroutine, blocking first while the limit is reached.
func (g *Group) Go(fn func() error) {
	if g.sem != nil {
		g.sem <- struct{}{}
	}

	g.wg.Add(1)

	go func() {
		defer g.wg.Done()
		defer func() {
			if g.sem != nil {
				<-g.sem
			}
		}()
		defer func() {
			if r := recover(); r != nil {
				runtime.HandlePanicValue(g.context(), g.logger, r, "errgroup", "group.Go")
				g.fail(fmt.Errorf("%w: %v", ErrPanicRecovered, r))
			}
		}()

		if err := fn(); err != nil {
			g.fail(err)
		}
	}()
}

// Wait blocks until every goroutine returned and reports the first error.
func (g *Group) Wait() error {
	g.wg.Wait()

	if g.cancel != nil {
		g.cancel()
	}

	return g.err
}
