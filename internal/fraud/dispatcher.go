package fraud

import (
	"context"
	"sync"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/runtime"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/tracking"
)

const defaultCheckTimeout = 3 * time.Second

// Checker scores a transaction. Service and Client both satisfy it.
type Checker interface {
	Check(ctx context.Context, in CheckInput) (Alert, error)
}

// Dispatcher launches fraud checks in the background. A check never blocks
// the caller and its failures are logged and dropped.
type Dispatcher struct {
	checker Checker
	timeout time.Duration
	logger  log.Logger
	wg      sync.WaitGroup
}

// NewDispatcher returns a Dispatcher bounding every check by timeout.
func NewDispatcher(checker Checker, timeout time.Duration, logger log.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &Dispatcher{checker: checker, timeout: timeout, logger: logger}
}

// Notify starts a check for in and returns immediately. There are no retries.
func (d *Dispatcher) Notify(ctx context.Context, in CheckInput) {
	logger := d.logger

	d.wg.Add(1)

	runtime.SafeGo(tracking.Detach(ctx), logger, "fraud", "dispatch", func(ctx context.Context) {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		if _, err := d.checker.Check(ctx, in); err != nil {
			logger.Log(ctx, log.LevelWarn, "fraud check failed",
				log.String("transaction_id", in.TransactionID), log.Err(err))
		}
	})
}

// Wait blocks until every launched check has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
