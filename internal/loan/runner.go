package loan

import (
	"context"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/cron"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/redis"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/tracking"
)

// BatchLockKey guards a batch run across replicas.
const BatchLockKey = "corebank:lock:emi-batch"

const (
	defaultBatchTimeout = 30 * time.Minute
	// lockSlack keeps the lock alive a little past the batch deadline.
	lockSlack = time.Minute
)

// Processor runs one EMI batch.
type Processor interface {
	ProcessDueEMIs(ctx context.Context, asOf Date) (BatchResult, error)
}

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	// Location decides which calendar day a tick belongs to. Defaults to UTC.
	Location     *time.Location
	BatchTimeout time.Duration
	Logger       log.Logger
}

// Runner fires the EMI batch on a cron schedule. Each tick tries the batch
// lock once; a replica that loses the race skips the tick.
type Runner struct {
	processor Processor
	schedule  *cron.Schedule
	locker    redis.Locker
	loc       *time.Location
	timeout   time.Duration
	logger    log.Logger
	now       func() time.Time
}

// NewRunner returns a Runner. locker may be a redis.LockManager for multiple
// replicas or a redis.LocalLocker for one.
func NewRunner(processor Processor, schedule *cron.Schedule, locker redis.Locker, cfg RunnerConfig) *Runner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}

	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	if locker == nil {
		locker = redis.NewLocalLocker()
	}

	return &Runner{
		processor: processor,
		schedule:  schedule,
		locker:    locker,
		loc:       cfg.Location,
		timeout:   cfg.BatchTimeout,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Run ticks until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	ctx = tracking.ContextWithLogger(ctx, r.logger)

	for {
		next, err := r.schedule.Next(r.now())
		if err != nil {
			r.logger.Log(ctx, log.LevelError, "emi scheduler has no next activation, stopping", log.Err(err))

			return
		}

		r.logger.Log(ctx, log.LevelDebug, "emi batch scheduled", log.String("next_run", next.Format(time.RFC3339)))

		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()

			return
		case <-timer.C:
		}

		_, _ = r.RunOnce(ctx)
	}
}

// RunOnce runs one batch for today if this replica wins the lock. ran is false
// when another owner held it.
func (r *Runner) RunOnce(ctx context.Context) (ran bool, err error) {
	logger := r.logger

	handle, ok, err := r.locker.TryLock(ctx, BatchLockKey, r.timeout+lockSlack)
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to acquire emi batch lock", log.Err(err))

		return false, err
	}

	if !ok {
		logger.Log(ctx, log.LevelInfo, "emi batch already running elsewhere, skipping tick")

		return false, nil
	}

	defer func() {
		if unlockErr := handle.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			logger.Log(ctx, log.LevelWarn, "failed to release emi batch lock", log.Err(unlockErr))
		}
	}()

	batchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	asOf := DateOf(r.now().In(r.loc))

	result, err := r.processor.ProcessDueEMIs(batchCtx, asOf)
	if err != nil {
		logger.Log(ctx, log.LevelError, "emi batch failed", log.String("as_of", asOf.String()), log.Err(err))

		return true, err
	}

	logger.Log(ctx, log.LevelInfo, "emi batch run complete",
		log.String("as_of", asOf.String()), log.Int("processed", result.ProcessedEMIs))

	return true, nil
}
