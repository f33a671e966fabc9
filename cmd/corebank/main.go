// Command corebank runs the balance, ledger, transaction, fraud and loan
// services in one process behind a single HTTP listener.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/circuitbreaker"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/config"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/cron"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/httpx"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/loan"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/server"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/telemetry"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "corebank: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, _, err := zap.New(zap.Config{
		Environment: zap.Environment(cfg.App.Environment),
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		return err
	}

	defer func() { _ = logger.Sync(context.Background()) }()

	ctx := context.Background()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		LibraryName:    "github.com/Praveen-crypto-tech/core-banking-microservices",
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		DeploymentEnv:  cfg.App.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	deps, err := connect(ctx, cfg, logger)
	if err != nil {
		_ = tel.Shutdown(ctx)

		return err
	}

	deps.breakers.RegisterStateChangeListener(circuitbreaker.NewMetricsListener(tel.Metrics, logger))

	svc, err := wire(ctx, cfg, deps, logger)
	if err != nil {
		deps.close(ctx)
		_ = tel.Shutdown(ctx)

		return err
	}

	app := httpx.NewApp(httpx.AppConfig{
		Name:         cfg.App.Name,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		BodyLimit:    cfg.HTTP.BodyLimit,
		Logger:       logger,
		Tracer:       tel.Tracer,
		Metrics:      tel.Metrics,
	})

	health := httpx.NewHealth(deps.breakers)
	deps.addChecks(health)
	health.Register(app)
	svc.register(app)

	sm := server.NewServerManager(logger).
		WithHTTPServer(app, cfg.HTTP.Address).
		WithShutdownTimeout(cfg.HTTP.ShutdownTimeout)

	if cfg.Loan.SchedulerEnabled {
		runner, err := newRunner(cfg.Loan, svc.loans, deps, logger)
		if err != nil {
			deps.close(ctx)
			_ = tel.Shutdown(ctx)

			return err
		}

		sm.WithWorker("emi-scheduler", runner.Run)
	}

	sm.WithShutdownHook("fraud-dispatcher", func(context.Context) error {
		svc.dispatcher.Wait()

		return nil
	}).
		WithShutdownHook("storage", func(ctx context.Context) error {
			deps.close(ctx)

			return nil
		}).
		WithShutdownHook("telemetry", tel.Shutdown)

	logger.Log(ctx, log.LevelInfo, "corebank starting",
		log.String("address", cfg.HTTP.Address),
		log.String("remote_mode", cfg.Remote.Mode),
		log.Bool("emi_scheduler", cfg.Loan.SchedulerEnabled),
	)

	return sm.StartWithGracefulShutdown()
}

func newRunner(cfg config.LoanConfig, loans *loan.Service, deps *dependencies, logger log.Logger) (*loan.Runner, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loan timezone: %w", err)
	}

	schedule, err := cron.ParseInLocation(cfg.Cron, loc)
	if err != nil {
		return nil, fmt.Errorf("loan cron: %w", err)
	}

	return loan.NewRunner(loans, schedule, deps.locker, loan.RunnerConfig{
		Location:     loc,
		BatchTimeout: cfg.BatchTimeout,
		Logger:       logger,
	}), nil
}
