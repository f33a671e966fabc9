package main

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/balance"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/circuitbreaker"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/config"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/fraud"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/httpx"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/ledger"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/loan"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/mongo"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/postgres"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/redis"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/transaction"
	"github.com/Praveen-crypto-tech/core-banking-microservices/migrations"
	"github.com/bxcodec/dbresolver/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// dependencies are the external systems the process talks to. Every field
// except breakers and locker is nil when the configuration does not use it.
type dependencies struct {
	pg       *postgres.Client
	db       dbresolver.DB
	redis    *goredis.Client
	mongo    *mongo.Client
	locker   redis.Locker
	breakers *circuitbreaker.Manager
	logger   log.Logger
}

func connect(ctx context.Context, cfg config.Config, logger log.Logger) (*dependencies, error) {
	deps := &dependencies{
		breakers: circuitbreaker.NewManager(logger),
		locker:   redis.NewLocalLocker(),
		logger:   logger,
	}

	if cfg.NeedsPostgres() {
		pg, err := postgres.New(postgres.Config{
			PrimaryDSN:      cfg.Postgres.PrimaryDSN,
			ReplicaDSN:      cfg.Postgres.ReplicaDSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			Migrations:      migrationsFS(cfg.Postgres.AutoMigrate),
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}

		if err := pg.Connect(ctx); err != nil {
			return nil, err
		}

		db, err := pg.DB()
		if err != nil {
			_ = pg.Close()

			return nil, err
		}

		deps.pg, deps.db = pg, db
	}

	if cfg.Redis.Enabled {
		client, err := redis.Connect(ctx, redis.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			deps.close(ctx)

			return nil, err
		}

		deps.redis = client

		opts := redis.DefaultLockOptions()
		opts.Expiry = cfg.Redis.LockTTL

		locker, err := redis.NewLockManager(client, opts)
		if err != nil {
			deps.close(ctx)

			return nil, err
		}

		deps.locker = locker
	}

	if cfg.Storage.FraudAlerts == config.DriverMongo {
		client, err := mongo.Connect(ctx, mongo.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			Logger:   logger,
		})
		if err != nil {
			deps.close(ctx)

			return nil, err
		}

		deps.mongo = client
	}

	if cfg.Remote.Mode == config.ModeHTTP {
		bc := circuitbreaker.Config{
			MaxRequests:         cfg.CircuitBreaker.MaxRequests,
			Interval:            cfg.CircuitBreaker.Interval,
			Timeout:             cfg.CircuitBreaker.Timeout,
			ConsecutiveFailures: cfg.CircuitBreaker.ConsecutiveFailures,
			FailureRatio:        cfg.CircuitBreaker.FailureRatio,
			MinRequests:         cfg.CircuitBreaker.MinRequests,
		}

		for _, name := range []string{"balance", "ledger", "fraud"} {
			deps.breakers.Register(name, bc)
		}
	}

	return deps, nil
}

// migrationsFS returns the embedded schema, or nil to leave the database as is.
func migrationsFS(enabled bool) fs.FS {
	if !enabled {
		return nil
	}

	return migrations.FS
}

func (d *dependencies) addChecks(h *httpx.Health) {
	if d.pg != nil {
		h.AddCheck("postgres", d.pg.Ping)
	}

	if d.redis != nil {
		h.AddCheck("redis", func(ctx context.Context) error { return d.redis.Ping(ctx).Err() })
	}

	if d.mongo != nil {
		h.AddCheck("mongo", d.mongo.Ping)
	}
}

func (d *dependencies) close(ctx context.Context) {
	if d.pg != nil {
		if err := d.pg.Close(); err != nil {
			d.logger.Log(ctx, log.LevelWarn, "failed to close postgres", log.Err(err))
		}
	}

	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.logger.Log(ctx, log.LevelWarn, "failed to close redis", log.Err(err))
		}
	}

	if d.mongo != nil {
		if err := d.mongo.Close(ctx); err != nil {
			d.logger.Log(ctx, log.LevelWarn, "failed to close mongo", log.Err(err))
		}
	}
}

// services holds the wired domain components.
type services struct {
	balances     *balance.Service
	ledger       *ledger.Service
	fraud        *fraud.Service
	dispatcher   *fraud.Dispatcher
	orchestrator *transaction.Orchestrator
	loans        *loan.Service
}

func wire(ctx context.Context, cfg config.Config, deps *dependencies, logger log.Logger) (*services, error) {
	settlement, err := uuid.Parse(cfg.Saga.SettlementAccount)
	if err != nil {
		return nil, fmt.Errorf("settlement account: %w", err)
	}

	var (
		balanceRepo balance.Repository     = balance.NewMemoryRepository()
		ledgerRepo  ledger.Repository      = ledger.NewMemoryRepository()
		txRepo      transaction.Repository = transaction.NewMemoryRepository()
		loanRepo    loan.Repository        = loan.NewMemoryRepository()
		alertStore  fraud.Store            = fraud.NewMemoryStore()
	)

	if cfg.Storage.Accounts == config.DriverPostgres {
		balanceRepo = balance.NewPostgresRepository(deps.db)
	}

	if cfg.Storage.Ledger == config.DriverPostgres {
		ledgerRepo = ledger.NewPostgresRepository(deps.db)
	}

	if cfg.Storage.Transactions == config.DriverPostgres {
		txRepo = transaction.NewPostgresRepository(deps.db)
	}

	if cfg.Storage.Loans == config.DriverPostgres {
		loanRepo = loan.NewPostgresRepository(deps.db)
	}

	switch cfg.Storage.FraudAlerts {
	case config.DriverPostgres:
		alertStore = fraud.NewPostgresStore(deps.db)
	case config.DriverMongo:
		if err := deps.mongo.EnsureIndexes(ctx, fraud.AlertsCollection, fraud.Indexes()...); err != nil {
			return nil, err
		}

		coll, err := deps.mongo.Collection(fraud.AlertsCollection)
		if err != nil {
			return nil, err
		}

		alertStore = fraud.NewMongoStore(coll)
	}

	s := &services{
		balances: balance.NewService(balanceRepo, balance.Config{
			Locker:         deps.locker,
			CASMaxRetries:  cfg.Saga.CASMaxRetries,
			CASBaseBackoff: cfg.Saga.CASBaseBackoff,
		}),
		ledger: ledger.NewService(ledgerRepo),
		fraud:  fraud.NewService(alertStore),
	}

	var (
		authority transaction.BalanceAuthority = s.balances
		recorder  transaction.LedgerRecorder   = s.ledger
		checker   fraud.Checker                = s.fraud
	)

	if cfg.Remote.Mode == config.ModeHTTP {
		authority = balance.NewClient(httpx.NewClient("balance", cfg.Remote.BalanceURL, cfg.Saga.BalanceTimeout, deps.breakers))
		recorder = ledger.NewClient(httpx.NewClient("ledger", cfg.Remote.LedgerURL, cfg.Saga.LedgerTimeout, deps.breakers))
		checker = fraud.NewClient(httpx.NewClient("fraud", cfg.Remote.FraudURL, cfg.Saga.FraudTimeout, deps.breakers))
	}

	s.dispatcher = fraud.NewDispatcher(checker, cfg.Saga.FraudTimeout, logger)
	s.orchestrator = transaction.NewOrchestrator(txRepo, authority, recorder, s.dispatcher, transaction.Config{
		SettlementAccount: settlement,
		BalanceTimeout:    cfg.Saga.BalanceTimeout,
		LedgerTimeout:     cfg.Saga.LedgerTimeout,
	})
	s.loans = loan.NewService(loanRepo, s.orchestrator, loan.Config{Concurrency: cfg.Loan.Concurrency})

	return s, nil
}

func (s *services) register(router fiber.Router) {
	balance.NewHandler(s.balances).Register(router)
	ledger.NewHandler(s.ledger).Register(router)
	transaction.NewHandler(s.orchestrator).Register(router)
	fraud.NewHandler(s.fraud).Register(router)
	loan.NewHandler(s.loans).Register(router)
}
