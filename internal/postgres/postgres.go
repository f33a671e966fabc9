// Package postgres connects corebank to PostgreSQL through a primary/replica
// resolver and applies the schema migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migration source
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

const (
	defaultMaxOpenConns    = 20
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

var (
	// ErrNotConnected is returned when the client is used before Connect.
	ErrNotConnected = errors.New("postgres: not connected")
	// ErrMissingDSN is returned when no primary DSN is configured.
	ErrMissingDSN = errors.New("postgres: primary DSN is required")

	credentialsPattern = regexp.MustCompile(`://[^@\s]+@`)
	passwordPattern    = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
)

// Config describes a PostgreSQL deployment.
type Config struct {
	PrimaryDSN string
	// ReplicaDSN defaults to PrimaryDSN.
	ReplicaDSN      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Migrations is applied on Connect when set; it takes precedence over MigrationsPath.
	Migrations     fs.FS
	MigrationsPath string
	Logger         log.Logger
}

// Client owns the resolver and the primary pool used for migrations.
type Client struct {
	cfg      Config
	mu       sync.RWMutex
	primary  *sql.DB
	replica  *sql.DB
	resolver dbresolver.DB
}

// New validates cfg and returns an unconnected Client.
func New(cfg Config) (*Client, error) {
	if cfg.PrimaryDSN == "" {
		return nil, ErrMissingDSN
	}

	if cfg.ReplicaDSN == "" {
		cfg.ReplicaDSN = cfg.PrimaryDSN
	}

	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaultMaxOpenConns
	}

	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaultMaxIdleConns
	}

	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = defaultConnMaxLifetime
	}

	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	return &Client{cfg: cfg}, nil
}

func (c *Client) open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.New(sanitize(err))
	}

	db.SetMaxOpenConns(c.cfg.MaxOpenConns)
	db.SetMaxIdleConns(c.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	return db, nil
}

// Connect opens both pools, applies migrations on the primary and pings.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolver != nil {
		return nil
	}

	logger := c.cfg.Logger
	logger.Log(ctx, log.LevelInfo, "connecting to postgres")

	primary, err := c.open(c.cfg.PrimaryDSN)
	if err != nil {
		return fmt.Errorf("open primary: %w", err)
	}

	replica, err := c.open(c.cfg.ReplicaDSN)
	if err != nil {
		_ = primary.Close()
		return fmt.Errorf("open replica: %w", err)
	}

	resolver := dbresolver.New(
		dbresolver.WithPrimaryDBs(primary),
		dbresolver.WithReplicaDBs(replica),
		dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
	)

	if err := resolver.PingContext(ctx); err != nil {
		_ = resolver.Close()
		logger.Log(ctx, log.LevelError, "failed to ping postgres", log.String("error", sanitize(err)))

		return fmt.Errorf("ping postgres: %s", sanitize(err))
	}

	if err := c.migrate(ctx, primary); err != nil {
		_ = resolver.Close()
		return err
	}

	c.primary, c.replica, c.resolver = primary, replica, resolver

	logger.Log(ctx, log.LevelInfo, "connected to postgres")

	return nil
}

func (c *Client) migrate(ctx context.Context, primary *sql.DB) error {
	if c.cfg.Migrations == nil && c.cfg.MigrationsPath == "" {
		return nil
	}

	driver, err := migratepg.WithInstance(primary, &migratepg.Config{SchemaName: "public"})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	var m *migrate.Migrate

	if c.cfg.Migrations != nil {
		src, err := iofs.New(c.cfg.Migrations, ".")
		if err != nil {
			return fmt.Errorf("open embedded migrations: %w", err)
		}

		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
		if err != nil {
			return fmt.Errorf("create migration instance: %w", err)
		}
	} else {
		abs, err := filepath.Abs(filepath.Clean(c.cfg.MigrationsPath))
		if err != nil {
			return fmt.Errorf("resolve migrations path: %w", err)
		}

		u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}

		m, err = migrate.NewWithDatabaseInstance(u.String(), "postgres", driver)
		if err != nil {
			return fmt.Errorf("create migration instance: %w", err)
		}
	}

	err = m.Up()

	var dirty migrate.ErrDirty

	switch {
	case err == nil:
		c.cfg.Logger.Log(ctx, log.LevelInfo, "migrations applied")
	case errors.Is(err, migrate.ErrNoChange):
		c.cfg.Logger.Log(ctx, log.LevelDebug, "no new migrations")
	case errors.As(err, &dirty):
		return fmt.Errorf("migration failed: dirty database version %d", dirty.Version)
	default:
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// DB returns the resolver; writes go to the primary and reads round-robin to replicas.
func (c *Client) DB() (dbresolver.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.resolver == nil {
		return nil, ErrNotConnected
	}

	return c.resolver, nil
}

// Ping checks the connection, used by readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	db, err := c.DB()
	if err != nil {
		return err
	}

	return db.PingContext(ctx)
}

// Close releases both pools.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolver == nil {
		return nil
	}

	err := c.resolver.Close()
	c.resolver, c.primary, c.replica = nil, nil, nil

	return err
}

func sanitize(err error) string {
	if err == nil {
		return ""
	}

	s := credentialsPattern.ReplaceAllString(err.Error(), "://***@")

	return passwordPattern.ReplaceAllString(s, "${1}***")
}
