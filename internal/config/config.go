// Package config loads corebank settings from defaults, an optional file and
// COREBANK_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. COREBANK_POSTGRES_PRIMARY_DSN.
const EnvPrefix = "COREBANK"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Collaborator modes.
const (
	ModeInProcess = "inprocess"
	ModeHTTP      = "http"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full corebank configuration.
type Config struct {
	App            AppConfig            `mapstructure:"app"`
	HTTP           HTTPConfig           `mapstructure:"http"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Postgres       PostgresConfig       `mapstructure:"postgres"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Mongo          MongoConfig          `mapstructure:"mongo"`
	Telemetry      TelemetryConfig      `mapstructure:"telemetry"`
	Saga           SagaConfig           `mapstructure:"saga"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Remote         RemoteConfig         `mapstructure:"remote"`
	Loan           LoanConfig           `mapstructure:"loan"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

type HTTPConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BodyLimit       int           `mapstructure:"body_limit"`
}

// StorageConfig selects the repository driver per component.
type StorageConfig struct {
	Accounts     string `mapstructure:"accounts"`
	Ledger       string `mapstructure:"ledger"`
	Transactions string `mapstructure:"transactions"`
	Loans        string `mapstructure:"loans"`
	FraudAlerts  string `mapstructure:"fraud_alerts"`
}

type PostgresConfig struct {
	PrimaryDSN      string        `mapstructure:"primary_dsn"`
	ReplicaDSN      string        `mapstructure:"replica_dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// SagaConfig bounds every downstream call the orchestrator makes.
type SagaConfig struct {
	BalanceTimeout    time.Duration `mapstructure:"balance_timeout"`
	LedgerTimeout     time.Duration `mapstructure:"ledger_timeout"`
	FraudTimeout      time.Duration `mapstructure:"fraud_timeout"`
	SettlementAccount string        `mapstructure:"settlement_account"`
	CASMaxRetries     int           `mapstructure:"cas_max_retries"`
	CASBaseBackoff    time.Duration `mapstructure:"cas_base_backoff"`
}

type CircuitBreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	FailureRatio        float64       `mapstructure:"failure_ratio"`
	MinRequests         uint32        `mapstructure:"min_requests"`
}

// RemoteConfig chooses between in-process collaborators and HTTP clients.
type RemoteConfig struct {
	Mode       string `mapstructure:"mode"`
	BalanceURL string `mapstructure:"balance_url"`
	LedgerURL  string `mapstructure:"ledger_url"`
	FraudURL   string `mapstructure:"fraud_url"`
}

type LoanConfig struct {
	SchedulerEnabled bool          `mapstructure:"scheduler_enabled"`
	Cron             string        `mapstructure:"cron"`
	Timezone         string        `mapstructure:"timezone"`
	Concurrency      int           `mapstructure:"concurrency"`
	BatchTimeout     time.Duration `mapstructure:"batch_timeout"`
}

// DefaultSettlementAccount is the system clearing account used as the contra
// leg of single-account debits and credits.
const DefaultSettlementAccount = "00000000-0000-7000-8000-000000000001"

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "corebank")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "local")
	v.SetDefault("app.log_level", "")

	v.SetDefault("http.address", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.body_limit", 1<<20)

	v.SetDefault("storage.accounts", DriverMemory)
	v.SetDefault("storage.ledger", DriverMemory)
	v.SetDefault("storage.transactions", DriverMemory)
	v.SetDefault("storage.loans", DriverMemory)
	v.SetDefault("storage.fraud_alerts", DriverMemory)

	v.SetDefault("postgres.primary_dsn", "")
	v.SetDefault("postgres.replica_dsn", "")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 10*time.Second)

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "corebank")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")

	v.SetDefault("saga.balance_timeout", 5*time.Second)
	v.SetDefault("saga.ledger_timeout", 5*time.Second)
	v.SetDefault("saga.fraud_timeout", 3*time.Second)
	v.SetDefault("saga.settlement_account", DefaultSettlementAccount)
	v.SetDefault("saga.cas_max_retries", 5)
	v.SetDefault("saga.cas_base_backoff", 5*time.Millisecond)

	v.SetDefault("circuit_breaker.max_requests", 3)
	v.SetDefault("circuit_breaker.interval", 2*time.Minute)
	v.SetDefault("circuit_breaker.timeout", 10*time.Second)
	v.SetDefault("circuit_breaker.consecutive_failures", 5)
	v.SetDefault("circuit_breaker.failure_ratio", 0.5)
	v.SetDefault("circuit_breaker.min_requests", 10)

	v.SetDefault("remote.mode", ModeInProcess)
	v.SetDefault("remote.balance_url", "")
	v.SetDefault("remote.ledger_url", "")
	v.SetDefault("remote.fraud_url", "")

	v.SetDefault("loan.scheduler_enabled", true)
	v.SetDefault("loan.cron", "30 0 * * *")
	v.SetDefault("loan.timezone", "UTC")
	v.SetDefault("loan.concurrency", 1)
	v.SetDefault("loan.batch_timeout", 30*time.Minute)
}

// Load reads configuration. The file named by COREBANK_CONFIG (YAML, TOML or
// .env, by extension) is optional; environment variables always win.
func Load() (Config, error) {
	return load(os.Getenv(EnvPrefix + "_CONFIG"))
}

func load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate rejects configurations the binary cannot run with.
func (c Config) Validate() error {
	var errs []error

	for name, d := range map[string]time.Duration{
		"saga.balance_timeout": c.Saga.BalanceTimeout,
		"saga.ledger_timeout":  c.Saga.LedgerTimeout,
		"saga.fraud_timeout":   c.Saga.FraudTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if _, err := uuid.Parse(c.Saga.SettlementAccount); err != nil {
		errs = append(errs, fmt.Errorf("saga.settlement_account: %w", err))
	}

	for name, driver := range map[string]string{
		"storage.accounts":     c.Storage.Accounts,
		"storage.ledger":       c.Storage.Ledger,
		"storage.transactions": c.Storage.Transactions,
		"storage.loans":        c.Storage.Loans,
	} {
		switch driver {
		case DriverMemory:
		case DriverPostgres:
			if c.Postgres.PrimaryDSN == "" {
				errs = append(errs, fmt.Errorf("%s=postgres requires postgres.primary_dsn", name))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unknown driver %q", name, driver))
		}
	}

	switch c.Storage.FraudAlerts {
	case DriverMemory:
	case DriverPostgres:
		if c.Postgres.PrimaryDSN == "" {
			errs = append(errs, errors.New("storage.fraud_alerts=postgres requires postgres.primary_dsn"))
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("storage.fraud_alerts=mongo requires mongo.uri"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.fraud_alerts: unknown driver %q", c.Storage.FraudAlerts))
	}

	switch c.Remote.Mode {
	case ModeInProcess:
	case ModeHTTP:
		if c.Remote.BalanceURL == "" || c.Remote.LedgerURL == "" || c.Remote.FraudURL == "" {
			errs = append(errs, errors.New("remote.mode=http requires balance_url, ledger_url and fraud_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("remote.mode: unknown mode %q", c.Remote.Mode))
	}

	if c.Loan.Concurrency < 1 {
		errs = append(errs, errors.New("loan.concurrency must be at least 1"))
	}

	if _, err := time.LoadLocation(c.Loan.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("loan.timezone: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// NeedsPostgres reports whether any component is stored in PostgreSQL.
func (c Config) NeedsPostgres() bool {
	for _, d := range []string{c.Storage.Accounts, c.Storage.Ledger, c.Storage.Transactions, c.Storage.Loans, c.Storage.FraudAlerts} {
		if d == DriverPostgres {
			return true
		}
	}

	return false
}
