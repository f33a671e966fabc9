//go:build unit

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load("")
	require.NoError(t, err)

	assert.Equal(t, "corebank", cfg.App.Name)
	assert.Equal(t, 5*time.Second, cfg.Saga.BalanceTimeout)
	assert.Equal(t, 5*time.Second, cfg.Saga.LedgerTimeout)
	assert.Equal(t, 3*time.Second, cfg.Saga.FraudTimeout)
	assert.Equal(t, DefaultSettlementAccount, cfg.Saga.SettlementAccount)
	assert.Equal(t, DriverMemory, cfg.Storage.Ledger)
	assert.Equal(t, ModeInProcess, cfg.Remote.Mode)
	assert.Equal(t, 1, cfg.Loan.Concurrency)
	assert.False(t, cfg.NeedsPostgres())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("COREBANK_SAGA_FRAUD_TIMEOUT", "750ms")
	t.Setenv("COREBANK_LOAN_CONCURRENCY", "4")
	t.Setenv("COREBANK_STORAGE_LEDGER", "postgres")
	t.Setenv("COREBANK_POSTGRES_PRIMARY_DSN", "postgres://corebank@localhost/corebank")

	cfg, err := load("")
	require.NoError(t, err)

	assert.Equal(t, 750*time.Millisecond, cfg.Saga.FraudTimeout)
	assert.Equal(t, 4, cfg.Loan.Concurrency)
	assert.True(t, cfg.NeedsPostgres())
}

func TestFileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corebank.yaml")

	require.NoError(t, os.WriteFile(path, []byte(`
http:
  address: ":9090"
loan:
  cron: "0 1 * * *"
  concurrency: 2
`), 0o600))

	t.Setenv("COREBANK_LOAN_CONCURRENCY", "3")

	cfg, err := load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, "0 1 * * *", cfg.Loan.Cron)
	assert.Equal(t, 3, cfg.Loan.Concurrency)
}

func TestMissingFileIsAnError(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero timeout", mutate: func(c *Config) { c.Saga.LedgerTimeout = 0 }},
		{name: "bad settlement", mutate: func(c *Config) { c.Saga.SettlementAccount = "cash" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Accounts = DriverPostgres }},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Loans = "sqlite" }},
		{name: "mongo without uri", mutate: func(c *Config) { c.Storage.FraudAlerts = DriverMongo }},
		{name: "http without urls", mutate: func(c *Config) { c.Remote.Mode = ModeHTTP }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Loan.Concurrency = 0 }},
		{name: "bad timezone", mutate: func(c *Config) { c.Loan.Timezone = "Mars/Olympus" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)

			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
