// Package postgrestest starts disposable PostgreSQL containers for
// integration tests.
package postgrestest

import (
	"context"
	"testing"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/postgres"
	"github.com/Praveen-crypto-tech/core-banking-microservices/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Start runs postgres:16-alpine, applies the corebank migrations and returns a
// connected client. The container is terminated on test cleanup.
func Start(t *testing.T) *postgres.Client {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("corebank"),
		tcpostgres.WithUsername("corebank"),
		tcpostgres.WithPassword("corebank"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := postgres.New(postgres.Config{
		PrimaryDSN: dsn,
		Migrations: migrations.FS,
		Logger:     log.NewNop(),
	})
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))

	t.Cleanup(func() { _ = client.Close() })

	return client
}
