//go:build unit

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresPrimary(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingDSN)
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	c, err := New(Config{PrimaryDSN: "postgres://u:p@localhost/db"})
	require.NoError(t, err)

	assert.Equal(t, c.cfg.PrimaryDSN, c.cfg.ReplicaDSN)
	assert.Equal(t, defaultMaxOpenConns, c.cfg.MaxOpenConns)
	assert.Equal(t, defaultMaxIdleConns, c.cfg.MaxIdleConns)
	assert.NotNil(t, c.cfg.Logger)
}

func TestDBBeforeConnect(t *testing.T) {
	t.Parallel()

	c, err := New(Config{PrimaryDSN: "postgres://localhost/db"})
	require.NoError(t, err)

	_, err = c.DB()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNotConnected)
	assert.NoError(t, c.Close())
}

func TestSanitizeHidesCredentials(t *testing.T) {
	t.Parallel()

	err := errors.New("dial postgres://admin:s3cret@db:5432/corebank failed; password=s3cret")

	got := sanitize(err)
	assert.NotContains(t, got, "s3cret")
	assert.Contains(t, got, "://***@")
	assert.Empty(t, sanitize(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
}
