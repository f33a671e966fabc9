//go:build unit

package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), Config{Database: "corebank"})
	assert.ErrorIs(t, err, ErrEmptyURI)

	_, err = Connect(context.Background(), Config{URI: "mongodb://localhost:27017"})
	assert.ErrorIs(t, err, ErrEmptyDatabaseName)
}

func TestClosedClient(t *testing.T) {
	t.Parallel()

	c := &Client{db: "corebank"}

	_, err := c.Collection("fraud_alerts")
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrClientClosed)
	assert.NoError(t, c.Close(context.Background()))
}
