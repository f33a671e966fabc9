// Package redis provides the go-redis client and the redsync-based
// distributed locks used for per-account serialization and for electing the
// replica that runs the EMI batch.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/redis/go-redis/v9"
)

// ErrNilClient is returned when a nil client is supplied.
var ErrNilClient = errors.New("redis client is nil")

// Config describes a single Redis endpoint.
type Config struct {
	Address  string
	Password string
	DB       int
}

// Connect creates a client for cfg and verifies it with PING.
func Connect(ctx context.Context, cfg Config, logger log.Logger) (*redis.Client, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		logger.Log(ctx, log.LevelError, "failed to ping redis", log.String("address", cfg.Address), log.Err(err))

		return nil, fmt.Errorf("ping redis %s: %w", cfg.Address, err)
	}

	logger.Log(ctx, log.LevelInfo, "connected to redis", log.String("address", cfg.Address))

	return client, nil
}
