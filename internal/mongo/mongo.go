// Package mongo connects corebank to MongoDB, which can hold fraud alerts as
// documents.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/tracking"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultServerSelectionTimeout = 5 * time.Second
	defaultHeartbeatInterval      = 10 * time.Second
)

var (
	// ErrEmptyURI is returned when Mongo URI is empty.
	ErrEmptyURI = errors.New("mongo uri cannot be empty")
	// ErrEmptyDatabaseName is returned when database name is empty.
	ErrEmptyDatabaseName = errors.New("database name cannot be empty")
	// ErrConnect wraps connection establishment failures.
	ErrConnect = errors.New("mongo connect failed")
	// ErrPing wraps connectivity probe failures.
	ErrPing = errors.New("mongo ping failed")
	// ErrClientClosed is returned when the client is used after Close.
	ErrClientClosed = errors.New("mongo client is closed")
)

// Config defines MongoDB connection and pool behavior.
type Config struct {
	URI                    string
	Database               string
	MaxPoolSize            uint64
	ServerSelectionTimeout time.Duration
	HeartbeatInterval      time.Duration
	Logger                 log.Logger
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.URI) == "" {
		return ErrEmptyURI
	}

	if strings.TrimSpace(cfg.Database) == "" {
		return ErrEmptyDatabaseName
	}

	return nil
}

// Client wraps a connected *mongo.Client bound to one database.
type Client struct {
	mu     sync.RWMutex
	client *mongo.Client
	db     string
	logger log.Logger
}

// Connect dials MongoDB and pings it before returning.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "mongo.connect")
	defer span.End()

	span.SetAttributes(attribute.String("db.system", "mongodb"))

	opts := options.Client().ApplyURI(cfg.URI)

	selection := cfg.ServerSelectionTimeout
	if selection <= 0 {
		selection = defaultServerSelectionTimeout
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	opts.SetServerSelectionTimeout(selection)
	opts.SetHeartbeatInterval(heartbeat)

	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		tracking.HandleSpanError(span, "failed to connect to mongo", err)

		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		if derr := client.Disconnect(ctx); derr != nil {
			cfg.Logger.Log(ctx, log.LevelWarn, "failed to disconnect after ping failure", log.Err(derr))
		}

		tracking.HandleSpanError(span, "failed to ping mongo", err)

		return nil, fmt.Errorf("%w: %w", ErrPing, err)
	}

	cfg.Logger.Log(ctx, log.LevelInfo, "connected to mongo", log.String("database", cfg.Database))

	return &Client{client: client, db: cfg.Database, logger: cfg.Logger}, nil
}

// Collection returns a handle on name in the configured database.
func (c *Client) Collection(name string) (*mongo.Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return nil, ErrClientClosed
	}

	return c.client.Database(c.db).Collection(name), nil
}

// EnsureIndexes creates indexes on collection, ignoring ones that exist.
func (c *Client) EnsureIndexes(ctx context.Context, collection string, indexes ...mongo.IndexModel) error {
	coll, err := c.Collection(collection)
	if err != nil {
		return err
	}

	if len(indexes) == 0 {
		return nil
	}

	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create indexes on %s: %w", collection, err)
	}

	return nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil {
		return ErrClientClosed
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrPing, err)
	}

	return nil
}

// Close disconnects. Calling it twice is harmless.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	err := c.client.Disconnect(ctx)
	c.client = nil

	if err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}

	return nil
}
