// Package repository provides round.Store implementations backed by memory, PostgreSQL
// and Redis.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/cardtable/blackjack-server/internal/config"
	"github.com/cardtable/blackjack-server/internal/round"
	"go.uber.org/zap"
)

// ErrDuplicateID is returned when a round id already exists.
var ErrDuplicateID = errors.New("round id already exists")

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Backend is an opened store together with its cleanup function.
type Backend struct {
	Store round.Store
	Close func()
}

// Open connects the store selected by cfg.Database.Driver.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Database.Driver {
	case "", DriverMemory:
		logger.Info("using in-memory round store")
		return &Backend{Store: NewMemoryStore(), Close: func() {}}, nil

	case DriverPostgres:
		pg, err := NewPostgresStore(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Database.MigrateOnStart {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, err
			}
		}
		return &Backend{Store: pg, Close: pg.Close}, nil

	case DriverRedis:
		client := NewRedisClient(
			WithAddress(cfg.Redis.Address),
			WithPassword(cfg.Redis.Password),
			WithDB(cfg.Redis.DB),
			WithPoolSize(cfg.Redis.PoolSize),
		)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("using redis round store", zap.String("address", cfg.Redis.Address))
		store := NewRedisStore(client, cfg.Redis.KeyPrefix)
		return &Backend{Store: store, Close: func() { _ = client.Close() }}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
