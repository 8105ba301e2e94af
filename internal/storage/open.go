package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Options struct {
	Driver   string
	BoltPath string
	Database DatabaseConfig
	RedisURL string
}

// Open builds the session storage backend selected by opts.Driver
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Storage, error) {
	switch opts.Driver {
	case DriverMemory, "":
		logger.Info("Using in-memory session storage")
		return NewMemoryStorage(), nil
	case DriverBolt:
		logger.Info("Using bbolt session storage", zap.String("path", opts.BoltPath))
		return NewBoltStorage(opts.BoltPath)
	case DriverPostgres:
		logger.Info("Using PostgreSQL session storage")
		return NewPostgresStorage(opts.Database, logger)
	case DriverRedis:
		logger.Info("Using Redis session storage")
		return NewRedisStorage(ctx, opts.RedisURL, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
