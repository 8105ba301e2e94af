package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "finbot:session:"

type RedisStorage struct {
	rdb *redis.Client
}

func NewRedisStorage(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisStorage, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("Failed to parse Redis URL, using direct address",
			zap.Error(err),
			zap.String("redis_url", redisURL))
		opt = &redis.Options{Addr: redisURL}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}
	return &RedisStorage{rdb: rdb}, nil
}

func (s *RedisStorage) GetSessionID(ctx context.Context, profile string) (string, error) {
	sessionID, err := s.rdb.Get(ctx, redisKeyPrefix+profile).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("error reading session: %w", err)
	}
	return sessionID, nil
}

// SaveSessionID stores the identifier without expiry; it must outlive restarts.
func (s *RedisStorage) SaveSessionID(ctx context.Context, profile, sessionID string) error {
	if err := s.rdb.Set(ctx, redisKeyPrefix+profile, sessionID, 0).Err(); err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}
	return nil
}

func (s *RedisStorage) DeleteSessionID(ctx context.Context, profile string) error {
	if err := s.rdb.Del(ctx, redisKeyPrefix+profile).Err(); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	return nil
}

func (s *RedisStorage) Close() error {
	return s.rdb.Close()
}
