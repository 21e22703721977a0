package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopool/pkg/logger"
)

// CacheService is the cache-aside facade the repositories lean on. A nil
// CacheService disables caching entirely.
type CacheService interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Increment(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error)
	SetExpire(ctx context.Context, key string, expiration time.Duration) error
	Ping(ctx context.Context) error
}

// RedisClient is the subset of the redis wrapper the cache service needs.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (int64, error)
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	IncrBy(ctx context.Context, key string, value int64) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
	Ping(ctx context.Context) (string, error)
}

type cacheService struct {
	redisClient RedisClient
	logger      *logger.Logger
	keyPrefix   string
	defaultTTL  time.Duration
}

func NewCacheService(redisClient RedisClient, log *logger.Logger, keyPrefix string, defaultTTL time.Duration) CacheService {
	return &cacheService{
		redisClient: redisClient,
		logger:      log,
		keyPrefix:   keyPrefix,
		defaultTTL:  defaultTTL,
	}
}

func (s *cacheService) Get(ctx context.Context, key string, dest interface{}) error {
	fullKey := s.buildKey(key)

	data, err := s.redisClient.Get(ctx, fullKey)
	if err != nil {
		return fmt.Errorf("failed to get cache key %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	s.logger.WithField("cache_key", key).Debug("Cache hit")
	return nil
}

func (s *cacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	fullKey := s.buildKey(key)

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if expiration == 0 {
		expiration = s.defaultTTL
	}

	if err := s.redisClient.Set(ctx, fullKey, data, expiration); err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	return nil
}

func (s *cacheService) Delete(ctx context.Context, keys ...string) error {
	fullKeys := make([]string, len(keys))
	for i, key := range keys {
		fullKeys[i] = s.buildKey(key)
	}

	if err := s.redisClient.Del(ctx, fullKeys...); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

func (s *cacheService) Exists(ctx context.Context, key string) (bool, error) {
	count, err := s.redisClient.Exists(ctx, s.buildKey(key))
	if err != nil {
		return false, fmt.Errorf("failed to check cache key existence: %w", err)
	}
	return count > 0, nil
}

func (s *cacheService) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if expiration == 0 {
		expiration = s.defaultTTL
	}

	result, err := s.redisClient.SetNX(ctx, s.buildKey(key), data, expiration)
	if err != nil {
		return false, fmt.Errorf("failed to set cache key if not exists: %w", err)
	}
	return result, nil
}

func (s *cacheService) Increment(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	fullKey := s.buildKey(key)

	result, err := s.redisClient.IncrBy(ctx, fullKey, delta)
	if err != nil {
		return 0, fmt.Errorf("failed to increment cache key: %w", err)
	}

	if expiration > 0 {
		s.redisClient.Expire(ctx, fullKey, expiration)
	}
	return result, nil
}

func (s *cacheService) SetExpire(ctx context.Context, key string, expiration time.Duration) error {
	if _, err := s.redisClient.Expire(ctx, s.buildKey(key), expiration); err != nil {
		return fmt.Errorf("failed to set expiration: %w", err)
	}
	return nil
}

func (s *cacheService) Ping(ctx context.Context) error {
	_, err := s.redisClient.Ping(ctx)
	return err
}

func (s *cacheService) buildKey(key string) string {
	if s.keyPrefix != "" {
		return fmt.Sprintf("%s:%s", s.keyPrefix, key)
	}
	return key
}
