package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/invoice-parser/app/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisKeyPrefix = "invoice_parser:"
	redisScanCount = 500
)

// RedisCacheService keeps processed results in Redis as JSON
type RedisCacheService struct {
	client redis.UniversalClient
	logger *zap.Logger
	prefix string
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCacheService connects to redisURL and pings it
func NewRedisCacheService(redisURL string, ttl time.Duration, logger *zap.Logger) (*RedisCacheService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisCacheServiceWithClient(client, ttl, logger), nil
}

// NewRedisCacheServiceWithClient wraps an existing client
func NewRedisCacheServiceWithClient(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisCacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCacheService{client: client, logger: logger, prefix: redisKeyPrefix, ttl: ttl}
}

// Get reads and decodes a cached result
func (rcs *RedisCacheService) Get(ctx context.Context, key string) (*models.ProcessedResult, bool, error) {
	cacheKey := rcs.prefix + key

	val, err := rcs.client.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		rcs.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		rcs.logger.Error("redis get failed", zap.Error(err), zap.String("key", cacheKey))
		return nil, false, err
	}

	var result models.ProcessedResult
	if err := json.Unmarshal(val, &result); err != nil {
		rcs.logger.Error("cached entry is not valid json", zap.Error(err), zap.String("key", cacheKey))
		return nil, false, err
	}

	rcs.hits.Add(1)
	rcs.logger.Debug("redis cache hit", zap.String("key", key))
	return &result, true, nil
}

// Set stores a result with the service TTL
func (rcs *RedisCacheService) Set(ctx context.Context, key string, result *models.ProcessedResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := rcs.client.Set(ctx, rcs.prefix+key, data, rcs.ttl).Err(); err != nil {
		rcs.logger.Error("redis set failed", zap.Error(err), zap.String("key", key))
		return err
	}
	return nil
}

func (rcs *RedisCacheService) Delete(ctx context.Context, key string) error {
	return rcs.client.Del(ctx, rcs.prefix+key).Err()
}

// scanKeys walks every key under the service prefix
func (rcs *RedisCacheService) scanKeys(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := rcs.client.Scan(ctx, cursor, rcs.prefix+"*", redisScanCount).Result()
		if err != nil {
			return fmt.Errorf("scan keys: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Clear deletes every key under the service prefix
func (rcs *RedisCacheService) Clear(ctx context.Context) error {
	deleted := 0
	err := rcs.scanKeys(ctx, func(keys []string) error {
		deleted += len(keys)
		return rcs.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return err
	}
	rcs.logger.Info("redis cache cleared", zap.Int("keys_deleted", deleted))
	return nil
}

func (rcs *RedisCacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	var items int64
	err := rcs.scanKeys(ctx, func(keys []string) error {
		items += int64(len(keys))
		return nil
	})
	if err != nil {
		rcs.logger.Warn("cannot count redis keys", zap.Error(err))
	}
	return newCacheStats("redis", rcs.hits.Load(), rcs.misses.Load(), items), nil
}

func (rcs *RedisCacheService) Exists(ctx context.Context, key string) (bool, error) {
	n, err := rcs.client.Exists(ctx, rcs.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (rcs *RedisCacheService) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	return rcs.client.TTL(ctx, rcs.prefix+key).Result()
}

func (rcs *RedisCacheService) Close() error {
	return rcs.client.Close()
}

// SetTTL changes the TTL applied to later writes
func (rcs *RedisCacheService) SetTTL(ttl time.Duration) {
	rcs.ttl = ttl
}
