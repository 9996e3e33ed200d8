package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"shopping-assistant-pipeline/internal/pkg/logger"
)

// RedisCache shares cached summaries between processes. Failures are logged
// and reported as misses.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *logger.Logger
}

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration, log *logger.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: log,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	startTime := time.Now()

	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.LogService("redis", "cache_get", time.Since(startTime), map[string]any{"key": key}, err)
		}
		return nil, false
	}
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	startTime := time.Now()

	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		c.logger.LogService("redis", "cache_set", time.Since(startTime), map[string]any{"key": key}, err)
	}
}
