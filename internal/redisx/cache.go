package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache adapts a redis client to the gateway's read-cache surface.
type Cache struct {
	R *redis.Client
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.R.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *Cache) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	return c.R.Set(ctx, key, val, ttl).Err()
}

func (c *Cache) Incr(ctx context.Context, key string) (int64, error) {
	return c.R.Incr(ctx, key).Result()
}
