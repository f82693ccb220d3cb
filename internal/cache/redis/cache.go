package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dtroode/rollcall-server/internal/model"
)

// Internal adapter interface to enable testing without a Redis server. *redis.Client satisfies it.
type redisAPI interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

var _ model.Cache = (*Cache)(nil)

// Cache implements model.Cache on Redis.
type Cache struct {
	api redisAPI
}

// NewCache creates a new Redis cache using a real *redis.Client instance.
func NewCache(client *redis.Client) *Cache {
	return &Cache{api: client}
}

// Incr increments key and gives it ttl unless it already expires.
func (c *Cache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.api.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	// NX keeps the window fixed from the first increment and repairs keys left without expiry.
	if err := c.api.ExpireNX(ctx, key, ttl).Err(); err != nil {
		return n, fmt.Errorf("failed to set counter expiry: %w", err)
	}
	return n, nil
}

// GetFloat reads a scalar. A missing key is not an error.
func (c *Cache) GetFloat(ctx context.Context, key string) (float64, bool, error) {
	v, err := c.api.Get(ctx, key).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get value: %w", err)
	}
	return v, true, nil
}

// SetFloat stores a scalar with ttl.
func (c *Cache) SetFloat(ctx context.Context, key string, value float64, ttl time.Duration) error {
	if err := c.api.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}
	return nil
}

// ClaimOnce stores owner under key when absent and returns whoever holds the key.
func (c *Cache) ClaimOnce(ctx context.Context, key, owner string, ttl time.Duration) (string, error) {
	set, err := c.api.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to claim key: %w", err)
	}
	if set {
		return owner, nil
	}

	holder, err := c.api.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; nobody else holds it.
		return owner, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read claim: %w", err)
	}
	return holder, nil
}
