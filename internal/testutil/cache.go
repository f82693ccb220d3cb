package testutil

import (
	"context"
	"sync"
	"time"
)

// MemCache is an in-memory model.Cache. Expiry is ignored.
type MemCache struct {
	mu       sync.Mutex
	counters map[string]int64
	floats   map[string]float64
	claims   map[string]string
}

func NewMemCache() *MemCache {
	return &MemCache{
		counters: make(map[string]int64),
		floats:   make(map[string]float64),
		claims:   make(map[string]string),
	}
}

func (c *MemCache) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

func (c *MemCache) GetFloat(_ context.Context, key string) (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.floats[key]
	return v, ok, nil
}

func (c *MemCache) SetFloat(_ context.Context, key string, value float64, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.floats[key] = value
	return nil
}

func (c *MemCache) ClaimOnce(_ context.Context, key, owner string, _ time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if holder, ok := c.claims[key]; ok {
		return holder, nil
	}
	c.claims[key] = owner
	return owner, nil
}
