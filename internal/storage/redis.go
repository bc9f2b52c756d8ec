package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/procurelens/marketintel/config"
	"github.com/procurelens/marketintel/internal/research"
)

// Cache keeps the latest intelligence store per workspace in Redis so report
// reads skip Postgres, and hands out short-lived locks for the scheduler.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{client: client, ttl: 24 * time.Hour}, nil
}

func (c *Cache) Close() error { return c.client.Close() }

func storeKey(workspace string) string { return "marketintel:store:" + workspace }

// PutStore caches a workspace's intelligence store.
func (c *Cache) PutStore(ctx context.Context, store research.IntelligenceStore) error {
	payload, err := json.Marshal(store)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, storeKey(store.Workspace), payload, c.ttl).Err()
}

// GetStore returns the cached store for a workspace. The second return is
// false on a cache miss.
func (c *Cache) GetStore(ctx context.Context, workspace string) (research.IntelligenceStore, bool, error) {
	payload, err := c.client.Get(ctx, storeKey(workspace)).Bytes()
	if err == redis.Nil {
		return research.IntelligenceStore{}, false, nil
	}
	if err != nil {
		return research.IntelligenceStore{}, false, err
	}
	var store research.IntelligenceStore
	if err := json.Unmarshal(payload, &store); err != nil {
		return research.IntelligenceStore{}, false, err
	}
	return store, true, nil
}

// AcquireLock takes a best-effort distributed lock. Returns true when this
// process holds the lock until ttl expires.
func (c *Cache) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, "marketintel:lock:"+name, 1, ttl).Result()
}

// ReleaseLock drops a lock early.
func (c *Cache) ReleaseLock(ctx context.Context, name string) error {
	return c.client.Del(ctx, "marketintel:lock:"+name).Err()
}
