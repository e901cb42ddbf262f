package store

import (
	"context"
	"errors"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/types"
)

// RedisStatsCache holds the last StatsSnapshot read from the database for a
// short TTL so admin dashboards do not hit Postgres on every refresh.
type RedisStatsCache struct {
	client *RedisClient
	ttl    time.Duration
}

var _ types.StatsCache = (*RedisStatsCache)(nil)

func NewRedisStatsCache(redisClient *RedisClient, ttl time.Duration) *RedisStatsCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisStatsCache{client: redisClient, ttl: ttl}
}

// GetStats returns (nil, nil) on a cache miss.
func (c *RedisStatsCache) GetStats(ctx context.Context) (*types.StatsSnapshot, error) {
	var snap types.StatsSnapshot
	if err := c.client.Get(ctx, c.client.generateKey("stats"), &snap); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (c *RedisStatsCache) SetStats(ctx context.Context, snap types.StatsSnapshot) error {
	return c.client.Set(ctx, c.client.generateKey("stats"), snap, c.ttl)
}
