package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusCache keeps the derived master-order status so list pages do not
// re-aggregate suborders on every request. The cache is advisory: a miss or a
// Redis outage falls back to deriving from the database.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusCache wraps a Redis client with the given entry TTL.
func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StatusCache{client: client, ttl: ttl}
}

func masterStatusKey(orderID string) string {
	return fmt.Sprintf("uds:order:%s:master_status", orderID)
}

// GetMasterStatus returns the cached derived status, or "" on a miss.
func (c *StatusCache) GetMasterStatus(ctx context.Context, orderID string) (string, error) {
	if c == nil || c.client == nil {
		return "", nil
	}
	val, err := c.client.Get(ctx, masterStatusKey(orderID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("platform/cache: get master status: %w", err)
	}
	return val, nil
}

// SetMasterStatus stores the derived status for the configured TTL.
func (c *StatusCache) SetMasterStatus(ctx context.Context, orderID, status string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Set(ctx, masterStatusKey(orderID), status, c.ttl).Err(); err != nil {
		return fmt.Errorf("platform/cache: set master status: %w", err)
	}
	return nil
}

// InvalidateMasterStatus drops the cached value after a suborder change.
func (c *StatusCache) InvalidateMasterStatus(ctx context.Context, orderID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, masterStatusKey(orderID)).Err(); err != nil {
		return fmt.Errorf("platform/cache: invalidate master status: %w", err)
	}
	return nil
}
