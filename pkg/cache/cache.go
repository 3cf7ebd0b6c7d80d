// Package cache memoizes allocation results in Redis. The engine itself is
// pure and cache-free; this wrapper exists so repeated simulations of the
// same scenario skip recomputation at the service boundary.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/traffic-allocator/pkg/allocation"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// scenarioKey is the canonical cache identity of an allocation request.
// Provider order is preserved: it is part of the deterministic input.
type scenarioKey struct {
	StrategyID     string   `json:"strategy_id"`
	ProviderIDs    []string `json:"provider_ids"`
	FailoverID     string   `json:"failover_id"`
	VolumeMillions float64  `json:"volume_millions"`
}

// Key derives a stable cache key for one allocation scenario.
func Key(strategyID string, providerIDs []string, failoverID string, volumeMillions float64) (string, error) {
	data, err := json.Marshal(scenarioKey{
		StrategyID:     strategyID,
		ProviderIDs:    providerIDs,
		FailoverID:     failoverID,
		VolumeMillions: volumeMillions,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "alloc:" + hex.EncodeToString(sum[:]), nil
}

func (c *Cache) Get(ctx context.Context, key string) (allocation.Result, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return allocation.Result{}, ErrCacheMiss
	}
	if err != nil {
		return allocation.Result{}, err
	}

	var res allocation.Result
	if err := json.Unmarshal(val, &res); err != nil {
		return allocation.Result{}, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return res, nil
}

func (c *Cache) Set(ctx context.Context, key string, res allocation.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

var ErrCacheMiss = &CacheError{Message: "cache miss"}

type CacheError struct {
	Message string
}

func (e *CacheError) Error() string {
	return e.Message
}
