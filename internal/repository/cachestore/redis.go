package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/aiorch/internal/db"
	"github.com/kailas-cloud/aiorch/internal/domain"
)

// store is the consumer interface for cache entries (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Redis keeps cache entries as JSON strings expiring by TTL.
// Size-based eviction is left to the server's maxmemory policy.
type Redis struct {
	store store
}

// NewRedis creates a Redis-backed entry store.
func NewRedis(s store) *Redis {
	return &Redis{store: s}
}

// Get returns the entry for tier/key, or (nil, nil) when absent.
func (r *Redis) Get(ctx context.Context, tier domain.Tier, key string) (*domain.CacheEntry, error) {
	k := redisKey(tier, key)
	data, err := r.store.Get(ctx, k)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", k, err)
	}

	var e domain.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	return &e, nil
}

// Put writes e with its TTL. Entries without a TTL are refused.
func (r *Redis) Put(ctx context.Context, e domain.CacheEntry) error {
	if e.TTL <= 0 {
		return fmt.Errorf("cache entry %s:%s has no ttl", e.Tier, e.Key)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	k := redisKey(e.Tier, e.Key)
	if err := r.store.SetWithTTL(ctx, k, data, e.TTL); err != nil {
		return fmt.Errorf("set %s: %w", k, err)
	}
	return nil
}

func redisKey(tier domain.Tier, key string) string {
	return domain.KeyPrefix + "cache:" + entryKey(tier, key)
}
