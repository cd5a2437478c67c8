package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/florascope/florascope/internal/classifier"
)

const (
	resultKeyPrefix = "result:"
	noPlantValue    = "-"

	// DefaultResultTTL is the TTL for cached classifications.
	DefaultResultTTL = 24 * time.Hour

	// NoPlantTTL is the TTL for negative entries (no plant in the image).
	NoPlantTTL = 10 * time.Minute
)

// ResultCache stores classifications keyed by image digest so resubmitting
// the same photo skips the upstream call.
type ResultCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewResultCache creates a ResultCache. A non-positive ttl uses DefaultResultTTL.
func NewResultCache(c *Cache, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &ResultCache{cache: c, ttl: ttl}
}

// Get returns the cached result for digest. It returns ErrCacheMiss when
// nothing is stored and classifier.ErrNoPlantDetected for a negative entry.
func (r *ResultCache) Get(ctx context.Context, digest string) (*classifier.Result, error) {
	raw, err := r.cache.client.Get(ctx, resultKey(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	if string(raw) == noPlantValue {
		return nil, classifier.ErrNoPlantDetected
	}

	var result classifier.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		// Corrupt entry: drop it and treat as a miss.
		_ = r.cache.client.Del(ctx, resultKey(digest)).Err()
		return nil, ErrCacheMiss
	}
	return &result, nil
}

// Set stores a successful classification.
func (r *ResultCache) Set(ctx context.Context, digest string, result *classifier.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := r.cache.client.Set(ctx, resultKey(digest), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// SetNoPlant remembers that digest contains no plant.
func (r *ResultCache) SetNoPlant(ctx context.Context, digest string) error {
	if err := r.cache.client.Set(ctx, resultKey(digest), noPlantValue, NoPlantTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func resultKey(digest string) string {
	return resultKeyPrefix + digest
}
