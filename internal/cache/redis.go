// Package cache provides the Redis access layer: per-IP rate limiting and
// the classification result cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Pool sizing. Each API replica holds one blocking XREADGROUP connection for
// the sightings worker on top of request traffic.
const (
	poolSize        = 16
	minIdleConns    = 2
	poolTimeout     = 3 * time.Second
	connMaxIdleTime = 5 * time.Minute
	dialTimeout     = 3 * time.Second
	writeTimeout    = 2 * time.Second
)

// Cache wraps the shared Redis client.
type Cache struct {
	client *redis.Client
}

// New parses redisURL, applies pool settings and verifies the server answers.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	applyPoolDefaults(opt)

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{client: client}, nil
}

// applyPoolDefaults fills settings the URL left unset.
func applyPoolDefaults(opt *redis.Options) {
	if opt.PoolSize == 0 {
		opt.PoolSize = poolSize
	}
	if opt.MinIdleConns == 0 {
		opt.MinIdleConns = minIdleConns
	}
	if opt.PoolTimeout == 0 {
		opt.PoolTimeout = poolTimeout
	}
	if opt.ConnMaxIdleTime == 0 {
		opt.ConnMaxIdleTime = connMaxIdleTime
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = dialTimeout
	}
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = writeTimeout
	}
}

// NewWithClient wraps an existing client. Tests use it.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Ping satisfies handler.HealthChecker.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the raw client for the stream publisher and worker.
func (c *Cache) Client() *redis.Client {
	return c.client
}
