// Package redis caches extracted page metadata in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
	"github.com/JakeFAU/bookmarks/internal/hash/sha256"
)

// KeyPrefix namespaces metadata entries.
const KeyPrefix = "meta:"

// DefaultTTL applies when Options.TTL is zero.
const DefaultTTL = time.Hour

// Options defines the Redis connection and entry lifetime.
type Options struct {
	Addr        string
	Password    string
	DB          int
	TTL         time.Duration
	DialTimeout time.Duration
}

type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Cache implements bookmark.MetadataCache.
type Cache struct {
	client client
	ttl    time.Duration
}

// Dial connects to Redis and verifies the connection with a PING.
func Dial(ctx context.Context, opts Options) (*Cache, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: dialTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis unavailable at %s: %w", opts.Addr, err)
	}
	return newCache(rdb, opts.TTL), nil
}

func newCache(c client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: c, ttl: ttl}
}

// CacheKey returns the Redis key for a URL.
func CacheKey(rawURL string) string {
	return sha256.Key(KeyPrefix, rawURL)
}

// Get returns the cached metadata for rawURL. A miss is (zero, false, nil).
func (c *Cache) Get(ctx context.Context, rawURL string) (bookmark.Metadata, bool, error) {
	raw, err := c.client.Get(ctx, CacheKey(rawURL)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return bookmark.Metadata{}, false, nil
		}
		return bookmark.Metadata{}, false, fmt.Errorf("failed to get cached metadata: %w", err)
	}
	var meta bookmark.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return bookmark.Metadata{}, false, fmt.Errorf("decode cached metadata: %w", err)
	}
	return meta, true, nil
}

// Set stores metadata for rawURL with the configured TTL.
func (c *Cache) Set(ctx context.Context, rawURL string, meta bookmark.Metadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := c.client.Set(ctx, CacheKey(rawURL), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache metadata: %w", err)
	}
	return nil
}

// Ping checks connectivity for readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
