// Package cache provides an optional Redis-backed JSON cache shared between
// server instances. A disabled cache is a valid value: every Get misses and
// every Set is a no-op.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or the cache is disabled.
var ErrMiss = errors.New("cache miss")

type Cache struct {
	client    *redis.Client
	keyPrefix string
}

// New connects to redisURL. An empty URL yields a disabled cache.
func New(ctx context.Context, redisURL, keyPrefix string) (*Cache, error) {
	if keyPrefix == "" {
		keyPrefix = "claimsdb"
	}
	if redisURL == "" {
		return &Cache{keyPrefix: keyPrefix}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &Cache{client: client, keyPrefix: keyPrefix}, nil
}

// Disabled returns a cache that never stores anything.
func Disabled() *Cache { return &Cache{keyPrefix: "claimsdb"} }

func (c *Cache) Enabled() bool { return c != nil && c.client != nil }

func (c *Cache) Close() error {
	if c.Enabled() {
		return c.client.Close()
	}
	return nil
}

// Key joins parts under the cache prefix.
func (c *Cache) Key(parts ...string) string {
	return c.keyPrefix + ":" + strings.Join(parts, ":")
}

// Get decodes the JSON value at key into dest.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if !c.Enabled() {
		return ErrMiss
	}
	data, err := c.client.Get(ctx, c.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	return json.Unmarshal(data, dest)
}

// Set stores value as JSON with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.Key(key), data, ttl).Err()
}

// Delete removes keys; used to invalidate a vocabulary after it changes.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Key(k)
	}
	return c.client.Del(ctx, full...).Err()
}
