// Package cache keeps short-lived JSON values in Redis. A nil *Cache is a
// valid no-op cache that always misses.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/config"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
	prefix string
}

// NewClient returns a Redis client for cfg, or nil when no host is set.
func NewClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Host == "" {
		return nil
	}
	port := cfg.Port
	if port == "" {
		port = "6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// New wraps client. It returns nil when client is nil. Prefix may be empty.
func New(client *redis.Client, prefix string) *Cache {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = "cache:"
	}
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Get decodes the value stored under k into dst and reports whether it was
// found.
func (c *Cache) Get(ctx context.Context, k string, dst interface{}) (bool, error) {
	if c == nil {
		return false, nil
	}
	b, err := c.client.Get(ctx, c.key(k)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		// unreadable entries are dropped and treated as a miss
		_ = c.client.Del(ctx, c.key(k)).Err()
		return false, nil
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, k string, v interface{}, ttl time.Duration) error {
	if c == nil || ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(k), b, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, k string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, c.key(k)).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
