package cache

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/communityconnect/connect/backend/go-services/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type stats struct {
	Total int64            `json:"total"`
	By    map[string]int64 `json:"by"`
}

func TestCacheRoundTripAndExpiry(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	c := New(redis.NewClient(&redis.Options{Addr: m.Addr()}), "test:")
	ctx := context.Background()

	var got stats
	ok, err := c.Get(ctx, "admin-stats", &got)
	require.NoError(t, err)
	require.False(t, ok)

	want := stats{Total: 3, By: map[string]int64{"Open": 2, "Resolved": 1}}
	require.NoError(t, c.Set(ctx, "admin-stats", want, 30*time.Second))
	require.True(t, m.Exists("test:admin-stats"))

	ok, err = c.Get(ctx, "admin-stats", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)

	m.FastForward(31 * time.Second)
	ok, err = c.Get(ctx, "admin-stats", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheDropsCorruptEntries(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Set("cache:k", "{not json"))

	c := New(redis.NewClient(&redis.Options{Addr: m.Addr()}), "")
	var got stats
	ok, err := c.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, m.Exists("cache:k"))
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	require.Nil(t, New(nil, ""))
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", 1, time.Minute))
	var v int
	ok, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Ping(ctx))
}

func TestNewClient(t *testing.T) {
	require.Nil(t, NewClient(config.RedisConfig{}))
	c := NewClient(config.RedisConfig{Host: "localhost"})
	require.NotNil(t, c)
	require.Equal(t, "localhost:6379", c.Options().Addr)
}
