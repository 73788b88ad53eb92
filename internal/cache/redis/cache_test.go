package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
)

type fakeClient struct {
	data    map[string]string
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	pingErr error
	closed  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.pingErr)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestCacheRoundTrip(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	cache := newCache(fc, 10*time.Minute)
	ctx := context.Background()
	meta := bookmark.Metadata{Title: "T", Image: "https://example.com/i.png", Description: "D"}

	_, ok, err := cache.Get(ctx, "https://example.com")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Set(ctx, "https://example.com", meta))
	require.Equal(t, 10*time.Minute, fc.ttls[CacheKey("https://example.com")])

	got, ok, err := cache.Get(ctx, "https://example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, meta, got)
}

func TestCacheKeyIsHashed(t *testing.T) {
	t.Parallel()

	key := CacheKey("https://example.com/a?b=c")
	require.Regexp(t, `^meta:[0-9a-f]{64}$`, key)
	require.Equal(t, key, CacheKey("https://example.com/a?b=c"))
}

func TestCacheDefaultTTL(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultTTL, newCache(newFakeClient(), 0).ttl)
}

func TestCacheErrors(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	cache := newCache(fc, time.Minute)
	ctx := context.Background()

	fc.getErr = errors.New("connection refused")
	_, _, err := cache.Get(ctx, "https://example.com")
	require.ErrorContains(t, err, "failed to get cached metadata")

	fc.getErr = nil
	fc.data[CacheKey("https://bad.example")] = "{not json"
	_, ok, err := cache.Get(ctx, "https://bad.example")
	require.Error(t, err)
	require.False(t, ok)

	fc.setErr = errors.New("READONLY")
	require.ErrorContains(t, cache.Set(ctx, "https://example.com", bookmark.Metadata{}), "failed to cache metadata")

	fc.pingErr = errors.New("down")
	require.Error(t, cache.Ping(ctx))

	require.NoError(t, cache.Close())
	require.True(t, fc.closed)
}

func TestDialRequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), Options{})
	require.Error(t, err)
}
