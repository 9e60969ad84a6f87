package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/jobsearch/internal/cache"
)

type key struct {
	Query    string
	Location string
}

func TestMemory_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := cache.NewMemory[key, int]().WithClock(func() time.Time { return now })

	require.NoError(t, c.Set(ctx, key{"go", "Denver"}, 7, time.Hour))

	v, ok, err := c.Get(ctx, key{"go", "Denver"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	now = now.Add(59 * time.Minute)
	_, ok, _ = c.Get(ctx, key{"go", "Denver"})
	assert.True(t, ok, "entry should still be valid inside the TTL window")

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, key{"go", "Denver"})
	assert.False(t, ok, "entry should expire exactly at the TTL")
	assert.Equal(t, 0, c.Len())
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := cache.NewMemory[string, string]().WithClock(func() time.Time { return now })

	require.NoError(t, c.Set(ctx, "Austin, TX", "hit", 0))
	now = now.Add(24 * 365 * time.Hour)

	v, ok, err := c.Get(ctx, "Austin, TX")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hit", v)
}

func TestMemory_StructKeysDoNotCollide(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory[key, string]()

	require.NoError(t, c.Set(ctx, key{"a_b", "c"}, "first", time.Hour))
	require.NoError(t, c.Set(ctx, key{"a", "b_c"}, "second", time.Hour))

	v, _, _ := c.Get(ctx, key{"a_b", "c"})
	assert.Equal(t, "first", v)
	v, _, _ = c.Get(ctx, key{"a", "b_c"})
	assert.Equal(t, "second", v)
}

// fakeRedis implements the two commands the cache uses.
type fakeRedis struct {
	redis.Cmdable
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, k string) *redis.StringCmd {
	v, ok := f.data[k]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, k string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[k] = string(v)
	case string:
		f.data[k] = v
	}
	f.ttls[k] = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestRedis_RoundTripAndMiss(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	c := cache.NewRedis[key, []string](rdb, "jobsearch:test:")

	_, ok, err := c.Get(ctx, key{"nurse", "Austin"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key{"nurse", "Austin"}, []string{"a", "b"}, time.Hour))

	v, ok, err := c.Get(ctx, key{"nurse", "Austin"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, v)

	for k, ttl := range rdb.ttls {
		assert.Contains(t, k, "jobsearch:test:")
		assert.Equal(t, time.Hour, ttl)
	}
}

func TestRedis_DelimiterCharactersKeepKeysDistinct(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	c := cache.NewRedis[key, string](rdb, "k:")

	require.NoError(t, c.Set(ctx, key{"a_b", "c"}, "first", 0))
	require.NoError(t, c.Set(ctx, key{"a", "b_c"}, "second", 0))

	assert.Len(t, rdb.data, 2)
	v, _, _ := c.Get(ctx, key{"a", "b_c"})
	assert.Equal(t, "second", v)
}
