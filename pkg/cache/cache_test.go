package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Symbol string    `json:"symbol"`
	Values []float64 `json:"values"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", entry{Symbol: "AAPL", Values: []float64{1.5, 2}}, time.Minute))
	var got entry
	require.NoError(t, mc.Get(ctx, "a", &got))
	assert.Equal(t, entry{Symbol: "AAPL", Values: []float64{1.5, 2}}, got)

	require.NoError(t, mc.Set(ctx, "s", "plain", time.Minute))
	var s string
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "plain", s)

	require.NoError(t, mc.Delete(ctx, "a"))
	assert.ErrorIs(t, mc.Get(ctx, "a", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", 1, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "old", 1, time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "new", 2, time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "newest", 3, time.Minute))

	var v int
	assert.ErrorIs(t, mc.Get(ctx, "old", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "newest", &v))
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, err := mc.TryLock(ctx, "run", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = mc.TryLock(ctx, "run", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "run"))
	ok, err = mc.TryLock(ctx, "run", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLayeredCacheBackfillsMemory(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote)
	defer lc.Close()

	require.NoError(t, remote.Set(ctx, "k", entry{Symbol: "MSFT"}, time.Hour))
	var got entry
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, "MSFT", got.Symbol)
	assert.Equal(t, 1, lc.memCache.Len())

	require.NoError(t, remote.Delete(ctx, "k"))
	require.NoError(t, lc.Get(ctx, "k", &got), "served from L1")

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheFromClient(db, "fincast")

	mock.ExpectSet("fincast:forecast:AAPL", []byte(`{"symbol":"AAPL","values":[1]}`), time.Hour).SetVal("OK")
	require.NoError(t, rc.Set(ctx, "forecast:AAPL", entry{Symbol: "AAPL", Values: []float64{1}}, time.Hour))

	mock.ExpectGet("fincast:forecast:AAPL").SetVal(`{"symbol":"AAPL","values":[1]}`)
	var got entry
	require.NoError(t, rc.Get(ctx, "forecast:AAPL", &got))
	assert.Equal(t, []float64{1}, got.Values)

	mock.ExpectGet("fincast:forecast:NONE").RedisNil()
	assert.ErrorIs(t, rc.Get(ctx, "forecast:NONE", &got), ErrCacheMiss)

	mock.ExpectSetNX("fincast:lock:run", "locked", time.Minute).SetVal(true)
	ok, err := rc.TryLock(ctx, "lock:run", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectDel("fincast:lock:run").SetVal(1)
	require.NoError(t, rc.Unlock(ctx, "lock:run"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeySkipsEmptyParts(t *testing.T) {
	assert.Equal(t, "fincast:forecast:AAPL", Key("fincast:", "forecast", "AAPL"))
	assert.Equal(t, "forecast:AAPL", Key("", "forecast", ":AAPL"))
	assert.Equal(t, "", Key())
}

func TestRedisConfigAcceptsURL(t *testing.T) {
	cfg := defaultRedisConfig()
	WithRedisAddr("redis://:s3cret@cache.internal:6380/3")(&cfg)
	WithRedisPool(20, 0)(&cfg)

	opts, err := cfg.clientOptions()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "s3cret", opts.Password)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 2, opts.MinIdleConns)

	cfg = defaultRedisConfig()
	WithRedisAddr("redis://%zz")(&cfg)
	_, err = cfg.clientOptions()
	assert.Error(t, err)
}
