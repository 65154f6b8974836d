package quotes

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	*Static
	calls int
}

func (c *countingSource) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	c.calls++
	return c.Static.Quote(ctx, symbol)
}

func newCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *countingSource, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	src := &countingSource{Static: NewStatic(map[string]decimal.Decimal{"AAPL": d("175.50")})}
	return mr, src, NewRedisCache(client, src, ttl)
}

func TestRedisCache_HitAndExpiry(t *testing.T) {
	ctx := context.Background()
	mr, src, cache := newCache(t, 15*time.Second)

	for i := 0; i < 3; i++ {
		p, err := cache.Quote(ctx, "AAPL")
		require.NoError(t, err)
		assert.Equal(t, "175.5", p.String())
	}
	assert.Equal(t, 1, src.calls)

	stored, err := mr.Get(quoteKey("AAPL"))
	require.NoError(t, err)
	assert.Equal(t, "175.5", stored)

	mr.FastForward(16 * time.Second)
	_, err = cache.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestRedisCache_UnavailableIsNotCached(t *testing.T) {
	ctx := context.Background()
	mr, src, cache := newCache(t, time.Minute)

	_, err := cache.Quote(ctx, "KO")
	assert.True(t, IsUnavailable(err))
	assert.False(t, mr.Exists(quoteKey("KO")))

	_, _ = cache.Quote(ctx, "KO")
	assert.Equal(t, 2, src.calls)
}

func TestRedisCache_Put(t *testing.T) {
	ctx := context.Background()
	_, src, cache := newCache(t, time.Minute)

	require.NoError(t, cache.Put(ctx, "KO", d("61.25")))
	p, err := cache.Quote(ctx, "KO")
	require.NoError(t, err)
	assert.Equal(t, "61.25", p.String())
	assert.Zero(t, src.calls)
}

func TestRedisCache_RedisDown(t *testing.T) {
	mr, src, cache := newCache(t, time.Minute)
	mr.Close()

	p, err := cache.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "175.5", p.String())
	assert.Equal(t, 1, src.calls)
}

func TestRedisCache_Batch(t *testing.T) {
	ctx := context.Background()
	mr, src, cache := newCache(t, time.Minute)
	src.Set("KO", d("60"))
	require.NoError(t, cache.Put(ctx, "MSFT", d("380")))

	prices, err := FetchAll(ctx, cache, []string{"MSFT", "AAPL", "KO", "PG"})
	require.NoError(t, err)
	assert.Len(t, prices, 3)
	assert.Equal(t, "380", prices["MSFT"].String())
	assert.Equal(t, "175.5", prices["AAPL"].String())
	assert.Equal(t, 3, src.calls, "only the misses reach the source")

	stored, err := mr.Get(quoteKey("KO"))
	require.NoError(t, err)
	assert.Equal(t, "60", stored)
	assert.False(t, mr.Exists(quoteKey("PG")))

	_, err = FetchAll(ctx, cache, []string{"MSFT", "AAPL", "KO"})
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestRedisCache_BatchRedisDown(t *testing.T) {
	mr, src, cache := newCache(t, time.Minute)
	mr.Close()

	prices, err := cache.Quotes(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, "175.5", prices["AAPL"].String())
	assert.Equal(t, 1, src.calls)
}
