package quotes

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/BytebleCode/Investment-Platform/pkg/logger"
	"github.com/BytebleCode/Investment-Platform/pkg/metrics"
)

const quoteKeyPrefix = "portfolio:quote:"

// RedisCache keeps prices from another source in redis for ttl. Unpriced
// symbols are not cached.
type RedisCache struct {
	client *redis.Client
	next   Source
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, next Source, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, next: next, ttl: ttl}
}

func quoteKey(symbol string) string {
	return quoteKeyPrefix + symbol
}

func (c *RedisCache) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := quoteKey(symbol)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if p, parseErr := decimal.NewFromString(cached); parseErr == nil {
			metrics.RecordQuoteLookup("redis", "hit")
			return p, nil
		}
	case !errors.Is(err, redis.Nil):
		logger.Warn().Err(err).Str("key", key).Msg("quote cache read failed")
	}
	metrics.RecordQuoteLookup("redis", "miss")

	p, err := c.next.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.client.Set(ctx, key, p.String(), c.ttl).Err(); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("quote cache write failed")
	}
	return p, nil
}

// Quotes reads every symbol with one MGET and refills the misses from the
// next source in a single pipeline.
func (c *RedisCache) Quotes(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = quoteKey(sym)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warn().Err(err).Int("keys", len(keys)).Msg("quote cache batch read failed")
		vals = make([]any, len(keys))
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		if p, err := decimal.NewFromString(raw); err == nil {
			out[symbols[i]] = p
		}
	}

	misses := missing(symbols, out)
	for range out {
		metrics.RecordQuoteLookup("redis", "hit")
	}
	for range misses {
		metrics.RecordQuoteLookup("redis", "miss")
	}
	if len(misses) == 0 {
		return out, nil
	}

	fresh, err := FetchAll(ctx, c.next, misses)
	if err != nil {
		return nil, err
	}
	pipe := c.client.Pipeline()
	for sym, p := range fresh {
		pipe.Set(ctx, quoteKey(sym), p.String(), c.ttl)
		out[sym] = p
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn().Err(err).Int("keys", len(fresh)).Msg("quote cache batch write failed")
	}
	return out, nil
}

// Put stores a price directly, e.g. from a price stream.
func (c *RedisCache) Put(ctx context.Context, symbol string, price decimal.Decimal) error {
	return c.client.Set(ctx, quoteKey(symbol), price.String(), c.ttl).Err()
}
