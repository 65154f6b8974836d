package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BytebleCode/Investment-Platform/pkg/logger"
)

const customizationKeyPrefix = "portfolio:customization:"

// RedisCache is a read-through cache in front of another Store. Writes go
// to the backing store first and then drop the cached entry.
type RedisCache struct {
	client *redis.Client
	next   Store
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, next Store, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, next: next, ttl: ttl}
}

type cachedCustomization struct {
	Found bool          `json:"found"`
	Value Customization `json:"value"`
}

func customizationKey(accountID, strategyID string) string {
	return customizationKeyPrefix + accountID + ":" + strategyID
}

func (r *RedisCache) Get(ctx context.Context, accountID, strategyID string) (Customization, bool, error) {
	key := customizationKey(accountID, strategyID)

	data, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var cached cachedCustomization
		if jsonErr := json.Unmarshal([]byte(data), &cached); jsonErr == nil {
			return cached.Value, cached.Found, nil
		}
	case !errors.Is(err, redis.Nil):
		logger.Warn().Err(err).Str("key", key).Msg("customization cache read failed")
	}

	c, found, err := r.next.Get(ctx, accountID, strategyID)
	if err != nil {
		return Customization{}, false, err
	}

	payload, err := json.Marshal(cachedCustomization{Found: found, Value: c})
	if err == nil {
		if setErr := r.client.Set(ctx, key, payload, r.ttl).Err(); setErr != nil {
			logger.Warn().Err(setErr).Str("key", key).Msg("customization cache write failed")
		}
	}
	return c, found, nil
}

func (r *RedisCache) Put(ctx context.Context, accountID, strategyID string, c Customization) error {
	if err := r.next.Put(ctx, accountID, strategyID, c); err != nil {
		return err
	}
	if err := r.client.Del(ctx, customizationKey(accountID, strategyID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate customization cache: %w", err)
	}
	return nil
}

func (r *RedisCache) List(ctx context.Context, accountID string) (map[string]Customization, error) {
	return r.next.List(ctx, accountID)
}
