package quotes

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BytebleCode/Investment-Platform/pkg/events"
)

func TestStreamCache_Handle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	cache := NewStreamCache(time.Minute)
	cache.now = func() time.Time { return now }

	ev := events.NewEvent(events.EventTypePriceUpdate, "feed", events.PriceUpdatePayload{
		Symbol: "AAPL", LastPrice: "176.20", Timestamp: now.Add(-10 * time.Second),
	})
	require.NoError(t, cache.Handle(ev))

	p, err := cache.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "176.2", p.String())

	// An older update does not replace a newer one.
	require.NoError(t, cache.Handle(events.NewEvent(events.EventTypePriceUpdate, "feed", events.PriceUpdatePayload{
		Symbol: "AAPL", LastPrice: "170.00", Timestamp: now.Add(-30 * time.Second),
	})))
	p, _ = cache.Quote(ctx, "AAPL")
	assert.Equal(t, "176.2", p.String())

	cache.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = cache.Quote(ctx, "AAPL")
	assert.True(t, IsUnavailable(err), "stale prices are not served")
}

func TestStreamCache_HandleDecodedJSON(t *testing.T) {
	cache := NewStreamCache(0)

	raw, err := json.Marshal(events.NewEvent(events.EventTypePriceUpdate, "feed", events.PriceUpdatePayload{
		Symbol: "KO", LastPrice: "60.10", Timestamp: time.Now().UTC(),
	}))
	require.NoError(t, err)
	var ev events.Event
	require.NoError(t, json.Unmarshal(raw, &ev))

	require.NoError(t, cache.Handle(&ev))
	p, err := cache.Quote(context.Background(), "KO")
	require.NoError(t, err)
	assert.Equal(t, "60.1", p.String())
}

func TestStreamCache_HandleRejectsBadPrice(t *testing.T) {
	cache := NewStreamCache(0)

	err := cache.Handle(events.NewEvent(events.EventTypePriceUpdate, "feed", events.PriceUpdatePayload{Symbol: "KO", LastPrice: "abc"}))
	assert.Error(t, err)

	assert.NoError(t, cache.Handle(events.NewEvent(events.EventTypeTradeExecuted, "feed", nil)), "other event types are ignored")
}

func TestFeed_PublishOnce(t *testing.T) {
	rec := events.NewRecorder(0)
	src := NewStatic(map[string]decimal.Decimal{"AAPL": d("175"), "KO": d("60")})
	feed := NewFeed(src, rec, []string{"AAPL", "KO", "PG"}, time.Second, "portfolio-engine")

	feed.PublishOnce(context.Background())

	published := rec.Events(events.TopicPriceUpdate)
	require.Len(t, published, 2)
	assert.Equal(t, "AAPL", published[0].Event.Metadata[events.MetadataPartitionKey])

	cache := NewStreamCache(time.Minute)
	for _, p := range published {
		require.NoError(t, cache.Handle(p.Event))
	}
	p, err := cache.Quote(context.Background(), "KO")
	require.NoError(t, err)
	assert.Equal(t, "60", p.String())
}
