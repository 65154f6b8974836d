package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BytebleCode/Investment-Platform/pkg/events"
	"github.com/BytebleCode/Investment-Platform/pkg/logger"
	"github.com/BytebleCode/Investment-Platform/pkg/metrics"
)

type streamed struct {
	price decimal.Decimal
	at    time.Time
}

// StreamCache serves the latest price seen on the price update topic.
// Prices older than maxAge are reported unavailable.
type StreamCache struct {
	mu     sync.RWMutex
	prices map[string]streamed
	maxAge time.Duration
	now    func() time.Time
}

func NewStreamCache(maxAge time.Duration) *StreamCache {
	return &StreamCache{
		prices: make(map[string]streamed),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Subscribe feeds the cache from the price update topic until ctx is done.
func (s *StreamCache) Subscribe(ctx context.Context, sub events.Subscriber) error {
	return sub.Subscribe(ctx, events.TopicPriceUpdate, s.Handle)
}

// Handle applies one price.update event.
func (s *StreamCache) Handle(e *events.Event) error {
	if e.EventType != events.EventTypePriceUpdate {
		return nil
	}

	var p events.PriceUpdatePayload
	switch v := e.Payload.(type) {
	case events.PriceUpdatePayload:
		p = v
	case *events.PriceUpdatePayload:
		p = *v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode price payload: %w", err)
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("failed to decode price payload: %w", err)
		}
	}

	price, err := decimal.NewFromString(p.LastPrice)
	if err != nil || !price.IsPositive() {
		return fmt.Errorf("invalid price %q for %s", p.LastPrice, p.Symbol)
	}
	at := p.Timestamp
	if at.IsZero() {
		at = e.OccurredAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.prices[p.Symbol]; ok && cur.at.After(at) {
		return nil
	}
	s.prices[p.Symbol] = streamed{price: price, at: at}
	return nil
}

func (s *StreamCache) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.prices[symbol]
	if !ok || (s.maxAge > 0 && s.now().Sub(q.at) > s.maxAge) {
		metrics.RecordQuoteLookup("stream", "unavailable")
		return decimal.Zero, Unavailable(symbol)
	}
	metrics.RecordQuoteLookup("stream", "ok")
	return q.price, nil
}

// Feed publishes a price update for each symbol every interval, reading
// prices from src. It runs until ctx is done.
type Feed struct {
	src      Source
	pub      events.Publisher
	symbols  []string
	interval time.Duration
	service  string
}

func NewFeed(src Source, pub events.Publisher, symbols []string, interval time.Duration, service string) *Feed {
	return &Feed{src: src, pub: pub, symbols: symbols, interval: interval, service: service}
}

func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		f.PublishOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PublishOnce prices and publishes every symbol once.
func (f *Feed) PublishOnce(ctx context.Context) {
	for _, sym := range f.symbols {
		p, err := f.src.Quote(ctx, sym)
		if err != nil {
			logger.Debug().Err(err).Str("symbol", sym).Msg("price feed skipped symbol")
			continue
		}
		ev := events.NewEvent(events.EventTypePriceUpdate, f.service, events.PriceUpdatePayload{
			Symbol:    sym,
			LastPrice: p.String(),
			Timestamp: time.Now().UTC(),
		}).WithMetadata(events.MetadataPartitionKey, sym)
		if err := f.pub.Publish(ctx, events.TopicPriceUpdate, ev); err != nil {
			logger.Warn().Err(err).Str("symbol", sym).Msg("failed to publish price update")
		}
	}
}
