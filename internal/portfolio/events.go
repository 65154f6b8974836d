package portfolio

import (
	"context"

	"github.com/BytebleCode/Investment-Platform/internal/executor"
	"github.com/BytebleCode/Investment-Platform/pkg/events"
	"github.com/BytebleCode/Investment-Platform/pkg/logger"
	"github.com/BytebleCode/Investment-Platform/pkg/telemetry"
)

func (s *Service) tradeExecuted(ctx context.Context, out *executor.Result, reason string) {
	t := out.Trade
	s.publish(ctx, events.TopicTradeExecuted, events.EventTypeTradeExecuted, t.AccountID, events.TradeExecutedPayload{
		TradeID:    t.ID,
		AccountID:  t.AccountID,
		Side:       string(t.Type),
		Symbol:     t.Symbol,
		Quantity:   t.Quantity,
		Price:      t.Price.String(),
		Total:      t.Total.StringFixed(2),
		Fees:       t.Fees.StringFixed(2),
		Strategy:   t.Strategy,
		Source:     string(t.Source),
		Reason:     reason,
		CashAfter:  out.Snapshot.Account.Cash.StringFixed(2),
		Version:    out.Snapshot.Account.Version,
		ExecutedAt: t.Timestamp,
	})
}

// publish never fails the caller; the ledger is the source of truth.
func (s *Service) publish(ctx context.Context, topic, eventType, accountID string, payload any) {
	event := events.NewEvent(eventType, s.cfg.Service, payload).
		WithMetadata(events.MetadataPartitionKey, accountID)
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		event = event.WithCorrelationID(traceID)
	}

	if err := s.pub.Publish(ctx, topic, event); err != nil {
		log := logger.ForAccount(ctx, accountID)
		log.Error().Err(err).Str("topic", topic).Str("event_type", eventType).Msg("failed to publish event")
	}
}
