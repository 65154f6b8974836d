package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/BytebleCode/Investment-Platform/pkg/logger"
	"github.com/BytebleCode/Investment-Platform/pkg/metrics"
	"github.com/BytebleCode/Investment-Platform/pkg/telemetry"
)

// MetadataPartitionKey names the metadata entry used as the Kafka message
// key. Portfolio events set it to the account id so an account's events land
// on one partition in order.
const MetadataPartitionKey = "partition_key"

// KafkaPublisher writes every topic through one writer; the topic travels on
// each message.
type KafkaPublisher struct {
	writer  *kafka.Writer
	service string
}

func NewKafkaPublisher(brokers []string, service string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		service: service,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	msg, err := encode(topic, event)
	if err != nil {
		return err
	}

	ctx, span, headers := telemetry.PublishSpan(ctx, topic, event.EventType, string(msg.Key))
	defer span.End()
	msg.Headers = append(msg.Headers, headers...)
	telemetry.SetEventAttributes(ctx, event.EventID, len(msg.Value))

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("publish %s to %s: %w", event.EventType, topic, err)
	}
	metrics.RecordKafkaMessageProduced(p.service, topic)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// encode fills in a missing id or timestamp and builds the message.
func encode(topic string, event *Event) (kafka.Message, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", event.EventType, err)
	}

	key := event.Metadata[MetadataPartitionKey]
	if key == "" {
		key = event.EventID
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}, nil
}

func decode(msg kafka.Message) (*Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("decode message at %s/%d/%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}
	return &event, nil
}

// KafkaSubscriber runs one consumer-group reader per subscribed topic.
type KafkaSubscriber struct {
	brokers    []string
	groupID    string
	service    string
	retryDelay time.Duration

	mu      sync.Mutex
	readers []*kafka.Reader
}

func NewKafkaSubscriber(brokers []string, groupID, service string) *KafkaSubscriber {
	return &KafkaSubscriber{
		brokers:    brokers,
		groupID:    groupID,
		service:    service,
		retryDelay: time.Second,
	}
}

// Subscribe starts consuming topic in the background until ctx is done or
// the subscriber is closed. Handler errors are logged and the offset still
// advances.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, topic string, handler func(*Event) error) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.brokers,
		Topic:    topic,
		GroupID:  s.groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	s.mu.Lock()
	s.readers = append(s.readers, r)
	s.mu.Unlock()

	go s.consume(ctx, r, topic, handler)
	return nil
}

func (s *KafkaSubscriber) consume(ctx context.Context, r *kafka.Reader, topic string, handler func(*Event) error) {
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kafka.ErrGroupClosed) || errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn().Err(err).Str("topic", topic).Msg("kafka read failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
			continue
		}

		metrics.RecordKafkaMessageConsumed(s.service, topic, s.groupID)
		msgCtx, span := telemetry.ConsumeSpan(ctx, msg)
		s.handle(msgCtx, span, msg, handler)
		span.End()
	}
}

func (s *KafkaSubscriber) handle(ctx context.Context, span trace.Span, msg kafka.Message, handler func(*Event) error) {
	event, err := decode(msg)
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Msg("dropping undecodable event")
		return
	}

	telemetry.SetEventAttributes(ctx, event.EventID, len(msg.Value))
	span.SetAttributes(attribute.String("event.type", event.EventType))

	if err := handler(event); err != nil {
		span.RecordError(err)
		log := logger.WithContext(ctx)
		log.Warn().Err(err).
			Str("topic", msg.Topic).
			Str("event_id", event.EventID).
			Str("event_type", event.EventType).
			Msg("event handler failed")
	}
}

func (s *KafkaSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, r := range s.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.readers = nil
	return errors.Join(errs...)
}
