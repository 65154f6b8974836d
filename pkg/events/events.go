package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope written to every topic. EventType carries a
// version suffix; a breaking payload change gets a new version rather than
// a new shape under the old one.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	OccurredAt    time.Time         `json:"occurred_at"`
	CorrelationID string            `json:"correlation_id,omitempty"` // trace or request id
	Source        string            `json:"source"`
	Payload       any               `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func NewEvent(eventType, source string, payload any) *Event {
	return &Event{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Source:     source,
		Payload:    payload,
	}
}

func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string, 1)
	}
	e.Metadata[key] = value
	return e
}

// Topics are named portfolio.<domain>.<action>.
const (
	TopicTradeExecuted        = "portfolio.trades.executed"        // TradeExecutedPayload
	TopicAccountReset         = "portfolio.accounts.reset"         // AccountResetPayload
	TopicStrategySwitched     = "portfolio.strategies.switched"    // StrategySwitchedPayload
	TopicCustomizationUpdated = "portfolio.customizations.updated" // CustomizationUpdatedPayload
	TopicPriceUpdate          = "portfolio.prices.update"          // PriceUpdatePayload
)

var AllTopics = []string{
	TopicTradeExecuted,
	TopicAccountReset,
	TopicStrategySwitched,
	TopicCustomizationUpdated,
	TopicPriceUpdate,
}

const (
	EventTypeTradeExecuted        = "trade.executed.v1"
	EventTypeAccountReset         = "account.reset.v1"
	EventTypeStrategySwitched     = "strategy.switched.v1"
	EventTypeCustomizationUpdated = "customization.updated.v1"
	EventTypePriceUpdate          = "price.update.v1"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}

// Subscriber delivers events from one topic to handler until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler func(*Event) error) error
	Close() error
}

// Published is one event captured by a Recorder.
type Published struct {
	Topic string
	Event *Event
}

// Recorder is an in-process Publisher that keeps every event. The server
// uses it when Kafka is not configured.
type Recorder struct {
	mu     sync.Mutex
	events []Published
	limit  int
}

// NewRecorder keeps at most limit events; older ones are dropped. A limit
// of zero keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Publish(ctx context.Context, topic string, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, Published{Topic: topic, Event: event})
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
	return nil
}

// Events returns a copy of the captured events, optionally filtered by topic.
func (r *Recorder) Events(topic string) []Published {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Published, 0, len(r.events))
	for _, p := range r.events {
		if topic == "" || p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (r *Recorder) Close() error {
	return nil
}
