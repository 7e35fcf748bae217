package events

import (
	"context"
	"fmt"
	"time"

	"roomres/pkg/kafka"
	"roomres/pkg/middleware"
	"roomres/pkg/model"
)

const (
	SchemaVersion = "1"
	Source        = "bookings"
)

type Type string

const (
	BookingCreated Type = "booking.created"
	BookingUpdated Type = "booking.updated"
	BookingDeleted Type = "booking.deleted"
)

// Event is the payload published after a booking change is committed.
type Event struct {
	Type       Type          `json:"type"`
	Actor      string        `json:"actor"`
	OccurredAt time.Time     `json:"occurred_at"`
	Booking    model.Booking `json:"booking"`
	// Previous holds the booking as it was before an update.
	Previous *model.Booking `json:"previous,omitempty"`
}

func NewEvent(t Type, actor string, booking *model.Booking) Event {
	return Event{
		Type:       t,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
		Booking:    *booking,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type messageProducer interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	producer messageProducer
}

// NewKafkaPublisher publishes events keyed by their room slot so that every
// change to one room and date lands on the same partition in commit order.
func NewKafkaPublisher(producer messageProducer) Publisher {
	return &kafkaPublisher{producer: producer}
}

func (p *kafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := kafka.NewMessage().
		WithKey(event.Booking.SlotKey().String()).
		WithValue(event).
		WithEventID("").
		WithEventType(string(event.Type)).
		WithCorrelationID(middleware.RequestIDFromContext(ctx)).
		WithSchemaVersion(SchemaVersion).
		WithSource(Source).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", event.Type, err)
	}
	return p.producer.Publish(ctx, msg)
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}

// Noop discards events. It backs deployments without Kafka.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }
