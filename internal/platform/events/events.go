// Package events publishes domain events to a message broker after the
// corresponding database write has committed. Publishing is best effort.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Type string

const (
	AppointmentBooked        Type = "appointment.booked"
	AppointmentStatusChanged Type = "appointment.status_changed"
	ReviewCreated            Type = "review.created"
	DoctorRatingUpdated      Type = "doctor.rating_updated"
)

// Event is the envelope written to the broker.
type Event struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

// New builds an event with a fresh id. payload is JSON-encoded.
func New(typ Type, aggregateID string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Event{
		ID:          uuid.New().String(),
		Type:        typ,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Payload:     raw,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Emitter wraps a Publisher for callers that must not fail when the broker
// does. Errors are logged and dropped.
type Emitter struct {
	pub    Publisher
	logger zerolog.Logger
}

func NewEmitter(pub Publisher, logger zerolog.Logger) *Emitter {
	return &Emitter{pub: pub, logger: logger.With().Str("component", "events").Logger()}
}

// Emit publishes an event and reports whether it reached the broker.
func (em *Emitter) Emit(ctx context.Context, typ Type, aggregateID string, payload interface{}) bool {
	if em == nil || em.pub == nil {
		return false
	}
	e, err := New(typ, aggregateID, payload)
	if err != nil {
		em.logger.Error().Err(err).Str("event_type", string(typ)).Msg("build event")
		return false
	}
	if err := em.pub.Publish(ctx, e); err != nil {
		em.logger.Warn().Err(err).
			Str("event_type", string(typ)).
			Str("event_id", e.ID).
			Str("aggregate_id", aggregateID).
			Msg("publish event")
		return false
	}
	return true
}

// Config selects and configures the broker.
type Config struct {
	Broker       string // "", "amqp" or "kafka"
	AMQPURL      string
	AMQPExchange string
	KafkaBrokers []string
	KafkaTopic   string
}

// NewPublisher returns the publisher for cfg.Broker. An empty broker logs
// events instead of sending them.
func NewPublisher(cfg Config, logger zerolog.Logger) (Publisher, error) {
	switch cfg.Broker {
	case "":
		return NewLogPublisher(logger), nil
	case "amqp":
		return NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unknown event broker %q", cfg.Broker)
	}
}

// Fanout publishes each event to every publisher. All are attempted; their
// errors are joined.
func Fanout(pubs ...Publisher) Publisher {
	return fanout(pubs)
}

type fanout []Publisher

func (f fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the log.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info().
		Str("event_id", e.ID).
		Str("event_type", string(e.Type)).
		Str("aggregate_id", e.AggregateID).
		RawJSON("payload", e.Payload).
		Msg("domain event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// MemoryPublisher keeps published events in memory. Test double.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (p *MemoryPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of the published events.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// OfType returns the published events with the given type.
func (p *MemoryPublisher) OfType(typ Type) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
