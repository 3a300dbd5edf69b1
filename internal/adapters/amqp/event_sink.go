// Package amqp publishes session audit events to a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
	"github.com/target/cop-agent/internal/ports"
)

var _ ports.SessionEventSink = (*EventSink)(nil)

// DefaultExchange receives session events when no exchange is configured.
const DefaultExchange = "cop.session"

// Channel is the subset of *amqp.Channel used by EventSink.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// EventSink implements ports.SessionEventSink.
// Events are routed as "session.<kind>".
type EventSink struct {
	mu       sync.Mutex
	ch       Channel
	conn     *amqp.Connection
	exchange string
}

// Dial connects to url, declares a durable topic exchange and returns a sink publishing to it.
func Dial(url, exchange string) (*EventSink, error) {
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	s := NewEventSink(ch, exchange)
	s.conn = conn
	return s, nil
}

// NewEventSink publishes through an already open channel.
func NewEventSink(ch Channel, exchange string) *EventSink {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &EventSink{ch: ch, exchange: exchange}
}

// RoutingKey returns the routing key for an event kind.
func RoutingKey(kind domainauth.SessionEventKind) string {
	return "session." + string(kind)
}

// Publish sends ev as a persistent JSON message.
func (s *EventSink) Publish(ctx context.Context, ev domainauth.SessionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing.
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.ch.PublishWithContext(ctx,
		s.exchange,          // exchange
		RoutingKey(ev.Kind), // routing key
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Timestamp:    ev.OccurredAt,
			Type:         string(ev.Kind),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// Close closes the channel and, when the sink owns it, the connection.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}
