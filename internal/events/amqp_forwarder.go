package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQPChannel is the subset of *amqp.Channel the forwarder needs.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPForwarder mirrors bus events onto a topic exchange. The event type is
// the routing key.
type AMQPForwarder struct {
	conn     *amqp.Connection
	ch       AMQPChannel
	exchange string
	timeout  time.Duration
	logger   *zerolog.Logger
}

// DialAMQPForwarder connects to the broker and declares a durable topic exchange.
func DialAMQPForwarder(url, exchange string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	f, err := NewAMQPForwarder(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	f.conn = conn
	return f, nil
}

func NewAMQPForwarder(ch AMQPChannel, exchange string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPForwarder{ch: ch, exchange: exchange, timeout: 5 * time.Second, logger: logger}, nil
}

// Attach subscribes the forwarder to eventTypes, or to every type when empty.
func (f *AMQPForwarder) Attach(bus *EventBus, eventTypes []string) {
	if len(eventTypes) == 0 {
		eventTypes = AllTypes
	}
	for _, t := range eventTypes {
		bus.Subscribe(t, f.Forward)
	}
}

func (f *AMQPForwarder) Forward(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	err := f.ch.PublishWithContext(ctx, f.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.CreatedAt,
		Type:         event.Type,
		Body:         event.Payload,
	})
	if err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Msg("Failed to forward event to broker")
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func (f *AMQPForwarder) Close() error {
	if f.ch != nil {
		_ = f.ch.Close()
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
