package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/medrex/rxledger/pkg/types"
)

// Channel is the subset of *amqp.Channel used by AMQPSink
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes each audit event as a persistent JSON message on a
// durable queue
type AMQPSink struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    Channel
	queue string
}

// DialAMQPSink connects to the broker and declares queue
func DialAMQPSink(url, queue string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: queue declare failed: %w", err)
	}

	return &AMQPSink{conn: conn, ch: ch, queue: queue}, nil
}

// NewAMQPSink wraps an already configured channel
func NewAMQPSink(ch Channel, queue string) *AMQPSink {
	return &AMQPSink{ch: ch, queue: queue}
}

// Name implements Sink
func (s *AMQPSink) Name() string { return "amqp" }

// Write implements Sink. Messages carry the event id so consumers can
// discard redeliveries.
func (s *AMQPSink) Write(ctx context.Context, events []types.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("rabbitmq: marshal event failed: %w", err)
		}

		pub := amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID,
			Type:         string(e.Name),
			Timestamp:    e.Timestamp.UTC().Truncate(time.Second),
			Body:         body,
		}

		if err := s.ch.PublishWithContext(ctx, "", s.queue, false, false, pub); err != nil {
			return fmt.Errorf("rabbitmq: publish failed: %w", err)
		}
	}
	return nil
}

// Ping reports whether the broker connection is still open
func (s *AMQPSink) Ping(_ context.Context) error {
	if s.conn != nil && s.conn.IsClosed() {
		return fmt.Errorf("rabbitmq: connection closed")
	}
	return nil
}

// Close closes the channel and connection
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
