package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

// Concrete AMQP connection-backed constructors.

type Config struct {
	URL         string
	Queue       string
	ConnTimeout time.Duration
}

func (c Config) queue() string {
	if c.Queue == "" {
		return DefaultQueue
	}

	return c.Queue
}

// session is one connection plus a channel with the queue declared.
type session struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dial(cfg Config) (*session, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-message-publisher"},
		Dial:       amqp.DefaultDial(cfg.ConnTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.queue(), true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, fmt.Errorf("rabbitmq declare %s: %w", cfg.queue(), err)
	}

	return &session{conn: conn, ch: ch}, nil
}

func (s *session) IsClosed() bool { return s.conn.IsClosed() || s.ch.IsClosed() }

func (s *session) Publish(ctx context.Context, m PubMsg) error {
	var h amqp.Table
	if len(m.Headers) > 0 {
		h = amqp.Table{}
		for k, v := range m.Headers {
			h[k] = v
		}
	}

	return s.ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Headers:      h,
			ContentType:  "application/json",
			MessageId:    m.MessageID,
			Timestamp:    time.Now(),
			Body:         m.Body,
		},
	)
}

func (s *session) Get(queue string, autoAck bool) (amqp.Delivery, bool, error) {
	return s.ch.Get(queue, autoAck)
}

func (s *session) Close() error {
	_ = s.ch.Close()
	return s.conn.Close()
}

// NewWithAMQPConn returns a destination that dials on first Send and redials
// after the connection drops, plus a cleanup.
func NewWithAMQPConn(cfg Config) (*Destination, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("rabbitmq url required: %w", berr.ErrConfiguration)
	}

	d := newDestination(cfg.Queue,
		func(context.Context) (Publisher, error) { return dial(cfg) },
		func(p Publisher) error {
			if s, ok := p.(*session); ok {
				return s.Close()
			}

			return nil
		},
	)

	return d, func() { _ = d.Close() }, nil
}
