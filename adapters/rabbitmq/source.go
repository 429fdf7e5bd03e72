package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/next-trace/scg-message-publisher/contract/consume"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

// Getter is the basic.get slice of an AMQP channel.
type Getter interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Close() error
}

// Source pulls up to batch messages per poll with manual acknowledgement.
// A failed handler nacks with requeue so the broker redelivers.
type Source struct {
	queue string
	batch int
	open  func(ctx context.Context) (Getter, error)
	g     Getter
}

var _ consume.Source = (*Source)(nil)

func NewSource(cfg Config, batch int) (*Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq url required: %w", berr.ErrConfiguration)
	}

	return NewSourceWith(cfg.queue(), batch, func(context.Context) (Getter, error) { return dial(cfg) }), nil
}

// NewSourceWith builds a source over a custom channel factory.
func NewSourceWith(queue string, batch int, open func(ctx context.Context) (Getter, error)) *Source {
	if batch <= 0 {
		batch = 10
	}

	return &Source{queue: queue, batch: batch, open: open}
}

func (s *Source) Name() string { return "sqs" }

func (s *Source) Open(ctx context.Context) error {
	if s.g != nil {
		return nil
	}

	g, err := s.open(ctx)
	if err != nil {
		return errors.Join(berr.ErrConnection, err)
	}

	s.g = g

	return nil
}

func (s *Source) Poll(ctx context.Context) ([]consume.Delivery, error) {
	if s.g == nil {
		return nil, fmt.Errorf("rabbitmq poll: source not open: %w", berr.ErrReceiveFailed)
	}

	var out []consume.Delivery

	for len(out) < s.batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d, ok, err := s.g.Get(s.queue, false)
		if err != nil {
			if len(out) > 0 {
				break
			}

			return nil, fmt.Errorf("rabbitmq get %s: %w", s.queue, errors.Join(berr.ErrReceiveFailed, err))
		}

		if !ok {
			break
		}

		out = append(out, delivery(d))
	}

	return out, nil
}

func delivery(d amqp.Delivery) consume.Delivery {
	attrs := make(map[string]string, len(d.Headers)+1)
	for k, v := range d.Headers {
		attrs[k] = fmt.Sprint(v)
	}

	if d.Redelivered {
		attrs["redelivered"] = "true"
	}

	return consume.Delivery{
		ID:         d.MessageId,
		Body:       d.Body,
		Attributes: attrs,
		Ack: func(context.Context) error {
			if err := d.Ack(false); err != nil {
				return fmt.Errorf("rabbitmq ack: %w", errors.Join(berr.ErrAckFailed, err))
			}

			return nil
		},
		Nack: func(context.Context) error {
			if err := d.Nack(false, true); err != nil {
				return fmt.Errorf("rabbitmq nack: %w", errors.Join(berr.ErrAckFailed, err))
			}

			return nil
		},
		Reject: func(context.Context) error {
			if err := d.Reject(false); err != nil {
				return fmt.Errorf("rabbitmq reject: %w", errors.Join(berr.ErrAckFailed, err))
			}

			return nil
		},
	}
}

func (s *Source) Close() error {
	if s.g == nil {
		return nil
	}

	err := s.g.Close()
	s.g = nil

	return err
}
