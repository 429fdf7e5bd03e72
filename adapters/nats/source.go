package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/next-trace/scg-message-publisher/contract/consume"
	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

// Subscription is the slice of *nats.Subscription the source needs.
type Subscription interface {
	NextMsgWithContext(ctx context.Context) (*nats.Msg, error)
	Pending() (int, int, error)
	Unsubscribe() error
}

var _ Subscription = (*nats.Subscription)(nil)

// Source drains a synchronous queue subscription. Core NATS has no
// acknowledgements, so deliveries carry no Ack.
type Source struct {
	batch int
	wait  time.Duration
	open  func(ctx context.Context) (Subscription, func(), error)
	sub   Subscription
	done  func()
}

var _ consume.Source = (*Source)(nil)

// NewSource subscribes to cfg.Subject in queue group cfg.QueueGroup on Open.
// Each Poll waits up to wait for the first message.
func NewSource(cfg Config, batch int, wait time.Duration) (*Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url required: %w", berr.ErrConfiguration)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	return NewSourceWith(batch, wait, func(context.Context) (Subscription, func(), error) {
		nc, err := cfg.connect()
		if err != nil {
			return nil, nil, fmt.Errorf("nats connect: %w", err)
		}

		var sub *nats.Subscription
		if cfg.QueueGroup != "" {
			sub, err = nc.QueueSubscribeSync(subject, cfg.QueueGroup)
		} else {
			sub, err = nc.SubscribeSync(subject)
		}

		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
		}

		return sub, func() { drain(nc) }, nil
	}), nil
}

// NewSourceWith builds a source over a custom subscription factory.
func NewSourceWith(batch int, wait time.Duration, open func(ctx context.Context) (Subscription, func(), error)) *Source {
	if batch <= 0 {
		batch = 10
	}

	if wait <= 0 {
		wait = time.Second
	}

	return &Source{batch: batch, wait: wait, open: open}
}

func (s *Source) Name() string { return "sns" }

func (s *Source) Open(ctx context.Context) error {
	if s.sub != nil {
		return nil
	}

	sub, done, err := s.open(ctx)
	if err != nil {
		return errors.Join(berr.ErrConnection, err)
	}

	s.sub, s.done = sub, done

	return nil
}

// Poll blocks for the first message up to the wait time, then takes whatever
// else is already buffered, up to the batch size.
func (s *Source) Poll(ctx context.Context) ([]consume.Delivery, error) {
	if s.sub == nil {
		return nil, fmt.Errorf("nats poll: source not open: %w", berr.ErrReceiveFailed)
	}

	first, err := s.next(ctx, s.wait)
	if err != nil || first == nil {
		return nil, err
	}

	out := []consume.Delivery{delivery(first)}

	for len(out) < s.batch {
		if n, _, err := s.sub.Pending(); err != nil || n == 0 {
			break
		}

		m, err := s.next(ctx, 10*time.Millisecond)
		if err != nil || m == nil {
			break
		}

		out = append(out, delivery(m))
	}

	return out, nil
}

func (s *Source) next(ctx context.Context, wait time.Duration) (*nats.Msg, error) {
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	m, err := s.sub.NextMsgWithContext(wctx)
	if err == nil {
		return m, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
		return nil, nil
	}

	return nil, fmt.Errorf("nats next message: %w", errors.Join(berr.ErrReceiveFailed, err))
}

func delivery(m *nats.Msg) consume.Delivery {
	attrs := make(map[string]string, len(m.Header)+1)
	for k := range m.Header {
		attrs[k] = m.Header.Get(k)
	}

	attrs["subject"] = m.Subject

	return consume.Delivery{
		ID:          attrs[envelope.AttrMessageID],
		Body:        m.Data,
		Attributes:  attrs,
		ContentOnly: true,
	}
}

func (s *Source) Close() error {
	if s.sub == nil {
		return nil
	}

	err := s.sub.Unsubscribe()
	if s.done != nil {
		s.done()
	}

	s.sub, s.done = nil, nil

	return err
}
