/*
Package inmemory is a process-local driver for every destination slot. It
records what was sent, can be told to fail, and doubles as a worker source.
*/
package inmemory

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/next-trace/scg-message-publisher/contract/consume"
	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/contract/publish"
)

const driver = "memory"

// Destination is a thread-safe in-memory implementation of publish.Destination.
// Delivered envelopes are kept for inspection and queued for Source.
type Destination struct {
	name string

	mu      sync.Mutex
	sent    []envelope.Envelope
	pending []envelope.Envelope
	acked   int
	dropped int
	fail    error
	seq     int
	closed  bool
}

var (
	_ publish.Destination   = (*Destination)(nil)
	_ publish.DelayedSender = (*Destination)(nil)
	_ publish.BatchSender   = (*Destination)(nil)
	_ publish.Describer     = (*Destination)(nil)
)

// New creates an in-memory destination for the given slot (kafka, sns or sqs).
func New(name string) *Destination { return &Destination{name: name} }

func (d *Destination) Name() string { return d.name }

func (d *Destination) Describe() publish.Info {
	return publish.Info{Driver: driver, Target: d.name, Configured: true}
}

// FailWith makes every following Send fail with err. nil restores success.
func (d *Destination) FailWith(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

func (d *Destination) Send(ctx context.Context, e envelope.Envelope) (publish.Receipt, error) {
	return d.SendDelayed(ctx, e, 0)
}

func (d *Destination) SendDelayed(ctx context.Context, e envelope.Envelope, delaySeconds int) (publish.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return publish.Receipt{}, publish.Fail(driver, "publish", berr.ErrPublishFailed, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return publish.Receipt{}, publish.Fail(driver, "publish", berr.ErrConnection, errors.New("destination closed"))
	}

	if d.fail != nil {
		return publish.Receipt{}, publish.Fail(driver, "publish", berr.ErrPublishFailed, d.fail)
	}

	d.sent = append(d.sent, e)
	d.pending = append(d.pending, e)

	attrs := map[string]any{"destination": d.name, "sequence": d.seq}
	if delaySeconds > 0 {
		attrs["delaySeconds"] = delaySeconds
	}

	d.seq++

	return publish.Receipt{
		Destination: d.name,
		MessageID:   e.ID,
		Timestamp:   envelope.FormatTime(time.Now()),
		Attributes:  attrs,
	}, nil
}

func (d *Destination) SendBatch(ctx context.Context, es []envelope.Envelope) (publish.BatchReceipt, error) {
	var out publish.BatchReceipt

	for i, e := range es {
		r, err := d.Send(ctx, e)
		if err != nil {
			out.Failed = append(out.Failed, publish.BatchFailure{
				EntryID:   "msg-" + strconv.Itoa(i),
				MessageID: e.ID,
				Reason:    err.Error(),
			})

			continue
		}

		out.Receipts = append(out.Receipts, r)
	}

	return out, nil
}

// Sent returns a copy of every envelope accepted so far.
func (d *Destination) Sent() []envelope.Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]envelope.Envelope(nil), d.sent...)
}

// Acked reports how many deliveries a Source acknowledged.
func (d *Destination) Acked() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.acked
}

// Dropped reports how many deliveries a Source rejected without requeueing.
func (d *Destination) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.dropped
}

func (d *Destination) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	return nil
}

func (d *Destination) take(n int) []envelope.Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()

	n = min(n, len(d.pending))
	out := append([]envelope.Envelope(nil), d.pending[:n]...)
	d.pending = d.pending[n:]

	return out
}

func (d *Destination) requeue(e envelope.Envelope) {
	d.mu.Lock()
	d.pending = append(d.pending, e)
	d.mu.Unlock()
}

func (d *Destination) drop() {
	d.mu.Lock()
	d.dropped++
	d.mu.Unlock()
}

func (d *Destination) ack() {
	d.mu.Lock()
	d.acked++
	d.mu.Unlock()
}

// Source reads back what a Destination accepted. Nacked deliveries are
// requeued, rejected ones are dropped.
type Source struct {
	dst   *Destination
	batch int
}

var _ consume.Source = (*Source)(nil)

// NewSource creates a source draining dst.
func NewSource(dst *Destination, batch int) *Source {
	if batch <= 0 {
		batch = 10
	}

	return &Source{dst: dst, batch: batch}
}

func (s *Source) Name() string { return s.dst.name }

func (s *Source) Open(context.Context) error { return nil }

func (s *Source) Poll(ctx context.Context) ([]consume.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	es := s.dst.take(s.batch)
	out := make([]consume.Delivery, 0, len(es))

	for _, e := range es {
		body, err := envelope.Encode(e)
		if err != nil {
			return nil, err
		}

		out = append(out, consume.Delivery{
			ID:         e.ID,
			Body:       body,
			Attributes: envelope.Attributes(e),
			Ack: func(context.Context) error {
				s.dst.ack()
				return nil
			},
			Nack: func(context.Context) error {
				s.dst.requeue(e)
				return nil
			},
			Reject: func(context.Context) error {
				s.dst.drop()
				return nil
			},
		})
	}

	return out, nil
}

func (s *Source) Close() error { return nil }
