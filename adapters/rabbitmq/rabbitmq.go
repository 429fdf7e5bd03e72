package rabbitmq

import (
	"context"
	"strconv"
	"time"

	"github.com/next-trace/scg-message-publisher/adapters/lazy"
	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/contract/publish"
)

// DefaultQueue is used when no queue is configured.
const DefaultQueue = "messages"

const (
	driver          = "rabbitmq"
	delayHeader     = "x-delay"
	maxDelaySecs    = 900
	defaultExchange = ""
)

type PubMsg struct {
	Exchange   string
	RoutingKey string
	MessageID  string
	Body       []byte
	Headers    map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// closer is implemented by publishers that can tell their connection died.
type closer interface {
	IsClosed() bool
}

// Destination fills the sqs slot over a RabbitMQ queue.
type Destination struct {
	queue string
	pub   *lazy.Handle[Publisher]
	now   func() time.Time
}

var (
	_ publish.Destination   = (*Destination)(nil)
	_ publish.DelayedSender = (*Destination)(nil)
	_ publish.Describer     = (*Destination)(nil)
)

func New(p Publisher, queue string) *Destination {
	return newDestination(queue, func(context.Context) (Publisher, error) { return p, nil }, nil)
}

func newDestination(queue string, dial func(context.Context) (Publisher, error), closeFn func(Publisher) error) *Destination {
	if queue == "" {
		queue = DefaultQueue
	}

	return &Destination{queue: queue, pub: lazy.New(dial, closeFn), now: time.Now}
}

func (d *Destination) Name() string { return publish.SQS }

func (d *Destination) Describe() publish.Info {
	return publish.Info{Driver: driver, Target: d.queue, Configured: true}
}

func (d *Destination) Close() error { return d.pub.Close() }

func (d *Destination) Send(ctx context.Context, e envelope.Envelope) (publish.Receipt, error) {
	return d.send(ctx, e, 0)
}

// SendDelayed records the delay in an x-delay header. Without the delayed
// message exchange plugin the broker delivers immediately.
func (d *Destination) SendDelayed(ctx context.Context, e envelope.Envelope, delaySeconds int) (publish.Receipt, error) {
	if delaySeconds < 0 || delaySeconds > maxDelaySecs {
		return publish.Receipt{}, berr.Invalid("DelaySeconds must be between 0 and 900")
	}

	return d.send(ctx, e, delaySeconds)
}

func (d *Destination) send(ctx context.Context, e envelope.Envelope, delay int) (publish.Receipt, error) {
	p, err := d.publisher(ctx)
	if err != nil {
		return publish.Receipt{}, publish.Fail(driver, "send", berr.ErrConnection, err)
	}

	body, err := envelope.Encode(e)
	if err != nil {
		return publish.Receipt{}, publish.Fail(driver, "send", berr.ErrSerializationFailed, err)
	}

	msg := PubMsg{
		Exchange:   defaultExchange,
		RoutingKey: d.queue,
		MessageID:  e.ID,
		Body:       body,
		Headers:    headers(e, delay),
	}

	if err := p.Publish(ctx, msg); err != nil {
		return publish.Receipt{}, publish.Fail(driver, "send", berr.ErrPublishFailed, err)
	}

	attrs := map[string]any{"queue": d.queue}
	if delay > 0 {
		attrs["delaySeconds"] = delay
	}

	return publish.Receipt{
		Destination: publish.SQS,
		MessageID:   e.ID,
		Timestamp:   envelope.FormatTime(d.now()),
		Attributes:  attrs,
	}, nil
}

// publisher returns a live publisher, redialing once when the cached one died.
func (d *Destination) publisher(ctx context.Context) (Publisher, error) {
	p, err := d.pub.Get(ctx)
	if err != nil {
		return nil, err
	}

	if c, ok := p.(closer); ok && c.IsClosed() {
		_ = d.pub.Reset()
		return d.pub.Get(ctx)
	}

	return p, nil
}

func headers(e envelope.Envelope, delay int) map[string]string {
	h := envelope.Attributes(e)
	h[envelope.AttrContentType] = envelope.ContentTypeJSON

	if delay > 0 {
		h[envelope.AttrDelayed] = "true"
		h[delayHeader] = strconv.Itoa(delay * 1000)
	}

	return h
}
