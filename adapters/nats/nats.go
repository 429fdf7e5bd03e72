/*
Package nats is the NATS driver for the pub/sub destination slot. It publishes
the raw content with the envelope fields as headers, mirroring the SNS driver.
*/
package nats

import (
	"context"
	"time"

	"github.com/next-trace/scg-message-publisher/adapters/lazy"
	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/contract/publish"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "messages"

const driver = "nats"

// Client is a minimal NATS-like publisher interface decoupled from any concrete library.
type Client interface {
	// Publish publishes a message to a subject with optional headers and flushes.
	Publish(subject string, data []byte, headers map[string]string) error
}

// Destination fills the sns slot over a NATS subject.
type Destination struct {
	subject string
	url     string
	client  *lazy.Handle[Client]
	now     func() time.Time
}

var (
	_ publish.Destination = (*Destination)(nil)
	_ publish.Describer   = (*Destination)(nil)
)

// New creates a destination over an existing client.
func New(c Client, subject string) *Destination {
	return newDestination(subject, "", func(context.Context) (Client, error) { return c, nil }, nil)
}

func newDestination(subject, url string, dial func(context.Context) (Client, error), closeFn func(Client) error) *Destination {
	if subject == "" {
		subject = DefaultSubject
	}

	return &Destination{subject: subject, url: url, client: lazy.New(dial, closeFn), now: time.Now}
}

func (d *Destination) Name() string { return publish.SNS }

func (d *Destination) Describe() publish.Info {
	return publish.Info{Driver: driver, Target: d.subject, Configured: true}
}

func (d *Destination) Send(ctx context.Context, e envelope.Envelope) (publish.Receipt, error) {
	c, err := d.client.Get(ctx)
	if err != nil {
		return publish.Receipt{}, publish.Fail(driver, "publish", berr.ErrConnection, err)
	}

	if err := c.Publish(d.subject, []byte(e.Content), envelope.Attributes(e)); err != nil {
		return publish.Receipt{}, publish.Fail(driver, "publish", berr.ErrPublishFailed, err)
	}

	return publish.Receipt{
		Destination: publish.SNS,
		MessageID:   e.ID,
		Timestamp:   envelope.FormatTime(d.now()),
		Attributes:  map[string]any{"subject": d.subject},
	}, nil
}

func (d *Destination) Close() error { return d.client.Close() }
