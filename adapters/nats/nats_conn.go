package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

// Concrete NATS connection-backed Client and constructors.

type Config struct {
	URL           string
	Name          string
	Subject       string
	QueueGroup    string
	ConnTimeout   time.Duration
	MaxReconnects int
}

func (c Config) options() []nats.Option {
	opts := []nats.Option{}
	if c.Name != "" {
		opts = append(opts, nats.Name(c.Name))
	}

	if c.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(c.ConnTimeout))
	}

	if c.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(c.MaxReconnects))
	}

	return opts
}

func (c Config) connect() (*nats.Conn, error) {
	return nats.Connect(c.URL, c.options()...)
}

type natsClient struct{ nc *nats.Conn }

func (c natsClient) Publish(subject string, data []byte, headers map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data}

	if len(headers) > 0 {
		msg.Header = nats.Header{}
		for k, v := range headers {
			msg.Header.Set(k, v)
		}
	}

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	return c.nc.Flush()
}

func drain(nc *nats.Conn) {
	if nc != nil && !nc.IsClosed() {
		_ = nc.Drain() //nolint:errcheck // best-effort shutdown; cannot return error here
		nc.Close()
	}
}

// NewWithNATS returns a destination that connects on first Send, and a cleanup.
func NewWithNATS(cfg Config) (*Destination, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("nats url required: %w", berr.ErrConfiguration)
	}

	d := newDestination(cfg.Subject, cfg.URL,
		func(context.Context) (Client, error) {
			nc, err := cfg.connect()
			if err != nil {
				return nil, fmt.Errorf("nats connect: %w", err)
			}

			return natsClient{nc: nc}, nil
		},
		func(c Client) error {
			if nc, ok := c.(natsClient); ok {
				drain(nc.nc)
			}

			return nil
		},
	)

	return d, func() { _ = d.Close() }, nil
}
