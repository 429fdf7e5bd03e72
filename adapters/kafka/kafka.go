/*
Package kafka maps the publisher onto a Kafka-compatible broker with franz-go:
a producing destination, a consumer-group worker source and a topic admin.
*/
package kafka

import (
	"context"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/next-trace/scg-message-publisher/adapters/lazy"
	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/contract/publish"
)

const (
	// DefaultTopic is used when no topic is configured.
	DefaultTopic = "messages"
	// DefaultClientID identifies the producer to the brokers.
	DefaultClientID = "message-publisher-api"

	keyPrefix = "msg-"
)

// Producer is the slice of the franz-go client the destination needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

var _ Producer = (*kgo.Client)(nil)

// Destination publishes envelopes to one topic.
type Destination struct {
	topic    string
	brokers  []string
	producer *lazy.Handle[Producer]
	now      func() time.Time
}

var (
	_ publish.Destination = (*Destination)(nil)
	_ publish.Describer   = (*Destination)(nil)
)

// New creates a destination over an already built producer.
func New(p Producer, topic string) *Destination {
	return newDestination(topic, nil, func(context.Context) (Producer, error) { return p, nil })
}

func newDestination(topic string, brokers []string, dial func(context.Context) (Producer, error)) *Destination {
	if topic == "" {
		topic = DefaultTopic
	}

	return &Destination{
		topic:    topic,
		brokers:  brokers,
		producer: lazy.New(dial, func(p Producer) error { p.Close(); return nil }),
		now:      time.Now,
	}
}

func (d *Destination) Name() string { return publish.Kafka }

// Topic returns the topic records are produced to.
func (d *Destination) Topic() string { return d.topic }

func (d *Destination) Describe() publish.Info {
	return publish.Info{Driver: "kafka", Target: d.topic, Configured: d.brokers == nil || len(d.brokers) > 0}
}

// Send produces the envelope synchronously and reports where the broker stored it.
func (d *Destination) Send(ctx context.Context, e envelope.Envelope) (publish.Receipt, error) {
	p, err := d.producer.Get(ctx)
	if err != nil {
		return publish.Receipt{}, publish.Fail(publish.Kafka, "publish", berr.ErrConnection, err)
	}

	val, err := envelope.Encode(e)
	if err != nil {
		return publish.Receipt{}, publish.Fail(publish.Kafka, "publish", berr.ErrSerializationFailed, err)
	}

	now := d.now()
	rec := Record(d.topic, e, val, now)

	if err := p.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return publish.Receipt{}, publish.Fail(publish.Kafka, "publish", berr.ErrPublishFailed, err)
	}

	return publish.Receipt{
		Destination: publish.Kafka,
		MessageID:   e.ID,
		Timestamp:   envelope.FormatTime(now),
		Attributes: map[string]any{
			"topic":     rec.Topic,
			"partition": rec.Partition,
			"offset":    strconv.FormatInt(rec.Offset, 10),
		},
	}, nil
}

// Close releases the producer if it was ever connected.
func (d *Destination) Close() error { return d.producer.Close() }

// Record builds the Kafka record for an envelope: key msg-<id>, JSON value and
// content-type, message-type and source headers.
func Record(topic string, e envelope.Envelope, value []byte, now time.Time) *kgo.Record {
	return &kgo.Record{
		Topic:     topic,
		Key:       []byte(keyPrefix + e.ID),
		Value:     value,
		Timestamp: now,
		Headers: []kgo.RecordHeader{
			{Key: envelope.AttrContentType, Value: []byte(envelope.ContentTypeJSON)},
			{Key: envelope.AttrMessageType, Value: []byte(e.Type)},
			{Key: envelope.AttrSource, Value: []byte(e.Source)},
		},
	}
}
