/*
Package consume defines what a worker pulls from a messaging service: a Source
that yields batches of Deliveries, each acknowledged only after it was handled.
*/
package consume

import (
	"context"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
)

// Source is a pollable stream of deliveries from one external service.
type Source interface {
	Name() string
	Open(ctx context.Context) error
	// Poll returns at most one bounded batch. An empty batch is not an error.
	Poll(ctx context.Context) ([]Delivery, error)
	Close() error
}

// Statser is implemented by sources that can report service-side statistics
// (queue depth, topic subscriptions) for periodic status logs.
type Statser interface {
	Stats(ctx context.Context) (map[string]any, error)
}

// Delivery is one received item. Ack, Nack and Reject are nil when the
// transport has no such operation. Nack asks for redelivery; Reject drops the
// item for good and is used for deliveries that can never be decoded.
type Delivery struct {
	ID         string
	Body       []byte
	Attributes map[string]string
	// ContentOnly marks transports that carry the raw content as Body and the
	// remaining envelope fields as attributes (SNS, NATS).
	ContentOnly bool

	Ack    func(ctx context.Context) error
	Nack   func(ctx context.Context) error
	Reject func(ctx context.Context) error
}

// Envelope decodes the delivery into the canonical envelope.
func (d Delivery) Envelope() (envelope.Envelope, error) {
	if d.ContentOnly {
		return envelope.FromAttributes(string(d.Body), d.Attributes)
	}

	return envelope.Decode(d.Body)
}
