// Package memory wires a publish gateway over in-memory destinations for local
// runs, examples and tests.
package memory

import (
	"github.com/next-trace/scg-message-publisher/adapters/inmemory"
	"github.com/next-trace/scg-message-publisher/contract/publish"
	"github.com/next-trace/scg-message-publisher/gateway"
)

// Setup exposes the gateway and the destinations behind it.
type Setup struct {
	Gateway *gateway.Gateway
	Kafka   *inmemory.Destination
	SNS     *inmemory.Destination
	SQS     *inmemory.Destination
}

// New constructs a gateway with one in-memory destination per slot and returns
// it along with a cleanup function that closes the gateway.
func New(opts ...gateway.Option) (*Setup, func()) {
	s := &Setup{
		Kafka: inmemory.New(publish.Kafka),
		SNS:   inmemory.New(publish.SNS),
		SQS:   inmemory.New(publish.SQS),
	}

	s.Gateway = gateway.New([]publish.Destination{s.Kafka, s.SNS, s.SQS}, opts...)
	cleanup := func() { _ = s.Gateway.Close() }

	return s, cleanup
}

// Source returns a worker source draining the destination of slot, or nil for
// an unknown slot.
func (s *Setup) Source(slot string, batch int) *inmemory.Source {
	switch slot {
	case publish.Kafka:
		return inmemory.NewSource(s.Kafka, batch)
	case publish.SNS:
		return inmemory.NewSource(s.SNS, batch)
	case publish.SQS:
		return inmemory.NewSource(s.SQS, batch)
	default:
		return nil
	}
}
