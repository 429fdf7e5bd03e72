package publish

import (
	"context"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
)

// Destination names. They key the per-destination results of a publish.
const (
	Kafka = "kafka"
	SNS   = "sns"
	SQS   = "sqs"
)

// Names lists the destination slots in display order.
func Names() []string { return []string{Kafka, SNS, SQS} }

// Destination accepts an envelope and hands it to one external messaging service.
// Implementations connect lazily and must be safe for concurrent use.
type Destination interface {
	// Name returns the destination slot this driver fills (kafka, sns or sqs).
	Name() string
	Send(ctx context.Context, e envelope.Envelope) (Receipt, error)
	Close() error
}

// DelayedSender is implemented by queue destinations that support a delivery delay.
type DelayedSender interface {
	SendDelayed(ctx context.Context, e envelope.Envelope, delaySeconds int) (Receipt, error)
}

// BatchSender is implemented by queue destinations that can send several envelopes per call.
type BatchSender interface {
	SendBatch(ctx context.Context, es []envelope.Envelope) (BatchReceipt, error)
}

// BatchReceipt reports the accepted and rejected entries of a batch send.
type BatchReceipt struct {
	Receipts []Receipt
	Failed   []BatchFailure
}

// BatchFailure is one rejected batch entry.
type BatchFailure struct {
	EntryID   string `json:"id"`
	MessageID string `json:"messageId"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"error"`
}

// Info describes a configured destination for status pages.
type Info struct {
	Driver     string `json:"driver"`
	Target     string `json:"target,omitempty"`
	Configured bool   `json:"configured"`
}

// Describer is implemented by destinations that can report their configuration.
type Describer interface {
	Describe() Info
}
