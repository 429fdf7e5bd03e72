package publish

import (
	"strings"
)

var displayNames = map[string]string{
	Kafka:      "Kafka",
	SNS:        "SNS",
	SQS:        "SQS",
	"nats":     "NATS",
	"rabbitmq": "RabbitMQ",
	"memory":   "Memory",
}

// Display returns the human name used in error messages for a destination or driver.
func Display(name string) string {
	if d, ok := displayNames[name]; ok {
		return d
	}

	return strings.ToUpper(name)
}

// DestinationError is returned by adapters. Both the coded sentinel (Kind) and the
// underlying cause are reachable through errors.Is / errors.As.
type DestinationError struct {
	Destination string
	Op          string
	Kind        error
	Err         error
}

// Fail builds a DestinationError.
func Fail(destination, op string, kind, err error) *DestinationError {
	return &DestinationError{Destination: destination, Op: op, Kind: kind, Err: err}
}

func (e *DestinationError) Error() string {
	reason := "unknown error"
	if e.Err != nil {
		reason = e.Err.Error()
	} else if e.Kind != nil {
		reason = e.Kind.Error()
	}

	return Display(e.Destination) + " " + e.Op + " failed: " + reason
}

func (e *DestinationError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}
