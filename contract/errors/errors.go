package errors

// Error codes for the publisher contracts. Keep stable; used across adapters, gateway and workers.
const (
	ErrCodeValidation          = "publisher.validation"
	ErrCodeUnknownRoute        = "publisher.unknown_route"
	ErrCodePublishFailed       = "publisher.publish_failed"
	ErrCodeConfiguration       = "publisher.configuration"
	ErrCodeConnection          = "publisher.connection_failed"
	ErrCodeSerializationFailed = "publisher.serialization_failed"
	ErrCodeMalformedEnvelope   = "publisher.malformed_envelope"
	ErrCodeReceiveFailed       = "publisher.receive_failed"
	ErrCodeAckFailed           = "publisher.ack_failed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrValidation          = Code(ErrCodeValidation)
	ErrUnknownRoute        = Code(ErrCodeUnknownRoute)
	ErrPublishFailed       = Code(ErrCodePublishFailed)
	ErrConfiguration       = Code(ErrCodeConfiguration)
	ErrConnection          = Code(ErrCodeConnection)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrMalformedEnvelope   = Code(ErrCodeMalformedEnvelope)
	ErrReceiveFailed       = Code(ErrCodeReceiveFailed)
	ErrAckFailed           = Code(ErrCodeAckFailed)
)

// Invalid wraps a validation failure so that it matches ErrValidation while
// keeping a human readable message.
func Invalid(msg string) error { return &validationError{msg: msg} }

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Unwrap() error { return ErrValidation }
