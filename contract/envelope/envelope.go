/*
Package envelope defines the canonical message record the gateway builds once per
request and every destination and worker reads.
*/
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

// Source is stamped on every envelope produced by the publisher API.
const Source = "message-publisher-api"

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Type tags an envelope with the route that produced it.
type Type string

const (
	TypeKafkaSNS  Type = "kafka-sns"
	TypeSNSSQS    Type = "sns-sqs"
	TypeKafkaOnly Type = "kafka-only"
	TypeSNSOnly   Type = "sns-only"
	TypeSQSOnly   Type = "sqs-only"
)

// Types returns every known type in declaration order.
func Types() []Type {
	return []Type{TypeKafkaSNS, TypeSNSSQS, TypeKafkaOnly, TypeSNSOnly, TypeSQSOnly}
}

// ParseType maps s onto a known type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Known() {
		return "", berr.Invalid(fmt.Sprintf("unknown message type %q", s))
	}

	return t, nil
}

// Known reports whether t is one of the declared types.
func (t Type) Known() bool {
	switch t {
	case TypeKafkaSNS, TypeSNSSQS, TypeKafkaOnly, TypeSNSOnly, TypeSQSOnly:
		return true
	default:
		return false
	}
}

func (t Type) String() string { return string(t) }

// Envelope is immutable once built; adapters and workers only read it.
type Envelope struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp string         `json:"timestamp"`
	Type      Type           `json:"type"`
	Source    string         `json:"source"`
}

// New builds an envelope for content. Blank content is rejected with ErrValidation.
func New(id, content string, metadata map[string]any, t Type, now time.Time) (Envelope, error) {
	if err := ValidateContent(content); err != nil {
		return Envelope{}, err
	}

	if id == "" {
		return Envelope{}, berr.Invalid("envelope id is required")
	}

	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	return Envelope{
		ID:        id,
		Content:   content,
		Metadata:  md,
		Timestamp: FormatTime(now),
		Type:      t,
		Source:    Source,
	}, nil
}

// ValidateContent rejects empty and whitespace-only messages.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return berr.Invalid("Message is required and must be a non-empty string")
	}

	return nil
}

// FormatTime renders t the way envelopes carry timestamps.
func FormatTime(t time.Time) string { return t.UTC().Format(TimestampLayout) }

// Encode serializes the envelope as JSON.
func Encode(e Envelope) ([]byte, error) {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", e.ID, berr.ErrSerializationFailed)
	}

	return b, nil
}

// Decode parses a JSON envelope. Unknown types decode as-is; callers check Type.Known.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", errors.Join(berr.ErrMalformedEnvelope, err))
	}

	if e.ID == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing id: %w", berr.ErrMalformedEnvelope)
	}

	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}

	return e, nil
}
