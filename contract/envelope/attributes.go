package envelope

import (
	"fmt"

	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

// Attribute keys carried next to the payload by every transport.
const (
	AttrMessageType = "message-type"
	AttrMessageID   = "message-id"
	AttrTimestamp   = "timestamp"
	AttrSource      = "source"
	AttrContentType = "content-type"
	AttrDelayed     = "delayed"

	ContentTypeJSON = "application/json"
)

// Attributes returns the transport attributes describing e.
func Attributes(e Envelope) map[string]string {
	src := e.Source
	if src == "" {
		src = "unknown"
	}

	return map[string]string{
		AttrMessageType: string(e.Type),
		AttrMessageID:   e.ID,
		AttrTimestamp:   e.Timestamp,
		AttrSource:      src,
	}
}

// FromAttributes rebuilds an envelope from content-only transports (SNS, NATS)
// where the payload is the raw message and the rest travels as attributes.
// Metadata is not carried by those transports and comes back empty.
func FromAttributes(content string, attrs map[string]string) (Envelope, error) {
	id := attrs[AttrMessageID]
	if id == "" {
		return Envelope{}, fmt.Errorf("rebuild envelope: missing %s attribute: %w", AttrMessageID, berr.ErrMalformedEnvelope)
	}

	return Envelope{
		ID:        id,
		Content:   content,
		Metadata:  map[string]any{},
		Timestamp: attrs[AttrTimestamp],
		Type:      Type(attrs[AttrMessageType]),
		Source:    attrs[AttrSource],
	}, nil
}
