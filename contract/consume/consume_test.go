package consume_test

import (
	"errors"
	"testing"

	"github.com/next-trace/scg-message-publisher/contract/consume"
	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

func TestDelivery_EnvelopeFromBody(t *testing.T) {
	d := consume.Delivery{Body: []byte(`{"id":"a","content":"hi","type":"sqs-only","metadata":{}}`)}

	e, err := d.Envelope()
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}

	if e.ID != "a" || e.Type != envelope.TypeSQSOnly {
		t.Fatalf("got %+v", e)
	}
}

func TestDelivery_EnvelopeFromAttributes(t *testing.T) {
	d := consume.Delivery{
		Body:        []byte("raw content"),
		ContentOnly: true,
		Attributes: map[string]string{
			envelope.AttrMessageID:   "b",
			envelope.AttrMessageType: "sns-only",
		},
	}

	e, err := d.Envelope()
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}

	if e.Content != "raw content" || e.Type != envelope.TypeSNSOnly {
		t.Fatalf("got %+v", e)
	}
}

func TestDelivery_Malformed(t *testing.T) {
	d := consume.Delivery{Body: []byte("not json")}

	if _, err := d.Envelope(); !errors.Is(err, berr.ErrMalformedEnvelope) {
		t.Fatalf("want ErrMalformedEnvelope, got %v", err)
	}
}
