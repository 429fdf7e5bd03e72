package envelope_test

import (
	"errors"
	"testing"
	"time"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

var fixed = time.Date(2025, 3, 4, 5, 6, 7, 891_000_000, time.UTC)

func TestNew_StampsSourceAndTimestamp(t *testing.T) {
	md := map[string]any{"priority": "high"}

	e, err := envelope.New("id-1", "hello", md, envelope.TypeKafkaOnly, fixed)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if e.Source != envelope.Source {
		t.Fatalf("source: %s", e.Source)
	}

	if e.Timestamp != "2025-03-04T05:06:07.891Z" {
		t.Fatalf("timestamp: %s", e.Timestamp)
	}

	// metadata is copied so later caller mutations do not leak in
	md["priority"] = "low"

	if e.Metadata["priority"] != "high" {
		t.Fatalf("metadata aliased: %+v", e.Metadata)
	}
}

func TestNew_RejectsBlankContent(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\t "} {
		_, err := envelope.New("id", content, nil, envelope.TypeSQSOnly, fixed)
		if !errors.Is(err, berr.ErrValidation) {
			t.Fatalf("content %q: want ErrValidation, got %v", content, err)
		}
	}
}

func TestNew_NilMetadataBecomesEmpty(t *testing.T) {
	e, err := envelope.New("id", "x", nil, envelope.TypeSNSOnly, fixed)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if e.Metadata == nil || len(e.Metadata) != 0 {
		t.Fatalf("metadata: %#v", e.Metadata)
	}
}

func TestEncodeDecode(t *testing.T) {
	e, _ := envelope.New("id-2", "payload", map[string]any{"k": "v"}, envelope.TypeSNSSQS, fixed)

	b, err := envelope.Encode(e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := envelope.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.ID != e.ID || got.Type != e.Type || got.Content != e.Content || got.Metadata["k"] != "v" {
		t.Fatalf("got %+v", got)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":   "{",
		"missing id": `{"content":"x","type":"sqs-only"}`,
	}

	for name, body := range cases {
		if _, err := envelope.Decode([]byte(body)); !errors.Is(err, berr.ErrMalformedEnvelope) {
			t.Fatalf("%s: want ErrMalformedEnvelope, got %v", name, err)
		}
	}
}

func TestDecode_UnknownTypeIsKept(t *testing.T) {
	got, err := envelope.Decode([]byte(`{"id":"1","content":"x","type":"carrier-pigeon"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Type.Known() {
		t.Fatalf("type %q should be unknown", got.Type)
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range envelope.Types() {
		got, err := envelope.ParseType(string(typ))
		if err != nil || got != typ {
			t.Fatalf("parse %s: %v %v", typ, got, err)
		}
	}

	if _, err := envelope.ParseType("nope"); !errors.Is(err, berr.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestAttributesRoundTrip(t *testing.T) {
	e, _ := envelope.New("id-3", "content only", nil, envelope.TypeKafkaSNS, fixed)

	got, err := envelope.FromAttributes(e.Content, envelope.Attributes(e))
	if err != nil {
		t.Fatalf("from attributes: %v", err)
	}

	if got.ID != e.ID || got.Type != e.Type || got.Timestamp != e.Timestamp || got.Source != e.Source {
		t.Fatalf("got %+v want %+v", got, e)
	}

	if _, err := envelope.FromAttributes("x", map[string]string{}); !errors.Is(err, berr.ErrMalformedEnvelope) {
		t.Fatalf("want ErrMalformedEnvelope, got %v", err)
	}
}
