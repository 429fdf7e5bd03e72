package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/next-trace/scg-message-publisher/contract/publish"
	"github.com/next-trace/scg-message-publisher/gateway"
)

func TestNewMemoryGateway_BasicFlow(t *testing.T) {
	s, cleanup := New()
	defer cleanup()

	ctx := context.Background()

	// Dual route reaches both destinations with the same envelope
	out, err := s.Gateway.Publish(ctx, gateway.RouteKafkaSNS, "hello", map[string]any{"priority": "high"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if out.Status != gateway.StatusSucceeded {
		t.Fatalf("expected succeeded got %s", out.Status)
	}

	if len(s.Kafka.Sent()) != 1 || len(s.SNS.Sent()) != 1 || len(s.SQS.Sent()) != 0 {
		t.Fatalf("unexpected deliveries kafka=%d sns=%d sqs=%d", len(s.Kafka.Sent()), len(s.SNS.Sent()), len(s.SQS.Sent()))
	}

	if s.Kafka.Sent()[0].ID != s.SNS.Sent()[0].ID {
		t.Fatalf("legs carry different envelopes")
	}

	// A failing leg turns the outcome partial
	s.SNS.FailWith(errors.New("throttled"))

	out, err = s.Gateway.Publish(ctx, gateway.RouteKafkaSNS, "again", nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if out.Status != gateway.StatusPartial {
		t.Fatalf("expected partial got %s", out.Status)
	}

	// Sources drain what was accepted
	src := s.Source(publish.Kafka, 10)

	batch, err := src.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}

	if len(batch) != 2 {
		t.Fatalf("expected 2 deliveries got %d", len(batch))
	}

	if s.Source("pigeon", 1) != nil {
		t.Fatalf("unknown slot should have no source")
	}
}

func TestCleanupClosesDestinations(t *testing.T) {
	s, cleanup := New()
	cleanup()

	out, err := s.Gateway.Publish(context.Background(), gateway.RouteSQS, "late", nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if out.Success {
		t.Fatalf("expected closed destination to fail the leg")
	}
}
