package worker

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
	"github.com/next-trace/scg-message-publisher/internal/logging"
)

// Handler processes decoded envelopes. There is one method per envelope type, so
// adding a type to the envelope package means adding a method here, and every
// implementation stops compiling until it handles the new type.
type Handler interface {
	HandleKafkaSNS(ctx context.Context, e envelope.Envelope) error
	HandleSNSSQS(ctx context.Context, e envelope.Envelope) error
	HandleKafkaOnly(ctx context.Context, e envelope.Envelope) error
	HandleSNSOnly(ctx context.Context, e envelope.Envelope) error
	HandleSQSOnly(ctx context.Context, e envelope.Envelope) error
	// HandleUnknown receives envelopes whose type tag is not recognised.
	HandleUnknown(ctx context.Context, e envelope.Envelope) error
}

// Dispatch routes e to the Handler method for its type.
func Dispatch(ctx context.Context, h Handler, e envelope.Envelope) error {
	switch e.Type {
	case envelope.TypeKafkaSNS:
		return h.HandleKafkaSNS(ctx, e)
	case envelope.TypeSNSSQS:
		return h.HandleSNSSQS(ctx, e)
	case envelope.TypeKafkaOnly:
		return h.HandleKafkaOnly(ctx, e)
	case envelope.TypeSNSOnly:
		return h.HandleSNSOnly(ctx, e)
	case envelope.TypeSQSOnly:
		return h.HandleSQSOnly(ctx, e)
	default:
		return h.HandleUnknown(ctx, e)
	}
}

// LogHandler logs every envelope it receives. MaxDelay, when positive, adds a
// random pause of up to MaxDelay per message to simulate work.
type LogHandler struct {
	Logger   *slog.Logger
	MaxDelay time.Duration
}

var _ Handler = (*LogHandler)(nil)

// NewLogHandler creates a LogHandler. A nil logger falls back to slog.Default.
func NewLogHandler(l *slog.Logger, maxDelay time.Duration) *LogHandler {
	if l == nil {
		l = slog.Default()
	}

	return &LogHandler{Logger: l, MaxDelay: maxDelay}
}

func (h *LogHandler) HandleKafkaSNS(ctx context.Context, e envelope.Envelope) error {
	return h.handle(ctx, "processing kafka+sns message", e)
}

func (h *LogHandler) HandleSNSSQS(ctx context.Context, e envelope.Envelope) error {
	return h.handle(ctx, "processing sns+sqs message", e)
}

func (h *LogHandler) HandleKafkaOnly(ctx context.Context, e envelope.Envelope) error {
	return h.handle(ctx, "processing kafka-only message", e)
}

func (h *LogHandler) HandleSNSOnly(ctx context.Context, e envelope.Envelope) error {
	return h.handle(ctx, "processing sns-only message", e)
}

func (h *LogHandler) HandleSQSOnly(ctx context.Context, e envelope.Envelope) error {
	return h.handle(ctx, "processing sqs-only message", e)
}

func (h *LogHandler) HandleUnknown(ctx context.Context, e envelope.Envelope) error {
	return h.handle(ctx, "processing generic message", e)
}

func (h *LogHandler) handle(ctx context.Context, msg string, e envelope.Envelope) error {
	h.Logger.InfoContext(ctx, msg,
		logging.MessageID(e.ID),
		logging.MessageType(string(e.Type)),
		slog.String("content", e.Content),
		slog.String("timestamp", e.Timestamp),
	)

	if h.MaxDelay <= 0 {
		return nil
	}

	t := time.NewTimer(rand.N(h.MaxDelay))
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
