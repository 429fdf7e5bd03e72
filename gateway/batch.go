package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/contract/publish"
	"github.com/next-trace/scg-message-publisher/internal/logging"
	"github.com/next-trace/scg-message-publisher/internal/metrics"
)

const (
	// MaxBatchItems bounds a single batch request.
	MaxBatchItems = 100
	// BatchChunkSize is how many entries go into one destination call.
	BatchChunkSize = 10
)

// batchRoute labels batch requests in metrics.
const batchRoute = "sqs-batch"

// BatchItem is one message of a queue batch.
type BatchItem struct {
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// BatchOutcome reports the accepted and rejected entries of a batch publish.
type BatchOutcome struct {
	RequestID string
	Total     int
	Receipts  []publish.Receipt
	Failed    []publish.BatchFailure
	Success   bool
	Status    Status
}

// BatchOptions controls PublishBatch progress reporting.
// OnProgress is called after each chunk with the entries handled so far and the total.
// OnError is called once per rejected entry.
type BatchOptions struct {
	OnProgress func(done, total int)
	OnError    func(f publish.BatchFailure)
}

// BatchOpt configures BatchOptions.
type BatchOpt func(*BatchOptions)

// WithBatchProgress sets the progress callback.
func WithBatchProgress(fn func(done, total int)) BatchOpt {
	return func(o *BatchOptions) { o.OnProgress = fn }
}

// WithBatchOnError sets the per-entry error callback.
func WithBatchOnError(fn func(f publish.BatchFailure)) BatchOpt {
	return func(o *BatchOptions) { o.OnError = fn }
}

// PublishBatch sends items to the queue destination in chunks of BatchChunkSize.
// Every item is validated before anything is sent; one invalid item rejects the
// whole batch. Cancellation stops further chunks and fails their entries.
func (g *Gateway) PublishBatch(ctx context.Context, items []BatchItem, opts ...BatchOpt) (*BatchOutcome, error) {
	var o BatchOptions
	for _, f := range opts {
		f(&o)
	}

	if len(items) == 0 || len(items) > MaxBatchItems {
		return nil, berr.Invalid(fmt.Sprintf("messages must contain between 1 and %d items", MaxBatchItems))
	}

	now := g.now()
	envs := make([]envelope.Envelope, len(items))

	for i, it := range items {
		env, err := envelope.New(g.newID(), it.Message, it.Metadata, envelope.TypeSQSOnly, now)
		if err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}

		envs[i] = env
	}

	out := &BatchOutcome{RequestID: g.newID(), Total: len(envs)}
	ctx = logging.WithRequestID(ctx, out.RequestID)

	index := make(map[string]int, len(envs))
	for i, e := range envs {
		index[e.ID] = i
	}

	fail := func(i int, err error) {
		f := publish.BatchFailure{
			EntryID:   entryID(i),
			MessageID: envs[i].ID,
			Code:      codeOf(err),
			Reason:    err.Error(),
		}
		out.Failed = append(out.Failed, f)

		if o.OnError != nil {
			o.OnError(f)
		}
	}

	d, ok := g.dests[publish.SQS]

	for start := 0; start < len(envs); start += BatchChunkSize {
		end := min(start+BatchChunkSize, len(envs))

		switch {
		case !ok:
			for i := start; i < end; i++ {
				fail(i, publish.Fail(publish.SQS, "send", berr.ErrConfiguration, errNotConfigured))
			}
		case ctx.Err() != nil:
			for i := start; i < end; i++ {
				fail(i, publish.Fail(d.Name(), "send", berr.ErrPublishFailed, ctx.Err()))
			}
		default:
			br := g.sendChunk(ctx, d, envs[start:end])
			out.Receipts = append(out.Receipts, br.Receipts...)

			for _, f := range br.Failed {
				i, known := index[f.MessageID]
				if !known {
					continue
				}

				f.EntryID = entryID(i)
				out.Failed = append(out.Failed, f)

				if o.OnError != nil {
					o.OnError(f)
				}
			}
		}

		if o.OnProgress != nil {
			o.OnProgress(end, len(envs))
		}
	}

	out.Status = Tally(len(out.Receipts), out.Total)
	out.Success = out.Status == StatusSucceeded

	metrics.PublishRequests.WithLabelValues(batchRoute, string(out.Status)).Inc()
	logging.FromContext(ctx, g.logger).InfoContext(ctx, "batch publish completed",
		"total", out.Total, "accepted", len(out.Receipts), "failed", len(out.Failed), "status", out.Status)

	return out, nil
}

// sendChunk sends one chunk, using the destination's batch API when it has one.
// A chunk-level error fails every entry of the chunk.
func (g *Gateway) sendChunk(ctx context.Context, d publish.Destination, envs []envelope.Envelope) publish.BatchReceipt {
	send := g.sendFunc(publishOptions{})

	if bs, ok := d.(publish.BatchSender); ok {
		br, err := bs.SendBatch(ctx, envs)
		if err == nil {
			return br
		}

		br = publish.BatchReceipt{}
		for i, e := range envs {
			br.Failed = append(br.Failed, publish.BatchFailure{
				EntryID: entryID(i), MessageID: e.ID, Code: codeOf(err), Reason: err.Error(),
			})
		}

		return br
	}

	var br publish.BatchReceipt

	for i, e := range envs {
		r, err := send(ctx, d, e)
		if err != nil {
			br.Failed = append(br.Failed, publish.BatchFailure{
				EntryID: entryID(i), MessageID: e.ID, Code: codeOf(err), Reason: err.Error(),
			})

			continue
		}

		br.Receipts = append(br.Receipts, r)
	}

	return br
}

func entryID(i int) string { return "msg-" + strconv.Itoa(i) }

var codedKinds = []error{
	berr.ErrConfiguration,
	berr.ErrConnection,
	berr.ErrSerializationFailed,
	berr.ErrPublishFailed,
}

// codeOf returns the code of the first sentinel err matches, or "".
func codeOf(err error) string {
	for _, k := range codedKinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}

	return ""
}
