/*
Package sqs is the queue destination and worker source backed by Amazon SQS.
*/
package sqs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/next-trace/scg-message-publisher/adapters/awsconf"
	"github.com/next-trace/scg-message-publisher/adapters/lazy"
	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/contract/publish"
)

const (
	// MaxDelaySeconds is the largest delivery delay SQS accepts.
	MaxDelaySeconds = 900
	// MaxBatchEntries is the SQS SendMessageBatch limit.
	MaxBatchEntries = 10
)

// ErrQueueNotConfigured is reported on first use when no queue URL is set.
var ErrQueueNotConfigured = errors.New("queue url is not configured")

// API is the slice of the SQS client the adapter needs.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(
		ctx context.Context,
		in *sqs.SendMessageBatchInput,
		optFns ...func(*sqs.Options),
	) (*sqs.SendMessageBatchOutput, error)
	ReceiveMessage(
		ctx context.Context,
		in *sqs.ReceiveMessageInput,
		optFns ...func(*sqs.Options),
	) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(
		ctx context.Context,
		in *sqs.GetQueueAttributesInput,
		optFns ...func(*sqs.Options),
	) (*sqs.GetQueueAttributesOutput, error)
	PurgeQueue(ctx context.Context, in *sqs.PurgeQueueInput, optFns ...func(*sqs.Options)) (*sqs.PurgeQueueOutput, error)
}

var _ API = (*sqs.Client)(nil)

// Destination sends JSON envelopes to one queue.
type Destination struct {
	queueURL string
	api      *lazy.Handle[API]
	now      func() time.Time
}

var (
	_ publish.Destination   = (*Destination)(nil)
	_ publish.DelayedSender = (*Destination)(nil)
	_ publish.BatchSender   = (*Destination)(nil)
	_ publish.Describer     = (*Destination)(nil)
)

// New wraps an existing client.
func New(api API, queueURL string) *Destination {
	return newDestination(queueURL, func(context.Context) (API, error) { return api, nil })
}

func newDestination(queueURL string, dial func(context.Context) (API, error)) *Destination {
	return &Destination{queueURL: queueURL, api: lazy.New(dial, nil), now: time.Now}
}

type Config struct {
	AWS      awsconf.Config
	QueueURL string
	Logger   *slog.Logger
}

// Dial returns a lazily configured SQS client factory for cfg.
func Dial(cfg awsconf.Config) func(ctx context.Context) (API, error) {
	return func(ctx context.Context) (API, error) {
		ac, err := awsconf.Load(ctx, cfg)
		if err != nil {
			return nil, err
		}

		return sqs.NewFromConfig(ac, func(o *sqs.Options) {
			if ep := cfg.EndpointPtr(); ep != nil {
				o.BaseEndpoint = ep
			}
		}), nil
	}
}

// NewWithAWS builds the destination. A missing queue URL only logs a warning
// here; Send reports it.
func NewWithAWS(cfg Config) (*Destination, func(), error) {
	if cfg.QueueURL == "" && cfg.Logger != nil {
		cfg.Logger.Warn("SQS_QUEUE_URL is not set; sqs sends will fail")
	}

	d := newDestination(cfg.QueueURL, Dial(cfg.AWS))

	return d, func() { _ = d.Close() }, nil
}

func (d *Destination) Name() string { return publish.SQS }

func (d *Destination) Describe() publish.Info {
	return publish.Info{Driver: "sqs", Target: d.queueURL, Configured: d.queueURL != ""}
}

// QueueURL returns the configured queue.
func (d *Destination) QueueURL() string { return d.queueURL }

func (d *Destination) Close() error { return d.api.Close() }

func (d *Destination) client(ctx context.Context, op string) (API, error) {
	if d.queueURL == "" {
		return nil, publish.Fail(publish.SQS, op, berr.ErrConfiguration, ErrQueueNotConfigured)
	}

	api, err := d.api.Get(ctx)
	if err != nil {
		return nil, publish.Fail(publish.SQS, op, berr.ErrConnection, err)
	}

	return api, nil
}

// Send enqueues the envelope without delay.
func (d *Destination) Send(ctx context.Context, e envelope.Envelope) (publish.Receipt, error) {
	return d.send(ctx, e, 0, "send")
}

// SendDelayed enqueues the envelope with a delivery delay in [0, 900] seconds.
func (d *Destination) SendDelayed(ctx context.Context, e envelope.Envelope, delaySeconds int) (publish.Receipt, error) {
	if err := ValidateDelay(delaySeconds); err != nil {
		return publish.Receipt{}, err
	}

	return d.send(ctx, e, delaySeconds, "delayed send")
}

func (d *Destination) send(ctx context.Context, e envelope.Envelope, delay int, op string) (publish.Receipt, error) {
	api, err := d.client(ctx, op)
	if err != nil {
		return publish.Receipt{}, err
	}

	body, err := envelope.Encode(e)
	if err != nil {
		return publish.Receipt{}, publish.Fail(publish.SQS, op, berr.ErrSerializationFailed, err)
	}

	out, err := api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(d.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: MessageAttributes(e, delay > 0),
		DelaySeconds:      int32(delay), //nolint:gosec // bounded by ValidateDelay
	})
	if err != nil {
		return publish.Receipt{}, publish.Fail(publish.SQS, op, berr.ErrPublishFailed, err)
	}

	attrs := map[string]any{
		"queueUrl":  d.queueURL,
		"md5OfBody": aws.ToString(out.MD5OfMessageBody),
	}
	if delay > 0 {
		attrs["delaySeconds"] = delay
	}

	return publish.Receipt{
		Destination: publish.SQS,
		MessageID:   aws.ToString(out.MessageId),
		Timestamp:   envelope.FormatTime(d.now()),
		Attributes:  attrs,
	}, nil
}

// SendBatch enqueues envelopes in chunks of ten. Entries rejected by SQS are
// reported in Failed; a transport error fails the remaining chunks.
func (d *Destination) SendBatch(ctx context.Context, es []envelope.Envelope) (publish.BatchReceipt, error) {
	var out publish.BatchReceipt

	api, err := d.client(ctx, "batch send")
	if err != nil {
		return out, err
	}

	for start := 0; start < len(es); start += MaxBatchEntries {
		end := min(start+MaxBatchEntries, len(es))
		chunk := es[start:end]

		entries := make([]types.SendMessageBatchRequestEntry, 0, len(chunk))
		ids := make(map[string]string, len(chunk))

		for i, e := range chunk {
			body, err := envelope.Encode(e)
			if err != nil {
				return out, publish.Fail(publish.SQS, "batch send", berr.ErrSerializationFailed, err)
			}

			id := "msg-" + strconv.Itoa(i)
			ids[id] = e.ID
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:                aws.String(id),
				MessageBody:       aws.String(string(body)),
				MessageAttributes: MessageAttributes(e, false),
			})
		}

		res, err := api.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(d.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return out, publish.Fail(publish.SQS, "batch send", berr.ErrPublishFailed, err)
		}

		now := envelope.FormatTime(d.now())

		for _, s := range res.Successful {
			out.Receipts = append(out.Receipts, publish.Receipt{
				Destination: publish.SQS,
				MessageID:   aws.ToString(s.MessageId),
				Timestamp:   now,
				Attributes: map[string]any{
					"queueUrl":   d.queueURL,
					"md5OfBody":  aws.ToString(s.MD5OfMessageBody),
					"envelopeId": ids[aws.ToString(s.Id)],
				},
			})
		}

		for _, f := range res.Failed {
			out.Failed = append(out.Failed, publish.BatchFailure{
				EntryID:   aws.ToString(f.Id),
				MessageID: ids[aws.ToString(f.Id)],
				Code:      aws.ToString(f.Code),
				Reason:    aws.ToString(f.Message),
			})
		}
	}

	return out, nil
}

// ValidateDelay rejects delays outside what SQS accepts.
func ValidateDelay(seconds int) error {
	if seconds < 0 || seconds > MaxDelaySeconds {
		return berr.Invalid("DelaySeconds must be between 0 and 900")
	}

	return nil
}

// MessageAttributes maps the envelope attributes onto SQS String attributes.
func MessageAttributes(e envelope.Envelope, delayed bool) map[string]types.MessageAttributeValue {
	attrs := envelope.Attributes(e)
	attrs[envelope.AttrContentType] = envelope.ContentTypeJSON

	if delayed {
		attrs[envelope.AttrDelayed] = "true"
	}

	out := make(map[string]types.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		if v == "" {
			continue
		}

		out[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}

	return out
}

// QueueAttributes is the queue depth summary used by admin and status logs.
type QueueAttributes struct {
	QueueURL                    string `json:"queueUrl"`
	QueueArn                    string `json:"queueArn,omitempty"`
	ApproximateNumberOfMessages int    `json:"approximateNumberOfMessages"`
	ApproximateNotVisible       int    `json:"approximateNumberOfMessagesNotVisible"`
	ApproximateDelayed          int    `json:"approximateNumberOfMessagesDelayed"`
}

// Map renders the attributes as log fields.
func (q QueueAttributes) Map() map[string]any {
	return map[string]any{
		"queueUrl":                              q.QueueURL,
		"approximateNumberOfMessages":           q.ApproximateNumberOfMessages,
		"approximateNumberOfMessagesNotVisible": q.ApproximateNotVisible,
		"approximateNumberOfMessagesDelayed":    q.ApproximateDelayed,
	}
}

// Attributes reads the queue depth counters.
func (d *Destination) Attributes(ctx context.Context) (QueueAttributes, error) {
	api, err := d.client(ctx, "attributes")
	if err != nil {
		return QueueAttributes{}, err
	}

	return queueAttributes(ctx, api, d.queueURL)
}

// Purge deletes every message in the queue.
func (d *Destination) Purge(ctx context.Context) error {
	api, err := d.client(ctx, "purge")
	if err != nil {
		return err
	}

	if _, err := api.PurgeQueue(ctx, &sqs.PurgeQueueInput{QueueUrl: aws.String(d.queueURL)}); err != nil {
		return publish.Fail(publish.SQS, "purge", berr.ErrPublishFailed, err)
	}

	return nil
}

func queueAttributes(ctx context.Context, api API, queueURL string) (QueueAttributes, error) {
	out, err := api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
			types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
			types.QueueAttributeNameQueueArn,
		},
	})
	if err != nil {
		return QueueAttributes{}, fmt.Errorf("sqs queue attributes: %w", errors.Join(berr.ErrReceiveFailed, err))
	}

	a := out.Attributes

	return QueueAttributes{
		QueueURL:                    queueURL,
		QueueArn:                    a[string(types.QueueAttributeNameQueueArn)],
		ApproximateNumberOfMessages: atoi(a[string(types.QueueAttributeNameApproximateNumberOfMessages)]),
		ApproximateNotVisible:       atoi(a[string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)]),
		ApproximateDelayed:          atoi(a[string(types.QueueAttributeNameApproximateNumberOfMessagesDelayed)]),
	}, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}

	return n
}
