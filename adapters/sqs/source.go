package sqs

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/next-trace/scg-message-publisher/contract/consume"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

const (
	// MaxReceive is the SQS ReceiveMessage limit.
	MaxReceive = 10
	// LongPollSeconds is the receive wait time.
	LongPollSeconds = 10
)

// Source long-polls a queue. Ack deletes the message; an unacknowledged
// message becomes visible again after the queue's visibility timeout.
type Source struct {
	name     string
	queueURL string
	batch    int32
	dial     func(ctx context.Context) (API, error)
	api      API
}

var (
	_ consume.Source  = (*Source)(nil)
	_ consume.Statser = (*Source)(nil)
)

// NewSource builds a source named name over the queue. Batch is capped at ten.
func NewSource(name, queueURL string, batch int, dial func(ctx context.Context) (API, error)) *Source {
	if batch <= 0 || batch > MaxReceive {
		batch = MaxReceive
	}

	return &Source{name: name, queueURL: queueURL, batch: int32(batch), dial: dial} //nolint:gosec // capped above
}

func (s *Source) Name() string { return s.name }

// Open fails with ErrConfiguration when no queue URL is set.
func (s *Source) Open(ctx context.Context) error {
	if s.queueURL == "" {
		return fmt.Errorf("%s source: %w", s.name, errors.Join(berr.ErrConfiguration, ErrQueueNotConfigured))
	}

	if s.api != nil {
		return nil
	}

	api, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("%s source connect: %w", s.name, errors.Join(berr.ErrConnection, err))
	}

	s.api = api

	return nil
}

func (s *Source) Poll(ctx context.Context) ([]consume.Delivery, error) {
	if s.api == nil {
		return nil, fmt.Errorf("%s poll: source not open: %w", s.name, berr.ErrReceiveFailed)
	}

	out, err := s.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(s.queueURL),
		MaxNumberOfMessages:         s.batch,
		WaitTimeSeconds:             LongPollSeconds,
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameAll},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%s receive: %w", s.name, errors.Join(berr.ErrReceiveFailed, err))
	}

	ds := make([]consume.Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		ds = append(ds, s.delivery(m))
	}

	return ds, nil
}

func (s *Source) delivery(m types.Message) consume.Delivery {
	attrs := make(map[string]string, len(m.MessageAttributes)+len(m.Attributes))
	for k, v := range m.Attributes {
		attrs[k] = v
	}

	for k, v := range m.MessageAttributes {
		attrs[k] = aws.ToString(v.StringValue)
	}

	handle := m.ReceiptHandle
	api, queueURL := s.api, s.queueURL

	return consume.Delivery{
		ID:         aws.ToString(m.MessageId),
		Body:       []byte(aws.ToString(m.Body)),
		Attributes: attrs,
		Ack: func(ctx context.Context) error {
			_, err := api.DeleteMessage(ctx, &sqs.DeleteMessageInput{QueueUrl: aws.String(queueURL), ReceiptHandle: handle})
			if err != nil {
				return fmt.Errorf("sqs delete: %w", errors.Join(berr.ErrAckFailed, err))
			}

			return nil
		},
	}
}

func (s *Source) Close() error {
	s.api = nil
	return nil
}

// Stats reports the queue depth counters.
func (s *Source) Stats(ctx context.Context) (map[string]any, error) {
	if s.api == nil {
		return nil, fmt.Errorf("%s stats: source not open: %w", s.name, berr.ErrReceiveFailed)
	}

	qa, err := queueAttributes(ctx, s.api, s.queueURL)
	if err != nil {
		return nil, err
	}

	return qa.Map(), nil
}
