/*
Package sns is the pub/sub destination backed by Amazon SNS. SNS cannot be
polled, so the worker side reads an SQS queue subscribed to the topic.
*/
package sns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/next-trace/scg-message-publisher/adapters/awsconf"
	"github.com/next-trace/scg-message-publisher/adapters/lazy"
	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/contract/publish"
)

const subjectPrefix = "Message from Publisher: "

// ErrTopicNotConfigured is reported on first use when no topic ARN is set.
var ErrTopicNotConfigured = errors.New("topic arn is not configured")

// API is the slice of the SNS client the adapter needs.
type API interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	GetTopicAttributes(
		ctx context.Context,
		in *sns.GetTopicAttributesInput,
		optFns ...func(*sns.Options),
	) (*sns.GetTopicAttributesOutput, error)
	CreateTopic(ctx context.Context, in *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
}

var _ API = (*sns.Client)(nil)

// Destination publishes envelope content to one topic.
type Destination struct {
	topicArn string
	api      *lazy.Handle[API]
	now      func() time.Time
}

var (
	_ publish.Destination = (*Destination)(nil)
	_ publish.Describer   = (*Destination)(nil)
)

// New wraps an existing client.
func New(api API, topicArn string) *Destination {
	return newDestination(topicArn, func(context.Context) (API, error) { return api, nil })
}

func newDestination(topicArn string, dial func(context.Context) (API, error)) *Destination {
	return &Destination{topicArn: topicArn, api: lazy.New(dial, nil), now: time.Now}
}

type Config struct {
	AWS      awsconf.Config
	TopicArn string
	Logger   *slog.Logger
}

// NewWithAWS builds the destination. The SDK config is resolved on first use.
// A missing topic ARN only logs a warning here; Send reports it.
func NewWithAWS(cfg Config) (*Destination, func(), error) {
	if cfg.TopicArn == "" && cfg.Logger != nil {
		cfg.Logger.Warn("SNS_TOPIC_ARN is not set; sns publishes will fail")
	}

	d := newDestination(cfg.TopicArn, func(ctx context.Context) (API, error) {
		return dialAPI(ctx, cfg.AWS)
	})

	return d, func() { _ = d.Close() }, nil
}

func dialAPI(ctx context.Context, c awsconf.Config) (API, error) {
	ac, err := awsconf.Load(ctx, c)
	if err != nil {
		return nil, err
	}

	return sns.NewFromConfig(ac, func(o *sns.Options) {
		if ep := c.EndpointPtr(); ep != nil {
			o.BaseEndpoint = ep
		}
	}), nil
}

func (d *Destination) Name() string { return publish.SNS }

func (d *Destination) Describe() publish.Info {
	return publish.Info{Driver: "sns", Target: d.topicArn, Configured: d.topicArn != ""}
}

// TopicArn returns the configured topic.
func (d *Destination) TopicArn() string { return d.topicArn }

// Send publishes the content only. The remaining envelope fields travel as
// String message attributes.
func (d *Destination) Send(ctx context.Context, e envelope.Envelope) (publish.Receipt, error) {
	if d.topicArn == "" {
		return publish.Receipt{}, publish.Fail(publish.SNS, "publish", berr.ErrConfiguration, ErrTopicNotConfigured)
	}

	api, err := d.api.Get(ctx)
	if err != nil {
		return publish.Receipt{}, publish.Fail(publish.SNS, "publish", berr.ErrConnection, err)
	}

	out, err := api.Publish(ctx, PublishInput(d.topicArn, e))
	if err != nil {
		return publish.Receipt{}, publish.Fail(publish.SNS, "publish", berr.ErrPublishFailed, err)
	}

	return publish.Receipt{
		Destination: publish.SNS,
		MessageID:   aws.ToString(out.MessageId),
		Timestamp:   envelope.FormatTime(d.now()),
		Attributes:  map[string]any{"topicArn": d.topicArn},
	}, nil
}

func (d *Destination) Close() error { return d.api.Close() }

// PublishInput maps an envelope onto an SNS publish request.
func PublishInput(topicArn string, e envelope.Envelope) *sns.PublishInput {
	attrs := envelope.Attributes(e)

	ma := make(map[string]types.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		if v == "" {
			// SNS rejects empty String attributes.
			continue
		}

		ma[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}

	return &sns.PublishInput{
		TopicArn:          aws.String(topicArn),
		Message:           aws.String(e.Content),
		Subject:           aws.String(subjectPrefix + string(e.Type)),
		MessageAttributes: ma,
	}
}

// TopicStatus summarises a topic's subscriptions.
type TopicStatus struct {
	TopicArn               string `json:"topicArn"`
	DisplayName            string `json:"displayName,omitempty"`
	SubscriptionsConfirmed int    `json:"subscriptionsConfirmed"`
	SubscriptionsPending   int    `json:"subscriptionsPending"`
	SubscriptionsDeleted   int    `json:"subscriptionsDeleted"`
}

// Map renders the status as log attributes.
func (s TopicStatus) Map() map[string]any {
	return map[string]any{
		"topicArn":               s.TopicArn,
		"subscriptionsConfirmed": s.SubscriptionsConfirmed,
		"subscriptionsPending":   s.SubscriptionsPending,
		"subscriptionsDeleted":   s.SubscriptionsDeleted,
	}
}

// TopicStatus reads the topic attributes.
func (d *Destination) TopicStatus(ctx context.Context) (TopicStatus, error) {
	if d.topicArn == "" {
		return TopicStatus{}, fmt.Errorf("sns topic status: %w", errors.Join(berr.ErrConfiguration, ErrTopicNotConfigured))
	}

	api, err := d.api.Get(ctx)
	if err != nil {
		return TopicStatus{}, fmt.Errorf("sns topic status: %w", errors.Join(berr.ErrConnection, err))
	}

	out, err := api.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{TopicArn: aws.String(d.topicArn)})
	if err != nil {
		return TopicStatus{}, fmt.Errorf("sns topic status: %w", errors.Join(berr.ErrReceiveFailed, err))
	}

	return TopicStatus{
		TopicArn:               d.topicArn,
		DisplayName:            out.Attributes["DisplayName"],
		SubscriptionsConfirmed: atoi(out.Attributes["SubscriptionsConfirmed"]),
		SubscriptionsPending:   atoi(out.Attributes["SubscriptionsPending"]),
		SubscriptionsDeleted:   atoi(out.Attributes["SubscriptionsDeleted"]),
	}, nil
}

// CreateTopic creates (or returns the existing) topic with the given name.
func (d *Destination) CreateTopic(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", berr.Invalid("topic name is required")
	}

	api, err := d.api.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("sns create topic: %w", errors.Join(berr.ErrConnection, err))
	}

	out, err := api.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("sns create topic %s: %w", name, errors.Join(berr.ErrPublishFailed, err))
	}

	return aws.ToString(out.TopicArn), nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}

	return n
}
