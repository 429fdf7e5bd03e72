package bootstrap

import (
	"context"

	"github.com/next-trace/scg-message-publisher/adapters/kafka"
	"github.com/next-trace/scg-message-publisher/adapters/sns"
	"github.com/next-trace/scg-message-publisher/adapters/sqs"
	"github.com/next-trace/scg-message-publisher/contract/publish"
	"github.com/next-trace/scg-message-publisher/internal/config"
)

// EnsureKafkaTopic creates the topic unless it exists and reports whether it was created.
func (a *App) EnsureKafkaTopic(ctx context.Context, name string, partitions int32, replication int16) (bool, error) {
	if a.cfg.Drivers.Kafka != config.DriverKafka {
		return false, errWrongDriver("kafka-topic", config.DriverKafka, a.cfg.Drivers.Kafka)
	}

	adm, cleanup, err := kafka.NewAdminWithKgo(ctx, a.kafkaConfig())
	if err != nil {
		return false, err
	}
	defer cleanup()

	return adm.EnsureTopic(ctx, name, partitions, replication)
}

// CreateSNSTopic creates a topic and returns its ARN.
func (a *App) CreateSNSTopic(ctx context.Context, name string) (string, error) {
	d, ok := a.dests[publish.SNS].(*sns.Destination)
	if !ok {
		return "", errWrongDriver("sns-topic", config.DriverSNS, a.cfg.Drivers.PubSub)
	}

	return d.CreateTopic(ctx, name)
}

// SQSAttributes reads the configured queue's counters.
func (a *App) SQSAttributes(ctx context.Context) (sqs.QueueAttributes, error) {
	d, err := a.sqsDestination("sqs-attributes")
	if err != nil {
		return sqs.QueueAttributes{}, err
	}

	return d.Attributes(ctx)
}

// PurgeSQS deletes every message in the configured queue.
func (a *App) PurgeSQS(ctx context.Context) error {
	d, err := a.sqsDestination("sqs-purge")
	if err != nil {
		return err
	}

	return d.Purge(ctx)
}

func (a *App) sqsDestination(op string) (*sqs.Destination, error) {
	d, ok := a.dests[publish.SQS].(*sqs.Destination)
	if !ok {
		return nil, errWrongDriver(op, config.DriverSQS, a.cfg.Drivers.Queue)
	}

	return d, nil
}
