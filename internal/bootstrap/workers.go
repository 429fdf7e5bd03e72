package bootstrap

import (
	"fmt"
	"slices"
	"time"

	"github.com/next-trace/scg-message-publisher/adapters/inmemory"
	"github.com/next-trace/scg-message-publisher/adapters/kafka"
	"github.com/next-trace/scg-message-publisher/adapters/nats"
	"github.com/next-trace/scg-message-publisher/adapters/rabbitmq"
	"github.com/next-trace/scg-message-publisher/adapters/sns"
	"github.com/next-trace/scg-message-publisher/adapters/sqs"
	"github.com/next-trace/scg-message-publisher/contract/consume"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/contract/publish"
	"github.com/next-trace/scg-message-publisher/internal/config"
	"github.com/next-trace/scg-message-publisher/worker"
)

// WorkerAll selects every worker.
const WorkerAll = "all"

// WorkerNames lists the workers that can be started, in start order.
func WorkerNames() []string { return publish.Names() }

// Source builds the consumer for the worker named after a destination slot.
func (a *App) Source(name string) (consume.Source, time.Duration, error) {
	batch := a.cfg.Worker.BatchSize

	switch name {
	case publish.Kafka:
		src, err := a.kafkaSource(batch)
		return src, a.cfg.Worker.PollInterval, err
	case publish.SNS:
		src, err := a.pubsubSource(batch)
		return src, a.cfg.SNS.PollInterval, err
	case publish.SQS:
		src, err := a.queueSource(batch)
		return src, a.cfg.SQS.PollInterval, err
	default:
		return nil, 0, berr.Invalid(fmt.Sprintf("unknown worker %q, want one of %v or %q", name, WorkerNames(), WorkerAll))
	}
}

func (a *App) kafkaSource(batch int) (consume.Source, error) {
	if a.cfg.Drivers.Kafka == config.DriverMemory {
		return a.memorySource(publish.Kafka, batch)
	}

	return kafka.NewSource(a.kafkaConfig(), batch)
}

// pubsubSource reads SNS through its subscribed queue when one is configured.
// Without it the worker can only watch the topic.
func (a *App) pubsubSource(batch int) (consume.Source, error) {
	switch a.cfg.Drivers.PubSub {
	case config.DriverMemory:
		return a.memorySource(publish.SNS, batch)
	case config.DriverNATS:
		return nats.NewSource(a.natsConfig(), batch, a.cfg.SNS.PollInterval)
	}

	topic, ok := a.dests[publish.SNS].(*sns.Destination)
	if !ok {
		return nil, errWrongDriver("sns worker", config.DriverSNS, a.cfg.Drivers.PubSub)
	}

	if topic.TopicArn() == "" {
		return nil, fmt.Errorf("sns worker: SNS_TOPIC_ARN is not set: %w", berr.ErrConfiguration)
	}

	if url := a.cfg.SNS.SubscriptionQueueURL; url != "" {
		queue := sqs.NewSource(publish.SNS, url, batch, sqs.Dial(a.awsConfig()))
		return sns.NewSubscriptionSource(queue, topic), nil
	}

	a.log.Warn("SNS_SUBSCRIPTION_QUEUE_URL is not set; sns worker only monitors the topic")

	return sns.NewMonitorSource(topic, a.log), nil
}

func (a *App) queueSource(batch int) (consume.Source, error) {
	switch a.cfg.Drivers.Queue {
	case config.DriverMemory:
		return a.memorySource(publish.SQS, batch)
	case config.DriverRabbitMQ:
		return rabbitmq.NewSource(a.rabbitConfig(), batch)
	}

	if a.cfg.SQS.QueueURL == "" {
		return nil, fmt.Errorf("sqs worker: SQS_QUEUE_URL is not set: %w", berr.ErrConfiguration)
	}

	return sqs.NewSource(publish.SQS, a.cfg.SQS.QueueURL, batch, sqs.Dial(a.awsConfig())), nil
}

func (a *App) memorySource(slot string, batch int) (consume.Source, error) {
	d, ok := a.dests[slot].(*inmemory.Destination)
	if !ok {
		return nil, errWrongDriver(slot+" worker", config.DriverMemory, slot)
	}

	return inmemory.NewSource(d, batch), nil
}

// Runners builds one runner per requested worker. "all" expands to every worker.
// Any source that cannot be built fails the whole call.
func (a *App) Runners(names ...string) ([]*worker.Runner, error) {
	if len(names) == 0 || slices.Contains(names, WorkerAll) {
		names = WorkerNames()
	}

	h := worker.NewLogHandler(a.log, a.cfg.Worker.ProcessingDelay)

	runners := make([]*worker.Runner, 0, len(names))

	for _, name := range names {
		src, poll, err := a.Source(name)
		if err != nil {
			return nil, err
		}

		runners = append(runners, worker.New(src, h, worker.Config{
			Name:           name,
			Concurrency:    a.cfg.Worker.Concurrency,
			PollInterval:   poll,
			StatusInterval: a.cfg.Worker.StatusInterval,
			Logger:         a.log,
		}))
	}

	return runners, nil
}
