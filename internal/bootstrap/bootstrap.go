// Package bootstrap builds the destinations, gateway, worker runners and admin
// helpers selected by the configuration. Everything is constructed once here and
// injected; nothing below this package reads configuration on its own.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/next-trace/scg-message-publisher/adapters/awsconf"
	"github.com/next-trace/scg-message-publisher/adapters/inmemory"
	"github.com/next-trace/scg-message-publisher/adapters/kafka"
	"github.com/next-trace/scg-message-publisher/adapters/nats"
	"github.com/next-trace/scg-message-publisher/adapters/rabbitmq"
	"github.com/next-trace/scg-message-publisher/adapters/sns"
	"github.com/next-trace/scg-message-publisher/adapters/sqs"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/contract/publish"
	"github.com/next-trace/scg-message-publisher/gateway"
	"github.com/next-trace/scg-message-publisher/internal/config"
	"github.com/next-trace/scg-message-publisher/internal/logging"
)

// App owns every adapter built from one configuration.
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	gw       *gateway.Gateway
	dests    map[string]publish.Destination
	cleanups []func()
}

// New builds one destination per slot and a gateway over them. Missing settings
// that only matter on use (topic ARN, queue URL) are logged, not returned.
func New(cfg *config.Config, log *slog.Logger, opts ...gateway.Option) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, dests: map[string]publish.Destination{}}

	builders := []func() (publish.Destination, func(), error){a.buildKafka, a.buildPubSub, a.buildQueue}

	for _, build := range builders {
		d, cleanup, err := build()
		if err != nil {
			a.Close()
			return nil, err
		}

		a.dests[d.Name()] = d
		if cleanup != nil {
			a.cleanups = append(a.cleanups, cleanup)
		}

		log.Info("destination ready",
			logging.Destination(d.Name()),
			slog.String("driver", describe(d).Driver),
		)
	}

	list := make([]publish.Destination, 0, len(a.dests))
	for _, name := range publish.Names() {
		list = append(list, a.dests[name])
	}

	a.gw = gateway.New(list, append([]gateway.Option{gateway.WithLogger(log)}, opts...)...)

	return a, nil
}

// Gateway returns the publish gateway.
func (a *App) Gateway() *gateway.Gateway { return a.gw }

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Destination returns the destination filling slot name.
func (a *App) Destination(name string) (publish.Destination, bool) {
	d, ok := a.dests[name]
	return d, ok
}

// Close releases every adapter connection. It is safe to call more than once.
func (a *App) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}

	a.cleanups = nil
}

func (a *App) awsConfig() awsconf.Config {
	return awsconf.Config{
		Region:          a.cfg.AWS.Region,
		AccessKeyID:     a.cfg.AWS.AccessKeyID,
		SecretAccessKey: a.cfg.AWS.SecretAccessKey,
		SessionToken:    a.cfg.AWS.SessionToken,
		Endpoint:        a.cfg.AWS.Endpoint,
	}
}

func (a *App) kafkaConfig() kafka.Config {
	k := a.cfg.Kafka

	kc := kafka.Config{
		Brokers:  k.BrokerList(),
		Topic:    k.Topic,
		ClientID: k.ClientID,
		GroupID:  k.ConsumerGroup,
		Logger:   a.log,
	}

	if k.SASLUsername != "" {
		kc.SASL = &kafka.SASLConfig{Username: k.SASLUsername, Password: k.SASLPassword}
	}

	return kc
}

func (a *App) natsConfig() nats.Config {
	return nats.Config{
		URL:        a.cfg.NATS.URL,
		Name:       a.cfg.App.Name,
		Subject:    a.cfg.NATS.Subject,
		QueueGroup: a.cfg.Kafka.ConsumerGroup,
	}
}

func (a *App) rabbitConfig() rabbitmq.Config {
	return rabbitmq.Config{URL: a.cfg.RabbitMQ.URL, Queue: a.cfg.RabbitMQ.Queue}
}

func (a *App) buildKafka() (publish.Destination, func(), error) {
	if a.cfg.Drivers.Kafka == config.DriverMemory {
		return inmemory.New(publish.Kafka), nil, nil
	}

	d, cleanup, err := kafka.NewWithKgo(a.kafkaConfig())

	return built(publish.Kafka, d, cleanup, err)
}

func (a *App) buildPubSub() (publish.Destination, func(), error) {
	switch a.cfg.Drivers.PubSub {
	case config.DriverMemory:
		return inmemory.New(publish.SNS), nil, nil
	case config.DriverNATS:
		d, cleanup, err := nats.NewWithNATS(a.natsConfig())
		return built(publish.SNS, d, cleanup, err)
	default:
		d, cleanup, err := sns.NewWithAWS(sns.Config{
			AWS:      a.awsConfig(),
			TopicArn: a.cfg.SNS.TopicArn,
			Logger:   a.log,
		})

		return built(publish.SNS, d, cleanup, err)
	}
}

func (a *App) buildQueue() (publish.Destination, func(), error) {
	switch a.cfg.Drivers.Queue {
	case config.DriverMemory:
		return inmemory.New(publish.SQS), nil, nil
	case config.DriverRabbitMQ:
		d, cleanup, err := rabbitmq.NewWithAMQPConn(a.rabbitConfig())
		return built(publish.SQS, d, cleanup, err)
	default:
		d, cleanup, err := sqs.NewWithAWS(sqs.Config{
			AWS:      a.awsConfig(),
			QueueURL: a.cfg.SQS.QueueURL,
			Logger:   a.log,
		})

		return built(publish.SQS, d, cleanup, err)
	}
}

// built labels a constructor error with its slot. A failed constructor never
// yields a typed nil destination.
func built[D publish.Destination](slot string, d D, cleanup func(), err error) (publish.Destination, func(), error) {
	if err != nil {
		return nil, nil, fmt.Errorf("build %s destination: %w", slot, err)
	}

	return d, cleanup, nil
}

func describe(d publish.Destination) publish.Info {
	if ds, ok := d.(publish.Describer); ok {
		return ds.Describe()
	}

	return publish.Info{Driver: d.Name(), Configured: true}
}

// errWrongDriver reports an operation that needs a driver the slot does not use.
func errWrongDriver(op, want, got string) error {
	return fmt.Errorf("%s needs the %s driver, configured %q: %w", op, want, got, berr.ErrConfiguration)
}
