package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "messages", cfg.Kafka.Topic)
	assert.Equal(t, "message-publisher-workers", cfg.Kafka.ConsumerGroup)
	assert.Equal(t, "message-publisher-api", cfg.Kafka.ClientID)
	assert.Equal(t, []string{config.DefaultBroker}, cfg.Kafka.BrokerList())
	assert.Equal(t, 5*time.Second, cfg.SQS.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.SNS.PollInterval)
	assert.Equal(t, config.DriverSNS, cfg.Drivers.PubSub)
	assert.Equal(t, config.DriverSQS, cfg.Drivers.Queue)
	assert.Equal(t, time.Duration(0), cfg.Worker.ProcessingDelay)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentNames(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092,,")
	t.Setenv("SQS_POLL_INTERVAL", "2500")
	t.Setenv("SNS_POLL_INTERVAL", "3s")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("PUBSUB_DRIVER", "NATS")
	t.Setenv("SNS_TOPIC_ARN", " arn:aws:sns:us-east-1:1:t ")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2500*time.Millisecond, cfg.SQS.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.SNS.PollInterval)
	assert.Equal(t, "production", cfg.App.Env)
	assert.False(t, cfg.App.Development())
	assert.Equal(t, config.DriverNATS, cfg.Drivers.PubSub)
	assert.Equal(t, "arn:aws:sns:us-east-1:1:t", cfg.SNS.TopicArn)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msgpub.yaml")
	body := "server:\n  port: 9000\nworker:\n  batch_size: 5\n  processing_delay: 250\nkafka:\n  topic: orders\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	l, err := config.NewLoader(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())

	cfg, err := l.Config()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Worker.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.ProcessingDelay)
	assert.Equal(t, "orders", cfg.Kafka.Topic)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, berr.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Drivers.Queue = "kinesis"
	cfg.Worker.BatchSize = 0

	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, berr.ErrConfiguration)
	assert.Contains(t, err.Error(), "kinesis")
	assert.Contains(t, err.Error(), "batch size")
}

func TestMissing(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.AWS.Region = ""
	cfg.Kafka.Brokers = nil
	cfg.SNS.TopicArn = ""
	cfg.SQS.QueueURL = ""

	assert.Equal(t, []string{"AWS_REGION", "KAFKA_BROKERS", "SNS_TOPIC_ARN", "SQS_QUEUE_URL"}, cfg.Missing())

	cfg.Drivers = config.DriverConfig{Kafka: config.DriverMemory, PubSub: config.DriverMemory, Queue: config.DriverMemory}
	assert.Empty(t, cfg.Missing())
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"":      0,
		"5000":  5 * time.Second,
		"1m":    time.Minute,
		" 250 ": 250 * time.Millisecond,
	}

	for in, want := range cases {
		got, err := config.ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := config.ParseDuration("soon")
	assert.Error(t, err)
}
