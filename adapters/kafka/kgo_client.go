package kafka

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"

	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

// Concrete franz-go constructors.

type SASLConfig struct {
	Username string
	Password string
}

type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
	// GroupID is the consumer group used by the worker source.
	GroupID string
	// SASL enables SASL/PLAIN over TLS when set.
	SASL   *SASLConfig
	TLS    *tls.Config
	Logger *slog.Logger
}

func (c Config) baseOpts() ([]kgo.Opt, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required: %w", berr.ErrConfiguration)
	}

	clientID := c.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(c.Brokers...),
		kgo.ClientID(clientID),
	}

	if c.Logger != nil {
		opts = append(opts, kgo.WithLogger(slogLogger{l: c.Logger}))
	}

	tlsCfg := c.TLS
	if c.SASL != nil && c.SASL.Username != "" {
		opts = append(opts, kgo.SASL(plain.Auth{User: c.SASL.Username, Pass: c.SASL.Password}.AsMechanism()))

		if tlsCfg == nil {
			tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}

	return opts, nil
}

// pingClient builds a client and checks that at least one broker answers, so a
// dead cluster surfaces on first use instead of inside ProduceSync retries.
func pingClient(ctx context.Context, opts []kgo.Opt) (*kgo.Client, error) {
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client init: %w", err)
	}

	if err := cl.Ping(ctx); err != nil {
		cl.Close()
		return nil, err
	}

	return cl, nil
}

// NewWithKgo builds a franz-go backed destination. The broker connection is made
// on first Send. The returned cleanup closes the client.
func NewWithKgo(cfg Config) (*Destination, func(), error) {
	opts, err := cfg.baseOpts()
	if err != nil {
		return nil, nil, err
	}

	d := newDestination(cfg.Topic, cfg.Brokers, func(ctx context.Context) (Producer, error) {
		return pingClient(ctx, opts)
	})

	cleanup := func() { _ = d.Close() }

	return d, cleanup, nil
}

// slogLogger forwards franz-go client logs at warn and above to slog.
type slogLogger struct{ l *slog.Logger }

func (slogLogger) Level() kgo.LogLevel { return kgo.LogLevelWarn }

func (s slogLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	switch level {
	case kgo.LogLevelError:
		s.l.Error(msg, keyvals...)
	case kgo.LogLevelWarn:
		s.l.Warn(msg, keyvals...)
	case kgo.LogLevelInfo:
		s.l.Info(msg, keyvals...)
	default:
		s.l.Debug(msg, keyvals...)
	}
}
