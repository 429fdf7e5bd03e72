package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"

	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

// TopicAdmin is the slice of kadm the admin commands need.
type TopicAdmin interface {
	ListTopics(ctx context.Context, topics ...string) (kadm.TopicDetails, error)
	CreateTopic(
		ctx context.Context,
		partitions int32,
		replicationFactor int16,
		configs map[string]*string,
		topic string,
	) (kadm.CreateTopicResponse, error)
}

var _ TopicAdmin = (*kadm.Client)(nil)

// Admin manages topics.
type Admin struct {
	adm TopicAdmin
}

// NewAdmin wraps an existing admin client.
func NewAdmin(adm TopicAdmin) *Admin { return &Admin{adm: adm} }

// NewAdminWithKgo connects an admin client. The cleanup closes it.
func NewAdminWithKgo(ctx context.Context, cfg Config) (*Admin, func(), error) {
	opts, err := cfg.baseOpts()
	if err != nil {
		return nil, nil, err
	}

	cl, err := pingClient(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka admin connect: %w", errors.Join(berr.ErrConnection, err))
	}

	return NewAdmin(kadm.NewClient(cl)), cl.Close, nil
}

// EnsureTopic creates the topic unless it already exists. It reports whether a
// topic was created.
func (a *Admin) EnsureTopic(ctx context.Context, name string, partitions int32, replication int16) (bool, error) {
	if name == "" {
		return false, berr.Invalid("topic name is required")
	}

	topics, err := a.adm.ListTopics(ctx, name)
	if err != nil {
		return false, fmt.Errorf("kafka list topics: %w", errors.Join(berr.ErrConnection, err))
	}

	if d, ok := topics[name]; ok && d.Err == nil {
		return false, nil
	}

	resp, err := a.adm.CreateTopic(ctx, partitions, replication, nil, name)
	if err != nil {
		return false, fmt.Errorf("kafka create topic %s: %w", name, errors.Join(berr.ErrPublishFailed, err))
	}

	if resp.Err != nil {
		if errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return false, nil
		}

		return false, fmt.Errorf("kafka create topic %s: %w", name, errors.Join(berr.ErrPublishFailed, resp.Err))
	}

	return true, nil
}
