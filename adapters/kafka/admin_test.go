package kafka_test

import (
	"context"
	"errors"
	"testing"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"

	"github.com/next-trace/scg-message-publisher/adapters/kafka"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

type fakeAdmin struct {
	topics    kadm.TopicDetails
	createErr error
	created   []string
	parts     int32
	repl      int16
}

func (f *fakeAdmin) ListTopics(context.Context, ...string) (kadm.TopicDetails, error) {
	return f.topics, nil
}

func (f *fakeAdmin) CreateTopic(
	_ context.Context,
	partitions int32,
	replicationFactor int16,
	_ map[string]*string,
	topic string,
) (kadm.CreateTopicResponse, error) {
	f.created = append(f.created, topic)
	f.parts, f.repl = partitions, replicationFactor

	return kadm.CreateTopicResponse{Topic: topic, Err: f.createErr}, nil
}

func TestAdmin_EnsureTopicCreates(t *testing.T) {
	fa := &fakeAdmin{topics: kadm.TopicDetails{}}

	created, err := kafka.NewAdmin(fa).EnsureTopic(t.Context(), "orders", 3, 1)
	if err != nil || !created {
		t.Fatalf("ensure: %v created=%v", err, created)
	}

	if len(fa.created) != 1 || fa.parts != 3 || fa.repl != 1 {
		t.Fatalf("create call: %+v", fa)
	}
}

func TestAdmin_EnsureTopicExisting(t *testing.T) {
	fa := &fakeAdmin{topics: kadm.TopicDetails{"orders": {Topic: "orders"}}}

	created, err := kafka.NewAdmin(fa).EnsureTopic(t.Context(), "orders", 3, 1)
	if err != nil || created {
		t.Fatalf("ensure: %v created=%v", err, created)
	}

	if len(fa.created) != 0 {
		t.Fatalf("must not create an existing topic")
	}
}

func TestAdmin_EnsureTopicRace(t *testing.T) {
	fa := &fakeAdmin{topics: kadm.TopicDetails{}, createErr: kerr.TopicAlreadyExists}

	created, err := kafka.NewAdmin(fa).EnsureTopic(t.Context(), "orders", 1, 1)
	if err != nil || created {
		t.Fatalf("ensure: %v created=%v", err, created)
	}
}

func TestAdmin_EnsureTopicValidation(t *testing.T) {
	_, err := kafka.NewAdmin(&fakeAdmin{}).EnsureTopic(t.Context(), "", 1, 1)
	if !errors.Is(err, berr.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}
