package sns

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/next-trace/scg-message-publisher/contract/consume"
)

// notification is the JSON document SNS delivers to a subscribed queue when
// raw message delivery is off.
type notification struct {
	Type              string `json:"Type"`
	MessageID         string `json:"MessageId"`
	TopicArn          string `json:"TopicArn"`
	Message           string `json:"Message"`
	Timestamp         string `json:"Timestamp"`
	MessageAttributes map[string]struct {
		Type  string `json:"Type"`
		Value string `json:"Value"`
	} `json:"MessageAttributes"`
}

// Unwrap turns a delivery read from a subscription queue into a content-only
// delivery. Raw deliveries already carry the attributes and pass through.
func Unwrap(d consume.Delivery) consume.Delivery {
	d.ContentOnly = true

	var n notification
	if err := json.Unmarshal(d.Body, &n); err != nil || n.Type != "Notification" {
		return d
	}

	attrs := make(map[string]string, len(d.Attributes)+len(n.MessageAttributes)+2)
	for k, v := range d.Attributes {
		attrs[k] = v
	}

	for k, v := range n.MessageAttributes {
		attrs[k] = v.Value
	}

	attrs["sns-message-id"] = n.MessageID
	attrs["topicArn"] = n.TopicArn

	d.Body = []byte(n.Message)
	d.Attributes = attrs

	return d
}

// SubscriptionSource reads SNS notifications from a subscribed queue source.
type SubscriptionSource struct {
	queue consume.Source
	topic *Destination
}

var (
	_ consume.Source  = (*SubscriptionSource)(nil)
	_ consume.Statser = (*SubscriptionSource)(nil)
)

// NewSubscriptionSource wraps the queue subscribed to the topic. topic may be
// nil when only the queue is known.
func NewSubscriptionSource(queue consume.Source, topic *Destination) *SubscriptionSource {
	return &SubscriptionSource{queue: queue, topic: topic}
}

func (s *SubscriptionSource) Name() string { return "sns" }

func (s *SubscriptionSource) Open(ctx context.Context) error { return s.queue.Open(ctx) }

func (s *SubscriptionSource) Poll(ctx context.Context) ([]consume.Delivery, error) {
	ds, err := s.queue.Poll(ctx)
	if err != nil {
		return nil, err
	}

	for i := range ds {
		ds[i] = Unwrap(ds[i])
	}

	return ds, nil
}

func (s *SubscriptionSource) Close() error { return s.queue.Close() }

func (s *SubscriptionSource) Stats(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}

	if st, ok := s.queue.(consume.Statser); ok {
		qs, err := st.Stats(ctx)
		if err != nil {
			return nil, err
		}

		out["queue"] = qs
	}

	if s.topic != nil && s.topic.TopicArn() != "" {
		ts, err := s.topic.TopicStatus(ctx)
		if err != nil {
			return nil, err
		}

		out["topic"] = ts.Map()
	}

	return out, nil
}

// MonitorSource is used when no subscription queue is configured. Each poll
// reads and logs the topic status and yields no deliveries.
type MonitorSource struct {
	topic *Destination
	log   *slog.Logger

	mu   sync.Mutex
	last TopicStatus
}

var (
	_ consume.Source  = (*MonitorSource)(nil)
	_ consume.Statser = (*MonitorSource)(nil)
)

func NewMonitorSource(topic *Destination, log *slog.Logger) *MonitorSource {
	if log == nil {
		log = slog.Default()
	}

	return &MonitorSource{topic: topic, log: log}
}

func (m *MonitorSource) Name() string { return "sns" }

// Open checks the topic once so a bad ARN is reported at startup.
func (m *MonitorSource) Open(ctx context.Context) error {
	st, err := m.topic.TopicStatus(ctx)
	if err != nil {
		return err
	}

	m.remember(st)
	m.log.InfoContext(ctx, "sns topic reachable", "topic_arn", st.TopicArn,
		"subscriptions_confirmed", st.SubscriptionsConfirmed)

	return nil
}

func (m *MonitorSource) Poll(ctx context.Context) ([]consume.Delivery, error) {
	st, err := m.topic.TopicStatus(ctx)
	if err != nil {
		return nil, err
	}

	m.remember(st)
	m.log.InfoContext(ctx, "sns topic status",
		"topic_arn", st.TopicArn,
		"subscriptions_confirmed", st.SubscriptionsConfirmed,
		"subscriptions_pending", st.SubscriptionsPending,
	)

	return nil, nil
}

func (m *MonitorSource) Close() error { return nil }

func (m *MonitorSource) Stats(context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.last.Map(), nil
}

func (m *MonitorSource) remember(st TopicStatus) {
	m.mu.Lock()
	m.last = st
	m.mu.Unlock()
}
