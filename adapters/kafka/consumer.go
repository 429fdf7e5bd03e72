package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/next-trace/scg-message-publisher/contract/consume"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

// DefaultGroupID is the consumer group the worker joins.
const DefaultGroupID = "message-publisher-workers"

// Consumer is the slice of the franz-go client the worker source needs.
// Records are committed automatically once marked.
type Consumer interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	SetOffsets(offsets map[string]map[int32]kgo.EpochOffset)
	Close()
}

var _ Consumer = (*kgo.Client)(nil)

// Source polls a topic as a member of a consumer group, starting from the
// latest offset for a new group.
//
// Deliveries of one partition may be handled concurrently, but commits only
// move over the contiguous prefix of settled records. A nacked record holds
// its partition back and is fetched again, with everything after it, on the
// next poll.
type Source struct {
	topic string
	batch int
	dial  func(ctx context.Context) (Consumer, error)
	cl    Consumer

	mu    sync.Mutex
	parts map[partitionKey]*partition
}

type partitionKey struct {
	topic     string
	partition int32
}

// partition tracks the records of one partition handed out by the last poll.
type partition struct {
	recs    []*kgo.Record
	settled []bool
	next    int
	failed  *kgo.Record
}

var _ consume.Source = (*Source)(nil)

// NewSource returns a source over a lazily built franz-go group consumer.
func NewSource(cfg Config, batch int) (*Source, error) {
	opts, err := cfg.baseOpts()
	if err != nil {
		return nil, err
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	group := cfg.GroupID
	if group == "" {
		group = DefaultGroupID
	}

	opts = append(opts,
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.AutoCommitMarks(),
	)

	return NewSourceWith(topic, batch, func(ctx context.Context) (Consumer, error) {
		return pingClient(ctx, opts)
	}), nil
}

// NewSourceWith builds a source over a custom consumer factory.
func NewSourceWith(topic string, batch int, dial func(ctx context.Context) (Consumer, error)) *Source {
	if batch <= 0 {
		batch = 10
	}

	return &Source{topic: topic, batch: batch, dial: dial}
}

func (s *Source) Name() string { return "kafka" }

func (s *Source) Open(ctx context.Context) error {
	if s.cl != nil {
		return nil
	}

	cl, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("kafka consumer connect: %w", errors.Join(berr.ErrConnection, err))
	}

	s.cl = cl

	return nil
}

// Poll returns up to one batch of records. Partition errors are reported only
// when nothing was fetched; otherwise the records are returned and the next
// poll retries.
func (s *Source) Poll(ctx context.Context) ([]consume.Delivery, error) {
	if s.cl == nil {
		return nil, fmt.Errorf("kafka poll: source not open: %w", berr.ErrReceiveFailed)
	}

	s.rewind()

	fetches := s.cl.PollRecords(ctx, s.batch)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if fetches.IsClientClosed() {
		return nil, fmt.Errorf("kafka poll: client closed: %w", berr.ErrReceiveFailed)
	}

	var out []consume.Delivery

	s.mu.Lock()
	s.parts = make(map[partitionKey]*partition)
	fetches.EachRecord(func(r *kgo.Record) {
		k := partitionKey{topic: r.Topic, partition: r.Partition}

		p, ok := s.parts[k]
		if !ok {
			p = &partition{}
			s.parts[k] = p
		}

		p.recs = append(p.recs, r)
		p.settled = append(p.settled, false)
		out = append(out, s.delivery(r, p, len(p.recs)-1))
	})
	s.mu.Unlock()

	if errs := fetches.Errors(); len(errs) > 0 && len(out) == 0 {
		joined := make([]error, 0, len(errs))
		for _, fe := range errs {
			joined = append(joined, fmt.Errorf("%s[%d]: %w", fe.Topic, fe.Partition, fe.Err))
		}

		return nil, fmt.Errorf("kafka poll: %w", errors.Join(berr.ErrReceiveFailed, errors.Join(joined...)))
	}

	return out, nil
}

func (s *Source) delivery(r *kgo.Record, p *partition, i int) consume.Delivery {
	attrs := make(map[string]string, len(r.Headers)+4)
	for _, h := range r.Headers {
		attrs[h.Key] = string(h.Value)
	}

	attrs["topic"] = r.Topic
	attrs["partition"] = strconv.Itoa(int(r.Partition))
	attrs["offset"] = strconv.FormatInt(r.Offset, 10)
	attrs["key"] = string(r.Key)

	cl := s.cl
	settle := func(context.Context) error {
		s.settle(cl, p, i)
		return nil
	}

	return consume.Delivery{
		ID:         fmt.Sprintf("%s/%d/%d", r.Topic, r.Partition, r.Offset),
		Body:       r.Value,
		Attributes: attrs,
		Ack:        settle,
		Nack: func(context.Context) error {
			s.fail(p, r)
			return nil
		},
		// An undecodable record is skipped; it would fail the same way again.
		Reject: settle,
	}
}

// settle marks record i done and commits the settled prefix of its partition.
func (s *Source) settle(cl Consumer, p *partition, i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.settled[i] = true

	start := p.next
	for p.next < len(p.recs) && p.settled[p.next] {
		p.next++
	}

	if p.next > start {
		cl.MarkCommitRecords(p.recs[p.next-1])
	}
}

func (s *Source) fail(p *partition, r *kgo.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.failed == nil || r.Offset < p.failed.Offset {
		p.failed = r
	}
}

// rewind moves every partition with a nacked record back to that record so
// the next poll fetches it again.
func (s *Source) rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()

	offsets := make(map[string]map[int32]kgo.EpochOffset)

	for k, p := range s.parts {
		if p.failed == nil {
			continue
		}

		if offsets[k.topic] == nil {
			offsets[k.topic] = make(map[int32]kgo.EpochOffset)
		}

		offsets[k.topic][k.partition] = kgo.EpochOffset{Epoch: -1, Offset: p.failed.Offset}
	}

	s.parts = nil

	if len(offsets) > 0 {
		s.cl.SetOffsets(offsets)
	}
}

func (s *Source) Close() error {
	if s.cl != nil {
		s.cl.Close()
		s.cl = nil
	}

	return nil
}
