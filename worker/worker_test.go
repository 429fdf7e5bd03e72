package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/next-trace/scg-message-publisher/adapters/inmemory"
	"github.com/next-trace/scg-message-publisher/contract/consume"
	"github.com/next-trace/scg-message-publisher/contract/envelope"
	"github.com/next-trace/scg-message-publisher/contract/publish"
	"github.com/next-trace/scg-message-publisher/worker"
)

var fixedNow = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

// fakes

type recordingHandler struct {
	mu    sync.Mutex
	calls []string
	fail  error

	inFlight atomic.Int32
	peak     atomic.Int32
	hold     time.Duration
}

func (h *recordingHandler) rec(tag string, e envelope.Envelope) error {
	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)

	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if h.hold > 0 {
		time.Sleep(h.hold)
	}

	h.mu.Lock()
	h.calls = append(h.calls, tag+":"+e.ID)
	h.mu.Unlock()

	return h.fail
}

func (h *recordingHandler) HandleKafkaSNS(_ context.Context, e envelope.Envelope) error {
	return h.rec("kafka-sns", e)
}

func (h *recordingHandler) HandleSNSSQS(_ context.Context, e envelope.Envelope) error {
	return h.rec("sns-sqs", e)
}

func (h *recordingHandler) HandleKafkaOnly(_ context.Context, e envelope.Envelope) error {
	return h.rec("kafka-only", e)
}

func (h *recordingHandler) HandleSNSOnly(_ context.Context, e envelope.Envelope) error {
	return h.rec("sns-only", e)
}

func (h *recordingHandler) HandleSQSOnly(_ context.Context, e envelope.Envelope) error {
	return h.rec("sqs-only", e)
}

func (h *recordingHandler) HandleUnknown(_ context.Context, e envelope.Envelope) error {
	return h.rec("unknown", e)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.calls)
}

type scriptedSource struct {
	openErr error

	mu     sync.Mutex
	script []func() ([]consume.Delivery, error)
	polls  int
	closed bool
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Open(context.Context) error { return s.openErr }

func (s *scriptedSource) Poll(ctx context.Context) ([]consume.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i := s.polls
	s.polls++

	if i < len(s.script) {
		return s.script[i]()
	}

	return nil, nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return nil
}

func (s *scriptedSource) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.polls
}

func env(t *testing.T, id string, typ envelope.Type) envelope.Envelope {
	t.Helper()

	e, err := envelope.New(id, "content "+id, nil, typ, fixedNow)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}

	return e
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}

		time.Sleep(5 * time.Millisecond)
	}
}

func start(t *testing.T, r *worker.Runner) (cancel func() error) {
	t.Helper()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- r.Run(ctx) }()

	return func() error {
		stop()

		select {
		case err := <-done:
			return err
		case <-time.After(3 * time.Second):
			t.Fatalf("runner did not stop")
			return nil
		}
	}
}

func TestDispatch(t *testing.T) {
	h := &recordingHandler{}

	for _, typ := range envelope.Types() {
		if err := worker.Dispatch(t.Context(), h, env(t, string(typ), typ)); err != nil {
			t.Fatalf("dispatch %s: %v", typ, err)
		}
	}

	if err := worker.Dispatch(t.Context(), h, envelope.Envelope{ID: "x", Type: "carrier-pigeon"}); err != nil {
		t.Fatalf("dispatch unknown: %v", err)
	}

	want := []string{
		"kafka-sns:kafka-sns", "sns-sqs:sns-sqs", "kafka-only:kafka-only",
		"sns-only:sns-only", "sqs-only:sqs-only", "unknown:x",
	}
	if fmt.Sprint(h.calls) != fmt.Sprint(want) {
		t.Fatalf("calls: %v", h.calls)
	}
}

func TestRunner_ProcessesAndAcks(t *testing.T) {
	q := inmemory.New(publish.SQS)
	for i := range 3 {
		if _, err := q.Send(t.Context(), env(t, fmt.Sprintf("m%d", i), envelope.TypeSQSOnly)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	h := &recordingHandler{}
	r := worker.New(inmemory.NewSource(q, 10), h, worker.Config{PollInterval: 5 * time.Millisecond})

	stop := start(t, r)

	eventually(t, "three acks", func() bool { return q.Acked() == 3 })

	if err := stop(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if r.State() != worker.StateStopped {
		t.Fatalf("state: %s", r.State())
	}

	st := r.Status()
	if st.Processed != 3 || st.Failed != 0 || len(st.Recent) != 3 || st.Recent[0].ID == "" {
		t.Fatalf("status: %+v", st)
	}
}

func TestRunner_HandlerFailureLeavesUnacked(t *testing.T) {
	q := inmemory.New(publish.SQS)
	if _, err := q.Send(t.Context(), env(t, "bad", envelope.TypeSQSOnly)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := &recordingHandler{fail: errors.New("handler broke")}
	r := worker.New(inmemory.NewSource(q, 10), h, worker.Config{PollInterval: time.Millisecond})

	stop := start(t, r)

	// nacked items are requeued, so the loop keeps seeing the same message
	eventually(t, "redelivery", func() bool { return h.count() >= 2 })

	if err := stop(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if q.Acked() != 0 {
		t.Fatalf("failed message was acked")
	}

	if st := r.Status(); st.Failed < 2 || st.Processed != 0 || st.Recent[0].Success {
		t.Fatalf("status: %+v", st)
	}
}

func TestRunner_MalformedDeliveryIsRejected(t *testing.T) {
	var nacked, acked, rejected atomic.Int32

	src := &scriptedSource{script: []func() ([]consume.Delivery, error){
		func() ([]consume.Delivery, error) {
			return []consume.Delivery{{
				ID:     "d1",
				Body:   []byte("{not json"),
				Ack:    func(context.Context) error { acked.Add(1); return nil },
				Nack:   func(context.Context) error { nacked.Add(1); return nil },
				Reject: func(context.Context) error { rejected.Add(1); return nil },
			}}, nil
		},
	}}

	h := &recordingHandler{}
	r := worker.New(src, h, worker.Config{PollInterval: time.Millisecond})

	stop := start(t, r)

	eventually(t, "reject", func() bool { return rejected.Load() == 1 })

	if err := stop(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if acked.Load() != 0 || nacked.Load() != 0 || h.count() != 0 {
		t.Fatalf("acked=%d nacked=%d handled=%d", acked.Load(), nacked.Load(), h.count())
	}

	if st := r.Status(); st.Failed != 1 {
		t.Fatalf("failed: %d", st.Failed)
	}
}

// repeatingSource hands out the same delivery on every poll, like a queue
// that immediately redelivers whatever was left unacknowledged.
type repeatingSource struct {
	d     consume.Delivery
	polls atomic.Int32
}

func (s *repeatingSource) Name() string { return "repeating" }

func (s *repeatingSource) Open(context.Context) error { return nil }

func (s *repeatingSource) Poll(ctx context.Context) ([]consume.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.polls.Add(1)

	return []consume.Delivery{s.d}, nil
}

func (s *repeatingSource) Close() error { return nil }

func TestRunner_FailingBatchesArePaced(t *testing.T) {
	e := env(t, "stuck", envelope.TypeKafkaOnly)
	body, _ := envelope.Encode(e)

	tests := []struct {
		name string
		d    consume.Delivery
		h    *recordingHandler
	}{
		{"undecodable", consume.Delivery{ID: "bad", Body: []byte("garbage")}, &recordingHandler{}},
		{"handler failure", consume.Delivery{ID: "stuck", Body: body}, &recordingHandler{fail: errors.New("downstream down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &repeatingSource{d: tt.d}
			r := worker.New(src, tt.h, worker.Config{PollInterval: 50 * time.Millisecond})

			stop := start(t, r)
			time.Sleep(250 * time.Millisecond)

			if err := stop(); err != nil {
				t.Fatalf("run: %v", err)
			}

			if n := src.polls.Load(); n < 1 || n > 10 {
				t.Fatalf("polls in 250ms with a 50ms interval: %d", n)
			}
		})
	}
}

func TestRunner_PollErrorsDoNotStopLoop(t *testing.T) {
	e := env(t, "after-error", envelope.TypeKafkaOnly)
	body, _ := envelope.Encode(e)

	src := &scriptedSource{script: []func() ([]consume.Delivery, error){
		func() ([]consume.Delivery, error) { return nil, errors.New("broker unavailable") },
		func() ([]consume.Delivery, error) { return []consume.Delivery{{ID: "k", Body: body}}, nil },
	}}

	h := &recordingHandler{}
	r := worker.New(src, h, worker.Config{PollInterval: time.Millisecond})

	stop := start(t, r)

	eventually(t, "message after poll error", func() bool { return h.count() == 1 })

	if err := stop(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !src.closed {
		t.Fatalf("source not closed")
	}
}

func TestRunner_OpenFailure(t *testing.T) {
	src := &scriptedSource{openErr: errors.New("queue url missing")}
	r := worker.New(src, &recordingHandler{}, worker.Config{})

	if err := r.Run(t.Context()); err == nil {
		t.Fatalf("expected startup error")
	}

	if r.State() != worker.StateStopped || src.pollCount() != 0 {
		t.Fatalf("state=%s polls=%d", r.State(), src.pollCount())
	}
}

func TestRunner_ConcurrencyIsBounded(t *testing.T) {
	q := inmemory.New(publish.Kafka)
	for i := range 12 {
		_, _ = q.Send(t.Context(), env(t, fmt.Sprintf("c%d", i), envelope.TypeKafkaSNS))
	}

	h := &recordingHandler{hold: 10 * time.Millisecond}
	r := worker.New(inmemory.NewSource(q, 12), h, worker.Config{Concurrency: 3, PollInterval: time.Millisecond})

	stop := start(t, r)

	eventually(t, "all handled", func() bool { return h.count() == 12 })

	if err := stop(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if p := h.peak.Load(); p > 3 || p < 2 {
		t.Fatalf("peak in-flight %d, want 2..3", p)
	}
}

func TestRunner_HistoryIsBounded(t *testing.T) {
	q := inmemory.New(publish.SQS)
	for i := range worker.HistorySize + 5 {
		_, _ = q.Send(t.Context(), env(t, fmt.Sprintf("h%03d", i), envelope.TypeSQSOnly))
	}

	r := worker.New(inmemory.NewSource(q, 10), &recordingHandler{}, worker.Config{PollInterval: time.Millisecond, Concurrency: 1})

	stop := start(t, r)

	eventually(t, "all processed", func() bool { return r.Status().Processed == int64(worker.HistorySize+5) })

	if err := stop(); err != nil {
		t.Fatalf("run: %v", err)
	}

	h := r.History()
	if len(h) != worker.HistorySize || h[0].ID != "h104" {
		t.Fatalf("history len=%d newest=%s", len(h), h[0].ID)
	}

	r.ClearHistory()

	if len(r.History()) != 0 {
		t.Fatalf("history not cleared")
	}
}

func TestRunner_AlreadyRunning(t *testing.T) {
	r := worker.New(&scriptedSource{}, &recordingHandler{}, worker.Config{PollInterval: time.Millisecond})

	stop := start(t, r)

	eventually(t, "running", func() bool { return r.State() != worker.StateStopped })

	if err := r.Run(t.Context()); !errors.Is(err, worker.ErrAlreadyRunning) {
		t.Fatalf("want ErrAlreadyRunning, got %v", err)
	}

	if err := stop(); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunAll(t *testing.T) {
	a := inmemory.New(publish.Kafka)
	b := inmemory.New(publish.SQS)
	_, _ = a.Send(t.Context(), env(t, "a", envelope.TypeKafkaOnly))
	_, _ = b.Send(t.Context(), env(t, "b", envelope.TypeSQSOnly))

	h := &recordingHandler{}
	cfg := worker.Config{PollInterval: time.Millisecond}
	bad := worker.New(&scriptedSource{openErr: errors.New("nope")}, h, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- worker.RunAll(ctx,
			worker.New(inmemory.NewSource(a, 10), h, cfg),
			worker.New(inmemory.NewSource(b, 10), h, cfg),
			bad,
		)
	}()

	eventually(t, "both acked", func() bool { return a.Acked() == 1 && b.Acked() == 1 })
	cancel()

	if err := <-done; err == nil {
		t.Fatalf("expected the startup error of the bad runner")
	}
}

func TestLogHandler_DelayHonoursContext(t *testing.T) {
	h := worker.NewLogHandler(nil, time.Hour)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	// rand.N(time.Hour) is effectively never zero, so the canceled ctx wins
	if err := h.HandleSQSOnly(ctx, env(t, "x", envelope.TypeSQSOnly)); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	if err := worker.NewLogHandler(nil, 0).HandleUnknown(t.Context(), envelope.Envelope{ID: "y"}); err != nil {
		t.Fatalf("no delay: %v", err)
	}
}

func TestStateString(t *testing.T) {
	want := []string{"STOPPED", "STARTING", "POLLING", "PROCESSING", "STOPPING"}

	for i, w := range want {
		if got := worker.State(i).String(); got != w {
			t.Fatalf("state %d: %s", i, got)
		}
	}
}
