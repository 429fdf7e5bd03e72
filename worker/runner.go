package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/next-trace/scg-message-publisher/contract/consume"
	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/internal/logging"
	"github.com/next-trace/scg-message-publisher/internal/metrics"
)

// ErrAlreadyRunning is returned when Run is called on a Runner that is running.
var ErrAlreadyRunning = errors.New("worker already running")

// Defaults applied by New for zero Config fields.
const (
	DefaultConcurrency  = 4
	DefaultPollInterval = time.Second
)

// Config tunes a Runner.
type Config struct {
	// Name labels logs and metrics. Defaults to the source name.
	Name         string
	Concurrency  int
	PollInterval time.Duration
	// StatusInterval enables a periodic status log when positive.
	StatusInterval time.Duration
	Logger         *slog.Logger
}

// Runner drives one Source through the poll, dispatch and acknowledge cycle.
type Runner struct {
	src     consume.Source
	handler Handler
	cfg     Config
	log     *slog.Logger

	state     atomic.Int32
	running   atomic.Bool
	processed atomic.Int64
	failed    atomic.Int64
	polls     atomic.Int64
	lastPoll  atomic.Int64
	hist      *history
}

// New creates a Runner. Zero Config fields take their defaults.
func New(src consume.Source, h Handler, cfg Config) *Runner {
	if cfg.Name == "" {
		cfg.Name = src.Name()
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{
		src:     src,
		handler: h,
		cfg:     cfg,
		log:     cfg.Logger.With(logging.Worker(cfg.Name)),
		hist:    newHistory(HistorySize),
	}
}

// Name is the worker label.
func (r *Runner) Name() string { return r.cfg.Name }

// State reports the current lifecycle state.
func (r *Runner) State() State { return State(r.state.Load()) }

func (r *Runner) setState(s State) {
	prev := State(r.state.Swap(int32(s)))
	metrics.WorkerState.WithLabelValues(r.cfg.Name).Set(float64(s))

	if prev != s {
		r.log.Debug("worker state changed", slog.String("from", prev.String()), slog.String("to", s.String()))
	}
}

// Run opens the source and polls until ctx is canceled. An error is returned only
// when the source cannot be opened; poll and handler failures are logged and the
// loop continues. On cancellation the in-flight batch finishes before the source
// is closed.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("run %s: %w", r.cfg.Name, ErrAlreadyRunning)
	}
	defer r.running.Store(false)

	r.setState(StateStarting)
	r.log.Info("starting worker", slog.Int("concurrency", r.cfg.Concurrency), slog.Duration("poll_interval", r.cfg.PollInterval))

	if err := r.src.Open(ctx); err != nil {
		r.setState(StateStopped)
		r.log.Error("worker failed to start", logging.Error(err))

		return fmt.Errorf("start %s worker: %w", r.cfg.Name, err)
	}

	var wg sync.WaitGroup

	statusCtx, stopStatus := context.WithCancel(ctx)

	if r.cfg.StatusInterval > 0 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			r.reportStatus(statusCtx)
		}()
	}

	r.loop(ctx)

	r.setState(StateStopping)
	r.log.Info("stopping worker")

	stopStatus()
	wg.Wait()

	if err := r.src.Close(); err != nil {
		r.log.Warn("closing source failed", logging.Error(err))
	}

	r.setState(StateStopped)
	r.log.Info("worker stopped", slog.Int64("processed", r.processed.Load()), slog.Int64("failed", r.failed.Load()))

	return nil
}

func (r *Runner) loop(ctx context.Context) {
	for ctx.Err() == nil {
		r.setState(StatePolling)

		batch, err := r.src.Poll(ctx)
		r.polls.Add(1)
		r.lastPoll.Store(time.Now().UnixMilli())

		if err != nil {
			if ctx.Err() != nil {
				return
			}

			metrics.WorkerPolls.WithLabelValues(r.cfg.Name, metrics.OutcomeFailed).Inc()
			r.log.Warn("poll failed", logging.Error(err))
			r.wait(ctx)

			continue
		}

		metrics.WorkerBatchSize.WithLabelValues(r.cfg.Name).Observe(float64(len(batch)))

		if len(batch) == 0 {
			metrics.WorkerPolls.WithLabelValues(r.cfg.Name, metrics.OutcomeEmpty).Inc()
			r.wait(ctx)

			continue
		}

		metrics.WorkerPolls.WithLabelValues(r.cfg.Name, metrics.OutcomeSuccess).Inc()

		r.setState(StateProcessing)

		if failed := r.processBatch(context.WithoutCancel(ctx), batch); failed > 0 {
			// Unacked items may come straight back; pace the next poll.
			r.wait(ctx)
		}
	}
}

// wait sleeps for the poll interval or until ctx is canceled.
func (r *Runner) wait(ctx context.Context) {
	t := time.NewTimer(r.cfg.PollInterval)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// processBatch handles every delivery of batch with at most Concurrency in flight
// and returns the number of failed deliveries once all of them are done.
func (r *Runner) processBatch(ctx context.Context, batch []consume.Delivery) int64 {
	r.log.Debug("processing batch", slog.Int("size", len(batch)))

	var failed atomic.Int64

	p := newPool(ctx, min(r.cfg.Concurrency, len(batch)), len(batch), func(ctx context.Context, d consume.Delivery) {
		if !r.handle(ctx, d) {
			failed.Add(1)
		}
	})
	for _, d := range batch {
		p.Submit(d)
	}

	p.Drain()

	return failed.Load()
}

// handle decodes, dispatches and acknowledges one delivery and reports whether it succeeded.
func (r *Runner) handle(ctx context.Context, d consume.Delivery) bool {
	e, err := d.Envelope()
	if err != nil {
		r.discard(ctx, d, fmt.Errorf("decode delivery %s: %w", d.ID, err))
		return false
	}

	log := r.log.With(logging.MessageID(e.ID), logging.MessageType(string(e.Type)))

	if err := Dispatch(ctx, r.handler, e); err != nil {
		r.reject(ctx, d, e, err)
		return false
	}

	if d.Ack != nil {
		if err := d.Ack(ctx); err != nil {
			r.record(e, fmt.Errorf("ack %s: %w", e.ID, errors.Join(berr.ErrAckFailed, err)))
			log.Error("acknowledge failed", logging.Error(err))

			return false
		}
	}

	r.record(e, nil)
	log.Info("message processed")

	return true
}

// discard drops a delivery that can never be decoded. Without a Reject the
// delivery is left alone and the transport redelivers it on its own schedule.
func (r *Runner) discard(ctx context.Context, d consume.Delivery, err error) {
	r.record(envelope.Envelope{ID: d.ID}, err)
	r.log.Error("discarding malformed delivery", logging.MessageID(d.ID), logging.Error(err))

	if d.Reject == nil {
		return
	}

	if rerr := d.Reject(ctx); rerr != nil {
		r.log.Warn("reject failed", logging.MessageID(d.ID), logging.Error(rerr))
	}
}

// reject leaves the delivery unacknowledged, asking the transport for redelivery when it can.
func (r *Runner) reject(ctx context.Context, d consume.Delivery, e envelope.Envelope, err error) {
	r.record(e, err)
	r.log.Error("message processing failed", logging.MessageID(e.ID), logging.Error(err))

	if d.Nack == nil {
		return
	}

	if nerr := d.Nack(ctx); nerr != nil {
		r.log.Warn("negative acknowledge failed", logging.MessageID(e.ID), logging.Error(nerr))
	}
}

func (r *Runner) record(e envelope.Envelope, err error) {
	p := Processed{ID: e.ID, Type: e.Type, ProcessedAt: time.Now().UTC(), Success: err == nil}
	outcome := metrics.OutcomeSuccess

	if err != nil {
		p.Error = err.Error()
		outcome = metrics.OutcomeFailed

		r.failed.Add(1)
	} else {
		r.processed.Add(1)
	}

	typ := string(e.Type)
	if !e.Type.Known() {
		typ = "unknown"
	}

	metrics.MessagesProcessed.WithLabelValues(r.cfg.Name, typ, outcome).Inc()
	r.hist.add(p)
}

// Status is a point-in-time view of a Runner.
type Status struct {
	Name      string         `json:"name"`
	State     State          `json:"state"`
	Processed int64          `json:"processed"`
	Failed    int64          `json:"failed"`
	Polls     int64          `json:"polls"`
	LastPoll  *time.Time     `json:"lastPoll,omitempty"`
	Recent    []Processed    `json:"recentActivity"`
	Source    map[string]any `json:"source,omitempty"`
}

// Status reports counters and the five most recent processed messages.
func (r *Runner) Status() Status {
	s := Status{
		Name:      r.cfg.Name,
		State:     r.State(),
		Processed: r.processed.Load(),
		Failed:    r.failed.Load(),
		Polls:     r.polls.Load(),
		Recent:    r.hist.recent(5),
	}

	if ms := r.lastPoll.Load(); ms > 0 {
		t := time.UnixMilli(ms).UTC()
		s.LastPoll = &t
	}

	return s
}

// History returns up to HistorySize processed messages, newest first.
func (r *Runner) History() []Processed { return r.hist.recent(0) }

// ClearHistory forgets the processed-message history.
func (r *Runner) ClearHistory() { r.hist.clear() }

func (r *Runner) reportStatus(ctx context.Context) {
	t := time.NewTicker(r.cfg.StatusInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s := r.Status()

			if st, ok := r.src.(consume.Statser); ok {
				stats, err := st.Stats(ctx)
				if err != nil {
					r.log.Warn("source stats unavailable", logging.Error(err))
				}

				s.Source = stats
			}

			r.log.Info("worker status",
				slog.String("state", s.State.String()),
				slog.Int64("processed", s.Processed),
				slog.Int64("failed", s.Failed),
				slog.Int64("polls", s.Polls),
				slog.Any("source", s.Source),
			)
		}
	}
}

// RunAll runs every runner concurrently and waits for all of them. Startup errors
// are joined; a runner that fails to start does not stop the others.
func RunAll(ctx context.Context, runners ...*Runner) error {
	errs := make([]error, len(runners))

	var wg sync.WaitGroup

	for i, r := range runners {
		wg.Add(1)

		go func() {
			defer wg.Done()
			errs[i] = r.Run(ctx)
		}()
	}

	wg.Wait()

	return errors.Join(errs...)
}
