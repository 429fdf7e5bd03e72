package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/contract/publish"
	"github.com/next-trace/scg-message-publisher/internal/logging"
	"github.com/next-trace/scg-message-publisher/internal/metrics"
)

// MaxDelaySeconds bounds the queue delivery delay.
const MaxDelaySeconds = 900

// errNotConfigured marks a leg whose destination was never wired.
var errNotConfigured = errors.New("destination is not configured")

// SendFunc delivers one envelope to one destination.
type SendFunc func(ctx context.Context, d publish.Destination, e envelope.Envelope) (publish.Receipt, error)

// SendMiddleware wraps every destination send. Middlewares run in registration order.
type SendMiddleware func(next SendFunc) SendFunc

// Gateway builds envelopes and dispatches them to the configured destinations.
// It is safe for concurrent use and holds no global state.
type Gateway struct {
	dests  map[string]publish.Destination
	mw     []SendMiddleware
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used for per-leg log lines.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock overrides the time source used for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithIDGenerator overrides the envelope id generator (uuid v4 by default).
func WithIDGenerator(fn func() string) Option {
	return func(g *Gateway) { g.newID = fn }
}

// WithSendMiddleware registers middleware around every destination send.
func WithSendMiddleware(mw ...SendMiddleware) Option {
	return func(g *Gateway) { g.mw = append(g.mw, mw...) }
}

// New constructs a Gateway over dests, keyed by their Name. Nil destinations are skipped.
func New(dests []publish.Destination, opts ...Option) *Gateway {
	g := &Gateway{
		dests:  make(map[string]publish.Destination, len(dests)),
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}

	for _, d := range dests {
		if d != nil {
			g.dests[d.Name()] = d
		}
	}

	for _, o := range opts {
		o(g)
	}

	return g
}

// Destination returns the destination wired for name.
func (g *Gateway) Destination(name string) (publish.Destination, bool) {
	d, ok := g.dests[name]
	return d, ok
}

// Describe reports driver and configuration state for every destination slot.
func (g *Gateway) Describe() map[string]publish.Info {
	out := make(map[string]publish.Info, len(publish.Names()))

	for _, name := range publish.Names() {
		d, ok := g.dests[name]
		if !ok {
			out[name] = publish.Info{Driver: "none"}
			continue
		}

		if ds, ok := d.(publish.Describer); ok {
			out[name] = ds.Describe()
		} else {
			out[name] = publish.Info{Driver: name, Configured: true}
		}
	}

	return out
}

// Close closes every destination and joins their errors.
func (g *Gateway) Close() error {
	var errs []error

	for _, name := range publish.Names() {
		if d, ok := g.dests[name]; ok {
			if err := d.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}

	return errors.Join(errs...)
}

// PublishOption adjusts a single Publish call.
type PublishOption func(*publishOptions)

type publishOptions struct {
	delaySeconds int
}

// WithDelay asks the queue leg to hold the message for seconds before delivery.
func WithDelay(seconds int) PublishOption {
	return func(o *publishOptions) { o.delaySeconds = seconds }
}

// ValidateDelay rejects delays outside [0, MaxDelaySeconds].
func ValidateDelay(seconds int) error {
	if seconds < 0 || seconds > MaxDelaySeconds {
		return berr.Invalid(fmt.Sprintf("DelaySeconds must be between 0 and %d", MaxDelaySeconds))
	}

	return nil
}

// Publish validates the request, builds the envelope and sends it to every
// destination of route. Destination failures are reported in the Outcome, never
// as the returned error; that error is reserved for invalid requests.
func (g *Gateway) Publish(
	ctx context.Context,
	route Route,
	message string,
	metadata map[string]any,
	opts ...PublishOption,
) (*Outcome, error) {
	var o publishOptions
	for _, f := range opts {
		f(&o)
	}

	def, ok := routeTable[route]
	if !ok {
		return nil, fmt.Errorf("publish %q: %w", route, errors.Join(berr.ErrUnknownRoute, berr.ErrValidation))
	}

	if err := ValidateDelay(o.delaySeconds); err != nil {
		return nil, err
	}

	env, err := envelope.New(g.newID(), message, metadata, def.typ, g.now())
	if err != nil {
		return nil, err
	}

	ctx = logging.WithRequestID(ctx, env.ID)

	results := make([]Result, len(def.dests))

	if len(def.dests) == 1 {
		results[0] = g.leg(ctx, def.dests[0], env, o)
	} else {
		var wg sync.WaitGroup

		for i, name := range def.dests {
			wg.Add(1)

			go func() {
				defer wg.Done()
				results[i] = g.leg(ctx, name, env, o)
			}()
		}

		wg.Wait()
	}

	out := newOutcome(route, env, results)
	metrics.PublishRequests.WithLabelValues(string(route), string(out.Status)).Inc()

	return out, nil
}

// leg runs one destination send. It never panics and never returns an error;
// everything is captured in the Result.
func (g *Gateway) leg(ctx context.Context, name string, env envelope.Envelope, o publishOptions) Result {
	start := time.Now()
	res := Result{Destination: name}

	d, ok := g.dests[name]
	if !ok {
		res.Err = publish.Fail(name, "publish", berr.ErrConfiguration, errNotConfigured)
	} else {
		res.Receipt, res.Err = g.sendFunc(o)(ctx, d, env)
	}

	res.Duration = time.Since(start)
	g.observe(ctx, res)

	return res
}

func (g *Gateway) sendFunc(o publishOptions) SendFunc {
	final := baseSend(o.delaySeconds)
	for i := len(g.mw) - 1; i >= 0; i-- {
		final = g.mw[i](final)
	}

	return recoverSend(final)
}

func baseSend(delay int) SendFunc {
	return func(ctx context.Context, d publish.Destination, e envelope.Envelope) (publish.Receipt, error) {
		if delay > 0 && d.Name() == publish.SQS {
			ds, ok := d.(publish.DelayedSender)
			if !ok {
				return publish.Receipt{}, publish.Fail(d.Name(), "send", berr.ErrConfiguration,
					errors.New("delayed delivery is not supported by this driver"))
			}

			return ds.SendDelayed(ctx, e, delay)
		}

		return d.Send(ctx, e)
	}
}

// recoverSend turns a panicking send into a failed leg.
func recoverSend(next SendFunc) SendFunc {
	return func(ctx context.Context, d publish.Destination, e envelope.Envelope) (r publish.Receipt, err error) {
		defer func() {
			if p := recover(); p != nil {
				r = publish.Receipt{}
				err = publish.Fail(d.Name(), "publish", berr.ErrPublishFailed, fmt.Errorf("panic: %v", p))
			}
		}()

		return next(ctx, d, e)
	}
}

func (g *Gateway) observe(ctx context.Context, res Result) {
	outcome := metrics.OutcomeSuccess
	level := slog.LevelInfo

	if !res.OK() {
		outcome = metrics.OutcomeFailed
		level = slog.LevelError
	}

	metrics.PublishLegs.WithLabelValues(res.Destination, outcome).Inc()
	metrics.PublishLegDuration.WithLabelValues(res.Destination).Observe(float64(res.Duration.Microseconds()) / 1000)

	attrs := []slog.Attr{
		logging.Destination(res.Destination),
		slog.String("outcome", outcome),
		logging.Duration(res.Duration),
	}
	if res.OK() {
		attrs = append(attrs, logging.MessageID(res.Receipt.MessageID))
	} else {
		attrs = append(attrs, logging.Error(res.Err))
	}

	logging.FromContext(ctx, g.logger).LogAttrs(ctx, level, "publish leg completed", attrs...)
}
