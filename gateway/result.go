package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
	"github.com/next-trace/scg-message-publisher/contract/publish"
)

// Status is the aggregate outcome of a publish.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// Tally folds ok out of total legs (or batch entries) into a Status.
func Tally(ok, total int) Status {
	switch {
	case total > 0 && ok == total:
		return StatusSucceeded
	case ok > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// Leg outcome labels, as they appear in results.<destination>.status.
const (
	LegSuccess = "success"
	LegFailed  = "failed"
)

// Result is the outcome of one destination leg.
type Result struct {
	Destination string
	Receipt     publish.Receipt
	Err         error
	Duration    time.Duration
}

// OK reports whether the destination accepted the envelope.
func (r Result) OK() bool { return r.Err == nil }

// Status is LegSuccess or LegFailed.
func (r Result) Status() string {
	if r.OK() {
		return LegSuccess
	}

	return LegFailed
}

// MarshalJSON renders a successful leg as the flat receipt plus its status and a
// failed leg as {status, error}.
func (r Result) MarshalJSON() ([]byte, error) {
	if !r.OK() {
		return json.Marshal(map[string]any{"status": LegFailed, "error": r.Err.Error()})
	}

	m := make(map[string]any, len(r.Receipt.Attributes)+4)
	for k, v := range r.Receipt.Attributes {
		m[k] = v
	}

	m["success"] = true
	m["messageId"] = r.Receipt.MessageID
	m["timestamp"] = r.Receipt.Timestamp
	m["status"] = LegSuccess

	return json.Marshal(m)
}

// Outcome aggregates every leg of one publish.
type Outcome struct {
	RequestID string
	Route     Route
	Envelope  envelope.Envelope
	Results   map[string]Result
	Success   bool
	Status    Status
}

func newOutcome(route Route, env envelope.Envelope, results []Result) *Outcome {
	o := &Outcome{
		RequestID: env.ID,
		Route:     route,
		Envelope:  env,
		Results:   make(map[string]Result, len(results)),
	}

	ok := 0

	for _, r := range results {
		o.Results[r.Destination] = r
		if r.OK() {
			ok++
		}
	}

	o.Status = Tally(ok, len(results))
	o.Success = o.Status == StatusSucceeded

	return o
}

// Err joins the errors of every failed leg, or returns nil.
func (o *Outcome) Err() error {
	var errs []error

	for _, name := range o.Route.Destinations() {
		if r, ok := o.Results[name]; ok && r.Err != nil {
			errs = append(errs, r.Err)
		}
	}

	return errors.Join(errs...)
}

// Single returns the only leg of a single-destination publish.
func (o *Outcome) Single() Result {
	for _, r := range o.Results {
		return r
	}

	return Result{}
}
