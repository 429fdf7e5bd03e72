package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PublishLegs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgpub_publish_legs_total",
		Help: "Destination sends performed by the gateway, labelled by destination and outcome.",
	}, []string{"destination", "outcome"})

	PublishLegDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "msgpub_publish_leg_duration_ms",
		Help:    "Per-destination send latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"destination"})

	PublishRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgpub_publish_requests_total",
		Help: "Publish requests handled, labelled by route and aggregate status.",
	}, []string{"route", "status"})

	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgpub_worker_messages_processed_total",
		Help: "Deliveries handled by workers, labelled by worker, type and outcome.",
	}, []string{"worker", "type", "outcome"})

	WorkerPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgpub_worker_polls_total",
		Help: "Poll cycles run by workers, labelled by worker and outcome.",
	}, []string{"worker", "outcome"})

	WorkerBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "msgpub_worker_batch_size",
		Help:    "Number of deliveries returned by a single poll.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	}, []string{"worker"})

	WorkerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "msgpub_worker_state",
		Help: "Current worker state as an ordinal (0 stopped, 1 starting, 2 polling, 3 processing, 4 stopping).",
	}, []string{"worker"})
)

// Outcome labels shared by the counters above.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeEmpty   = "empty"
)
