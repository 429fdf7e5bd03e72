// Package httpapi exposes the publish gateway over HTTP together with health,
// status, documentation and metrics endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/next-trace/scg-message-publisher/contract/publish"
	"github.com/next-trace/scg-message-publisher/gateway"
)

// maxBodyBytes bounds publish request bodies.
const maxBodyBytes = 1 << 20

// Publisher is the part of the gateway the HTTP layer depends on.
type Publisher interface {
	Publish(ctx context.Context, route gateway.Route, message string, metadata map[string]any, opts ...gateway.PublishOption) (*gateway.Outcome, error)
	PublishBatch(ctx context.Context, items []gateway.BatchItem, opts ...gateway.BatchOpt) (*gateway.BatchOutcome, error)
	Describe() map[string]publish.Info
}

var _ Publisher = (*gateway.Gateway)(nil)

// Options carries the service identity and configuration facts reported by the
// health endpoints.
type Options struct {
	Service     string
	Version     string
	Environment string
	// Development exposes internal error messages in 500 responses.
	Development bool
	CORSOrigins []string
	// Missing lists required settings that are unset.
	Missing func() []string
	// AWSConfigured reports whether static AWS credentials are present.
	AWSConfigured bool
	Logger        *slog.Logger
	Now           func() time.Time
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	pub     Publisher
	opts    Options
	mux     *http.ServeMux
	log     *slog.Logger
	now     func() time.Time
	started time.Time
}

// New creates an HTTP handler, registers all routes and wraps them in middleware.
func New(pub Publisher, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.Service == "" {
		opts.Service = "Message Publisher API"
	}

	if opts.Missing == nil {
		opts.Missing = func() []string { return nil }
	}

	h := &Handler{
		pub:     pub,
		opts:    opts,
		mux:     http.NewServeMux(),
		log:     opts.Logger,
		now:     opts.Now,
		started: opts.Now(),
	}

	h.mux.HandleFunc("POST /api/publisher/sqs/batch", h.publishBatch)
	h.mux.HandleFunc("POST /api/publisher/{route}", h.publish)
	h.mux.HandleFunc("GET /api/publisher/status", h.status)
	h.mux.HandleFunc("GET /api/health", h.health)
	h.mux.HandleFunc("GET /api/health/detailed", h.healthDetailed)
	h.mux.HandleFunc("GET /api/docs", h.docs)
	h.mux.HandleFunc("GET /{$}", h.index)
	h.mux.Handle("GET /metrics", promhttp.Handler())
	h.mux.HandleFunc("/", h.notFound)

	var handler http.Handler = h.mux
	handler = recoverer(h.log, opts.Development, h.now)(handler)
	handler = accessLog(h.log)(handler)
	handler = corsMiddleware(opts.CORSOrigins)(handler)
	handler = securityHeaders(handler)
	handler = requestID(handler)

	return handler
}

// notFound answers every unmatched path with a JSON 404.
func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":     "Route not found",
		"method":    r.Method,
		"url":       r.URL.RequestURI(),
		"timestamp": h.timestamp(),
	})
}
