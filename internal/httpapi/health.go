package httpapi

import (
	"net/http"
	"runtime"
	"strings"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
	"github.com/next-trace/scg-message-publisher/contract/publish"
	"github.com/next-trace/scg-message-publisher/gateway"
)

const (
	configured    = "configured"
	notConfigured = "not configured"
)

func (h *Handler) timestamp() string { return envelope.FormatTime(h.now()) }

func configuredWord(ok bool) string {
	if ok {
		return configured
	}

	return notConfigured
}

// GET /api/health
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	services := map[string]string{"aws": configuredWord(h.opts.AWSConfigured)}
	for name, info := range h.pub.Describe() {
		services[name] = configuredWord(info.Configured)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "OK",
		"uptime":      h.now().Sub(h.started).Seconds(),
		"timestamp":   h.timestamp(),
		"service":     h.opts.Service,
		"version":     h.opts.Version,
		"environment": h.opts.Environment,
		"memory": map[string]any{
			"alloc":      ms.Alloc,
			"totalAlloc": ms.TotalAlloc,
			"sys":        ms.Sys,
			"heapInuse":  ms.HeapInuse,
			"numGC":      ms.NumGC,
			"goroutines": runtime.NumGoroutine(),
		},
		"services": services,
	})
}

// GET /api/health/detailed reports configuration problems only; it does not
// probe the external services.
func (h *Handler) healthDetailed(w http.ResponseWriter, _ *http.Request) {
	status := "OK"
	env := "OK"

	if missing := h.opts.Missing(); len(missing) > 0 {
		status = "WARNING"
		env = "Missing: " + strings.Join(missing, ", ")
	}

	deps := map[string]string{}
	for name, info := range h.pub.Describe() {
		deps[name] = info.Driver + ": " + configuredWord(info.Configured)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": h.timestamp(),
		"service":   h.opts.Service,
		"checks": map[string]any{
			"environment":  env,
			"dependencies": deps,
		},
	})
}

type serviceStatus struct {
	publish.Info
	Status string `json:"status"`
}

// GET /api/publisher/status
func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	services := map[string]serviceStatus{}

	for name, info := range h.pub.Describe() {
		st := "available"
		if !info.Configured {
			st = notConfigured
		}

		services[name] = serviceStatus{Info: info, Status: st}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": h.timestamp(),
		"services":  services,
	})
}

type endpointDoc struct {
	Path        string            `json:"path"`
	Method      string            `json:"method"`
	Description string            `json:"description"`
	Body        map[string]string `json:"body,omitempty"`
}

var publishBody = map[string]string{
	"message":  "string (required)",
	"metadata": "object (optional)",
}

var routeDescriptions = map[gateway.Route]string{
	gateway.RouteKafkaSNS: "Publish message to both Kafka and SNS",
	gateway.RouteSNSSQS:   "Publish message to SNS and send to SQS",
	gateway.RouteKafka:    "Publish message to Kafka only",
	gateway.RouteSNS:      "Publish message to SNS only",
	gateway.RouteSQS:      "Send message to SQS only",
}

// GET /api/docs
func (h *Handler) docs(w http.ResponseWriter, _ *http.Request) {
	var eps []endpointDoc

	for _, r := range gateway.Routes() {
		body := publishBody
		if r == gateway.RouteSQS {
			body = map[string]string{
				"message":      publishBody["message"],
				"metadata":     publishBody["metadata"],
				"delaySeconds": "integer 0-900 (optional)",
			}
		}

		eps = append(eps, endpointDoc{
			Path:        "/api/publisher/" + string(r),
			Method:      http.MethodPost,
			Description: routeDescriptions[r],
			Body:        body,
		})
	}

	eps = append(eps,
		endpointDoc{
			Path:        "/api/publisher/sqs/batch",
			Method:      http.MethodPost,
			Description: "Send up to 100 messages to SQS in batches of 10",
			Body:        map[string]string{"messages": "array of {message, metadata} (required)"},
		},
		endpointDoc{Path: "/api/publisher/status", Method: http.MethodGet, Description: "Destination drivers and configuration"},
		endpointDoc{Path: "/api/health", Method: http.MethodGet, Description: "Service health"},
		endpointDoc{Path: "/api/health/detailed", Method: http.MethodGet, Description: "Configuration checks"},
		endpointDoc{Path: "/metrics", Method: http.MethodGet, Description: "Prometheus metrics"},
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"title":     "Message Publisher API Documentation",
		"version":   h.opts.Version,
		"endpoints": eps,
	})
}

// GET /
func (h *Handler) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   h.opts.Service,
		"version":   h.opts.Version,
		"timestamp": h.timestamp(),
		"endpoints": map[string]string{
			"health":    "/api/health",
			"publisher": "/api/publisher",
			"docs":      "/api/docs",
			"metrics":   "/metrics",
		},
	})
}
