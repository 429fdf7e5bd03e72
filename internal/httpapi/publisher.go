package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/contract/publish"
	"github.com/next-trace/scg-message-publisher/gateway"
	"github.com/next-trace/scg-message-publisher/internal/logging"
)

// publishRequest keeps message and metadata raw so that wrong JSON types can be
// reported as validation errors rather than decode errors.
type publishRequest struct {
	Message      json.RawMessage `json:"message"`
	Metadata     json.RawMessage `json:"metadata"`
	DelaySeconds *int            `json:"delaySeconds"`
}

type batchRequest struct {
	Messages []publishRequest `json:"messages"`
}

// errMessageRequired matches the validation message of blank content.
var errMessageRequired = berr.Invalid("Message is required and must be a non-empty string")

var routeSuccess = map[gateway.Route]string{
	gateway.RouteKafka: "Message published to Kafka successfully",
	gateway.RouteSNS:   "Message published to SNS successfully",
	gateway.RouteSQS:   "Message sent to SQS successfully",
}

var routeFailure = map[gateway.Route]string{
	gateway.RouteKafka: "Failed to publish message to Kafka",
	gateway.RouteSNS:   "Failed to publish message to SNS",
	gateway.RouteSQS:   "Failed to send message to SQS",
}

// POST /api/publisher/{route}
func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	route, err := gateway.ParseRoute(r.PathValue("route"))
	if err != nil {
		h.notFound(w, r)
		return
	}

	var req publishRequest
	if code, err := decodeBody(w, r, &req); err != nil {
		writeError(w, code, err.Error(), h.now())
		return
	}

	msg, md, err := req.parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), h.now())
		return
	}

	var opts []gateway.PublishOption

	if req.DelaySeconds != nil {
		if route != gateway.RouteSQS {
			writeError(w, http.StatusBadRequest, "delaySeconds is only supported on the sqs route", h.now())
			return
		}

		opts = append(opts, gateway.WithDelay(*req.DelaySeconds))
	}

	out, err := h.pub.Publish(r.Context(), route, msg, md, opts...)
	if err != nil {
		h.writePublishError(w, r, err)
		return
	}

	if route.Dual() {
		h.writeDual(w, out)
	} else {
		h.writeSingle(w, out)
	}
}

func (h *Handler) writeDual(w http.ResponseWriter, out *gateway.Outcome) {
	code := outcomeCode(out.Status)

	writeJSON(w, code, map[string]any{
		"success":   out.Success,
		"requestId": out.RequestID,
		"status":    out.Status,
		"message":   "Message processing completed",
		"timestamp": h.timestamp(),
		"results":   out.Results,
	})
}

func (h *Handler) writeSingle(w http.ResponseWriter, out *gateway.Outcome) {
	leg := out.Single()

	if !leg.OK() {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success":   false,
			"requestId": out.RequestID,
			"error":     leg.Err.Error(),
			"message":   routeFailure[out.Route],
			"timestamp": h.timestamp(),
		})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"requestId": out.RequestID,
		"message":   routeSuccess[out.Route],
		"timestamp": h.timestamp(),
		"result":    leg.Receipt,
	})
}

// POST /api/publisher/sqs/batch
func (h *Handler) publishBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if code, err := decodeBody(w, r, &req); err != nil {
		writeError(w, code, err.Error(), h.now())
		return
	}

	if len(req.Messages) == 0 || len(req.Messages) > gateway.MaxBatchItems {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("messages must contain between 1 and %d items", gateway.MaxBatchItems), h.now())

		return
	}

	items := make([]gateway.BatchItem, len(req.Messages))

	for i, m := range req.Messages {
		if m.DelaySeconds != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("messages[%d]: delaySeconds is not supported in batches", i), h.now())
			return
		}

		msg, md, err := m.parse()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("messages[%d]: %s", i, err), h.now())
			return
		}

		items[i] = gateway.BatchItem{Message: msg, Metadata: md}
	}

	out, err := h.pub.PublishBatch(r.Context(), items)
	if err != nil {
		h.writePublishError(w, r, err)
		return
	}

	code := outcomeCode(out.Status)

	receipts := out.Receipts
	if receipts == nil {
		receipts = []publish.Receipt{}
	}

	failed := out.Failed
	if failed == nil {
		failed = []publish.BatchFailure{}
	}

	writeJSON(w, code, map[string]any{
		"success":    out.Success,
		"requestId":  out.RequestID,
		"status":     out.Status,
		"message":    "Batch processing completed",
		"timestamp":  h.timestamp(),
		"total":      out.Total,
		"successful": receipts,
		"failed":     failed,
	})
}

func (h *Handler) writePublishError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, berr.ErrUnknownRoute):
		h.notFound(w, r)
	case errors.Is(err, berr.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), h.now())
	default:
		logging.FromContext(r.Context(), h.log).ErrorContext(r.Context(), "publish failed", logging.Error(err))
		writeInternal(w, err, h.opts.Development, h.now())
	}
}

// outcomeCode maps a multi-leg outcome to its HTTP status: 200 when every leg
// succeeded, 207 otherwise. The per-leg results carry the detail.
func outcomeCode(s gateway.Status) int {
	if s == gateway.StatusSucceeded {
		return http.StatusOK
	}

	return http.StatusMultiStatus
}

// decodeBody reads a bounded JSON object body into v and returns the status to
// answer with when it cannot.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if maxErr := new(http.MaxBytesError); errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}

		return http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err)
	}

	if dec.More() {
		return http.StatusBadRequest, errors.New("invalid JSON: unexpected data after the request object")
	}

	return 0, nil
}

// parse validates the raw message and metadata fields.
func (p publishRequest) parse() (string, map[string]any, error) {
	var msg string
	if len(p.Message) == 0 || json.Unmarshal(p.Message, &msg) != nil {
		return "", nil, errMessageRequired
	}

	if err := envelope.ValidateContent(msg); err != nil {
		return "", nil, err
	}

	md := map[string]any{}

	raw := bytes.TrimSpace(p.Metadata)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return msg, md, nil
	}

	if raw[0] != '{' || json.Unmarshal(raw, &md) != nil {
		return "", nil, berr.Invalid("metadata must be an object")
	}

	return msg, md, nil
}
