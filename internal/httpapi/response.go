package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeError(w http.ResponseWriter, status int, msg string, now time.Time) {
	writeJSON(w, status, errorResponse{Error: msg, Timestamp: envelope.FormatTime(now)})
}
