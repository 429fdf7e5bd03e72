package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across the publisher and workers.
const (
	FieldService     = "service"
	FieldRequestID   = "request_id"
	FieldDestination = "destination"
	FieldWorker      = "worker"
	FieldMessageID   = "message_id"
	FieldMessageType = "message_type"
	FieldRoute       = "route"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatus      = "status"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
)

func Service(name string) slog.Attr { return slog.String(FieldService, name) }

func RequestID(id string) slog.Attr { return slog.String(FieldRequestID, id) }

func Destination(name string) slog.Attr { return slog.String(FieldDestination, name) }

func Worker(name string) slog.Attr { return slog.String(FieldWorker, name) }

func MessageID(id string) slog.Attr { return slog.String(FieldMessageID, id) }

func MessageType(t string) slog.Attr { return slog.String(FieldMessageType, t) }

func Route(r string) slog.Attr { return slog.String(FieldRoute, r) }

func Method(m string) slog.Attr { return slog.String(FieldMethod, m) }

func Path(p string) slog.Attr { return slog.String(FieldPath, p) }

func Status(code int) slog.Attr { return slog.Int(FieldStatus, code) }

// Duration renders d in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(FieldDuration, float64(d.Microseconds())/1000)
}

// Error returns a slog attribute for an error. A nil error yields an empty attribute.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}

	return slog.String(FieldError, err.Error())
}
