package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
	"github.com/next-trace/scg-message-publisher/internal/logging"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// requestID propagates or generates a request id, echoes it in the response and
// stores it on the request context.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// securityHeaders sets the usual hardening headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-DNS-Prefetch-Control", "off")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", HeaderRequestID},
		ExposedHeaders: []string{HeaderRequestID},
		MaxAge:         300,
	})

	return c.Handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}

	n, err := s.ResponseWriter.Write(b)
	s.bytes += n

	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// accessLog writes one line per request.
func accessLog(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			logging.FromContext(r.Context(), l).LogAttrs(r.Context(), slog.LevelInfo, "http request",
				logging.Method(r.Method),
				logging.Path(r.URL.Path),
				logging.Status(rec.status),
				slog.Int("bytes", rec.bytes),
				slog.String("remote", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
				logging.Duration(time.Since(start)),
			)
		})
	}
}

// recoverer turns a panic into a 500. Details are only exposed in development.
func recoverer(l *slog.Logger, development bool, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}

				if p == http.ErrAbortHandler {
					panic(p)
				}

				logging.FromContext(r.Context(), l).ErrorContext(r.Context(), "panic serving request",
					slog.Any("panic", p), logging.Path(r.URL.Path))

				writeInternal(w, errorFromPanic(p), development, now())
			}()

			next.ServeHTTP(w, r)
		})
	}
}

type panicError struct{ v any }

func (p panicError) Error() string {
	if err, ok := p.v.(error); ok {
		return err.Error()
	}

	if s, ok := p.v.(string); ok {
		return s
	}

	return "panic"
}

func errorFromPanic(v any) error { return panicError{v: v} }

// writeInternal writes the generic 500 body.
func writeInternal(w http.ResponseWriter, err error, development bool, now time.Time) {
	msg := "Something went wrong"
	if development {
		msg = err.Error()
	}

	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error:     "Internal server error",
		Message:   msg,
		Timestamp: envelope.FormatTime(now),
	})
}
