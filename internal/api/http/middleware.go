// Package http serves indicator lookups over HTTP.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/apien/apien/internal/errors"
	"github.com/apien/apien/internal/logger"
	"github.com/apien/apien/internal/metrics"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Response headers set by the lookup handler.
const (
	HeaderRequestID       = "X-Request-ID"
	HeaderCache           = "X-Cache"
	HeaderPayloadEncoding = "X-Payload-Encoding"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// RequestIDMiddleware adds a unique request_id to each request. A caller
// supplied X-Request-ID is kept.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RecoveryMiddleware turns a panic into a logged 500.
func RecoveryMiddleware(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					requestID := GetRequestID(r.Context())
					log.LogFailure(fmt.Errorf("panic: %v", v), requestID)
					writeError(w, http.StatusInternalServerError, "internal server error", requestID)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// ObserveMiddleware logs every completed request and records it in m.
// m may be nil.
func ObserveMiddleware(log *logger.Logger, m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			if m != nil {
				m.RequestsInFlight.Inc()
				defer m.RequestsInFlight.Dec()
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			duration := time.Since(start)
			if m != nil {
				m.RecordRequest(rec.status, duration)
			}
			hit := w.Header().Get(HeaderCache) == "HIT"
			log.LogRequest(GetRequestID(r.Context()), r.URL.Path, rec.status, duration, hit)
		})
	}
}

// ChainMiddleware chains middlewares; the first one is outermost.
func ChainMiddleware(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// DefaultMiddleware returns the chain every API handler runs behind.
func DefaultMiddleware(log *logger.Logger, m *metrics.Metrics) Middleware {
	return ChainMiddleware(
		RequestIDMiddleware,
		ObserveMiddleware(log, m),
		RecoveryMiddleware(log),
	)
}

// writeError writes an error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Del(HeaderCache)
	w.Header().Del(HeaderPayloadEncoding)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, RequestID: requestID})
}

// writeAPIError maps err to its status. 500s are logged with the caller
// and stack; the other statuses are expected outcomes.
func writeAPIError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	requestID := GetRequestID(r.Context())
	status := apierrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.LogFailure(err, requestID)
	}
	writeError(w, status, apierrors.PublicMessage(err), requestID)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
