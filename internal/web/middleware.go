package web

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	appLog "weekcal/internal/log"
)

const (
	requestIDHeader = "X-Request-ID"
	// requestIDMaxLen bounds client-supplied IDs so they cannot flood the logs.
	requestIDMaxLen = 64
)

type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDFrom returns the request ID set by the middleware, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestID reads X-Request-ID or generates a UUID, stores it in the request
// context and echoes it on the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if rid == "" || len(rid) > requestIDMaxLen {
			rid = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, rid)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// accessLog logs one line per request; 5xx at error level.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		kv := []any{
			"status", rec.status,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFrom(r.Context()),
			"latency", time.Since(start),
		}
		if rec.status >= http.StatusInternalServerError {
			appLog.Error("request failed", nil, kv...)
			return
		}
		appLog.Debug("request completed", kv...)
	})
}
