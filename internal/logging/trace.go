package logging

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// TraceIDHeader carries the request trace identifier in both directions.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDField is the log field holding the trace identifier.
	TraceIDField = "trace_id"
)

type scopeKey struct{}

type requestScope struct {
	traceID string
	logger  *Logger
}

// WithRequest attaches a trace identifier and the logger derived for it to ctx.
func WithRequest(ctx context.Context, logger *Logger, traceID string) context.Context {
	return context.WithValue(ctx, scopeKey{}, requestScope{traceID: traceID, logger: logger})
}

// FromContext returns the request logger stored in ctx, or fallback when there is none.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if scope, ok := ctx.Value(scopeKey{}).(requestScope); ok && scope.logger != nil {
		return scope.logger
	}
	if fallback == nil {
		return L()
	}
	return fallback
}

// TraceID returns the trace identifier stored in ctx, if any.
func TraceID(ctx context.Context) string {
	scope, _ := ctx.Value(scopeKey{}).(requestScope)
	return scope.traceID
}

func newTraceID() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// statusRecorder remembers the response status. It forwards Hijack so WebSocket
// upgrades still work behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(p)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// HTTPTraceMiddleware tags each request with a trace identifier, echoes it in the
// response and logs the outcome at debug level.
func HTTPTraceMiddleware(base *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			traceID := strings.TrimSpace(r.Header.Get(TraceIDHeader))
			if traceID == "" {
				traceID = newTraceID()
			}
			logger := base.With(String(TraceIDField, traceID))
			w.Header().Set(TraceIDHeader, traceID)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(WithRequest(r.Context(), logger, traceID)))
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			logger.Debug("request served",
				String("method", r.Method),
				String("path", r.URL.Path),
				Int("status", rec.status),
				Duration("duration", time.Since(start)),
			)
		})
	}
}
