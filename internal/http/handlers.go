package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"portalsim/engine/internal/logging"
	"portalsim/engine/internal/simulation"
	"portalsim/engine/internal/stream"
)

// ReadinessProvider exposes daemon state required for readiness checks.
type ReadinessProvider interface {
	Running() bool
	StartupError() error
	Uptime() time.Duration
}

// StatsFunc returns cumulative broadcast and client statistics.
type StatsFunc func() (broadcasts, clients int)

// LevelReloader swaps the running level. An empty path reloads the current one.
type LevelReloader interface {
	ReloadLevel(ctx context.Context, path string) (string, error)
}

// LevelReloaderFunc adapts a function into a LevelReloader.
type LevelReloaderFunc func(ctx context.Context, path string) (string, error)

// ReloadLevel implements LevelReloader.
func (f LevelReloaderFunc) ReloadLevel(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Reserve() (ok bool, retryAfter time.Duration)
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Readiness   ReadinessProvider
	Stats       StatsFunc
	Stream      *stream.Metrics
	Controls    *stream.ClientLimiter
	Ticks       func() simulation.TickMetricsSnapshot
	Snapshot    func() ([]byte, error)
	Reloader    LevelReloader
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
}

// HandlerSet serves the liveness, readiness, metrics, snapshot and admin endpoints.
type HandlerSet struct {
	Options
	adminToken string
}

// NewHandlerSet fills in the logger and clock and returns the handlers.
func NewHandlerSet(opts Options) *HandlerSet {
	if opts.Logger == nil {
		opts.Logger = logging.L()
	}
	if opts.TimeSource == nil {
		opts.TimeSource = time.Now
	}
	return &HandlerSet{Options: opts, adminToken: strings.TrimSpace(opts.AdminToken)}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/snapshot", h.SnapshotHandler())
	mux.HandleFunc("/admin/reload", h.ReloadHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.TimeSource().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler is ready while the simulation loop runs.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Clients       int     `json:"clients"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		_, resp.Clients = h.counts()
		if h.Readiness != nil {
			resp.UptimeSeconds = h.Readiness.Uptime().Seconds()
			switch err := h.Readiness.StartupError(); {
			case err != nil:
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			case !h.Readiness.Running():
				status = http.StatusServiceUnavailable
				resp.Status = "stopped"
			}
		}
		writeJSON(w, status, resp)
	}
}

// SnapshotHandler serves the latest world snapshot as JSON.
func (h *HandlerSet) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.Snapshot == nil {
			http.Error(w, "snapshot unavailable", http.StatusServiceUnavailable)
			return
		}
		payload, err := h.Snapshot()
		if err != nil {
			h.Logger.Error("snapshot encode failed", logging.Error(err))
			http.Error(w, "failed to encode snapshot", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}
}

// ReloadHandler authorises and performs a level reload.
func (h *HandlerSet) ReloadHandler() http.HandlerFunc {
	type response struct {
		Status string `json:"status"`
		Level  string `json:"level,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context(), h.Logger).With(
			logging.String("handler", "level_reload"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("level reload denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("level reload denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.RateLimiter != nil {
			if ok, wait := h.RateLimiter.Reserve(); !ok {
				reqLogger.Warn("level reload denied: rate limit exceeded", logging.Duration("retry_after", wait))
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
		}
		if h.Reloader == nil {
			http.Error(w, "level reloading is unavailable", http.StatusServiceUnavailable)
			return
		}
		path := strings.TrimSpace(r.URL.Query().Get("path"))
		loaded, err := h.Reloader.ReloadLevel(r.Context(), path)
		if err != nil {
			reqLogger.Error("level reload failed", logging.Error(err), logging.String("path", path))
			http.Error(w, fmt.Sprintf("level reload failed: %v", err), http.StatusUnprocessableEntity)
			return
		}
		reqLogger.Info("level reloaded", logging.String("level", loaded))
		writeJSON(w, http.StatusOK, response{Status: "reloaded", Level: loaded})
	}
}

func (h *HandlerSet) counts() (broadcasts, clients int) {
	if h.Stats == nil {
		return 0, 0
	}
	return h.Stats()
}

// authorise accepts the admin token as a bearer credential, a bare Authorization
// value or an X-Admin-Token header.
func (h *HandlerSet) authorise(r *http.Request) bool {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, ok := strings.Cut(token, " "); ok && strings.EqualFold(scheme, "Bearer") {
		token = strings.TrimSpace(rest)
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
