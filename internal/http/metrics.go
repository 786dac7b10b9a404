package httpapi

import (
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"

	"portalsim/engine/internal/stream"
)

// exposition writes the Prometheus text format. Each family is announced once with
// its HELP and TYPE lines before its samples.
type exposition struct {
	w io.Writer
}

func (e exposition) family(name, kind, help string) {
	fmt.Fprintf(e.w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func (e exposition) gauge(name, help string, value any) {
	e.family(name, "gauge", help)
	e.sample(name, "", value)
}

func (e exposition) counter(name, help string, value any) {
	e.family(name, "counter", help)
	e.sample(name, "", value)
}

func (e exposition) sample(name, labels string, value any) {
	if labels != "" {
		name += "{" + labels + "}"
	}
	switch v := value.(type) {
	case float64:
		fmt.Fprintf(e.w, "%s %.6f\n", name, v)
	default:
		fmt.Fprintf(e.w, "%s %v\n", name, v)
	}
}

// labelled writes one sample per key of values, in key order.
func labelled[V any](e exposition, name, label string, values map[string]V, value func(V) any) {
	for _, key := range slices.Sorted(maps.Keys(values)) {
		e.sample(name, fmt.Sprintf("%s=%q", label, key), value(values[key]))
	}
}

// MetricsHandler serves daemon, tick, stream and control counters as Prometheus text.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		e := exposition{w: w}

		broadcasts, clients := h.counts()
		if h.Readiness != nil {
			e.gauge("portalsim_uptime_seconds", "Daemon uptime in seconds.", int64(h.Readiness.Uptime().Seconds()))
		}
		e.gauge("portalsim_clients", "Connected renderer clients.", clients)
		e.counter("portalsim_broadcasts_total", "Snapshots fanned out to renderers.", broadcasts)

		//1.- Fixed-step timing.
		if h.Ticks != nil {
			t := h.Ticks()
			e.counter("portalsim_ticks_total", "Simulation steps executed.", t.Samples)
			e.gauge("portalsim_tick_seconds_avg", "Average step duration.", t.Average.Seconds())
			e.gauge("portalsim_tick_seconds_max", "Slowest step duration.", t.Max.Seconds())
			e.counter("portalsim_tick_overruns_total", "Steps slower than the fixed timestep.", t.Overruns)
			e.counter("portalsim_tick_dropped_steps_total", "Backlog steps skipped after stalls.", t.Dropped)
		}

		//2.- Snapshot sizes and stream drops.
		if h.Stream != nil {
			snap := h.Stream.Snapshot()
			e.family("portalsim_snapshot_bytes", "gauge", "Last snapshot size before and after compression.")
			e.sample("portalsim_snapshot_bytes", `stage="raw"`, snap.LastRawBytes)
			e.sample("portalsim_snapshot_bytes", `stage="wire"`, snap.LastWireBytes)
			e.family("portalsim_snapshot_bytes_per_client", "gauge", "Last snapshot size queued per client.")
			labelled(e, "portalsim_snapshot_bytes_per_client", "client", snap.BytesPerClient, func(v int64) any { return v })
			e.family("portalsim_stream_drops_total", "counter", "Dropped frames and clients by reason.")
			labelled(e, "portalsim_stream_drops_total", "reason", snap.Drops, func(v int64) any { return v })
		}

		//3.- Per-client control throttling.
		if h.Controls == nil {
			return
		}
		usage := h.Controls.Usage()
		if len(usage) == 0 {
			return
		}
		e.family("portalsim_control_tokens", "gauge", "Remaining control frame tokens per client.")
		labelled(e, "portalsim_control_tokens", "client", usage, func(u stream.LimiterUsage) any { return fmt.Sprintf("%.2f", u.Tokens) })
		e.family("portalsim_control_denied_total", "counter", "Control frames refused by the rate limiter.")
		labelled(e, "portalsim_control_denied_total", "client", usage, func(u stream.LimiterUsage) any { return u.Denied })
	}
}
