package simulation

import (
	"sync"
	"time"
)

// TickMetricsSnapshot is a copy of the loop timing statistics.
type TickMetricsSnapshot struct {
	Samples  int
	Average  time.Duration
	Max      time.Duration
	Last     time.Duration
	Overruns int
	// Dropped counts backlog steps the loop skipped after stalls.
	Dropped int
}

// AverageFPS is the step rate the average step duration would sustain.
func (s TickMetricsSnapshot) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor aggregates how long simulation steps take. The zero value is ready.
type TickMonitor struct {
	mu    sync.Mutex
	stats TickMetricsSnapshot
	total time.Duration
}

// NewTickMonitor returns an empty monitor.
func NewTickMonitor() *TickMonitor { return &TickMonitor{} }

// ObserveStep records one step. Steps slower than a positive budget count as overruns.
func (m *TickMonitor) ObserveStep(took, budget time.Duration) {
	if m == nil || took <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Samples++
	m.total += took
	m.stats.Average = m.total / time.Duration(m.stats.Samples)
	m.stats.Max = max(m.stats.Max, took)
	m.stats.Last = took
	if budget > 0 && took > budget {
		m.stats.Overruns++
	}
}

// ObserveDropped records skipped backlog steps.
func (m *TickMonitor) ObserveDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	m.stats.Dropped += n
	m.mu.Unlock()
}

// Snapshot copies the current statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Reset clears the statistics when a new level is loaded.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.stats, m.total = TickMetricsSnapshot{}, 0
	m.mu.Unlock()
}
