package stream

import "sync"

// Drop reasons recorded by the hub.
const (
	DropSlowClient   = "slow_client"
	DropRateLimited  = "rate_limited"
	DropMalformed    = "malformed"
	DropCapacity     = "capacity"
	DropUnauthorized = "unauthorized"
)

// Metrics tracks payload sizes and drop counters for the stream.
type Metrics struct {
	mu         sync.RWMutex
	bytes      map[string]int64
	drops      map[string]int64
	broadcasts int64
	lastRaw    int64
	lastWire   int64
}

// NewMetrics constructs an empty tracker.
func NewMetrics() *Metrics {
	return &Metrics{
		bytes: make(map[string]int64),
		drops: make(map[string]int64),
	}
}

// ObserveBroadcast records one fan-out of an encoded snapshot.
func (m *Metrics) ObserveBroadcast(raw, wire int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.broadcasts++
	m.lastRaw = int64(raw)
	m.lastWire = int64(wire)
	m.mu.Unlock()
}

// ObserveDelivery records the payload size queued for a client.
func (m *Metrics) ObserveDelivery(clientID string, payloadBytes int) {
	if m == nil || clientID == "" {
		return
	}
	m.mu.Lock()
	m.bytes[clientID] = int64(payloadBytes)
	m.mu.Unlock()
}

// ObserveDrop counts a dropped frame or client.
func (m *Metrics) ObserveDrop(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.mu.Lock()
	m.drops[reason]++
	m.mu.Unlock()
}

// ForgetClient removes the gauges for a disconnected client.
func (m *Metrics) ForgetClient(clientID string) {
	if m == nil || clientID == "" {
		return
	}
	m.mu.Lock()
	delete(m.bytes, clientID)
	m.mu.Unlock()
}

// MetricsSnapshot is a consistent copy of the counters.
type MetricsSnapshot struct {
	Broadcasts     int64            `json:"broadcasts"`
	LastRawBytes   int64            `json:"last_raw_bytes"`
	LastWireBytes  int64            `json:"last_wire_bytes"`
	BytesPerClient map[string]int64 `json:"bytes_per_client,omitempty"`
	Drops          map[string]int64 `json:"drops,omitempty"`
}

// Snapshot copies the counters so handlers can iterate safely.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := MetricsSnapshot{Broadcasts: m.broadcasts, LastRawBytes: m.lastRaw, LastWireBytes: m.lastWire}
	if len(m.bytes) > 0 {
		snap.BytesPerClient = make(map[string]int64, len(m.bytes))
		for k, v := range m.bytes {
			snap.BytesPerClient[k] = v
		}
	}
	if len(m.drops) > 0 {
		snap.Drops = make(map[string]int64, len(m.drops))
		for k, v := range m.drops {
			snap.Drops[k] = v
		}
	}
	return snap
}
