package input

import (
	"sync"
	"time"

	"portalsim/engine/internal/logging"
)

// Clock is the time source shared by the gate and the validator.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// GateConfig bounds how old a control frame may be when it arrives and how closely
// consecutive frames from one client may follow each other. Zero disables a check.
type GateConfig struct {
	MaxAge      time.Duration
	MinInterval time.Duration
}

// DropReason names the gate check a frame failed.
type DropReason string

const (
	DropReasonNone        DropReason = ""
	DropReasonSequence    DropReason = "sequence"
	DropReasonStale       DropReason = "stale"
	DropReasonRateLimited DropReason = "rate_limit"
)

func (r DropReason) String() string { return string(r) }

// Decision is the gate verdict for one frame. Age is how long the frame spent in
// flight when the sender stamped it, zero otherwise.
type Decision struct {
	Accepted bool
	Reason   DropReason
	Age      time.Duration
}

// Frame is the transport metadata of one control envelope.
type Frame struct {
	ClientID   string
	SequenceID uint64
	SentAt     time.Time
}

// sequencer remembers the newest accepted frame of one client.
type sequencer struct {
	last       uint64
	acceptedAt time.Time
	drops      map[DropReason]uint64
}

// Gate enforces strictly increasing sequence numbers, freshness and a minimum spacing
// per client before controls reach the Validator. It is safe for concurrent use.
type Gate struct {
	cfg    GateConfig
	clock  Clock
	logger *logging.Logger

	mu      sync.Mutex
	clients map[string]*sequencer
}

// Option customises NewGate.
type Option func(*Gate)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// NewGate clamps negative limits to zero.
func NewGate(cfg GateConfig, logger *logging.Logger, opts ...Option) *Gate {
	cfg.MaxAge = max(cfg.MaxAge, 0)
	cfg.MinInterval = max(cfg.MinInterval, 0)
	if logger == nil {
		logger = logging.L()
	}
	g := &Gate{cfg: cfg, clock: systemClock{}, logger: logger, clients: make(map[string]*sequencer)}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Evaluate checks frame and, when it passes, records it as the client's newest frame.
// Frames without a client id are not tracked.
func (g *Gate) Evaluate(frame Frame) Decision {
	if g == nil || frame.ClientID == "" {
		return Decision{Accepted: true}
	}
	now := g.clock.Now()
	var age time.Duration
	if !frame.SentAt.IsZero() {
		age = max(now.Sub(frame.SentAt), 0)
	}

	g.mu.Lock()
	seq := g.clients[frame.ClientID]
	if seq == nil {
		seq = &sequencer{}
		g.clients[frame.ClientID] = seq
	}
	reason := g.check(seq, frame.SequenceID, age, now)
	if reason == DropReasonNone {
		seq.last = frame.SequenceID
		seq.acceptedAt = now
	} else {
		if seq.drops == nil {
			seq.drops = make(map[DropReason]uint64)
		}
		seq.drops[reason]++
	}
	g.mu.Unlock()

	if reason != DropReasonNone {
		g.logger.Debug("control frame dropped",
			logging.String("client", frame.ClientID),
			logging.String("reason", reason.String()),
			logging.Int64("seq", int64(frame.SequenceID)),
			logging.Duration("age", age),
		)
		return Decision{Reason: reason, Age: age}
	}
	return Decision{Accepted: true, Age: age}
}

// check runs the gate rules in order; callers hold g.mu.
func (g *Gate) check(seq *sequencer, id uint64, age time.Duration, now time.Time) DropReason {
	//1.- Sequence numbers start at one and must increase.
	if id == 0 || id <= seq.last {
		return DropReasonSequence
	}
	//2.- Frames older than the freshness budget would steer with stale input.
	if g.cfg.MaxAge > 0 && age > g.cfg.MaxAge {
		return DropReasonStale
	}
	//3.- Spacing only applies once the client has an accepted frame.
	if g.cfg.MinInterval > 0 && seq.last > 0 && now.Sub(seq.acceptedAt) < g.cfg.MinInterval {
		return DropReasonRateLimited
	}
	return DropReasonNone
}

// Forget discards the sequencing state and counters of a disconnected client.
func (g *Gate) Forget(clientID string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.clients, clientID)
	g.mu.Unlock()
}

// Metrics copies the per-client drop counters; nil when nothing was dropped.
func (g *Gate) Metrics() map[string]map[DropReason]uint64 {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out map[string]map[DropReason]uint64
	for id, seq := range g.clients {
		if len(seq.drops) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]map[DropReason]uint64)
		}
		counts := make(map[DropReason]uint64, len(seq.drops))
		for reason, n := range seq.drops {
			counts[reason] = n
		}
		out[id] = counts
	}
	return out
}
