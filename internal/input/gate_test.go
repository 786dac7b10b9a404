package input

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"portalsim/engine/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestGate(cfg GateConfig) (*Gate, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	return NewGate(cfg, logging.NewTestLogger(), WithClock(clock)), clock
}

func TestGateSequencing(t *testing.T) {
	gate, clock := newTestGate(GateConfig{})

	assert.Equal(t, DropReasonSequence, gate.Evaluate(Frame{ClientID: "r1", SequenceID: 0}).Reason)
	assert.True(t, gate.Evaluate(Frame{ClientID: "r1", SequenceID: 5}).Accepted)
	clock.Advance(time.Millisecond)
	assert.Equal(t, DropReasonSequence, gate.Evaluate(Frame{ClientID: "r1", SequenceID: 5}).Reason)
	assert.Equal(t, DropReasonSequence, gate.Evaluate(Frame{ClientID: "r1", SequenceID: 3}).Reason)
	//1.- Gaps are fine; only order matters.
	assert.True(t, gate.Evaluate(Frame{ClientID: "r1", SequenceID: 9}).Accepted)
	//2.- Clients are sequenced independently.
	assert.True(t, gate.Evaluate(Frame{ClientID: "r2", SequenceID: 1}).Accepted)

	assert.Equal(t, map[string]map[DropReason]uint64{"r1": {DropReasonSequence: 3}}, gate.Metrics())
}

func TestGateDropsStaleFrames(t *testing.T) {
	gate, clock := newTestGate(GateConfig{MaxAge: 250 * time.Millisecond})

	sent := clock.Now()
	clock.Advance(100 * time.Millisecond)
	fresh := gate.Evaluate(Frame{ClientID: "r1", SequenceID: 1, SentAt: sent})
	assert.True(t, fresh.Accepted)
	assert.Equal(t, 100*time.Millisecond, fresh.Age)

	clock.Advance(400 * time.Millisecond)
	stale := gate.Evaluate(Frame{ClientID: "r1", SequenceID: 2, SentAt: sent})
	assert.False(t, stale.Accepted)
	assert.Equal(t, DropReasonStale, stale.Reason)
	assert.Equal(t, 500*time.Millisecond, stale.Age)

	//1.- Unstamped frames and clock skew into the future never count as stale.
	assert.True(t, gate.Evaluate(Frame{ClientID: "r1", SequenceID: 3}).Accepted)
	ahead := gate.Evaluate(Frame{ClientID: "r1", SequenceID: 4, SentAt: clock.Now().Add(time.Second)})
	assert.True(t, ahead.Accepted)
	assert.Zero(t, ahead.Age)
}

func TestGateEnforcesMinimumSpacing(t *testing.T) {
	gate, clock := newTestGate(GateConfig{MinInterval: time.Second / 60})

	assert.True(t, gate.Evaluate(Frame{ClientID: "r1", SequenceID: 1}).Accepted)
	clock.Advance(5 * time.Millisecond)
	assert.Equal(t, DropReasonRateLimited, gate.Evaluate(Frame{ClientID: "r1", SequenceID: 2}).Reason)
	clock.Advance(15 * time.Millisecond)
	assert.True(t, gate.Evaluate(Frame{ClientID: "r1", SequenceID: 2}).Accepted)
}

func TestGateForgetResetsClient(t *testing.T) {
	gate, _ := newTestGate(GateConfig{})
	assert.True(t, gate.Evaluate(Frame{ClientID: "r1", SequenceID: 7}).Accepted)
	gate.Evaluate(Frame{ClientID: "r1", SequenceID: 7})
	assert.NotNil(t, gate.Metrics())

	gate.Forget("r1")
	assert.Nil(t, gate.Metrics())
	assert.True(t, gate.Evaluate(Frame{ClientID: "r1", SequenceID: 1}).Accepted)
}

func TestGateIgnoresAnonymousFrames(t *testing.T) {
	gate, _ := newTestGate(GateConfig{MaxAge: time.Millisecond})
	assert.True(t, gate.Evaluate(Frame{SequenceID: 0}).Accepted)
	var nilGate *Gate
	assert.True(t, nilGate.Evaluate(Frame{ClientID: "x"}).Accepted)
}
