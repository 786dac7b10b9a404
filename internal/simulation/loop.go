package simulation

import (
	"context"
	"sync"
	"time"
)

// StepFunc advances the simulation by one fixed timestep.
type StepFunc func(step time.Duration)

// maxCatchUpSteps bounds how many steps one wake-up may run after a stall.
const maxCatchUpSteps = 5

// accumulator converts wall-clock time into whole fixed steps.
type accumulator struct {
	step    time.Duration
	pending time.Duration
}

// advance adds elapsed time and returns how many steps to run now plus how many
// backlogged steps were discarded because the cap was hit.
func (a *accumulator) advance(elapsed time.Duration) (run, dropped int) {
	a.pending += max(elapsed, 0)
	owed := int(a.pending / a.step)
	run = min(owed, maxCatchUpSteps)
	a.pending -= time.Duration(run) * a.step
	if owed > run {
		dropped = owed - run
		a.pending %= a.step
	}
	return run, dropped
}

// Loop calls a StepFunc at a fixed rate on its own goroutine. After a stall it runs
// at most maxCatchUpSteps steps and forgets the rest of the backlog.
type Loop struct {
	step      time.Duration
	stepFunc  StepFunc
	onDropped func(int)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop targets targetHz, falling back to 60 Hz for non-positive rates.
func NewLoop(targetHz float64, step StepFunc) *Loop {
	interval := time.Second / 60
	if targetHz > 0 {
		if d := time.Duration(float64(time.Second) / targetHz); d > 0 {
			interval = d
		}
	}
	if step == nil {
		step = func(time.Duration) {}
	}
	return &Loop{step: interval, stepFunc: step}
}

// OnDroppedSteps registers a callback for discarded backlog. Call before Start.
func (l *Loop) OnDroppedSteps(fn func(int)) { l.onDropped = fn }

// Start runs the loop until ctx is cancelled or Stop is called. Starting a running
// loop is a no-op; a loop ended by its context can be started again.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil && !closed(l.done) {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.step)
	defer ticker.Stop()

	acc := accumulator{step: l.step}
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			run, dropped := acc.advance(now.Sub(last))
			last = now
			for i := 0; i < run; i++ {
				l.stepFunc(l.step)
			}
			if dropped > 0 && l.onDropped != nil {
				l.onDropped(dropped)
			}
		}
	}
}

// Stop cancels the loop and waits for the in-flight step. It is safe to call twice.
func (l *Loop) Stop() {
	l.mu.Lock()
	done, cancel := l.done, l.cancel
	l.done, l.cancel = nil, nil
	l.mu.Unlock()
	if done == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop goroutine is alive. It turns false on Stop and
// when the context passed to Start is cancelled.
func (l *Loop) Running() bool {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	return done != nil && !closed(done)
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// StepDuration is the fixed timestep.
func (l *Loop) StepDuration() time.Duration { return l.step }
