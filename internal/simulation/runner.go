package simulation

import (
	"context"
	"sync"
	"time"

	"portalsim/engine/internal/input"
	"portalsim/engine/internal/logging"
)

// Publisher receives every snapshot produced by the Runner.
type Publisher interface {
	Publish(Snapshot)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Snapshot)

// Publish implements Publisher.
func (f PublisherFunc) Publish(s Snapshot) { f(s) }

// Runner drives a World from a fixed-step Loop, folding submitted controls into each
// step and fanning snapshots out to publishers.
type Runner struct {
	mu         sync.Mutex
	world      *World
	pending    input.Controls
	latest     Snapshot
	publishers []Publisher

	loop    *Loop
	monitor *TickMonitor
	logger  *logging.Logger
}

// RunnerOption customises NewRunner.
type RunnerOption func(*Runner)

// WithPublisher registers a snapshot consumer.
func WithPublisher(p Publisher) RunnerOption {
	return func(r *Runner) {
		if p != nil {
			r.publishers = append(r.publishers, p)
		}
	}
}

// WithRunnerLogger injects a logger.
func WithRunnerLogger(logger *logging.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner prepares a runner ticking world at tickHz.
func NewRunner(world *World, tickHz float64, opts ...RunnerOption) *Runner {
	r := &Runner{
		world:   world,
		monitor: NewTickMonitor(),
		logger:  logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.loop = NewLoop(tickHz, r.step)
	r.loop.OnDroppedSteps(r.monitor.ObserveDropped)
	r.latest = world.Snapshot()
	return r
}

// Start launches the loop until ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("simulation started", logging.Duration("step", r.loop.StepDuration()))
	r.loop.Start(ctx)
}

// Stop halts the loop and waits for the in-flight step.
func (r *Runner) Stop() {
	r.loop.Stop()
	snap := r.monitor.Snapshot()
	r.logger.Info("simulation stopped",
		logging.Int("ticks", snap.Samples),
		logging.Duration("avg_tick", snap.Average),
		logging.Duration("max_tick", snap.Max),
	)
}

// Running reports whether the loop is active. It goes false after Stop or once the
// context given to Start is cancelled.
func (r *Runner) Running() bool { return r.loop.Running() }

// Submit merges controls into the input applied on the next step.
func (r *Runner) Submit(c input.Controls) {
	r.mu.Lock()
	r.pending = mergeControls(r.pending, c)
	r.mu.Unlock()
}

// ReplaceWorld swaps in a freshly loaded world, e.g. after a level reload.
func (r *Runner) ReplaceWorld(w *World) {
	r.mu.Lock()
	r.world = w
	r.pending = input.Controls{}
	r.latest = w.Snapshot()
	r.mu.Unlock()
	r.monitor.Reset()
}

// Latest returns the most recent snapshot.
func (r *Runner) Latest() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Monitor exposes tick timing statistics.
func (r *Runner) Monitor() *TickMonitor { return r.monitor }

// StepOnce advances the world by one step of the given duration without the loop.
func (r *Runner) StepOnce(step time.Duration) Snapshot {
	r.step(step)
	return r.Latest()
}

func (r *Runner) step(step time.Duration) {
	started := time.Now()

	//1.- Consume one-shot input and keep held axes for the next tick.
	r.mu.Lock()
	controls := r.pending
	r.pending = heldControls(controls)
	r.world.Step(controls, float32(step.Seconds()))
	snap := r.world.Snapshot()
	r.latest = snap
	publishers := r.publishers
	r.mu.Unlock()

	//2.- Publish outside the lock.
	for _, p := range publishers {
		p.Publish(snap)
	}
	r.monitor.ObserveStep(time.Since(started), step)
}

// mergeControls folds next into prev: axes and selectors take the newest value, look
// deltas accumulate and one-shot actions stay requested.
func mergeControls(prev, next input.Controls) input.Controls {
	out := next
	out.LookYaw += prev.LookYaw
	out.LookPitch += prev.LookPitch
	out.Level = out.Level || prev.Level
	out.Relocate = out.Relocate || prev.Relocate
	if out.Camera == input.CameraKeep {
		out.Camera = prev.Camera
	}
	if out.Portal == input.PortalKeep {
		out.Portal = prev.Portal
	}
	return out
}

func heldControls(c input.Controls) input.Controls {
	return input.Controls{
		Forward:      c.Forward,
		Right:        c.Right,
		Up:           c.Up,
		Roll:         c.Roll,
		PortalRotate: c.PortalRotate,
		PortalResize: c.PortalResize,
		Sprint:       c.Sprint,
	}
}
