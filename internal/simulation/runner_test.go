package simulation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalsim/engine/internal/geom"
	"portalsim/engine/internal/input"
	"portalsim/engine/internal/level"
	"portalsim/engine/internal/logging"
)

func TestRunnerStepOncePublishes(t *testing.T) {
	var got []Snapshot
	r := NewRunner(NewWorld(level.Default()), 60,
		WithPublisher(PublisherFunc(func(s Snapshot) { got = append(got, s) })),
		WithRunnerLogger(logging.NewTestLogger()),
	)

	r.Submit(input.Controls{Forward: 1})
	snap := r.StepOnce(100 * time.Millisecond)

	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), snap.Tick)
	assert.Equal(t, got[0], snap)
	assert.True(t, geom.Near(snap.Left.Position, mgl32.Vec3{2, 1.5, 2.5}, eps))
	assert.Equal(t, 1, r.Monitor().Snapshot().Samples)

	//1.- Held axes keep moving the camera on the next tick.
	snap = r.StepOnce(100 * time.Millisecond)
	assert.True(t, geom.Near(snap.Left.Position, mgl32.Vec3{2, 1.5, 3}, eps))
}

func TestRunnerOneShotActionsFire(t *testing.T) {
	r := NewRunner(NewWorld(level.Default()), 60, WithRunnerLogger(logging.NewTestLogger()))

	r.Submit(input.Controls{LookYaw: 0.1})
	r.Submit(input.Controls{LookYaw: 0.2, Camera: input.CameraRight})
	snap := r.StepOnce(10 * time.Millisecond)
	assert.Equal(t, RightCamera, snap.ActiveCamera)
	assert.InDelta(t, 0.3, float64(mgl32.Vec3{1, 0, 0}.Dot(snap.Right.Look)), 0.02)

	//1.- Look deltas are consumed, so the following tick leaves the view alone.
	before := snap.Right.Look
	snap = r.StepOnce(10 * time.Millisecond)
	assert.Equal(t, before, snap.Right.Look)
	assert.Equal(t, RightCamera, snap.ActiveCamera)
}

func TestMergeControls(t *testing.T) {
	prev := input.Controls{
		Forward:   1,
		LookYaw:   0.5,
		LookPitch: -0.25,
		Relocate:  true,
		Camera:    input.CameraRight,
		Portal:    input.PortalBlue,
	}
	next := input.Controls{Forward: -1, LookYaw: 0.25, Level: true}

	got := mergeControls(prev, next)
	assert.Equal(t, input.Controls{
		Forward:   -1,
		LookYaw:   0.75,
		LookPitch: -0.25,
		Level:     true,
		Relocate:  true,
		Camera:    input.CameraRight,
		Portal:    input.PortalBlue,
	}, got)

	held := heldControls(got)
	assert.Equal(t, input.Controls{Forward: -1}, held)
}

func TestRunnerReplaceWorld(t *testing.T) {
	r := NewRunner(NewWorld(level.Default()), 60, WithRunnerLogger(logging.NewTestLogger()))
	r.Submit(input.Controls{Forward: 1})
	r.StepOnce(time.Millisecond)

	def := level.Default()
	def.CameraPosition = mgl32.Vec3{3, 1, 3}
	r.ReplaceWorld(NewWorld(def))

	snap := r.Latest()
	assert.Equal(t, uint64(0), snap.Tick)
	assert.Equal(t, mgl32.Vec3{3, 1, 3}, snap.Left.Position)
	assert.Zero(t, r.Monitor().Snapshot().Samples)

	//1.- Pending input from the old world is discarded.
	snap = r.StepOnce(100 * time.Millisecond)
	assert.Equal(t, mgl32.Vec3{3, 1, 3}, snap.Left.Position)
}

func TestRunnerStartStop(t *testing.T) {
	var mu sync.Mutex
	published := 0
	r := NewRunner(NewWorld(level.Default()), 200,
		WithPublisher(PublisherFunc(func(Snapshot) {
			mu.Lock()
			published++
			mu.Unlock()
		})),
		WithRunnerLogger(logging.NewTestLogger()),
	)

	r.Start(context.Background())
	assert.True(t, r.Running())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return published >= 3
	}, time.Second, 5*time.Millisecond)

	r.Stop()
	assert.False(t, r.Running())
	assert.Positive(t, r.Latest().Tick)
}

func TestRunnerStopsRunningWhenContextEnds(t *testing.T) {
	r := NewRunner(NewWorld(level.Default()), 200, WithRunnerLogger(logging.NewTestLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	require.True(t, r.Running())

	cancel()
	require.Eventually(t, func() bool { return !r.Running() }, time.Second, time.Millisecond)
	r.Stop()
}
