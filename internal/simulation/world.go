package simulation

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"portalsim/engine/internal/camera"
	"portalsim/engine/internal/input"
	"portalsim/engine/internal/level"
	"portalsim/engine/internal/physics"
	"portalsim/engine/internal/portal"
	"portalsim/engine/internal/room"
)

const (
	// PortalIterations is the total recursion budget shared by both portals.
	PortalIterations = 30

	// Lens settings applied to both cameras.
	lensNear float32 = 0.01
	lensFar  float32 = 500
	lensFovY float32 = math32.Pi / 4

	cameraPortalMargin float32 = 0.001
	playerPortalMargin float32 = 0.01
)

// Tuning holds the rates used by Step.
type Tuning struct {
	MoveSpeed            float32
	SprintMultiplier     float32
	RollSpeedDeg         float32
	PortalRotateSpeedDeg float32
	PortalResizeSpeed    float32
	TextureRadiusRatio   float32
}

// DefaultTuning matches the interactive application.
func DefaultTuning() Tuning {
	return Tuning{
		MoveSpeed:            5,
		SprintMultiplier:     3,
		RollSpeedDeg:         60,
		PortalRotateSpeedDeg: 60,
		PortalResizeSpeed:    1.5,
		TextureRadiusRatio:   1.22,
	}
}

// PortalID names one of the two portals.
type PortalID int

const (
	Orange PortalID = iota
	Blue
)

func (p PortalID) String() string {
	if p == Blue {
		return "blue"
	}
	return "orange"
}

// CameraID names one of the two cameras.
type CameraID int

const (
	// LeftCamera flies freely.
	LeftCamera CameraID = iota
	// RightCamera rides the player.
	RightCamera
)

func (c CameraID) String() string {
	if c == RightCamera {
		return "right"
	}
	return "left"
}

// Budget is the portal recursion depth granted to each portal for one frame.
type Budget struct {
	Orange int
	Blue   int
}

// World is the whole simulation state. It is not safe for concurrent use; the Runner
// serialises access.
type World struct {
	room   *room.Room
	orange portal.Portal
	blue   portal.Portal
	left   *camera.Camera
	right  *camera.Camera
	player *camera.Body

	activeCamera CameraID
	activePortal PortalID

	playerInOrange bool
	playerInBlue   bool

	tuning Tuning
	mover  physics.Mover
	tick   uint64
}

// WorldOption customises NewWorld.
type WorldOption func(*World)

// WithTuning overrides the movement and editing rates.
func WithTuning(t Tuning) WorldOption {
	return func(w *World) { w.tuning = t }
}

// WithMoveTrace receives every path segment committed by the mover.
func WithMoveTrace(trace func(physics.Segment)) WorldOption {
	return func(w *World) { w.mover.Trace = trace }
}

// NewWorld builds a world from a level definition.
func NewWorld(def level.Definition, opts ...WorldOption) *World {
	w := &World{
		room:   room.New(),
		left:   camera.New(),
		right:  camera.New(),
		player: camera.NewBody(),
		tuning: DefaultTuning(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	//1.- Free camera and player.
	w.left.SetPosition(def.CameraPosition)
	w.player.SetBoundingSphereRadius(def.PlayerRadius)
	w.player.SetPosition(def.PlayerPosition)

	//2.- Portals.
	w.orange = newPortal(def.Orange, w.tuning.TextureRadiusRatio)
	w.blue = newPortal(def.Blue, w.tuning.TextureRadiusRatio)

	//3.- Room.
	w.room.SetFloorAndCeiling(def.Floor, def.Ceiling)
	w.room.SetTopography(def.Polygons)

	//4.- Lenses and attachment.
	w.left.SetLens(lensNear, lensFar, lensFovY)
	w.right.SetLens(lensNear, lensFar, lensFovY)
	w.right.AttachTo(w.player)

	w.refreshPlayerFlags()
	return w
}

func newPortal(spec level.PortalSpec, ratio float32) portal.Portal {
	p := portal.New()
	p.SetTextureRadiusRatio(ratio)
	p.SetIntendedPhysicalRadius(spec.Radius)
	p.SetPosition(spec.Position)
	p.SetNormalAndUp(spec.Normal, spec.Up)
	return p
}

// Room is the level geometry.
func (w *World) Room() *room.Room { return w.room }

// Player is the body the right camera is attached to.
func (w *World) Player() *camera.Body { return w.player }

// ActiveCameraID is the camera controls currently drive.
func (w *World) ActiveCameraID() CameraID { return w.activeCamera }

// ActivePortalID is the portal editing controls act on.
func (w *World) ActivePortalID() PortalID { return w.activePortal }

// Tick counts completed steps.
func (w *World) Tick() uint64 { return w.tick }

// Camera returns the named camera.
func (w *World) Camera(id CameraID) *camera.Camera {
	if id == RightCamera {
		return w.right
	}
	return w.left
}

// Portal returns a copy of the named portal.
func (w *World) Portal(id PortalID) portal.Portal {
	if id == Blue {
		return w.blue
	}
	return w.orange
}

// SetAspect updates the aspect ratio of both cameras.
func (w *World) SetAspect(aspect float32) {
	w.left.SetAspect(aspect)
	w.right.SetAspect(aspect)
}

// PlayerIntersects reports the player-portal overlap recorded at the end of the last
// step.
func (w *World) PlayerIntersects(id PortalID) bool {
	if id == Blue {
		return w.playerInBlue
	}
	return w.playerInOrange
}

func (w *World) activePortals() (*portal.Portal, portal.Portal) {
	if w.activePortal == Blue {
		return &w.blue, w.orange
	}
	return &w.orange, w.blue
}

// PortalsCanBeModified is false while the player or the free camera overlaps either
// portal.
func (w *World) PortalsCanBeModified() bool {
	if w.playerInOrange || w.playerInBlue {
		return false
	}
	r := w.left.BoundingSphereRadius() + cameraPortalMargin
	pos := w.left.Position()
	return !w.orange.DiscIntersectSphere(pos, r) && !w.blue.DiscIntersectSphere(pos, r)
}

// Step advances the world by dt seconds under the given controls.
func (w *World) Step(c input.Controls, dt float32) {
	//1.- Editing is decided before anything moves.
	canModify := w.PortalsCanBeModified()

	switch c.Portal {
	case input.PortalOrange:
		w.activePortal = Orange
	case input.PortalBlue:
		w.activePortal = Blue
	}
	switch c.Camera {
	case input.CameraLeft:
		w.activeCamera = LeftCamera
	case input.CameraRight:
		w.activeCamera = RightCamera
	}

	cam := w.Camera(w.activeCamera)
	cam.Orthonormalize()

	//2.- Look. Positive pitch input looks down.
	if c.LookPitch != 0 {
		cam.RotateUp(-c.LookPitch)
	}
	if c.LookYaw != 0 {
		cam.RotateRight(c.LookYaw)
	}

	//3.- Move.
	dir := cam.Look().Mul(c.Forward).Add(cam.Right().Mul(c.Right)).Add(cam.BodyUp().Mul(c.Up))
	if dir.LenSqr() != 0 {
		speed := w.tuning.MoveSpeed
		if c.Sprint {
			speed *= w.tuning.SprintMultiplier
		}
		w.mover.MoveIterative(cam, dir.Normalize(), speed*dt, w.room, w.orange, w.blue)
	}

	//4.- Level or roll.
	if c.Level {
		cam.Level()
	} else if c.Roll != 0 {
		cam.RollRight(c.Roll * mgl32.DegToRad(w.tuning.RollSpeedDeg) * dt)
	}

	//5.- Edit the active portal.
	if canModify {
		this, other := w.activePortals()
		if c.Relocate {
			w.room.PortalRelocate(cam.Position(), cam.Look(), this, other)
		}
		if c.PortalRotate != 0 {
			this.RotateLeftAroundNormal(c.PortalRotate * mgl32.DegToRad(w.tuning.PortalRotateSpeedDeg) * dt)
			this.Orthonormalize()
		}
		if c.PortalResize != 0 {
			this.SetIntendedPhysicalRadius(this.PhysicalRadius() + c.PortalResize*w.tuning.PortalResizeSpeed*dt)
		}
	}

	w.refreshPlayerFlags()
	w.tick++
}

func (w *World) refreshPlayerFlags() {
	r := w.player.BoundingSphereRadius() + playerPortalMargin
	pos := w.player.Position()
	w.playerInOrange = w.orange.DiscIntersectSphere(pos, r)
	w.playerInBlue = w.blue.DiscIntersectSphere(pos, r)
}

// IterationBudget splits PortalIterations between the portals the free camera can
// see. A portal is seen when its disc is in the frustum and faces the camera.
func (w *World) IterationBudget() Budget {
	canSeeOrange := w.canSee(w.orange)
	canSeeBlue := w.canSee(w.blue)
	switch {
	case canSeeOrange && canSeeBlue:
		half := PortalIterations / 2
		return Budget{Orange: half, Blue: PortalIterations - half}
	case canSeeOrange:
		return Budget{Orange: PortalIterations - 1, Blue: 1}
	case canSeeBlue:
		return Budget{Orange: 1, Blue: PortalIterations - 1}
	}
	return Budget{Orange: 1, Blue: 1}
}

func (w *World) canSee(p portal.Portal) bool {
	return w.left.FrustumContainsDisc(p.Position(), p.Normal(), p.PhysicalRadius()) &&
		w.left.SurfaceVisibilityFactor(p.Position(), p.Normal()) >= 0
}
