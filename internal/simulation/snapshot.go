package simulation

import (
	"github.com/go-gl/mathgl/mgl32"

	"portalsim/engine/internal/camera"
	"portalsim/engine/internal/portal"
)

// CameraPose is everything a renderer needs from one camera.
type CameraPose struct {
	Position  mgl32.Vec3
	Right     mgl32.Vec3
	Up        mgl32.Vec3
	Look      mgl32.Vec3
	BodyUp    mgl32.Vec3
	ViewScale float32
	Radius    float32
	View      mgl32.Mat4
	Proj      mgl32.Mat4
}

// BodyPose places the player model.
type BodyPose struct {
	Position mgl32.Vec3
	Right    mgl32.Vec3
	Up       mgl32.Vec3
	Look     mgl32.Vec3
	Radius   float32
	World    mgl32.Mat4
}

// PortalPose is the frame and sizing of one portal.
type PortalPose struct {
	Position          mgl32.Vec3
	Left              mgl32.Vec3
	Up                mgl32.Vec3
	Normal            mgl32.Vec3
	PhysicalRadius    float32
	MaxPhysicalRadius float32
	TextureRadius     float32
	BoxWorld          mgl32.Mat4
	ScaledPortal      mgl32.Mat4
	PlayerIntersects  bool
}

// Snapshot is an immutable copy of the world after a step.
type Snapshot struct {
	Tick         uint64
	ActiveCamera CameraID
	ActivePortal PortalID
	Editable     bool

	Left   CameraPose
	Right  CameraPose
	Player BodyPose
	Orange PortalPose
	Blue   PortalPose

	// LookThroughOrange maps the surroundings of blue to where they appear behind
	// orange; LookThroughBlue is its inverse.
	LookThroughOrange mgl32.Mat4
	LookThroughBlue   mgl32.Mat4

	Budget Budget
}

// Snapshot copies the current state.
func (w *World) Snapshot() Snapshot {
	return Snapshot{
		Tick:              w.tick,
		ActiveCamera:      w.activeCamera,
		ActivePortal:      w.activePortal,
		Editable:          w.PortalsCanBeModified(),
		Left:              cameraPose(w.left),
		Right:             cameraPose(w.right),
		Player:            bodyPose(w.player),
		Orange:            portalPose(w.orange, w.playerInOrange),
		Blue:              portalPose(w.blue, w.playerInBlue),
		LookThroughOrange: portal.VirtualizationMatrix(w.orange, w.blue),
		LookThroughBlue:   portal.VirtualizationMatrix(w.blue, w.orange),
		Budget:            w.IterationBudget(),
	}
}

func cameraPose(c *camera.Camera) CameraPose {
	return CameraPose{
		Position:  c.Position(),
		Right:     c.Right(),
		Up:        c.Up(),
		Look:      c.Look(),
		BodyUp:    c.BodyUp(),
		ViewScale: c.ViewScale(),
		Radius:    c.BoundingSphereRadius(),
		View:      c.ViewMatrix(),
		Proj:      c.ProjMatrix(),
	}
}

func bodyPose(b *camera.Body) BodyPose {
	return BodyPose{
		Position: b.Position(),
		Right:    b.Right(),
		Up:       b.Up(),
		Look:     b.Look(),
		Radius:   b.BoundingSphereRadius(),
		World:    b.WorldMatrix(),
	}
}

func portalPose(p portal.Portal, playerIntersects bool) PortalPose {
	return PortalPose{
		Position:          p.Position(),
		Left:              p.Left(),
		Up:                p.Up(),
		Normal:            p.Normal(),
		PhysicalRadius:    p.PhysicalRadius(),
		MaxPhysicalRadius: p.MaxPhysicalRadius(),
		TextureRadius:     p.TextureRadius(),
		BoxWorld:          p.BoxWorldMatrix(),
		ScaledPortal:      p.ScaledPortalMatrix(),
		PlayerIntersects:  playerIntersects,
	}
}
