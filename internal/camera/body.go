package camera

import (
	"github.com/go-gl/mathgl/mgl32"

	"portalsim/engine/internal/geom"
)

// Body is the first-person object a camera can ride. It never refers back to the
// camera; the camera pushes every pose change into it.
type Body struct {
	radius   float32
	position mgl32.Vec3
	right    mgl32.Vec3
	up       mgl32.Vec3
	look     mgl32.Vec3
}

// NewBody returns a unit sphere at the origin looking down +Z.
func NewBody() *Body {
	return &Body{
		radius: 1,
		right:  mgl32.Vec3{1, 0, 0},
		up:     mgl32.Vec3{0, 1, 0},
		look:   mgl32.Vec3{0, 0, 1},
	}
}

// BoundingSphereRadius is the collision radius of the body.
func (b *Body) BoundingSphereRadius() float32 { return b.radius }

// Position is the body centre.
func (b *Body) Position() mgl32.Vec3 { return b.position }

// Right is the body's right axis.
func (b *Body) Right() mgl32.Vec3 { return b.right }

// Up is the body's up axis.
func (b *Body) Up() mgl32.Vec3 { return b.up }

// Look is the body's forward axis.
func (b *Body) Look() mgl32.Vec3 { return b.look }

// SetBoundingSphereRadius sets the collision radius.
func (b *Body) SetBoundingSphereRadius(r float32) { b.radius = r }

// SetPosition moves the body without collision.
func (b *Body) SetPosition(p mgl32.Vec3) { b.position = p }

// SetOrientation replaces the body axes.
func (b *Body) SetOrientation(right, up, look mgl32.Vec3) {
	b.right = right
	b.up = up
	b.look = look
}

// WorldMatrix places the unit-radius body model in the world.
func (b *Body) WorldMatrix() mgl32.Mat4 {
	return geom.FrameToWorld(b.right, b.up, b.look, b.position).Mul4(mgl32.Scale3D(b.radius, b.radius, b.radius))
}
