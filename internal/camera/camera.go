// Package camera implements the first-person camera, the body it can be attached to
// and the visibility queries used to budget portal recursion.
//
// Camera space is left-handed: right is +X, up is +Y and look is +Z. The right, up,
// look and body-up axes stay unit length; accumulated portal scaling lives in the view
// scale instead.
package camera

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"portalsim/engine/internal/geom"
)

// SphereRadius is the collision radius of a free camera at view scale 1.
const SphereRadius float32 = 0.02

// Camera is a positioned, oriented eye with an optional attached Body.
type Camera struct {
	position mgl32.Vec3
	right    mgl32.Vec3
	up       mgl32.Vec3
	look     mgl32.Vec3
	bodyUp   mgl32.Vec3

	viewScale float32

	near   float32
	far    float32
	fovY   float32
	aspect float32
	proj   mgl32.Mat4

	attached *Body
}

// New returns a camera at the origin looking down +Z with a 45 degree vertical field
// of view.
func New() *Camera {
	c := &Camera{
		right:     mgl32.Vec3{1, 0, 0},
		up:        mgl32.Vec3{0, 1, 0},
		look:      mgl32.Vec3{0, 0, 1},
		bodyUp:    mgl32.Vec3{0, 1, 0},
		viewScale: 1,
		near:      0.01,
		far:       1000,
		fovY:      math32.Pi / 4,
		aspect:    1,
	}
	c.updateProjMatrix()
	return c
}

// Position is the eye point.
func (c *Camera) Position() mgl32.Vec3 { return c.position }

// Right is the camera's right axis.
func (c *Camera) Right() mgl32.Vec3 { return c.right }

// Up is the camera's up axis.
func (c *Camera) Up() mgl32.Vec3 { return c.up }

// Look is the unit view direction.
func (c *Camera) Look() mgl32.Vec3 { return c.look }

// BodyUp is the up axis used for leveling and vertical motion.
func (c *Camera) BodyUp() mgl32.Vec3 { return c.bodyUp }

// ViewScale is the accumulated portal scale applied to movement and radius.
func (c *Camera) ViewScale() float32 { return c.viewScale }

// FovY is the vertical field of view in radians.
func (c *Camera) FovY() float32 { return c.fovY }

// Aspect is the viewport width over height.
func (c *Camera) Aspect() float32 { return c.aspect }

// Lens returns the near plane, far plane and vertical field of view.
func (c *Camera) Lens() (near, far, fovY float32) { return c.near, c.far, c.fovY }

// Attached returns the body the camera drives, or nil.
func (c *Camera) Attached() *Body { return c.attached }

// BoundingSphereRadius is the attached body's radius, or SphereRadius scaled by the
// view scale for a free camera.
func (c *Camera) BoundingSphereRadius() float32 {
	if c.attached == nil {
		return SphereRadius * c.viewScale
	}
	return c.attached.BoundingSphereRadius()
}

// ViewMatrix maps world space into camera space. Its w entry holds the view scale so
// transformed points shrink by the accumulated portal scaling.
func (c *Camera) ViewMatrix() mgl32.Mat4 {
	return geom.WorldToFrame(c.right, c.up, c.look, c.position, c.viewScale)
}

// ProjMatrix is a left-handed perspective projection mapping depth to [0, 1].
func (c *Camera) ProjMatrix() mgl32.Mat4 { return c.proj }

func (c *Camera) updateProjMatrix() {
	h := math32.Tan(c.fovY / 2)
	c.proj = mgl32.Mat4FromRows(
		mgl32.Vec4{1 / (c.aspect * h), 0, 0, 0},
		mgl32.Vec4{0, 1 / h, 0, 0},
		mgl32.Vec4{0, 0, c.far / (c.far - c.near), c.near * c.far / (c.near - c.far)},
		mgl32.Vec4{0, 0, 1, 0},
	)
}

// SetLens sets the clip planes and vertical field of view.
func (c *Camera) SetLens(near, far, fovY float32) {
	c.near, c.far, c.fovY = near, far, fovY
	c.updateProjMatrix()
}

// SetAspect sets the viewport aspect ratio.
func (c *Camera) SetAspect(aspect float32) {
	c.aspect = aspect
	c.updateProjMatrix()
}

// SetPosition moves the camera, and any attached body, without collision.
func (c *Camera) SetPosition(p mgl32.Vec3) {
	c.position = p
	c.syncPosition()
}

func (c *Camera) syncPosition() {
	if c.attached != nil {
		c.attached.SetPosition(c.position)
	}
}

func (c *Camera) syncOrientation() {
	if c.attached != nil {
		c.attached.SetOrientation(c.right, c.up, c.look)
	}
}

// Orthonormalize rebuilds right and up around the current look direction.
func (c *Camera) Orthonormalize() {
	c.look = geom.Normalize3(c.look)
	c.up = geom.Normalize3(c.look.Cross(c.right))
	c.right = c.up.Cross(c.look)
	c.syncOrientation()
}

// LookAtAndLevel points the camera at target and levels it.
func (c *Camera) LookAtAndLevel(target mgl32.Vec3) {
	c.look = geom.Normalize3(target.Sub(c.position))
	c.Level()
}

// Level resets body-up to world +Y and removes any roll.
func (c *Camera) Level() {
	bu := mgl32.Vec3{0, 1, 0}
	right := bu.Cross(c.look)
	if right.Len() == 0 {
		right = mgl32.Vec3{1, 0, 0}
	} else {
		right = geom.Normalize3(right)
	}
	c.right = right
	c.up = c.look.Cross(right)
	c.bodyUp = bu
	c.syncOrientation()
}

// RotateRight yaws around body-up.
func (c *Camera) RotateRight(angle float32) {
	m := geom.RotationAxis(c.bodyUp, angle)
	c.right = geom.TransformNormal(c.right, m)
	c.up = geom.TransformNormal(c.up, m)
	c.look = geom.TransformNormal(c.look, m)
	c.syncOrientation()
}

// RotateUp pitches the view. Pitch never passes body-up: the look snaps to the pole
// instead.
func (c *Camera) RotateUp(angle float32) {
	sin, cos := math32.Sincos(angle)
	look := c.look.Mul(cos).Add(c.up.Mul(sin))
	up := c.look.Mul(-sin).Add(c.up.Mul(cos))
	if up.Dot(c.bodyUp) < 0 {
		if look.Dot(c.bodyUp) > 0 {
			look = c.bodyUp
		} else {
			look = c.bodyUp.Mul(-1)
		}
		up = c.right.Cross(look)
	}
	c.look = look
	c.up = up
	c.syncOrientation()
}

// RollRight tilts body-up and the view axes around the horizontal forward axis.
func (c *Camera) RollRight(angle float32) {
	m := geom.RotationAxis(c.right.Cross(c.bodyUp), -angle)
	c.bodyUp = geom.TransformNormal(c.bodyUp, m)
	c.right = geom.TransformNormal(c.right, m)
	c.up = geom.TransformNormal(c.up, m)
	c.look = geom.TransformNormal(c.look, m)
	c.syncOrientation()
}

// MoveForward returns the point dist ahead along Look.
func (c *Camera) MoveForward(dist float32) mgl32.Vec3 { return c.moveAlong(c.look, dist) }

// MoveRight returns the point dist along Right.
func (c *Camera) MoveRight(dist float32) mgl32.Vec3 { return c.moveAlong(c.right, dist) }

// MoveUp returns the point dist along BodyUp.
func (c *Camera) MoveUp(dist float32) mgl32.Vec3 { return c.moveAlong(c.bodyUp, dist) }

func (c *Camera) moveAlong(axis mgl32.Vec3, dist float32) mgl32.Vec3 {
	c.position = geom.PointAt(c.position, axis, dist)
	c.syncPosition()
	return c.position
}

// Transform carries the camera through m. The length m gives the look axis is folded
// into the view scale; body-up keeps whatever length m gives it.
func (c *Camera) Transform(m mgl32.Mat4) {
	c.right = geom.Normalize3(geom.TransformNormal(c.right, m))
	c.up = geom.Normalize3(geom.TransformNormal(c.up, m))
	look := geom.TransformNormal(c.look, m)
	c.MultiplyViewScale(look.Len())
	c.look = geom.Normalize3(look)
	c.bodyUp = geom.TransformNormal(c.bodyUp, m)
	c.position = geom.TransformCoord(c.position, m)
	c.syncPosition()
	c.syncOrientation()
}

// MultiplyViewScale scales the view and the attached body's radius together.
func (c *Camera) MultiplyViewScale(multiplier float32) float32 {
	c.viewScale *= multiplier
	if c.attached != nil {
		c.attached.SetBoundingSphereRadius(c.attached.BoundingSphereRadius() * multiplier)
	}
	return c.viewScale
}

// AttachTo makes body follow the camera and adopts the body's pose.
func (c *Camera) AttachTo(body *Body) {
	c.attached = body
	c.position = body.Position()
	c.right = body.Right()
	c.up = body.Up()
	c.look = body.Look()
}

// Detach releases the attached body and returns it.
func (c *Camera) Detach() *Body {
	body := c.attached
	c.attached = nil
	return body
}

// SurfaceVisibilityFactor is the cosine between the surface normal and the direction
// from the surface point to the eye. Negative values mean the surface faces away.
func (c *Camera) SurfaceVisibilityFactor(point, normal mgl32.Vec3) float32 {
	return normal.Dot(geom.Normalize3(c.position.Sub(point)))
}

// SelfVirtualCollision sweeps the sphere against the attached body's own image as seen
// through virtualize. Both spheres move; the image's radius and speed scale with the
// transform. Contacts are hard stops.
func (c *Camera) SelfVirtualCollision(virtualize mgl32.Mat4, radius float32, s, dir mgl32.Vec3, moveDist float32) geom.Hit {
	miss := geom.Miss(s, dir, moveDist)
	if c.attached == nil {
		return miss
	}

	//1.- The image keeps its scaled velocity, so dv is deliberately not normalized.
	sv := geom.TransformCoord(s, virtualize)
	dv := geom.TransformNormal(dir, virtualize)
	rv := radius * dv.Len()

	//2.- Solve |(s - sv) + t(dir - dv)| = r + rv for the earliest t.
	g := s.Sub(sv)
	h := dir.Sub(dv)
	rsum := radius + rv
	a := h.LenSqr()
	bHalf := g.Dot(h)
	cc := g.LenSqr() - rsum*rsum
	disc := bHalf*bHalf - a*cc
	if disc <= 0 {
		return miss
	}
	t := (-bHalf - math32.Sqrt(disc)) / a
	if t < -geom.TThreshold || t > moveDist {
		return miss
	}
	return geom.Hit{
		X:             geom.PointAt(s, dir, t-geom.TBump),
		Dist:          t,
		RedirectRatio: 0,
		RedirectDir:   dir,
	}
}
