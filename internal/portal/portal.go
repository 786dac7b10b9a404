// Package portal models a circular, oriented teleportation disc and the queries the
// mover and renderer need from it: ring collision, plane crossing and the transforms
// between world space and portal space.
package portal

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"portalsim/engine/internal/geom"
	"portalsim/engine/internal/roots"
)

const (
	// MinPhysicalRadius floors both the intended and the maximum physical radius.
	MinPhysicalRadius float32 = 0.1
	// DiscContainsThreshold is the plane distance tolerated by DiscContainsPoint.
	DiscContainsThreshold float32 = 0.01
)

// Portal is a plain value: copying it copies every field.
type Portal struct {
	position mgl32.Vec3
	left     mgl32.Vec3
	up       mgl32.Vec3
	normal   mgl32.Vec3

	physicalRadius         float32
	intendedPhysicalRadius float32
	maxPhysicalRadius      float32
	textureRadiusRatio     float32
}

// New returns a unit portal at the origin facing +Z.
func New() Portal {
	return Portal{
		left:                   mgl32.Vec3{1, 0, 0},
		up:                     mgl32.Vec3{0, 1, 0},
		normal:                 mgl32.Vec3{0, 0, 1},
		physicalRadius:         1,
		intendedPhysicalRadius: 1,
		maxPhysicalRadius:      math32.Inf(1),
		textureRadiusRatio:     1,
	}
}

// SetTextureRadiusRatio sets texture radius over physical radius.
func (p *Portal) SetTextureRadiusRatio(ratio float32) { p.textureRadiusRatio = ratio }

// SetPosition moves the disc centre.
func (p *Portal) SetPosition(pos mgl32.Vec3) { p.position = pos }

// SetNormalAndUp replaces the frame; left is derived as up × normal.
func (p *Portal) SetNormalAndUp(normal, up mgl32.Vec3) {
	p.normal = normal
	p.up = up
	p.left = up.Cross(normal)
}

// SetIntendedPhysicalRadius requests a radius, floored at MinPhysicalRadius.
func (p *Portal) SetIntendedPhysicalRadius(r float32) {
	p.intendedPhysicalRadius = math32.Max(r, MinPhysicalRadius)
	p.refreshPhysicalRadius()
}

// SetMaxPhysicalRadius caps the radius, floored at MinPhysicalRadius.
func (p *Portal) SetMaxPhysicalRadius(r float32) {
	p.maxPhysicalRadius = math32.Max(r, MinPhysicalRadius)
	p.refreshPhysicalRadius()
}

// SetIntendedTextureRadius sets the intended radius in visual units.
func (p *Portal) SetIntendedTextureRadius(r float32) {
	p.SetIntendedPhysicalRadius(r / p.textureRadiusRatio)
}

// SetMaxTextureRadius sets the maximum radius in visual units.
func (p *Portal) SetMaxTextureRadius(r float32) {
	p.SetMaxPhysicalRadius(r / p.textureRadiusRatio)
}

func (p *Portal) refreshPhysicalRadius() {
	p.physicalRadius = math32.Min(p.intendedPhysicalRadius, p.maxPhysicalRadius)
}

// Position is the disc centre.
func (p Portal) Position() mgl32.Vec3 { return p.position }

// Left is the in-plane left axis.
func (p Portal) Left() mgl32.Vec3 { return p.left }

// Up is the in-plane up axis.
func (p Portal) Up() mgl32.Vec3 { return p.up }

// Normal faces into the room the portal opens from.
func (p Portal) Normal() mgl32.Vec3 { return p.normal }

// PhysicalRadius is the effective collision radius.
func (p Portal) PhysicalRadius() float32 { return p.physicalRadius }

// IntendedPhysicalRadius is the requested radius before the cap.
func (p Portal) IntendedPhysicalRadius() float32 { return p.intendedPhysicalRadius }

// MaxPhysicalRadius is the cap; +Inf when unbounded.
func (p Portal) MaxPhysicalRadius() float32 { return p.maxPhysicalRadius }

// TextureRadius is the rendered radius.
func (p Portal) TextureRadius() float32 { return p.physicalRadius * p.textureRadiusRatio }

// TextureRadiusRatio is texture radius over physical radius.
func (p Portal) TextureRadiusRatio() float32 { return p.textureRadiusRatio }

// IntendedTextureRadius is the requested radius in texture units.
func (p Portal) IntendedTextureRadius() float32 { return p.intendedPhysicalRadius * p.textureRadiusRatio }

// MaxTextureRadius is the cap in texture units.
func (p Portal) MaxTextureRadius() float32 { return p.maxPhysicalRadius * p.textureRadiusRatio }

// RotateLeftAroundNormal spins left and up inside the portal plane.
func (p *Portal) RotateLeftAroundNormal(angle float32) {
	sin, cos := math32.Sincos(angle)
	l, u := p.left, p.up
	p.left = l.Mul(cos).Sub(u.Mul(sin))
	p.up = l.Mul(sin).Add(u.Mul(cos))
}

// Orthonormalize rebuilds the frame from the normal and the current up.
func (p *Portal) Orthonormalize() {
	p.normal = geom.Normalize3(p.normal)
	p.left = geom.Normalize3(p.up.Cross(p.normal))
	p.up = p.normal.Cross(p.left)
}

// Transform moves the portal by m. The physical radius follows the length m gives the
// left axis, so uniform scales resize the disc.
func (p *Portal) Transform(m mgl32.Mat4) {
	l := geom.TransformNormal(p.left, m)
	p.physicalRadius *= l.Len()
	p.left = geom.Normalize3(l)
	p.up = geom.Normalize3(geom.TransformNormal(p.up, m))
	p.normal = geom.Normalize3(geom.TransformNormal(p.normal, m))
	p.position = geom.TransformCoord(p.position, m)
}

// Flip turns the portal around while keeping up.
func (p *Portal) Flip() {
	p.left = p.left.Mul(-1)
	p.normal = p.normal.Mul(-1)
}

// DiscContainsPoint reports whether pt lies on the disc within DiscContainsThreshold of
// its plane.
func (p Portal) DiscContainsPoint(pt mgl32.Vec3) bool {
	d := pt.Sub(p.position)
	if d.Len() > p.physicalRadius {
		return false
	}
	return math32.Abs(d.Dot(p.normal)) <= DiscContainsThreshold
}

// DiscIntersectSphere reports whether the sphere overlaps the disc. A sphere that only
// touches the portal plane does not intersect.
func (p Portal) DiscIntersectSphere(center mgl32.Vec3, radius float32) bool {
	//1.- Spheres wholly in front of the plane never overlap.
	dist := center.Sub(p.position).Dot(p.normal)
	if dist >= radius {
		return false
	}
	//2.- Compare the plane cross-section of the sphere with the disc.
	e := center.Sub(p.normal.Mul(dist))
	sectionRadius := math32.Sqrt(radius*radius - dist*dist)
	return p.physicalRadius+sectionRadius > e.Sub(p.position).Len()
}

// SpherePathCollision sweeps a sphere of radius r from s along the unit direction dir
// for moveDist and returns where it first touches the portal ring. A zero dir does not
// move and reports a zero redirect ratio.
func (p Portal) SpherePathCollision(r float32, s, dir mgl32.Vec3, moveDist float32) geom.Hit {
	if dir == (mgl32.Vec3{}) {
		return geom.Hit{X: s, Dist: moveDist}
	}
	hit := geom.Hit{Dist: moveDist, RedirectRatio: 1, RedirectDir: dir}

	//1.- Express the path in portal space where the disc lies in the XY plane.
	m := p.PortalMatrix()
	sp := geom.TransformCoord(s, m)
	dp := geom.TransformNormal(dir, m)

	//2.- Build the ray/torus quartic with major radius R and minor radius r.
	bigR2 := p.physicalRadius * p.physicalRadius
	r2 := r * r
	beta := 2 * sp.Dot(dp)
	gamma := sp.LenSqr() - r2 - bigR2
	coeffs := [5]float32{
		1,
		2 * beta,
		beta*beta + 2*gamma + 4*bigR2*dp[2]*dp[2],
		2*beta*gamma + 8*bigR2*sp[2]*dp[2],
		gamma*gamma + 4*bigR2*(sp[2]*sp[2]-r2),
	}
	t := moveDist
	if root, ok := roots.LowestQuarticRootInInterval(coeffs, -geom.TThreshold, moveDist); ok {
		t = root
	}

	//3.- Spheres wider than the ring can tunnel through the torus pit between samples.
	if r > p.physicalRadius && dp[2] != 0 {
		h := math32.Sqrt(r2 - bigR2)
		var t2 float32
		if dp[2] < 0 {
			t2 = (h - sp[2]) / dp[2]
		} else {
			t2 = (-h - sp[2]) / dp[2]
		}
		if -geom.TThreshold < t2 && t2 < t {
			x2 := geom.PointAt(sp, dp, t2)
			if math32.Hypot(x2[0], x2[1]) < 2*p.physicalRadius {
				hit.Dist = -geom.TThreshold
				hit.RedirectRatio = 0
				lock := h + geom.TBump
				if dp[2] < 0 {
					hit.X = p.position.Add(p.normal.Mul(lock))
				} else {
					hit.X = p.position.Sub(p.normal.Mul(lock))
				}
				return hit
			}
		}
	}

	if t == moveDist {
		hit.X = geom.PointAt(s, dir, moveDist)
		return hit
	}
	hit.Dist = t

	//4.- Slide perpendicular to the contact radius inside the portal plane.
	xp := geom.PointAt(sp, dp, t)
	if xp[0] == 0 && xp[1] == 0 {
		hit.RedirectRatio = 0
	} else {
		left90 := geom.Normalize3(mgl32.Vec3{xp[1], -xp[0], 0})
		tp := geom.Normalize3(mgl32.Vec3{xp[0], xp[1], 0}).Mul(p.physicalRadius)
		redirect := geom.Normalize3(tp.Sub(xp)).Cross(left90)
		ratio := redirect.Dot(dp)
		if ratio < 0 {
			redirect = redirect.Mul(-1)
			ratio = -ratio
		}
		hit.RedirectRatio = ratio
		hit.RedirectDir = p.left.Mul(redirect[0]).Add(p.up.Mul(redirect[1])).Add(p.normal.Mul(redirect[2]))
	}

	hit.X = geom.PointAt(s, dir, t-geom.TBump)
	return hit
}

// PathCrossesPortal reports whether the segment passes through the disc from the front.
func (p Portal) PathCrossesPortal(s, dir mgl32.Vec3, moveDist float32) bool {
	dirDotN := dir.Dot(p.normal)
	if dirDotN >= 0 {
		return false
	}
	t := p.position.Sub(s).Dot(p.normal) / dirDotN
	if !(0 <= t && t < moveDist) {
		return false
	}
	return geom.PointAt(s, dir, t).Sub(p.position).Len() < p.physicalRadius
}

// BoxWorldMatrix maps the unit portal box (radius 1, depth along -Z) to world space.
func (p Portal) BoxWorldMatrix() mgl32.Mat4 {
	affine := geom.FrameToWorld(p.left, p.up, p.normal, p.position)
	return affine.Mul4(mgl32.Scale3D(p.physicalRadius, p.physicalRadius, 1))
}

// PortalMatrix maps world space into portal space (left, up, normal axes).
func (p Portal) PortalMatrix() mgl32.Mat4 {
	return geom.WorldToFrame(p.left, p.up, p.normal, p.position, 1)
}

// ScaledPortalMatrix is PortalMatrix with coordinates divided by the physical radius.
func (p Portal) ScaledPortalMatrix() mgl32.Mat4 {
	return geom.WorldToFrame(p.left, p.up, p.normal, p.position, p.physicalRadius)
}

// VirtualizationMatrix maps geometry near other to where it appears when looking
// through lookThrough. VirtualizationMatrix(b, a) is its inverse.
func VirtualizationMatrix(lookThrough, other Portal) mgl32.Mat4 {
	toOther := other.PortalMatrix()
	scale := lookThrough.physicalRadius / other.physicalRadius
	flippedToWorld := geom.FrameToWorld(
		lookThrough.left.Mul(-1),
		lookThrough.up,
		lookThrough.normal.Mul(-1),
		lookThrough.position,
	)
	return flippedToWorld.Mul4(mgl32.Scale3D(scale, scale, scale)).Mul4(toOther)
}
