// Package physics moves a camera along a swept-sphere path through a room that may
// contain a pair of linked portals.
package physics

import (
	"github.com/go-gl/mathgl/mgl32"

	"portalsim/engine/internal/camera"
	"portalsim/engine/internal/geom"
	"portalsim/engine/internal/portal"
	"portalsim/engine/internal/room"
)

// Segment describes one committed leg of a move for diagnostics.
type Segment struct {
	Start      mgl32.Vec3
	Dir        mgl32.Vec3
	MoveDist   float32
	Hit        geom.Hit
	Clipped    bool
	Teleported bool
}

// Mover runs the iterative path solver. The zero value is ready to use.
type Mover struct {
	// Trace, when set, receives every committed segment.
	Trace func(Segment)
}

// MoveIterative moves cam with a zero-value Mover.
func MoveIterative(cam *camera.Camera, dir mgl32.Vec3, moveDist float32, rm *room.Room, orange, blue portal.Portal) {
	Mover{}.MoveIterative(cam, dir, moveDist, rm, orange, blue)
}

// MoveIterative makes a primary attempt and up to two redirected attempts along the
// slide direction of each blocking contact. The remaining distance for a redirect is
// computed from the previous request and the reported contact distance as is.
func (m Mover) MoveIterative(cam *camera.Camera, dir mgl32.Vec3, moveDist float32, rm *room.Room, orange, blue portal.Portal) {
	//1.- Primary attempt.
	hit, redirect := m.MoveAlongPath(cam, dir, moveDist, rm, orange, blue)
	if !redirect {
		return
	}
	//2.- Two slides at most.
	for i := 0; i < 2; i++ {
		moveDist = (moveDist - hit.Dist) * hit.RedirectRatio
		hit, redirect = m.MoveAlongPath(cam, hit.RedirectDir, moveDist, rm, orange, blue)
		if !redirect {
			return
		}
	}
}

// MoveAlongPath performs a single attempt and reports the contact together with
// whether a redirected attempt should follow.
func (m Mover) MoveAlongPath(cam *camera.Camera, dir mgl32.Vec3, moveDist float32, rm *room.Room, orange, blue portal.Portal) (geom.Hit, bool) {
	r := cam.BoundingSphereRadius()
	s := cam.Position()
	moveDist *= cam.ViewScale()

	//1.- A sphere already touching a portal disc moves in clipped mode.
	if orange.DiscIntersectSphere(s, r) {
		return m.MoveClipped(cam, dir, moveDist, rm, orange, blue)
	}
	if blue.DiscIntersectSphere(s, r) {
		return m.MoveClipped(cam, dir, moveDist, rm, blue, orange)
	}

	//2.- Ordinary room collision.
	c := rm.SpherePathCollision(r, s, dir, moveDist)
	if c.Dist == moveDist {
		cam.SetPosition(c.X)
		m.trace(Segment{Start: s, Dir: dir, MoveDist: moveDist, Hit: c.Hit})
		return c.Hit, false
	}

	//3.- Contacts on a portal surface mean the sphere reached the hole, not the wall.
	if onPortal(orange, c.T) {
		return m.MoveClipped(cam, dir, moveDist, rm, orange, blue)
	}
	if onPortal(blue, c.T) {
		return m.MoveClipped(cam, dir, moveDist, rm, blue, orange)
	}

	cam.SetPosition(c.X)
	m.trace(Segment{Start: s, Dir: dir, MoveDist: moveDist, Hit: c.Hit})
	return c.Hit, c.Dist < moveDist && c.RedirectRatio != 0
}

func onPortal(p portal.Portal, t mgl32.Vec3) bool {
	d := p.Position().Sub(t)
	return geom.Abs(d.Dot(p.Normal())) < geom.PortalsSamePlaneThreshold && d.Len() < p.PhysicalRadius()
}

// MoveClipped moves a sphere that overlaps the clip portal. The room behind the portal
// is replaced by the room seen through the other portal, the rim acts as a solid ring
// and the body may meet its own image. moveDist is already in view-scaled units.
func (m Mover) MoveClipped(cam *camera.Camera, dir mgl32.Vec3, moveDist float32, rm *room.Room, clip, other portal.Portal) (geom.Hit, bool) {
	r := cam.BoundingSphereRadius()
	s := cam.Position()
	closest := geom.Miss(s, dir, moveDist)

	//1.- Rim of the clip portal.
	updateClosest(&closest, clip.SpherePathCollision(r, s, dir, moveDist))

	//2.- Room behind the portal when heading into it, the real room otherwise.
	virtualize := portal.VirtualizationMatrix(other, clip)
	if dir.Dot(clip.Normal()) < 0 {
		unvirtualize := portal.VirtualizationMatrix(clip, other)
		updateClosest(&closest, rm.SpherePathVirtualCollision(virtualize, unvirtualize, r, s, dir, moveDist))
	} else {
		updateClosest(&closest, rm.SpherePathCollision(r, s, dir, moveDist).Hit)
	}

	//3.- Own image on the far side.
	updateClosest(&closest, cam.SelfVirtualCollision(virtualize, r, s, dir, moveDist))

	//4.- Commit and teleport when the committed leg went through the disc.
	cam.SetPosition(closest.X)
	teleported := clip.PathCrossesPortal(s, dir, closest.Dist)
	if teleported {
		cam.Transform(virtualize)
	}
	m.trace(Segment{Start: s, Dir: dir, MoveDist: moveDist, Hit: closest, Clipped: true, Teleported: teleported})
	return closest, closest.Dist < moveDist && closest.RedirectRatio != 0
}

// updateClosest keeps the nearest contact. At equal distance the more restrictive
// ratio wins but the stopping point is kept.
func updateClosest(closest *geom.Hit, h geom.Hit) {
	switch {
	case h.Dist == closest.Dist && h.RedirectRatio < closest.RedirectRatio:
		closest.RedirectRatio = h.RedirectRatio
		closest.RedirectDir = h.RedirectDir
	case h.Dist < closest.Dist:
		*closest = h
	}
}

func (m Mover) trace(seg Segment) {
	if m.Trace != nil {
		m.Trace(seg)
	}
}
