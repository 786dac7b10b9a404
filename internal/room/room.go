// Package room holds the extruded polygonal floor plan the player moves through and
// answers swept-sphere queries against its walls, floor and ceiling.
//
// Floor-plan points are (x, z) pairs. Polygons are closed implicitly from the last
// vertex to the first and are expected to wind counter-clockwise around the walkable
// interior so that the left side of every edge faces into the room.
package room

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"portalsim/engine/internal/geom"
)

// Bounds is the axis-aligned extent of the floor plan. It always includes the origin.
type Bounds struct {
	MinX, MaxX float32
	MinZ, MaxZ float32
}

// Room is treated as read-only by every collision query once its topography is set.
type Room struct {
	floorY   float32
	ceilingY float32
	bounds   Bounds

	wallCount int
	polygons  [][]mgl32.Vec2
}

// Contact is a sphere path result together with the touched surface point and the
// surface normal facing into the room.
type Contact struct {
	geom.Hit
	T       mgl32.Vec3
	TNormal mgl32.Vec3
}

// New returns an empty room with floor and ceiling at zero.
func New() *Room {
	return &Room{}
}

// SetFloorAndCeiling sets the heights of the horizontal planes.
func (r *Room) SetFloorAndCeiling(floor, ceiling float32) {
	r.floorY = floor
	r.ceilingY = ceiling
}

// SetTopography copies the boundary polygons and widens the bounds to cover them.
func (r *Room) SetTopography(polygons [][]mgl32.Vec2) {
	r.polygons = make([][]mgl32.Vec2, len(polygons))
	r.wallCount = 0
	for i, poly := range polygons {
		r.polygons[i] = append([]mgl32.Vec2(nil), poly...)
		r.wallCount += len(poly)
		for _, v := range poly {
			r.bounds.MinX = math32.Min(r.bounds.MinX, v[0])
			r.bounds.MaxX = math32.Max(r.bounds.MaxX, v[0])
			r.bounds.MinZ = math32.Min(r.bounds.MinZ, v[1])
			r.bounds.MaxZ = math32.Max(r.bounds.MaxZ, v[1])
		}
	}
}

// FloorY is the floor height.
func (r *Room) FloorY() float32 { return r.floorY }

// CeilingY is the ceiling height.
func (r *Room) CeilingY() float32 { return r.ceilingY }

// Bounds is the floor plan extent, always including the origin.
func (r *Room) Bounds() Bounds { return r.bounds }

// WallCount is the number of polygon edges.
func (r *Room) WallCount() int { return r.wallCount }

// Polygons returns a copy of the boundary polygons.
func (r *Room) Polygons() [][]mgl32.Vec2 {
	out := make([][]mgl32.Vec2, len(r.polygons))
	for i, poly := range r.polygons {
		out[i] = append([]mgl32.Vec2(nil), poly...)
	}
	return out
}

// Describe renders the boundary polygons in a human readable listing.
func (r *Room) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "floor %.3f ceiling %.3f walls %d\n", r.floorY, r.ceilingY, r.wallCount)
	fmt.Fprintf(&b, "bounds x[%.3f, %.3f] z[%.3f, %.3f]\n", r.bounds.MinX, r.bounds.MaxX, r.bounds.MinZ, r.bounds.MaxZ)
	for i, poly := range r.polygons {
		fmt.Fprintf(&b, "polygon %d:\n", i)
		for _, v := range poly {
			fmt.Fprintf(&b, "  (%.3f, %.3f)\n", v[0], v[1])
		}
	}
	return b.String()
}

// forEachEdge visits every polygon edge U->V including the closing edge.
func (r *Room) forEachEdge(visit func(u, v mgl32.Vec2)) {
	for _, poly := range r.polygons {
		for i, u := range poly {
			v := poly[(i+1)%len(poly)]
			visit(u, v)
		}
	}
}

// SpherePathCollision returns the nearer of the wall and floor/ceiling contacts. On a
// tie the floor/ceiling contact wins only when it is strictly more restrictive. A zero
// dir stays at s with a zero redirect ratio.
func (r *Room) SpherePathCollision(radius float32, s, dir mgl32.Vec3, moveDist float32) Contact {
	if dir == (mgl32.Vec3{}) {
		return Contact{Hit: geom.Hit{X: s, Dist: moveDist}}
	}
	fc := r.SpherePathFloorCeilingCollision(radius, s, dir, moveDist)
	wall := r.SpherePathWallCollision(radius, s, dir, moveDist)
	if fc.Dist < wall.Dist || (fc.Dist == wall.Dist && fc.RedirectRatio < wall.RedirectRatio) {
		return fc
	}
	return wall
}

// SpherePathVirtualCollision collides the path against the room as seen through
// virtualize and maps the result back with unvirtualize. The redirect ratio is
// returned unchanged; the distance is in the caller's units.
func (r *Room) SpherePathVirtualCollision(virtualize, unvirtualize mgl32.Mat4, radius float32, s, dir mgl32.Vec3, moveDist float32) geom.Hit {
	//1.- Move the path into virtual space and measure the transform's scale.
	sv := geom.TransformCoord(s, virtualize)
	dv := geom.TransformNormal(dir, virtualize)
	k := dv.Len()

	//2.- Collide with everything scaled by k.
	c := r.SpherePathCollision(radius*k, sv, dv.Mul(1/k), moveDist*k)

	//3.- Bring the stopping point and slide direction back.
	return geom.Hit{
		X:             geom.TransformCoord(c.X, unvirtualize),
		Dist:          c.Dist / k,
		RedirectRatio: c.RedirectRatio,
		RedirectDir:   geom.TransformNormal(c.RedirectDir, unvirtualize),
	}
}

// SpherePathFloorCeilingCollision handles paths with a vertical component. Purely
// vertical paths stop dead; others slide along their horizontal heading.
func (r *Room) SpherePathFloorCeilingCollision(radius float32, s, dir mgl32.Vec3, moveDist float32) Contact {
	miss := Contact{Hit: geom.Miss(s, dir, moveDist)}
	if dir[1] == 0 {
		return miss
	}

	//1.- Solve for the height where the sphere touches the plane it heads toward.
	headingUp := dir[1] > 0
	var t, planeY, normalY float32
	if headingUp {
		planeY, normalY = r.ceilingY, -1
		t = (r.ceilingY - radius - s[1]) / dir[1]
	} else {
		planeY, normalY = r.floorY, 1
		t = (r.floorY + radius - s[1]) / dir[1]
	}
	if t < -geom.TThreshold || t >= moveDist {
		return miss
	}

	c := Contact{
		T:       mgl32.Vec3{s[0] + t*dir[0], planeY, s[2] + t*dir[2]},
		TNormal: mgl32.Vec3{0, normalY, 0},
	}
	c.Dist = t
	c.RedirectDir = dir

	//2.- Slide along the horizontal part of the heading.
	if dir[0] == 0 && dir[2] == 0 {
		c.RedirectRatio = 0
	} else {
		c.RedirectDir = geom.Normalize3(mgl32.Vec3{dir[0], 0, dir[2]})
		c.RedirectRatio = c.RedirectDir.Dot(dir)
	}
	c.X = geom.PointAt(s, dir, t-geom.TBump)
	return c
}

// SpherePathWallCollision projects the path onto the floor plan and finds where the
// disc of the sphere first leaves the walkable area.
func (r *Room) SpherePathWallCollision(radius float32, s, dir mgl32.Vec3, moveDist float32) Contact {
	miss := Contact{Hit: geom.Miss(s, dir, moveDist)}
	if dir[0] == 0 && dir[2] == 0 {
		return miss
	}

	//1.- Work in the XZ plane with a unit planar heading.
	startXZ := geom.XZ(s)
	dirXZ := geom.XZ(dir)
	k := dirXZ.Len()
	dirXZ = geom.Normalize2(dirXZ)
	moveXZ := moveDist * k

	//2.- Gather the walls and corners the disc can reach this step.
	elements := r.reachableElements(radius, startXZ, moveXZ)
	exit := FindFirstExit(radius, startXZ, dirXZ, moveXZ, elements)
	if exit.Dist == moveXZ {
		return miss
	}

	//3.- Lift the planar contact back into 3D.
	c := Contact{}
	c.Dist = exit.Dist / k
	y := s[1] + c.Dist*dir[1]
	c.T = geom.FromXZ(exit.T, y)
	c.TNormal = geom.FromXZ(exit.TNormal, 0)
	c.RedirectDir = dir
	c.RedirectRatio = 1

	//4.- When the wall allows no planar slide, try sliding vertically instead.
	if exit.RedirectRatio == 0 {
		if dir[1] == 0 {
			c.RedirectRatio = 0
		} else {
			c.RedirectDir = mgl32.Vec3{0, geom.Sign(dir[1]), 0}
			c.RedirectRatio = c.RedirectDir.Dot(dir)
		}
	} else {
		c.RedirectDir = geom.Normalize3(mgl32.Vec3{exit.RedirectDir[0] * k, dir[1], exit.RedirectDir[1] * k})
		c.RedirectRatio = c.RedirectDir.Dot(dir)
	}
	c.X = geom.FromXZ(exit.X, y)
	return c
}

// reachableElements lists every corner and edge the disc centre can meet within
// moveXZ of s.
func (r *Room) reachableElements(radius float32, s mgl32.Vec2, moveXZ float32) []Element {
	sum := moveXZ + radius
	var elements []Element
	r.forEachEdge(func(u, v mgl32.Vec2) {
		if sum >= s.Sub(u).Len() {
			elements = append(elements, VertexElement(u))
		}
		uvDir := geom.Normalize2(v.Sub(u))
		if sum < math32.Abs(geom.Cross2(s.Sub(u), uvDir)) {
			return
		}
		if s.Sub(v).Dot(uvDir) <= sum && s.Sub(u).Dot(uvDir) >= -sum {
			elements = append(elements, EdgeElement(u, v))
		}
	})
	return elements
}
