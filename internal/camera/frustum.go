package camera

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"portalsim/engine/internal/geom"
)

// frustumSide is one of the four side planes together with the rotation that lays the
// plane flat for the 2D wedge test.
type frustumSide struct {
	normal mgl32.Vec3
	flat   mgl32.Mat4
	zy     bool
}

// FrustumContainsDisc reports whether any part of the disc lies inside the view
// pyramid. Near and far planes are ignored.
func (c *Camera) FrustumContainsDisc(center, normal mgl32.Vec3, radius float32) bool {
	//1.- Move the disc into unscaled camera space.
	view := c.ViewMatrix()
	cv := geom.TransformCoord(center, view).Mul(c.viewScale)
	nv := geom.TransformNormal(normal, view)

	halfY := c.fovY / 2
	tanY := math32.Tan(halfY)
	halfX := math32.Atan(tanY * c.aspect)
	sinX, cosX := math32.Sincos(halfX)
	sinY, cosY := math32.Sincos(halfY)

	sides := [4]frustumSide{
		{normal: mgl32.Vec3{cosX, 0, sinX}, flat: mgl32.HomogRotate3DY(halfX), zy: true},
		{normal: mgl32.Vec3{-cosX, 0, sinX}, flat: mgl32.HomogRotate3DY(-halfX), zy: true},
		{normal: mgl32.Vec3{0, -cosY, sinY}, flat: mgl32.HomogRotate3DX(halfY)},
		{normal: mgl32.Vec3{0, cosY, sinY}, flat: mgl32.HomogRotate3DX(-halfY)},
	}

	//2.- Reject discs wholly outside one plane and accept discs inside all of them.
	var dist, reach [4]float32
	inside := true
	for i, side := range sides {
		dist[i] = cv.Dot(side.normal)
		reach[i] = radius * nv.Cross(side.normal).Len()
		if dist[i] <= -reach[i] {
			return false
		}
		if dist[i] < reach[i] {
			inside = false
		}
	}
	if inside {
		return true
	}

	//3.- Flattened edge rays of the side planes.
	topLeft := mgl32.Vec3{-c.aspect * tanY, tanY, 1}
	tr := geom.TransformNormal(topLeft, sides[0].flat)
	topRay := mgl32.Vec2{tr[2], tr[1]}
	bottomRay := mgl32.Vec2{topRay[0], -topRay[1]}
	lr := geom.TransformNormal(topLeft, sides[2].flat)
	leftRay := mgl32.Vec2{lr[0], lr[2]}
	rightRay := mgl32.Vec2{-leftRay[0], leftRay[1]}

	//4.- Each straddled plane cuts the disc along a chord; test the chord in 2D.
	for i, side := range sides {
		if math32.Abs(dist[i]) >= reach[i] {
			continue
		}
		q1, q2 := discChord(cv, nv, side.normal, dist[i], radius)
		q1 = geom.TransformCoord(q1, side.flat)
		q2 = geom.TransformCoord(q2, side.flat)
		if side.zy {
			if FrustumContainsSegment2D(topRay, bottomRay, mgl32.Vec2{q1[2], q1[1]}, mgl32.Vec2{q2[2], q2[1]}) {
				return true
			}
			continue
		}
		if FrustumContainsSegment2D(leftRay, rightRay, mgl32.Vec2{q1[0], q1[2]}, mgl32.Vec2{q2[0], q2[2]}) {
			return true
		}
	}
	return false
}

// discChord returns the endpoints of the segment where the disc meets the plane
// through the origin with normal np.
func discChord(center, normal, np mgl32.Vec3, dist, radius float32) (mgl32.Vec3, mgl32.Vec3) {
	m := np.Cross(normal)
	a := dist / m.Len()
	m = geom.Normalize3(m)
	g := center.Add(m.Cross(normal).Mul(a))
	h := m.Mul(math32.Sqrt(radius*radius - a*a))
	return g.Sub(h), g.Add(h)
}

// FrustumContainsSegment2D reports whether segment AB touches the wedge swept
// clockwise from lDir to rDir.
func FrustumContainsSegment2D(lDir, rDir, a, b mgl32.Vec2) bool {
	//1.- Either endpoint strictly inside the wedge.
	if (geom.Cross2(rDir, a) > 0 && geom.Cross2(a, lDir) > 0) ||
		(geom.Cross2(rDir, b) > 0 && geom.Cross2(b, lDir) > 0) {
		return true
	}
	//2.- Otherwise the segment must cross the left ray.
	crossA := geom.Cross2(lDir, a)
	crossB := geom.Cross2(lDir, b)
	if (crossA <= 0 && crossB <= 0) || (crossA >= 0 && crossB >= 0) {
		return false
	}
	t := geom.Cross2(a, b) / geom.Cross2(lDir, b.Sub(a))
	return t > 0
}
