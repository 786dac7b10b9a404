package geom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// TThreshold is how far behind the start point (in path units) a contact may lie and
	// still count as a collision. It must stay non-negative.
	TThreshold float32 = 0.01
	// TBump pulls every reported stopping point back along the path so the sphere never
	// rests exactly on a boundary.
	TBump float32 = 0.001
	// PortalsSamePlaneThreshold is the plane distance under which two surfaces are
	// considered coplanar.
	PortalsSamePlaneThreshold float32 = 0.01
)

// Hit describes where a swept sphere stops along a path and how the remaining motion
// should be redirected.
type Hit struct {
	// X is the stopping point, already bumped back by TBump when a contact occurred.
	X mgl32.Vec3
	// Dist is the path parameter of the first contact, or the full move distance.
	Dist float32
	// RedirectRatio is the fraction of the leftover distance that continues along
	// RedirectDir.
	RedirectRatio float32
	// RedirectDir is the unit slide direction after the contact.
	RedirectDir mgl32.Vec3
}

// Miss returns the default result for a path that reaches its end unobstructed.
func Miss(s, dir mgl32.Vec3, moveDist float32) Hit {
	return Hit{X: PointAt(s, dir, moveDist), Dist: moveDist, RedirectRatio: 1, RedirectDir: dir}
}

// Blocked reports whether the hit stopped short of the requested distance.
func (h Hit) Blocked(moveDist float32) bool {
	return h.Dist < moveDist
}

// PointAt evaluates s + t*dir.
func PointAt(s, dir mgl32.Vec3, t float32) mgl32.Vec3 {
	return s.Add(dir.Mul(t))
}

// Normalize3 scales v to unit length. A zero vector stays zero.
func Normalize3(v mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l == 0 {
		return mgl32.Vec3{}
	}
	return v.Mul(1 / l)
}

// Normalize2 scales v to unit length. A zero vector stays zero.
func Normalize2(v mgl32.Vec2) mgl32.Vec2 {
	l := v.Len()
	if l == 0 {
		return mgl32.Vec2{}
	}
	return v.Mul(1 / l)
}

// Cross2 returns the z component of the 3D cross product of two planar vectors.
func Cross2(a, b mgl32.Vec2) float32 {
	return a[0]*b[1] - a[1]*b[0]
}

// Left90 rotates v a quarter turn counter-clockwise.
func Left90(v mgl32.Vec2) mgl32.Vec2 {
	return mgl32.Vec2{-v[1], v[0]}
}

// Right90 rotates v a quarter turn clockwise.
func Right90(v mgl32.Vec2) mgl32.Vec2 {
	return mgl32.Vec2{v[1], -v[0]}
}

// XZ projects a 3D point onto the horizontal floor plane.
func XZ(v mgl32.Vec3) mgl32.Vec2 {
	return mgl32.Vec2{v[0], v[2]}
}

// FromXZ lifts a floor-plane point back into 3D at height y.
func FromXZ(v mgl32.Vec2, y float32) mgl32.Vec3 {
	return mgl32.Vec3{v[0], y, v[1]}
}

// Sign returns 1 for positive values and -1 otherwise.
func Sign(v float32) float32 {
	if v > 0 {
		return 1
	}
	return -1
}

// Min returns the smaller of two values.
func Min(a, b float32) float32 { return math32.Min(a, b) }

// Max returns the larger of two values.
func Max(a, b float32) float32 { return math32.Max(a, b) }

// Abs returns |v|.
func Abs(v float32) float32 { return math32.Abs(v) }

// Sqrt returns the square root of v.
func Sqrt(v float32) float32 { return math32.Sqrt(v) }

// Inf returns positive infinity.
func Inf() float32 { return math32.Inf(1) }

// Near reports whether every component of a and b differs by at most eps. Unlike
// mgl32's relative comparison it behaves the same when a component is exactly zero.
func Near(a, b mgl32.Vec3, eps float32) bool {
	for i := range a {
		if math32.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

// NearMat4 is Near for matrices.
func NearMat4(a, b mgl32.Mat4, eps float32) bool {
	for i := range a {
		if math32.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}
