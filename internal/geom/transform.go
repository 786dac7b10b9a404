package geom

import "github.com/go-gl/mathgl/mgl32"

// Matrices in this module use mgl32's column-vector convention: a point p maps to M*p.
// Composition reads right to left, so A.Mul4(B) applies B first.

// TransformCoord applies the affine transform m to point p, dividing by w.
func TransformCoord(p mgl32.Vec3, m mgl32.Mat4) mgl32.Vec3 {
	return mgl32.TransformCoordinate(p, m)
}

// TransformNormal applies the linear part of m to direction d.
func TransformNormal(d mgl32.Vec3, m mgl32.Mat4) mgl32.Vec3 {
	return mgl32.TransformNormal(d, m)
}

// FrameToWorld builds the transform taking frame coordinates (x along a, y along b,
// z along c) to world space with origin o.
func FrameToWorld(a, b, c, o mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Mat4FromCols(a.Vec4(0), b.Vec4(0), c.Vec4(0), o.Vec4(1))
}

// WorldToFrame builds the inverse of FrameToWorld for an orthonormal frame. The last
// diagonal entry is w, which divides the result when w != 1.
func WorldToFrame(a, b, c, o mgl32.Vec3, w float32) mgl32.Mat4 {
	return mgl32.Mat4FromRows(
		a.Vec4(-o.Dot(a)),
		b.Vec4(-o.Dot(b)),
		c.Vec4(-o.Dot(c)),
		mgl32.Vec4{0, 0, 0, w},
	)
}

// RotationAxis returns the rotation of angle radians about axis. The axis does not need
// to be unit length.
func RotationAxis(axis mgl32.Vec3, angle float32) mgl32.Mat4 {
	n := Normalize3(axis)
	if n == (mgl32.Vec3{}) {
		return mgl32.Ident4()
	}
	return mgl32.HomogRotate3D(angle, n)
}
