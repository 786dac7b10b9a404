package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"portalsim/engine/internal/geom"
)

const eps = 1e-5

func TestDefaultsAndBoundingRadius(t *testing.T) {
	c := New()
	near, far, fov := c.Lens()
	if near != 0.01 || far != 1000 || math.Abs(float64(fov)-math.Pi/4) > eps || c.Aspect() != 1 {
		t.Fatalf("unexpected lens near=%v far=%v fov=%v", near, far, fov)
	}
	if c.BoundingSphereRadius() != SphereRadius {
		t.Fatalf("expected free camera radius %v, got %v", SphereRadius, c.BoundingSphereRadius())
	}
	c.MultiplyViewScale(3)
	if math.Abs(float64(c.BoundingSphereRadius()-3*SphereRadius)) > eps {
		t.Fatalf("free camera radius must follow view scale, got %v", c.BoundingSphereRadius())
	}
	//1.- Attached cameras report the body's radius.
	body := NewBody()
	body.SetBoundingSphereRadius(0.4)
	c.AttachTo(body)
	if c.BoundingSphereRadius() != 0.4 {
		t.Fatalf("expected body radius, got %v", c.BoundingSphereRadius())
	}
}

func TestViewAndProjectionMatrices(t *testing.T) {
	c := New()
	c.SetPosition(mgl32.Vec3{1, 2, 3})
	//1.- The eye maps to the origin and a point ahead lands on +Z.
	if got := geom.TransformCoord(mgl32.Vec3{1, 2, 3}, c.ViewMatrix()); !geom.Near(got, mgl32.Vec3{}, eps) {
		t.Fatalf("eye not at origin: %v", got)
	}
	if got := geom.TransformCoord(mgl32.Vec3{1, 2, 8}, c.ViewMatrix()); !geom.Near(got, mgl32.Vec3{0, 0, 5}, eps) {
		t.Fatalf("unexpected view-space point %v", got)
	}
	//2.- Depth runs from 0 at the near plane to 1 at the far plane.
	c.SetLens(1, 100, math.Pi/2)
	if z := geom.TransformCoord(mgl32.Vec3{0, 0, 1}, c.ProjMatrix())[2]; math.Abs(float64(z)) > eps {
		t.Fatalf("near plane depth %v", z)
	}
	if z := geom.TransformCoord(mgl32.Vec3{0, 0, 100}, c.ProjMatrix())[2]; math.Abs(float64(z)-1) > eps {
		t.Fatalf("far plane depth %v", z)
	}
	//3.- A quarter-turn field of view puts the frustum edge at x/z = 1.
	if x := geom.TransformCoord(mgl32.Vec3{5, 0, 5}, c.ProjMatrix())[0]; math.Abs(float64(x)-1) > 1e-4 {
		t.Fatalf("frustum edge projected to %v", x)
	}
}

func TestRotateRightYawsAroundBodyUp(t *testing.T) {
	c := New()
	c.RotateRight(math.Pi / 2)
	if !geom.Near(c.Look(), mgl32.Vec3{1, 0, 0}, eps) || !geom.Near(c.Right(), mgl32.Vec3{0, 0, -1}, eps) {
		t.Fatalf("unexpected yaw look=%v right=%v", c.Look(), c.Right())
	}
}

func TestRotateUpClampsAtPole(t *testing.T) {
	c := New()
	c.RotateUp(2)
	if !geom.Near(c.Look(), mgl32.Vec3{0, 1, 0}, eps) {
		t.Fatalf("expected look snapped to body-up, got %v", c.Look())
	}
	if !geom.Near(c.Up(), mgl32.Vec3{0, 0, 1}, eps) {
		t.Fatalf("unexpected up %v", c.Up())
	}
	//1.- Small pitches rotate freely.
	c = New()
	c.RotateUp(0.5)
	want := mgl32.Vec3{0, float32(math.Sin(0.5)), float32(math.Cos(0.5))}
	if !geom.Near(c.Look(), want, eps) {
		t.Fatalf("unexpected pitch look %v", c.Look())
	}
}

func TestRollRightTiltsBodyUpRight(t *testing.T) {
	c := New()
	c.RollRight(0.3)
	if c.BodyUp()[0] <= 0 {
		t.Fatalf("expected body-up to lean right, got %v", c.BodyUp())
	}
	c.Level()
	if c.BodyUp() != (mgl32.Vec3{0, 1, 0}) {
		t.Fatalf("level must restore body-up, got %v", c.BodyUp())
	}
}

func TestLevelLookingStraightUp(t *testing.T) {
	c := New()
	c.LookAtAndLevel(mgl32.Vec3{0, 5, 0})
	if c.Right() != (mgl32.Vec3{1, 0, 0}) {
		t.Fatalf("expected fallback right axis, got %v", c.Right())
	}
	if !geom.Near(c.Up(), mgl32.Vec3{0, 0, -1}, eps) {
		t.Fatalf("unexpected up %v", c.Up())
	}
}

func TestOrthonormalizeRepairsDrift(t *testing.T) {
	c := New()
	c.RotateRight(0.7)
	c.RotateUp(0.3)
	c.RollRight(0.2)
	c.Orthonormalize()
	r, u, l := c.Right(), c.Up(), c.Look()
	for _, v := range []float32{r.Len(), u.Len(), l.Len()} {
		if math.Abs(float64(v)-1) > eps {
			t.Fatalf("axis not unit length: %v", v)
		}
	}
	if math.Abs(float64(r.Dot(u))) > eps || math.Abs(float64(u.Dot(l))) > eps || math.Abs(float64(l.Dot(r))) > eps {
		t.Fatalf("axes not orthogonal")
	}
}

func TestAttachedBodyFollowsCamera(t *testing.T) {
	body := NewBody()
	body.SetPosition(mgl32.Vec3{4, 1, 4})
	body.SetBoundingSphereRadius(0.5)
	c := New()
	c.AttachTo(body)
	if c.Position() != (mgl32.Vec3{4, 1, 4}) {
		t.Fatalf("attach must adopt the body pose, got %v", c.Position())
	}

	//1.- Moves and rotations propagate.
	c.MoveForward(2)
	c.RotateRight(math.Pi / 2)
	if body.Position() != (mgl32.Vec3{4, 1, 6}) || !geom.Near(body.Look(), mgl32.Vec3{1, 0, 0}, eps) {
		t.Fatalf("body did not follow: pos=%v look=%v", body.Position(), body.Look())
	}

	//2.- A doubling transform scales the view and the body together.
	c.Transform(mgl32.Scale3D(2, 2, 2))
	if math.Abs(float64(c.ViewScale())-2) > eps || math.Abs(float64(body.BoundingSphereRadius())-1) > eps {
		t.Fatalf("unexpected scale view=%v radius=%v", c.ViewScale(), body.BoundingSphereRadius())
	}
	if body.Position() != (mgl32.Vec3{8, 2, 12}) || !near1(c.Look().Len()) {
		t.Fatalf("unexpected transformed pose %v", body.Position())
	}

	//3.- Detached bodies stay put.
	if c.Detach() != body {
		t.Fatalf("detach must return the body")
	}
	c.MoveUp(1)
	if body.Position() != (mgl32.Vec3{8, 2, 12}) {
		t.Fatalf("detached body moved")
	}
}

func near1(v float32) bool { return math.Abs(float64(v)-1) <= eps }

func TestBodyWorldMatrix(t *testing.T) {
	b := NewBody()
	b.SetBoundingSphereRadius(2)
	b.SetPosition(mgl32.Vec3{1, 1, 1})
	if got := geom.TransformCoord(mgl32.Vec3{0, 0, 1}, b.WorldMatrix()); !geom.Near(got, mgl32.Vec3{1, 1, 3}, eps) {
		t.Fatalf("unexpected world point %v", got)
	}
}

func TestSurfaceVisibilityFactor(t *testing.T) {
	c := New()
	c.SetPosition(mgl32.Vec3{0, 0, 5})
	if v := c.SurfaceVisibilityFactor(mgl32.Vec3{}, mgl32.Vec3{0, 0, 1}); math.Abs(float64(v)-1) > eps {
		t.Fatalf("expected facing surface, got %v", v)
	}
	if v := c.SurfaceVisibilityFactor(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}); v >= 0 {
		t.Fatalf("expected back-facing surface, got %v", v)
	}
}

func TestSelfVirtualCollision(t *testing.T) {
	mirror := mgl32.Scale3D(-1, -1, -1)
	s := mgl32.Vec3{-2, 0, 0}
	dir := mgl32.Vec3{1, 0, 0}

	//1.- Free cameras have no image to hit.
	c := New()
	if hit := c.SelfVirtualCollision(mirror, 0.5, s, dir, 5); hit.Dist != 5 || hit.RedirectRatio != 1 {
		t.Fatalf("expected miss, got %+v", hit)
	}

	//2.- Sphere and mirrored image close at twice the speed.
	body := NewBody()
	body.SetBoundingSphereRadius(0.5)
	c.AttachTo(body)
	hit := c.SelfVirtualCollision(mirror, 0.5, s, dir, 5)
	if math.Abs(float64(hit.Dist)-1.5) > eps || hit.RedirectRatio != 0 {
		t.Fatalf("unexpected self contact %+v", hit)
	}
	if !geom.Near(hit.X, mgl32.Vec3{-2 + 1.5 - geom.TBump, 0, 0}, eps) {
		t.Fatalf("unexpected stop %v", hit.X)
	}

	//3.- Contacts beyond the move are ignored.
	if hit := c.SelfVirtualCollision(mirror, 0.5, s, dir, 1); hit.Dist != 1 {
		t.Fatalf("expected miss for short move, got %+v", hit)
	}
}
