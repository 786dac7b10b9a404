package physics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"portalsim/engine/internal/camera"
	"portalsim/engine/internal/geom"
	"portalsim/engine/internal/portal"
	"portalsim/engine/internal/room"
)

func squareRoom() *room.Room {
	r := room.New()
	r.SetFloorAndCeiling(0, 3)
	r.SetTopography([][]mgl32.Vec2{{{0, 0}, {10, 0}, {10, 10}, {0, 10}}})
	return r
}

func wallPortal(pos, normal mgl32.Vec3, radius float32) portal.Portal {
	p := portal.New()
	p.SetPosition(pos)
	p.SetNormalAndUp(normal, mgl32.Vec3{0, 1, 0})
	p.SetMaxPhysicalRadius(radius)
	p.SetIntendedPhysicalRadius(radius)
	return p
}

// distantPortals sit on walls the tests never approach.
func distantPortals() (portal.Portal, portal.Portal) {
	orange := wallPortal(mgl32.Vec3{0, 1.5, 5}, mgl32.Vec3{1, 0, 0}, 0.5)
	blue := wallPortal(mgl32.Vec3{5, 1.5, 10}, mgl32.Vec3{0, 0, -1}, 0.5)
	return orange, blue
}

func TestMoveIterativeFreePath(t *testing.T) {
	rm := squareRoom()
	orange, blue := distantPortals()
	cam := camera.New()
	cam.SetPosition(mgl32.Vec3{5, 1, 2})

	var segments []Segment
	m := Mover{Trace: func(s Segment) { segments = append(segments, s) }}
	m.MoveIterative(cam, mgl32.Vec3{0, 0, 1}, 2, rm, orange, blue)

	//1.- Nothing is in the way so the full distance is covered in one segment.
	if !geom.Near(cam.Position(), mgl32.Vec3{5, 1, 4}, 1e-5) {
		t.Fatalf("unexpected position %v", cam.Position())
	}
	if len(segments) != 1 || segments[0].Clipped || segments[0].Teleported {
		t.Fatalf("unexpected trace %+v", segments)
	}
}

func TestMoveAlongPathScalesByViewScale(t *testing.T) {
	rm := squareRoom()
	orange, blue := distantPortals()
	cam := camera.New()
	cam.SetPosition(mgl32.Vec3{5, 1, 2})
	cam.MultiplyViewScale(2)

	hit, redirect := Mover{}.MoveAlongPath(cam, mgl32.Vec3{0, 0, 1}, 2, rm, orange, blue)
	if redirect {
		t.Fatalf("free move must not request a redirect: %+v", hit)
	}
	if !geom.Near(cam.Position(), mgl32.Vec3{5, 1, 6}, 1e-5) {
		t.Fatalf("expected doubled distance, got %v", cam.Position())
	}
}

func TestMoveIterativeSlidesAlongWall(t *testing.T) {
	rm := squareRoom()
	orange, blue := distantPortals()
	cam := camera.New()
	cam.SetPosition(mgl32.Vec3{5, 1, 2})
	dir := geom.Normalize3(mgl32.Vec3{1, 0, 1})

	//1.- The first leg stops at the x=10 wall.
	hit, redirect := Mover{}.MoveAlongPath(cam, dir, 10, rm, orange, blue)
	if !redirect {
		t.Fatalf("expected a redirect, got %+v", hit)
	}
	if !geom.Near(hit.RedirectDir, mgl32.Vec3{0, 0, 1}, 1e-4) {
		t.Fatalf("unexpected slide direction %v", hit.RedirectDir)
	}
	if d := hit.RedirectRatio - 0.70710677; d > 1e-4 || d < -1e-4 {
		t.Fatalf("unexpected ratio %v", hit.RedirectRatio)
	}

	//2.- The full iterative move continues along the wall.
	cam.SetPosition(mgl32.Vec3{5, 1, 2})
	MoveIterative(cam, dir, 10, rm, orange, blue)
	remaining := (10 - 4.98*1.4142135) * 0.70710677
	want := mgl32.Vec3{9.98, 1, 6.98 + float32(remaining)}
	if !geom.Near(cam.Position(), want, 1e-2) {
		t.Fatalf("unexpected slide end %v, want %v", cam.Position(), want)
	}
}

func TestMoveIterativeTeleportsThroughPortal(t *testing.T) {
	rm := squareRoom()
	orange := wallPortal(mgl32.Vec3{0, 1.5, 5}, mgl32.Vec3{1, 0, 0}, 1)
	blue := wallPortal(mgl32.Vec3{10, 1.5, 5}, mgl32.Vec3{-1, 0, 0}, 1)

	cam := camera.New()
	cam.SetPosition(mgl32.Vec3{0.5, 1.5, 5})
	cam.LookAtAndLevel(mgl32.Vec3{-1, 1.5, 5})

	var teleported bool
	m := Mover{Trace: func(s Segment) {
		if s.Teleported {
			teleported = true
		}
	}}
	m.MoveIterative(cam, mgl32.Vec3{-1, 0, 0}, 1, rm, orange, blue)

	//1.- The wall behind orange is open and the camera reappears in front of blue.
	if !teleported {
		t.Fatalf("expected a teleporting segment")
	}
	if !geom.Near(cam.Position(), mgl32.Vec3{9.5, 1.5, 5}, 1e-3) {
		t.Fatalf("unexpected position after teleport %v", cam.Position())
	}
	if !geom.Near(cam.Look(), mgl32.Vec3{-1, 0, 0}, 1e-4) {
		t.Fatalf("unexpected look after teleport %v", cam.Look())
	}
	if d := cam.ViewScale() - 1; d > 1e-4 || d < -1e-4 {
		t.Fatalf("equal portals must keep the view scale, got %v", cam.ViewScale())
	}
}

func TestMoveIterativeZeroDirectionStaysPut(t *testing.T) {
	rm := squareRoom()
	orange := wallPortal(mgl32.Vec3{0, 1.5, 5}, mgl32.Vec3{1, 0, 0}, 1)
	blue := wallPortal(mgl32.Vec3{10, 1.5, 5}, mgl32.Vec3{-1, 0, 0}, 1)

	//1.- Open space, then right in front of each portal.
	for _, start := range []mgl32.Vec3{{5, 1.5, 5}, {0.1, 1.5, 5}, {9.9, 1.5, 5}} {
		cam := camera.New()
		cam.SetPosition(start)
		var segments []Segment
		m := Mover{Trace: func(s Segment) { segments = append(segments, s) }}
		m.MoveIterative(cam, mgl32.Vec3{}, 1, rm, orange, blue)
		if cam.Position() != start {
			t.Fatalf("zero direction moved the camera from %v to %v", start, cam.Position())
		}
		if len(segments) != 1 || segments[0].Teleported {
			t.Fatalf("expected one stationary segment from %v, got %+v", start, segments)
		}
	}
}

func TestUpdateClosest(t *testing.T) {
	closest := geom.Hit{X: mgl32.Vec3{1, 0, 0}, Dist: 2, RedirectRatio: 0.8, RedirectDir: mgl32.Vec3{1, 0, 0}}

	//1.- Equal distance with a smaller ratio keeps the stopping point.
	updateClosest(&closest, geom.Hit{X: mgl32.Vec3{9, 9, 9}, Dist: 2, RedirectRatio: 0.3, RedirectDir: mgl32.Vec3{0, 1, 0}})
	if closest.X != (mgl32.Vec3{1, 0, 0}) || closest.RedirectRatio != 0.3 || closest.RedirectDir != (mgl32.Vec3{0, 1, 0}) {
		t.Fatalf("unexpected tie result %+v", closest)
	}

	//2.- Farther contacts are ignored and nearer ones replace everything.
	updateClosest(&closest, geom.Hit{Dist: 3})
	if closest.Dist != 2 {
		t.Fatalf("farther contact replaced closest: %+v", closest)
	}
	nearer := geom.Hit{X: mgl32.Vec3{0, 0, 1}, Dist: 1, RedirectRatio: 1, RedirectDir: mgl32.Vec3{0, 0, 1}}
	updateClosest(&closest, nearer)
	if closest != nearer {
		t.Fatalf("nearer contact not adopted: %+v", closest)
	}
}
