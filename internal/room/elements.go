package room

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"portalsim/engine/internal/geom"
)

// ElementKind tags a floor-plan obstacle.
type ElementKind uint8

const (
	// Edge is a wall segment from U to V.
	Edge ElementKind = iota
	// Vertex is a corner at U.
	Vertex
)

func (k ElementKind) String() string {
	switch k {
	case Edge:
		return "edge"
	case Vertex:
		return "vertex"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Element is a wall edge or corner the swept disc may leave the room through.
type Element struct {
	Kind ElementKind
	U    mgl32.Vec2
	V    mgl32.Vec2
}

// EdgeElement builds a wall segment from u to v.
func EdgeElement(u, v mgl32.Vec2) Element { return Element{Kind: Edge, U: u, V: v} }

// VertexElement builds a polygon corner.
func VertexElement(p mgl32.Vec2) Element { return Element{Kind: Vertex, U: p} }

func (e Element) String() string {
	if e.Kind == Vertex {
		return fmt.Sprintf("vertex (%.3f, %.3f)", e.U[0], e.U[1])
	}
	return fmt.Sprintf("edge (%.3f, %.3f)--(%.3f, %.3f)", e.U[0], e.U[1], e.V[0], e.V[1])
}

// PlanarContact is the floor-plan analogue of Contact.
type PlanarContact struct {
	X             mgl32.Vec2
	Dist          float32
	RedirectRatio float32
	RedirectDir   mgl32.Vec2
	T             mgl32.Vec2
	TNormal       mgl32.Vec2
}

// elementExit is where a disc path leaves through one element. Cos is signed: positive
// when the slide runs along LeftDir.
type elementExit struct {
	x       mgl32.Vec2
	dist    float32
	cos     float32
	leftDir mgl32.Vec2
	t       mgl32.Vec2
	tNormal mgl32.Vec2
}

// exit dispatches the disc path test on the element kind.
func (e Element) exit(radius float32, s, dir mgl32.Vec2) (elementExit, bool) {
	switch e.Kind {
	case Edge:
		return edgeExit(e.U, e.V, radius, s, dir)
	case Vertex:
		return vertexExit(e.U, radius, s, dir)
	default:
		return elementExit{}, false
	}
}

func edgeExit(u, v mgl32.Vec2, radius float32, s, dir mgl32.Vec2) (elementExit, bool) {
	//1.- Shift the edge inward by the radius to get the boundary of the disc centre.
	uv := v.Sub(u)
	n := geom.Normalize2(geom.Left90(uv))
	a := u.Add(n.Mul(radius))
	b := v.Add(n.Mul(radius))

	//2.- The ray must pass between the shifted endpoints.
	crossA := geom.Cross2(dir, a.Sub(s))
	crossB := geom.Cross2(dir, b.Sub(s))
	if crossA > 0 || crossB < 0 || (crossA == 0 && crossB == 0) {
		return elementExit{}, false
	}

	ab := b.Sub(a)
	denom := geom.Cross2(dir, ab)
	t := geom.Cross2(a.Sub(s), ab) / denom
	if t < -geom.TThreshold {
		return elementExit{}, false
	}

	//3.- Contact data uses the unbumped parameter.
	w := geom.Cross2(a.Sub(s), dir) / denom
	out := elementExit{
		dist:    t,
		leftDir: geom.Right90(n),
		t:       u.Add(uv.Mul(w)),
		tNormal: n,
	}
	out.cos = dir.Dot(out.leftDir)
	out.x = s.Add(dir.Mul(t - geom.TBump))
	return out, true
}

func vertexExit(p mgl32.Vec2, radius float32, s, dir mgl32.Vec2) (elementExit, bool) {
	//1.- Ray against the circle of the radius around the corner.
	ps := s.Sub(p)
	bHalf := ps.Dot(dir)
	c := ps.LenSqr() - radius*radius
	disc := bHalf*bHalf - c
	if disc <= 0 {
		return elementExit{}, false
	}
	t := -bHalf - math32.Sqrt(disc)
	if t < -geom.TThreshold {
		return elementExit{}, false
	}

	//2.- The tangent at the touch point gives the slide.
	touch := s.Add(dir.Mul(t))
	out := elementExit{dist: t, t: p, tNormal: geom.Normalize2(touch.Sub(p))}
	out.leftDir = geom.Right90(out.tNormal)
	out.cos = dir.Dot(out.leftDir)
	out.x = s.Add(dir.Mul(t - geom.TBump))
	return out, true
}

// FindFirstExit returns the nearest exit of a disc of the given radius moving from s
// along the unit direction dir. Exits at the same distance keep the stopping point of
// the first one found but adopt the redirect with the smaller |cos|.
func FindFirstExit(radius float32, s, dir mgl32.Vec2, moveDist float32, elements []Element) PlanarContact {
	closest := elementExit{
		x:       s.Add(dir.Mul(moveDist)),
		dist:    moveDist,
		cos:     1,
		leftDir: dir,
	}
	for _, e := range elements {
		ex, ok := e.exit(radius, s, dir)
		if !ok {
			continue
		}
		switch {
		case ex.dist == closest.dist && math32.Abs(ex.cos) < math32.Abs(closest.cos):
			closest.cos = ex.cos
			closest.leftDir = ex.leftDir
			closest.t = ex.t
			closest.tNormal = ex.tNormal
		case ex.dist < closest.dist:
			closest = ex
		}
	}
	return PlanarContact{
		X:             closest.x,
		Dist:          closest.dist,
		RedirectRatio: math32.Abs(closest.cos),
		RedirectDir:   closest.leftDir.Mul(geom.Sign(closest.cos)),
		T:             closest.t,
		TNormal:       closest.tNormal,
	}
}
