package room

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"portalsim/engine/internal/geom"
	"portalsim/engine/internal/portal"
)

type rayHit struct {
	dist   float32
	x      mgl32.Vec3
	xz     mgl32.Vec2
	normal mgl32.Vec3
	wall   bool
	wallU  mgl32.Vec2
	wallV  mgl32.Vec2
}

// PortalRelocate moves this portal to where the viewer's ray first meets the room. The
// portal keeps its old pose when the ray meets nothing, when the spot lies inside the
// other portal, or when the room leaves less than the minimum radius there.
// It reports whether the portal moved.
func (r *Room) PortalRelocate(viewerPos, viewerDir mgl32.Vec3, this *portal.Portal, other portal.Portal) bool {
	hit, ok := r.castRay(viewerPos, viewerDir)
	if !ok {
		return false
	}

	//1.- Bound the radius by the surface the ray landed on.
	var maxR float32
	if hit.wall {
		maxR = math32.Min(
			math32.Min(hit.xz.Sub(hit.wallU).Len(), hit.xz.Sub(hit.wallV).Len()),
			math32.Min(r.ceilingY-hit.x[1], hit.x[1]-r.floorY),
		)
	} else {
		maxR = r.distanceToWalls(hit.xz)
	}

	//2.- Keep clear of the other portal when both would share a plane.
	if hit.normal == other.Normal() {
		toOther := other.Position().Sub(hit.x)
		if math32.Abs(toOther.Dot(hit.normal)) < geom.PortalsSamePlaneThreshold {
			dist := toOther.Len()
			if dist < other.TextureRadius() {
				return false
			}
			maxR = math32.Min(maxR, dist-other.TextureRadius())
		}
	}

	if maxR < portal.MinPhysicalRadius*this.TextureRadiusRatio() {
		return false
	}

	//3.- Walls keep the portal upright; floors and ceilings align it with +X.
	up := mgl32.Vec3{1, 0, 0}
	if hit.wall {
		up = mgl32.Vec3{0, 1, 0}
	}
	this.SetPosition(hit.x)
	this.SetNormalAndUp(hit.normal, up)
	this.SetMaxTextureRadius(maxR)
	return true
}

// castRay finds the first floor, ceiling or wall point hit by the ray.
func (r *Room) castRay(s, dir mgl32.Vec3) (rayHit, bool) {
	hit := rayHit{dist: math32.Inf(1)}
	found := false

	//1.- Floor or ceiling plane.
	if dir[1] != 0 {
		headingDown := dir[1] < 0
		planeY, normalY := r.ceilingY, float32(-1)
		if headingDown {
			planeY, normalY = r.floorY, 1
		}
		hit.dist = (planeY - s[1]) / dir[1]
		hit.x = geom.PointAt(s, dir, hit.dist)
		hit.x[1] = planeY
		hit.normal = mgl32.Vec3{0, normalY, 0}
		hit.xz = geom.XZ(hit.x)
		found = true
	}

	//2.- Walls in front of that plane take over.
	if dir[0] != 0 || dir[2] != 0 {
		startXZ := geom.XZ(s)
		dirXZ := geom.XZ(dir)
		r.forEachEdge(func(u, v mgl32.Vec2) {
			crossU := geom.Cross2(dirXZ, u.Sub(startXZ))
			crossV := geom.Cross2(dirXZ, v.Sub(startXZ))
			if crossU > 0 || crossV < 0 || (crossU == 0 && crossV == 0) {
				return
			}
			uv := v.Sub(u)
			denom := geom.Cross2(dirXZ, uv)
			t := geom.Cross2(u.Sub(startXZ), uv) / denom
			if t < 0 || t >= hit.dist {
				return
			}
			w := geom.Cross2(u.Sub(startXZ), dirXZ) / denom
			hit.dist = t
			hit.xz = u.Add(uv.Mul(w))
			hit.x = geom.FromXZ(hit.xz, s[1]+t*dir[1])
			hit.normal = geom.FromXZ(geom.Left90(geom.Normalize2(uv)), 0)
			hit.wall = true
			hit.wallU, hit.wallV = u, v
			found = true
		})
	}
	return hit, found
}

// distanceToWalls returns the distance from p to the nearest floor-plan segment.
func (r *Room) distanceToWalls(p mgl32.Vec2) float32 {
	best := math32.Inf(1)
	r.forEachEdge(func(u, v mgl32.Vec2) {
		uv := v.Sub(u)
		var d float32
		switch {
		case p.Sub(u).Dot(uv) < 0:
			d = p.Sub(u).Len()
		case p.Sub(v).Dot(uv) > 0:
			d = p.Sub(v).Len()
		default:
			d = math32.Abs(geom.Cross2(geom.Normalize2(uv), p.Sub(u)))
		}
		best = math32.Min(best, d)
	})
	return best
}
