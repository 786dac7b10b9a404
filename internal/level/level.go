// Package level reads room definitions: the starting poses of the free camera and the
// player, both portals, the floor and ceiling heights and the floor-plan polygons.
package level

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// PortalSpec is the initial placement of one portal.
type PortalSpec struct {
	Radius   float32
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Up       mgl32.Vec3
}

// Definition is a fully parsed level.
type Definition struct {
	CameraPosition mgl32.Vec3
	PlayerRadius   float32
	PlayerPosition mgl32.Vec3
	Orange         PortalSpec
	Blue           PortalSpec
	Floor          float32
	Ceiling        float32
	Polygons       [][]mgl32.Vec2
}

// ErrUnsupportedFormat is returned by Load for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported level format")

// Load reads a level file. YAML files are recognised by their extension; everything
// else is read in the line format.
func Load(path string) (Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return Definition{}, fmt.Errorf("open level: %w", err)
	}
	defer f.Close()

	var def Definition
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		def, err = ParseYAML(f)
	case ".txt", ".level", "":
		def, err = ParseText(f)
	default:
		return Definition{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Definition{}, fmt.Errorf("parse level %s: %w", filepath.Base(path), err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, fmt.Errorf("invalid level %s: %w", filepath.Base(path), err)
	}
	return def, nil
}

// Validate reports every structural problem in one error.
func (d Definition) Validate() error {
	var problems []string

	if d.PlayerRadius <= 0 {
		problems = append(problems, fmt.Sprintf("player radius must be positive, got %v", d.PlayerRadius))
	}
	if d.Ceiling <= d.Floor {
		problems = append(problems, fmt.Sprintf("ceiling %v must be above floor %v", d.Ceiling, d.Floor))
	}
	problems = append(problems, d.Orange.problems("orange")...)
	problems = append(problems, d.Blue.problems("blue")...)
	if len(d.Polygons) == 0 {
		problems = append(problems, "level needs at least one polygon")
	}
	for i, poly := range d.Polygons {
		if len(poly) < 3 {
			problems = append(problems, fmt.Sprintf("polygon %d has %d vertices, need at least 3", i+1, len(poly)))
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func (p PortalSpec) problems(name string) []string {
	var out []string
	if p.Radius <= 0 {
		out = append(out, fmt.Sprintf("%s portal radius must be positive, got %v", name, p.Radius))
	}
	if p.Normal.Len() == 0 {
		out = append(out, fmt.Sprintf("%s portal normal must be non-zero", name))
	}
	if p.Up.Len() == 0 {
		out = append(out, fmt.Sprintf("%s portal up must be non-zero", name))
	}
	return out
}

// Default is the built-in demo level: an L-shaped hall with a pillar and the portals
// on facing walls.
func Default() Definition {
	return Definition{
		CameraPosition: mgl32.Vec3{2, 1.5, 2},
		PlayerRadius:   0.5,
		PlayerPosition: mgl32.Vec3{4, 1, 3},
		Orange: PortalSpec{
			Radius:   1,
			Position: mgl32.Vec3{0, 1.5, 5},
			Normal:   mgl32.Vec3{1, 0, 0},
			Up:       mgl32.Vec3{0, 1, 0},
		},
		Blue: PortalSpec{
			Radius:   1,
			Position: mgl32.Vec3{15, 1.5, 14},
			Normal:   mgl32.Vec3{0, 0, -1},
			Up:       mgl32.Vec3{0, 1, 0},
		},
		Floor:   0,
		Ceiling: 4,
		Polygons: [][]mgl32.Vec2{
			{{0, 0}, {10, 0}, {10, 8}, {20, 8}, {20, 14}, {0, 14}},
			{{6, 5}, {6, 6}, {7, 6}, {7, 5}},
		},
	}
}
