package level

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// lineReader yields data lines, skipping blanks and lines starting with '#'.
type lineReader struct {
	scanner *bufio.Scanner
	line    int
}

func (r *lineReader) next() ([]string, bool) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		return strings.Fields(text), true
	}
	return nil, false
}

func (r *lineReader) floats(what string, n int) ([]float32, error) {
	fields, ok := r.next()
	if !ok {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("unexpected end of file reading %s", what)
	}
	if len(fields) < n {
		return nil, fmt.Errorf("line %d: %s needs %d values, got %d", r.line, what, n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", r.line, what, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func (r *lineReader) vec3(what string) (mgl32.Vec3, error) {
	v, err := r.floats(what, 3)
	if err != nil {
		return mgl32.Vec3{}, err
	}
	return mgl32.Vec3{v[0], v[1], v[2]}, nil
}

func (r *lineReader) scalar(what string) (float32, error) {
	v, err := r.floats(what, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func (r *lineReader) portal(name string) (PortalSpec, error) {
	var p PortalSpec
	var err error
	if p.Radius, err = r.scalar(name + " radius"); err != nil {
		return p, err
	}
	if p.Position, err = r.vec3(name + " position"); err != nil {
		return p, err
	}
	if p.Normal, err = r.vec3(name + " normal"); err != nil {
		return p, err
	}
	if p.Up, err = r.vec3(name + " up"); err != nil {
		return p, err
	}
	return p, nil
}

// ParseText reads the line format: camera position, player radius, player position,
// the orange then blue portal (radius, position, normal, up), floor and ceiling, and
// then polygon blocks of a vertex count followed by that many "x z" lines.
func ParseText(src io.Reader) (Definition, error) {
	r := &lineReader{scanner: bufio.NewScanner(src)}
	var def Definition
	var err error

	//1.- Fixed header.
	if def.CameraPosition, err = r.vec3("camera position"); err != nil {
		return def, err
	}
	if def.PlayerRadius, err = r.scalar("player radius"); err != nil {
		return def, err
	}
	if def.PlayerPosition, err = r.vec3("player position"); err != nil {
		return def, err
	}
	if def.Orange, err = r.portal("orange"); err != nil {
		return def, err
	}
	if def.Blue, err = r.portal("blue"); err != nil {
		return def, err
	}
	heights, err := r.floats("floor and ceiling", 2)
	if err != nil {
		return def, err
	}
	def.Floor, def.Ceiling = heights[0], heights[1]

	//2.- Polygon blocks until EOF.
	for {
		fields, ok := r.next()
		if !ok {
			break
		}
		count, err := strconv.Atoi(fields[0])
		if err != nil || count < 0 {
			return def, fmt.Errorf("line %d: invalid vertex count %q", r.line, fields[0])
		}
		poly := make([]mgl32.Vec2, count)
		for i := range poly {
			v, err := r.floats(fmt.Sprintf("polygon %d vertex %d", len(def.Polygons)+1, i+1), 2)
			if err != nil {
				return def, err
			}
			poly[i] = mgl32.Vec2{v[0], v[1]}
		}
		def.Polygons = append(def.Polygons, poly)
	}
	if err := r.scanner.Err(); err != nil {
		return def, err
	}
	return def, nil
}
