package level

import (
	"fmt"
	"io"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

type yamlPortal struct {
	Radius   float32   `yaml:"radius"`
	Position []float32 `yaml:"position"`
	Normal   []float32 `yaml:"normal"`
	Up       []float32 `yaml:"up"`
}

type yamlLevel struct {
	Camera struct {
		Position []float32 `yaml:"position"`
	} `yaml:"camera"`
	Player struct {
		Radius   float32   `yaml:"radius"`
		Position []float32 `yaml:"position"`
	} `yaml:"player"`
	Orange   yamlPortal    `yaml:"orange"`
	Blue     yamlPortal    `yaml:"blue"`
	Floor    float32       `yaml:"floor"`
	Ceiling  float32       `yaml:"ceiling"`
	Polygons [][][]float32 `yaml:"polygons"`
}

// ParseYAML reads a level document. Vectors are flow sequences, polygons are lists of
// [x, z] pairs:
//
//	camera: {position: [2, 1.5, 2]}
//	player: {radius: 0.5, position: [4, 1, 3]}
//	orange: {radius: 1, position: [0, 1.5, 5], normal: [1, 0, 0], up: [0, 1, 0]}
//	floor: 0
//	ceiling: 4
//	polygons:
//	  - [[0, 0], [10, 0], [10, 10], [0, 10]]
func ParseYAML(src io.Reader) (Definition, error) {
	var doc yamlLevel
	dec := yaml.NewDecoder(src)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Definition{}, fmt.Errorf("decode yaml: %w", err)
	}

	def := Definition{
		PlayerRadius: doc.Player.Radius,
		Floor:        doc.Floor,
		Ceiling:      doc.Ceiling,
	}
	var err error
	if def.CameraPosition, err = toVec3("camera.position", doc.Camera.Position); err != nil {
		return Definition{}, err
	}
	if def.PlayerPosition, err = toVec3("player.position", doc.Player.Position); err != nil {
		return Definition{}, err
	}
	if def.Orange, err = doc.Orange.spec("orange"); err != nil {
		return Definition{}, err
	}
	if def.Blue, err = doc.Blue.spec("blue"); err != nil {
		return Definition{}, err
	}
	for i, raw := range doc.Polygons {
		poly := make([]mgl32.Vec2, len(raw))
		for j, pair := range raw {
			if len(pair) != 2 {
				return Definition{}, fmt.Errorf("polygons[%d][%d] needs 2 values, got %d", i, j, len(pair))
			}
			poly[j] = mgl32.Vec2{pair[0], pair[1]}
		}
		def.Polygons = append(def.Polygons, poly)
	}
	return def, nil
}

func (p yamlPortal) spec(name string) (PortalSpec, error) {
	out := PortalSpec{Radius: p.Radius}
	var err error
	if out.Position, err = toVec3(name+".position", p.Position); err != nil {
		return out, err
	}
	if out.Normal, err = toVec3(name+".normal", p.Normal); err != nil {
		return out, err
	}
	if out.Up, err = toVec3(name+".up", p.Up); err != nil {
		return out, err
	}
	return out, nil
}

func toVec3(field string, v []float32) (mgl32.Vec3, error) {
	if len(v) != 3 {
		return mgl32.Vec3{}, fmt.Errorf("%s needs 3 values, got %d", field, len(v))
	}
	return mgl32.Vec3{v[0], v[1], v[2]}, nil
}
