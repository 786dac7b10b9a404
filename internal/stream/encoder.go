package stream

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"portalsim/engine/internal/grpc"
	"portalsim/engine/internal/simulation"
)

// EncodedSnapshot is one snapshot ready for the wire.
type EncodedSnapshot struct {
	Tick    uint64
	Payload []byte
	// Binary is set when the payload is compressed and must travel as a binary frame.
	Binary bool
	// RawBytes is the JSON size before compression.
	RawBytes int
}

// Encoder turns snapshots into protojson documents and compresses them.
type Encoder struct {
	compressor grpc.Compressor
	marshal    protojson.MarshalOptions
}

// NewEncoder resolves codec and prepares the JSON options.
func NewEncoder(codec string) (*Encoder, error) {
	compressor, err := grpc.CompressorFor(codec)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		compressor: compressor,
		marshal:    protojson.MarshalOptions{UseProtoNames: true},
	}, nil
}

// Codec reports the active compressor name.
func (e *Encoder) Codec() string { return e.compressor.Name() }

// Encode renders snap.
func (e *Encoder) Encode(snap simulation.Snapshot) (EncodedSnapshot, error) {
	//1.- Build the document tree.
	doc, err := structpb.NewStruct(snapshotDocument(snap))
	if err != nil {
		return EncodedSnapshot{}, fmt.Errorf("snapshot document: %w", err)
	}

	//2.- Marshal to JSON.
	raw, err := e.marshal.Marshal(doc)
	if err != nil {
		return EncodedSnapshot{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	//3.- Compress unless the identity codec is active.
	if e.compressor.Name() == grpc.CodecNone {
		return EncodedSnapshot{Tick: snap.Tick, Payload: raw, RawBytes: len(raw)}, nil
	}
	payload, err := e.compressor.Compress(raw)
	if err != nil {
		return EncodedSnapshot{}, fmt.Errorf("compress snapshot: %w", err)
	}
	return EncodedSnapshot{Tick: snap.Tick, Payload: payload, Binary: true, RawBytes: len(raw)}, nil
}

// Decode reverses Encode into a generic document. Renderers written in Go and tests
// use it.
func (e *Encoder) Decode(frame []byte, binary bool) (*structpb.Struct, error) {
	raw := frame
	if binary {
		var err error
		if raw, err = e.compressor.Decompress(frame); err != nil {
			return nil, err
		}
	}
	doc := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return doc, nil
}

func snapshotDocument(s simulation.Snapshot) map[string]any {
	return map[string]any{
		"tick":                float64(s.Tick),
		"active_camera":       s.ActiveCamera.String(),
		"active_portal":       s.ActivePortal.String(),
		"editable":            s.Editable,
		"left":                cameraDocument(s.Left),
		"right":               cameraDocument(s.Right),
		"player":              bodyDocument(s.Player),
		"orange":              portalDocument(s.Orange),
		"blue":                portalDocument(s.Blue),
		"look_through_orange": mat4(s.LookThroughOrange),
		"look_through_blue":   mat4(s.LookThroughBlue),
		"budget": map[string]any{
			"orange": float64(s.Budget.Orange),
			"blue":   float64(s.Budget.Blue),
		},
	}
}

func cameraDocument(c simulation.CameraPose) map[string]any {
	return map[string]any{
		"position":   vec3(c.Position),
		"right":      vec3(c.Right),
		"up":         vec3(c.Up),
		"look":       vec3(c.Look),
		"body_up":    vec3(c.BodyUp),
		"view_scale": float64(c.ViewScale),
		"radius":     float64(c.Radius),
		"view":       mat4(c.View),
		"proj":       mat4(c.Proj),
	}
}

func bodyDocument(b simulation.BodyPose) map[string]any {
	return map[string]any{
		"position": vec3(b.Position),
		"right":    vec3(b.Right),
		"up":       vec3(b.Up),
		"look":     vec3(b.Look),
		"radius":   float64(b.Radius),
		"world":    mat4(b.World),
	}
}

func portalDocument(p simulation.PortalPose) map[string]any {
	return map[string]any{
		"position":            vec3(p.Position),
		"left":                vec3(p.Left),
		"up":                  vec3(p.Up),
		"normal":              vec3(p.Normal),
		"physical_radius":     float64(p.PhysicalRadius),
		"max_physical_radius": finite(p.MaxPhysicalRadius),
		"texture_radius":      float64(p.TextureRadius),
		"box_world":           mat4(p.BoxWorld),
		"scaled_portal":       mat4(p.ScaledPortal),
		"player_intersects":   p.PlayerIntersects,
	}
}

func vec3(v mgl32.Vec3) []any {
	return []any{float64(v[0]), float64(v[1]), float64(v[2])}
}

// mat4 flattens m column by column.
func mat4(m mgl32.Mat4) []any {
	out := make([]any, len(m))
	for i, f := range m {
		out[i] = float64(f)
	}
	return out
}

// finite maps an unbounded radius to null; JSON has no infinity.
func finite(f float32) any {
	if f > 1e30 {
		return nil
	}
	return float64(f)
}
