package input

import (
	"encoding/json"
	"fmt"
	"time"
)

// CameraSelector chooses which camera the controls drive.
type CameraSelector int8

const (
	CameraKeep CameraSelector = iota
	CameraLeft
	CameraRight
)

// PortalSelector chooses which portal the editing controls act on.
type PortalSelector int8

const (
	PortalKeep PortalSelector = iota
	PortalOrange
	PortalBlue
)

// Controls is one tick worth of player input. Analog axes are in [-1, 1]; look deltas
// are radians for this tick.
type Controls struct {
	Forward      float32        `json:"forward"`
	Right        float32        `json:"right"`
	Up           float32        `json:"up"`
	Roll         float32        `json:"roll"`
	PortalRotate float32        `json:"portal_rotate"`
	PortalResize float32        `json:"portal_resize"`
	LookYaw      float32        `json:"look_yaw"`
	LookPitch    float32        `json:"look_pitch"`
	Sprint       bool           `json:"sprint"`
	Level        bool           `json:"level"`
	Relocate     bool           `json:"relocate"`
	Camera       CameraSelector `json:"camera"`
	Portal       PortalSelector `json:"portal"`
}

// Envelope is the wire form of a control frame.
type Envelope struct {
	Seq      uint64   `json:"seq"`
	SentAtMs int64    `json:"sent_at_ms"`
	Controls Controls `json:"controls"`
}

// DecodeEnvelope parses a JSON control frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode control envelope: %w", err)
	}
	return env, nil
}

// Frame converts the envelope into gate metadata for clientID.
func (e Envelope) Frame(clientID string) Frame {
	frame := Frame{ClientID: clientID, SequenceID: e.Seq}
	if e.SentAtMs > 0 {
		frame.SentAt = time.UnixMilli(e.SentAtMs)
	}
	return frame
}
