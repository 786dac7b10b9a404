// Package replay records simulation sessions to disk and reads them back: a zstd
// stream of length-prefixed snapshot frames, a snappy JSONL log of submitted controls,
// a manifest naming both and a header describing how to rebuild the world.
package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HeaderSchemaVersion tracks the schema version for session header documents.
const HeaderSchemaVersion = 1

// Parameters holds named numeric settings such as movement tuning.
type Parameters map[string]float64

// Clone returns an independent copy.
func (p Parameters) Clone() Parameters {
	if len(p) == 0 {
		return nil
	}
	clone := make(Parameters, len(p))
	for key, value := range p {
		clone[key] = value
	}
	return clone
}

// Header is everything needed to rebuild the recorded world. An empty Level means the
// built-in room.
type Header struct {
	SchemaVersion int        `json:"schema_version"`
	Level         string     `json:"level"`
	TickRateHz    float64    `json:"tick_rate_hz"`
	StepNanos     int64      `json:"step_nanos"`
	Tuning        Parameters `json:"tuning,omitempty"`
	FilePointer   string     `json:"file_pointer"`
}

// Step is the fixed tick length used while recording.
func (h Header) Step() time.Duration { return time.Duration(h.StepNanos) }

// Validate ensures the header can locate the session and replay it.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if h.StepNanos <= 0 {
		return fmt.Errorf("step_nanos must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader validates header and writes it as indented JSON.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and validates a session header.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, fmt.Errorf("decode header %s: %w", filepath.Base(path), err)
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
