package replay

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"portalsim/engine/internal/input"
)

const (
	ManifestFile = "manifest.json"
	HeaderFile   = "header.json"
	ControlsFile = "controls.jsonl.sz"
	FramesFile   = "frames.bin.zst"

	// frameHeaderSize is tick, simulated milliseconds and payload length.
	frameHeaderSize = 8 + 8 + 4
	flushThreshold  = 32
)

var sessionNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Frame is one recorded snapshot document.
type Frame struct {
	Tick        uint64
	SimulatedMs int64
	Payload     json.RawMessage
}

// ControlRecord is one controls submission. Tick is the world tick at submission time,
// so the controls first take effect in the step that produces Tick+1.
type ControlRecord struct {
	Tick        uint64         `json:"tick"`
	SimulatedMs int64          `json:"simulated_ms"`
	CapturedAt  time.Time      `json:"captured_at"`
	Controls    input.Controls `json:"controls"`
}

// Manifest describes the session directory layout.
type Manifest struct {
	Version      int    `json:"version"`
	CreatedAt    string `json:"created_at"`
	ControlsPath string `json:"controls_path"`
	FramesPath   string `json:"frames_path"`
}

// Writer streams one session to disk. It is safe for concurrent use.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	controlFile *os.File
	controls    *snappy.Writer
	frameFile   *os.File
	frames      *zstd.Encoder
	pending     []Frame
	header      Header
	closed      bool
}

// NewWriter creates a fresh session directory under root and opens the compressed
// sinks.
func NewWriter(root, session string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	//1.- Name the directory after the session and its creation time.
	name := sessionNameCleaner.ReplaceAllString(session, "")
	if name == "" {
		name = "session"
	}
	created := clock().UTC()
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", name, created.Format("20060102T150405.000Z")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	//2.- Open both sinks.
	controlFile, err := os.Create(filepath.Join(dir, ControlsFile))
	if err != nil {
		return nil, Manifest{}, err
	}
	frameFile, err := os.Create(filepath.Join(dir, FramesFile))
	if err != nil {
		controlFile.Close()
		return nil, Manifest{}, err
	}
	frames, err := zstd.NewWriter(frameFile, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		controlFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	//3.- Persist the manifest up front so partial sessions stay discoverable.
	manifest := Manifest{
		Version:      1,
		CreatedAt:    created.Format(time.RFC3339Nano),
		ControlsPath: ControlsFile,
		FramesPath:   FramesFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644)
	}
	if err != nil {
		frames.Close()
		frameFile.Close()
		controlFile.Close()
		return nil, Manifest{}, err
	}

	return &Writer{
		dir:         dir,
		now:         clock,
		controlFile: controlFile,
		controls:    snappy.NewBufferedWriter(controlFile),
		frameFile:   frameFile,
		frames:      frames,
		header:      Header{SchemaVersion: HeaderSchemaVersion, FilePointer: ManifestFile},
	}, manifest, nil
}

// Directory is the session directory.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// SetHeader records how the world was built. It is written on Close.
func (w *Writer) SetHeader(level string, tickRateHz float64, step time.Duration, tuning Parameters) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.header.Level = level
	w.header.TickRateHz = tickRateHz
	w.header.StepNanos = int64(step)
	w.header.Tuning = tuning.Clone()
	w.mu.Unlock()
}

// AppendControls writes one controls submission to the log.
func (w *Writer) AppendControls(tick uint64, simulatedMs int64, c input.Controls) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	record := ControlRecord{Tick: tick, SimulatedMs: simulatedMs, CapturedAt: w.now().UTC(), Controls: c}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errWriterClosed
	}
	if _, err := w.controls.Write(append(line, '\n')); err != nil {
		return err
	}
	return w.controls.Flush()
}

// AppendFrame buffers one snapshot document; frames reach the zstd stream in batches.
func (w *Writer) AppendFrame(tick uint64, simulatedMs int64, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	clone := append(json.RawMessage(nil), payload...)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errWriterClosed
	}
	w.pending = append(w.pending, Frame{Tick: tick, SimulatedMs: simulatedMs, Payload: clone})
	if len(w.pending) >= flushThreshold {
		return w.flushLocked()
	}
	return nil
}

// Flush writes every buffered frame.
func (w *Writer) Flush() error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Close writes the header, flushes both streams and releases the files. Every step is
// attempted and the errors are joined.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if w.header.StepNanos > 0 {
		errs = append(errs, WriteHeader(filepath.Join(w.dir, HeaderFile), w.header))
	} else {
		errs = append(errs, fmt.Errorf("session header was never set"))
	}
	errs = append(errs,
		w.flushLocked(),
		w.controls.Close(),
		w.controlFile.Close(),
		w.frames.Close(),
		w.frameFile.Close(),
	)
	return errors.Join(errs...)
}

var errWriterClosed = errors.New("replay writer closed")

// flushLocked writes pending frames; callers hold w.mu.
func (w *Writer) flushLocked() error {
	header := make([]byte, frameHeaderSize)
	for _, frame := range w.pending {
		binary.LittleEndian.PutUint64(header[0:8], frame.Tick)
		binary.LittleEndian.PutUint64(header[8:16], uint64(frame.SimulatedMs))
		binary.LittleEndian.PutUint32(header[16:20], uint32(len(frame.Payload)))
		if _, err := w.frames.Write(header); err != nil {
			return err
		}
		if _, err := w.frames.Write(frame.Payload); err != nil {
			return err
		}
	}
	w.pending = w.pending[:0]
	return nil
}
