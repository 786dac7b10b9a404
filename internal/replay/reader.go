package replay

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// EntryKind orders timeline entries that share a tick.
type EntryKind int

const (
	// EntryFrame is a recorded snapshot. At equal ticks it precedes the controls
	// submitted after that snapshot was taken.
	EntryFrame EntryKind = iota
	EntryControls
)

func (k EntryKind) String() string {
	if k == EntryControls {
		return "controls"
	}
	return "frame"
}

// Entry is one item of the session timeline. Exactly one of Frame and Controls is set.
type Entry struct {
	Kind     EntryKind
	Tick     uint64
	Frame    *Frame
	Controls *ControlRecord
}

// Session is a fully loaded recording.
type Session struct {
	Dir      string
	Manifest Manifest
	Header   Header
	Frames   []Frame
	Controls []ControlRecord
}

// Open loads every artefact of the session in dir.
func Open(dir string) (*Session, error) {
	if dir == "" {
		return nil, fmt.Errorf("session directory must be provided")
	}
	s := &Session{Dir: dir}

	//1.- Manifest and header.
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &s.Manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if s.Header, err = ReadHeader(filepath.Join(dir, HeaderFile)); err != nil {
		return nil, err
	}

	//2.- Frames and controls.
	if s.Frames, err = readFrames(filepath.Join(dir, s.Manifest.FramesPath)); err != nil {
		return nil, err
	}
	if s.Controls, err = readControls(filepath.Join(dir, s.Manifest.ControlsPath)); err != nil {
		return nil, err
	}
	return s, nil
}

func readFrames(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var frames []Frame
	header := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(dec, header); err != nil {
			if err == io.EOF {
				return frames, nil
			}
			return nil, fmt.Errorf("frame %d header: %w", len(frames), err)
		}
		size := binary.LittleEndian.Uint32(header[16:20])
		payload := make([]byte, size)
		if _, err := io.ReadFull(dec, payload); err != nil {
			return nil, fmt.Errorf("frame %d payload: %w", len(frames), err)
		}
		frames = append(frames, Frame{
			Tick:        binary.LittleEndian.Uint64(header[0:8]),
			SimulatedMs: int64(binary.LittleEndian.Uint64(header[8:16])),
			Payload:     payload,
		})
	}
}

func readControls(path string) ([]ControlRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []ControlRecord
	scanner := bufio.NewScanner(snappy.NewReader(f))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec ControlRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("control record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Timeline merges frames and controls in replay order.
func (s *Session) Timeline() []Entry {
	entries := make([]Entry, 0, len(s.Frames)+len(s.Controls))
	for i := range s.Frames {
		entries = append(entries, Entry{Kind: EntryFrame, Tick: s.Frames[i].Tick, Frame: &s.Frames[i]})
	}
	for i := range s.Controls {
		entries = append(entries, Entry{Kind: EntryControls, Tick: s.Controls[i].Tick, Controls: &s.Controls[i]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Tick != entries[j].Tick {
			return entries[i].Tick < entries[j].Tick
		}
		return entries[i].Kind < entries[j].Kind
	})
	return entries
}

// Replay feeds the timeline to apply and stops at the first error.
func (s *Session) Replay(apply func(Entry) error) error {
	if apply == nil {
		return fmt.Errorf("replay callback must be provided")
	}
	for _, entry := range s.Timeline() {
		if err := apply(entry); err != nil {
			return err
		}
	}
	return nil
}
