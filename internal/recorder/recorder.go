// Package recorder implements DataRecorder: the on-disk session
// filesystem layout, append-only per-direction camera and event archives,
// and atomic finalization.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/version"
)

// Event is the per-frame record appended to `{DIR}_events.json`:
// the stimulus frame paired with each camera frame, in capture order.
type Event struct {
	TimestampUs int64   `json:"timestamp_us"`
	FrameIndex  uint64  `json:"frame_index"`
	BarAngleDeg float64 `json:"bar_angle_deg"`
}

// cameraFrame is what's buffered per direction until finalization writes
// the chunked HDF5 archive in one pass (see writeCameraArchive doc comment
// for why this isn't a true incremental HDF5 append).
type cameraFrame struct {
	width, height, channels int
	pixels                  []byte
}

type directionState struct {
	eventFile *os.File
	eventW    *bufio.Writer
	frames    []cameraFrame
}

// Recorder is DataRecorder. One Recorder instance owns exactly one session
// directory for its lifetime; it is not safe for concurrent use by more
// than the single recorder-writer thread that owns it.
type Recorder struct {
	mu sync.Mutex

	sessionsRoot string
	name         string
	partialDir   string

	startedAt time.Time
	states    map[config.Direction]*directionState
	recorded  []config.Direction
}

// Open creates `{sessionsRoot}/{name}.partial/` and returns a Recorder
// ready to accept frames.
func Open(sessionsRoot, name string) (*Recorder, error) {
	partial := filepath.Join(sessionsRoot, name+".partial")
	if err := os.MkdirAll(partial, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: creating session directory: %w", err)
	}
	return &Recorder{
		sessionsRoot: sessionsRoot,
		name:         name,
		partialDir:   partial,
		startedAt:    time.Now().UTC(),
		states:       make(map[config.Direction]*directionState),
	}, nil
}

func (r *Recorder) stateFor(d config.Direction) (*directionState, error) {
	st, ok := r.states[d]
	if ok {
		return st, nil
	}
	f, err := os.Create(filepath.Join(r.partialDir, string(d)+"_events.json"))
	if err != nil {
		return nil, fmt.Errorf("recorder: opening events file for %s: %w", d, err)
	}
	st = &directionState{eventFile: f, eventW: bufio.NewWriter(f)}
	r.states[d] = st
	r.recorded = append(r.recorded, d)
	return st, nil
}

// AppendFrame buffers one camera frame for direction d and writes its
// paired event line. Frames within a direction are appended in the order
// callers invoke AppendFrame — the capture thread's natural order.
func (r *Recorder) AppendFrame(d config.Direction, width, height, channels int, pixels []byte, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.stateFor(d)
	if err != nil {
		return err
	}
	st.frames = append(st.frames, cameraFrame{width: width, height: height, channels: channels, pixels: pixels})

	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("recorder: marshaling event for %s: %w", d, err)
	}
	if _, err := st.eventW.Write(line); err != nil {
		return fmt.Errorf("recorder: writing event for %s: %w", d, err)
	}
	if err := st.eventW.WriteByte('\n'); err != nil {
		return err
	}
	return nil
}

// FlushDirection flushes and fsyncs direction d's event file, called on
// every cycle end.
func (r *Recorder) FlushDirection(d config.Direction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[d]
	if !ok {
		return nil
	}
	if err := st.eventW.Flush(); err != nil {
		return err
	}
	return st.eventFile.Sync()
}

// FrameCount reports how many frames have been buffered for d so far,
// used by the orchestrator to detect a cancelled, partially-recorded
// direction.
func (r *Recorder) FrameCount(d config.Direction) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[d]
	if !ok {
		return 0
	}
	return len(st.frames)
}

// RecordedDirections returns the directions that have had at least one
// frame appended, in the order first touched.
func (r *Recorder) RecordedDirections() []config.Direction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]config.Direction(nil), r.recorded...)
}

// AnatomicalError wraps a failure writing the optional anatomical frame.
type AnatomicalError struct{ Err error }

func (e *AnatomicalError) Error() string { return fmt.Sprintf("recorder: writing anatomical.npy: %v", e.Err) }
func (e *AnatomicalError) Unwrap() error { return e.Err }

// WriteAnatomical writes the optional single baseline frame.
func (r *Recorder) WriteAnatomical(width, height int, pixels []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	path := filepath.Join(r.partialDir, "anatomical.npy")
	if err := writeAnatomicalNPY(path, width, height, pixels); err != nil {
		return &AnatomicalError{Err: err}
	}
	return nil
}
