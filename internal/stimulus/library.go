package stimulus

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
)

// ProgressEvent reports pre-generation progress for one direction.
type ProgressEvent struct {
	Direction   config.Direction
	FramesDone  int
	FramesTotal int
}

// snapshot is the immutable, fully-built state of the library. A new
// snapshot is built off to the side and swapped in atomically so
// readers mid-frame always see a complete, consistent set.
type snapshot struct {
	fingerprint [32]byte
	lr          []Frame
	tb          []Frame
	infoLR      DatasetInfo
	infoTB      DatasetInfo
}

// Library pre-computes, stores, and serves indexed frame sequences per
// direction. Only LR and TB are ever materialized; RL and BT are
// served as reversed views over LR/TB.
type Library struct {
	gen *Generator
	cur atomic.Pointer[snapshot]
}

func NewLibrary(gen *Generator) *Library {
	return &Library{gen: gen}
}

// IsLoaded reports whether a fully-built snapshot is currently installed.
func (l *Library) IsLoaded() bool {
	return l.cur.Load() != nil
}

// Invalidate clears the in-memory library. Called whenever a key in the
// monitor-or-stimulus fingerprint set changes.
func (l *Library) Invalidate() {
	l.cur.Store(nil)
}

// directionsToMaterialize maps the requested (possibly virtual)
// directions down to the set of primaries that must actually be rendered.
func directionsToMaterialize(directions []config.Direction) (needLR, needTB bool) {
	for _, d := range directions {
		switch primaryOf(d) {
		case config.DirectionLR:
			needLR = true
		case config.DirectionTB:
			needTB = true
		}
	}
	return
}

// PreGenerate materializes LR and/or TB as needed by directions,
// streaming progress events on progressCh (which PreGenerate closes
// when it returns, success or not). Cancellation via ctx is cooperative
// at frame boundaries.
func (l *Library) PreGenerate(ctx context.Context, directions []config.Direction, m config.Monitor, st config.Stimulus, progressCh chan<- ProgressEvent) error {
	defer close(progressCh)

	needLR, needTB := directionsToMaterialize(directions)
	snap := &snapshot{fingerprint: config.ComputeFingerprint(config.FieldValues(m, st), config.GenerationFingerprintKeys)}

	if needLR {
		frames, info, err := l.renderSweep(ctx, config.DirectionLR, m, st, progressCh)
		if err != nil {
			return err
		}
		snap.lr, snap.infoLR = frames, info
	}
	if needTB {
		frames, info, err := l.renderSweep(ctx, config.DirectionTB, m, st, progressCh)
		if err != nil {
			return err
		}
		snap.tb, snap.infoTB = frames, info
	}

	l.cur.Store(snap)
	return nil
}

func (l *Library) renderSweep(ctx context.Context, primary config.Direction, m config.Monitor, st config.Stimulus, progressCh chan<- ProgressEvent) ([]Frame, DatasetInfo, error) {
	info := l.gen.DatasetInfo(primary, m, st)
	frames := make([]Frame, info.TotalFrames)
	for i := 0; i < info.TotalFrames; i++ {
		select {
		case <-ctx.Done():
			return nil, DatasetInfo{}, ctx.Err()
		default:
		}
		angle := l.gen.FrameAngle(primary, i, info.TotalFrames, info)
		frame, err := l.gen.RenderFrame(primary, angle, true, i, m, st)
		if err != nil {
			return nil, DatasetInfo{}, fmt.Errorf("stimulus: rendering %s frame %d: %w", primary, i, err)
		}
		frames[i] = frame
		progressCh <- ProgressEvent{Direction: primary, FramesDone: i + 1, FramesTotal: info.TotalFrames}
	}
	return frames, info, nil
}

// ErrNotLoaded is returned by Frames/Frame when no snapshot is installed.
var ErrNotLoaded = fmt.Errorf("stimulus: library not loaded")

// Frames returns the full ordered sequence for direction, applying the
// RL=reverse(LR) / BT=reverse(TB) view for virtual directions. The
// returned slice must not be mutated by the caller.
func (l *Library) Frames(direction config.Direction) ([]Frame, error) {
	snap := l.cur.Load()
	if snap == nil {
		return nil, ErrNotLoaded
	}
	switch direction {
	case config.DirectionLR:
		if snap.lr == nil {
			return nil, ErrNotLoaded
		}
		return snap.lr, nil
	case config.DirectionTB:
		if snap.tb == nil {
			return nil, ErrNotLoaded
		}
		return snap.tb, nil
	case config.DirectionRL:
		if snap.lr == nil {
			return nil, ErrNotLoaded
		}
		return reversedView(snap.lr, config.DirectionRL), nil
	case config.DirectionBT:
		if snap.tb == nil {
			return nil, ErrNotLoaded
		}
		return reversedView(snap.tb, config.DirectionBT), nil
	default:
		return nil, fmt.Errorf("stimulus: unknown direction %q", direction)
	}
}

// reversedView builds the index-reversed view lazily (no frame copy
// needed beyond the header rewrite; pixels slices are shared, which is
// safe since the underlying snapshot is immutable).
func reversedView(primary []Frame, virtual config.Direction) []Frame {
	n := len(primary)
	out := make([]Frame, n)
	for i, f := range primary {
		rf := f
		rf.Direction = virtual
		rf.FrameIndex = n - 1 - i
		out[n-1-i] = rf
	}
	return out
}

// Frame returns the single frame at index i for direction.
func (l *Library) Frame(direction config.Direction, i int) (Frame, error) {
	frames, err := l.Frames(direction)
	if err != nil {
		return Frame{}, err
	}
	if i < 0 || i >= len(frames) {
		return Frame{}, fmt.Errorf("stimulus: index %d out of range [0,%d) for %s", i, len(frames), direction)
	}
	return frames[i], nil
}

// Fingerprint returns the generation fingerprint the current snapshot
// was built against, or the zero value if nothing is loaded.
func (l *Library) Fingerprint() ([32]byte, bool) {
	snap := l.cur.Load()
	if snap == nil {
		return [32]byte{}, false
	}
	return snap.fingerprint, true
}
