// Package acquisition implements AcquisitionEngine and
// AcquisitionOrchestrator: the camera-triggered per-frame loop and
// the outer state machine that drives it through a recording session.
package acquisition

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/camera"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/framebus"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/monitoring"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/recorder"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/stimulus"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/synctracker"
)

// noStimulusFrame marks a phase that presents no stimulus frame (baseline
// and between-trial gaps), where the display shows flat background
// luminance rather than a library frame.
const noStimulusFrame = -1

// Phase is the capture thread's view of "what is currently happening",
// swapped in by the orchestrator as it moves through its state machine.
// A nil Phase (before Preparing finishes) means frames are still
// published (with stimulus index noStimulusFrame) and sync-tracked, but
// never recorded.
type Phase struct {
	Direction   config.Direction
	Blank       bool // true during Baseline/Between: stimulus is flat background
	TotalFrames int  // N for Direction's library sweep; unused when Blank
	StartUs     int64
	Recording   bool
}

// Fault is a non-fatal engine-surfaced condition the orchestrator decides
// how to react to.
type Fault struct {
	Code    string
	Message string
}

// FaultRecorderBackpressure fires when the bounded recorder queue stays
// full past backpressureTimeout.
const FaultRecorderBackpressure = "RecorderBackpressure"

// recordQueueFrames sizes the bounded recorder queue to roughly 2 s of
// frames at a typical 30 fps camera.
const recordQueueFrames = 60

type recordJob struct {
	direction            config.Direction
	width, height, chans int
	pixels               []byte
	evt                  recorder.Event
}

// Engine is AcquisitionEngine: the single capture-thread loop that reads
// camera frames, derives the stimulus frame index from the camera clock,
// publishes to SharedFrameBus, records a SyncTracker sample, and — when
// recording — enqueues the frame to the recorder-writer.
type Engine struct {
	bus        *framebus.Bus
	tracker    *synctracker.Tracker
	lib        *stimulus.Library
	monitorFPS float64

	phase atomic.Pointer[Phase]

	recordQueue         chan recordJob
	backpressureTimeout time.Duration
	rec                 *recorder.Recorder
}

func NewEngine(bus *framebus.Bus, tracker *synctracker.Tracker, lib *stimulus.Library, monitorFPS float64) *Engine {
	return &Engine{
		bus:                 bus,
		tracker:             tracker,
		lib:                 lib,
		monitorFPS:          monitorFPS,
		recordQueue:         make(chan recordJob, recordQueueFrames),
		backpressureTimeout: 250 * time.Millisecond,
	}
}

// SetMonitorFPS updates the stimulus frame clock rate. Call only while
// the capture loop is stopped (the orchestrator does, during Preparing);
// the loop reads it without locking.
func (e *Engine) SetMonitorFPS(fps float64) {
	e.monitorFPS = fps
}

// SetPhase atomically swaps the phase the capture loop is currently
// interpreting frames under. Called by the orchestrator on every state
// transition.
func (e *Engine) SetPhase(p *Phase) {
	e.phase.Store(p)
}

// AttachRecorder enables record-mode frame writes and starts the
// recorder-writer goroutine that drains the bounded queue. Pass nil to
// stop recording.
func (e *Engine) AttachRecorder(ctx context.Context, rec *recorder.Recorder) {
	e.rec = rec
	if rec == nil {
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-e.recordQueue:
				if err := rec.AppendFrame(job.direction, job.width, job.height, job.chans, job.pixels, job.evt); err != nil {
					monitoring.Logf("acquisition: recorder-writer: %v", err)
				}
			}
		}
	}()
}

// Run is the capture-thread loop. It processes frames until the channel closes or ctx is
// cancelled. Faults are sent best-effort on faults; a full faults channel
// never blocks the loop.
func (e *Engine) Run(ctx context.Context, frames <-chan camera.Frame, faults chan<- Fault) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			e.processFrame(frame, faults)
		}
	}
}

func (e *Engine) processFrame(frame camera.Frame, faults chan<- Fault) {
	ph := e.phase.Load()

	stimFrameIdx := noStimulusFrame
	var angle float64
	if ph != nil && !ph.Blank && ph.TotalFrames > 0 {
		phaseS := float64(frame.TimestampUs-ph.StartUs) / 1e6
		stimFrameIdx = clampInt(int(math.Floor(phaseS*e.monitorFPS)), 0, ph.TotalFrames-1)
		if e.lib != nil {
			if f, err := e.lib.Frame(ph.Direction, stimFrameIdx); err == nil {
				angle = f.BarAngleDeg
			}
		}
	}

	e.bus.PublishCamera(framebus.CameraHeader{
		TimestampUs: frame.TimestampUs,
		FrameIndex:  frame.FrameIndex,
		Width:       frame.Width,
		Height:      frame.Height,
		Channels:    frame.Channels,
	}, frame.Image)

	e.bus.PublishStimulusMeta(framebus.StimulusHeader{
		TimestampUs: frame.TimestampUs,
		FrameIndex:  stimFrameIdx,
		BarAngleDeg: angle,
	})

	// Camera-triggered design: the stimulus timestamp is the camera
	// timestamp itself, eliminating two-clock drift.
	e.tracker.Record(frame.TimestampUs, frame.TimestampUs, stimFrameIdx)

	if ph != nil && ph.Recording && e.rec != nil {
		job := recordJob{
			direction: ph.Direction,
			width:     frame.Width,
			height:    frame.Height,
			chans:     frame.Channels,
			pixels:    frame.Image,
			evt: recorder.Event{
				TimestampUs: frame.TimestampUs,
				FrameIndex:  frame.FrameIndex,
				BarAngleDeg: angle,
			},
		}
		e.enqueueRecord(job, faults)
	}
}

func (e *Engine) enqueueRecord(job recordJob, faults chan<- Fault) {
	select {
	case e.recordQueue <- job:
		return
	default:
	}
	timer := time.NewTimer(e.backpressureTimeout)
	defer timer.Stop()
	select {
	case e.recordQueue <- job:
	case <-timer.C:
		select {
		case faults <- Fault{Code: FaultRecorderBackpressure, Message: fmt.Sprintf("recorder queue still full after %s", e.backpressureTimeout)}:
		default:
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
