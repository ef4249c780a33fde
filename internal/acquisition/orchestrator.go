package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/camera"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/monitoring"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/recorder"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/stimulus"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/synctracker"
)

// ErrAlreadyRunning is returned by Start when the orchestrator is not Idle.
var ErrAlreadyRunning = errors.New("acquisition: already running")

// pollInterval is how often orchestrator timers re-check the cancellation
// flag while waiting out a baseline/between/cycle duration.
const pollInterval = 10 * time.Millisecond

// Orchestrator is AcquisitionOrchestrator: the outer state machine
// driving CameraDriver, Engine, StimulusLibrary, and (in record mode)
// Recorder through one full acquisition run.
type Orchestrator struct {
	store        *config.Store
	driver       camera.Driver
	engine       *Engine
	tracker      *synctracker.Tracker
	lib          *stimulus.Library
	sessionsRoot string

	mu    sync.Mutex
	state State
	mode  Mode

	cancelRequested atomic.Bool
	events          chan<- Event
	faults          chan Fault

	anatomical atomic.Pointer[anatomicalFrame]
}

// anatomicalFrame is a camera frame captured under the anatomical filter,
// held until the next record session opens.
type anatomicalFrame struct {
	width, height int
	pixels        []byte
}

func NewOrchestrator(store *config.Store, driver camera.Driver, engine *Engine, tracker *synctracker.Tracker, lib *stimulus.Library, sessionsRoot string, events chan<- Event) *Orchestrator {
	return &Orchestrator{
		store:        store,
		driver:       driver,
		engine:       engine,
		tracker:      tracker,
		lib:          lib,
		sessionsRoot: sessionsRoot,
		state:        StateIdle,
		events:       events,
		faults:       make(chan Fault, 8),
	}
}

// State returns the orchestrator's current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.emit(Event{Type: "system_state", State: s})
}

func (o *Orchestrator) emit(e Event) {
	if o.events == nil {
		return
	}
	select {
	case o.events <- e:
	default:
		monitoring.Logf("acquisition: event channel full, dropping %s", e.Type)
	}
}

// SetPendingAnatomical stores a captured frame to be written as
// anatomical.npy when the next record session opens. A later capture
// replaces an earlier one; the frame is consumed by at most one session.
func (o *Orchestrator) SetPendingAnatomical(width, height int, pixels []byte) {
	o.anatomical.Store(&anatomicalFrame{width: width, height: height, pixels: pixels})
}

// Cancel requests the run stop: the current baseline, stimulus or between
// wait ends within pollInterval. It is a no-op when the orchestrator is Idle.
func (o *Orchestrator) Cancel() {
	if o.State() == StateIdle {
		return
	}
	o.cancelRequested.Store(true)
	o.setState(StateCancelling)
}

// Start runs one full acquisition: Preparing -> Baseline -> (StimulusCycle
// -> Between)* -> Finalizing -> Idle. It blocks until the run completes,
// fails a guard, or is cancelled, and is not reentrant: call it from a
// single command-dispatch goroutine per the IPC contract.
func (o *Orchestrator) Start(ctx context.Context, mode Mode) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.mode = mode
	o.mu.Unlock()
	o.cancelRequested.Store(false)
	o.setState(StatePreparing)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer o.setState(StateIdle)

	snap := o.store.Snapshot()

	ids, err := o.driver.Enumerate()
	if err != nil || len(ids) == 0 {
		o.emit(Event{Type: "error", Message: "no camera devices enumerated"})
		return fmt.Errorf("acquisition: preparing: %w", camera.ErrNoDevices)
	}

	if !o.lib.IsLoaded() {
		progressCh := make(chan stimulus.ProgressEvent, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for p := range progressCh {
				o.emit(Event{Type: "library_progress", Direction: p.Direction, FramesDone: p.FramesDone, FramesTotal: p.FramesTotal})
			}
		}()
		err := o.lib.PreGenerate(runCtx, snap.Acquisition.Directions, snap.Monitor, snap.Stimulus, progressCh)
		<-done
		if err != nil {
			return fmt.Errorf("acquisition: pre-generating stimulus library: %w", err)
		}
		o.emit(Event{Type: "library_ready"})
	}

	if err := o.driver.Open(ids[0], camera.Config{WidthPx: snap.Camera.WidthPx, HeightPx: snap.Camera.HeightPx, FPS: snap.Camera.FPS}); err != nil {
		return fmt.Errorf("acquisition: opening camera: %w", err)
	}
	defer o.driver.Close()

	frames, err := o.driver.Start(runCtx)
	if err != nil {
		return fmt.Errorf("acquisition: starting camera: %w", err)
	}
	defer o.driver.Stop()

	o.tracker.Clear()

	var rec *recorder.Recorder
	if mode == ModeRecord {
		rec, err = recorder.Open(o.sessionsRoot, snap.Session.SessionName)
		if err != nil {
			return fmt.Errorf("acquisition: opening session directory: %w", err)
		}
		if af := o.anatomical.Swap(nil); af != nil {
			if err := rec.WriteAnatomical(af.width, af.height, af.pixels); err != nil {
				monitoring.Logf("acquisition: %v", err)
			}
		}
	}
	o.engine.SetMonitorFPS(snap.Monitor.FPS)
	o.engine.AttachRecorder(runCtx, rec)

	engineDone := make(chan error, 1)
	go func() { engineDone <- o.engine.Run(runCtx, frames, o.faults) }()
	go o.watchFaults(runCtx)

	cancelled := o.runSequence(runCtx, rec, snap)

	o.setState(StateFinalizing)
	cancel() // stop the capture loop before touching the recorder's files
	<-engineDone

	if rec != nil {
		if err := rec.Finalize(snap, cancelled); err != nil {
			o.emit(Event{Type: "error", Message: err.Error()})
			return fmt.Errorf("acquisition: finalizing session: %w", err)
		}
	}
	o.emit(Event{Type: "session_complete"})
	return nil
}

// runSequence drives Baseline -> (StimulusCycle -> Between)* for every
// direction and cycle in stable order. It returns
// true if the run was cancelled partway through.
func (o *Orchestrator) runSequence(ctx context.Context, rec *recorder.Recorder, snap config.Snapshot) bool {
	o.engine.SetPhase(&Phase{Blank: true})
	o.setState(StateBaseline)
	if o.wait(ctx, snap.Acquisition.BaselineSec) {
		return true
	}

	for _, d := range snap.Acquisition.Directions {
		frames, err := o.lib.Frames(d)
		if err != nil || len(frames) == 0 {
			o.emit(Event{Type: "error", Message: fmt.Sprintf("stimulus library has no frames for direction %s", d)})
			return true
		}
		n := len(frames)

		for cycle := 1; cycle <= snap.Acquisition.Cycles; cycle++ {
			o.engine.SetPhase(&Phase{
				Direction:   d,
				TotalFrames: n,
				StartUs:     camera.Now(),
				Recording:   o.mode == ModeRecord,
			})
			o.setState(StateStimulusCycle)
			o.emit(Event{Type: "acquisition_progress", Direction: d, Cycle: cycle})

			cycleDuration := float64(n) / snap.Monitor.FPS
			if o.wait(ctx, cycleDuration) {
				return true
			}
			if rec != nil {
				if err := rec.FlushDirection(d); err != nil {
					monitoring.Logf("acquisition: flushing %s: %v", d, err)
				}
			}

			o.engine.SetPhase(&Phase{Blank: true})
			o.setState(StateBetween)
			if o.wait(ctx, snap.Acquisition.BetweenSec) {
				return true
			}
		}
	}
	return false
}

// wait blocks for durationSec, polling the cancellation flag and ctx, and
// reports whether the wait ended early due to cancellation.
func (o *Orchestrator) wait(ctx context.Context, durationSec float64) bool {
	if durationSec <= 0 {
		return o.cancelRequested.Load() || ctx.Err() != nil
	}
	deadline := time.Now().Add(time.Duration(durationSec * float64(time.Second)))
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		if o.cancelRequested.Load() {
			return true
		}
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
		}
	}
	return o.cancelRequested.Load()
}

func (o *Orchestrator) watchFaults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-o.faults:
			o.emit(Event{Type: "error", Message: fmt.Sprintf("%s: %s", f.Code, f.Message)})
			if f.Code == FaultRecorderBackpressure {
				o.Cancel()
			}
		}
	}
}
