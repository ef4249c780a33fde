package ipc

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/acquisition"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/analysis"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/catalog"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/framebus"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/monitoring"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/report"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/stimulus"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/synctracker"
)

// Deps is the set of components the dispatcher routes commands to. It is
// filled in by the application assembly at startup; the dispatcher never
// reaches for a component it was not handed.
type Deps struct {
	Store        *config.Store
	Library      *stimulus.Library
	Tracker      *synctracker.Tracker
	Bus          *framebus.Bus
	Orchestrator *acquisition.Orchestrator
	Pipeline     *analysis.Pipeline
	Catalog      *catalog.Catalog // optional; nil disables catalog commands
	Renderer     *report.Renderer
	DataRoot     string
}

// analysisStatus is the mutable view behind get_analysis_status.
type analysisStatus struct {
	Running     bool    `json:"running"`
	SessionPath string  `json:"session_path,omitempty"`
	RunID       string  `json:"run_id,omitempty"`
	Stage       string  `json:"stage,omitempty"`
	Fraction    float64 `json:"fraction"`
	LastError   string  `json:"last_error,omitempty"`
}

// Dispatcher executes commands against the core and publishes events.
// Dispatch is safe for concurrent use, but the intended shape is a single
// command-reading loop per process.
type Dispatcher struct {
	deps   Deps
	events chan Event

	camSub *framebus.CameraSubscriber

	mu         sync.Mutex
	status     analysisStatus
	lastResult *analysis.Result
	lastFault  string
	sessionID  string // catalog row for the active record run
}

// NewDispatcher wires a dispatcher to its components and starts the
// event forwarding (parameter snapshots on every successful write).
func NewDispatcher(deps Deps) *Dispatcher {
	d := &Dispatcher{
		deps:   deps,
		events: make(chan Event, 256),
		camSub: deps.Bus.SubscribeCamera(),
	}
	deps.Store.Subscribe(func(snap config.Snapshot) {
		d.emit(Event{Type: "parameters_snapshot", Payload: snap})
	})
	return d
}

// Events returns the outbound event channel. Events are dropped, not
// blocked on, when the consumer falls behind.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

func (d *Dispatcher) emit(e Event) {
	select {
	case d.events <- e:
	default:
		monitoring.Logf("ipc: event channel full, dropping %s", e.Type)
	}
}

// PumpAcquisitionEvents forwards orchestrator events onto the IPC event
// channel until in is closed. Run it on its own goroutine from the
// assembly.
func (d *Dispatcher) PumpAcquisitionEvents(in <-chan acquisition.Event) {
	for e := range in {
		switch e.Type {
		case "system_state":
			d.emit(Event{Type: "system_state", Payload: map[string]interface{}{"state": e.State}})
		case "acquisition_progress":
			d.emit(Event{Type: "acquisition_progress", Payload: map[string]interface{}{
				"direction": e.Direction, "cycle": e.Cycle, "frame": e.FramesDone,
			}})
		case "library_progress":
			d.emit(Event{Type: "library_progress", Payload: map[string]interface{}{
				"direction": e.Direction, "frames_done": e.FramesDone, "frames_total": e.FramesTotal,
			}})
		case "error":
			d.mu.Lock()
			d.lastFault = e.Message
			d.mu.Unlock()
			d.emit(Event{Type: "error", Payload: map[string]interface{}{"code": "RunFault", "message": e.Message}})
		default:
			d.emit(Event{Type: e.Type})
		}
	}
}

// Dispatch executes one command and returns its reply.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Reply {
	switch cmd.Type {
	case "update_parameters":
		return d.updateParameters(cmd)
	case "get_parameters":
		return d.getParameters(cmd)
	case "pre_generate_stimulus":
		return d.preGenerateStimulus(ctx, cmd)
	case "save_stimulus_library":
		return d.saveStimulusLibrary(cmd)
	case "load_stimulus_library":
		return d.loadStimulusLibrary(cmd)
	case "start_acquisition":
		return d.startAcquisition(ctx, cmd)
	case "stop_acquisition":
		d.deps.Orchestrator.Cancel()
		return ok(nil)
	case "capture_anatomical":
		return d.captureAnatomical()
	case "start_analysis":
		return d.startAnalysis(ctx, cmd)
	case "get_analysis_status":
		return d.getAnalysisStatus()
	case "get_sync_data":
		return d.getSyncData(cmd)
	case "get_system_state":
		return d.getSystemState()
	case "list_sessions":
		return d.listSessions(cmd)
	case "get_analysis_run":
		return d.getAnalysisRun(cmd)
	case "render_report":
		return d.renderReport(cmd)
	default:
		return fail(CodeUnknownCommand, fmt.Errorf("ipc: unknown command type %q", cmd.Type))
	}
}

func (d *Dispatcher) updateParameters(cmd Command) Reply {
	group := config.Group(cmd.Group)
	snap, err := d.deps.Store.Update(group, cmd.Patch)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			return fail(CodeValidationFailed, err)
		}
		return fail(CodeIoError, err)
	}
	// A write to a generating group invalidates the in-memory library
	// unless the fingerprint happens to be unchanged.
	if group == config.GroupMonitor || group == config.GroupStimulus {
		if fp, loaded := d.deps.Library.Fingerprint(); loaded && fp != d.deps.Store.Fingerprint() {
			d.deps.Library.Invalidate()
		}
	}
	return ok(snap)
}

func (d *Dispatcher) getParameters(cmd Command) Reply {
	if cmd.Group == "" {
		return ok(d.deps.Store.Snapshot())
	}
	rec, err := d.deps.Store.Get(config.Group(cmd.Group))
	if err != nil {
		return fail(CodeValidationFailed, err)
	}
	return ok(rec)
}

func (d *Dispatcher) preGenerateStimulus(ctx context.Context, cmd Command) Reply {
	snap := d.deps.Store.Snapshot()
	directions := cmd.Directions
	if len(directions) == 0 {
		directions = snap.Acquisition.Directions
	}

	progressCh := make(chan stimulus.ProgressEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progressCh {
			d.emit(Event{Type: "library_progress", Payload: map[string]interface{}{
				"direction": p.Direction, "frames_done": p.FramesDone, "frames_total": p.FramesTotal,
			}})
		}
	}()
	err := d.deps.Library.PreGenerate(ctx, directions, snap.Monitor, snap.Stimulus, progressCh)
	<-done
	if err != nil {
		return fail(CodeIoError, err)
	}
	d.emit(Event{Type: "library_ready"})
	return ok(nil)
}

func (d *Dispatcher) libraryPath(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(d.deps.DataRoot, "stimulus_library")
}

func (d *Dispatcher) saveStimulusLibrary(cmd Command) Reply {
	snap := d.deps.Store.Snapshot()
	if err := d.deps.Library.Save(d.libraryPath(cmd.Path), snap.Monitor, snap.Stimulus); err != nil {
		if errors.Is(err, stimulus.ErrNotLoaded) {
			return fail(CodeNotLoaded, err)
		}
		return fail(CodeIoError, err)
	}
	return ok(nil)
}

func (d *Dispatcher) loadStimulusLibrary(cmd Command) Reply {
	snap := d.deps.Store.Snapshot()
	err := d.deps.Library.Load(d.libraryPath(cmd.Path), snap.Monitor, snap.Stimulus, cmd.Force)
	if err != nil {
		var mismatch *stimulus.MismatchError
		if errors.As(err, &mismatch) {
			return Reply{OK: false, Code: CodeLibraryMismatch, Error: err.Error(), Payload: map[string]interface{}{
				"differences": mismatch.Differences,
			}}
		}
		return fail(CodeIoError, err)
	}
	d.emit(Event{Type: "library_ready"})
	return ok(nil)
}

func (d *Dispatcher) startAcquisition(ctx context.Context, cmd Command) Reply {
	mode := acquisition.Mode(cmd.Mode)
	switch mode {
	case acquisition.ModePreview, acquisition.ModeRecord, acquisition.ModePlayback:
	default:
		return fail(CodeValidationFailed, fmt.Errorf("ipc: invalid acquisition mode %q", cmd.Mode))
	}
	if d.deps.Orchestrator.State() != acquisition.StateIdle {
		return fail(CodeAlreadyRunning, acquisition.ErrAlreadyRunning)
	}

	snap := d.deps.Store.Snapshot()
	if mode == acquisition.ModeRecord {
		d.recordSessionStart(snap)
	}

	go func() {
		err := d.deps.Orchestrator.Start(ctx, mode)
		d.recordSessionEnd(snap, err)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.mu.Lock()
			d.lastFault = err.Error()
			d.mu.Unlock()
			d.emit(Event{Type: "error", Payload: map[string]interface{}{"code": "AcquisitionFailed", "message": err.Error()}})
			return
		}
		d.emit(Event{Type: "session_complete"})
	}()
	return ok(map[string]interface{}{"mode": mode})
}

// recordSessionStart inserts the catalog row for a record run. Catalog
// writes are best-effort secondary to the filesystem session: failures
// are logged, never fatal to the run.
func (d *Dispatcher) recordSessionStart(snap config.Snapshot) {
	if d.deps.Catalog == nil {
		return
	}
	var fp string
	if raw, loaded := d.deps.Library.Fingerprint(); loaded {
		fp = fmt.Sprintf("%x", raw)
	}
	id, err := d.deps.Catalog.RecordSession(snap.Session.SessionName, snap.Session.SubjectID, fp, time.Now().UTC())
	if err != nil {
		monitoring.Logf("ipc: catalog session insert: %v", err)
		return
	}
	d.mu.Lock()
	d.sessionID = id
	d.mu.Unlock()
}

func (d *Dispatcher) recordSessionEnd(snap config.Snapshot, runErr error) {
	d.mu.Lock()
	id := d.sessionID
	d.sessionID = ""
	d.mu.Unlock()
	if d.deps.Catalog == nil || id == "" {
		return
	}
	// The recorder's metadata.json is authoritative for the recorded
	// directions; the catalog mirrors the request for listing purposes.
	var err error
	if runErr != nil {
		err = d.deps.Catalog.MarkPartial(id, time.Now().UTC(), snap.Acquisition.Directions)
	} else {
		err = d.deps.Catalog.MarkFinalized(id, time.Now().UTC(), snap.Acquisition.Directions)
	}
	if err != nil {
		monitoring.Logf("ipc: catalog session update: %v", err)
	}
}

// captureAnatomical grabs the most recent camera frame off the bus and
// stages it for the next record session.
func (d *Dispatcher) captureAnatomical() Reply {
	var latest framebus.CameraEvent
	have := false
	for {
		event, _, okNext := d.camSub.Next()
		if !okNext {
			break
		}
		latest = event
		have = true
	}
	if !have {
		return fail(CodeNoFrame, fmt.Errorf("ipc: no camera frame available to capture"))
	}
	d.deps.Orchestrator.SetPendingAnatomical(latest.Header.Width, latest.Header.Height, latest.Pixels)
	return ok(map[string]interface{}{
		"timestamp_us": latest.Header.TimestampUs,
		"width":        latest.Header.Width,
		"height":       latest.Header.Height,
	})
}

func (d *Dispatcher) startAnalysis(ctx context.Context, cmd Command) Reply {
	if cmd.SessionPath == "" {
		return fail(CodeValidationFailed, fmt.Errorf("ipc: start_analysis requires session_path"))
	}
	if d.deps.Pipeline.IsRunning() {
		return fail(CodeAlreadyRunning, &analysis.AlreadyRunning{})
	}

	snap := d.deps.Store.Snapshot()
	var runID string
	if d.deps.Catalog != nil {
		var err error
		runID, err = d.deps.Catalog.StartAnalysisRun(filepath.Base(cmd.SessionPath), snap.Analysis.HemodynamicTauMs, time.Now().UTC())
		if err != nil {
			monitoring.Logf("ipc: catalog analysis-run insert: %v", err)
		}
	}

	d.mu.Lock()
	d.status = analysisStatus{Running: true, SessionPath: cmd.SessionPath, RunID: runID}
	d.mu.Unlock()

	progress := make(chan analysis.ProgressEvent, 64)
	go func() {
		for p := range progress {
			d.mu.Lock()
			d.status.Stage = string(p.Stage)
			d.status.Fraction = p.Fraction
			d.mu.Unlock()
			d.emit(Event{Type: "analysis_progress", Payload: map[string]interface{}{
				"stage": p.Stage, "fraction": p.Fraction,
			}})
		}
	}()
	go func() {
		defer close(progress)
		result, err := d.deps.Pipeline.Run(ctx, cmd.SessionPath, progress)

		d.mu.Lock()
		d.status.Running = false
		if err != nil {
			d.status.LastError = err.Error()
		} else {
			d.lastResult = &result
		}
		d.mu.Unlock()

		if err != nil {
			if d.deps.Catalog != nil && runID != "" {
				if cerr := d.deps.Catalog.FailAnalysisRun(runID, time.Now().UTC(), err.Error()); cerr != nil {
					monitoring.Logf("ipc: catalog analysis-run update: %v", cerr)
				}
			}
			d.emit(Event{Type: "analysis_error", Payload: map[string]interface{}{"message": err.Error()}})
			return
		}
		if d.deps.Catalog != nil && runID != "" {
			if cerr := d.deps.Catalog.CompleteAnalysisRun(runID, time.Now().UTC(), result.NumAreas); cerr != nil {
				monitoring.Logf("ipc: catalog analysis-run update: %v", cerr)
			}
		}
		d.emit(Event{Type: "analysis_complete", Payload: map[string]interface{}{
			"output_path":        filepath.Join(cmd.SessionPath, "analysis_results"),
			"num_areas":          result.NumAreas,
			"missing_directions": result.MissingDirections,
		}})
	}()
	return ok(map[string]interface{}{"run_id": runID})
}

func (d *Dispatcher) getAnalysisStatus() Reply {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ok(d.status)
}

func (d *Dispatcher) getSyncData(cmd Command) Reply {
	windowS := cmd.WindowS
	if windowS <= 0 {
		windowS = synctracker.DefaultWindow.Seconds()
	}
	snap := d.deps.Tracker.Snapshot(windowS)
	d.emit(Event{Type: "sync_sample_histogram", Payload: map[string]interface{}{
		"histogram": snap.Stats.Histogram, "bin_edges": snap.Stats.BinEdges,
		"count": snap.Stats.Count, "mean_ms": snap.Stats.MeanMs, "std_ms": snap.Stats.StdMs,
	}})
	return ok(snap)
}

func (d *Dispatcher) getSystemState() Reply {
	d.mu.Lock()
	lastFault := d.lastFault
	d.mu.Unlock()
	return ok(map[string]interface{}{
		"state":          d.deps.Orchestrator.State(),
		"library_loaded": d.deps.Library.IsLoaded(),
		"last_fault":     lastFault,
	})
}

func (d *Dispatcher) listSessions(cmd Command) Reply {
	if d.deps.Catalog == nil {
		return fail(CodeCatalogDisabled, fmt.Errorf("ipc: session catalog not configured"))
	}
	rows, err := d.deps.Catalog.ListSessions(cmd.NameFilter, cmd.Limit)
	if err != nil {
		return fail(CodeIoError, err)
	}
	return ok(rows)
}

func (d *Dispatcher) getAnalysisRun(cmd Command) Reply {
	if d.deps.Catalog == nil {
		return fail(CodeCatalogDisabled, fmt.Errorf("ipc: session catalog not configured"))
	}
	row, err := d.deps.Catalog.GetAnalysisRun(cmd.RunID)
	if err != nil {
		return fail(CodeIoError, err)
	}
	return ok(row)
}

func (d *Dispatcher) renderReport(cmd Command) Reply {
	if cmd.SessionPath == "" {
		return fail(CodeValidationFailed, fmt.Errorf("ipc: render_report requires session_path"))
	}
	d.mu.Lock()
	result := d.lastResult
	if result != nil && d.status.SessionPath != cmd.SessionPath {
		result = nil
	}
	d.mu.Unlock()

	snap := d.deps.Tracker.Snapshot(synctracker.DefaultWindow.Seconds())
	path, err := d.deps.Renderer.Render(filepath.Join(cmd.SessionPath, "analysis_results"), snap, result)
	if err != nil {
		return fail(CodeIoError, err)
	}
	return ok(map[string]interface{}{"report_path": path})
}
