// Package analysis implements AnalysisPipeline: the
// post-acquisition Fourier-retinotopy pipeline that turns a recorded
// session directory into azimuth/elevation/sign/area maps and rendered
// PNG previews.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/monitoring"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/recorder"
)

// Stage names a pipeline step, reported on the progress channel.
type Stage string

const (
	StageLoad          Stage = "load"
	StageCorrelate     Stage = "correlate"
	StageHemodynamic   Stage = "hemodynamic"
	StageFourier       Stage = "fourier"
	StageRetinotopy    Stage = "retinotopy"
	StageVFS           Stage = "vfs"
	StageSegmentation  Stage = "segmentation"
	StagePersist       Stage = "persist"
)

// ProgressEvent reports pipeline progress.
type ProgressEvent struct {
	Stage    Stage
	Fraction float64
}

// Result is the full set of maps produced by one analysis run.
type Result struct {
	Width, Height int
	Azimuth       []float64 // degrees, nil if the azimuth axis was unavailable
	Elevation     []float64 // degrees, nil if the elevation axis was unavailable
	Magnitude     map[config.Direction][]float64
	Phase         map[config.Direction][]float64
	Sign          []int32 // -1, 0, +1 per pixel
	AreaMap       []int32 // 0 = background, >0 = labeled region
	NumAreas      int

	// MissingDirections lists directions the session did not record.
	// Non-fatal as long as at least one full axis survived; callers
	// surface it so a partial session is never mistaken for a complete
	// one.
	MissingDirections []string
}

// Pipeline runs AnalysisPipeline. One process-wide instance enforces the
// "one analysis per process" reentrancy rule,
// following the same single-active-run idiom as a lidar run manager:
// an atomic flag gates Run rather than a full lifecycle registry, since
// analysis has no concurrent multi-sensor dimension to track.
type Pipeline struct {
	running atomic.Bool
}

func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// IsRunning reports whether a run is currently in progress.
func (p *Pipeline) IsRunning() bool {
	return p.running.Load()
}

// Run executes the full pipeline against sessionDir and returns the
// result set. A second concurrent call returns AlreadyRunning. Ctx
// cancellation is honored only between stages.
func (p *Pipeline) Run(ctx context.Context, sessionDir string, progress chan<- ProgressEvent) (Result, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Result{}, &AlreadyRunning{}
	}
	defer p.running.Store(false)

	report := func(s Stage, frac float64) {
		if progress == nil {
			return
		}
		select {
		case progress <- ProgressEvent{Stage: s, Fraction: frac}:
		default:
			monitoring.Logf("analysis: progress channel full, dropping %s", s)
		}
	}

	meta, err := loadMetadata(sessionDir)
	if err != nil {
		return Result{}, fmt.Errorf("analysis: reading metadata: %w", err)
	}

	report(StageLoad, 0)
	loaded := make(map[config.Direction]*directionData)
	var missingDirections []string
	for _, d := range config.AllDirections {
		dd, err := loadDirection(sessionDir, d)
		if err != nil {
			var missing *MissingDirection
			if errors.As(err, &missing) {
				missingDirections = append(missingDirections, missing.Direction)
				monitoring.Logf("analysis: %v, continuing without it", missing)
				continue
			}
			return Result{}, err
		}
		loaded[d] = dd
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	report(StageLoad, 1)

	report(StageHemodynamic, 0)
	tau := tauFrames(meta.Parameters.Analysis.HemodynamicTauMs, meta.Parameters.Camera.FPS)
	for _, dd := range loaded {
		dd.angles = shiftAnglesForHemodynamics(dd.angles, tau)
	}
	report(StageHemodynamic, 1)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	report(StageFourier, 0)
	magnitude := make(map[config.Direction][]float64)
	phase := make(map[config.Direction][]float64)
	var width, height int
	for d, dd := range loaded {
		if dd.numFrames < 2 {
			return Result{}, &InsufficientFrames{Direction: string(d), Got: dd.numFrames, Want: 2}
		}
		mag, ph, err := phaseMagnitude(dd.frames, dd.numFrames, dd.height, dd.width, meta.Parameters.Acquisition.Cycles)
		if err != nil {
			return Result{}, fmt.Errorf("analysis: FFT for %s: %w", d, err)
		}
		magnitude[d] = mag
		phase[d] = ph
		width, height = dd.width, dd.height
	}
	report(StageFourier, 1)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	report(StageRetinotopy, 0)
	sigma := meta.Parameters.Analysis.SmoothingSigma
	var azimuth, elevation []float64
	if lr, ok := loaded[config.DirectionLR]; ok {
		if _, ok := loaded[config.DirectionRL]; ok {
			start, end := axisRange(lr)
			azimuth = combineAxis(phase[config.DirectionLR], phase[config.DirectionRL], start, end, height, width, sigma)
		}
	}
	if tb, ok := loaded[config.DirectionTB]; ok {
		if _, ok := loaded[config.DirectionBT]; ok {
			start, end := axisRange(tb)
			elevation = combineAxis(phase[config.DirectionTB], phase[config.DirectionBT], start, end, height, width, sigma)
		}
	}
	if azimuth == nil && elevation == nil {
		return Result{}, fmt.Errorf("analysis: no complete axis available (need LR+RL or TB+BT)")
	}
	report(StageRetinotopy, 1)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var signMap []int32
	if azimuth != nil && elevation != nil {
		report(StageVFS, 0)
		raw := visualFieldSign(azimuth, elevation, height, width, meta.Parameters.Analysis.PhaseFilterSigma)
		signMap = thresholdSign(raw, meta.Parameters.Analysis.VFSThresholdSD)
		report(StageVFS, 1)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var areaMap []int32
	numAreas := 0
	if signMap != nil {
		report(StageSegmentation, 0)
		pxArea := pixelAreaMM2(meta.Parameters.Monitor.WidthCm, meta.Parameters.Monitor.HeightCm, width, height)
		areaMap = segment(signMap, height, width, pxArea, meta.Parameters.Analysis.MinAreaMM2)
		for _, v := range areaMap {
			if int(v) > numAreas {
				numAreas = int(v)
			}
		}
		report(StageSegmentation, 1)
	}

	result := Result{
		Width: width, Height: height,
		Azimuth: azimuth, Elevation: elevation,
		Magnitude: magnitude, Phase: phase,
		Sign: signMap, AreaMap: areaMap, NumAreas: numAreas,
		MissingDirections: missingDirections,
	}

	report(StagePersist, 0)
	if err := persist(sessionDir, result); err != nil {
		return Result{}, fmt.Errorf("analysis: persisting results: %w", err)
	}
	report(StagePersist, 1)

	return result, nil
}

func axisRange(dd *directionData) (start, end float64) {
	if len(dd.angles) == 0 {
		return 0, 0
	}
	return dd.angles[0], dd.angles[len(dd.angles)-1]
}

func loadMetadata(sessionDir string) (recorder.Metadata, error) {
	data, err := os.ReadFile(filepath.Join(sessionDir, "metadata.json"))
	if err != nil {
		return recorder.Metadata{}, err
	}
	var m recorder.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return recorder.Metadata{}, err
	}
	return m, nil
}

// persist writes the HDF5 result archive and PNG previews under
// sessionDir/analysis_results/.
func persist(sessionDir string, r Result) error {
	outDir := filepath.Join(sessionDir, "analysis_results")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if err := writeResultsArchive(filepath.Join(outDir, "analysis_results.h5"), r); err != nil {
		return err
	}
	if r.Azimuth != nil {
		if err := writeJetPNG(filepath.Join(outDir, "azimuth_map.png"), r.Azimuth, r.Height, r.Width, minMax(r.Azimuth)); err != nil {
			return err
		}
	}
	if r.Elevation != nil {
		if err := writeJetPNG(filepath.Join(outDir, "elevation_map.png"), r.Elevation, r.Height, r.Width, minMax(r.Elevation)); err != nil {
			return err
		}
	}
	if r.Sign != nil {
		if err := writeBipolarPNG(filepath.Join(outDir, "sign_map.png"), r.Sign, r.Height, r.Width); err != nil {
			return err
		}
	}
	if r.AreaMap != nil {
		if err := writeCategoricalPNG(filepath.Join(outDir, "area_map.png"), r.AreaMap, r.Height, r.Width); err != nil {
			return err
		}
	}
	for _, d := range config.AllDirections {
		mag, ok := r.Magnitude[d]
		if !ok {
			continue
		}
		path := filepath.Join(outDir, fmt.Sprintf("magnitude_%s.png", d))
		if err := writeMagnitudePlot(path, fmt.Sprintf("Response magnitude, %s", d), mag, r.Height, r.Width); err != nil {
			return err
		}
	}
	return nil
}

func minMax(v []float64) (min, max float64) {
	if len(v) == 0 {
		return 0, 0
	}
	min, max = v[0], v[0]
	for _, x := range v {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return min, max
}
