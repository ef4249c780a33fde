package stimulus

import (
	"math"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
)

// Generator is the pure per-frame stimulus generator. It holds
// no state beyond the rendering backend; every method is a function of
// its explicit inputs, so CPU and GPU backends can be swapped without
// changing call sites (design note: "small trait/interface with two
// implementations").
type Generator struct {
	backend Backend
}

// NewGenerator wires a rendering backend. Pass nil to get the CPU
// fallback, which every deployment can run without device drivers.
func NewGenerator(backend Backend) *Generator {
	if backend == nil {
		backend = CPUBackend{}
	}
	return &Generator{backend: backend}
}

// DatasetInfo computes the frame count, fps, and angle range for one
// sweep of `direction` (a single cycle; the caller repeats playback for
// additional cycles rather than re-rendering).
func (g *Generator) DatasetInfo(direction config.Direction, m config.Monitor, st config.Stimulus) DatasetInfo {
	primary := primaryOf(direction)
	start, end := sweepRange(primary, m, m.LateralAngleDeg, m.TiltAngleDeg)
	span := math.Abs(end - start)
	durationS := span / st.DriftSpeedDegPerSec
	totalFrames := int(math.Round(m.FPS * durationS))
	if totalFrames < 1 {
		totalFrames = 1
	}
	if isReversed(direction) {
		start, end = end, start
	}
	return DatasetInfo{
		TotalFrames: totalFrames,
		FPS:         m.FPS,
		DurationS:   durationS,
		StartAngle:  start,
		EndAngle:    end,
	}
}

// FrameAngle returns the bar's center angle, in degrees, at frameIndex
// out of totalFrames for direction, advancing linearly from start to end.
func (g *Generator) FrameAngle(direction config.Direction, frameIndex, totalFrames int, info DatasetInfo) float64 {
	if totalFrames <= 1 {
		return info.StartAngle
	}
	frac := float64(frameIndex) / float64(totalFrames-1)
	return info.StartAngle + frac*(info.EndAngle-info.StartAngle)
}

// RenderFrame renders one frame of `direction` at bar center `angle`.
// showBar=false renders a blank background frame (used for baseline
// and between-trial phases).
func (g *Generator) RenderFrame(direction config.Direction, angle float64, showBar bool, frameIndex int, m config.Monitor, st config.Stimulus) (Frame, error) {
	primary := primaryOf(direction)
	params := RenderParams{
		Direction:  primary,
		Horizontal: isHorizontal(primary),
		BarAngle:   angle,
		ShowBar:    showBar,
		FrameIndex: frameIndex,
		Monitor:    m,
		Stimulus:   st,
	}
	pixels, err := g.backend.RenderFrame(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Direction:   direction,
		FrameIndex:  frameIndex,
		BarAngleDeg: angle,
		Width:       m.ResolutionWidthPx,
		Height:      m.ResolutionHeightPx,
		Pixels:      pixels,
	}, nil
}
