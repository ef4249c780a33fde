// Package stimulus implements the pure per-frame StimulusGenerator and
// the StimulusLibrary that pre-generates, persists, and serves indexed
// frame sequences for each sweep direction.
package stimulus

import "github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"

// Frame is one rendered grayscale stimulus frame plus its header.
// Pixels are row-major, H*W, one byte per pixel.
type Frame struct {
	Direction     config.Direction
	FrameIndex    int
	BarAngleDeg   float64
	TimestampUs   int64
	Width, Height int
	Pixels        []uint8
}

// DatasetInfo describes the frame count and timing of one direction's
// sweep, derived from monitor.fps, the sweep's angular span and the
// stimulus drift speed.
type DatasetInfo struct {
	TotalFrames int
	FPS         float64
	DurationS   float64
	StartAngle  float64
	EndAngle    float64
}

// primaryOf maps a virtual reversed direction (RL, BT) to the direction
// that is actually materialized (LR, TB respectively), per Invariant
// L1: only LR and TB are ever rendered.
func primaryOf(d config.Direction) config.Direction {
	switch d {
	case config.DirectionRL:
		return config.DirectionLR
	case config.DirectionBT:
		return config.DirectionTB
	default:
		return d
	}
}

// isReversed reports whether d is a time-reversed virtual view.
func isReversed(d config.Direction) bool {
	return d == config.DirectionRL || d == config.DirectionBT
}

// isHorizontal reports whether d sweeps azimuth (true) or altitude (false).
func isHorizontal(d config.Direction) bool {
	p := primaryOf(d)
	return p == config.DirectionLR
}
