package stimulus

import (
	"math"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
)

// sphericalCoords back-projects a display pixel into the animal's
// visual field: azimuth is the horizontal angle, altitude the vertical
// angle, both in degrees, relative to the eye position implied by
// monitor.viewing_distance_cm and corrected for the monitor's lateral
// and tilt mounting angles.
func sphericalCoords(px, py int, width, height int, m config.Monitor) (azimuthDeg, altitudeDeg float64) {
	xCm := (float64(px) - float64(width)/2) * (m.WidthCm / float64(width))
	yCm := (float64(py) - float64(height)/2) * (m.HeightCm / float64(height))

	azimuth := math.Atan2(xCm, m.ViewingDistanceCm) * 180 / math.Pi
	altitude := math.Atan2(yCm, m.ViewingDistanceCm) * 180 / math.Pi

	return azimuth + m.LateralAngleDeg, altitude + m.TiltAngleDeg
}

// halfFOVDeg returns the monitor's half field-of-view in degrees along
// the sweep axis implied by horizontal, used to derive each direction's
// start/end bar angle from monitor geometry alone.
func halfFOVDeg(m config.Monitor, horizontal bool) float64 {
	if horizontal {
		return math.Atan2(m.WidthCm/2, m.ViewingDistanceCm) * 180 / math.Pi
	}
	return math.Atan2(m.HeightCm/2, m.ViewingDistanceCm) * 180 / math.Pi
}

// sweepRange returns the (start, end) angle in degrees that the bar
// center travels across for the *materialized* direction (LR or TB);
// RL/BT are defined purely as time-reversals.
func sweepRange(primary config.Direction, m config.Monitor, lateral, tilt float64) (start, end float64) {
	horizontal := primary == config.DirectionLR
	half := halfFOVDeg(m, horizontal)
	if horizontal {
		return -half + lateral, half + lateral
	}
	return -half + tilt, half + tilt
}
