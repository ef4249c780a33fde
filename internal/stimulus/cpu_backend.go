package stimulus

import "math"

// CPUBackend renders frames with plain Go float64 math. It is the
// reference implementation: GPUBackend must reproduce it within one
// grayscale level per pixel.
type CPUBackend struct{}

func (CPUBackend) RenderFrame(p RenderParams) ([]uint8, error) {
	w, h := p.Monitor.ResolutionWidthPx, p.Monitor.ResolutionHeightPx
	pixels := make([]uint8, w*h)

	background := clampByte(p.Stimulus.BackgroundLuminance)
	barHalfWidth := p.Stimulus.BarWidthDeg / 2

	// Counter-phase flip: the checkerboard flips polarity at the
	// strobe rate, driven by the frame's presentation time rather than
	// its index, so strobe rate is independent of drift speed.
	frameTimeS := float64(p.FrameIndex) / p.Monitor.FPS
	strobePhaseFlip := math.Mod(math.Floor(frameTimeS*2*p.Stimulus.StrobeRateHz), 2) == 1

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if !p.ShowBar {
				pixels[idx] = background
				continue
			}
			azimuth, altitude := sphericalCoords(x, y, w, h, p.Monitor)
			coord := altitude
			period := p.Stimulus.CheckerSizeDeg
			if p.Horizontal {
				coord = azimuth
			}

			if math.Abs(coord-p.BarAngle) > barHalfWidth {
				pixels[idx] = background
				continue
			}

			pixels[idx] = checkerPixel(azimuth, altitude, period, p.Stimulus.Contrast, p.Stimulus.BackgroundLuminance, strobePhaseFlip)
		}
	}
	return pixels, nil
}

// checkerPixel evaluates the counter-phase checkerboard in spherical
// coordinates at period `period` degrees, amplitude scaled by contrast
// around background, flipping sign when strobePhaseFlip is set.
func checkerPixel(azimuth, altitude, period, contrast, background float64, strobePhaseFlip bool) uint8 {
	if period <= 0 {
		return clampByte(background)
	}
	cellA := math.Floor(azimuth / period)
	cellB := math.Floor(altitude / period)
	parity := math.Mod(cellA+cellB, 2)
	high := parity == 0
	if strobePhaseFlip {
		high = !high
	}
	amplitude := contrast * 127
	if high {
		return clampByte(background + amplitude)
	}
	return clampByte(background - amplitude)
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
