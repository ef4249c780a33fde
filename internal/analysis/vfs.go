package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// visualFieldSign computes the continuous Visual Field Sign field:
// at each pixel, sign(sin(angle_between(grad_azimuth,
// grad_elevation))), smoothed with sigma, before thresholding.
func visualFieldSign(azimuth, elevation []float64, h, w int, sigma float64) []float64 {
	gazX, gazY := gradient2D(azimuth, h, w)
	gelX, gelY := gradient2D(elevation, h, w)

	raw := make([]float64, h*w)
	for i := range raw {
		dot := gazX[i]*gelX[i] + gazY[i]*gelY[i]
		cross := gazX[i]*gelY[i] - gazY[i]*gelX[i]
		angle := math.Atan2(cross, dot)
		switch s := math.Sin(angle); {
		case s > 0:
			raw[i] = 1
		case s < 0:
			raw[i] = -1
		}
	}
	if sigma > 0 {
		raw = gaussianBlur2D(raw, h, w, sigma)
	}
	return raw
}

// thresholdSign binarizes a smoothed VFS field at thresholdSD standard
// deviations: |value| below the threshold becomes 0
// (unsigned background); otherwise +1 or -1.
func thresholdSign(smoothed []float64, thresholdSD float64) []int32 {
	std := stat.StdDev(smoothed, nil)
	out := make([]int32, len(smoothed))
	if std == 0 {
		return out
	}
	cutoff := thresholdSD * std
	for i, v := range smoothed {
		switch {
		case v > cutoff:
			out[i] = 1
		case v < -cutoff:
			out[i] = -1
		default:
			out[i] = 0
		}
	}
	return out
}

// gradient2D returns central-difference partial derivatives of a
// row-major h*w field with respect to x (column) and y (row), using a
// one-sided difference at the borders.
func gradient2D(field []float64, h, w int) (gx, gy []float64) {
	gx = make([]float64, h*w)
	gy = make([]float64, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			switch {
			case x == 0:
				gx[i] = field[i+1] - field[i]
			case x == w-1:
				gx[i] = field[i] - field[i-1]
			default:
				gx[i] = (field[i+1] - field[i-1]) / 2
			}
			switch {
			case y == 0:
				gy[i] = field[i+w] - field[i]
			case y == h-1:
				gy[i] = field[i] - field[i-w]
			default:
				gy[i] = (field[i+w] - field[i-w]) / 2
			}
		}
	}
	return gx, gy
}
