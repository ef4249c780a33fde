package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// phaseMagnitude runs one real FFT per pixel of a (n,h,w) grayscale
// frame stack and extracts the complex coefficient at freqBin — the
// temporal frequency the stimulus modulates at, one cycle per
// acquisition.Cycles sweep. Returns magnitude(y,x) and
// phase(y,x) in (-pi, pi], both row-major h*w.
func phaseMagnitude(frames []float64, n, h, w, freqBin int) (magnitude, phase []float64, err error) {
	if n < 2 {
		return nil, nil, &InsufficientFrames{Got: n, Want: 2}
	}
	if freqBin < 0 || freqBin >= n/2+1 {
		freqBin = 1
	}

	ft := fourier.NewFFT(n)
	magnitude = make([]float64, h*w)
	phase = make([]float64, h*w)

	series := make([]float64, n)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix := y*w + x
			for t := 0; t < n; t++ {
				series[t] = frames[t*h*w+pix]
			}
			coeffs := ft.Coefficients(nil, series)
			c := coeffs[freqBin]
			magnitude[pix] = cmplx.Abs(c) / float64(n)
			phase[pix] = wrapPi(cmplx.Phase(c))
		}
	}
	return magnitude, phase, nil
}

// wrapPi wraps an angle in radians to (-pi, pi].
func wrapPi(rad float64) float64 {
	wrapped := math.Mod(rad+math.Pi, 2*math.Pi)
	if wrapped <= 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}
