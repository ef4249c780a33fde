package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineAxisConstantPhase(t *testing.T) {
	// Equal-and-opposite phases: the half-difference is the encoded
	// phase, mapped linearly from (-pi/2, pi/2) onto the angle range.
	const h, w = 2, 3
	forward := make([]float64, h*w)
	reverse := make([]float64, h*w)
	for i := range forward {
		forward[i] = 0.6
		reverse[i] = -0.6
	}

	out := combineAxis(forward, reverse, 0, 90, h, w, 0)
	want := 90 * (0.6 + math.Pi/2) / math.Pi
	for i, v := range out {
		assert.InDelta(t, want, v, 1e-9, "pixel %d", i)
	}
}

func TestCombineAxisCancelsCommonDelay(t *testing.T) {
	// A shared phase offset (the hemodynamic lag common to both sweep
	// directions) must drop out of the combined map.
	const h, w = 1, 4
	base := []float64{0.1, 0.2, 0.3, 0.4}
	forward := make([]float64, len(base))
	reverse := make([]float64, len(base))
	const lag = 0.9
	for i, b := range base {
		forward[i] = b + lag
		reverse[i] = -b + lag
	}

	withLag := combineAxis(forward, reverse, 0, 90, h, w, 0)
	for i, b := range base {
		want := 90 * (b + math.Pi/2) / math.Pi
		assert.InDelta(t, want, withLag[i], 1e-9, "pixel %d", i)
	}
}

func TestCombineAxisEndpointsSpanRange(t *testing.T) {
	out := combineAxis(
		[]float64{-math.Pi/2 + 1e-6, math.Pi/2 - 1e-6},
		[]float64{math.Pi/2 - 1e-6, -math.Pi/2 + 1e-6},
		-50, 50, 1, 2, 0,
	)
	assert.InDelta(t, -50, out[0], 1e-3)
	assert.InDelta(t, 50, out[1], 1e-3)
}

func TestGaussianBlurPreservesConstantField(t *testing.T) {
	const h, w = 5, 5
	field := make([]float64, h*w)
	for i := range field {
		field[i] = 7.5
	}
	out := gaussianBlur2D(field, h, w, 1.5)
	for i, v := range out {
		assert.InDelta(t, 7.5, v, 1e-9, "pixel %d", i)
	}
}

func TestGaussianBlurReducesVariance(t *testing.T) {
	const h, w = 8, 8
	field := make([]float64, h*w)
	for i := range field {
		if i%2 == 0 {
			field[i] = 1
		} else {
			field[i] = -1
		}
	}
	out := gaussianBlur2D(field, h, w, 1.0)

	varOf := func(v []float64) float64 {
		mean, sum := 0.0, 0.0
		for _, x := range v {
			mean += x
		}
		mean /= float64(len(v))
		for _, x := range v {
			sum += (x - mean) * (x - mean)
		}
		return sum / float64(len(v))
	}
	require.Less(t, varOf(out), varOf(field))
}

func TestGaussianKernelNormalized(t *testing.T) {
	for _, sigma := range []float64{0.5, 1, 3} {
		kernel := gaussianKernel1D(sigma)
		sum := 0.0
		for _, k := range kernel {
			sum += k
		}
		assert.InDelta(t, 1.0, sum, 1e-12, "sigma=%v", sigma)
	}
}
