package analysis

import (
	"math"
	"testing"
)

func TestWrapPiStaysInRange(t *testing.T) {
	cases := []float64{0, math.Pi, -math.Pi, 3 * math.Pi, -3 * math.Pi, 0.5}
	for _, c := range cases {
		w := wrapPi(c)
		if w <= -math.Pi || w > math.Pi+1e-9 {
			t.Fatalf("wrapPi(%v) = %v out of (-pi, pi]", c, w)
		}
	}
}

func TestPhaseMagnitudeRecoversKnownSinusoid(t *testing.T) {
	const n, h, w = 64, 1, 1
	freq := 3
	frames := make([]float64, n*h*w)
	for t := 0; t < n; t++ {
		phase := 2 * math.Pi * float64(freq) * float64(t) / float64(n)
		frames[t] = 100 + 20*math.Cos(phase+0.7)
	}

	mag, phase, err := phaseMagnitude(frames, n, h, w, freq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mag[0] < 9 || mag[0] > 11 {
		t.Fatalf("expected magnitude near 10, got %v", mag[0])
	}
	if diff := math.Abs(phase[0] - 0.7); diff > 0.05 {
		t.Fatalf("expected phase near 0.7, got %v", phase[0])
	}
}

func TestPhaseMagnitudeRejectsTooFewFrames(t *testing.T) {
	_, _, err := phaseMagnitude([]float64{1}, 1, 1, 1, 0)
	if err == nil {
		t.Fatal("expected InsufficientFrames error")
	}
}
