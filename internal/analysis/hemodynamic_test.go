package analysis

import "testing"

func TestShiftAnglesForHemodynamicsShiftsForward(t *testing.T) {
	angles := []float64{0, 10, 20, 30, 40}
	shifted := shiftAnglesForHemodynamics(angles, 2)
	want := []float64{0, 0, 0, 10, 20}
	for i := range want {
		if shifted[i] != want[i] {
			t.Fatalf("index %d: got %v, want %v", i, shifted[i], want[i])
		}
	}
}

func TestShiftAnglesForHemodynamicsZeroTauIsIdentity(t *testing.T) {
	angles := []float64{1, 2, 3}
	shifted := shiftAnglesForHemodynamics(angles, 0)
	for i := range angles {
		if shifted[i] != angles[i] {
			t.Fatalf("index %d: got %v, want %v", i, shifted[i], angles[i])
		}
	}
}

func TestTauFramesConvertsMsToFrames(t *testing.T) {
	if got := tauFrames(500, 30); got != 15 {
		t.Fatalf("got %d, want 15", got)
	}
	if got := tauFrames(100, 0); got != 0 {
		t.Fatalf("zero fps should yield 0, got %d", got)
	}
}
