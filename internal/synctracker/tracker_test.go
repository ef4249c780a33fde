package synctracker

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(us int64) func() int64 {
	return func() int64 { return us }
}

func TestRecordRejectsExcessiveDelta(t *testing.T) {
	tr := New(DefaultWindow)
	tr.nowUs = fixedClock(1_000_000)
	ok := tr.Record(1_000_000, 1_000_000-int64(200*time.Millisecond/time.Microsecond), 0)
	assert.False(t, ok)
	assert.Equal(t, 0, tr.Snapshot(0).Stats.Count)
}

func TestRecordRejectsStaleSample(t *testing.T) {
	tr := New(DefaultWindow)
	tr.nowUs = fixedClock(10_000_000)
	ok := tr.Record(1_000_000, 1_000_000, 0)
	assert.False(t, ok)
}

func TestRecordAcceptsWithinBounds(t *testing.T) {
	tr := New(DefaultWindow)
	tr.nowUs = fixedClock(1_000_000)
	ok := tr.Record(999_000, 1_000_000, 42)
	require.True(t, ok)
	snap := tr.Snapshot(0)
	require.Len(t, snap.Samples, 1)
	assert.Equal(t, 42, snap.Samples[0].FrameID)
}

func TestClearEmptiesRing(t *testing.T) {
	tr := New(DefaultWindow)
	tr.nowUs = fixedClock(1_000_000)
	tr.Record(1_000_000, 1_000_000, 0)
	tr.Clear()
	assert.Equal(t, 0, tr.Snapshot(0).Stats.Count)
}

// TestHistogramUnderJitter feeds 10000 samples
// with Δ ~ N(0, 2ms) should report a near-zero mean and ~2ms std, with the
// histogram accounting for every sample.
func TestHistogramUnderJitter(t *testing.T) {
	tr := New(24 * time.Hour)
	rng := rand.New(rand.NewSource(1))

	base := int64(10_000_000_000) // far from the staleness cutoff
	tr.nowUs = fixedClock(base)

	accepted := 0
	for i := 0; i < 10000; i++ {
		deltaUs := int64(rng.NormFloat64() * 2000)
		if deltaUs > 99000 {
			deltaUs = 99000
		}
		if deltaUs < -99000 {
			deltaUs = -99000
		}
		cameraTs := base
		stimulusTs := base - deltaUs
		if tr.Record(cameraTs, stimulusTs, i) {
			accepted++
		}
	}

	snap := tr.Snapshot(0)
	require.Equal(t, accepted, snap.Stats.Count)
	assert.Less(t, math.Abs(snap.Stats.MeanMs), 0.3)
	assert.InDelta(t, 2.0, snap.Stats.StdMs, 0.3)

	var total float64
	for _, c := range snap.Stats.Histogram {
		total += c
	}
	assert.Equal(t, float64(accepted), total)
}

func TestEvictionDropsSamplesOutsideWindow(t *testing.T) {
	tr := New(1 * time.Second)
	tr.nowUs = fixedClock(1_000_000)
	require.True(t, tr.Record(999_000, 1_000_000, 0))

	tr.nowUs = fixedClock(3_000_000)
	require.True(t, tr.Record(2_999_000, 3_000_000, 1))

	snap := tr.Snapshot(0)
	require.Len(t, snap.Samples, 1)
	assert.Equal(t, 1, snap.Samples[0].FrameID)
}
