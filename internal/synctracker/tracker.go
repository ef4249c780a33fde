// Package synctracker implements SyncTracker: a bounded,
// time-windowed ring of camera/stimulus timestamp pairs with staleness and
// Δ rejection, and a histogram snapshot used to surface clock drift to
// operators.
package synctracker

import (
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultStaleness is the default rejection threshold for a sample whose
// timestamps are older than now-staleness.
const DefaultStaleness = 100 * time.Millisecond

// MaxDelta is the rejection threshold on |camera_ts - stimulus_ts|.
const MaxDelta = 100 * time.Millisecond

// DefaultWindow is the ring's retention window.
const DefaultWindow = 5 * time.Second

// Sample is one accepted (camera_ts, stimulus_ts, frame_id, Δ) record.
type Sample struct {
	CameraTsUs   int64
	StimulusTsUs int64
	FrameID      int
	DeltaUs      int64
}

// Stats summarizes a snapshot window in milliseconds.
type Stats struct {
	Count       int
	Matched     int
	MeanMs      float64
	StdMs       float64
	MinMs       float64
	MaxMs       float64
	Histogram   []float64
	BinEdges    []float64
}

// Snapshot is the result of Snapshot(window_s).
type Snapshot struct {
	Samples []Sample
	Stats   Stats
}

// Tracker is SyncTracker. It is enabled only while acquisition is running
// and is cleared on every start_acquisition; construction and
// Clear are equally cheap so callers may simply construct a fresh one.
type Tracker struct {
	mu        sync.Mutex
	window    time.Duration
	staleness time.Duration
	maxDelta  time.Duration
	samples   []Sample
	nowUs     func() int64
}

func New(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		window:    window,
		staleness: DefaultStaleness,
		maxDelta:  MaxDelta,
		nowUs:     func() int64 { return time.Now().UnixMicro() },
	}
}

// Record appends a sample if it passes staleness and Δ checks, returning
// false (without error — a rejected sample is an expected outcome, not a
// fault) when it does not.
func (t *Tracker) Record(cameraTsUs, stimulusTsUs int64, frameID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowUs()
	staleCutoff := now - t.staleness.Microseconds()
	if cameraTsUs < staleCutoff || stimulusTsUs < staleCutoff {
		return false
	}
	delta := cameraTsUs - stimulusTsUs
	if delta < 0 {
		delta = -delta
	}
	if delta > t.maxDelta.Microseconds() {
		return false
	}

	t.samples = append(t.samples, Sample{
		CameraTsUs:   cameraTsUs,
		StimulusTsUs: stimulusTsUs,
		FrameID:      frameID,
		DeltaUs:      cameraTsUs - stimulusTsUs,
	})
	t.evictLocked(now)
	return true
}

func (t *Tracker) evictLocked(now int64) {
	cutoff := now - t.window.Microseconds()
	i := 0
	for i < len(t.samples) && t.samples[i].CameraTsUs < cutoff {
		i++
	}
	if i > 0 {
		t.samples = append([]Sample(nil), t.samples[i:]...)
	}
}

// Clear empties the ring; called on every start_acquisition.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = nil
}

// Snapshot returns every retained sample within the last windowS seconds
// (0 means "the whole ring") plus summary statistics in milliseconds.
func (t *Tracker) Snapshot(windowS float64) Snapshot {
	t.mu.Lock()
	samples := append([]Sample(nil), t.samples...)
	t.mu.Unlock()

	if windowS > 0 && len(samples) > 0 {
		cutoff := samples[len(samples)-1].CameraTsUs - int64(windowS*1e6)
		i := 0
		for i < len(samples) && samples[i].CameraTsUs < cutoff {
			i++
		}
		samples = samples[i:]
	}

	return Snapshot{Samples: samples, Stats: computeStats(samples)}
}

const numHistogramBins = 20

func computeStats(samples []Sample) Stats {
	st := Stats{Count: len(samples), Matched: len(samples)}
	if len(samples) == 0 {
		return st
	}

	deltasMs := make([]float64, len(samples))
	for i, s := range samples {
		deltasMs[i] = float64(s.DeltaUs) / 1000.0
	}

	st.MeanMs, st.StdMs = stat.MeanStdDev(deltasMs, nil)
	st.MinMs, st.MaxMs = deltasMs[0], deltasMs[0]
	for _, d := range deltasMs {
		if d < st.MinMs {
			st.MinMs = d
		}
		if d > st.MaxMs {
			st.MaxMs = d
		}
	}

	lo, hi := st.MinMs, st.MaxMs
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	edges := make([]float64, numHistogramBins+1)
	floats.Span(edges, lo, hi)
	// stat.Histogram wants sorted data and a top edge strictly above the
	// largest value, so the maximum still lands in the last bin.
	edges[numHistogramBins] = math.Nextafter(hi, math.Inf(1))
	sorted := append([]float64(nil), deltasMs...)
	sort.Float64s(sorted)
	counts := make([]float64, numHistogramBins)
	stat.Histogram(counts, edges, sorted, nil)

	st.BinEdges = edges
	st.Histogram = counts
	return st
}
