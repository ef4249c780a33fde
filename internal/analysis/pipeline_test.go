package analysis

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/recorder"
)

// Synthetic session geometry shared by the fixtures: small enough that a
// full four-direction run is cheap, large enough for gradients and
// segmentation to mean something.
const (
	fixtureFrames = 32
	fixtureWidth  = 8
	fixtureHeight = 8
)

// fixtureParams is the parameter snapshot written into the synthetic
// session's metadata.json. Smoothing and hemodynamic shift are zeroed so
// recovered phases stay exactly where the fixture put them.
func fixtureParams(directions []config.Direction) config.Snapshot {
	return config.Snapshot{
		Monitor: config.Monitor{
			ResolutionWidthPx: fixtureWidth, ResolutionHeightPx: fixtureHeight,
			WidthCm: 40, HeightCm: 30, ViewingDistanceCm: 20,
			RefreshRateHz: 60, FPS: 10,
		},
		Camera:      config.Camera{FPS: 30, WidthPx: fixtureWidth, HeightPx: fixtureHeight},
		Acquisition: config.Acquisition{Cycles: 1, Directions: directions},
		Analysis: config.Analysis{
			SmoothingSigma:   0,
			PhaseFilterSigma: 0,
			GradientWindow:   1,
			MinAreaMM2:       0,
			VFSThresholdSD:   0.5,
			HemodynamicTauMs: 0,
		},
		Session: config.Session{SessionName: "synthetic"},
	}
}

// writeSyntheticSession records a session whose every pixel oscillates as
// 128 + 60*cos(2*pi*t/n + phaseAt(d, x, y)), one cycle per direction, and
// returns the finalized session directory.
func writeSyntheticSession(t *testing.T, name string, directions []config.Direction, phaseAt func(d config.Direction, x, y int) float64) string {
	t.Helper()
	root := t.TempDir()
	rec, err := recorder.Open(root, name)
	require.NoError(t, err)

	n, h, w := fixtureFrames, fixtureHeight, fixtureWidth
	for _, d := range directions {
		for frame := 0; frame < n; frame++ {
			pixels := make([]byte, h*w)
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					carrier := 2*math.Pi*float64(frame)/float64(n) + phaseAt(d, x, y)
					pixels[y*w+x] = uint8(math.Round(128 + 60*math.Cos(carrier)))
				}
			}
			angle := 90 * float64(frame) / float64(n-1)
			if d == config.DirectionRL || d == config.DirectionBT {
				angle = 90 - angle
			}
			require.NoError(t, rec.AppendFrame(d, w, h, 1, pixels, recorder.Event{
				TimestampUs: int64(frame+1) * 33_000,
				FrameIndex:  uint64(frame),
				BarAngleDeg: angle,
			}))
		}
		require.NoError(t, rec.FlushDirection(d))
	}
	require.NoError(t, rec.Finalize(fixtureParams(directions), false))
	return filepath.Join(root, name)
}

// retinotopicPhase encodes an azimuth gradient along x and an elevation
// gradient along y whose direction flips between the top and bottom half
// of the frame, so the visual field sign splits into a +1 and a -1 patch.
func retinotopicPhase(d config.Direction, x, y int) float64 {
	const kx, ky = 0.15, 0.2
	elev := ky * float64(y)
	if y >= fixtureHeight/2 {
		elev = ky * float64(fixtureHeight-1-y)
	}
	switch d {
	case config.DirectionLR:
		return kx * float64(x)
	case config.DirectionRL:
		return -kx * float64(x)
	case config.DirectionTB:
		return elev
	default: // BT
		return -elev
	}
}

func TestRunRecoversEncodedPhase(t *testing.T) {
	// Every pixel oscillates with phase 0.7; the recovered LR phase map
	// must sit within 0.05 rad of it at (at least) 95% of pixels.
	dirs := []config.Direction{config.DirectionLR, config.DirectionRL}
	session := writeSyntheticSession(t, "phase-recovery", dirs, func(d config.Direction, x, y int) float64 {
		if d == config.DirectionLR {
			return 0.7
		}
		return -0.7
	})

	result, err := NewPipeline().Run(context.Background(), session, nil)
	require.NoError(t, err)

	phaseLR := result.Phase[config.DirectionLR]
	require.Len(t, phaseLR, fixtureWidth*fixtureHeight)
	within := 0
	for _, p := range phaseLR {
		if math.Abs(p-0.7) <= 0.05 {
			within++
		}
	}
	assert.GreaterOrEqual(t, within, len(phaseLR)*95/100)

	// Constant phase difference means a flat azimuth map inside [0, 90].
	require.NotNil(t, result.Azimuth)
	lo, hi := minMax(result.Azimuth)
	assert.Less(t, hi-lo, 1e-6)
	assert.GreaterOrEqual(t, lo, 0.0)
	assert.LessOrEqual(t, hi, 90.0)
}

func TestRunMissingAxisIsNonFatal(t *testing.T) {
	dirs := []config.Direction{config.DirectionLR, config.DirectionRL}
	session := writeSyntheticSession(t, "azimuth-only", dirs, retinotopicPhase)

	result, err := NewPipeline().Run(context.Background(), session, nil)
	require.NoError(t, err)

	assert.NotNil(t, result.Azimuth)
	assert.Nil(t, result.Elevation)
	assert.Nil(t, result.Sign, "VFS needs both axes")
	assert.Nil(t, result.AreaMap)
	assert.Equal(t, []string{"TB", "BT"}, result.MissingDirections)
}

func TestRunFailsWithoutAnyCompleteAxis(t *testing.T) {
	dirs := []config.Direction{config.DirectionLR}
	session := writeSyntheticSession(t, "lr-only", dirs, retinotopicPhase)

	_, err := NewPipeline().Run(context.Background(), session, nil)
	require.Error(t, err)
}

func TestRunFullSessionSegmentsSignPatches(t *testing.T) {
	session := writeSyntheticSession(t, "full", config.AllDirections, retinotopicPhase)

	result, err := NewPipeline().Run(context.Background(), session, nil)
	require.NoError(t, err)

	assert.Empty(t, result.MissingDirections)
	require.NotNil(t, result.Azimuth)
	require.NotNil(t, result.Elevation)
	require.NotNil(t, result.Sign)
	require.NotNil(t, result.AreaMap)

	// The elevation gradient flips halfway down the frame, so both sign
	// polarities must appear and segmentation must find at least one
	// patch of each.
	var pos, neg bool
	for _, s := range result.Sign {
		if s > 0 {
			pos = true
		}
		if s < 0 {
			neg = true
		}
	}
	assert.True(t, pos)
	assert.True(t, neg)
	assert.GreaterOrEqual(t, result.NumAreas, 2)

	// Persisted outputs land under analysis_results/.
	outDir := filepath.Join(session, "analysis_results")
	for _, f := range []string{"analysis_results.h5", "azimuth_map.png", "elevation_map.png", "sign_map.png", "area_map.png", "magnitude_LR.png"} {
		_, err := os.Stat(filepath.Join(outDir, f))
		assert.NoError(t, err, f)
	}
}

// TestRunIdempotent checks that running analysis twice over the same
// session yields bit-identical sign and area maps.
func TestRunIdempotent(t *testing.T) {
	session := writeSyntheticSession(t, "idempotent", config.AllDirections, retinotopicPhase)

	p := NewPipeline()
	first, err := p.Run(context.Background(), session, nil)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), session, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Sign, second.Sign)
	assert.Equal(t, first.AreaMap, second.AreaMap)
	assert.Equal(t, first.NumAreas, second.NumAreas)
}

func TestRunRejectsConcurrentSecondRun(t *testing.T) {
	p := NewPipeline()
	p.running.Store(true)
	_, err := p.Run(context.Background(), t.TempDir(), nil)
	var already *AlreadyRunning
	require.ErrorAs(t, err, &already)
	p.running.Store(false)
}

func TestRunReportsStageProgress(t *testing.T) {
	dirs := []config.Direction{config.DirectionLR, config.DirectionRL}
	session := writeSyntheticSession(t, "progress", dirs, retinotopicPhase)

	progress := make(chan ProgressEvent, 256)
	_, err := NewPipeline().Run(context.Background(), session, progress)
	require.NoError(t, err)
	close(progress)

	seen := make(map[Stage]bool)
	for p := range progress {
		seen[p.Stage] = true
	}
	for _, s := range []Stage{StageLoad, StageHemodynamic, StageFourier, StageRetinotopy, StagePersist} {
		assert.True(t, seen[s], string(s))
	}
}
