package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/recorder"
)

func TestLoadDirectionMissingArchive(t *testing.T) {
	_, err := loadDirection(t.TempDir(), config.DirectionRL)
	var missing *MissingDirection
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "RL", missing.Direction)
}

func TestLoadDirectionRoundTrip(t *testing.T) {
	// A recorded grayscale direction loads back with the same dims and
	// one correlated angle per frame, in event-file order.
	root := t.TempDir()
	rec, err := recorder.Open(root, "roundtrip")
	require.NoError(t, err)

	const n, h, w = 4, 2, 3
	for frame := 0; frame < n; frame++ {
		pixels := make([]byte, h*w)
		for i := range pixels {
			pixels[i] = byte(10*frame + i)
		}
		require.NoError(t, rec.AppendFrame(config.DirectionLR, w, h, 1, pixels, recorder.Event{
			TimestampUs: int64(frame+1) * 1000,
			FrameIndex:  uint64(frame),
			BarAngleDeg: float64(frame) * 30,
		}))
	}
	require.NoError(t, rec.Finalize(fixtureParams([]config.Direction{config.DirectionLR}), false))

	dd, err := loadDirection(filepath.Join(root, "roundtrip"), config.DirectionLR)
	require.NoError(t, err)
	assert.Equal(t, n, dd.numFrames)
	assert.Equal(t, h, dd.height)
	assert.Equal(t, w, dd.width)
	assert.Equal(t, []float64{0, 30, 60, 90}, dd.angles)
	assert.Equal(t, 0.0, dd.frames[0])
	assert.Equal(t, 35.0, dd.frames[3*h*w+5], "last frame, last pixel")
}

func TestReadGrayscaleArchiveBGRConversion(t *testing.T) {
	// A 3-channel archive with all channels equal converts to that same
	// value per pixel.
	root := t.TempDir()
	rec, err := recorder.Open(root, "bgr")
	require.NoError(t, err)

	const n, h, w, c = 2, 2, 2, 3
	for frame := 0; frame < n; frame++ {
		pixels := make([]byte, h*w*c)
		for px := 0; px < h*w; px++ {
			v := byte(40*frame + 10*px)
			pixels[px*c], pixels[px*c+1], pixels[px*c+2] = v, v, v
		}
		require.NoError(t, rec.AppendFrame(config.DirectionLR, w, h, c, pixels, recorder.Event{
			TimestampUs: int64(frame+1) * 1000,
			FrameIndex:  uint64(frame),
		}))
	}
	require.NoError(t, rec.Finalize(fixtureParams([]config.Direction{config.DirectionLR}), false))

	gray, gotN, gotH, gotW, err := readGrayscaleArchive(filepath.Join(root, "bgr", "LR_camera.h5"))
	require.NoError(t, err)
	assert.Equal(t, n, gotN)
	assert.Equal(t, h, gotH)
	assert.Equal(t, w, gotW)
	for px := 0; px < h*w; px++ {
		assert.InDelta(t, float64(10*px), gray[px], 1.0, "frame 0 pixel %d", px)
		assert.InDelta(t, float64(40+10*px), gray[h*w+px], 1.0, "frame 1 pixel %d", px)
	}
}

func TestReadGrayscaleArchiveRejectsMissingFile(t *testing.T) {
	_, _, _, _, err := readGrayscaleArchive(filepath.Join(t.TempDir(), "nope.h5"))
	var corrupt *CorruptCamera
	require.ErrorAs(t, err, &corrupt)
}

func TestCorrelatePairsByIndex(t *testing.T) {
	events := []recorder.Event{
		{BarAngleDeg: 1.5},
		{BarAngleDeg: 3.0},
		{BarAngleDeg: 4.5},
	}
	angles, matched := correlate(3, events)
	assert.Equal(t, []float64{1.5, 3.0, 4.5}, angles)
	assert.Equal(t, 3, matched)
}

func TestCorrelateShortEventFile(t *testing.T) {
	events := []recorder.Event{{BarAngleDeg: 2.0}}
	angles, matched := correlate(3, events)
	assert.Equal(t, []float64{2.0, 0, 0}, angles)
	assert.Equal(t, 1, matched)
}

func TestReadEventsSkipsBlankLinesAndRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "LR_events.json")
	require.NoError(t, os.WriteFile(good, []byte(
		`{"timestamp_us":1000,"frame_index":0,"bar_angle_deg":0}`+"\n\n"+
			`{"timestamp_us":2000,"frame_index":1,"bar_angle_deg":5}`+"\n"), 0o644))

	events, err := readEvents(good)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 5.0, events[1].BarAngleDeg)

	bad := filepath.Join(dir, "RL_events.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json\n"), 0o644))
	_, err = readEvents(bad)
	require.Error(t, err)
}
