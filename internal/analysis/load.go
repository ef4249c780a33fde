package analysis

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/monitoring"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/recorder"
	hdf5 "github.com/sbinet/go-hdf5/pkg/hdf5"
)

// directionData is one direction's loaded, grayscale-normalized, and
// event-correlated frame series, ready for hemodynamic shifting and FFT.
type directionData struct {
	direction     config.Direction
	width, height int
	frames        []float64 // n*h*w, row-major, frame-major
	numFrames     int
	angles        []float64 // one bar_angle_deg per frame, after correlation
}

// loadDirection reads `{DIR}_camera.h5` and `{DIR}_events.json` from
// sessionDir and returns a grayscale, event-correlated frame series.
func loadDirection(sessionDir string, d config.Direction) (*directionData, error) {
	camPath := filepath.Join(sessionDir, string(d)+"_camera.h5")
	if _, err := os.Stat(camPath); err != nil {
		return nil, &MissingDirection{Direction: string(d)}
	}

	gray, n, h, w, err := readGrayscaleArchive(camPath)
	if err != nil {
		return nil, err
	}

	events, err := readEvents(filepath.Join(sessionDir, string(d)+"_events.json"))
	if err != nil {
		return nil, fmt.Errorf("analysis: reading events for %s: %w", d, err)
	}

	angles, matched := correlate(n, events)
	if matched < n {
		// Unmatched frames keep a zero angle (no net modulation); the
		// count is worth a log line so a short event file is visible.
		monitoring.Logf("analysis: %s: only %d of %d frames had paired events", d, matched, n)
	}

	return &directionData{
		direction: d,
		width:     w,
		height:    h,
		frames:    gray,
		numFrames: n,
		angles:    angles,
	}, nil
}

// readGrayscaleArchive opens a camera HDF5 archive and returns a
// grayscale float64 stack regardless of whether the stored dataset is
// 3D (already grayscale) or 4D (BGR/BGRA, converted via ITU-R BT.601
// weights).
func readGrayscaleArchive(path string) (gray []float64, n, h, w int, err error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, 0, 0, 0, &CorruptCamera{Path: path, Err: err}
	}
	defer f.Close()

	ds, err := f.OpenDataset("frames")
	if err != nil {
		return nil, 0, 0, 0, &CorruptCamera{Path: path, Err: err}
	}
	defer ds.Close()

	space := ds.Space()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, 0, 0, 0, &CorruptCamera{Path: path, Err: err}
	}

	idims := make([]int, len(dims))
	for i, v := range dims {
		idims[i] = int(v)
	}

	switch len(dims) {
	case 3:
		n, h, w = idims[0], idims[1], idims[2]
		buf := make([]uint8, n*h*w)
		if err := ds.Read(&buf[0]); err != nil {
			return nil, 0, 0, 0, &CorruptCamera{Path: path, Err: err}
		}
		gray = make([]float64, len(buf))
		for i, v := range buf {
			gray[i] = float64(v)
		}
	case 4:
		n, h, w = idims[0], idims[1], idims[2]
		channels := idims[3]
		if channels != 3 && channels != 4 {
			return nil, 0, 0, 0, &ShapeMismatch{Path: path, Dims: idims}
		}
		buf := make([]uint8, n*h*w*channels)
		if err := ds.Read(&buf[0]); err != nil {
			return nil, 0, 0, 0, &CorruptCamera{Path: path, Err: err}
		}
		gray = bgrToGrayscale(buf, n*h*w, channels)
	default:
		return nil, 0, 0, 0, &ShapeMismatch{Path: path, Dims: idims}
	}
	return gray, n, h, w, nil
}

// bgrToGrayscale converts count pixels of channels-interleaved BGR(A)
// uint8 data to grayscale float64 using ITU-R BT.601 luminance weights.
func bgrToGrayscale(buf []byte, count, channels int) []float64 {
	const wB, wG, wR = 0.114, 0.587, 0.299
	out := make([]float64, count)
	for i := 0; i < count; i++ {
		base := i * channels
		b, g, r := float64(buf[base]), float64(buf[base+1]), float64(buf[base+2])
		out[i] = wB*b + wG*g + wR*r
	}
	return out
}

// readEvents parses an ndjson `{DIR}_events.json` file into a slice of
// recorder.Event in file order.
func readEvents(path string) ([]recorder.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []recorder.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e recorder.Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("analysis: corrupt event line: %w", err)
		}
		events = append(events, e)
	}
	return events, sc.Err()
}

// correlate pairs n camera frames against events by index (the
// camera-triggered design makes this O(n), not a timestamp search). If fewer
// events than frames are available the remaining angles are zero-valued
// and matched reports how many were actually paired.
func correlate(n int, events []recorder.Event) (angles []float64, matched int) {
	angles = make([]float64, n)
	for i := 0; i < n && i < len(events); i++ {
		angles[i] = events[i].BarAngleDeg
		matched++
	}
	return angles, matched
}
