package stimulus

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	hdf5 "github.com/sbinet/go-hdf5/pkg/hdf5"
)

// manifest is the root JSON file accompanying the per-direction HDF5
// archives.
type manifest struct {
	GenerationFingerprint string                 `json:"generation_fingerprint"`
	GenerationParams      map[string]interface{} `json:"generation_params"`
	Directions            []config.Direction     `json:"directions"`
	Timestamp             time.Time              `json:"timestamp"`
	TotalFrames           int                    `json:"total_frames"`
}

// MismatchError is returned by Load when the saved fingerprint does not
// match the current one; it enumerates every differing key.
type MismatchError struct {
	Differences []config.KeyDiff
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("stimulus: parameter mismatch on load (%d differing keys)", len(e.Differences))
}

// Save persists the current snapshot: one HDF5 archive per materialized
// direction (frames, angles, and the direction and fingerprint as
// attributes) plus one JSON manifest at the archive root that carries the
// parameter values. The per-direction archives hold no copy of the
// parameter snapshot.
func (l *Library) Save(dir string, m config.Monitor, st config.Stimulus) error {
	snap := l.cur.Load()
	if snap == nil {
		return ErrNotLoaded
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	fpHex := hex.EncodeToString(snap.fingerprint[:])
	var directions []config.Direction
	total := 0

	if snap.lr != nil {
		if err := writeDirectionArchive(filepath.Join(dir, "LR_frames.h5"), snap.lr, fpHex); err != nil {
			return fmt.Errorf("stimulus: saving LR archive: %w", err)
		}
		directions = append(directions, config.DirectionLR)
		total += len(snap.lr)
	}
	if snap.tb != nil {
		if err := writeDirectionArchive(filepath.Join(dir, "TB_frames.h5"), snap.tb, fpHex); err != nil {
			return fmt.Errorf("stimulus: saving TB archive: %w", err)
		}
		directions = append(directions, config.DirectionTB)
		total += len(snap.tb)
	}

	man := manifest{
		GenerationFingerprint: fpHex,
		GenerationParams:      config.FieldValues(m, st),
		Directions:            directions,
		Timestamp:             time.Now().UTC(),
		TotalFrames:           total,
	}
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "library_metadata.json"), data, 0o644)
}

func writeDirectionArchive(path string, frames []Frame, fingerprintHex string) error {
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return err
	}
	defer f.Close()

	n := len(frames)
	h, w := frames[0].Height, frames[0].Width

	pixelBuf := make([]uint8, n*h*w)
	angles := make([]float32, n)
	for i, fr := range frames {
		copy(pixelBuf[i*h*w:(i+1)*h*w], fr.Pixels)
		angles[i] = float32(fr.BarAngleDeg)
	}

	space, err := hdf5.NewDataspaceSimple([]uint{uint(n), uint(h), uint(w)}, nil)
	if err != nil {
		return err
	}
	defer space.Close()
	frameDS, err := f.CreateDataset("frames", hdf5.T_NATIVE_UCHAR, space)
	if err != nil {
		return err
	}
	defer frameDS.Close()
	if err := frameDS.Write(&pixelBuf[0]); err != nil {
		return err
	}

	angleSpace, err := hdf5.NewDataspaceSimple([]uint{uint(n)}, nil)
	if err != nil {
		return err
	}
	defer angleSpace.Close()
	angleDS, err := f.CreateDataset("angles", hdf5.T_NATIVE_FLOAT, angleSpace)
	if err != nil {
		return err
	}
	defer angleDS.Close()
	if err := angleDS.Write(&angles[0]); err != nil {
		return err
	}

	if err := frameDS.SetStringAttribute("direction", string(frames[0].Direction)); err != nil {
		return err
	}
	if err := frameDS.SetStringAttribute("generation_fingerprint", fingerprintHex); err != nil {
		return err
	}
	return nil
}

// Load reads a saved library from dir and installs it as the current
// snapshot. It refuses unless manifest.fingerprint == current
// fingerprint, unless force is set (operator override).
func (l *Library) Load(dir string, m config.Monitor, st config.Stimulus, force bool) error {
	data, err := os.ReadFile(filepath.Join(dir, "library_metadata.json"))
	if err != nil {
		return fmt.Errorf("stimulus: reading manifest: %w", err)
	}
	var man manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return fmt.Errorf("stimulus: corrupt manifest: %w", err)
	}

	currentValues := config.FieldValues(m, st)
	current := config.ComputeFingerprint(currentValues, config.GenerationFingerprintKeys)
	currentHex := hex.EncodeToString(current[:])

	if !force && man.GenerationFingerprint != currentHex {
		diffs := config.Differences(man.GenerationParams, currentValues, config.GenerationFingerprintKeys)
		return &MismatchError{Differences: diffs}
	}

	snap := &snapshot{fingerprint: current}
	for _, d := range man.Directions {
		frames, info, err := readDirectionArchive(filepath.Join(dir, string(d)+"_frames.h5"), d, m.FPS)
		if err != nil {
			return fmt.Errorf("stimulus: reading %s archive: %w", d, err)
		}
		switch d {
		case config.DirectionLR:
			snap.lr, snap.infoLR = frames, info
		case config.DirectionTB:
			snap.tb, snap.infoTB = frames, info
		}
	}
	l.cur.Store(snap)
	return nil
}

func readDirectionArchive(path string, direction config.Direction, fps float64) ([]Frame, DatasetInfo, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, DatasetInfo{}, err
	}
	defer f.Close()

	frameDS, err := f.OpenDataset("frames")
	if err != nil {
		return nil, DatasetInfo{}, err
	}
	defer frameDS.Close()
	space := frameDS.Space()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, DatasetInfo{}, err
	}
	if len(dims) != 3 {
		return nil, DatasetInfo{}, fmt.Errorf("stimulus: corrupt archive: expected 3D frames dataset, got %dD", len(dims))
	}
	n, h, w := int(dims[0]), int(dims[1]), int(dims[2])
	pixelBuf := make([]uint8, n*h*w)
	if err := frameDS.Read(&pixelBuf[0]); err != nil {
		return nil, DatasetInfo{}, err
	}

	angleDS, err := f.OpenDataset("angles")
	if err != nil {
		return nil, DatasetInfo{}, err
	}
	defer angleDS.Close()
	angles := make([]float32, n)
	if err := angleDS.Read(&angles[0]); err != nil {
		return nil, DatasetInfo{}, err
	}

	frames := make([]Frame, n)
	for i := 0; i < n; i++ {
		frames[i] = Frame{
			Direction:   direction,
			FrameIndex:  i,
			BarAngleDeg: float64(angles[i]),
			Width:       w,
			Height:      h,
			Pixels:      pixelBuf[i*h*w : (i+1)*h*w],
		}
	}
	info := DatasetInfo{TotalFrames: n, FPS: fps}
	if n > 0 {
		info.StartAngle, info.EndAngle = frames[0].BarAngleDeg, frames[n-1].BarAngleDeg
		if fps > 0 {
			info.DurationS = float64(n) / fps
		}
	}
	return frames, info, nil
}
