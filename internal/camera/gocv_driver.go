//go:build cgo

package camera

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/monitoring"
	"gocv.io/x/gocv"
)

// fourccMJPEG is the FourCC code for the Motion JPEG codec, set explicitly
// for USB webcam compatibility (V4L2 backend avoids GStreamer pipeline
// errors seen with the default backend on Linux).
const fourccMJPEG = 0x47504A4D

// GoCVDriver is the real Driver implementation, backed by OpenCV via gocv.
// Frames are delivered in the camera's native BGR byte order; grayscale conversion is left to the
// analysis pipeline, not performed here.
type GoCVDriver struct {
	mu sync.Mutex

	deviceID string
	webcam   *gocv.VideoCapture
	opened   bool
	running  bool
	cancel   context.CancelFunc

	width, height int
	fps           float64
}

func NewGoCVDriver() *GoCVDriver {
	return &GoCVDriver{}
}

// Enumerate probes device indices 0..9 with the V4L2 backend, the same
// best-effort approach used to detect USB webcams.
func (d *GoCVDriver) Enumerate() ([]string, error) {
	var ids []string
	for i := 0; i < 10; i++ {
		cam, err := gocv.OpenVideoCaptureWithAPI(i, gocv.VideoCaptureV4L2)
		if err != nil {
			continue
		}
		if cam.IsOpened() {
			ids = append(ids, strconv.Itoa(i))
		}
		cam.Close()
	}
	if len(ids) == 0 {
		return nil, ErrNoDevices
	}
	return ids, nil
}

// Capabilities opens the device briefly to read back its reported maximum
// frame rate and current resolution; gocv has no native "list all supported
// modes" call, so this reports the single mode the driver would start in.
func (d *GoCVDriver) Capabilities(id string) (Capabilities, error) {
	idx, err := strconv.Atoi(id)
	if err != nil {
		return Capabilities{}, fmt.Errorf("camera: device id %q is not numeric: %w", id, err)
	}
	cam, err := gocv.OpenVideoCaptureWithAPI(idx, gocv.VideoCaptureV4L2)
	if err != nil {
		return Capabilities{}, &OpenError{DeviceID: id, Err: err}
	}
	defer cam.Close()
	return Capabilities{
		MaxFPS:  cam.Get(gocv.VideoCaptureFPS),
		Widths:  []int{int(cam.Get(gocv.VideoCaptureFrameWidth))},
		Heights: []int{int(cam.Get(gocv.VideoCaptureFrameHeight))},
	}, nil
}

func (d *GoCVDriver) Open(id string, cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return ErrAlreadyOpen
	}

	idx, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("camera: device id %q is not numeric: %w", id, err)
	}

	webcam, err := gocv.OpenVideoCaptureWithAPI(idx, gocv.VideoCaptureV4L2)
	if err != nil {
		return &OpenError{DeviceID: id, Err: err}
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return &OpenError{DeviceID: id, Err: fmt.Errorf("device not found or unavailable")}
	}

	webcam.Set(gocv.VideoCaptureFOURCC, fourccMJPEG)
	if cfg.WidthPx > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.WidthPx))
	}
	if cfg.HeightPx > 0 {
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.HeightPx))
	}
	if cfg.FPS > 0 {
		webcam.Set(gocv.VideoCaptureFPS, cfg.FPS)
	}

	warmup := gocv.NewMat()
	webcam.Read(&warmup)
	warmup.Close()

	d.deviceID = id
	d.webcam = webcam
	d.width = int(webcam.Get(gocv.VideoCaptureFrameWidth))
	d.height = int(webcam.Get(gocv.VideoCaptureFrameHeight))
	d.fps = webcam.Get(gocv.VideoCaptureFPS)
	d.opened = true
	return nil
}

// Start launches the capture loop on its own goroutine, the sole reader of
// the underlying gocv.VideoCapture. The returned channel is closed when the loop exits.
func (d *GoCVDriver) Start(ctx context.Context) (<-chan Frame, error) {
	d.mu.Lock()
	if !d.opened {
		d.mu.Unlock()
		return nil, ErrNotOpen
	}
	if d.running {
		d.mu.Unlock()
		return nil, fmt.Errorf("camera: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	webcam := d.webcam
	width, height := d.width, d.height
	d.mu.Unlock()

	out := make(chan Frame, 2)
	go func() {
		defer close(out)
		var idx uint64
		mat := gocv.NewMat()
		defer mat.Close()
		for {
			select {
			case <-runCtx.Done():
				return
			default:
			}
			if ok := webcam.Read(&mat); !ok || mat.Empty() {
				monitoring.Logf("camera: dropped frame (index %d)", idx)
				idx++
				continue
			}
			frame := Frame{
				TimestampUs: monotonicTimestampUs(),
				FrameIndex:  idx,
				Width:       width,
				Height:      height,
				Channels:    mat.Channels(),
				Image:       append([]byte(nil), mat.ToBytes()...),
			}
			idx++
			select {
			case out <- frame:
			case <-runCtx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (d *GoCVDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return ErrNotOpen
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.running = false
	return nil
}

func (d *GoCVDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return ErrNotOpen
	}
	if d.cancel != nil {
		d.cancel()
	}
	err := d.webcam.Close()
	d.opened = false
	d.running = false
	return err
}
