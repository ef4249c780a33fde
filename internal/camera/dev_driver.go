package camera

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DevDriver is the "dev mode" fallback: it never touches
// real hardware, emitting synthetic frames on a software ticker stamped with
// the monotonic process clock. It exists so the rest of the acquisition
// pipeline can be exercised on a machine with no camera attached; results
// produced against it are explicitly non-publication-grade.
type DevDriver struct {
	mu      sync.Mutex
	opened  bool
	running bool
	cancel  context.CancelFunc

	deviceID string
	width    int
	height   int
	fps      float64
}

func NewDevDriver() *DevDriver {
	return &DevDriver{}
}

func (d *DevDriver) Enumerate() ([]string, error) {
	return []string{"dev0"}, nil
}

func (d *DevDriver) Capabilities(id string) (Capabilities, error) {
	if id != "dev0" {
		return Capabilities{}, &OpenError{DeviceID: id, Err: fmt.Errorf("unknown dev device")}
	}
	return Capabilities{
		MaxFPS:  120,
		Widths:  []int{320, 640, 1280},
		Heights: []int{240, 480, 720},
	}, nil
}

func (d *DevDriver) Open(id string, cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return ErrAlreadyOpen
	}
	if id != "dev0" {
		return &OpenError{DeviceID: id, Err: fmt.Errorf("unknown dev device")}
	}
	width, height, fps := cfg.WidthPx, cfg.HeightPx, cfg.FPS
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	if fps <= 0 {
		fps = 30
	}
	d.deviceID, d.width, d.height, d.fps = id, width, height, fps
	d.opened = true
	return nil
}

func (d *DevDriver) Start(ctx context.Context) (<-chan Frame, error) {
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
	width, height, fps := d.width, d.height, d.fps
	d.mu.Unlock()

	out := make(chan Frame, 2)
	go func() {
		defer close(out)
		period := time.Duration(float64(time.Second) / fps)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		var idx uint64
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				frame := Frame{
					TimestampUs: monotonicTimestampUs(),
					FrameIndex:  idx,
					Width:       width,
					Height:      height,
					Channels:    1,
					Image:       syntheticImage(width, height, idx),
				}
				idx++
				select {
				case out <- frame:
				case <-runCtx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// syntheticImage fills a grayscale frame with a value derived from the
// frame index so tests can distinguish successive frames without decoding
// real pixel content.
func syntheticImage(width, height int, idx uint64) []byte {
	img := make([]byte, width*height)
	v := byte(idx % 256)
	for i := range img {
		img[i] = v
	}
	return img
}

func (d *DevDriver) Stop() error {
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

func (d *DevDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return ErrNotOpen
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.opened = false
	d.running = false
	return nil
}
