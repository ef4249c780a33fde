package stimulus

import (
	"errors"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/monitoring"
)

// AutoBackend tries gpu first and falls back to cpu on the first
// ErrGPUUnavailable, logging the fallback once. Matches AppConfig's
// gpu_backend = "auto" setting.
type AutoBackend struct {
	gpu      *GPUBackend
	cpu      CPUBackend
	gpuFailed bool
}

func NewAutoBackend() *AutoBackend {
	return &AutoBackend{gpu: NewGPUBackend()}
}

func (b *AutoBackend) RenderFrame(p RenderParams) ([]uint8, error) {
	if !b.gpuFailed {
		pixels, err := b.gpu.RenderFrame(p)
		if err == nil {
			return pixels, nil
		}
		if !errors.Is(err, ErrGPUUnavailable) {
			return nil, err
		}
		monitoring.Logf("stimulus: gpu backend unavailable, falling back to cpu: %v", err)
		b.gpuFailed = true
	}
	return b.cpu.RenderFrame(p)
}

// SelectBackend builds the Backend named by AppConfig's gpu_backend
// setting ("gpu", "cpu", or "auto").
func SelectBackend(name string) Backend {
	switch name {
	case "gpu":
		return NewGPUBackend()
	case "cpu":
		return CPUBackend{}
	default:
		return NewAutoBackend()
	}
}
