package stimulus

import "github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"

// RenderParams is every input RenderFrame needs to produce one frame,
// independent of backend.
type RenderParams struct {
	Direction  config.Direction // always the materialized primary (LR or TB)
	Horizontal bool             // true: bar varies with azimuth; false: altitude
	BarAngle   float64
	ShowBar    bool
	FrameIndex int
	Monitor    config.Monitor
	Stimulus   config.Stimulus
}

// Backend renders a single frame to a packed H*W uint8 grayscale
// buffer. CPUBackend and GPUBackend must agree within +/-1 grayscale
// level on identical inputs, so tests can run the
// CPU path everywhere and only exercise the GPU path where hardware is
// present.
type Backend interface {
	RenderFrame(p RenderParams) ([]uint8, error)
}
