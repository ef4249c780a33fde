//go:build cgo

package camera

// NewDefaultDriver returns the real gocv-backed driver when built with cgo
// enabled. Callers that need the dev-mode fallback regardless of build
// configuration should construct NewDevDriver directly.
func NewDefaultDriver() Driver {
	return NewGoCVDriver()
}
