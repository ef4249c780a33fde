//go:build !cgo

package camera

// NewDefaultDriver falls back to the dev-mode driver on cgo-disabled
// builds, where gocv (which wraps OpenCV via cgo) cannot be linked.
func NewDefaultDriver() Driver {
	return NewDevDriver()
}
