package camera

import "time"

var startInstant = time.Now()

// monotonicTimestampUs returns a monotonic microsecond offset from process
// start. Used as the "hardware timestamp" for drivers with no true hardware
// clock, and as the dev-mode software clock.
func monotonicTimestampUs() int64 {
	return time.Since(startInstant).Microseconds()
}

// Now returns the same monotonic microsecond clock frame timestamps are
// stamped with, so callers outside this package (the acquisition engine
// marking a stimulus phase's start) can compare against frame.TimestampUs.
func Now() int64 {
	return monotonicTimestampUs()
}
