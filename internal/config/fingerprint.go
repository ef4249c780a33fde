package config

import (
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// GenerationFingerprintKeys is the set of monitor+stimulus keys whose
// values can change rendered stimulus pixels. Keys are "group.field" using each struct's JSON tag.
var GenerationFingerprintKeys = []string{
	"monitor.resolution_width_px",
	"monitor.resolution_height_px",
	"monitor.width_cm",
	"monitor.height_cm",
	"monitor.viewing_distance_cm",
	"monitor.lateral_angle_deg",
	"monitor.tilt_angle_deg",
	"monitor.fps",
	"stimulus.bar_width_deg",
	"stimulus.checker_size_deg",
	"stimulus.drift_speed_deg_per_sec",
	"stimulus.strobe_rate_hz",
	"stimulus.contrast",
	"stimulus.background_luminance",
}

// formatFloat12 renders f in a fixed, platform-independent 12-significant-
// digit form so the same logical value hashes identically on every
// backend.
func formatFloat12(f float64) string {
	if f == 0 {
		return "0.00000000000"
	}
	mag := math.Floor(math.Log10(math.Abs(f)))
	decimals := 11 - int(mag)
	if decimals < 0 {
		decimals = 0
	}
	if decimals > 30 {
		decimals = 30
	}
	s := strconv.FormatFloat(f, 'f', decimals, 64)
	return s
}

// canonicalKV renders a single "key=formatted-value" pair for a
// supported scalar kind. Non-scalar values (directions, strings used
// outside the fingerprint set) are not needed here since the
// fingerprint set is fixed to numeric fields today; widen this switch
// if that set ever grows.
func canonicalKV(key string, v interface{}) string {
	switch t := v.(type) {
	case float64:
		return key + "=" + formatFloat12(t)
	case int:
		return key + "=" + strconv.Itoa(t)
	case bool:
		return key + "=" + strconv.FormatBool(t)
	case string:
		return key + "=" + strconv.Quote(t)
	default:
		return key + "=" + fmt.Sprintf("%v", t)
	}
}

// ComputeFingerprint hashes the canonical, lexicographically sorted
// serialization of the given key/value set. values must contain every
// key in keys (FieldValues(monitor, stimulus) builds exactly that map).
func ComputeFingerprint(values map[string]interface{}, keys []string) [32]byte {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	parts := make([]string, 0, len(sorted))
	for _, k := range sorted {
		parts = append(parts, canonicalKV(k, values[k]))
	}
	canonical := strings.Join(parts, "\n")
	return sha256.Sum256([]byte(canonical))
}

// FieldValues flattens the Monitor and Stimulus groups into the
// "group.field" -> value map ComputeFingerprint expects.
func FieldValues(m Monitor, s Stimulus) map[string]interface{} {
	return map[string]interface{}{
		"monitor.resolution_width_px":     float64(m.ResolutionWidthPx),
		"monitor.resolution_height_px":    float64(m.ResolutionHeightPx),
		"monitor.width_cm":                m.WidthCm,
		"monitor.height_cm":               m.HeightCm,
		"monitor.viewing_distance_cm":     m.ViewingDistanceCm,
		"monitor.lateral_angle_deg":       m.LateralAngleDeg,
		"monitor.tilt_angle_deg":          m.TiltAngleDeg,
		"monitor.fps":                     m.FPS,
		"stimulus.bar_width_deg":          s.BarWidthDeg,
		"stimulus.checker_size_deg":       s.CheckerSizeDeg,
		"stimulus.drift_speed_deg_per_sec": s.DriftSpeedDegPerSec,
		"stimulus.strobe_rate_hz":         s.StrobeRateHz,
		"stimulus.contrast":               s.Contrast,
		"stimulus.background_luminance":   s.BackgroundLuminance,
	}
}

// Differences reports every key whose value in `current` does not match
// `saved`, for the structured ParameterMismatch report.
func Differences(saved, current map[string]interface{}, keys []string) []KeyDiff {
	var diffs []KeyDiff
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)
	for _, k := range sorted {
		sv, cv := saved[k], current[k]
		if canonicalKV(k, sv) != canonicalKV(k, cv) {
			diffs = append(diffs, KeyDiff{Key: k, Saved: sv, Current: cv})
		}
	}
	return diffs
}

// KeyDiff names one differing fingerprint key for ParameterMismatch.
type KeyDiff struct {
	Key     string
	Saved   interface{}
	Current interface{}
}
