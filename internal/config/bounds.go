package config

// Bounds is the optional {min, max, recommended_min, recommended_max}
// side-table entry for a single scalar field. A zero-value Bounds with
// HasRange == false means the field is unconstrained.
type Bounds struct {
	HasRange            bool
	Min, Max            float64
	RecommendedMin      float64
	RecommendedMax      float64
	HasRecommendedRange bool
}

func ranged(min, max float64) Bounds {
	return Bounds{HasRange: true, Min: min, Max: max}
}

func rangedRecommended(min, max, recMin, recMax float64) Bounds {
	return Bounds{HasRange: true, Min: min, Max: max, HasRecommendedRange: true, RecommendedMin: recMin, RecommendedMax: recMax}
}

// validationBounds is keyed by group then by the field's JSON tag name.
// It is consulted by ParameterStore.Update before any field is applied.
// Volatile groups (monitor, camera) still carry bounds: they are
// validated on write like any other group, just never persisted.
var validationBounds = map[Group]map[string]Bounds{
	GroupMonitor: {
		"resolution_width_px":  ranged(1, 16384),
		"resolution_height_px": ranged(1, 16384),
		"width_cm":             ranged(1, 1000),
		"height_cm":            ranged(1, 1000),
		"viewing_distance_cm":  ranged(1, 500),
		"lateral_angle_deg":    ranged(-180, 180),
		"tilt_angle_deg":       ranged(-90, 90),
		"refresh_rate_hz":      rangedRecommended(1, 480, 30, 240),
		"fps":                  rangedRecommended(1, 480, 30, 240),
	},
	GroupStimulus: {
		"bar_width_deg":           rangedRecommended(1, 90, 5, 30),
		"checker_size_deg":        rangedRecommended(1, 45, 5, 25),
		"drift_speed_deg_per_sec": rangedRecommended(1, 200, 5, 30),
		"strobe_rate_hz":          rangedRecommended(0.1, 60, 1, 10),
		"contrast":                ranged(0, 1),
		"background_luminance":    ranged(0, 255),
	},
	GroupCamera: {
		"fps":       rangedRecommended(1, 1000, 10, 120),
		"width_px":  ranged(1, 16384),
		"height_px": ranged(1, 16384),
	},
	GroupAcquisition: {
		"baseline_sec": ranged(0, 3600),
		"between_sec":  ranged(0, 3600),
		"cycles":       ranged(1, 1000),
	},
	GroupAnalysis: {
		"smoothing_sigma":     ranged(0, 50),
		"magnitude_threshold": ranged(0, 1e9),
		"phase_filter_sigma":  ranged(0, 50),
		"gradient_window":     ranged(1, 64),
		"min_area_mm2":        ranged(0, 1e6),
		"vfs_threshold_sd":    ranged(0, 20),
		"hemodynamic_tau_ms":  rangedRecommended(0, 5000, 100, 800),
	},
	GroupSession: {},
}

// BoundsFor returns the validation bounds for a field, and whether any
// bounds are registered at all. Exposed for UI reflection per design note.
func BoundsFor(group Group, field string) (Bounds, bool) {
	fields, ok := validationBounds[group]
	if !ok {
		return Bounds{}, false
	}
	b, ok := fields[field]
	return b, ok
}
