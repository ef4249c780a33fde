package analysis

// shiftAnglesForHemodynamics shifts the frame-to-angle correspondence by
// tauFrames to compensate for the hemodynamic response delay: the signal observed at frame i is attributed to the stimulus angle
// shown tauFrames earlier. This is an approximation of full HRF
// deconvolution, not a deconvolution itself.
func shiftAnglesForHemodynamics(angles []float64, tauFrames int) []float64 {
	n := len(angles)
	shifted := make([]float64, n)
	for i := 0; i < n; i++ {
		src := i - tauFrames
		if src < 0 {
			src = 0
		}
		shifted[i] = angles[src]
	}
	return shifted
}

// tauFrames converts the analysis.hemodynamic_tau_ms parameter to a frame
// count at the camera's effective frame rate.
func tauFrames(tauMs, cameraFPS float64) int {
	if cameraFPS <= 0 {
		return 0
	}
	f := int(tauMs / 1000 * cameraFPS)
	if f < 0 {
		return 0
	}
	return f
}
