package acqiris

// ParticleHit is one reconstructed ion assigned to a named particle
// species: its delay-line position, time-of-flight, and the
// time-of-flight-derived kinetic energy pp250 histograms.
type ParticleHit struct {
	X, Y, Tof, Energy float64
}

// ParticleConfig names the time-of-flight gate and energy calibration
// constant a particle species is recognized by. A real ion-momentum
// reconstruction folds in detector geometry, extraction field and ion
// mass (original_source's Particle/MomentumCalculator family); this
// port keeps the single scalar energy conversion
// original_source/cass/processing/acqiris_detectors.cpp's pp250
// comment describes as "the Property of the particle" without
// committing to one fixed formula, so EnergyConst is the one knob
// pp250..pp252 expose and any fuller physics model is left for a
// caller-supplied DetectorHit-to-ParticleHit mapper if ever needed.
type ParticleConfig struct {
	TofLow, TofHigh float64
	EnergyConst     float64
}

// ReconstructParticles filters det's reconstructed hits into the time
// -of-flight gate cfg names, converting each accepted hit's
// time-of-flight into a kinetic energy via the classic
// E = EnergyConst / Tof^2 time-of-flight spectrometer relation.
func ReconstructParticles(hits []DetectorHit, cfg ParticleConfig) []ParticleHit {
	var out []ParticleHit
	for _, h := range hits {
		if h.Tof <= cfg.TofLow || h.Tof >= cfg.TofHigh {
			continue
		}
		energy := 0.0
		if h.Tof != 0 {
			energy = cfg.EnergyConst / (h.Tof * h.Tof)
		}
		out = append(out, ParticleHit{X: h.X, Y: h.Y, Tof: h.Tof, Energy: energy})
	}
	return out
}
