package acqiris

import (
	"math"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

func newLogger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func cfgAxis(store *config.Store, name, prefix string, defNBins int, defLow, defUp float64) result.Axis {
	return result.Axis{
		NBins: store.Int(name, prefix+"nbins", defNBins),
		Low:   store.Float(name, prefix+"low", defLow),
		Up:    store.Float(name, prefix+"up", defUp),
	}
}

// tofProcessor builds the pp150/151/152/153 family: each reads the
// named Tof detector's MCP signals directly off the event (not a graph
// operand — spec.md §4.K describes the family as reaching into the
// event "via a small helper registry keyed by detector name", the same
// source-processor shape NewMachineValue uses for MachineData).
func tofProcessor(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger,
	newResult func() *result.Result, fill func(mcp []Signal, res *result.Result)) proc.Processor {
	detector := store.String(name, "detector", "blubb")
	b := proc.NewBase(name, workers, newResult, newLogger(logger))
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		cfg := reg.Config(store, detector)
		tof, err := BuildTofDetector(evt, cfg)
		if err != nil {
			return err
		}
		fill(tof.MCP, res)
		return nil
	}
	return b
}

// NewMCPSignalCount builds pp150: the number of MCP signals found.
func NewMCPSignalCount(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	return tofProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.NewValue(name) },
		func(mcp []Signal, res *result.Result) { res.SetValue(float32(len(mcp))) }), nil
}

// NewMCPSignalTimes builds pp151: a 1-D histogram of MCP signal times.
func NewMCPSignalTimes(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	axis := cfgAxis(store, name, "", 1000, 0, 20000)
	return tofProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.New1D(name, axis) },
		func(mcp []Signal, res *result.Result) {
			res.Clear()
			for _, s := range mcp {
				res.Histogram1(s.Time, 1)
			}
		}), nil
}

// NewMCPFwhmVsHeight builds pp152: a 2-D scatter of each MCP signal's
// FWHM against its height.
func NewMCPFwhmVsHeight(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	axisX := cfgAxis(store, name, "x_", 100, 0, 50)
	axisY := cfgAxis(store, name, "y_", 100, 0, 1000)
	return tofProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.New2D(name, axisX, axisY) },
		func(mcp []Signal, res *result.Result) {
			res.Clear()
			for _, s := range mcp {
				res.Histogram2(s.Fwhm, s.Height, 1)
			}
		}), nil
}

// NewMCPDeadtime builds pp153: a 1-D histogram of the time between
// consecutive MCP signals.
func NewMCPDeadtime(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	axis := cfgAxis(store, name, "", 1000, 0, 100)
	return tofProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.New1D(name, axis) },
		func(mcp []Signal, res *result.Result) {
			res.Clear()
			for i := 1; i < len(mcp); i++ {
				res.Histogram1(mcp[i-1].Time-mcp[i].Time, 1)
			}
		}), nil
}

// delaylineProcessor is the shared shape of pp160..pp167: resolve one
// configured layer+wireend, read its signals directly off the event,
// fill res.
func delaylineProcessor(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger,
	newResult func() *result.Result, fill func(det DelaylineDetector, layer byte, wireend int, res *result.Result)) proc.Processor {
	detector := store.String(name, "detector", "blubb")
	layer := []byte(store.String(name, "layer", "X"))[0]
	wireend := store.Int(name, "wireend", 1)
	b := proc.NewBase(name, workers, newResult, newLogger(logger))
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		cfg := reg.Config(store, detector)
		det, err := BuildDelaylineDetector(evt, cfg)
		if err != nil {
			return err
		}
		fill(det, layer, wireend, res)
		return nil
	}
	return b
}

func wireEndSignals(det DelaylineDetector, layer byte, wireend int) []Signal {
	l := det.Layers[layer]
	if wireend == 2 {
		return l.WireEnd2
	}
	return l.WireEnd1
}

// NewAnodeSignalCount builds pp160.
func NewAnodeSignalCount(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	return delaylineProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.NewValue(name) },
		func(det DelaylineDetector, layer byte, wireend int, res *result.Result) {
			res.SetValue(float32(len(wireEndSignals(det, layer, wireend))))
		}), nil
}

// NewAnodeFwhmVsHeight builds pp161.
func NewAnodeFwhmVsHeight(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	axisX := cfgAxis(store, name, "x_", 100, 0, 50)
	axisY := cfgAxis(store, name, "y_", 100, 0, 1000)
	return delaylineProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.New2D(name, axisX, axisY) },
		func(det DelaylineDetector, layer byte, wireend int, res *result.Result) {
			res.Clear()
			for _, s := range wireEndSignals(det, layer, wireend) {
				res.Histogram2(s.Fwhm, s.Height, 1)
			}
		}), nil
}

// NewAnodeDeadtime builds pp167.
func NewAnodeDeadtime(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	axis := cfgAxis(store, name, "", 1000, 0, 100)
	return delaylineProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.New1D(name, axis) },
		func(det DelaylineDetector, layer byte, wireend int, res *result.Result) {
			res.Clear()
			signals := wireEndSignals(det, layer, wireend)
			for i := 1; i < len(signals); i++ {
				res.Histogram1(signals[i-1].Time-signals[i].Time, 1)
			}
		}), nil
}

// timesumProcessor is the shared shape of pp162/pp163: resolve a
// layer's first-good timesum.
func timesumProcessor(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger,
	newResult func() *result.Result, fill func(timesum, position float64, res *result.Result)) proc.Processor {
	detector := store.String(name, "detector", "blubb")
	layer := []byte(store.String(name, "layer", "X"))[0]
	rangeLow := store.Float(name, "time_range_low", 0)
	rangeHigh := store.Float(name, "time_range_high", 20000)
	b := proc.NewBase(name, workers, newResult, newLogger(logger))
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		cfg := reg.Config(store, detector)
		det, err := BuildDelaylineDetector(evt, cfg)
		if err != nil {
			return err
		}
		l := det.Layers[layer]
		mcp := FirstGood(det.MCP, rangeLow, rangeHigh)
		one := FirstGood(l.WireEnd1, rangeLow, rangeHigh)
		two := FirstGood(l.WireEnd2, rangeLow, rangeHigh)
		fill(Timesum(one, two, mcp), one-two, res)
		return nil
	}
	return b
}

// NewLayerTimesum builds pp162.
func NewLayerTimesum(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	return timesumProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.NewValue(name) },
		func(timesum, position float64, res *result.Result) { res.SetValue(float32(timesum)) }), nil
}

// NewLayerTimesumVsPosition builds pp163.
func NewLayerTimesumVsPosition(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	axisX := cfgAxis(store, name, "x_", 500, -100, 100)
	axisY := cfgAxis(store, name, "y_", 500, -500, 500)
	return timesumProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.New2D(name, axisX, axisY) },
		func(timesum, position float64, res *result.Result) {
			res.Clear()
			res.Histogram2(position, timesum, 1)
		}), nil
}

// NewDetectorFirstHit builds pp164: a first-hit image of the detector,
// gated on both layers' timesum falling within their configured range.
func NewDetectorFirstHit(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	detector := store.String(name, "detector", "blubb")
	rangeLow := store.Float(name, "time_range_low", 0)
	rangeHigh := store.Float(name, "time_range_high", 20000)
	tsFirstLow := store.Float(name, "timesum_first_layer_low", 20)
	tsFirstHigh := store.Float(name, "timesum_first_layer_high", 200)
	tsSecondLow := store.Float(name, "timesum_second_layer_low", 20)
	tsSecondHigh := store.Float(name, "timesum_second_layer_high", 200)
	first := []byte(store.String(name, "first_layer", "X"))[0]
	second := []byte(store.String(name, "second_layer", "Y"))[0]
	axisX := cfgAxis(store, name, "x_", 500, -100, 100)
	axisY := cfgAxis(store, name, "y_", 500, -100, 100)

	b := proc.NewBase(name, workers, func() *result.Result { return result.New2D(name, axisX, axisY) }, newLogger(logger))
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		cfg := reg.Config(store, detector)
		det, err := BuildDelaylineDetector(evt, cfg)
		if err != nil {
			return err
		}
		mcp := FirstGood(det.MCP, rangeLow, rangeHigh)
		lf, ls := det.Layers[first], det.Layers[second]
		f1 := FirstGood(lf.WireEnd1, rangeLow, rangeHigh)
		f2 := FirstGood(lf.WireEnd2, rangeLow, rangeHigh)
		s1 := FirstGood(ls.WireEnd1, rangeLow, rangeHigh)
		s2 := FirstGood(ls.WireEnd2, rangeLow, rangeHigh)
		tsf := Timesum(f1, f2, mcp)
		tss := Timesum(s1, s2, mcp)

		res.Clear()
		if tsFirstLow < tsf && tsf < tsFirstHigh && tsSecondLow < tss && tss < tsSecondHigh {
			res.Histogram2(f1-f2, s1-s2, 1)
		}
		return nil
	}
	return b, nil
}

// NewDetectorHitCount builds pp165: the number of reconstructed hits.
func NewDetectorHitCount(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	detector := store.String(name, "detector", "blubb")
	tsRangeX := [2]float64{store.Float(name, "timesum_x_low", -1e9), store.Float(name, "timesum_x_high", 1e9)}
	tsRangeY := [2]float64{store.Float(name, "timesum_y_low", -1e9), store.Float(name, "timesum_y_high", 1e9)}

	b := proc.NewBase(name, workers, func() *result.Result { return result.NewValue(name) }, newLogger(logger))
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		cfg := reg.Config(store, detector)
		det, err := BuildDelaylineDetector(evt, cfg)
		if err != nil {
			return err
		}
		res.SetValue(float32(len(det.Hits(tsRangeX, tsRangeY))))
		return nil
	}
	return b, nil
}

// hitProperty selects one of a DetectorHit's numeric properties, the
// generalized form of pp166's configurable XInput/YInput/ConditionInput.
func hitProperty(h DetectorHit, which int) float64 {
	switch which {
	case 1:
		return h.Y
	case 2:
		return h.Tof
	default:
		return h.X
	}
}

// NewDetectorHitScatter builds pp166: a scatter of two reconstructed
// hit properties, conditioned on a third falling within a range.
func NewDetectorHitScatter(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	detector := store.String(name, "detector", "blubb")
	tsRangeX := [2]float64{store.Float(name, "timesum_x_low", -1e9), store.Float(name, "timesum_x_high", 1e9)}
	tsRangeY := [2]float64{store.Float(name, "timesum_y_low", -1e9), store.Float(name, "timesum_y_high", 1e9)}
	xInput := store.Int(name, "x_input", 0)
	yInput := store.Int(name, "y_input", 1)
	condInput := store.Int(name, "condition_input", 2)
	condLow := store.Float(name, "condition_low", -50000)
	condHigh := store.Float(name, "condition_high", 50000)
	axisX := cfgAxis(store, name, "x_", 500, -100, 100)
	axisY := cfgAxis(store, name, "y_", 500, -100, 100)

	b := proc.NewBase(name, workers, func() *result.Result { return result.New2D(name, axisX, axisY) }, newLogger(logger))
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		cfg := reg.Config(store, detector)
		det, err := BuildDelaylineDetector(evt, cfg)
		if err != nil {
			return err
		}
		res.Clear()
		for _, h := range det.Hits(tsRangeX, tsRangeY) {
			c := hitProperty(h, condInput)
			if condLow < c && c < condHigh {
				res.Histogram2(hitProperty(h, xInput), hitProperty(h, yInput), 1)
			}
		}
		return nil
	}
	return b, nil
}

// NewPIPICO builds pp220: photo-ion-photo-ion coincidence, a 2-D
// scatter of MCP signal times from two (possibly identical) Tof
// detectors. When both names are the same detector, the second
// iterator starts one past the first so a signal is never paired with
// itself.
func NewPIPICO(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	det1Name := store.String(name, "first_detector", "blubb")
	det2Name := store.String(name, "second_detector", "blubb")
	axisX := cfgAxis(store, name, "x_", 1000, 0, 20000)
	axisY := cfgAxis(store, name, "y_", 1000, 0, 20000)

	b := proc.NewBase(name, workers, func() *result.Result { return result.New2D(name, axisX, axisY) }, newLogger(logger))
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		cfg1 := reg.Config(store, det1Name)
		det1, err := BuildTofDetector(evt, cfg1)
		if err != nil {
			return err
		}
		cfg2 := reg.Config(store, det2Name)
		det2, err := BuildTofDetector(evt, cfg2)
		if err != nil {
			return err
		}

		res.Clear()
		for i, s1 := range det1.MCP {
			start := 0
			if det1Name == det2Name {
				start = i + 1
			}
			for j := start; j < len(det2.MCP); j++ {
				res.Histogram2(s1.Time, det2.MCP[j].Time, 1)
			}
		}
		return nil
	}
	return b, nil
}

// particleProcessor resolves a named particle species' reconstructed
// hits for the event.
func particleProcessor(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger,
	newResult func() *result.Result, fill func(hits []ParticleHit, res *result.Result)) proc.Processor {
	detector := store.String(name, "detector", "blubb")
	tsRangeX := [2]float64{store.Float(name, "timesum_x_low", -1e9), store.Float(name, "timesum_x_high", 1e9)}
	tsRangeY := [2]float64{store.Float(name, "timesum_y_low", -1e9), store.Float(name, "timesum_y_high", 1e9)}
	pc := ParticleConfig{
		TofLow:      store.Float(name, "tof_low", 0),
		TofHigh:     store.Float(name, "tof_high", 1e9),
		EnergyConst: store.Float(name, "energy_const", 1),
	}
	b := proc.NewBase(name, workers, newResult, newLogger(logger))
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		cfg := reg.Config(store, detector)
		det, err := BuildDelaylineDetector(evt, cfg)
		if err != nil {
			return err
		}
		hits := ReconstructParticles(det.Hits(tsRangeX, tsRangeY), pc)
		fill(hits, res)
		return nil
	}
	return b
}

// NewParticleValue builds pp250: a 1-D histogram of one hit property.
func NewParticleValue(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	prop := store.Int(name, "property", 3)
	axis := cfgAxis(store, name, "", 500, 0, 1000)
	return particleProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.New1D(name, axis) },
		func(hits []ParticleHit, res *result.Result) {
			res.Clear()
			for _, h := range hits {
				res.Histogram1(particleProperty(h, prop), 1)
			}
		}), nil
}

// NewParticleScatter builds pp251: a 2-D scatter of two hit properties.
func NewParticleScatter(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	prop1 := store.Int(name, "property_x", 0)
	prop2 := store.Int(name, "property_y", 1)
	axisX := cfgAxis(store, name, "x_", 500, -100, 100)
	axisY := cfgAxis(store, name, "y_", 500, -100, 100)
	return particleProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.New2D(name, axisX, axisY) },
		func(hits []ParticleHit, res *result.Result) {
			res.Clear()
			for _, h := range hits {
				res.Histogram2(particleProperty(h, prop1), particleProperty(h, prop2), 1)
			}
		}), nil
}

// NewParticleCount builds pp252: the number of particles found.
func NewParticleCount(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	return particleProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.NewValue(name) },
		func(hits []ParticleHit, res *result.Result) { res.SetValue(float32(len(hits))) }), nil
}

// particleProperty selects one of a ParticleHit's numeric fields by
// pp250/pp251's configured Property enum.
func particleProperty(h ParticleHit, which int) float64 {
	switch which {
	case 1:
		return h.Y
	case 2:
		return h.Tof
	case 3:
		return h.Energy
	default:
		return h.X
	}
}

// electronEnergyConst is the fixed ρ²·13.6 coefficient
// original_source/cass/processing/coltrims_analysis.cpp's pp5000 uses
// to turn a particle's momentum into an electron kinetic energy —
// unlike pp250's generic EnergyConst, the source never makes this one
// configurable.
const electronEnergyConst = 13.6

// NewParticleEnergySpectrum builds pp5000: a 1-D electron energy
// spectrum, energy = ρ²·13.6 with ρ the particle's momentum magnitude
// (original_source's "roh" component, grounded on
// coltrims_analysis.cpp's pp5000::process). Reconstructing ρ properly
// needs a full ion-momentum calculator — detector geometry, extraction
// field, ion mass — that nothing past the raw delay-line hit (X, Y,
// Tof) carries in this port (see ParticleConfig's doc comment); ρ is
// approximated here as the hit's radial delay-line displacement
// sqrt(X²+Y²), the one momentum-like quantity already on hand.
func NewParticleEnergySpectrum(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	axis := cfgAxis(store, name, "", 500, 0, 100)
	return particleProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.New1D(name, axis) },
		func(hits []ParticleHit, res *result.Result) {
			res.Clear()
			for _, h := range hits {
				rho := math.Hypot(h.X, h.Y)
				res.Histogram1(rho*rho*electronEnergyConst, 1)
			}
		}), nil
}

// NewTripleCoincidence builds pp5001: a 2-D histogram of
// (t1+t2, t3) over every combinatorial triple i<j<k (by signal index,
// not a time-order test) of one Tof detector's own MCP signals — the
// "PIPIPICO" plot of original_source/cass/processing/
// coltrims_analysis.cpp's pp5001::process, a single-detector
// generalization of pp220's pair coincidence to three.
func NewTripleCoincidence(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error) {
	axisX := cfgAxis(store, name, "x_", 1000, 0, 40000)
	axisY := cfgAxis(store, name, "y_", 1000, 0, 20000)
	return tofProcessor(name, workers, store, reg, logger,
		func() *result.Result { return result.New2D(name, axisX, axisY) },
		func(mcp []Signal, res *result.Result) {
			res.Clear()
			for i := 0; i < len(mcp); i++ {
				for j := i + 1; j < len(mcp); j++ {
					for k := j + 1; k < len(mcp); k++ {
						res.Histogram2(mcp[i].Time+mcp[j].Time, mcp[k].Time, 1)
					}
				}
			}
		}), nil
}
