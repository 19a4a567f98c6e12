package stdproc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// NewCovarianceMap builds pp410: the on-line covariance map between a
// 1-D histogram operand and a separately-maintained running average of
// that same quantity — pp410 never averages anything itself, it only
// reads "hist_operand" and "ave_operand" as two independent
// dependencies, exactly as
// original_source/cass/processing/partial_covariance.{h,cpp}'s pp410
// wires _pHist/_ave. The output is square, N×N with N the operand's
// own bin count, axes copied from the operand's axis.
//
// Each event recovers the average with this event's own contribution
// removed (the "pre-average", original_source's PreAverage functor:
// preAverage[i] = (n*ave[i] - data[i]) / (n-1) for the n-th event, 0
// for the first) before folding (data[i]-preAverage[i])*(data[j]-ave[j])
// into the running covariance at n⁻¹ weight — the same algorithm
// original_source's pp410::calcCovariance implements.
func NewCovarianceMap(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	histOperand := store.String(name, "hist_operand", "")
	aveOperand := store.String(name, "ave_operand", "")

	var hist, ave proc.Processor
	var nbrBins int
	var preAverage []float32
	var n float64

	res := result.New2D(name, result.Axis{}, result.Axis{})
	b := proc.NewAccumulatingBase(name, res, newLogger(logger))
	b.LoadFunc = func() error {
		b.AddDependency(histOperand)
		b.AddDependency(aveOperand)
		return nil
	}
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		var err error
		if hist, err = resolveOperand(resolve, name, histOperand); err != nil {
			return err
		}
		if ave, err = resolveOperand(resolve, name, aveOperand); err != nil {
			return err
		}
		one, err := hist.Result(0)
		if err != nil {
			return err
		}
		one.RLock()
		shape, axis := one.Shape(), one.AxisX()
		one.RUnlock()
		if err := checkShape(shape, result.Shape1D); err != nil {
			return fmt.Errorf("stdproc %q: hist_operand %q: %w", name, histOperand, err)
		}
		nbrBins = axis.NBins
		preAverage = make([]float32, nbrBins)
		res.Assign(result.New2D(name, axis, axis))
		return nil
	}
	b.ProcessFunc = func(evt *event.CASSEvent, out *result.Result) error {
		oneRes, err := hist.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		aveRes, err := ave.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		oneRes.RLock()
		data := append([]float32(nil), oneRes.Storage()...)
		oneRes.RUnlock()
		aveRes.RLock()
		averageNew := append([]float32(nil), aveRes.Storage()...)
		aveRes.RUnlock()
		if len(data) != nbrBins || len(averageNew) != nbrBins {
			return fmt.Errorf("%w: covariance map %q: operand bin counts %d/%d, want %d",
				proc.ErrShapeMismatch, name, len(data), len(averageNew), nbrBins)
		}

		n++
		if n < 2 {
			for i := range preAverage {
				preAverage[i] = 0
			}
		} else {
			for i := range preAverage {
				preAverage[i] = (float32(n)*averageNew[i] - data[i]) / float32(n-1)
			}
		}

		cov := out.Storage()
		for i := 0; i < nbrBins; i++ {
			for j := 0; j < nbrBins; j++ {
				idx := i*nbrBins + j
				cov[idx] = (cov[idx]*float32(n-1) + (data[i]-preAverage[i])*(data[j]-averageNew[j])) / float32(n)
			}
		}
		return nil
	}
	return b, nil
}

// NewIntensityCovariance builds pp412: the on-line covariance between a
// 1-D wavetrace operand and a 0-D intensity operand, each paired with
// its own running-average operand ("hist_operand_1d"/"ave_operand_1d",
// "hist_operand_0d"/"ave_operand_0d"). Output is 1-D, same shape as the
// wavetrace. The intensity pre-average uses original_source's inline
// formula (distinct from pp410's PreAverage functor):
// intensityPre = intensityAve - (intensity-intensityAve)/n, grounded on
// original_source/cass/processing/partial_covariance.cpp's
// pp412::process/calcCovariance.
func NewIntensityCovariance(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	waveOperand := store.String(name, "hist_operand_1d", "")
	waveAveOperand := store.String(name, "ave_operand_1d", "")
	intensityOperand := store.String(name, "hist_operand_0d", "")
	intensityAveOperand := store.String(name, "ave_operand_0d", "")

	var wave, waveAve, intensity, intensityAve proc.Processor
	var nbrBins int
	var n float64

	res := result.New1D(name, result.Axis{})
	b := proc.NewAccumulatingBase(name, res, newLogger(logger))
	b.LoadFunc = func() error {
		for _, d := range []string{waveOperand, waveAveOperand, intensityOperand, intensityAveOperand} {
			b.AddDependency(d)
		}
		return nil
	}
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		var err error
		if wave, err = resolveOperand(resolve, name, waveOperand); err != nil {
			return err
		}
		if waveAve, err = resolveOperand(resolve, name, waveAveOperand); err != nil {
			return err
		}
		if intensity, err = resolveOperand(resolve, name, intensityOperand); err != nil {
			return err
		}
		if intensityAve, err = resolveOperand(resolve, name, intensityAveOperand); err != nil {
			return err
		}
		one, err := wave.Result(0)
		if err != nil {
			return err
		}
		one.RLock()
		shape, axis := one.Shape(), one.AxisX()
		one.RUnlock()
		if err := checkShape(shape, result.Shape1D); err != nil {
			return fmt.Errorf("stdproc %q: hist_operand_1d %q: %w", name, waveOperand, err)
		}
		nbrBins = axis.NBins
		res.Assign(result.New1D(name, axis))
		return nil
	}
	b.ProcessFunc = func(evt *event.CASSEvent, out *result.Result) error {
		waveRes, err := wave.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		waveAveRes, err := waveAve.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		waveRes.RLock()
		trace := append([]float32(nil), waveRes.Storage()...)
		waveRes.RUnlock()
		waveAveRes.RLock()
		traceAve := append([]float32(nil), waveAveRes.Storage()...)
		waveAveRes.RUnlock()
		if len(trace) != nbrBins || len(traceAve) != nbrBins {
			return fmt.Errorf("%w: intensity covariance %q: operand bin counts %d/%d, want %d",
				proc.ErrShapeMismatch, name, len(trace), len(traceAve), nbrBins)
		}

		intensityVal, err := operandValue(intensity, uint64(evt.ID))
		if err != nil {
			return err
		}
		intensityAveVal, err := operandValue(intensityAve, uint64(evt.ID))
		if err != nil {
			return err
		}

		n++
		scale := float32(1 / n)
		intensityPre := intensityAveVal - scale*(intensityVal-intensityAveVal)

		correction := out.Storage()
		for i := 0; i < nbrBins; i++ {
			correction[i] = (correction[i]*float32(n-1) + (trace[i]-traceAve[i])*(intensityVal-intensityPre)) / float32(n)
		}
		return nil
	}
	return b, nil
}
