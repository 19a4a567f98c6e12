package stdproc

import (
	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
	"github.com/lcls-cass/cassgo/cass/statutil"
)

func newScalarProbe(name string, workers int, store *config.Store, logger *zap.Logger,
	fn func(in *result.Result) (float32, error)) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	var input proc.Processor
	b := proc.NewBase(name, workers, func() *result.Result { return result.NewValue(name) }, newLogger(logger))
	b.LoadFunc = func() error { b.AddDependency(operand); return nil }
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		var err error
		input, err = resolveOperand(resolve, name, operand)
		return err
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		in, err := input.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		in.RLock()
		v, ferr := fn(in)
		in.RUnlock()
		if ferr != nil {
			return ferr
		}
		res.SetValue(v)
		return nil
	}
	return b, nil
}

// NewMinMax builds pp71: the min or max value (config "mode") over all
// bins, or its bin index when "report_bin" is set.
func NewMinMax(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	wantMax := store.String(name, "mode", "max") == "max"
	reportBin := store.Bool(name, "report_bin", false)
	return newScalarProbe(name, workers, store, logger, func(in *result.Result) (float32, error) {
		data := in.Storage()
		if len(data) == 0 {
			return 0, nil
		}
		best, bestIdx := data[0], 0
		for i, v := range data {
			if (wantMax && v > best) || (!wantMax && v < best) {
				best, bestIdx = v, i
			}
		}
		if reportBin {
			return float32(bestIdx), nil
		}
		return best, nil
	})
}

// NewBinSummary builds pp81 (and its pp91 alias with a different
// default statistic): sum/mean/stdv/variance over every data bin.
func NewBinSummary(name string, workers int, store *config.Store, logger *zap.Logger, defStat string) (proc.Processor, error) {
	stat := store.String(name, "statistic", defStat)
	return newScalarProbe(name, workers, store, logger, func(in *result.Result) (float32, error) {
		data := make([]float64, len(in.Storage()))
		for i, v := range in.Storage() {
			data[i] = float64(v)
		}
		switch stat {
		case "sum":
			var s float64
			for _, v := range data {
				s += v
			}
			return float32(s), nil
		case "stdv":
			return float32(statutil.Stdv(data)), nil
		case "variance":
			return float32(statutil.Variance(data)), nil
		default: // "mean"
			return float32(statutil.Mean(data)), nil
		}
	})
}

// NewFWHM builds pp82: the full width at a configured fraction of peak
// height within [lo, up) of a 1-D result.
func NewFWHM(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	lo := store.Float(name, "lo", 0)
	up := store.Float(name, "up", 0)
	frac := store.Float(name, "fraction", 0.5)
	return newScalarProbe(name, workers, store, logger, func(in *result.Result) (float32, error) {
		if err := checkShape(in.Shape(), result.Shape1D); err != nil {
			return 0, err
		}
		loIdx, upIdx, _ := rangeIndices(in.AxisX(), lo, up, in.NBinsX())
		data := in.Storage()[loIdx:upIdx]
		if len(data) == 0 {
			return 0, nil
		}
		var peak float32
		for _, v := range data {
			if v > peak {
				peak = v
			}
		}
		threshold := peak * float32(frac)
		first, last := -1, -1
		for i, v := range data {
			if v >= threshold {
				if first == -1 {
					first = i
				}
				last = i
			}
		}
		if first == -1 {
			return 0, nil
		}
		binWidth := (in.AxisX().Up - in.AxisX().Low) / float64(in.AxisX().NBins)
		return float32(float64(last-first+1) * binWidth), nil
	})
}

// NewRisingEdge builds pp85: the position where a 1-D result first
// crosses a baseline-relative threshold within [lo, up).
func NewRisingEdge(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	lo := store.Float(name, "lo", 0)
	up := store.Float(name, "up", 0)
	baseline := float32(store.Float(name, "baseline", 0))
	threshold := float32(store.Float(name, "threshold", 0))
	return newScalarProbe(name, workers, store, logger, func(in *result.Result) (float32, error) {
		if err := checkShape(in.Shape(), result.Shape1D); err != nil {
			return 0, err
		}
		loIdx, upIdx, _ := rangeIndices(in.AxisX(), lo, up, in.NBinsX())
		binWidth := (in.AxisX().Up - in.AxisX().Low) / float64(in.AxisX().NBins)
		for i := loIdx; i < upIdx; i++ {
			if in.Storage()[i]-baseline >= threshold {
				return float32(in.AxisX().Low + float64(i)*binWidth), nil
			}
		}
		return 0, nil
	})
}

// NewCenterOfMass builds pp86: Σxᵢ·wᵢ/Σwᵢ over [lo, up) of a 1-D result.
func NewCenterOfMass(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	lo := store.Float(name, "lo", 0)
	up := store.Float(name, "up", 0)
	return newScalarProbe(name, workers, store, logger, func(in *result.Result) (float32, error) {
		if err := checkShape(in.Shape(), result.Shape1D); err != nil {
			return 0, err
		}
		loIdx, upIdx, _ := rangeIndices(in.AxisX(), lo, up, in.NBinsX())
		binWidth := (in.AxisX().Up - in.AxisX().Low) / float64(in.AxisX().NBins)
		var num, den float64
		for i := loIdx; i < upIdx; i++ {
			x := in.AxisX().Low + (float64(i)+0.5)*binWidth
			w := float64(in.Storage()[i])
			num += x * w
			den += w
		}
		if den == 0 {
			return 0, nil
		}
		return float32(num / den), nil
	})
}

// NewAxisParameter builds pp88: retrieve one scalar axis parameter
// ("low", "up", "nbins") of an operand's result.
func NewAxisParameter(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	which := store.String(name, "parameter", "low")
	return newScalarProbe(name, workers, store, logger, func(in *result.Result) (float32, error) {
		switch which {
		case "up":
			return float32(in.AxisX().Up), nil
		case "nbins":
			return float32(in.NBinsX()), nil
		default:
			return float32(in.AxisX().Low), nil
		}
	})
}

// NewLocalMinima builds pp87: a table of bin-index/value pairs for
// every local minimum of a 1-D result (strictly below both neighbours).
func NewLocalMinima(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	var input proc.Processor
	b := proc.NewBase(name, workers, func() *result.Result { return result.NewTable(name, 2) }, newLogger(logger))
	b.LoadFunc = func() error { b.AddDependency(operand); return nil }
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		var err error
		input, err = resolveOperand(resolve, name, operand)
		return err
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		in, err := input.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		in.RLock()
		if err := checkShape(in.Shape(), result.Shape1D); err != nil {
			in.RUnlock()
			return err
		}
		data := append([]float32(nil), in.Storage()...)
		in.RUnlock()

		var rows []float32
		for i := 1; i < len(data)-1; i++ {
			if data[i] < data[i-1] && data[i] < data[i+1] {
				rows = append(rows, float32(i), data[i])
			}
		}
		res.ResetTable()
		if len(rows) > 0 {
			return res.AppendRows(rows)
		}
		return nil
	}
	return b, nil
}
