package stdproc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// NewFillHistogram1D builds pp60: fold any shape of input into a 1-D
// histogram, with either a constant weight or a configured per-bin
// weight result of matching shape.
func NewFillHistogram1D(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	weightOperand := store.String(name, "weight_operand", "")
	constWeight := float32(store.Float(name, "constant_weight", 1))

	var input, weight proc.Processor
	axis := cfgAxis(store, name, "", 100, 0, 1)
	b := proc.NewBase(name, workers, func() *result.Result { return result.New1D(name, axis) }, newLogger(logger))
	b.LoadFunc = func() error {
		b.AddDependency(operand)
		if weightOperand != "" {
			b.AddDependency(weightOperand)
		}
		return nil
	}
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		var err error
		if input, err = resolveOperand(resolve, name, operand); err != nil {
			return err
		}
		if weightOperand != "" {
			weight, err = resolveOperand(resolve, name, weightOperand)
		}
		return err
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		in, err := input.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		in.RLock()
		values := append([]float32(nil), in.Storage()...)
		in.RUnlock()

		var weights []float32
		if weight != nil {
			wres, err := weight.Result(uint64(evt.ID))
			if err != nil {
				return err
			}
			wres.RLock()
			if err := checkShape(wres.Shape(), in.Shape()); err != nil {
				wres.RUnlock()
				return err
			}
			weights = append([]float32(nil), wres.Storage()...)
			wres.RUnlock()
		}

		for i, v := range values {
			w := constWeight
			if weights != nil {
				w = weights[i]
			}
			res.Histogram1(float64(v), w)
		}
		return nil
	}
	return b, nil
}

// scatterBuilder is shared by pp65/pp66 — the two scatter-plot ids
// whose shape needs no per-event reshaping, so one process func
// serves both with the mode as the only difference. pp67/pp68/pp69
// each need a result-layout subtlety (a two-row weighted/count output,
// a row-copy whose width comes from the operand, a set-not-accumulate
// write) that doesn't fit this shared builder, so each gets its own
// constructor below, grounded on original_source/cass/processing/
// operations.h's pp65-pp69 Doxygen comments.
type scatterMode int

const (
	scatterValuePair scatterMode = iota // pp65: two 0-D operands, histogram the pair
	scatterOuter                       // pp66: two 1-D operands, outer-product histogram
)

func newScatter(name string, workers int, store *config.Store, logger *zap.Logger, mode scatterMode) (proc.Processor, error) {
	opX := store.String(name, "operand_x", "")
	opY := store.String(name, "operand_y", "")

	var inX, inY proc.Processor
	axisX := cfgAxis(store, name, "x_", 100, 0, 1)
	axisY := cfgAxis(store, name, "y_", 100, 0, 1)
	b := proc.NewBase(name, workers, func() *result.Result { return result.New2D(name, axisX, axisY) }, newLogger(logger))
	b.LoadFunc = func() error { b.AddDependency(opX); b.AddDependency(opY); return nil }
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		var err error
		if inX, err = resolveOperand(resolve, name, opX); err != nil {
			return err
		}
		inY, err = resolveOperand(resolve, name, opY)
		return err
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		rx, err := inX.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		ry, err := inY.Result(uint64(evt.ID))
		if err != nil {
			return err
		}

		switch mode {
		case scatterValuePair:
			rx.RLock()
			x := rx.GetValue()
			rx.RUnlock()
			ry.RLock()
			y := ry.GetValue()
			ry.RUnlock()
			res.Histogram2(float64(x), float64(y), 1)
		case scatterOuter:
			rx.RLock()
			xs := append([]float32(nil), rx.Storage()...)
			rx.RUnlock()
			ry.RLock()
			ys := append([]float32(nil), ry.Storage()...)
			ry.RUnlock()
			for _, x := range xs {
				for _, y := range ys {
					res.Histogram2(float64(x), float64(y), 1)
				}
			}
		}
		return nil
	}
	return b, nil
}

func NewScatterValuePair(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	return newScatter(name, workers, store, logger, scatterValuePair)
}

func NewScatterOuter(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	return newScatter(name, workers, store, logger, scatterOuter)
}

// NewWeightedHistogramCount builds pp67: histograms values_operand
// against weights_operand into a 2-row 2-D result — row 0 the weighted
// sum per bin, row 1 the number of entries that landed in it. Only the
// x axis is configurable; the y axis is fixed at 2 bins by
// HistogramWeightedCount's row layout.
func NewWeightedHistogramCount(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	valuesOperand := store.String(name, "values_operand", "")
	weightsOperand := store.String(name, "weights_operand", "")

	var values, weights proc.Processor
	axisX := cfgAxis(store, name, "x_", 100, 0, 1)
	axisY := result.Axis{NBins: 2, Low: 0, Up: 2, Title: "weighted sum / count"}
	b := proc.NewBase(name, workers, func() *result.Result { return result.New2D(name, axisX, axisY) }, newLogger(logger))
	b.LoadFunc = func() error {
		b.AddDependency(valuesOperand)
		b.AddDependency(weightsOperand)
		return nil
	}
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		var err error
		if values, err = resolveOperand(resolve, name, valuesOperand); err != nil {
			return err
		}
		weights, err = resolveOperand(resolve, name, weightsOperand)
		return err
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		vres, err := values.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		wres, err := weights.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		vres.RLock()
		vs := append([]float32(nil), vres.Storage()...)
		vres.RUnlock()
		wres.RLock()
		if err := checkShape(wres.Shape(), vres.Shape()); err != nil {
			wres.RUnlock()
			return err
		}
		ws := append([]float32(nil), wres.Storage()...)
		wres.RUnlock()

		for i, v := range vs {
			res.HistogramWeightedCount(float64(v), ws[i])
		}
		return nil
	}
	return b, nil
}

// NewRowInsert builds pp68: writes a 1-D result verbatim into the row
// of a 2-D result selected by binning a 0-D value against the
// configured y axis. The x axis is never independently configured —
// per operations.h "one only has to define the y axis since the x
// axis will be taken from the 1D result" — so x_nbins/x_low/x_up must
// be set to describe the 1-D operand's own axis; a mismatched width
// is a configuration error caught at process time as ErrShapeMismatch.
func NewRowInsert(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	opX := store.String(name, "operand_x", "")
	opY := store.String(name, "operand_y", "")

	var inX, inY proc.Processor
	axisX := cfgAxis(store, name, "x_", 100, 0, 1)
	axisY := cfgAxis(store, name, "y_", 100, 0, 1)
	b := proc.NewBase(name, workers, func() *result.Result { return result.New2D(name, axisX, axisY) }, newLogger(logger))
	b.LoadFunc = func() error { b.AddDependency(opX); b.AddDependency(opY); return nil }
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		var err error
		if inX, err = resolveOperand(resolve, name, opX); err != nil {
			return err
		}
		inY, err = resolveOperand(resolve, name, opY)
		return err
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		rx, err := inX.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		ry, err := inY.Result(uint64(evt.ID))
		if err != nil {
			return err
		}

		rx.RLock()
		if err := checkShape(rx.Shape(), result.Shape1D); err != nil {
			rx.RUnlock()
			return err
		}
		row := append([]float32(nil), rx.Storage()...)
		rx.RUnlock()
		if len(row) != res.NBinsX() {
			return fmt.Errorf("%w: row insert %q: operand %q has %d bins, want %d",
				proc.ErrShapeMismatch, name, opX, len(row), res.NBinsX())
		}

		ry.RLock()
		y := ry.GetValue()
		ry.RUnlock()

		res.SetRow(float64(y), row)
		return nil
	}
	return b, nil
}

// NewScatterSet builds pp69: sets (rather than accumulates) the 1-D
// bin selected by operand_x's value to operand_y's value — an
// AccumulatingProcessor per operations.h, so the bin holds its last
// written value across events until something overwrites it again.
func NewScatterSet(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	opX := store.String(name, "operand_x", "")
	opY := store.String(name, "operand_y", "")
	axis := cfgAxis(store, name, "", 100, 0, 1)

	var inX, inY proc.Processor
	b := proc.NewAccumulatingBase(name, result.New1D(name, axis), newLogger(logger))
	b.LoadFunc = func() error { b.AddDependency(opX); b.AddDependency(opY); return nil }
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		var err error
		if inX, err = resolveOperand(resolve, name, opX); err != nil {
			return err
		}
		inY, err = resolveOperand(resolve, name, opY)
		return err
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		x, err := operandValue(inX, uint64(evt.ID))
		if err != nil {
			return err
		}
		y, err := operandValue(inY, uint64(evt.ID))
		if err != nil {
			return err
		}
		res.SetBin1D(float64(x), y)
		return nil
	}
	return b, nil
}
