package stdproc

import (
	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// NewIntegral builds pp51: the sum of a 1-D result over [lo, up).
func NewIntegral(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	lo := store.Float(name, "lo", 0)
	up := store.Float(name, "up", 0)

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
		if err := checkShape(in.Shape(), result.Shape1D); err != nil {
			in.RUnlock()
			return err
		}
		loIdx, upIdx, _ := rangeIndices(in.AxisX(), lo, up, in.NBinsX())
		var sum float32
		for i := loIdx; i < upIdx; i++ {
			sum += in.Storage()[i]
		}
		in.RUnlock()
		res.SetValue(sum)
		return nil
	}
	return b, nil
}

// NewSlice2D builds pp70: extract a rectangular subset
// [xlo,xup)x[ylo,yup) of a 2-D result into a smaller 2-D result.
func NewSlice2D(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	xlo := store.Int(name, "xlo", 0)
	xup := store.Int(name, "xup", 0)
	ylo := store.Int(name, "ylo", 0)
	yup := store.Int(name, "yup", 0)

	var input proc.Processor
	outAxisX := result.Axis{NBins: xup - xlo, Low: 0, Up: float64(xup - xlo)}
	outAxisY := result.Axis{NBins: yup - ylo, Low: 0, Up: float64(yup - ylo)}
	b := proc.NewBase(name, workers, func() *result.Result { return result.New2D(name, outAxisX, outAxisY) }, newLogger(logger))
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
		if err := checkShape(in.Shape(), result.Shape2D); err != nil {
			in.RUnlock()
			return err
		}
		nx := in.NBinsX()
		out := res.Storage()
		oi := 0
		for y := ylo; y < yup; y++ {
			for x := xlo; x < xup; x++ {
				out[oi] = in.Storage()[y*nx+x]
				oi++
			}
		}
		in.RUnlock()
		return nil
	}
	return b, nil
}

// NewTableColumn builds pp72: extract one table column, represented
// as a single-column table since its row count tracks the input's and
// so cannot live in a fixed-size 1-D histogram axis.
func NewTableColumn(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	col := store.Int(name, "column", 0)

	var input proc.Processor
	b := proc.NewBase(name, workers, func() *result.Result { return result.NewTable(name, 1) }, newLogger(logger))
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
		if err := checkShape(in.Shape(), result.ShapeTable); err != nil {
			in.RUnlock()
			return err
		}
		nRows := in.NBinsY()
		nx := in.NBinsX()
		out := make([]float32, 0, nRows)
		for row := 0; row < nRows; row++ {
			out = append(out, in.Storage()[row*nx+col])
		}
		in.RUnlock()

		res.ResetTable()
		if len(out) > 0 {
			return res.AppendRows(out)
		}
		return nil
	}
	return b, nil
}

// NewTableRowFilter builds pp73: keep the rows of a table whose
// selector column falls in [lo, up).
func NewTableRowFilter(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	selCol := store.Int(name, "select_column", 0)
	lo := float32(store.Float(name, "lo", 0))
	up := float32(store.Float(name, "up", 0))

	var input proc.Processor
	b := proc.NewBase(name, workers, func() *result.Result { return result.NewTable(name, 1) }, newLogger(logger))
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
		if err := checkShape(in.Shape(), result.ShapeTable); err != nil {
			in.RUnlock()
			return err
		}
		nx := in.NBinsX()
		nRows := in.NBinsY()
		var kept []float32
		for row := 0; row < nRows; row++ {
			rowData := in.Storage()[row*nx : (row+1)*nx]
			v := rowData[selCol]
			if v >= lo && v < up {
				kept = append(kept, rowData...)
			}
		}
		in.RUnlock()

		res.ResetTable()
		if len(kept) > 0 {
			_ = res.AppendRows(kept)
		}
		return nil
	}
	return b, nil
}

// NewTableCell builds pp74: extract a single (row, col) cell as a
// 0-D value.
func NewTableCell(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	row := store.Int(name, "row", 0)
	col := store.Int(name, "column", 0)

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
		if err := checkShape(in.Shape(), result.ShapeTable); err != nil {
			in.RUnlock()
			return err
		}
		nx := in.NBinsX()
		v := in.Storage()[row*nx+col]
		in.RUnlock()
		res.SetValue(v)
		return nil
	}
	return b, nil
}

// NewTableHistogram2D builds pp79: histogram two table columns
// (optionally weighted by a third) into a 2-D result.
func NewTableHistogram2D(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	xCol := store.Int(name, "x_column", 0)
	yCol := store.Int(name, "y_column", 1)
	hasWeight := store.Bool(name, "has_weight_column", false)
	wCol := store.Int(name, "weight_column", 2)

	var input proc.Processor
	axisX := cfgAxis(store, name, "x_", 10, 0, 1)
	axisY := cfgAxis(store, name, "y_", 10, 0, 1)
	b := proc.NewBase(name, workers, func() *result.Result { return result.New2D(name, axisX, axisY) }, newLogger(logger))
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
		if err := checkShape(in.Shape(), result.ShapeTable); err != nil {
			in.RUnlock()
			return err
		}
		nx := in.NBinsX()
		nRows := in.NBinsY()
		rows := append([]float32(nil), in.Storage()...)
		in.RUnlock()

		for row := 0; row < nRows; row++ {
			r := rows[row*nx : (row+1)*nx]
			w := float32(1)
			if hasWeight {
				w = r[wCol]
			}
			res.Histogram2(float64(r[xCol]), float64(r[yCol]), w)
		}
		return nil
	}
	return b, nil
}
