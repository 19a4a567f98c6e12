package stdproc

import (
	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// projectionAxis selects which axis of the 2-D input is collapsed:
// "x" sums/averages along columns producing one output bin per row,
// "y" sums/averages along rows producing one output bin per column.
type projectionAxis int

const (
	projectRows projectionAxis = iota // collapse x, one output bin per row (axisY)
	projectCols                       // collapse y, one output bin per column (axisX)
)

// NewProjection builds pp50 (plain sum) and pp57 (weighted average,
// skipping an excluded value and dividing by accepted-bin count) over
// the open interval [lo, up) of the collapsed axis.
func NewProjection(name string, workers int, store *config.Store, logger *zap.Logger, weighted bool) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	axis := projectRows
	if store.String(name, "axis", "x") == "y" {
		axis = projectCols
	}
	lo := store.Float(name, "lo", 0)
	up := store.Float(name, "up", 0)
	hasExcl := store.Bool(name, "has_exclusion", false)
	excl := float32(store.Float(name, "exclusion_value", 0))

	var input proc.Processor
	outAxis := cfgAxis(store, name, "out_", 1, 0, 1)

	b := proc.NewBase(name, workers, func() *result.Result { return result.New1D(name, outAxis) }, newLogger(logger))
	b.LoadFunc = func() error {
		b.AddDependency(operand)
		return nil
	}
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
		nx, ny := in.NBinsX(), in.NBinsY()
		storage := append([]float32(nil), in.Storage()...)
		inAxisX, inAxisY := in.AxisX(), in.AxisY()
		in.RUnlock()

		var loIdx, upIdx, n int
		if axis == projectCols {
			loIdx, upIdx, n = rangeIndices(inAxisY, lo, up, ny)
		} else {
			loIdx, upIdx, n = rangeIndices(inAxisX, lo, up, nx)
		}

		out := res.Storage()
		for i := range out {
			out[i] = 0
		}
		if axis == projectCols {
			for col := 0; col < nx; col++ {
				var sum float32
				var count int
				for row := loIdx; row < upIdx; row++ {
					v := storage[row*nx+col]
					if hasExcl && v == excl {
						continue
					}
					sum += v
					count++
				}
				out[col] = reduce(weighted, sum, count)
			}
		} else {
			for row := 0; row < ny; row++ {
				var sum float32
				var count int
				for col := loIdx; col < upIdx; col++ {
					v := storage[row*nx+col]
					if hasExcl && v == excl {
						continue
					}
					sum += v
					count++
				}
				out[row] = reduce(weighted, sum, count)
			}
		}
		_ = n
		return nil
	}
	return b, nil
}

func reduce(weighted bool, sum float32, count int) float32 {
	if !weighted || count == 0 {
		return sum
	}
	return sum / float32(count)
}

// rangeIndices converts the open interval [lo, up) on axis into bin
// indices, clamped to [0, n).
func rangeIndices(axis result.Axis, lo, up float64, n int) (int, int, int) {
	loIdx := int((lo - axis.Low) / (axis.Up - axis.Low) * float64(axis.NBins))
	upIdx := int((up - axis.Low) / (axis.Up - axis.Low) * float64(axis.NBins))
	if loIdx < 0 {
		loIdx = 0
	}
	if upIdx > n {
		upIdx = n
	}
	if upIdx < loIdx {
		upIdx = loIdx
	}
	return loIdx, upIdx, upIdx - loIdx
}
