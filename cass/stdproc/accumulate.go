package stdproc

import (
	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// NewCumulativeMean builds pp61: cumulative mean of a scalar operand,
// N⁻¹Σxᵢ, or (when "ema_window" > 0) an exponentially-weighted moving
// average with α = 1 − 1/N (property 5's "cumulative mean equivalence"
// is the N==0/no-EMA case).
func NewCumulativeMean(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	return newAccumulator(name, store, logger, false)
}

// NewCumulativeSquareMean builds pp62: cumulative mean of the square
// of the operand, N⁻¹Σxᵢ².
func NewCumulativeSquareMean(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	return newAccumulator(name, store, logger, true)
}

func newAccumulator(name string, store *config.Store, logger *zap.Logger, squared bool) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	emaWindow := store.Float(name, "ema_window", 0)

	var input proc.Processor
	b := proc.NewAccumulatingBase(name, result.NewValue(name), newLogger(logger))
	b.LoadFunc = func() error { b.AddDependency(operand); return nil }
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		var err error
		input, err = resolveOperand(resolve, name, operand)
		return err
	}
	n := uint64(0)
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		in, err := input.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		in.RLock()
		v := in.GetValue()
		in.RUnlock()
		if squared {
			v *= v
		}

		n++
		prev := res.GetValue()
		if emaWindow > 0 {
			alpha := float32(1 - 1/emaWindow)
			if n == 1 {
				res.SetValue(v)
			} else {
				res.SetValue(alpha*prev + (1-alpha)*v)
			}
			return nil
		}
		res.SetValue(prev + (v-prev)/float32(n))
		return nil
	}
	return b, nil
}

// NewRunningSum builds pp63: Σxᵢ, reset to 0 by a "clear" command.
func NewRunningSum(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	var input proc.Processor
	b := proc.NewAccumulatingBase(name, result.NewValue(name), newLogger(logger))
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
		v := in.GetValue()
		in.RUnlock()
		res.SetValue(res.GetValue() + v)
		return nil
	}
	b.ProcessCommandFunc = func(cmd string) error {
		if cmd == "clear" {
			res, _ := b.Result(0)
			res.Lock()
			res.Clear()
			res.Unlock()
		}
		return nil
	}
	return b, nil
}

// NewTimeBucketAverage builds pp64: average of the operand within the
// current time bucket of width "bucket_seconds", reset at each bucket
// boundary derived from the event id's timestamp (POSIX seconds).
func NewTimeBucketAverage(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	bucketSeconds := store.Float(name, "bucket_seconds", 1)

	var input proc.Processor
	var bucketStart float64 = -1
	var sum float32
	var count uint64

	b := proc.NewAccumulatingBase(name, result.NewValue(name), newLogger(logger))
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
		v := in.GetValue()
		in.RUnlock()

		t := float64(evt.ID.Timestamp())
		bucket := float64(int64(t/bucketSeconds)) * bucketSeconds
		if bucket != bucketStart {
			bucketStart = bucket
			sum, count = 0, 0
		}
		sum += v
		count++
		res.SetValue(sum / float32(count))
		return nil
	}
	return b, nil
}

// NewShiftRegister builds pp78: a table that right-appends the
// operand's value each call, truncated to "depth" rows — the "call
// counter" behaviour falls out of reading NBinsY() on the result.
func NewShiftRegister(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	depth := store.Int(name, "depth", 100)

	var input proc.Processor
	b := proc.NewAccumulatingBase(name, result.NewTable(name, 1), newLogger(logger))
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
		v := in.GetValue()
		in.RUnlock()

		if err := res.AppendRows([]float32{v}); err != nil {
			return err
		}
		if res.NBinsY() > depth {
			trimmed := append([]float32(nil), res.Storage()[len(res.Storage())-depth:]...)
			res.ResetTable()
			return res.AppendRows(trimmed)
		}
		return nil
	}
	return b, nil
}
