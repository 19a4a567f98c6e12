package stdproc

import (
	"math"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// NewIIRFilter builds pp89: a first-order low- or high-pass filter
// with RC derived from a configured cutoff frequency and sample rate.
// y₀ is initialised from the first sample so there is no warm-up
// transient.
func NewIIRFilter(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	cutoffHz := store.Float(name, "cutoff_hz", 1)
	sampleRate := store.Float(name, "sample_rate_hz", 1)
	highPass := store.String(name, "mode", "low") == "high"

	rc := 1 / (2 * math.Pi * cutoffHz)
	dt := 1 / sampleRate
	alpha := dt / (rc + dt)
	if highPass {
		alpha = rc / (rc + dt)
	}

	var input proc.Processor
	var prevIn, prevOut float32
	initialized := false

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
		x := in.GetValue()
		in.RUnlock()

		if !initialized {
			prevIn, prevOut = x, x
			initialized = true
			if highPass {
				res.SetValue(0)
			} else {
				res.SetValue(x)
			}
			return nil
		}

		var y float32
		if highPass {
			y = float32(alpha) * (prevOut + x - prevIn)
		} else {
			y = prevOut + float32(alpha)*(x-prevOut)
		}
		prevIn, prevOut = x, y
		res.SetValue(y)
		return nil
	}
	return b, nil
}
