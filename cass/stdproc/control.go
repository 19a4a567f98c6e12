package stdproc

import (
	"math"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// NewConstant builds pp12: a fixed scalar, read once from config and
// otherwise never touching its operand.
func NewConstant(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	value := float32(store.Float(name, "value", 0))
	b := proc.NewBase(name, workers, func() *result.Result { return result.NewValue(name) }, newLogger(logger))
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		res.SetValue(value)
		return nil
	}
	return b, nil
}

// NewChangeDetector builds pp15: true iff the operand's value differs
// from its own value at the previous event by more than epsilon.
func NewChangeDetector(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	operand := store.String(name, "operand", "")
	eps := float32(store.Float(name, "epsilon", 1e-6))

	var input proc.Processor
	var prev float32
	first := true

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
		v := in.GetValue()
		in.RUnlock()

		changed := !first && float32(math.Abs(float64(v-prev))) > eps
		prev, first = v, false
		res.SetValue(boolF(changed))
		return nil
	}
	return b, nil
}

// NewClearTarget builds pp75: clears another processor's result on
// every event for which this processor's condition holds.
func NewClearTarget(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	target := store.String(name, "target", "")
	var targetProc proc.Processor

	b := proc.NewBase(name, workers, func() *result.Result { return result.NewValue(name) }, newLogger(logger))
	b.LoadFunc = func() error { b.AddDependency(target); return nil }
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		var err error
		targetProc, err = resolveOperand(resolve, name, target)
		return err
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		tres, err := targetProc.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		tres.Lock()
		tres.Clear()
		tres.Unlock()
		res.SetValue(1)
		return nil
	}
	return b, nil
}

// NewShutdown builds pp76: setting quit true the first time its
// condition holds. The worker loop (cmd/cassd) polls the same flag
// between events, per spec.md §5's cancellation contract — no event
// mid-flight is abandoned (property 10).
func NewShutdown(name string, workers int, store *config.Store, logger *zap.Logger, quit *atomic.Bool) (proc.Processor, error) {
	b := proc.NewBase(name, workers, func() *result.Result { return result.NewValue(name) }, newLogger(logger))
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		quit.Store(true)
		res.SetValue(1)
		return nil
	}
	return b, nil
}

// NewIDMembership builds pp77: true iff the event id's fiducial is a
// member of a configured list.
func NewIDMembership(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	raw := store.StringSlice(name, "fiducials")
	members := make(map[uint32]bool, len(raw))
	for _, s := range raw {
		if v, err := strconv.ParseUint(s, 10, 32); err == nil {
			members[uint32(v)] = true
		}
	}
	b := proc.NewBase(name, workers, func() *result.Result { return result.NewValue(name) }, newLogger(logger))
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		res.SetValue(boolF(members[evt.ID.Fiducial()]))
		return nil
	}
	return b, nil
}
