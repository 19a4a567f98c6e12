package proc

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/result"
)

// AccumulatingBase is the variant of Base described in spec.md §4.F:
// "The accumulating variant owns a single result that all workers
// update under the write lock; result(id) always returns that one,
// releaseEvent is a no-op." Grounded on
// original_source/cass/processing/processor.h's AccumulatingProcessor.
type AccumulatingBase struct {
	name         string
	dependencies []string
	condition    Processor
	logger       *zap.Logger

	mu     sync.Mutex
	result *result.Result

	nEventsAccumulated uint64

	ProcessFunc        func(evt *event.CASSEvent, res *result.Result) error
	LoadFunc           func() error
	LoadSettingsFunc   func(resolve func(name string) (Processor, error)) error
	AboutToQuitFunc    func() error
	ProcessCommandFunc func(cmd string) error

	hide    bool
	comment string
}

// NewAccumulatingBase wires name's single shared result (constructed
// once, cleared between command-driven resets rather than recycled
// per event).
func NewAccumulatingBase(name string, res *result.Result, logger *zap.Logger) *AccumulatingBase {
	if logger == nil {
		logger = zap.NewNop()
	}
	res.SetName(name)
	return &AccumulatingBase{name: name, result: res, logger: logger}
}

func (b *AccumulatingBase) Name() string           { return b.name }
func (b *AccumulatingBase) Dependencies() []string { return append([]string(nil), b.dependencies...) }
func (b *AccumulatingBase) Hidden() bool           { return b.hide }
func (b *AccumulatingBase) SetCondition(p Processor) { b.condition = p }

// AddDependency records an upstream processor name this accumulator's
// ProcessFunc will read from, mirroring Base.AddDependency so the
// manager's depth-first Load resolves it before this processor runs.
func (b *AccumulatingBase) AddDependency(name string) {
	for _, d := range b.dependencies {
		if d == name {
			return
		}
	}
	b.dependencies = append(b.dependencies, name)
}

func (b *AccumulatingBase) conditionTrue(evt *event.CASSEvent) (bool, error) {
	if b.condition == nil {
		return true, nil
	}
	condRes, err := b.condition.Result(uint64(evt.ID))
	if err != nil {
		return false, err
	}
	condRes.RLock()
	defer condRes.RUnlock()
	return condRes.IsTrue(), nil
}

// ProcessEvent serializes writes to the single shared result on its
// own exclusive lock — "the only intentional synchronization
// bottleneck" per spec.md §5.
func (b *AccumulatingBase) ProcessEvent(evt *event.CASSEvent) error {
	ok, err := b.conditionTrue(evt)
	if err != nil || !ok {
		return nil
	}

	b.result.Lock()
	b.result.SetID(uint64(evt.ID))
	var procErr error
	if b.ProcessFunc != nil {
		procErr = b.ProcessFunc(evt, b.result)
	}
	b.result.Unlock()

	b.mu.Lock()
	b.nEventsAccumulated++
	b.mu.Unlock()

	if procErr != nil {
		b.logger.Error("skipping event",
			zap.String("processor", b.name), zap.Uint64("event", uint64(evt.ID)), zap.Error(procErr))
		return nil
	}
	return nil
}

// Result ignores id and always returns the single accumulated result.
func (b *AccumulatingBase) Result(uint64) (*result.Result, error) { return b.result, nil }

// ReleaseEvent is a no-op: there is no per-event slot to free.
func (b *AccumulatingBase) ReleaseEvent(*event.CASSEvent) {}

func (b *AccumulatingBase) EventsAccumulated() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nEventsAccumulated
}

func (b *AccumulatingBase) Load() error {
	if b.LoadFunc != nil {
		return b.LoadFunc()
	}
	return nil
}

func (b *AccumulatingBase) LoadSettings(resolve func(name string) (Processor, error)) error {
	if b.LoadSettingsFunc != nil {
		return b.LoadSettingsFunc(resolve)
	}
	return nil
}

func (b *AccumulatingBase) AboutToQuit() error {
	if b.AboutToQuitFunc != nil {
		return b.AboutToQuitFunc()
	}
	return nil
}

func (b *AccumulatingBase) ProcessCommand(cmd string) error {
	if b.ProcessCommandFunc != nil {
		return b.ProcessCommandFunc(cmd)
	}
	return nil
}

var _ Processor = (*AccumulatingBase)(nil)

// checkShape is a small helper used by pp process funcs to enforce the
// "shape mismatch at process time raises InvalidData" rule (spec.md §4.H).
func checkShape(got, want result.Shape) error {
	if got != want {
		return fmt.Errorf("%w: have %s, want %s", ErrShapeMismatch, got, want)
	}
	return nil
}
