// Package proc implements the processor base contract of spec.md §4.F:
// the unit of the graph that declares dependencies, loads
// configuration, and runs process(event, result) once per event under
// a condition. Concrete pp-kinds (package stdproc, calib, coalesce,
// acqiris, sink) embed Base and plug in their own process logic as a
// func value — the registry-of-constructors pattern spec.md §9
// recommends in place of the source's class hierarchy.
package proc

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/cache"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/result"
)

// Sentinel errors raised from inside process() (spec.md §7). They are
// recoverable: the base ProcessEvent catches them, logs with the event
// id, and leaves the processor's slot for that event at its prior
// content.
var (
	ErrShapeMismatch = errors.New("proc: result shape mismatch")
	ErrInvalidData   = errors.New("proc: invalid data")
)

// Processor is the capability every graph node implements. The
// manager only ever talks to this interface — it never knows the
// concrete pp-kind.
type Processor interface {
	Name() string
	Dependencies() []string
	SetCondition(p Processor)
	Hidden() bool

	// ProcessEvent runs the five-step contract of spec.md §4.F.
	ProcessEvent(evt *event.CASSEvent) error
	// Result returns the slot for id, or the latest when id == 0.
	Result(id uint64) (*result.Result, error)
	// ReleaseEvent returns the event's slot to the free pool.
	ReleaseEvent(evt *event.CASSEvent)

	// Load parses this processor's own configuration and records
	// dependency names it will need resolved.
	Load() error
	// LoadSettings is called once every peer processor exists, so
	// dependency names can be resolved to live Processors and any
	// shape checks performed. resolve looks another active processor
	// up by name.
	LoadSettings(resolve func(name string) (Processor, error)) error

	// AboutToQuit flushes any state held beyond individual results.
	AboutToQuit() error
	// ProcessCommand reacts to an opaque runtime command
	// (e.g. "startDarkcal"); most processors ignore it.
	ProcessCommand(cmd string) error
}

// Base implements the shared machinery of spec.md §4.F: CachedList
// bookkeeping, condition evaluation, and the five-step processEvent
// contract. Concrete processors embed Base and set ProcessFunc (and
// optionally the other hooks) at construction time.
type Base struct {
	name         string
	dependencies []string
	condition    Processor
	results      *cache.CachedList
	hide         bool
	comment      string
	logger       *zap.Logger

	// ProcessFunc implements the processor's own process(event, result)
	// step. It is called with the slot's result already write-locked
	// and stamped with the event id.
	ProcessFunc func(evt *event.CASSEvent, res *result.Result) error
	// LoadFunc, when set, runs during Load() after dependency-name
	// bookkeeping; it typically reads pp-local config keys.
	LoadFunc func() error
	// LoadSettingsFunc, when set, resolves this processor's own
	// dependency pointers and performs shape checks. Base itself
	// resolves nothing here; the condition is set through SetCondition.
	LoadSettingsFunc func(resolve func(name string) (Processor, error)) error
	// AboutToQuitFunc, when set, flushes processor-owned state (e.g.
	// a sink's open file) on shutdown.
	AboutToQuitFunc func() error
	// ProcessCommandFunc, when set, reacts to a runtime command.
	ProcessCommandFunc func(cmd string) error
}

// NewBase constructs the shared state for a processor named name,
// backed by a CachedList sized workers+2 whose slots hold results
// produced by newResult.
func NewBase(name string, workers int, newResult func() *result.Result, logger *zap.Logger) *Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base{
		name:    name,
		results: cache.New(workers, newResult),
		logger:  logger,
	}
}

func (b *Base) Name() string               { return b.name }
func (b *Base) Dependencies() []string      { return append([]string(nil), b.dependencies...) }
func (b *Base) Hidden() bool                { return b.hide }
func (b *Base) Comment() string             { return b.comment }
func (b *Base) SetHidden(hide bool)         { b.hide = hide }
func (b *Base) SetComment(comment string)   { b.comment = comment }
func (b *Base) SetCondition(p Processor)    { b.condition = p }
func (b *Base) AddDependency(name string) {
	for _, d := range b.dependencies {
		if d == name {
			return
		}
	}
	b.dependencies = append(b.dependencies, name)
}

// ProcessEvent implements spec.md §4.F's five steps exactly, including
// the ground-truth detail (original_source/cass/processing/processor.cpp
// Processor::processEvent) that promotion to "latest" happens only
// when the condition was true — a false condition leaves the newly
// reserved slot stamped but unpromoted, so result(0) keeps returning
// the previous latest.
func (b *Base) ProcessEvent(evt *event.CASSEvent) error {
	res := b.results.NewItem(uint64(evt.ID))

	ok, err := b.conditionTrue(evt)
	if err != nil {
		b.logger.Error("condition evaluation failed",
			zap.String("processor", b.name), zap.Uint64("event", uint64(evt.ID)), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	res.Lock()
	res.SetID(uint64(evt.ID))
	var procErr error
	if b.ProcessFunc != nil {
		procErr = b.ProcessFunc(evt, res)
	}
	res.Unlock()

	if procErr != nil {
		if errors.Is(procErr, ErrInvalidData) || errors.Is(procErr, ErrShapeMismatch) || errors.Is(procErr, event.ErrDeviceAbsent) {
			b.logger.Error("skipping event",
				zap.String("processor", b.name), zap.Uint64("event", uint64(evt.ID)), zap.Error(procErr))
			return nil
		}
		return fmt.Errorf("proc %q: %w", b.name, procErr)
	}

	b.results.PromoteLatest(res)
	return nil
}

func (b *Base) conditionTrue(evt *event.CASSEvent) (bool, error) {
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

func (b *Base) Result(id uint64) (*result.Result, error) {
	if id == 0 {
		return b.results.Latest(), nil
	}
	return b.results.Item(id)
}

func (b *Base) ReleaseEvent(evt *event.CASSEvent) {
	b.results.Release(uint64(evt.ID))
}

// Load records nothing by default beyond invoking LoadFunc; concrete
// processors call b.AddDependency from inside LoadFunc as they resolve
// configured dependency-name keys (the "setupDependency" idiom of
// original_source/cass/processing/processor.cpp).
func (b *Base) Load() error {
	if b.LoadFunc != nil {
		return b.LoadFunc()
	}
	return nil
}

func (b *Base) LoadSettings(resolve func(name string) (Processor, error)) error {
	if b.LoadSettingsFunc != nil {
		return b.LoadSettingsFunc(resolve)
	}
	return nil
}

func (b *Base) AboutToQuit() error {
	if b.AboutToQuitFunc != nil {
		return b.AboutToQuitFunc()
	}
	return nil
}

func (b *Base) ProcessCommand(cmd string) error {
	if b.ProcessCommandFunc != nil {
		return b.ProcessCommandFunc(cmd)
	}
	return nil
}
