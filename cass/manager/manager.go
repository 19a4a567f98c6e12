// Package manager implements the ProcessorManager of spec.md §4.G: the
// graph owner — registry, depth-first dependency instantiation with
// cycle detection, topological ordering, per-event traversal, and
// command/shutdown fan-out.
package manager

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/metrics"
	"github.com/lcls-cass/cassgo/cass/proc"
)

// Fatal configuration-time errors (spec.md §7): these abort graph
// construction with a diagnostic, never surface at event time.
var (
	ErrUnknownKind      = errors.New("manager: unknown processor kind")
	ErrUnknownProcessor = errors.New("manager: unknown processor")
	ErrCyclicGraph      = errors.New("manager: cyclic dependency graph")
)

// Constructor builds a fresh, unconfigured Processor of one pp-kind.
// Concrete kinds (stdproc, calib, coalesce, acqiris, sink) register a
// Constructor per kind string through each package's Register function,
// which cmd/cassd calls explicitly at startup, per spec.md §9's
// "registry from string to constructor" recommendation.
type Constructor func(name string, workers int, logger *zap.Logger) (proc.Processor, error)

// KindLookup resolves a processor name (as found in the activation set
// or discovered as someone else's dependency) to its configured
// pp-kind string. The config package supplies this by reading
// Processor/<name>/ID from the hierarchical store.
type KindLookup func(name string) (kind string, err error)

// Manager owns the processor registry and the topologically ordered
// activation list. The reader/writer lock below is the Go analogue of
// the source's QReadWriteLock: write-held only across Load, read-held
// for every ProcessEvent call, and read-held by ProcessCommand only
// while it looks up the target processor (spec.md §4.F
// "Shared-resource policy").
type Manager struct {
	mu sync.RWMutex

	workers  int
	logger   *zap.Logger
	registry map[string]Constructor
	kindOf   KindLookup
	metrics  *metrics.Facade

	processors map[string]proc.Processor
	active     []string // topological order: dependencies before dependents
}

// SetMetrics attaches the counters/gauges facade of spec.md §4.P.
// Optional: a Manager with no Facade attached simply skips recording.
// Call before Load so the active_processors gauge is set immediately.
func (m *Manager) SetMetrics(f *metrics.Facade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = f
}

// New constructs an empty manager. Register constructors with
// RegisterKind, then build the graph with Load.
func New(workers int, kindOf KindLookup, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		workers:    workers,
		logger:     logger,
		kindOf:     kindOf,
		registry:   make(map[string]Constructor),
		processors: make(map[string]proc.Processor),
	}
}

// RegisterKind adds a pp-kind constructor to the registry. Call this
// before Load; registering the same kind twice overwrites the prior
// constructor.
func (m *Manager) RegisterKind(kind string, ctor Constructor) {
	m.registry[kind] = ctor
}

// Load builds the graph from the activation set `active`: each name is
// instantiated (depth-first, following dependencies discovered at each
// processor's own Load()), cycles are rejected, and the result is
// stored as the topologically ordered active list. This is the
// write-locked "Reload" section of spec.md §5.
func (m *Manager) Load(active []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processors = make(map[string]proc.Processor)
	var order []string
	visiting := make(map[string]bool)

	var ensure func(name string) (proc.Processor, error)
	ensure = func(name string) (proc.Processor, error) {
		if p, ok := m.processors[name]; ok {
			return p, nil
		}
		if visiting[name] {
			return nil, fmt.Errorf("%w: %s", ErrCyclicGraph, name)
		}
		visiting[name] = true
		defer delete(visiting, name)

		kind, err := m.kindOf(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
		}
		ctor, ok := m.registry[kind]
		if !ok {
			return nil, fmt.Errorf("%w: %s (processor %q)", ErrUnknownKind, kind, name)
		}
		p, err := ctor(name, m.workers, m.logger)
		if err != nil {
			return nil, fmt.Errorf("manager: constructing %q: %w", name, err)
		}
		m.processors[name] = p

		if err := p.Load(); err != nil {
			return nil, fmt.Errorf("manager: loading %q: %w", name, err)
		}
		for _, dep := range p.Dependencies() {
			if _, err := ensure(dep); err != nil {
				return nil, err
			}
		}
		order = append(order, name)
		return p, nil
	}

	for _, name := range active {
		if _, err := ensure(name); err != nil {
			return err
		}
	}

	resolve := func(name string) (proc.Processor, error) {
		p, ok := m.processors[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
		}
		return p, nil
	}
	for _, name := range order {
		if err := m.processors[name].LoadSettings(resolve); err != nil {
			return fmt.Errorf("manager: loadSettings %q: %w", name, err)
		}
	}

	m.active = order
	if m.metrics != nil {
		m.metrics.SetActiveProcessors(len(order))
	}
	return nil
}

// ProcessEvent drives evt through every active processor in
// topological order. Workers call this concurrently on distinct
// events; within one event the traversal is strictly sequential so a
// processor's dependencies have already produced their slot for this
// event id (spec.md §4.G, property 9).
func (m *Manager) ProcessEvent(evt *event.CASSEvent) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range m.active {
		start := time.Now()
		err := m.processors[name].ProcessEvent(evt)
		if m.metrics != nil {
			m.metrics.ObserveWrite(name, time.Since(start))
		}
		if err != nil {
			if m.metrics != nil {
				m.metrics.ProcessorError(name)
			}
			return fmt.Errorf("manager: processor %q: %w", name, err)
		}
	}
	if m.metrics != nil {
		m.metrics.EventProcessed()
	}
	return nil
}

// ReleaseEvent returns evt's slot in every active processor's
// CachedList to the free pool.
func (m *Manager) ReleaseEvent(evt *event.CASSEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range m.active {
		m.processors[name].ReleaseEvent(evt)
	}
}

// ProcessCommand dispatches cmd to exactly one processor by name
// (point-to-point; spec.md §4.G).
func (m *Manager) ProcessCommand(name, cmd string) error {
	m.mu.RLock()
	p, ok := m.processors[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
	}
	return p.ProcessCommand(cmd)
}

// AboutToQuit fans out to every processor exactly once, in reverse
// topological order: dependents first, their dependencies after, so a
// sink's AboutToQuit runs before those of the processors feeding it.
func (m *Manager) AboutToQuit() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var errs []error
	for i := len(m.active) - 1; i >= 0; i-- {
		name := m.active[i]
		if err := m.processors[name].AboutToQuit(); err != nil {
			errs = append(errs, fmt.Errorf("manager: aboutToQuit %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Processor returns the named active processor, for callers (e.g.
// a viewer or test) that need direct result access.
func (m *Manager) Processor(name string) (proc.Processor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.processors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
	}
	return p, nil
}

// ActiveList returns the topologically ordered list of active
// processor names (dependencies before dependents).
func (m *Manager) ActiveList() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.active...)
}
