// Package metrics implements the small in-process counters/gauges
// facade of spec.md §4.P. prometheus/client_golang is deliberately not
// used here (SPEC_FULL.md §10): nothing in this module scrapes metrics
// over HTTP, so a scrape-server client would sit unused. The facade is
// plain sync/atomic counters plus a mutex-guarded map for the
// per-processor and per-sink breakdowns, snapshotted on demand.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Facade is the counters/gauges object spec.md §4.P names:
// events_processed_total, processor_errors_total{processor},
// sink_write_seconds{sink}, active_processors. The manager owns one
// instance and increments it; processors never import this package
// directly (spec.md §4.P "keeps process() pure of ambient concerns").
type Facade struct {
	eventsProcessed atomic.Uint64
	activeCount     atomic.Int64

	mu           sync.Mutex
	processorErr map[string]uint64
	writeCount   map[string]uint64
	writeNanos   map[string]int64
}

// New returns a zeroed Facade, ready to record.
func New() *Facade {
	return &Facade{
		processorErr: make(map[string]uint64),
		writeCount:   make(map[string]uint64),
		writeNanos:   make(map[string]int64),
	}
}

// EventProcessed increments events_processed_total by one.
func (f *Facade) EventProcessed() {
	f.eventsProcessed.Add(1)
}

// ProcessorError increments processor_errors_total{processor}.
func (f *Facade) ProcessorError(processor string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processorErr[processor]++
}

// SetActiveProcessors sets the active_processors gauge, called once
// after a successful manager.Load.
func (f *Facade) SetActiveProcessors(n int) {
	f.activeCount.Store(int64(n))
}

// ObserveWrite records one sink_write_seconds{sink} observation.
func (f *Facade) ObserveWrite(sink string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCount[sink]++
	f.writeNanos[sink] += d.Nanoseconds()
}

// Snapshot is a point-in-time, read-only copy suitable for logging or
// an admin-inspection endpoint.
type Snapshot struct {
	EventsProcessed  uint64
	ActiveProcessors int64
	ProcessorErrors  map[string]uint64
	// WriteSecondsTotal and WriteCount are keyed by sink/processor
	// name; dividing the two gives the mean write latency spec.md
	// §4.P's histogram name suggests, without carrying a full
	// histogram-bucket implementation no component here needs.
	WriteSecondsTotal map[string]float64
	WriteCount        map[string]uint64
}

// Snapshot copies the current counters out from under the lock.
func (f *Facade) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Snapshot{
		EventsProcessed:   f.eventsProcessed.Load(),
		ActiveProcessors:  f.activeCount.Load(),
		ProcessorErrors:   make(map[string]uint64, len(f.processorErr)),
		WriteSecondsTotal: make(map[string]float64, len(f.writeNanos)),
		WriteCount:        make(map[string]uint64, len(f.writeCount)),
	}
	for k, v := range f.processorErr {
		s.ProcessorErrors[k] = v
	}
	for k, v := range f.writeNanos {
		s.WriteSecondsTotal[k] = time.Duration(v).Seconds()
	}
	for k, v := range f.writeCount {
		s.WriteCount[k] = v
	}
	return s
}
