package acqiris

import (
	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/manager"
	"github.com/lcls-cass/cassgo/cass/proc"
)

type ctor func(name string, workers int, store *config.Store, reg *DetectorRegistry, logger *zap.Logger) (proc.Processor, error)

// Register wires pp150..pp167, pp220, pp250..pp252 and pp5000/5001
// (spec.md §4.K) into m's constructor registry. Every constructor
// shares one DetectorRegistry so processors bound to the same detector
// name reuse the same cached DetectorConfig.
func Register(m *manager.Manager, store *config.Store) {
	reg := NewDetectorRegistry()
	bind := func(kind string, c ctor) {
		m.RegisterKind(kind, func(name string, workers int, logger *zap.Logger) (proc.Processor, error) {
			return c(name, workers, store, reg, logger)
		})
	}
	bind("150", NewMCPSignalCount)
	bind("151", NewMCPSignalTimes)
	bind("152", NewMCPFwhmVsHeight)
	bind("153", NewMCPDeadtime)
	bind("160", NewAnodeSignalCount)
	bind("161", NewAnodeFwhmVsHeight)
	bind("162", NewLayerTimesum)
	bind("163", NewLayerTimesumVsPosition)
	bind("164", NewDetectorFirstHit)
	bind("165", NewDetectorHitCount)
	bind("166", NewDetectorHitScatter)
	bind("167", NewAnodeDeadtime)
	bind("220", NewPIPICO)
	bind("250", NewParticleValue)
	bind("251", NewParticleScatter)
	bind("252", NewParticleCount)
	bind("5000", NewParticleEnergySpectrum)
	bind("5001", NewTripleCoincidence)
}
