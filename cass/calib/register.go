package calib

import (
	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/manager"
	"github.com/lcls-cass/cassgo/cass/proc"
)

// Register wires pp330-334 (spec.md §4.I) into m's constructor
// registry, mirroring stdproc.Register's closure-over-store pattern.
func Register(m *manager.Manager, store *config.Store) {
	reg := func(kind string, ctor func(string, int, *config.Store, *zap.Logger) (proc.Processor, error)) {
		m.RegisterKind(kind, func(name string, workers int, logger *zap.Logger) (proc.Processor, error) {
			return ctor(name, workers, store, logger)
		})
	}

	reg("330", NewDarkcal)
	reg("331", NewGain)
	reg("332", NewHotPixel)
	reg("333", NewCommonModeBackground)
	reg("334", NewASICCommonMode)
}
