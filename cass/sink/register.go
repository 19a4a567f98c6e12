package sink

import (
	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/manager"
	"github.com/lcls-cass/cassgo/cass/proc"
)

type ctor func(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error)

// Register wires pp1002 (HDF5-style), pp1500 (CBF) and pp2000
// (ROOT-style) into m's constructor registry (spec.md §4.L).
func Register(m *manager.Manager, store *config.Store) {
	bind := func(kind string, c ctor) {
		m.RegisterKind(kind, func(name string, workers int, logger *zap.Logger) (proc.Processor, error) {
			return c(name, workers, store, logger)
		})
	}
	bind("1002", NewHDF5Sink)
	bind("1500", NewCBFSink)
	bind("2000", NewROOTSink)
}
