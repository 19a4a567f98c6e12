package stdproc

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/manager"
	"github.com/lcls-cass/cassgo/cass/proc"
)

// Register wires every pp-kind string of spec.md §4.H into m's
// constructor registry, closing each over store so per-instance
// configuration (operand names, axes, operation symbols) is read at
// graph-load time. quit is the process-wide shutdown flag pp76 sets
// and cmd/cassd's worker loop polls.
func Register(m *manager.Manager, store *config.Store, quit *atomic.Bool) {
	reg := func(kind string, ctor func(string, int, *config.Store, *zap.Logger) (proc.Processor, error)) {
		m.RegisterKind(kind, func(name string, workers int, logger *zap.Logger) (proc.Processor, error) {
			return ctor(name, workers, store, logger)
		})
	}

	// Binary/unary algebra.
	for _, kind := range []string{"1", "2", "4", "9", "13", "40", "41"} {
		reg(kind, NewAlgebra)
	}

	// Projections.
	reg("50", func(n string, w int, s *config.Store, l *zap.Logger) (proc.Processor, error) {
		return NewProjection(n, w, s, l, false)
	})
	reg("57", func(n string, w int, s *config.Store, l *zap.Logger) (proc.Processor, error) {
		return NewProjection(n, w, s, l, true)
	})

	// Integral/slice.
	reg("51", NewIntegral)
	reg("70", NewSlice2D)
	reg("72", NewTableColumn)
	reg("73", NewTableRowFilter)
	reg("74", NewTableCell)
	reg("79", NewTableHistogram2D)

	// Histogramming. pp65-pp69's exact behaviours (which operand count
	// feeds which axis, accumulate vs. set) follow
	// original_source/cass/processing/operations.h's Doxygen comments
	// for each id.
	reg("60", NewFillHistogram1D)
	reg("65", NewScatterValuePair)
	reg("66", NewScatterOuter)
	reg("67", NewWeightedHistogramCount)
	reg("68", NewRowInsert)
	reg("69", NewScatterSet)

	// Accumulators.
	reg("61", NewCumulativeMean)
	reg("62", NewCumulativeSquareMean)
	reg("63", NewRunningSum)
	reg("64", NewTimeBucketAverage)
	reg("78", NewShiftRegister)

	// Statistics probes.
	reg("71", NewMinMax)
	reg("81", func(n string, w int, s *config.Store, l *zap.Logger) (proc.Processor, error) {
		return NewBinSummary(n, w, s, l, "mean")
	})
	reg("91", func(n string, w int, s *config.Store, l *zap.Logger) (proc.Processor, error) {
		return NewBinSummary(n, w, s, l, "stdv")
	})
	reg("82", NewFWHM)
	reg("85", NewRisingEdge)
	reg("86", NewCenterOfMass)
	reg("87", NewLocalMinima)
	reg("88", NewAxisParameter)

	// Filter.
	reg("89", NewIIRFilter)

	// On-line covariance (partial_covariance.h's pp410/pp412).
	reg("410", NewCovarianceMap)
	reg("412", NewIntensityCovariance)

	// Control.
	reg("12", NewConstant)
	reg("15", NewChangeDetector)
	reg("75", NewClearTarget)
	reg("76", func(n string, w int, s *config.Store, l *zap.Logger) (proc.Processor, error) {
		return NewShutdown(n, w, s, l, quit)
	})
	reg("77", NewIDMembership)

	// Ambient value extraction.
	reg("machinevalue", NewMachineValue)
}
