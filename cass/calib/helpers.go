// Package calib implements spec.md §4.I's calibration and frame
// processors: dark/noise calibration with a train/update state
// machine (pp330), gain calibration (pp331), hot-pixel streak
// detection (pp332), and the two common-mode background estimators
// (pp333/pp334). Grounded throughout on
// original_source/cass/processing/pixel_detector_calibration.cpp,
// following the same proc.Base/proc.AccumulatingBase construction
// pattern cass/stdproc establishes.
package calib

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// resolveOperand mirrors stdproc's own helper of the same name — each
// domain package keeps a local copy rather than reaching across
// package boundaries for an unexported detail.
func resolveOperand(resolve func(string) (proc.Processor, error), owner, operand string) (proc.Processor, error) {
	p, err := resolve(operand)
	if err != nil {
		return nil, fmt.Errorf("calib %q: operand %q: %w", owner, operand, err)
	}
	return p, nil
}

func checkShape(got, want result.Shape) error {
	if got != want {
		return fmt.Errorf("%w: have %s, want %s", proc.ErrShapeMismatch, got, want)
	}
	return nil
}

func newLogger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
