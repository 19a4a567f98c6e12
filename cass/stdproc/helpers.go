// Package stdproc implements spec.md §4.H's standard processor family
// (pp1..pp91): algebra, projections, histogramming, accumulators,
// statistics probes and control processors, each a thin func value
// plugged into proc.Base / proc.AccumulatingBase per the registry
// pattern of spec.md §9. Every constructor here is registered under its
// pp-kind string by Register, which cmd/cassd calls once at startup.
package stdproc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// resolveOperand looks up a configured operand-processor name through
// the LoadSettings resolve callback, wrapping the lookup failure with
// the owning processor's own name for easier diagnosis.
func resolveOperand(resolve func(string) (proc.Processor, error), owner, operand string) (proc.Processor, error) {
	p, err := resolve(operand)
	if err != nil {
		return nil, fmt.Errorf("stdproc %q: operand %q: %w", owner, operand, err)
	}
	return p, nil
}

// operandValue reads operand's result for evtID as a plain float32,
// meaningful for ShapeValue operands (scalars and conditions).
func operandValue(p proc.Processor, evtID uint64) (float32, error) {
	res, err := p.Result(evtID)
	if err != nil {
		return 0, err
	}
	res.RLock()
	defer res.RUnlock()
	return res.GetValue(), nil
}

// checkShape is stdproc's own shape guard (proc.checkShape is
// unexported to its package), raising proc.ErrShapeMismatch the same
// way Base's ProcessEvent expects so the event is skipped and logged
// rather than aborting the run.
func checkShape(got, want result.Shape) error {
	if got != want {
		return fmt.Errorf("%w: have %s, want %s", proc.ErrShapeMismatch, got, want)
	}
	return nil
}

// newLogger defends against a nil logger reaching a processor
// constructor directly (tests construct processors without a manager).
func newLogger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// cfgAxis reads a 1-D axis definition from "<name>.<prefix>nbins/low/up".
func cfgAxis(store *config.Store, name, prefix string, defNBins int, defLow, defUp float64) result.Axis {
	return result.Axis{
		NBins: store.Int(name, prefix+"nbins", defNBins),
		Low:   store.Float(name, prefix+"low", defLow),
		Up:    store.Float(name, prefix+"up", defUp),
	}
}
