package coalesce

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/manager"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// Column layout of the pixel-list operand table.
const (
	colX = iota
	colY
	colZ
)

// Column layout of the emitted hit-list table.
const (
	hitX = iota
	hitY
	hitZ
	hitN
	hitCols
)

func resolveOperand(resolve func(string) (proc.Processor, error), owner, operand string) (proc.Processor, error) {
	p, err := resolve(operand)
	if err != nil {
		return nil, fmt.Errorf("coalesce %q: operand %q: %w", owner, operand, err)
	}
	return p, nil
}

// NewCoalesce builds the pp105/pp148 processor wrapper: given a
// per-event above-threshold pixel-list table ({x,y,z} columns) and the
// raw 2-D frame it was thresholded from, runs the coalescing engine
// and emits one row per accepted hit ({x,y,z,nPixels}). Both pp-kind
// strings bind to this same constructor — spec.md §4.J is explicit
// that the engine is "separately callable from pp105/148", with no
// behavioural difference documented between the two ids.
func NewCoalesce(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	pixelsOperand := store.String(name, "pixels", "Pixels")
	frameOperand := store.String(name, "frame", "RawImage")
	mipThreshold := float32(store.Float(name, "mip_threshold", 1e6))

	var pixelsProc, frameProc proc.Processor
	var cols, rows int

	b := proc.NewBase(name, workers, func() *result.Result { return result.NewTable(name, hitCols) }, logNop(logger))
	b.LoadFunc = func() error {
		b.AddDependency(pixelsOperand)
		b.AddDependency(frameOperand)
		return nil
	}
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		p, err := resolveOperand(resolve, name, pixelsOperand)
		if err != nil {
			return err
		}
		pixelsProc = p

		f, err := resolveOperand(resolve, name, frameOperand)
		if err != nil {
			return err
		}
		frameProc = f
		fr, err := f.Result(0)
		if err != nil {
			return err
		}
		fr.RLock()
		shape := fr.Shape()
		cols, rows = fr.NBinsX(), fr.NBinsY()
		fr.RUnlock()
		if shape != result.Shape2D {
			return fmt.Errorf("coalesce %q: frame operand %q is not a 2-D frame", name, frameOperand)
		}
		return nil
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		pxRes, err := pixelsProc.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		pxRes.RLock()
		if pxRes.Shape() != result.ShapeTable {
			pxRes.RUnlock()
			return fmt.Errorf("%w: pixel list %q is not a table", proc.ErrShapeMismatch, pixelsOperand)
		}
		nRows := pxRes.NBinsY()
		pixels := make([]Pixel, nRows)
		for i := 0; i < nRows; i++ {
			row := pxRes.Row(i)
			pixels[i] = Pixel{X: uint16(row[colX]), Y: uint16(row[colY]), Z: row[colZ]}
		}
		pxRes.RUnlock()

		frRes, err := frameProc.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		frRes.RLock()
		frame := append([]float32(nil), frRes.Storage()...)
		frRes.RUnlock()

		hits := Run(pixels, frame, cols, rows, mipThreshold)

		res.ResetTable()
		flat := make([]float32, 0, len(hits)*hitCols)
		for _, h := range hits {
			flat = append(flat, h.X, h.Y, h.Z, float32(h.NPixels))
		}
		return res.AppendRows(flat)
	}
	return b, nil
}

func logNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Register wires pp105 and pp148 (spec.md §4.J) into m's constructor
// registry.
func Register(m *manager.Manager, store *config.Store) {
	reg := func(kind string, ctor func(string, int, *config.Store, *zap.Logger) (proc.Processor, error)) {
		m.RegisterKind(kind, func(name string, workers int, logger *zap.Logger) (proc.Processor, error) {
			return ctor(name, workers, store, logger)
		})
	}
	reg("105", NewCoalesce)
	reg("148", NewCoalesce)
}
