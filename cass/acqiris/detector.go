package acqiris

import (
	"github.com/lcls-cass/cassgo/cass/event"
)

// TofDetector is the per-event view pp150..pp153/pp220 operate on: just
// the MCP channel's extracted signals, mirroring
// original_source's TofDetector.
type TofDetector struct {
	MCP []Signal
}

// BuildTofDetector reads detector's MCP channel off evt.
func BuildTofDetector(evt *event.CASSEvent, cfg DetectorConfig) (TofDetector, error) {
	mcp, err := signalsFor(evt, cfg, cfg.MCPChannel)
	if err != nil {
		return TofDetector{}, err
	}
	return TofDetector{MCP: mcp}, nil
}

// Layer is one delay-line anode's two wireend signal sets.
type Layer struct {
	WireEnd1 []Signal
	WireEnd2 []Signal
}

// DetectorHit is one reconstructed position+time-of-flight hit on a
// delay-line detector's active area.
type DetectorHit struct {
	X, Y float64
	Tof  float64
}

// DelaylineDetector is the per-event view pp160..pp167/pp250..pp252
// operate on: the MCP signal set plus each configured anode layer's
// wireend signal sets, mirroring original_source's DelaylineDetector.
type DelaylineDetector struct {
	MCP    []Signal
	Layers map[byte]Layer
}

// BuildDelaylineDetector reads detector's MCP and every configured
// layer's wireend channels off evt.
func BuildDelaylineDetector(evt *event.CASSEvent, cfg DetectorConfig) (DelaylineDetector, error) {
	mcp, err := signalsFor(evt, cfg, cfg.MCPChannel)
	if err != nil {
		return DelaylineDetector{}, err
	}
	det := DelaylineDetector{MCP: mcp, Layers: make(map[byte]Layer, len(cfg.Layers))}
	for name, lc := range cfg.Layers {
		w1, err := signalsFor(evt, cfg, lc.WireEnd1Channel)
		if err != nil {
			return DelaylineDetector{}, err
		}
		w2, err := signalsFor(evt, cfg, lc.WireEnd2Channel)
		if err != nil {
			return DelaylineDetector{}, err
		}
		det.Layers[name] = Layer{WireEnd1: w1, WireEnd2: w2}
	}
	return det, nil
}

// FirstGood returns the first signal in signals whose Time lies strictly
// inside (low, high), or 0 when none does — matching
// original_source/cass_acqiris's SignalProducer::firstGood, which
// likewise falls back to 0.0 rather than signalling "not found" to its
// caller (pp162..pp164 use the returned value unconditionally in a
// timesum expression).
func FirstGood(signals []Signal, low, high float64) float64 {
	for _, s := range signals {
		if low < s.Time && s.Time < high {
			return s.Time
		}
	}
	return 0
}

// Timesum is the delay-line invariant t1+t2-2*tMCP (GLOSSARY
// "Timesum"), used both to validate candidate hit pairs and to derive
// the layer's position coordinate t1-t2.
func Timesum(wireEnd1, wireEnd2, mcp float64) float64 {
	return wireEnd1 + wireEnd2 - 2*mcp
}

// Hits reconstructs every valid position hit on a quad (X/Y) delay-line
// detector: for each MCP signal, and for each of the two configured
// layers, every wireend1/wireend2 pair whose timesum falls within
// tsRange for that layer is a candidate; the first candidate pair per
// layer per MCP signal is kept (first-good selection, the same
// simplification pp162/pp163/pp164 make explicit with their own
// firstGood-based single-hit logic). This quad-only reconstruction is
// a deliberate scope decision: original_source's general sorter also
// supports hex (U/V/W) layers with a three-way redundancy check, which
// this port does not carry — BuildDelaylineDetector still fills a 'W'
// layer if configured, but Hits only consumes 'X'/'Y'.
func (d DelaylineDetector) Hits(tsRangeX, tsRangeY [2]float64) []DetectorHit {
	layerX, okX := d.Layers['X']
	layerY, okY := d.Layers['Y']
	if !okX || !okY {
		return nil
	}
	var hits []DetectorHit
	for _, mcp := range d.MCP {
		x, okx := firstGoodPair(layerX, mcp.Time, tsRangeX)
		y, oky := firstGoodPair(layerY, mcp.Time, tsRangeY)
		if okx && oky {
			hits = append(hits, DetectorHit{X: x, Y: y, Tof: mcp.Time})
		}
	}
	return hits
}

// firstGoodPair finds the first wireend1/wireend2 pair on layer whose
// timesum against mcpTime falls within tsRange, returning the layer's
// position coordinate t1-t2.
func firstGoodPair(layer Layer, mcpTime float64, tsRange [2]float64) (float64, bool) {
	for _, s1 := range layer.WireEnd1 {
		for _, s2 := range layer.WireEnd2 {
			ts := Timesum(s1.Time, s2.Time, mcpTime)
			if tsRange[0] < ts && ts < tsRange[1] {
				return s1.Time - s2.Time, true
			}
		}
	}
	return 0, false
}
