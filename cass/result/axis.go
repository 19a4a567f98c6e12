// Package result implements the uniform value/1-D/2-D/table container
// that every processor consumes and produces: axes with over/underflow
// accounting, contiguous float32 storage, and a binary-compatible
// serialization format shared with cass/wire.
package result

import "math"

// Axis describes one histogrammed dimension.
type Axis struct {
	NBins int
	Low   float64
	Up    float64
	Title string
}

// bin classifies v against the axis. ok is true when v falls inside
// [Low, Up) and idx is the data bin index. When ok is false, under
// reports whether v routes to the underflow side (true) or the
// overflow side (false) — non-finite values always route underflow.
func (a Axis) bin(v float64) (idx int, ok bool, under bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, true
	}
	if v < a.Low {
		return 0, false, true
	}
	if v >= a.Up {
		return 0, false, false
	}
	width := a.Up - a.Low
	idx = int(math.Floor(float64(a.NBins) * (v - a.Low) / width))
	if idx < 0 {
		return 0, false, true
	}
	if idx >= a.NBins {
		return 0, false, false
	}
	return idx, true, false
}
