package acqiris

import (
	"math"

	"github.com/lcls-cass/cassgo/cass/device"
)

// Signal is one peak extracted from a channel: a hit time plus, for
// waveform-derived signals, the coarse shape properties pp152/pp161
// histogram. Signals synthesized directly from a TDC's already-
// digitized hit times carry Fwhm/Height at zero — the digitizer never
// reports pulse shape, only arrival time.
type Signal struct {
	Time   float64
	Fwhm   float64
	Height float64
}

// ExtractSignals runs a threshold-crossing peak finder over one
// Acqiris waveform channel, grounded on the shape of
// original_source/cass_acqiris's SignalExtractor family: walk the
// calibrated trace, open a peak window when it crosses threshold in
// the pulse's polarity, track the extremum sample as the peak height,
// and close the window on the opposite crossing, reporting the
// extremum's horizontal position (scaled to the channel's sample
// interval and corrected by its horizontal position) as Time and the
// window width as Fwhm. polarity<0 selects negative-going pulses
// (the common MCP/CFD convention), polarity>0 positive-going.
func ExtractSignals(ch *device.Channel, threshold float64, polarity int) []Signal {
	var signals []Signal
	inPeak := false
	var peakIdx int
	var peakVal float64
	var startIdx int

	crossed := func(v float64) bool {
		if polarity < 0 {
			return v < threshold
		}
		return v > threshold
	}
	better := func(v, best float64) bool {
		if polarity < 0 {
			return v < best
		}
		return v > best
	}

	for i := 0; i < len(ch.Samples); i++ {
		v := ch.Volts(i)
		switch {
		case !inPeak && crossed(v):
			inPeak = true
			startIdx = i
			peakIdx = i
			peakVal = v
		case inPeak && crossed(v):
			if better(v, peakVal) {
				peakVal = v
				peakIdx = i
			}
		case inPeak && !crossed(v):
			signals = append(signals, Signal{
				Time:   ch.HorPos + float64(peakIdx)*ch.SampleInt,
				Fwhm:   float64(i-startIdx) * ch.SampleInt,
				Height: math.Abs(peakVal - threshold),
			})
			inPeak = false
		}
	}
	return signals
}

// TDCSignals converts a TDC channel's hit times directly into Signals.
func TDCSignals(ch *device.TDCChannel) []Signal {
	signals := make([]Signal, len(ch.HitTimes))
	for i, t := range ch.HitTimes {
		signals[i] = Signal{Time: t}
	}
	return signals
}
