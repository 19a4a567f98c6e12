// Package device implements the polymorphic device payloads carried by
// a CASSEvent: pixel detectors, waveform digitizers (Acqiris), TDC
// channels and scalar machine/beamline data. Each payload type
// implements the Device capability interface — spec.md §9 calls for
// capability interfaces over the original's abstract base classes.
package device

import "github.com/lcls-cass/cassgo/cass/wire"

// Tag names one of the fixed device slots a CASSEvent can carry.
type Tag int

const (
	TagAcqiris Tag = iota
	TagAcqirisTDC
	TagPixelDetectors
	TagMachineData
	numTags
)

// NumTags is the number of fixed device slots in a CASSEvent.
const NumTags = int(numTags)

func (t Tag) String() string {
	switch t {
	case TagAcqiris:
		return "Acqiris"
	case TagAcqirisTDC:
		return "AcqirisTDC"
	case TagPixelDetectors:
		return "PixelDetectors"
	case TagMachineData:
		return "MachineData"
	default:
		return "Unknown"
	}
}

// Device is the capability every device payload implements: binary
// (de)serialization of itself. Payloads that carry more than one
// sub-detector additionally implement Detectors.
type Device interface {
	Serialize(wr *wire.Writer)
	Deserialize(rd *wire.Reader)
}

// Detector is implemented by a device payload that carries an ordered
// sequence of per-detector sub-objects (e.g. PixelDetectors holding
// several physical cameras).
type Detector interface {
	NumDetectors() int
}
