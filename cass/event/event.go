package event

import (
	"fmt"

	"github.com/lcls-cass/cassgo/cass/device"
	"github.com/lcls-cass/cassgo/cass/wire"
)

// wireVersion is bumped whenever the event's on-disk layout changes.
const wireVersion = uint16(1)

// ErrDeviceAbsent is raised by Device when a reader or processor
// requires a device payload that was never populated for this event.
var ErrDeviceAbsent = fmt.Errorf("event: device absent")

// CASSEvent is the event aggregate of spec.md §3/§4.D: a monotonic id
// plus a fixed mapping from device tag to device payload. The mapping
// is preallocated once per pooled event object and reused across
// events (spec.md §3 "Lifecycles").
type CASSEvent struct {
	ID      ID
	devices [device.NumTags]device.Device
	present [device.NumTags]bool
}

// New constructs an empty event, ready for Reset/population by a reader.
func New() *CASSEvent {
	return &CASSEvent{}
}

// Reset clears the id and every device slot so the event object can be
// reused for the next read, without reallocating the backing array.
func (e *CASSEvent) Reset() {
	e.ID = 0
	for i := range e.devices {
		e.devices[i] = nil
		e.present[i] = false
	}
}

// SetDevice installs payload under tag, marking it present. A device
// explicitly set to nil by a reader that found no data for that tag
// would be indistinguishable from "never touched"; readers instead
// simply do not call SetDevice for an absent device.
func (e *CASSEvent) SetDevice(tag device.Tag, payload device.Device) {
	e.devices[tag] = payload
	e.present[tag] = true
}

// Device returns the payload for tag, or ErrDeviceAbsent if the event
// carries no data for that device — distinct from a device that is
// present but empty (spec.md §4.D).
func (e *CASSEvent) Device(tag device.Tag) (device.Device, error) {
	if !e.present[tag] {
		return nil, fmt.Errorf("%w: %s", ErrDeviceAbsent, tag)
	}
	return e.devices[tag], nil
}

// HasDevice reports whether tag is present without raising an error.
func (e *CASSEvent) HasDevice(tag device.Tag) bool { return e.present[tag] }

// Serialize writes {version, id, each device serialized in tag order}.
// Device payload sizes are self-describing, so absent devices are
// simply omitted with a presence flag ahead of them.
func (e *CASSEvent) Serialize(wr *wire.Writer) {
	wr.U16(wireVersion)
	wr.U64(uint64(e.ID))
	for tag := 0; tag < device.NumTags; tag++ {
		wr.Bool(e.present[tag])
		if e.present[tag] {
			e.devices[tag].Serialize(wr)
		}
	}
}

// Deserialize reconstructs e in place, walking the same tag order.
// Callers must supply a factory for each tag (how to construct an
// empty payload) since the wire format carries no type tag of its own
// — the tag order itself is the type information, per spec.md §4.D.
func (e *CASSEvent) Deserialize(rd *wire.Reader, factories [device.NumTags]func() device.Device) {
	rd.CheckVersion(wireVersion)
	if rd.Err() != nil {
		return
	}
	e.ID = ID(rd.U64())
	for tag := 0; tag < device.NumTags; tag++ {
		present := rd.Bool()
		e.present[tag] = present
		if present {
			payload := factories[tag]()
			payload.Deserialize(rd)
			e.devices[tag] = payload
		} else {
			e.devices[tag] = nil
		}
	}
}

// DefaultFactories returns the standard device.Tag -> constructor
// mapping used by Deserialize outside of tests.
func DefaultFactories() [device.NumTags]func() device.Device {
	return [device.NumTags]func() device.Device{
		device.TagAcqiris:        func() device.Device { return &device.Acqiris{} },
		device.TagAcqirisTDC:     func() device.Device { return &device.AcqirisTDC{} },
		device.TagPixelDetectors: func() device.Device { return &device.PixelDetectors{} },
		device.TagMachineData:    func() device.Device { return &device.MachineData{} },
	}
}
