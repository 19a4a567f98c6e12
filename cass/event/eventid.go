// Package event implements CASSEvent, the event aggregate described by
// spec.md §3/§4.D: a monotonic id plus a fixed mapping from device tag
// to device payload.
package event

import (
	"fmt"
	"time"
)

// ID is the 64-bit event identifier: bits 63..32 are a POSIX seconds
// timestamp, bits 31..0 a fiducial counter. Id 0 is the "most recent"
// sentinel and renders as UnknownTime_0.
type ID uint64

// NewID packs a timestamp and fiducial into an ID.
func NewID(posixSeconds uint32, fiducial uint32) ID {
	return ID(uint64(posixSeconds)<<32 | uint64(fiducial))
}

// Timestamp returns the high 32 bits (POSIX seconds).
func (id ID) Timestamp() uint32 { return uint32(id >> 32) }

// Fiducial returns the low 32 bits.
func (id ID) Fiducial() uint32 { return uint32(id) }

// String renders "YYYY-MM-DDThh:mm:ss_<fiducial>", or "UnknownTime_0"
// for the sentinel id 0.
func (id ID) String() string {
	if id == 0 {
		return "UnknownTime_0"
	}
	t := time.Unix(int64(id.Timestamp()), 0).UTC()
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d_%d",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), id.Fiducial())
}

// Less compares by the 64-bit integer value, as spec.md §3 requires.
func (id ID) Less(other ID) bool { return id < other }
