package reader

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lcls-cass/cassgo/cass/device"
	"github.com/lcls-cass/cassgo/cass/event"
)

// RAWSSSReader reads "commercial CCD" raw-sss files: a
// {width, height, nFrames} preamble followed by nFrames frames of
// {id, width·height u8 pixels, heightCheck} (spec.md §4.E, §6).
type RAWSSSReader struct {
	width, height int
	nFrames       int
	imagecounter  int

	pixelBuf []byte
	frameBuf []float32
}

var _ Reader = (*RAWSSSReader)(nil)

// ReadHeaderInfo consumes the {u32 width, u32 height, u32 nFrames}
// preamble and resets the per-file frame counter.
func (rr *RAWSSSReader) ReadHeaderInfo(r io.Reader) error {
	var hdr [12]byte
	if err := readFull(r, hdr[:]); err != nil {
		return fmt.Errorf("raw-sss: preamble: %w", err)
	}
	rr.width = int(binary.LittleEndian.Uint32(hdr[0:4]))
	rr.height = int(binary.LittleEndian.Uint32(hdr[4:8]))
	rr.nFrames = int(binary.LittleEndian.Uint32(hdr[8:12]))
	rr.imagecounter = 0
	return nil
}

// Read consumes one {id, pixels, heightCheck} frame. Reading past the
// declared nFrames, or a heightCheck that disagrees with the header's
// height field, both raise ErrOverrun (spec.md S3).
func (rr *RAWSSSReader) Read(r io.Reader, evt *event.CASSEvent) (bool, error) {
	rr.imagecounter++
	if rr.imagecounter > rr.nFrames {
		return false, ErrOverrun
	}

	var idBuf [4]byte
	if err := readFull(r, idBuf[:]); err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("raw-sss: event id: %w", err)
	}
	eventID := binary.LittleEndian.Uint32(idBuf[:])

	frameSize := rr.width * rr.height
	if cap(rr.pixelBuf) < frameSize {
		rr.pixelBuf = make([]byte, frameSize)
	}
	pixels := rr.pixelBuf[:frameSize]
	if err := readFull(r, pixels); err != nil {
		return false, fmt.Errorf("raw-sss: pixel payload: %w", err)
	}

	var checkBuf [4]byte
	if err := readFull(r, checkBuf[:]); err != nil {
		return false, fmt.Errorf("raw-sss: height check: %w", err)
	}
	heightCheck := int(binary.LittleEndian.Uint32(checkBuf[:]))
	if heightCheck != rr.height {
		return false, fmt.Errorf("raw-sss: height check %d does not match header height %d: %w",
			heightCheck, rr.height, ErrOverrun)
	}

	if cap(rr.frameBuf) < frameSize {
		rr.frameBuf = make([]float32, frameSize)
	}
	frame := rr.frameBuf[:frameSize]
	for i, v := range pixels {
		frame[i] = float32(v)
	}

	pd := &device.PixelDetectors{Detectors_: []*device.PixelFrame{{
		Columns: rr.width,
		Rows:    rr.height,
		Frame:   append([]float32(nil), frame...),
	}}}
	evt.SetDevice(device.TagPixelDetectors, pd)
	evt.ID = event.ID(eventID)
	return true, nil
}
