package reader

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lcls-cass/cassgo/cass/device"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/wire"
)

// Byte layout of the frms6 headers, little-endian, packed — spec.md
// §6 "frms6 file format". Offsets are computed once, here, rather than
// via a packed struct tag, since Go has no #pragma pack equivalent.
const (
	frms6FileHeaderSize  = 1024
	frms6FrameHeaderSize = 64

	fhTheWidthOffset = 88 // u16, v6-extended true width

	frmHeightOffset     = 3  // u8 height
	frmTheHeightOffset  = 26 // u16
	frmExternalIDOffset = 28 // u32
)

// Frms6Reader reads pnCCD/HLL "frms6" files: a 1024-byte file header
// followed by a 64-byte frame header plus int16 pixel payload per
// event. The four on-disk HLL quadrants are rearranged into the
// canonical CASS layout on every read (spec.md §4.E).
//
// Buffers are grown once and reused across Read calls, mirroring the
// pooled-buffer style of the teacher repository's internal/lossy
// acquireDecoder.
type Frms6Reader struct {
	theWidth int

	rawBuf    []byte
	pixelBuf  []int16
	outBuf    []int16
	frameBuf  []float32
}

var _ Reader = (*Frms6Reader)(nil)

// ReadHeaderInfo consumes the 1024-byte file header and records the
// v6-extended true width needed to size every subsequent frame.
func (fr *Frms6Reader) ReadHeaderInfo(r io.Reader) error {
	var hdr [frms6FileHeaderSize]byte
	if err := readFull(r, hdr[:]); err != nil {
		return fmt.Errorf("frms6: file header: %w", err)
	}
	fr.theWidth = int(binary.LittleEndian.Uint16(hdr[fhTheWidthOffset : fhTheWidthOffset+2]))
	return nil
}

// Read consumes one frame header plus its pixel payload and installs
// a single-detector PixelDetectors device on evt. The event id is the
// frame's external_id (spec.md S2: "event id equals 7").
func (fr *Frms6Reader) Read(r io.Reader, evt *event.CASSEvent) (bool, error) {
	var fh [frms6FrameHeaderSize]byte
	if err := readFull(r, fh[:]); err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("frms6: frame header: %w", err)
	}

	theHeight := int(binary.LittleEndian.Uint16(fh[frmTheHeightOffset : frmTheHeightOffset+2]))
	externalID := binary.LittleEndian.Uint32(fh[frmExternalIDOffset : frmExternalIDOffset+4])

	frameSize := fr.theWidth * theHeight
	if cap(fr.rawBuf) < frameSize*2 {
		fr.rawBuf = make([]byte, frameSize*2)
	}
	raw := fr.rawBuf[:frameSize*2]
	if err := readFull(r, raw); err != nil {
		if err == io.EOF {
			return false, fmt.Errorf("frms6: %w: truncated pixel payload", wire.ErrTruncated)
		}
		return false, fmt.Errorf("frms6: pixel payload: %w", err)
	}

	if cap(fr.pixelBuf) < frameSize {
		fr.pixelBuf = make([]int16, frameSize)
	}
	pixels := fr.pixelBuf[:frameSize]
	for i := range pixels {
		pixels[i] = int16(binary.LittleEndian.Uint16(raw[2*i : 2*i+2]))
	}

	if cap(fr.outBuf) < frameSize {
		fr.outBuf = make([]int16, frameSize)
	}
	out := fr.outBuf[:frameSize]
	deinterleaveHLL(out, pixels, fr.theWidth, theHeight)

	if cap(fr.frameBuf) < frameSize {
		fr.frameBuf = make([]float32, frameSize)
	}
	frame := fr.frameBuf[:frameSize]
	for i, v := range out {
		frame[i] = float32(v)
	}

	pd := &device.PixelDetectors{Detectors_: []*device.PixelFrame{{
		Columns: fr.theWidth / 2,
		Rows:    theHeight * 2,
		Frame:   append([]float32(nil), frame...),
	}}}
	evt.SetDevice(device.TagPixelDetectors, pd)
	evt.ID = event.ID(externalID)
	return true, nil
}

// deinterleaveHLL rearranges the four HLL-quadrant-interleaved frame
// buffer into the canonical CASS layout, writing frameSize elements to
// dst. Quadrants 0 (forward, offset 0) and 3 (forward, offset
// 3·quadrantColumns) are copied in their on-disk order into the lower
// half of dst; quadrants 1 and 2 (offsets 2· and 1·quadrantColumns) are
// copied in reverse order into the upper half. quadrantColumns is the
// frame's true height, not a quarter of its width.
//
// quadrantRows is theHeight/2: the original routine this is ported
// from hardcoded quadrantRows equal to quadrantColumns and flagged the
// guess with its own "read out somehow?" TODO. That value double-counts
// the output (writes 2·theWidth·theHeight elements into a
// theWidth·theHeight buffer); theHeight/2 is the only value consistent
// with the documented output shape (columns=theWidth/2, rows=theHeight·2)
// and is what this port uses instead.
func deinterleaveHLL(dst, buf []int16, theWidth, theHeight int) {
	n := len(buf)
	quadrantColumns := theHeight
	quadrantRows := theHeight / 2
	hllColumns := theWidth

	pos := 0
	idx0, idx3 := 0, 3*quadrantColumns
	for row := 0; row < quadrantRows; row++ {
		copy(dst[pos:pos+quadrantColumns], buf[idx0:idx0+quadrantColumns])
		pos += quadrantColumns
		copy(dst[pos:pos+quadrantColumns], buf[idx3:idx3+quadrantColumns])
		pos += quadrantColumns
		idx0 += hllColumns
		idx3 += hllColumns
	}

	p1, p2 := 2*quadrantColumns, 1*quadrantColumns
	for row := 0; row < quadrantRows; row++ {
		rev1 := n - 1 - p1
		for j := 0; j < quadrantColumns; j++ {
			dst[pos+j] = buf[rev1-j]
		}
		pos += quadrantColumns

		rev2 := n - 1 - p2
		for j := 0; j < quadrantColumns; j++ {
			dst[pos+j] = buf[rev2-j]
		}
		pos += quadrantColumns

		p1 += hllColumns
		p2 += hllColumns
	}
}
