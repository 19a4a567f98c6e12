package reader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lcls-cass/cassgo/cass/device"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/wire"
)

func TestDeinterleaveHLLKnownLayout(t *testing.T) {
	const theWidth, theHeight = 8, 4
	buf := make([]int16, theWidth*theHeight)
	for i := range buf {
		buf[i] = int16(i)
	}
	dst := make([]int16, len(buf))
	deinterleaveHLL(dst, buf, theWidth, theHeight)

	want := []int16{
		0, 1, 2, 3, 12, 13, 14, 15,
		8, 9, 10, 11, 20, 21, 22, 23,
		23, 22, 21, 20, 27, 26, 25, 24,
		15, 14, 13, 12, 19, 18, 17, 16,
	}
	require.Equal(t, want, dst)
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// buildFrms6Stream assembles a minimal frms6 file header plus one frame
// (header + gradient payload) matching scenario S2.
func buildFrms6Stream(theWidth, theHeight uint16, externalID uint32) []byte {
	fileHdr := make([]byte, frms6FileHeaderSize)
	copy(fileHdr[fhTheWidthOffset:], le16(theWidth))

	frameHdr := make([]byte, frms6FrameHeaderSize)
	copy(frameHdr[frmTheHeightOffset:], le16(theHeight))
	copy(frameHdr[frmExternalIDOffset:], le32(externalID))

	n := int(theWidth) * int(theHeight)
	payload := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := uint16(i % 16384)
		binary.LittleEndian.PutUint16(payload[2*i:2*i+2], v)
	}

	var buf bytes.Buffer
	buf.Write(fileHdr)
	buf.Write(frameHdr)
	buf.Write(payload)
	return buf.Bytes()
}

// TestFrms6RoundTrip implements scenario S2: a single the_width=1024,
// the_height=512, external_id=7 frame with a gradient payload produces
// a columns=512, rows=1024 pixel detector and event id 7.
func TestFrms6RoundTrip(t *testing.T) {
	stream := buildFrms6Stream(1024, 512, 7)
	r := bytes.NewReader(stream)

	fr := &Frms6Reader{}
	require.NoError(t, fr.ReadHeaderInfo(r))

	evt := event.New()
	ok, err := fr.Read(r, evt)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, event.ID(7), evt.ID)
	dev, err := evt.Device(device.TagPixelDetectors)
	require.NoError(t, err)
	pd := dev.(*device.PixelDetectors)
	require.Len(t, pd.Detectors_, 1)
	require.Equal(t, 512, pd.Detectors_[0].Columns)
	require.Equal(t, 1024, pd.Detectors_[0].Rows)
	require.Len(t, pd.Detectors_[0].Frame, 512*1024)

	// A second read past the single frame hits a clean EOF.
	ok, err = fr.Read(r, event.New())
	require.NoError(t, err)
	require.False(t, ok)
}

// buildRawSSSStream assembles the preamble plus frames of scenario S3.
func buildRawSSSStream(width, height, nFrames uint32, frames [][2]interface{}) []byte {
	var buf bytes.Buffer
	buf.Write(le32(width))
	buf.Write(le32(height))
	buf.Write(le32(nFrames))
	for _, f := range frames {
		id := f[0].(uint32)
		pixels := f[1].([]byte)
		buf.Write(le32(id))
		buf.Write(pixels)
		buf.Write(le32(height))
	}
	return buf.Bytes()
}

// TestRAWSSSReadsHeaderCheckAndOverrun implements scenario S3: a
// {width=4,height=2,nFrames=2} header with two frames, and a third read
// raising ErrOverrun (wrapping wire.ErrCorruptStream).
func TestRAWSSSReadsHeaderCheckAndOverrun(t *testing.T) {
	frame1 := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	frame2 := []byte{10, 11, 12, 13, 14, 15, 16, 17}
	stream := buildRawSSSStream(4, 2, 2, [][2]interface{}{
		{uint32(11), frame1},
		{uint32(12), frame2},
	})

	r := bytes.NewReader(stream)
	rr := &RAWSSSReader{}
	require.NoError(t, rr.ReadHeaderInfo(r))

	evt := event.New()
	ok, err := rr.Read(r, evt)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, event.ID(11), evt.ID)
	dev, err := evt.Device(device.TagPixelDetectors)
	require.NoError(t, err)
	pd := dev.(*device.PixelDetectors)
	require.Equal(t, 4, pd.Detectors_[0].Columns)
	require.Equal(t, 2, pd.Detectors_[0].Rows)
	require.Equal(t, []float32{0, 1, 2, 3, 4, 5, 6, 7}, pd.Detectors_[0].Frame)

	evt2 := event.New()
	ok, err = rr.Read(r, evt2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, event.ID(12), evt2.ID)

	_, err = rr.Read(r, event.New())
	require.Error(t, err)
	require.ErrorIs(t, err, wire.ErrCorruptStream)
	require.True(t, errors.Is(err, ErrOverrun))
}

// TestRAWSSSHeightCheckMismatchRaisesCorruptStream covers the
// heightCheck-disagrees-with-header branch distinct from the overrun
// branch, both of which report CorruptStream per spec.md §4.E.
func TestRAWSSSHeightCheckMismatchRaisesCorruptStream(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(le32(2))
	buf.Write(le32(2))
	buf.Write(le32(1))
	buf.Write(le32(1))
	buf.Write([]byte{1, 2, 3, 4})
	buf.Write(le32(99)) // wrong heightCheck

	r := bytes.NewReader(buf.Bytes())
	rr := &RAWSSSReader{}
	require.NoError(t, rr.ReadHeaderInfo(r))

	_, err := rr.Read(r, event.New())
	require.ErrorIs(t, err, wire.ErrCorruptStream)
}
