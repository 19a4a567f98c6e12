package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrimitivesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	wr := NewWriter(&buf)
	wr.U8(0xAB)
	wr.Bool(true)
	wr.U16(0x1234)
	wr.U32(0xDEADBEEF)
	wr.U64(0x0102030405060708)
	wr.F32(3.5)
	wr.F64(-2.25)
	wr.String("hello")
	require.NoError(t, wr.Err())

	rd := NewReader(&buf)
	require.Equal(t, uint8(0xAB), rd.U8())
	require.Equal(t, true, rd.Bool())
	require.Equal(t, uint16(0x1234), rd.U16())
	require.Equal(t, uint32(0xDEADBEEF), rd.U32())
	require.Equal(t, uint64(0x0102030405060708), rd.U64())
	require.Equal(t, float32(3.5), rd.F32())
	require.Equal(t, float64(-2.25), rd.F64())
	require.Equal(t, "hello", rd.String())
	require.NoError(t, rd.Err())
}

func TestChecksumGroupRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	wr := NewWriter(&buf)
	wr.BeginChecksum()
	wr.U32(123)
	wr.String("payload")
	wr.EndChecksum()
	require.NoError(t, wr.Err())

	rd := NewReader(&buf)
	rd.BeginChecksum()
	require.Equal(t, uint32(123), rd.U32())
	require.Equal(t, "payload", rd.String())
	rd.EndChecksum()
	require.NoError(t, rd.Err())
}

// TestChecksumGroupDetectsMutation exercises property 2: a single-byte
// mutation inside an open checksum group must surface as CorruptStream,
// while a mutation outside the group must not.
func TestChecksumGroupDetectsMutation(t *testing.T) {
	build := func() []byte {
		var buf bytes.Buffer
		wr := NewWriter(&buf)
		wr.U8(0xFF) // outside the group
		wr.BeginChecksum()
		wr.U32(123)
		wr.String("payload")
		wr.EndChecksum()
		return buf.Bytes()
	}

	t.Run("mutation inside group is detected", func(t *testing.T) {
		data := build()
		data[3] ^= 0x01 // inside the checksummed region
		rd := NewReader(bytes.NewReader(data))
		rd.U8()
		rd.BeginChecksum()
		rd.U32()
		rd.String()
		rd.EndChecksum()
		require.ErrorIs(t, rd.Err(), ErrCorruptStream)
	})

	t.Run("mutation outside group is not detected", func(t *testing.T) {
		data := build()
		data[0] ^= 0x01 // the leading U8, outside the group
		rd := NewReader(bytes.NewReader(data))
		require.Equal(t, uint8(0xFE), rd.U8())
		rd.BeginChecksum()
		rd.U32()
		rd.String()
		rd.EndChecksum()
		require.NoError(t, rd.Err())
	})
}

func TestTruncatedReadFails(t *testing.T) {
	rd := NewReader(bytes.NewReader([]byte{0x01, 0x02}))
	_ = rd.U32()
	require.ErrorIs(t, rd.Err(), ErrTruncated)
}

func TestCheckVersionMismatch(t *testing.T) {
	var buf bytes.Buffer
	wr := NewWriter(&buf)
	wr.U16(2)
	rd := NewReader(&buf)
	rd.CheckVersion(1)
	require.ErrorIs(t, rd.Err(), ErrUnknownVersion)
}
