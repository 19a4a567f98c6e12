// Package wire implements the length-prefixed binary codec used to
// (de)serialize Results and CASSEvents to and from a byte stream.
//
// Primitives are little-endian fixed width integers, IEEE-754
// floats/doubles, one-byte bools and {size:u64, bytes} strings. A
// writer/reader pair can additionally open a checksum group: every byte
// written (or read) while the group is open contributes to a running
// Fletcher-16 sum that is written (respectively read and verified) when
// the group closes.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Sentinel errors returned by the codec. Readers and the rest of the
// package wrap these with fmt.Errorf("%w: ...") to add context.
var (
	ErrTruncated      = errors.New("wire: truncated read")
	ErrCorruptStream  = errors.New("wire: corrupt stream")
	ErrUnknownVersion = errors.New("wire: unknown version")
)

// Writer wraps an io.Writer with the primitives above plus checksum
// group bracketing. It is not safe for concurrent use; callers
// serialize access the same way the C++ source guarded a single
// stream with its own lock.
type Writer struct {
	w       io.Writer
	err     error
	groups  []*fletcher16
	written int64
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first error encountered, if any.
func (wr *Writer) Err() error { return wr.err }

func (wr *Writer) write(p []byte) {
	if wr.err != nil {
		return
	}
	if n := len(wr.groups); n > 0 {
		wr.groups[n-1].update(p)
	}
	n, err := wr.w.Write(p)
	wr.written += int64(n)
	if err != nil {
		wr.err = err
	}
}

// U8 writes a single byte.
func (wr *Writer) U8(v uint8) { wr.write([]byte{v}) }

// Bool writes a bool as one byte (0 or 1).
func (wr *Writer) Bool(v bool) {
	if v {
		wr.U8(1)
	} else {
		wr.U8(0)
	}
}

// U16 writes a little-endian uint16.
func (wr *Writer) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	wr.write(b[:])
}

// U32 writes a little-endian uint32.
func (wr *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	wr.write(b[:])
}

// U64 writes a little-endian uint64.
func (wr *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	wr.write(b[:])
}

// F32 writes an IEEE-754 float32.
func (wr *Writer) F32(v float32) { wr.U32(math.Float32bits(v)) }

// F64 writes an IEEE-754 float64.
func (wr *Writer) F64(v float64) { wr.U64(math.Float64bits(v)) }

// String writes {size:u64, bytes}.
func (wr *Writer) String(s string) {
	wr.U64(uint64(len(s)))
	wr.write([]byte(s))
}

// Bytes writes a raw byte slice with no length prefix.
func (wr *Writer) Bytes(b []byte) { wr.write(b) }

// BeginChecksum opens a Fletcher-16 checksum group. All writes until
// the matching EndChecksum contribute to the running sum.
func (wr *Writer) BeginChecksum() {
	wr.groups = append(wr.groups, newFletcher16())
}

// EndChecksum closes the innermost open checksum group and writes its
// two-byte sum.
func (wr *Writer) EndChecksum() {
	if len(wr.groups) == 0 {
		wr.err = fmt.Errorf("%w: EndChecksum without BeginChecksum", ErrCorruptStream)
		return
	}
	n := len(wr.groups) - 1
	g := wr.groups[n]
	wr.groups = wr.groups[:n]
	wr.U16(g.sum())
}

// Reader wraps an io.Reader with the same primitives, checksum
// verification and an offset used for error reporting.
type Reader struct {
	r      io.Reader
	err    error
	groups []*fletcher16
	offset int64
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Err returns the first error encountered, if any.
func (rd *Reader) Err() error { return rd.err }

// Offset returns the number of bytes consumed so far, for error
// reporting by callers such as the frms6/raw-sss readers.
func (rd *Reader) Offset() int64 { return rd.offset }

func (rd *Reader) read(p []byte) {
	if rd.err != nil {
		return
	}
	n, err := io.ReadFull(rd.r, p)
	rd.offset += int64(n)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			rd.err = fmt.Errorf("%w at offset %d: %v", ErrTruncated, rd.offset, err)
		} else {
			rd.err = err
		}
		return
	}
	if m := len(rd.groups); m > 0 {
		rd.groups[m-1].update(p)
	}
}

// U8 reads a single byte.
func (rd *Reader) U8() uint8 {
	var b [1]byte
	rd.read(b[:])
	return b[0]
}

// Bool reads a one-byte bool.
func (rd *Reader) Bool() bool { return rd.U8() != 0 }

// U16 reads a little-endian uint16.
func (rd *Reader) U16() uint16 {
	var b [2]byte
	rd.read(b[:])
	return binary.LittleEndian.Uint16(b[:])
}

// U32 reads a little-endian uint32.
func (rd *Reader) U32() uint32 {
	var b [4]byte
	rd.read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// U64 reads a little-endian uint64.
func (rd *Reader) U64() uint64 {
	var b [8]byte
	rd.read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// F32 reads an IEEE-754 float32.
func (rd *Reader) F32() float32 { return math.Float32frombits(rd.U32()) }

// F64 reads an IEEE-754 float64.
func (rd *Reader) F64() float64 { return math.Float64frombits(rd.U64()) }

// String reads {size:u64, bytes}.
func (rd *Reader) String() string {
	n := rd.U64()
	if rd.err != nil {
		return ""
	}
	b := make([]byte, n)
	rd.read(b)
	return string(b)
}

// Bytes reads exactly len(b) bytes into b.
func (rd *Reader) Bytes(b []byte) { rd.read(b) }

// BeginChecksum opens a Fletcher-16 checksum group on read.
func (rd *Reader) BeginChecksum() {
	rd.groups = append(rd.groups, newFletcher16())
}

// EndChecksum closes the innermost checksum group, reads the stored
// sum and compares it against the running sum computed over the bytes
// read since BeginChecksum. A mismatch sets Err to ErrCorruptStream.
func (rd *Reader) EndChecksum() {
	if len(rd.groups) == 0 {
		rd.err = fmt.Errorf("%w: EndChecksum without BeginChecksum", ErrCorruptStream)
		return
	}
	n := len(rd.groups) - 1
	g := rd.groups[n]
	rd.groups = rd.groups[:n]
	want := g.sum()
	got := rd.U16()
	if rd.err != nil {
		return
	}
	if got != want {
		rd.err = fmt.Errorf("%w: checksum group mismatch (have %#04x, want %#04x)", ErrCorruptStream, got, want)
	}
}

// CheckVersion reads a u16 version and compares it to want, setting
// ErrUnknownVersion on mismatch. Returns the version read regardless.
func (rd *Reader) CheckVersion(want uint16) uint16 {
	v := rd.U16()
	if rd.err == nil && v != want {
		rd.err = fmt.Errorf("%w: have %d, want %d", ErrUnknownVersion, v, want)
	}
	return v
}
