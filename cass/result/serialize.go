package result

import "github.com/lcls-cass/cassgo/cass/wire"

// wireVersion is bumped whenever the on-disk layout changes.
const wireVersion = uint16(1)

// Serialize writes {version, id, name, shape, axesCount, axes…,
// storageCount, storage…}, where shape is one byte holding the Result's
// Shape (a table and a 2-D result both carry two axes, so the shape is
// not recoverable from axesCount alone). storageCount/storage cover the
// combined datasize+statTail array; axesCount is 0, 1 or 2. Caller must
// hold at least a read lock.
func (r *Result) Serialize(wr *wire.Writer) {
	wr.U16(wireVersion)
	wr.U64(r.id)
	wr.String(r.name)
	wr.U8(uint8(r.shape))

	axesCount := 0
	switch r.shape {
	case Shape1D:
		axesCount = 1
	case Shape2D, ShapeTable:
		axesCount = 2
	}
	wr.U8(uint8(axesCount))
	if axesCount >= 1 {
		writeAxis(wr, r.axisX)
	}
	if axesCount >= 2 {
		writeAxis(wr, r.axisY)
	}

	wr.U64(uint64(len(r.storage) + len(r.tail)))
	for _, v := range r.storage {
		wr.F32(v)
	}
	for _, v := range r.tail {
		wr.F32(v)
	}
}

func writeAxis(wr *wire.Writer, a Axis) {
	wr.U32(uint32(a.NBins))
	wr.F64(a.Low)
	wr.F64(a.Up)
	wr.String(a.Title)
}

func readAxis(rd *wire.Reader) Axis {
	nBins := int(rd.U32())
	low := rd.F64()
	up := rd.F64()
	title := rd.String()
	return Axis{NBins: nBins, Low: low, Up: up, Title: title}
}

// Deserialize reconstructs r in place from rd, validating the wire
// version (ErrUnknownVersion on mismatch). Caller must hold the write
// lock.
func (r *Result) Deserialize(rd *wire.Reader) {
	rd.CheckVersion(wireVersion)
	if rd.Err() != nil {
		return
	}
	r.id = rd.U64()
	r.name = rd.String()
	r.shape = Shape(rd.U8())

	axesCount := int(rd.U8())
	if axesCount >= 1 {
		r.axisX = readAxis(rd)
	}
	if axesCount >= 2 {
		r.axisY = readAxis(rd)
	}

	total := int(rd.U64())
	statTail := tailSizeFor(r.shape)
	dataSize := total - statTail
	if dataSize < 0 {
		dataSize = total
		statTail = 0
	}
	r.storage = make([]float32, dataSize)
	for i := range r.storage {
		r.storage[i] = rd.F32()
	}
	r.tail = make([]float32, statTail)
	for i := range r.tail {
		r.tail[i] = rd.F32()
	}
}

func tailSizeFor(s Shape) int {
	switch s {
	case Shape1D:
		return 2
	case Shape2D:
		return 8
	default:
		return 0
	}
}

// Deserialized constructs a zero-value Result and deserializes into it.
// Convenience for readers that need a fresh instance.
func Deserialized(rd *wire.Reader) *Result {
	r := &Result{}
	r.Deserialize(rd)
	return r
}
