package device

import "github.com/lcls-cass/cassgo/cass/wire"

// PixelFrame is one physical camera's worth of pixel data: a linear,
// row-major frame of float pixels plus the optional auxiliary fields
// spec.md §3 lists for a pixel detector sub-object.
type PixelFrame struct {
	Columns int
	Rows    int
	Frame   []float32 // len == Columns*Rows, row-major (x fastest)

	CamexMagic      uint32
	Info            string
	TimingFilename  string
}

// At returns the pixel at (x, y).
func (f *PixelFrame) At(x, y int) float32 { return f.Frame[y*f.Columns+x] }

// Set stores the pixel at (x, y).
func (f *PixelFrame) Set(x, y int, v float32) { f.Frame[y*f.Columns+x] = v }

func (f *PixelFrame) serialize(wr *wire.Writer) {
	wr.U32(uint32(f.Columns))
	wr.U32(uint32(f.Rows))
	wr.U32(f.CamexMagic)
	wr.String(f.Info)
	wr.String(f.TimingFilename)
	wr.U64(uint64(len(f.Frame)))
	for _, v := range f.Frame {
		wr.F32(v)
	}
}

func (f *PixelFrame) deserialize(rd *wire.Reader) {
	f.Columns = int(rd.U32())
	f.Rows = int(rd.U32())
	f.CamexMagic = rd.U32()
	f.Info = rd.String()
	f.TimingFilename = rd.String()
	n := int(rd.U64())
	f.Frame = make([]float32, n)
	for i := range f.Frame {
		f.Frame[i] = rd.F32()
	}
}

// PixelDetectors is the device payload carrying an ordered sequence of
// physical camera frames for one event.
type PixelDetectors struct {
	Detectors_ []*PixelFrame
}

func (p *PixelDetectors) NumDetectors() int { return len(p.Detectors_) }

// Detectors returns the ordered per-camera sub-objects.
func (p *PixelDetectors) Detectors() []*PixelFrame { return p.Detectors_ }

func (p *PixelDetectors) Serialize(wr *wire.Writer) {
	wr.U32(uint32(len(p.Detectors_)))
	for _, d := range p.Detectors_ {
		d.serialize(wr)
	}
}

func (p *PixelDetectors) Deserialize(rd *wire.Reader) {
	n := int(rd.U32())
	p.Detectors_ = make([]*PixelFrame, n)
	for i := range p.Detectors_ {
		f := &PixelFrame{}
		f.deserialize(rd)
		p.Detectors_[i] = f
	}
}
