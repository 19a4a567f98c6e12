// Package sink implements spec.md §4.L's output processors: pp1002
// (HDF5-style container), pp2000 (ROOT-style container) and pp1500
// (CBF image dump). Each is a Processor whose process() step has a
// side effect — writing bytes to disk — rather than producing a
// result of its own; pp.Result is never called on them, matching
// original_source's pp1002/pp2000/pp1500::result() which always throws.
//
// spec.md §1 scopes the real HDF5/ROOT/CBF library bindings themselves
// out ("ROOT/HDF5/CBF library bindings" are named as out of scope);
// what remains in scope is the mapping of cass Results onto those
// containers' logical shape. container.go implements that mapping as
// a small self-contained group/dataset tree, written with cass/wire's
// binary codec, standing in for a real cgo hdf5/ROOT binding. Wiring
// an actual binding (e.g. gonum.org/v1/hdf5 or go-hep.org/x/hep/groot)
// means swapping Tree.WriteTo's body for calls into that library while
// leaving the Tree construction in hdf5.go/root.go untouched.
package sink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/klauspost/compress/gzip"

	"github.com/lcls-cass/cassgo/cass/result"
	"github.com/lcls-cass/cassgo/cass/wire"
)

// containerVersion is stamped at the root of every Tree so a future
// reader can tell the layout apart from an unrelated wire stream.
const containerVersion uint16 = 1

// Tree is a named group holding child groups and datasets, built
// fresh for every file pp1002/pp2000 write and serialized once with
// WriteTo. It plays the role hdf5_handle.hpp's Handler and
// rootfile_helper.h's TFile wrapper play in original_source: callers
// never see HDF5/ROOT types, only Group/Dataset.
type Tree struct {
	root *group
}

// NewTree starts an empty container.
func NewTree() *Tree {
	return &Tree{root: newGroup("/")}
}

// Group returns the child group at path, creating every path element
// that does not yet exist (mirroring root_converter.cpp's changeDir,
// which mkdir's each missing path component).
func (t *Tree) Group(path string) *group {
	return t.root.child(path)
}

// SetVersionString stamps the root with a string dataset, matching
// hdf5_converter.cpp's WriteEntry constructor writing "cass-version"
// at the top of every file it opens.
func (t *Tree) SetVersionString(s string) {
	t.root.datasets = append(t.root.datasets, &dataset{
		name: "cass-version",
		kind: datasetString,
		str:  s,
	})
}

// group is one container level: a name, child groups (insertion order
// preserved, as original_source's CASSSettings arrays are processed in
// declaration order) and datasets.
type group struct {
	name     string
	children []*group
	datasets []*dataset
}

func newGroup(name string) *group {
	return &group{name: name}
}

// child walks/creates path, which may contain '/'-separated
// components (e.g. "2024-03-01T12:00:00_42/detector/image").
func (g *group) child(path string) *group {
	cur := g
	for _, part := range splitPath(path) {
		if part == "" {
			continue
		}
		cur = cur.childGroup(part)
	}
	return cur
}

func (g *group) childGroup(name string) *group {
	for _, c := range g.children {
		if c.name == name {
			return c
		}
	}
	c := newGroup(name)
	g.children = append(g.children, c)
	return c
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	return parts
}

type datasetKind int

const (
	datasetString datasetKind = iota
	datasetScalar
	datasetArray1D
	datasetArray2D
	// datasetHist1D/datasetHist2D carry a border-inclusive bin array
	// (over/underflow folded into the border cells), the shape pp2000's
	// ROOT mirroring needs; datasetArray1D/2D carry a plain data slice
	// plus separate xLow/xUp/yLow/yUp attributes, the shape pp1002's
	// HDF5 mirroring needs. Both ride the same Tree/group plumbing.
	datasetHist1D
	datasetHist2D
)

// dataset is one leaf entry: a scalar, a 1-D histogram with its
// xLow/xUp attributes, or a 2-D histogram with xLow/xUp/yLow/yUp
// attributes, matching hdf5_converter.cpp's WriteEntry::operator()
// switch over data.dim().
type dataset struct {
	name    string
	kind    datasetKind
	str     string
	value   float32
	data    []float32
	nBinsX  int
	nBinsY  int
	axisX   result.Axis
	axisY   result.Axis
	title   string
	gzip    bool
}

// PutResult copies res's current content into a dataset named name
// under g, tagging 1-D/2-D datasets with their axis bounds the way
// hdf5_converter.cpp's WriteEntry tags xLow/xUp/yLow/yUp attributes.
// Caller must hold at least a read lock on res. Shapes other than
// value/1D/2D are rejected, mirroring WriteEntry::operator()'s
// "data dimension ... not known" throw for anything beyond dim 0/1/2 —
// reported as an error here instead of a crash so one bad entry can be
// logged and skipped without losing the rest of the file.
func (g *group) PutResult(name string, res *result.Result, gzipCompress bool) error {
	d := &dataset{name: name, title: res.AxisX().Title}
	switch res.Shape() {
	case result.ShapeValue:
		d.kind = datasetScalar
		d.value = res.GetValue()
	case result.Shape1D:
		d.kind = datasetArray1D
		d.nBinsX = res.NBinsX()
		d.axisX = res.AxisX()
		d.data = append([]float32(nil), res.Storage()...)
	case result.Shape2D:
		d.kind = datasetArray2D
		d.nBinsX = res.NBinsX()
		d.nBinsY = res.NBinsY()
		d.axisX = res.AxisX()
		d.axisY = res.AxisY()
		d.data = append([]float32(nil), res.Storage()...)
		d.gzip = gzipCompress
	default:
		return fmt.Errorf("sink: result %q has unsupported shape %s", name, res.Shape())
	}
	g.datasets = append(g.datasets, d)
	return nil
}

// PutHistogram copies res into a border-inclusive bin array the way
// root_converter.cpp's copyHistToRootFile builds a TH1F/TH2F: for
// Shape1D, bin 0 and bin nBinsX+1 hold the underflow/overflow tail;
// for Shape2D the eight compass tail slots fold into the bin grid's
// border cells at the positions copyHistToRootFile's
// LowerLeft/LowerRight/UpperRight/UpperLeft/LowerMiddle/UpperMiddle/
// Right/Left assign them to, which line up exactly with
// result.Result's own compass tail-slot naming (TailN is "y overflow",
// TailE is "x overflow", etc). A ShapeValue result becomes a 1-bin
// histogram with its value in the single real bin, matching
// copyHistToRootFile's "case 0" branch.
func (g *group) PutHistogram(name string, res *result.Result) error {
	d := &dataset{name: name, title: res.AxisX().Title}
	switch res.Shape() {
	case result.ShapeValue:
		d.kind = datasetHist1D
		d.nBinsX = 1
		d.axisX = result.Axis{NBins: 1, Low: 0, Up: 1}
		d.data = []float32{0, res.GetValue(), 0}
	case result.Shape1D:
		n := res.NBinsX()
		bins := make([]float32, n+2)
		copy(bins[1:], res.Storage())
		tail := res.Tail()
		bins[0] = tail[result.TailUnderflow1D]
		bins[n+1] = tail[result.TailOverflow1D]
		d.kind = datasetHist1D
		d.nBinsX = n
		d.axisX = res.AxisX()
		d.data = bins
	case result.Shape2D:
		nx, ny := res.NBinsX(), res.NBinsY()
		w := nx + 2
		bins := make([]float32, w*(ny+2))
		src := res.Storage()
		for iy := 0; iy < ny; iy++ {
			copy(bins[(iy+1)*w+1:(iy+1)*w+1+nx], src[iy*nx:(iy+1)*nx])
		}
		tail := res.Tail()
		bins[0] = tail[result.TailSW]                 // LowerLeft
		bins[nx+1] = tail[result.TailSE]               // LowerRight
		bins[(ny+1)*w+(nx+1)] = tail[result.TailNE]    // UpperRight
		bins[(ny+1)*w] = tail[result.TailNW]           // UpperLeft
		bins[1] = tail[result.TailS]                   // LowerMiddle
		bins[(ny+1)*w+1] = tail[result.TailN]           // UpperMiddle
		bins[w+(nx+1)] = tail[result.TailE]            // Right
		bins[w] = tail[result.TailW]                   // Left
		d.kind = datasetHist2D
		d.nBinsX = nx
		d.nBinsY = ny
		d.axisX = res.AxisX()
		d.axisY = res.AxisY()
		d.data = bins
	default:
		return fmt.Errorf("sink: result %q has unsupported shape %s for ROOT mirroring", name, res.Shape())
	}
	g.datasets = append(g.datasets, d)
	return nil
}

// WriteTo serializes the full tree with cass/wire's binary codec,
// gzip-compressing (via klauspost/compress, the pack's grounded
// stand-in for HDF5's DEFLATE filter) any 2-D dataset flagged for it,
// and returns the number of bytes written so aggregate-file sinks can
// track file size against their rolling size limit without a
// separate os.Stat round trip.
func (t *Tree) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	wr := wire.NewWriter(cw)
	wr.U16(containerVersion)
	if err := writeGroup(wr, t.root); err != nil {
		return cw.n, err
	}
	if err := wr.Err(); err != nil {
		return cw.n, fmt.Errorf("sink: container write: %w", err)
	}
	return cw.n, nil
}

// countingWriter tallies bytes passed through to w.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func writeGroup(wr *wire.Writer, g *group) error {
	wr.String(g.name)
	wr.U32(uint32(len(g.datasets)))
	// Datasets are sorted by name so two trees built from the same
	// config produce byte-identical output regardless of map-free but
	// still nondeterministic slice growth elsewhere.
	sorted := append([]*dataset(nil), g.datasets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
	for _, d := range sorted {
		if err := writeDataset(wr, d); err != nil {
			return err
		}
	}
	wr.U32(uint32(len(g.children)))
	for _, c := range g.children {
		if err := writeGroup(wr, c); err != nil {
			return err
		}
	}
	return nil
}

func writeDataset(wr *wire.Writer, d *dataset) error {
	wr.String(d.name)
	wr.U8(uint8(d.kind))
	wr.String(d.title)
	switch d.kind {
	case datasetString:
		wr.String(d.str)
	case datasetScalar:
		wr.F32(d.value)
	case datasetArray1D:
		wr.U32(uint32(d.nBinsX))
		wr.F64(d.axisX.Low)
		wr.F64(d.axisX.Up)
		writePayload(wr, d.data, false)
	case datasetArray2D:
		wr.U32(uint32(d.nBinsX))
		wr.U32(uint32(d.nBinsY))
		wr.F64(d.axisX.Low)
		wr.F64(d.axisX.Up)
		wr.F64(d.axisY.Low)
		wr.F64(d.axisY.Up)
		writePayload(wr, d.data, d.gzip)
	case datasetHist1D:
		wr.U32(uint32(d.nBinsX))
		wr.F64(d.axisX.Low)
		wr.F64(d.axisX.Up)
		writePayload(wr, d.data, false)
	case datasetHist2D:
		wr.U32(uint32(d.nBinsX))
		wr.U32(uint32(d.nBinsY))
		wr.F64(d.axisX.Low)
		wr.F64(d.axisX.Up)
		wr.F64(d.axisY.Low)
		wr.F64(d.axisY.Up)
		writePayload(wr, d.data, false)
	default:
		return fmt.Errorf("sink: unknown dataset kind %d for %q", d.kind, d.name)
	}
	return nil
}

// writePayload writes data's raw bytes, gzip-compressing them first
// when compress is set (pp1002's CompressLevel knob, hdf5_converter.cpp's
// H5Z_FILTER_DEFLATE check), and always length-prefixed so a reader
// knows how many bytes of the (possibly compressed) payload follow.
func writePayload(wr *wire.Writer, data []float32, compress bool) {
	wr.Bool(compress)
	if !compress {
		wr.U32(uint32(len(data)))
		for _, v := range data {
			wr.F32(v)
		}
		return
	}

	raw := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	var buf bytes.Buffer
	gw, _ := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	gw.Write(raw)
	gw.Close()
	wr.U32(uint32(buf.Len()))
	wr.Bytes(buf.Bytes())
}
