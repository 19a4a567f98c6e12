package result

import (
	"fmt"
	"math"
	"sync"
)

// Shape identifies which of the four container variants a Result holds.
// Spec.md's own rationale for keeping one container type ("Why this
// shape", §4.B) is that every processor must be able to consume and
// produce a Result regardless of its origin — a 1-D slice of a table
// must be usable anywhere a projection's 1-D output is. Shape only
// gates which methods are meaningful; storage layout is uniform.
type Shape int

const (
	ShapeValue Shape = iota
	Shape1D
	Shape2D
	ShapeTable
)

func (s Shape) String() string {
	switch s {
	case ShapeValue:
		return "value"
	case Shape1D:
		return "1d"
	case Shape2D:
		return "2d"
	case ShapeTable:
		return "table"
	default:
		return "unknown"
	}
}

// Tail slot indices for a 1-D result (statTail == 2).
const (
	TailOverflow1D = iota
	TailUnderflow1D
)

// Tail slot indices for a 2-D result (statTail == 8): the eight
// compass directions surrounding the in-range data, x increasing East
// and y increasing North. A non-finite coordinate on either axis
// routes to that axis's underflow side (West / South).
const (
	TailN = iota
	TailNE
	TailE
	TailSE
	TailS
	TailSW
	TailW
	TailNW
)

// Result is the uniform container described by spec.md §3/§4.B: a
// tagged value/1-D/2-D/table with axis metadata, overflow/underflow
// accounting and a reader/writer lock guarding storage and axes.
type Result struct {
	mu sync.RWMutex

	shape   Shape
	axisX   Axis
	axisY   Axis // meaningful only for Shape2D/ShapeTable
	storage []float32
	tail    []float32

	name string
	id   uint64
}

// NewValue creates a 0-D result: datasize=1, statTail=0.
func NewValue(name string) *Result {
	return &Result{shape: ShapeValue, name: name, storage: make([]float32, 1)}
}

// New1D creates a 1-D histogram result: datasize=nBinsX, statTail=2.
func New1D(name string, axisX Axis) *Result {
	return &Result{
		shape:   Shape1D,
		name:    name,
		axisX:   axisX,
		storage: make([]float32, axisX.NBins),
		tail:    make([]float32, 2),
	}
}

// New2D creates a 2-D histogram result: datasize=nBinsX*nBinsY, statTail=8.
func New2D(name string, axisX, axisY Axis) *Result {
	return &Result{
		shape:   Shape2D,
		name:    name,
		axisX:   axisX,
		axisY:   axisY,
		storage: make([]float32, axisX.NBins*axisY.NBins),
		tail:    make([]float32, 8),
	}
}

// NewTable creates a growable table: zero rows of width nCols, no tail.
func NewTable(name string, nCols int) *Result {
	return &Result{
		shape: ShapeTable,
		name:  name,
		axisX: Axis{NBins: nCols},
		axisY: Axis{NBins: 0},
	}
}

// Lock/Unlock/RLock/RUnlock expose the container's reader/writer lock
// directly; processors hold it for exactly as long as they touch
// storage or axes, per spec.md §5's "held as briefly as possible" rule.
func (r *Result) Lock()    { r.mu.Lock() }
func (r *Result) Unlock()  { r.mu.Unlock() }
func (r *Result) RLock()   { r.mu.RLock() }
func (r *Result) RUnlock() { r.mu.RUnlock() }

// Shape reports which variant this Result holds.
func (r *Result) Shape() Shape { return r.shape }

// Name returns the result's configured name. Caller must hold a lock.
func (r *Result) Name() string { return r.name }

// SetName sets the result's name. Caller must hold the write lock.
func (r *Result) SetName(name string) { r.name = name }

// ID returns the event id stamped on this result. Caller must hold a lock.
func (r *Result) ID() uint64 { return r.id }

// SetID stamps the event id. Caller must hold the write lock.
func (r *Result) SetID(id uint64) { r.id = id }

// AxisX returns the x (or only) axis. Caller must hold a lock.
func (r *Result) AxisX() Axis { return r.axisX }

// AxisY returns the y axis (Shape2D/ShapeTable only). Caller must hold a lock.
func (r *Result) AxisY() Axis { return r.axisY }

// NBinsX is a convenience accessor over AxisX().NBins.
func (r *Result) NBinsX() int { return r.axisX.NBins }

// NBinsY returns the number of rows for Shape2D/ShapeTable, 0 otherwise.
func (r *Result) NBinsY() int {
	switch r.shape {
	case Shape2D:
		return r.axisY.NBins
	case ShapeTable:
		if r.axisX.NBins == 0 {
			return 0
		}
		return len(r.storage) / r.axisX.NBins
	default:
		return 0
	}
}

// Storage returns the data slice (length datasize, excludes the tail).
// Caller must hold a lock.
func (r *Result) Storage() []float32 { return r.storage }

// Tail returns the overflow/underflow slots (length 0, 2 or 8). Caller
// must hold a lock.
func (r *Result) Tail() []float32 { return r.tail }

// Clear zeroes storage and tail in place, preserving shape/axes/name/id
// except for growable tables, whose row count resets to zero. Caller
// must hold the write lock.
func (r *Result) Clear() {
	for i := range r.storage {
		r.storage[i] = 0
	}
	for i := range r.tail {
		r.tail[i] = 0
	}
	if r.shape == ShapeTable {
		r.storage = r.storage[:0]
	}
}

// GetValue returns storage[0]. Valid for any shape but meaningful only
// for ShapeValue. Caller must hold a lock.
func (r *Result) GetValue() float32 {
	if len(r.storage) == 0 {
		return 0
	}
	return r.storage[0]
}

// SetValue sets storage[0], growing storage to length 1 if needed.
// Caller must hold the write lock.
func (r *Result) SetValue(v float32) {
	if len(r.storage) == 0 {
		r.storage = make([]float32, 1)
	}
	r.storage[0] = v
}

// IsTrue implements spec.md's isTrue ≡ |v| ≥ √ε over storage[0].
func (r *Result) IsTrue() bool {
	return math.Abs(float64(r.GetValue())) >= sqrtEpsilon
}

// sqrtEpsilon matches C++ sqrt(numeric_limits<float>::epsilon()); the
// coalescing engine declares the same value in its own constant for its
// bad-pixel-neighbour test.
const sqrtEpsilon = 0.00034526698

// Histogram1 increments the 1-D bin containing x by w, routing
// out-of-range or non-finite x to the overflow/underflow tail slots
// (property 3).
func (r *Result) Histogram1(x float64, w float32) {
	idx, ok, under := r.axisX.bin(x)
	if ok {
		r.storage[idx] += w
		return
	}
	if under {
		r.tail[TailUnderflow1D] += w
	} else {
		r.tail[TailOverflow1D] += w
	}
}

// Histogram2 increments the 2-D bin containing (x, y) by w, routing
// any of the nine over/underflow regions to the tail (property 3).
func (r *Result) Histogram2(x, y float64, w float32) {
	ix, okx, underx := r.axisX.bin(x)
	iy, oky, undery := r.axisY.bin(y)
	if okx && oky {
		r.storage[iy*r.axisX.NBins+ix] += w
		return
	}
	r.tail[quadrant(okx, underx, oky, undery)] += w
}

// HistogramWeightedCount increments the bin containing x by w in row 0
// and the bin's entry count in row 1 of a 2-row 2-D result — pp67's
// "weighted histogram that remembers how many times each bin has been
// filled". Only the x axis is ever binned; row selection is fixed, so
// an out-of-range x routes to the tail the same way a pure x-axis miss
// would in Histogram2.
func (r *Result) HistogramWeightedCount(x float64, w float32) {
	idx, okx, underx := r.axisX.bin(x)
	if !okx {
		r.tail[quadrant(false, underx, true, false)] += w
		return
	}
	nx := r.axisX.NBins
	r.storage[idx] += w
	r.storage[nx+idx]++
}

// SetBin1D overwrites the 1-D bin containing x with v instead of
// accumulating into it — pp69's AccumulatingProcessor semantics: "the
// weight will not be added but set to the weight value... values will
// be kept until they are overwritten". An out-of-range x still counts
// as an entry in the usual overflow/underflow tail slot.
func (r *Result) SetBin1D(x float64, v float32) {
	idx, ok, under := r.axisX.bin(x)
	if !ok {
		if under {
			r.tail[TailUnderflow1D]++
		} else {
			r.tail[TailOverflow1D]++
		}
		return
	}
	r.storage[idx] = v
}

// SetRow copies row verbatim into the row of a 2-D result selected by
// binning y against the y axis — pp68's "1D result defines the x axis,
// the 0D result defines the bin on the y axis where the 1D result will
// be written to". x is never binned here: row must already be sized to
// NBinsX. An out-of-range y routes to the same compass tail slot a
// pure y-axis miss would in Histogram2.
func (r *Result) SetRow(y float64, row []float32) {
	iy, ok, under := r.axisY.bin(y)
	if !ok {
		r.tail[quadrant(true, false, false, under)]++
		return
	}
	copy(r.Row(iy), row)
}

// quadrant maps the nine (x-status, y-status) combinations, minus the
// in-range/in-range case, onto the eight compass tail slots.
func quadrant(okx, underx, oky, undery bool) int {
	switch {
	case !okx && underx && oky:
		return TailW
	case !okx && !underx && oky:
		return TailE
	case okx && !oky && undery:
		return TailS
	case okx && !oky && !undery:
		return TailN
	case !okx && underx && !oky && undery:
		return TailSW
	case !okx && !underx && !oky && undery:
		return TailSE
	case !okx && underx && !oky && !undery:
		return TailNW
	default: // !okx && !underx && !oky && !undery
		return TailNE
	}
}

// AppendRows extends a table by whole rows; len(rows) must be a
// multiple of NBinsX. Caller must hold the write lock.
func (r *Result) AppendRows(rows []float32) error {
	if r.shape != ShapeTable {
		return fmt.Errorf("result: AppendRows on non-table %q (shape %s)", r.name, r.shape)
	}
	if r.axisX.NBins == 0 || len(rows)%r.axisX.NBins != 0 {
		return fmt.Errorf("result: AppendRows(%d) not a multiple of nBinsX=%d", len(rows), r.axisX.NBins)
	}
	r.storage = append(r.storage, rows...)
	r.axisY.NBins = len(r.storage) / r.axisX.NBins
	return nil
}

// ResetTable truncates a table to zero rows. Caller must hold the write lock.
func (r *Result) ResetTable() {
	r.storage = r.storage[:0]
	r.axisY.NBins = 0
}

// Row returns a view of row i of a table or 2-D result (no copy).
// Caller must hold a lock for as long as the slice is used.
func (r *Result) Row(i int) []float32 {
	w := r.axisX.NBins
	return r.storage[i*w : (i+1)*w]
}

// Clone deep-copies axes, storage, tail, name and id into a fresh
// Result with its own lock.
func (r *Result) Clone() *Result {
	out := &Result{
		shape: r.shape,
		axisX: r.axisX,
		axisY: r.axisY,
		name:  r.name,
		id:    r.id,
	}
	out.storage = append([]float32(nil), r.storage...)
	out.tail = append([]float32(nil), r.tail...)
	return out
}

// Assign copies axes, storage and tail from src, but not name or id,
// matching spec.md §4.B. Caller must hold write locks on r (and a read
// lock on src if it may be concurrently modified).
func (r *Result) Assign(src *Result) {
	r.shape = src.shape
	r.axisX = src.axisX
	r.axisY = src.axisY
	r.storage = append(r.storage[:0], src.storage...)
	r.tail = append(r.tail[:0], src.tail...)
}
