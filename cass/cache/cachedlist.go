// Package cache implements CachedList, the per-processor fixed-capacity
// ring of result slots described in spec.md §3/§4.C. It plays the same
// role the teacher's internal/pool package plays for byte buffers: a
// small set of preallocated, reusable objects handed out and returned
// under a single mutex, sized so that borrowers never block on one
// another in steady state.
package cache

import (
	"fmt"
	"sync"

	"github.com/lcls-cass/cassgo/cass/result"
)

// ErrNoSuchID is returned by Item when no slot currently holds id.
var ErrNoSuchID = fmt.Errorf("cache: no such id")

type slot struct {
	id  uint64
	res *result.Result
}

// CachedList is a ring of W = workers+2 preallocated Result slots. The
// +2 lets one worker hold "latest" for reading while a second reserves
// a fresh slot and a third releases an old one, all without blocking.
type CachedList struct {
	mu      sync.Mutex
	slots   []slot
	cursor  int
	latestI int
}

// New builds a CachedList with workers+2 slots, each holding a fresh
// Result built by newResult (e.g. func() *result.Result { return
// result.New1D(...) }).
func New(workers int, newResult func() *result.Result) *CachedList {
	n := workers + 2
	cl := &CachedList{slots: make([]slot, n)}
	for i := range cl.slots {
		cl.slots[i] = slot{id: 0, res: newResult()}
	}
	return cl
}

// NewItem reserves the first slot whose id is 0 and which is not the
// current latest, clears it, stamps its id and returns it. The scan
// starts at the internal cursor and wraps around, mirroring the
// original cached_list.hpp's "while current is occupied or is latest,
// advance" loop; because at most workers+1 slots are ever borrowed at
// once, a free, non-latest slot always exists within one lap.
func (cl *CachedList) NewItem(id uint64) *result.Result {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	n := len(cl.slots)
	for i := 0; i < n; i++ {
		idx := (cl.cursor + i) % n
		if cl.slots[idx].id == 0 && idx != cl.latestI {
			cl.cursor = (idx + 1) % n
			cl.slots[idx].id = id
			res := cl.slots[idx].res
			res.Lock()
			res.Clear()
			res.Unlock()
			return res
		}
	}
	// Unreachable under the workers+2 sizing invariant (property 8);
	// surfacing a panic here would hide a sizing bug rather than a
	// runtime condition.
	panic("cache: no free slot available — CachedList undersized")
}

// Latest returns the result of the slot last promoted by PromoteLatest;
// before any promotion it returns slot 0's default result, never nil.
func (cl *CachedList) Latest() *result.Result {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	// Before any PromoteLatest call, latestI stays at its zero value
	// and slot 0's freshly-constructed default result is returned —
	// the documented neutral value for "not yet computed".
	return cl.slots[cl.latestI].res
}

// Item returns the slot whose id equals id, or ErrNoSuchID if absent
// (e.g. already released).
func (cl *CachedList) Item(id uint64) (*result.Result, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for i := range cl.slots {
		if cl.slots[i].id == id {
			return cl.slots[i].res, nil
		}
	}
	return nil, fmt.Errorf("%w: id=%d", ErrNoSuchID, id)
}

// Release returns the slot holding id to the free pool.
func (cl *CachedList) Release(id uint64) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for i := range cl.slots {
		if cl.slots[i].id == id {
			cl.slots[i].id = 0
			return
		}
	}
}

// PromoteLatest marks the slot currently holding res as the latest.
// The caller passes the same *result.Result returned by NewItem; the
// slot is found by comparing that pointer against each slot's result,
// not by id.
func (cl *CachedList) PromoteLatest(res *result.Result) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for i := range cl.slots {
		if cl.slots[i].res == res {
			cl.latestI = i
			return
		}
	}
}

// Borrowed reports how many slots currently hold a non-zero id, for
// tests of property 8 (borrowed ≤ workers+1 at all times).
func (cl *CachedList) Borrowed() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	n := 0
	for _, s := range cl.slots {
		if s.id != 0 {
			n++
		}
	}
	return n
}

// Cap returns the slot count (workers+2).
func (cl *CachedList) Cap() int { return len(cl.slots) }
