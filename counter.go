package nonblock

import (
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/llxisdsh/nonblock/internal/opt"
)

// estimateRefresh bounds how stale a cached Estimate may be.
const estimateRefresh = time.Millisecond

// Counter is a striped int64 counter that scales under write contention.
//
// A Counter starts with a single cell. When an update loses a CAS race on
// its cell, the counter treats it as a contention signal and doubles the
// number of cells (up to the next power of two of GOMAXPROCS), so that
// later updates spread over independent cache lines.
//
// Reads sum every cell without cross-cell synchronization: the result is
// a momentary snapshot that is exact only once all writers are quiescent.
//
// The zero value is ready to use. A Counter must not be copied after first
// use.
type Counter struct {
	_     noCopy
	base  opt.CounterCell_
	cells atomic.Pointer[counterCells]

	estimate   atomic.Int64
	estimateAt atomic.Int64 // nanoseconds since counterEpoch
}

type counterCells struct {
	cells []*opt.CounterCell_
	mask  uint32
}

var counterEpoch = time.Now()

// Increment adds one to the counter.
func (c *Counter) Increment() {
	c.Add(1)
}

// Decrement subtracts one from the counter.
func (c *Counter) Decrement() {
	c.Add(-1)
}

// Add adds delta to the counter.
func (c *Counter) Add(delta int64) {
	cs := c.cells.Load()
	if cs == nil {
		v := c.base.V.Load()
		if c.base.V.CompareAndSwap(v, v+delta) {
			return
		}
		// First collision on the base cell.
		c.grow(nil)
		if cs = c.cells.Load(); cs == nil {
			c.base.V.Add(delta)
			return
		}
	}

	for range 2 {
		cell := cs.cells[rand.Uint32()&cs.mask]
		v := cell.V.Load()
		if cell.V.CompareAndSwap(v, v+delta) {
			return
		}
	}

	c.grow(cs)
	cs.cells[rand.Uint32()&cs.mask].V.Add(delta)
}

// grow installs a cell array twice the size of old. Existing cells are
// shared by reference so that concurrent updates through old are never
// lost. Losing the install race is harmless.
func (c *Counter) grow(old *counterCells) {
	n := 2
	if old != nil {
		n = len(old.cells) << 1
	}
	if n > maxCounterCells() {
		return
	}
	cells := make([]*opt.CounterCell_, n)
	if old != nil {
		copy(cells, old.cells)
	}
	for i := range cells {
		if cells[i] == nil {
			cells[i] = new(opt.CounterCell_)
		}
	}
	c.cells.CompareAndSwap(old, &counterCells{cells: cells, mask: uint32(n - 1)})
}

//go:nosplit
func maxCounterCells() int {
	return max(2, nextPowOf2(runtime.GOMAXPROCS(0)))
}

// Value returns the sum of all cells.
func (c *Counter) Value() int64 {
	sum := c.base.V.Load()
	if cs := c.cells.Load(); cs != nil {
		for _, cell := range cs.cells {
			sum += cell.V.Load()
		}
	}
	return sum
}

// Estimate returns a possibly cached Value, at most about a millisecond
// old. It is meant for heuristics that run on hot paths.
func (c *Counter) Estimate() int64 {
	if c.cells.Load() == nil {
		return c.base.V.Load()
	}
	now := int64(time.Since(counterEpoch))
	if at := c.estimateAt.Load(); at != 0 && now-at < int64(estimateRefresh) {
		return c.estimate.Load()
	}
	v := c.Value()
	c.estimate.Store(v)
	c.estimateAt.Store(now)
	return v
}

// Cells returns the number of cells updates are currently spread over.
func (c *Counter) Cells() int {
	if cs := c.cells.Load(); cs != nil {
		return len(cs.cells)
	}
	return 1
}
