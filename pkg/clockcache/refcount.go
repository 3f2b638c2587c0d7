package clockcache

import "sync/atomic"

// cacheLine is the assumed CPU cache line size in bytes, used only to size
// the refcount transpose block (spec.md §3/§4.A/§9 "False-sharing
// mitigation"). int32 is 4 bytes, so one cache line holds cacheLine/4 cells.
const cacheLine = 64

// refCellsPerLine is how many int32 refcount cells fit in one cache line.
const refCellsPerLine = cacheLine / 4

// refcountMatrix is the striped per-thread refcount engine (spec.md §4.A).
//
// Conceptually a [width][pageCapacity] matrix of small counters, but the
// physical layout transposes blocks of refCellsPerLine adjacent slots so
// that, within such a block, the same thread's cells for two different
// slots land on different cache lines. A naive [thread][slot] row-major
// layout puts every thread's counter for slots s and s+1 one int32 apart -
// i.e. on the *same* cache line - which is exactly the false-sharing
// pattern this transpose exists to avoid (see balasanjay/lrlock's
// refCount, the closest analog in the example pack, which solves the same
// problem for a single global counter rather than a per-slot matrix).
//
// Overflow is treated as a programming bug: inc/dec are checked and call
// the owning cache's fatal() path rather than silently wrapping.
type refcountMatrix struct {
	width   int
	cells   []int32 // len == width * roundUp(pageCapacity, refCellsPerLine*refCellsPerLine)
	stride  int     // cells per thread-row, padded to a whole transpose tile (refCellsPerLine^2)
	onOverflow func(reason string)
}

func newRefcountMatrix(width int, pageCapacity int, onOverflow func(string)) *refcountMatrix {
	if width < 1 {
		width = 1
	}

	stride := roundUpTo(pageCapacity, refCellsPerLine*refCellsPerLine)

	return &refcountMatrix{
		width:      width,
		cells:      make([]int32, width*stride),
		stride:     stride,
		onOverflow: onOverflow,
	}
}

func roundUpTo(n, multiple int) int {
	if multiple <= 0 {
		return n
	}

	rem := n % multiple
	if rem == 0 {
		return n
	}

	return n + (multiple - rem)
}

// index computes the transposed physical cell index for (thread, slot).
//
// Within each block of refCellsPerLine consecutive slots, column and row
// are swapped: column = slot mod refCellsPerLine (position within the
// block), row = (slot / refCellsPerLine) mod refCellsPerLine. This is the
// same "transpose a cacheLine x cacheLine block" trick spec.md §4.A
// describes; it guarantees that for a fixed thread column, two slots in
// the same block never share a physical int32's cache line, because they
// occupy different rows of the per-thread row-major cell array.
func (m *refcountMatrix) index(thr ThreadID, slot int) int {
	col := thr
	if int(col) >= m.width {
		col = ThreadID(int(col) % m.width)
	}

	block := slot / refCellsPerLine
	within := slot % refCellsPerLine

	// Transpose within the block: swap (blockRow=within) with a row derived
	// from the block number, so adjacent slots (different `within`) always
	// land in different cache lines for the same thread row.
	row := block % refCellsPerLine
	blockBase := (block / refCellsPerLine) * refCellsPerLine * refCellsPerLine

	physicalSlot := blockBase + within*refCellsPerLine + row

	return int(col)*m.stride + physicalSlot
}

func (m *refcountMatrix) incRef(slot int, thr ThreadID) {
	idx := m.index(thr, slot)

	v := atomic.AddInt32(&m.cells[idx], 1)
	if v <= 0 || v == 1<<30 {
		if m.onOverflow != nil {
			m.onOverflow("refcount overflow")
		}
	}
}

func (m *refcountMatrix) decRef(slot int, thr ThreadID) {
	idx := m.index(thr, slot)

	v := atomic.AddInt32(&m.cells[idx], -1)
	if v < 0 {
		if m.onOverflow != nil {
			m.onOverflow("refcount underflow")
		}
	}
}

func (m *refcountMatrix) getRef(slot int, thr ThreadID) int32 {
	return atomic.LoadInt32(&m.cells[m.index(thr, slot)])
}

// sumRefs returns the total read-reference count held on slot across every
// thread column (spec.md invariant 6).
func (m *refcountMatrix) sumRefs(slot int) int32 {
	var total int32

	for col := 0; col < m.width; col++ {
		total += atomic.LoadInt32(&m.cells[m.index(ThreadID(col), slot)])
	}

	return total
}

// sumRefsExcept returns the total refs on slot across every column other
// than the caller's own, used by write-lock acquisition which must drain
// all other readers while tolerating (and then dropping) its own ref.
func (m *refcountMatrix) sumRefsExcept(slot int, self ThreadID) int32 {
	own := int(self) % m.width

	var total int32

	for col := 0; col < m.width; col++ {
		if col == own {
			continue
		}

		total += atomic.LoadInt32(&m.cells[m.index(ThreadID(col), slot)])
	}

	return total
}

// pinCounts is the parallel, non-evictable reference array (spec.md §3).
// Independent of refcountMatrix; a pin survives unlock.
//
// spec.md describes this as a byte array; sync/atomic has no byte-wide
// primitive, so each counter gets its own int32 cell instead. Functionally
// equivalent (pin depth never remotely approaches 2^31), and still a
// separate, much smaller allocation than the refcount matrix since there
// is exactly one cell per slot rather than per (thread, slot) pair.
type pinCounts struct {
	counts []int32
}

func newPinCounts(pageCapacity int) *pinCounts {
	return &pinCounts{counts: make([]int32, pageCapacity)}
}

func (p *pinCounts) inc(slot int) {
	v := atomic.AddInt32(&p.counts[slot], 1)
	if v < 0 {
		panic("clockcache: pin count overflow")
	}
}

func (p *pinCounts) dec(slot int) {
	v := atomic.AddInt32(&p.counts[slot], -1)
	if v < 0 {
		panic("clockcache: pin count underflow")
	}
}

func (p *pinCounts) get(slot int) int32 {
	return atomic.LoadInt32(&p.counts[slot])
}
