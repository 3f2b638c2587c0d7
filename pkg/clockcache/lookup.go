package clockcache

import "sync/atomic"

// lookupTable maps disk-page number -> slot index (spec.md §3/§4.D).
//
// Publishing a new mapping is a CAS from unmappedEntry to the slot index,
// so concurrent misses on the same address deterministically elect one
// loader; losers must release their speculatively-acquired free slot.
// Clearing is an unconditional store performed only by the write-lock
// holder for that slot (there is no concurrent writer to race against at
// that point, by construction of the lock ladder).
type lookupTable struct {
	entries []atomic.Int32 // index: addr >> logPageSize; value: slot or unmappedEntry
	logPS   uint
}

func newLookupTable(numPages int, logPageSize uint) *lookupTable {
	t := &lookupTable{
		entries: make([]atomic.Int32, numPages),
		logPS:   logPageSize,
	}

	for i := range t.entries {
		t.entries[i].Store(unmappedEntry)
	}

	return t
}

func (t *lookupTable) pageNum(addr int64) int64 {
	return addr >> t.logPS
}

// get returns the slot mapped to addr, or (0, false) if addr is unmapped or
// falls outside the device range this table was sized for.
func (t *lookupTable) get(addr int64) (slot int, ok bool) {
	n := t.pageNum(addr)
	if n < 0 || n >= int64(len(t.entries)) {
		return 0, false
	}

	v := t.entries[n].Load()
	if v == unmappedEntry {
		return 0, false
	}

	return int(v), true
}

// publish CASes the lookup entry for addr from unmapped to slot. Returns
// true if this caller won the race and is now the loader of record.
func (t *lookupTable) publish(addr int64, slot int) bool {
	n := t.pageNum(addr)
	if n < 0 || n >= int64(len(t.entries)) {
		return false
	}

	return t.entries[n].CompareAndSwap(unmappedEntry, int32(slot))
}

// clear unconditionally unmaps addr. Only the write-lock holder for the
// slot that owns addr may call this.
func (t *lookupTable) clear(addr int64) {
	n := t.pageNum(addr)
	if n < 0 || n >= int64(len(t.entries)) {
		return
	}

	t.entries[n].Store(unmappedEntry)
}
