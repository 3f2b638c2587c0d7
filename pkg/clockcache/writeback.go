package clockcache

import "sync/atomic"

// okToWriteback implements ok_to_writeback (spec.md §4.G): true if status is
// dirty-and-not-accessed, or - when withAccess is set, the cleaner hand's
// "urgent" mode - dirty-and-accessed too.
func (c *Cache) okToWriteback(slot int, withAccess bool) bool {
	_, ok := c.writebackFrom(slot, withAccess)

	return ok
}

// writebackFrom computes the precise dirty status word a slot must be in to
// start writeback, and whether slot currently holds it. "Dirty" here means
// none of FREE, CLEAN, WRITEBACK, LOADING, WRITELOCKED or CLAIMED are set
// (spec.md invariant 5); the only bit left free to vary is ACCESSED.
func (c *Cache) writebackFrom(slot int, withAccess bool) (from uint32, ok bool) {
	const blocked = statusFree | statusClean | statusWriteback | statusLoading | statusWritelocked | statusClaimed

	cur := c.slots[slot].status.load()
	if cur&blocked != 0 {
		return 0, false
	}

	if cur&statusAccessed != 0 && !withAccess {
		return 0, false
	}

	return cur, true
}

// trySetWriteback implements try_set_writeback (spec.md §4.G): CAS from the
// precise dirty status word to the corresponding WRITEBACK word, touching no
// other bit (in particular, ACCESSED survives into the WRITEBACK word
// unchanged, so a reader that set it during the I/O is preserved).
func (c *Cache) trySetWriteback(slot int, withAccess bool) bool {
	from, ok := c.writebackFrom(slot, withAccess)
	if !ok {
		return false
	}

	return c.slots[slot].status.cas(from, from|statusWriteback)
}

// completeWriteback is the I/O completion half of the WRITEBACK -> CLEAN
// transition (spec.md §3 state table): clear WRITEBACK, set CLEAN. These are
// disjoint bits from ACCESSED, which a concurrent reader may set at any time
// via setAccessedIfUnset, so two independent atomic RMWs are sufficient -
// neither can stomp on the other's bit.
func (c *Cache) completeWriteback(slot int) {
	st := &c.slots[slot].status
	st.clearFlag(statusWriteback)
	st.setFlag(statusClean)
}

// extentBounds returns the [start, end) byte-address range of the extent
// containing addr.
func (c *Cache) extentBounds(addr int64) (start, end int64) {
	ext := int64(c.cfg.ExtentSize)
	start = addr - (addr % ext)

	return start, start + ext
}

// extendWritebackRun extends the single slot already CAS'd into WRITEBACK
// outward to cover its whole extent (spec.md §4.G batch_start_writeback):
// walk backward, then forward, from the slot's address, stopping at the
// extent boundary, an unmapped neighbor, a stale lookup entry, or the first
// neighbor that fails try_set_writeback. Every slot returned has already had
// its status CAS'd into WRITEBACK.
func (c *Cache) extendWritebackRun(slot int, withAccess bool) (firstAddr, endAddr int64, slots []int) {
	pageSize := int64(c.cfg.PageSize)
	addr := c.slots[slot].diskAddr.Load()

	extStart, extEnd := c.extentBounds(addr)

	slots = []int{slot}
	firstAddr = addr
	endAddr = addr + pageSize

	for firstAddr-pageSize >= extStart {
		prevAddr := firstAddr - pageSize

		prevSlot, found := c.lookup.get(prevAddr)
		if !found {
			break
		}

		if c.slots[prevSlot].diskAddr.Load() != prevAddr {
			break
		}

		if !c.trySetWriteback(prevSlot, withAccess) {
			break
		}

		firstAddr = prevAddr
		slots = append([]int{prevSlot}, slots...)
	}

	for endAddr < extEnd {
		nextSlot, found := c.lookup.get(endAddr)
		if !found {
			break
		}

		if c.slots[nextSlot].diskAddr.Load() != endAddr {
			break
		}

		if !c.trySetWriteback(nextSlot, withAccess) {
			break
		}

		slots = append(slots, nextSlot)
		endAddr += pageSize
	}

	return firstAddr, endAddr, slots
}

// submitWritebackRun builds the I/O vector for [firstAddr, endAddr) over
// slots and submits it, completing each slot independently on callback.
func (c *Cache) submitWritebackRun(firstAddr int64, slots []int) {
	bufs := make([][]byte, len(slots))
	for i, s := range slots {
		bufs[i] = c.slotBuf(s)
	}

	c.statAddWritebacksStarted(int64(len(slots)))
	c.tel.onWritebackStarted(len(slots))

	pending := slots

	err := c.device.SubmitAsyncWriteVector(firstAddr, bufs, func(err error) {
		if err != nil {
			c.fatal("writeback vector completed with error: " + err.Error())

			return
		}

		for _, s := range pending {
			c.completeWriteback(s)
			c.statIncWritebacksCompleted()
		}

		c.tel.onWritebackCompleted(len(pending))
	})
	if err != nil {
		c.fatal("writeback vector submission failed: " + err.Error())
	}
}

// batchStartWriteback implements batch_start_writeback (spec.md §4.G): for
// every slot in batch eligible under ok_to_writeback(.., urgent), start an
// extent-coalesced vectored write.
//
// Slots already swept into an earlier run within this same batch scan are
// skipped naturally: trySetWriteback fails on a slot no longer in the
// precise dirty word it requires, since it is already WRITEBACK.
func (c *Cache) batchStartWriteback(batch int, urgent bool) {
	span := c.tel.startSpan("clockcache.batch_start_writeback")
	defer endSpan(span)

	start := batch * batchSize

	end := start + batchSize
	if end > len(c.slots) {
		end = len(c.slots)
	}

	for s := start; s < end; s++ {
		if !c.trySetWriteback(s, urgent) {
			continue
		}

		firstAddr, _, slots := c.extendWritebackRun(s, urgent)
		c.submitWritebackRun(firstAddr, slots)
	}
}

// Flush implements flush (spec.md §4.G): drains all outstanding I/O, starts
// writeback urgently across every batch, drains again, and confirms every
// in-use slot reached CLEAN. Returns an error rather than calling fatal,
// since flush is a caller-invoked, non-hot-path operation where a confirmed
// failure to converge is better reported than panicked on.
func (c *Cache) Flush() error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	c.device.CleanupAll()

	for b := 0; b < c.batchCapacity(); b++ {
		c.batchStartWriteback(b, true)
	}

	c.device.CleanupAll()

	for i := range c.slots {
		st := c.slots[i].status.load()
		if st&statusFree != 0 {
			continue
		}

		if st&statusClean == 0 {
			return &FatalError{Reason: "flush: slot failed to reach CLEAN", Stats: c.Stats()}
		}
	}

	return nil
}

// PageSync implements page_sync (spec.md §4.G): force exactly one page to
// disk. On blocking, it performs a synchronous write and transitions the
// status directly, without going through the async completion path; on
// non-blocking, it issues a single async write with the normal completion
// transition.
func (c *Cache) PageSync(slot int, blocking bool) error {
	if !c.trySetWriteback(slot, true) {
		return nil
	}

	addr := c.slots[slot].diskAddr.Load()
	buf := c.slotBuf(slot)

	if blocking {
		if err := c.device.WritePage(addr, buf); err != nil {
			c.fatal("page_sync: synchronous write failed: " + err.Error())

			return err
		}

		c.completeWriteback(slot)
		c.statIncWritebacksCompleted()

		return nil
	}

	c.statAddWritebacksStarted(1)

	return c.device.SubmitAsyncWrite(addr, buf, func(err error) {
		if err != nil {
			c.fatal("page_sync: async write completed with error: " + err.Error())

			return
		}

		c.completeWriteback(slot)
		c.statIncWritebacksCompleted()
	})
}

// ExtentSync implements extent_sync (spec.md §4.G): walk every page of the
// extent containing baseAddr, coalescing consecutive writable pages into one
// vectored write and restarting the vector on any unmapped or uncleanable
// page. pagesOutstanding is incremented by the number of pages submitted in
// each vector and decremented by that vector's completion callback, so
// callers can poll it down to zero to know the extent has reached disk.
func (c *Cache) ExtentSync(baseAddr int64, pagesOutstanding *int64) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	start, end := c.extentBounds(baseAddr)
	pageSize := int64(c.cfg.PageSize)

	var (
		runStart int64 = -1
		runSlots []int
	)

	flushRun := func() {
		if len(runSlots) == 0 {
			return
		}

		n := int64(len(runSlots))
		pending := runSlots

		atomic.AddInt64(pagesOutstanding, n)

		bufs := make([][]byte, len(pending))
		for i, s := range pending {
			bufs[i] = c.slotBuf(s)
		}

		c.statAddWritebacksStarted(n)

		err := c.device.SubmitAsyncWriteVector(runStart, bufs, func(err error) {
			if err != nil {
				c.fatal("extent_sync: vector completed with error: " + err.Error())

				return
			}

			for _, s := range pending {
				c.completeWriteback(s)
				c.statIncWritebacksCompleted()
			}

			atomic.AddInt64(pagesOutstanding, -n)
		})
		if err != nil {
			c.fatal("extent_sync: vector submission failed: " + err.Error())
		}

		runStart = -1
		runSlots = nil
	}

	for addr := start; addr < end; addr += pageSize {
		slot, found := c.lookup.get(addr)
		if !found || c.slots[slot].diskAddr.Load() != addr || !c.trySetWriteback(slot, true) {
			flushRun()

			continue
		}

		if len(runSlots) == 0 {
			runStart = addr
		}

		runSlots = append(runSlots, slot)
	}

	flushRun()

	return nil
}
