package clockcache

import "go.opentelemetry.io/otel/attribute"

// getInternal implements get_internal (spec.md §4.H): a single attempt at
// either acquiring a read ref on an already-mapped page, or loading a
// missing one. retry=true covers every race-with-eviction and
// race-with-loader case; the caller (Get) loops until retry is false.
func (c *Cache) getInternal(addr int64, blocking bool, typ PageType, thr ThreadID) (page *Page, retry bool) {
	if slot, found := c.lookup.get(addr); found {
		var res LockResult
		if blocking {
			res = c.getRead(slot, thr, true)
		} else {
			res = c.tryGetRead(slot, thr, true)
		}

		switch res {
		case LockEvicted:
			return nil, true
		case LockConflict:
			return nil, false
		}

		if c.slots[slot].diskAddr.Load() != addr {
			c.dropRead(slot, thr)

			return nil, true
		}

		c.waitOutLoading(slot)
		c.statIncHits()
		c.tel.onHit()

		return &Page{cache: c, slot: slot, thr: thr}, false
	}

	slot, ok := c.getFreeSlot(thr, statusReadLoading, true, blocking)
	if !ok {
		return nil, false
	}

	if !c.lookup.publish(addr, slot) {
		c.dropRead(slot, thr)
		c.slots[slot].diskAddr.Store(UnmappedAddr)
		c.slots[slot].status.store(statusFree)

		return nil, true
	}

	c.slots[slot].diskAddr.Store(addr)
	c.slots[slot].typ.Store(uint32(typ))

	if err := c.device.ReadPage(addr, c.slotBuf(slot)); err != nil {
		c.fatal("get: synchronous read failed: " + err.Error())
	}

	c.slots[slot].status.clearFlag(statusLoading)
	c.statIncMisses()
	c.tel.onMiss()

	return &Page{cache: c, slot: slot, thr: thr}, false
}

// Get implements get(addr, blocking, type) (spec.md §4.H, §6): loops
// getInternal until a non-retry outcome. Returns nil (no error) only in
// non-blocking mode on a lock conflict or free-slot exhaustion - this
// mirrors the original's "null only in non-blocking on conflict" contract
// rather than treating a normal, expected non-blocking miss as an error.
func (c *Cache) Get(addr int64, blocking bool, typ PageType) (*Page, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	span := c.tel.startSpan("clockcache.get", attribute.Int64("addr", addr))
	defer endSpan(span)

	thr := c.threadID()

	for {
		page, retry := c.getInternal(addr, blocking, typ, thr)
		if !retry {
			return page, nil
		}
	}
}

// GetAsync implements get_async(addr, type, ctxt) (spec.md §4.H, §6): on
// hit, behaves like a non-blocking Get. On miss, obtains a non-blocking free
// slot (LOCKED if none), CAS-publishes, submits an async read, and returns
// IO_STARTED; the completion callback clears LOADING, records ctxt.Page,
// and invokes done. The caller later calls [Cache.AsyncDone] on its own
// thread to fold the request into statistics.
func (c *Cache) GetAsync(addr int64, typ PageType, ctxt *AsyncCtxt, done func()) (GetAsyncResult, error) {
	if err := c.checkOpen(); err != nil {
		return GetAsyncLocked, err
	}

	thr := c.threadID()

	if slot, found := c.lookup.get(addr); found {
		res := c.tryGetRead(slot, thr, true)

		switch res {
		case LockSuccess:
			if c.slots[slot].diskAddr.Load() == addr {
				c.waitOutLoading(slot)
				c.statIncHits()
				c.tel.onHit()
				ctxt.Page = &Page{cache: c, slot: slot, thr: thr}

				return GetAsyncSuccess, nil
			}

			c.dropRead(slot, thr)

			return GetAsyncLocked, nil
		case LockEvicted, LockConflict:
			return GetAsyncLocked, nil
		}
	}

	slot, ok := c.getFreeSlot(thr, statusReadLoading, true, false)
	if !ok {
		return GetAsyncLocked, nil
	}

	if !c.lookup.publish(addr, slot) {
		c.dropRead(slot, thr)
		c.slots[slot].diskAddr.Store(UnmappedAddr)
		c.slots[slot].status.store(statusFree)

		return GetAsyncLocked, nil
	}

	c.slots[slot].diskAddr.Store(addr)
	c.slots[slot].typ.Store(uint32(typ))

	err := c.device.SubmitAsyncRead(addr, c.slotBuf(slot), func(err error) {
		if err != nil {
			c.fatal("get_async: read completion error: " + err.Error())

			return
		}

		c.slots[slot].status.clearFlag(statusLoading)
		ctxt.Page = &Page{cache: c, slot: slot, thr: thr}

		if done != nil {
			done()
		}
	})
	if err != nil {
		c.dropRead(slot, thr)
		c.lookup.clear(addr)
		c.slots[slot].diskAddr.Store(UnmappedAddr)
		c.slots[slot].status.store(statusFree)

		return GetAsyncNoReqs, nil
	}

	return GetAsyncIOStarted, nil
}

// AsyncDone implements async_done(type, ctxt) (spec.md §6): called by the
// client on its own thread once ctxt.Page has been set, to fold the
// completed request into statistics (the miss counter is not incremented
// inside the I/O completion callback itself, since that callback may run on
// an arbitrary thread and must only touch atomic state it already owns).
func (c *Cache) AsyncDone(typ PageType, ctxt *AsyncCtxt) {
	if ctxt == nil || ctxt.Page == nil {
		return
	}

	c.statIncMisses()
	c.tel.onMiss()
}

// Prefetch implements prefetch(base_addr, type) (spec.md §4.H): for each
// page of the extent containing baseAddr, a present page is detected (and
// immediately released) via a probing read-ref; an absent page is given a
// free slot and CAS'd into the lookup table. Contiguous newly-acquired
// targets are accumulated into a single vectored read, flushed whenever a
// page is found present or its publish CAS loses the race (another loader
// got there first) - the losing offset is simply skipped, since whoever won
// is responsible for loading it.
func (c *Cache) Prefetch(baseAddr int64, typ PageType) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	thr := c.threadID()
	pageSize := int64(c.cfg.PageSize)
	_, extEnd := c.extentBounds(baseAddr)

	var (
		runStart int64 = -1
		runSlots []int
	)

	flush := func() {
		if len(runSlots) == 0 {
			return
		}

		bufs := make([][]byte, len(runSlots))
		for i, s := range runSlots {
			bufs[i] = c.slotBuf(s)
		}

		pending := runSlots
		first := runStart
		n := int64(len(pending))

		c.statAddPrefetchPages(n)

		err := c.device.SubmitAsyncReadVector(first, bufs, func(err error) {
			if err != nil {
				c.fatal("prefetch: vectored read completed with error: " + err.Error())

				return
			}

			for _, s := range pending {
				c.slots[s].status.clearFlag(statusLoading)
				c.dropRead(s, thr)
			}
		})
		if err != nil {
			c.fatal("prefetch: vectored read submission failed: " + err.Error())
		}

		runStart = -1
		runSlots = nil
	}

	for addr := baseAddr; addr < extEnd; addr += pageSize {
		if slot, found := c.lookup.get(addr); found {
			// Present: probe with a throwaway read ref just to confirm
			// residency, then release it immediately - prefetch never holds
			// a ref on the caller's behalf.
			if c.tryGetRead(slot, thr, false) == LockSuccess {
				c.dropRead(slot, thr)
			}

			flush()

			continue
		}

		slot, ok := c.getFreeSlot(thr, statusReadLoading, true, false)
		if !ok {
			flush()

			continue
		}

		if !c.lookup.publish(addr, slot) {
			// Lost the race to another loader for this exact offset; that
			// loader owns it now, so release our speculative slot and move
			// on rather than retrying the same offset ourselves.
			c.dropRead(slot, thr)
			c.slots[slot].diskAddr.Store(UnmappedAddr)
			c.slots[slot].status.store(statusFree)
			flush()

			continue
		}

		c.slots[slot].diskAddr.Store(addr)
		c.slots[slot].typ.Store(uint32(typ))

		if len(runSlots) == 0 {
			runStart = addr
		}

		runSlots = append(runSlots, slot)
	}

	flush()

	return nil
}

// Dealloc implements dealloc(extent_addr, type) (spec.md §4.H): decrements
// the allocator-level refcount; if it drops to 1 (logically zero, but the
// allocator's own structural reference remains), every page of the extent
// is walked through tryDeallocPage and the allocator refcount is then
// dropped to true zero. Returns true iff the extent was actually freed.
func (c *Cache) Dealloc(extentAddr int64, typ PageType) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}

	prior, err := c.allocator.DecRefCount(extentAddr)
	if err != nil {
		return false, err
	}

	// prior is the pre-decrement value: prior == 2 means the count has just
	// dropped to 1, i.e. no logical references remain.
	if prior != 2 {
		return false, nil
	}

	thr := c.threadID()
	pageSize := int64(c.cfg.PageSize)
	_, extEnd := c.extentBounds(extentAddr)

	for addr := extentAddr; addr < extEnd; addr += pageSize {
		c.tryDeallocPage(addr, thr)
	}

	if _, err := c.allocator.DecRefCount(extentAddr); err != nil {
		return false, err
	}

	c.statIncDeallocs()

	return true, nil
}

// tryDeallocPage implements try_dealloc_page(addr) (spec.md §4.H):
// read-lock, wait out LOADING, verify addr is still mapped to this slot,
// claim (retrying the whole procedure on conflict), write-lock, clear
// lookup and disk_addr, set status FREE, drop the read ref. Any race
// restarts the full procedure, since the slot may have been evicted and
// reused for something else entirely by the time it retries.
func (c *Cache) tryDeallocPage(addr int64, thr ThreadID) {
	for {
		slot, found := c.lookup.get(addr)
		if !found {
			return
		}

		if c.getRead(slot, thr, false) != LockSuccess {
			continue
		}

		c.waitOutLoading(slot)

		if c.slots[slot].diskAddr.Load() != addr {
			c.dropRead(slot, thr)

			continue
		}

		if c.tryGetClaim(slot) != LockSuccess {
			c.dropRead(slot, thr)

			continue
		}

		c.getWrite(slot, thr)

		c.lookup.clear(addr)
		c.slots[slot].diskAddr.Store(UnmappedAddr)
		c.slots[slot].status.store(statusFree)
		c.dropRead(slot, thr)

		return
	}
}
