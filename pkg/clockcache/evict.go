package clockcache

// tryEvict implements try_evict (spec.md §4.F): the clock algorithm's
// per-slot decision plus the lock ladder needed to act on it safely.
//
// Returns true if the slot was evicted (now FREE). Returns false if the
// slot got a second chance (ACCESSED was set and is now cleared), is not
// evictable right now (dirty/writeback/loading/claimed/free, or the
// caller's own thread holds a ref, or the slot is pinned), or lost a race
// for one of the lock-ladder rungs - in every false case any lock acquired
// along the way has already been unwound.
func (c *Cache) tryEvict(slot int, thr ThreadID) bool {
	st := &c.slots[slot].status

	if st.testAndClearAccessed() {
		return false
	}

	if st.load() != statusClean {
		return false
	}

	if c.refs.getRef(slot, thr) > 0 {
		return false
	}

	if c.pins.get(slot) > 0 {
		return false
	}

	return c.evictLadder(slot, thr)
}

// evictLadder ascends read -> claim -> (abort if LOADING) -> write, then
// re-verifies the slot is still exactly CLEAN|CLAIMED|WRITELOCKED and still
// unpinned before publishing FREE. A pin is never forced through here -
// clockcache.c's try_evict never evicts a pinned slot regardless of the
// evict_all ignore_pinned flag; that flag only relaxes the post-sweep
// assertion in EvictAll, not this per-slot decision. Any failure unwinds
// whatever locks were acquired, in reverse order.
func (c *Cache) evictLadder(slot int, thr ThreadID) bool {
	st := &c.slots[slot].status

	if c.tryGetRead(slot, thr, false) != LockSuccess {
		return false
	}

	if c.tryGetClaim(slot) != LockSuccess {
		c.dropRead(slot, thr)

		return false
	}

	if st.testFlag(statusLoading) {
		c.dropClaim(slot)
		c.dropRead(slot, thr)

		return false
	}

	if c.tryGetWrite(slot, thr) != LockSuccess {
		c.dropClaim(slot)
		c.dropRead(slot, thr)

		return false
	}

	final := st.load()
	if final != (statusClean | statusClaimed | statusWritelocked) {
		c.dropWrite(slot)
		c.dropClaim(slot)
		c.dropRead(slot, thr)

		return false
	}

	if c.pins.get(slot) > 0 {
		c.dropWrite(slot)
		c.dropClaim(slot)
		c.dropRead(slot, thr)

		return false
	}

	addr := c.slots[slot].diskAddr.Load()
	if addr != UnmappedAddr {
		c.lookup.clear(addr)
	}

	c.slots[slot].diskAddr.Store(UnmappedAddr)
	// A single store both frees the slot and releases claim+write together
	// (spec.md §4.F); the read ref is released separately right after,
	// since read refs live in the refcount matrix, not in status.
	st.store(statusFree)
	c.dropRead(slot, thr)
	c.statIncEvictions()
	c.tel.onEviction(1)

	return true
}

// evictBatch implements evict_batch (spec.md §4.F): sweep try_evict across
// every slot in batch.
func (c *Cache) evictBatch(batch int) {
	span := c.tel.startSpan("clockcache.evict_batch")
	defer endSpan(span)

	thr := c.threadID()

	start := batch * batchSize

	end := start + batchSize
	if end > len(c.slots) {
		end = len(c.slots)
	}

	for s := start; s < end; s++ {
		c.tryEvict(s, thr)
	}
}

// EvictAll sweeps every slot in the cache via the same pin-respecting
// try_evict ladder as ordinary eviction, scanning twice so that the first
// pass's ACCESSED-clearing second chances are honored on the second
// (spec.md §6 "evict_all(ignore_pinned) -> int"). A pin always blocks
// eviction of that slot - clockcache.c's evict_all never forces a pin
// either, regardless of the flag it's given.
//
// ignorePinned only controls what's acceptable once the sweep is done:
// if true, a pinned slot left live is expected and fine; if false, every
// slot must have ended up FREE, and any slot still live (pinned or not)
// is an invariant violation - this mode is meant for full teardown, where
// no caller should still be holding a pin.
// Returns the number of slots evicted.
func (c *Cache) EvictAll(ignorePinned bool) (int, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}

	thr := c.threadID()

	total := 0

	for pass := 0; pass < 2; pass++ {
		for s := 0; s < len(c.slots); s++ {
			if c.tryEvict(s, thr) {
				total++
			}
		}
	}

	for s := 0; s < len(c.slots); s++ {
		if c.slots[s].status.load()&statusFree != 0 {
			continue
		}

		if ignorePinned && c.pins.get(s) > 0 {
			continue
		}

		debugAssert(false, "evict_all: slot left live after sweep")
	}

	return total, nil
}
