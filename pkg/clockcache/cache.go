package clockcache

import "go.opentelemetry.io/otel/attribute"

// Page is a handle to a pinned-in-cache page, returned by [Cache.Alloc],
// [Cache.Get] and a successful [Cache.GetAsync] (spec.md §4.I "External
// interface surface"). It carries no exported fields; every transition is a
// method call, mirroring teacher's Writer/Cache handle-method style in
// pkg/slotcache/cache.go and writer.go, generalized from "a session on a
// file" to "a pinned reference on a slot".
//
// A Page is only valid for the lifetime of the read reference it was issued
// with; callers must call [Page.Unget] exactly once when done, in the
// reverse order of any Claim/Lock/Pin they acquired (spec.md §4.C release
// ordering: write -> claim -> read).
type Page struct {
	cache *Cache
	slot  int
	thr   ThreadID
}

// Bytes returns the page's data buffer. Callers may only mutate it while
// holding the write lock (via [Page.Lock]) or observe it stably while the
// page is neither LOADING nor WRITEBACK (spec.md §5 "Shared-resource
// policy").
func (p *Page) Bytes() []byte {
	return p.cache.slotBuf(p.slot)
}

// Addr returns the page's disk address.
func (p *Page) Addr() int64 {
	return p.cache.slots[p.slot].diskAddr.Load()
}

// Type returns the page's type tag.
func (p *Page) Type() PageType {
	return PageType(p.cache.slots[p.slot].typ.Load())
}

// Claim implements claim(page) -> bool (spec.md §6): a non-blocking attempt
// to acquire the single-writer claim lock. The caller must already hold the
// read reference this Page was issued with.
func (p *Page) Claim() bool {
	return p.cache.tryGetClaim(p.slot) == LockSuccess
}

// Unclaim implements unclaim(page) (spec.md §6).
func (p *Page) Unclaim() {
	p.cache.dropClaim(p.slot)
}

// Lock implements lock(page) (spec.md §6): upgrades an already-held claim to
// the exclusive write lock. Never fails; blocks until acquired.
func (p *Page) Lock() {
	p.cache.getWrite(p.slot, p.thr)
}

// Unlock implements unlock(page) (spec.md §6).
func (p *Page) Unlock() {
	p.cache.dropWrite(p.slot)
}

// Pin implements pin(page) (spec.md §6: "pin requires write lock"). Pin adds
// a reference in the separate, non-evictable pin-count array that survives
// [Page.Unlock] and [Page.Unget] - the only way a slot stays resident after
// every ordinary reference is released.
func (p *Page) Pin() {
	debugAssert(p.cache.slots[p.slot].status.testFlag(statusWritelocked), "pin requires write lock held")
	p.cache.pins.inc(p.slot)
}

// Unpin implements unpin(page) (spec.md §6).
func (p *Page) Unpin() {
	p.cache.pins.dec(p.slot)
}

// MarkDirty implements mark_dirty(page) (spec.md §6): clears CLEAN, marking
// the page as needing writeback before its next eviction.
func (p *Page) MarkDirty() {
	p.cache.slots[p.slot].status.clearFlag(statusClean)
}

// Unget implements unget(page) (spec.md §6): releases the read reference
// this Page was issued with. Callers must not use the Page afterward.
func (p *Page) Unget() {
	p.cache.dropRead(p.slot, p.thr)
}

// Alloc implements alloc(addr, type) (spec.md §6): acquires a free slot,
// publishes it at addr, and returns a write-locked, dirty Page with the
// caller's read reference held. Blocks until a slot is available (spec.md
// §4.E's blocking mode never fails; it calls Cache.fatal on exhaustion
// instead).
//
// Calling Alloc on an address some other caller is concurrently loading or
// has already resident is a programming error (the lookup-table publish
// loses the race and Alloc retries with a fresh slot indefinitely); callers
// must only Alloc addresses their own allocator just handed out.
func (c *Cache) Alloc(addr int64, typ PageType) (*Page, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	span := c.tel.startSpan("clockcache.alloc", attribute.Int64("addr", addr))
	defer endSpan(span)

	thr := c.threadID()

	for {
		slot, ok := c.getFreeSlot(thr, statusAlloc, true, true)
		if !ok {
			continue
		}

		if !c.lookup.publish(addr, slot) {
			c.dropRead(slot, thr)
			c.slots[slot].diskAddr.Store(UnmappedAddr)
			c.slots[slot].status.store(statusFree)

			continue
		}

		c.slots[slot].diskAddr.Store(addr)
		c.slots[slot].typ.Store(uint32(typ))
		c.statIncAllocs()

		return &Page{cache: c, slot: slot, thr: thr}, nil
	}
}

// GetAllocatorRef implements get_allocator_ref(addr) (spec.md §6): returns
// the allocator-level reference count of the extent containing addr.
func (c *Cache) GetAllocatorRef(addr int64) (int32, error) {
	extStart, _ := c.extentBounds(addr)

	return c.allocator.RefCount(extStart)
}

// Wait implements wait() (spec.md §6): drives I/O progress without blocking
// for completion of any specific request.
func (c *Cache) Wait() {
	pollIOProgress(c.device)
}

// SetSyncGetEnabled records enable_sync_get (spec.md §5 "Cancellation /
// timeout") for the calling thread's own per-thread slot, where
// [Cache.SyncGetEnabled] reports it. [Cache.Get] does not read this flag:
// a synchronous Get still runs normally when it is false. thr should be
// the value that thread's [ThreadIDs] returns.
func (c *Cache) SetSyncGetEnabled(thr ThreadID, enabled bool) {
	c.enableSyncGet[c.handIndex(thr)].Store(enabled)
}

// SyncGetEnabled reports whether synchronous Get is currently enabled for
// the given thread.
func (c *Cache) SyncGetEnabled(thr ThreadID) bool {
	return c.enableSyncGet[c.handIndex(thr)].Load()
}
