package clockcache

import (
	"sync/atomic"
)

// slotMeta is the per-slot metadata described in spec.md §3, minus the data
// buffer itself (which lives in the shared arena, sliced by index).
type slotMeta struct {
	status   clockStatus
	diskAddr atomic.Int64 // UnmappedAddr or a page-size-aligned byte address
	typ      atomic.Uint32 // PageType
}

// Cache is a handle to an open page cache. The zero value is not usable;
// obtain one via [NewCache].
//
// Every exported method is safe for concurrent use by multiple goroutines.
type Cache struct {
	cfg     Config
	derived derivedConfig

	arena  *arena
	slots  []slotMeta
	lookup *lookupTable
	refs   *refcountMatrix
	pins   *pinCounts

	// evictBatchBusy/cleanBatchBusy are the per-batch busy flags CAS-owned
	// by at most one thread at a time (spec.md §3 "Batch-busy array",
	// §4.E move_hand step 2 for the separate cleaner-hand ownership).
	evictBatchBusy []atomic.Bool
	cleanBatchBusy []atomic.Bool

	evictHand atomic.Int64 // global clock hand, in batch units

	// Per-thread state (spec.md §3), indexed by ThreadID % refcountWidth.
	freeHand      []atomic.Int32 // owned batch index, or unmappedEntry
	enableSyncGet []atomic.Bool  // defaults true; see Cache.SetSyncGetEnabled

	device    IODevice
	allocator Allocator
	threadIDs ThreadIDs

	stats cacheStats
	tel   *telemetry

	diagnosticsPath string

	closed atomic.Bool
}

// NewCache constructs a [Cache] from cfg. It validates cfg and allocates
// the slot arena, lookup table, refcount matrix and pin-count array up
// front; there is no dynamic resizing after construction (spec.md §9
// "there is no true global... multiple caches... should be independent").
func NewCache(cfg Config) (*Cache, error) {
	derived, err := validateAndDerive(cfg)
	if err != nil {
		return nil, err
	}

	a, err := newArena(cfg.PageSize, derived.pageCapacity)
	if err != nil {
		return nil, err
	}

	threadIDs := cfg.ThreadIDs
	if threadIDs == nil {
		threadIDs = newAffineThreadIDs(derived.refcountWidth)
	}

	c := &Cache{
		cfg:             cfg,
		derived:         derived,
		arena:           a,
		slots:           make([]slotMeta, derived.pageCapacity),
		evictBatchBusy:  make([]atomic.Bool, derived.batchCapacity),
		cleanBatchBusy:  make([]atomic.Bool, derived.batchCapacity),
		freeHand:        make([]atomic.Int32, derived.refcountWidth),
		enableSyncGet:   make([]atomic.Bool, derived.refcountWidth),
		device:          cfg.Device,
		allocator:       cfg.Allocator,
		threadIDs:       threadIDs,
		diagnosticsPath: cfg.DiagnosticsPath,
		tel:             newTelemetry(cfg.Tracer, cfg.Meter),
	}

	c.refs = newRefcountMatrix(derived.refcountWidth, derived.pageCapacity, func(reason string) {
		c.fatal(reason)
	})
	c.pins = newPinCounts(derived.pageCapacity)

	devCapacity := cfg.Allocator.Capacity()

	numPages := int(devCapacity / int64(cfg.PageSize))
	if numPages < 1 {
		numPages = 1
	}

	c.lookup = newLookupTable(numPages, derived.logPageSize)

	for i := range c.slots {
		c.slots[i].diskAddr.Store(UnmappedAddr)
		c.slots[i].status.store(statusFree)
	}

	for i := range c.freeHand {
		c.freeHand[i].Store(int32(unmappedEntry))
		c.enableSyncGet[i].Store(true)
	}

	return c, nil
}

// Close releases the cache's arena. It does not flush dirty pages; callers
// that need durability must call [Cache.Flush] first.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	return c.arena.close()
}

func (c *Cache) checkOpen() error {
	if c.closed.Load() {
		return ErrClosed
	}

	return nil
}

// pageCapacity/batchCapacity/pagesPerExtent/logPageSize are tiny
// convenience accessors over derived config, kept so algorithm files read
// close to spec.md's own vocabulary.
func (c *Cache) pageCapacity() int     { return c.derived.pageCapacity }
func (c *Cache) batchCapacity() int    { return c.derived.batchCapacity }
func (c *Cache) logPageSize() uint     { return c.derived.logPageSize }
func (c *Cache) pagesPerExtent() int64 { return c.derived.pagesPerExtent }
func (c *Cache) pageSize() int         { return c.cfg.PageSize }

func (c *Cache) batchOf(slot int) int { return slot / batchSize }

func (c *Cache) slotBuf(slot int) []byte {
	return c.arena.slot(c.cfg.PageSize, slot)
}

func (c *Cache) threadID() ThreadID {
	return c.threadIDs.ThreadID()
}
