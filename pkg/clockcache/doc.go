// Package clockcache is a concurrent, fixed-size page buffer cache with a
// clock-replacement policy.
//
// It mediates between a higher-level key-value engine and an abstract
// asynchronous block device ([IODevice]), holding fixed-size pages in a
// bounded pool of slots. It combines a three-level reader/claim/writer lock
// protocol per slot, a striped per-thread refcount scheme to avoid false
// sharing on hot pages, a clock-hand eviction policy driven cooperatively by
// every caller that needs a free slot, and extent-aware coalescing of
// writeback I/O.
//
// clockcache is not a database. It has no persisted format of its own:
// pages are opaque, fixed-size, aligned blocks read from and written to
// whatever [IODevice] the caller supplies.
//
// # Basic usage
//
//	cache, err := clockcache.NewCache(clockcache.Config{
//	    PageSize:   4096,
//	    ExtentSize: 4096 * 32,
//	    Capacity:   256 << 20,
//	    Device:     dev,
//	    Allocator:  alloc,
//	})
//	if err != nil {
//	    // configuration error, see ErrInvalidConfig
//	}
//	defer cache.Close()
//
//	page, err := cache.Get(addr, true, clockcache.PageTypeTrunk)
//	...
//	page.Unget()
//
// # Concurrency
//
// Every exported [Cache] method is safe for concurrent use by many
// goroutines. A [Page] handle returned by [Cache.Alloc] or [Cache.Get] is
// not itself safe for concurrent use by more than one goroutine at a time;
// callers that hand a page to another goroutine must coordinate locking
// transitions (claim/lock/pin) themselves, same as the lock ladder they
// encode.
//
// # Error handling
//
// Transient races (eviction/loader races) are recovered internally and are
// never visible to callers. Lock conflicts in non-blocking paths surface as
// typed results ([LockResult], [GetAsyncResult]), not errors. Free-slot
// exhaustion in blocking mode and I/O completion failures are programming
// errors in the surrounding system (an undersized cache, or an unreliable
// device below the abstraction this package assumes); clockcache reports
// them by calling [Cache.fatal], which dumps diagnostics and panics rather
// than silently corrupting state. See [FatalError].
package clockcache
