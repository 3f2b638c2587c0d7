package clockcache_test

import (
	"testing"
	"time"

	"github.com/calvinalkan/clockcache"
	"github.com/calvinalkan/clockcache/internal/memalloc"
	"github.com/calvinalkan/clockcache/internal/memdevice"
)

const (
	testPageSize    = 4096
	testExtentSize  = testPageSize * 8
	testDeviceBytes = testPageSize * 4096
)

// newTestCache builds a Cache backed by memdevice/memalloc with
// slotCapacityPages pages worth of Capacity, rounded by NewCache per
// spec.md §6. Every extent the test addresses must be pre-registered with
// the allocator via alloc.AllocExtent before Cache.Alloc is called on it.
func newTestCache(t *testing.T, slotCapacityPages int) (cache *clockcache.Cache, dev *memdevice.Device, alloc *memalloc.Allocator) {
	t.Helper()

	dev = memdevice.New(testDeviceBytes, 50*time.Millisecond)
	alloc = memalloc.New(testDeviceBytes)

	cache, err := clockcache.NewCache(clockcache.Config{
		PageSize:   testPageSize,
		ExtentSize: testExtentSize,
		Capacity:   int64(slotCapacityPages) * testPageSize,
		Device:     dev,
		Allocator:  alloc,
		UseStats:   true,
	})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	t.Cleanup(func() { _ = cache.Close() })

	return cache, dev, alloc
}

// allocPage registers extentAddr with the allocator (if not already
// registered) and allocates one page at addr within it, returning the
// write-locked Page with content filled with fill.
func allocPage(t *testing.T, cache *clockcache.Cache, alloc *memalloc.Allocator, extentAddr, addr int64, fill byte) *clockcache.Page {
	t.Helper()

	if _, err := alloc.RefCount(extentAddr); err != nil {
		alloc.AllocExtent(extentAddr)
	}

	page, err := cache.Alloc(addr, clockcache.PageTypeMisc)
	if err != nil {
		t.Fatalf("Alloc(%d): %v", addr, err)
	}

	buf := page.Bytes()
	for i := range buf {
		buf[i] = fill
	}

	return page
}
