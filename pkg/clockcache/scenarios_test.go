package clockcache_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/clockcache"
)

// Literal end-to-end scenarios from spec.md §8, one subtest each.

func Test_Scenario1_SingleThread_AllocWriteSyncEvictGet_RoundTrips(t *testing.T) {
	t.Parallel()

	cache, _, alloc := newTestCache(t, 64)
	alloc.AllocExtent(0)

	page, err := cache.Alloc(0, clockcache.PageTypeMisc)
	require.NoError(t, err)

	want := bytes.Repeat([]byte{0xA5}, testPageSize)
	copy(page.Bytes(), want)

	page.Unlock()
	page.Unclaim()
	page.Unget()

	require.NoError(t, cache.Flush())

	n, err := cache.EvictAll(false)
	require.NoError(t, err)
	assert.Positive(t, n)

	got, err := cache.Get(0, true, clockcache.PageTypeMisc)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, want, got.Bytes())

	got.Unget()
}

func Test_Scenario2_TwoThreads_RacingColdGet_SeeOneIORead(t *testing.T) {
	t.Parallel()

	cache, dev, alloc := newTestCache(t, 64)
	alloc.AllocExtent(0)

	_, err := alloc.IncRefCount(0)
	require.NoError(t, err)

	// Seed the backing device with known content at addr=4096, since
	// Get(miss) reads through to the device rather than through Alloc.
	buf := make([]byte, testPageSize)
	for i := range buf {
		buf[i] = 0x11
	}
	require.NoError(t, dev.WritePage(testPageSize, buf))

	var (
		wg    sync.WaitGroup
		pages [2]*clockcache.Page
		errs  [2]error
	)

	wg.Add(2)

	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			pages[i], errs[i] = cache.Get(testPageSize, true, clockcache.PageTypeMisc)
		}(i)
	}

	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.NotNil(t, pages[0])
	require.NotNil(t, pages[1])

	assert.Equal(t, int64(testPageSize), pages[0].Addr())
	assert.Equal(t, int64(testPageSize), pages[1].Addr())

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Misses, "exactly one miss should have issued I/O")

	pages[0].Unget()
	pages[1].Unget()
}

func Test_Scenario3_WriteLockOrdering_BlocksUntilReaderUngets(t *testing.T) {
	t.Parallel()

	cache, _, alloc := newTestCache(t, 64)
	page := allocPage(t, cache, alloc, 0, 0, 0x01)
	page.Unlock()
	page.Unclaim()

	// Thread1 holds a second read ref (Get re-acquires on the same addr).
	reader, err := cache.Get(0, true, clockcache.PageTypeMisc)
	require.NoError(t, err)

	require.True(t, page.Claim())

	lockAcquired := make(chan struct{})

	go func() {
		page.Lock()
		close(lockAcquired)
	}()

	select {
	case <-lockAcquired:
		t.Fatal("Lock returned before the competing read ref was released")
	default:
	}

	reader.Unget()

	<-lockAcquired

	page.Unlock()
	page.Unclaim()
	page.Unget()
}

func Test_Scenario4_WritebackCoalescing_SubmitsOneVectoredWrite(t *testing.T) {
	t.Parallel()

	cache, dev, alloc := newTestCache(t, 64)
	alloc.AllocExtent(0)

	var outstanding int64

	for i := int64(0); i < 4; i++ {
		page, err := cache.Alloc(i*testPageSize, clockcache.PageTypeMisc)
		require.NoError(t, err)

		buf := page.Bytes()
		for j := range buf {
			buf[j] = byte(i)
		}

		page.Unlock()
		page.Unclaim()
		page.Unget()
	}

	require.NoError(t, cache.ExtentSync(0, &outstanding))

	dev.CleanupAll()

	assert.Equal(t, int64(0), outstanding)

	stats := cache.Stats()
	assert.Equal(t, int64(4), stats.WritebacksStarted, "4 pages should have been coalesced into the extent's writeback")
	assert.Equal(t, int64(4), stats.WritebacksCompleted)
}

func Test_Scenario5_Prefetch_SingleVectoredRead_SubsequentGetsDoNotIssueIO(t *testing.T) {
	t.Parallel()

	cache, dev, alloc := newTestCache(t, 64)
	alloc.AllocExtent(0)

	_, err := alloc.IncRefCount(0)
	require.NoError(t, err)

	for i := int64(0); i < 8; i++ {
		buf := make([]byte, testPageSize)
		buf[0] = byte(i)
		require.NoError(t, dev.WritePage(i*testPageSize, buf))
	}

	require.NoError(t, cache.Prefetch(0, clockcache.PageTypeMisc))
	dev.CleanupAll()

	before := cache.Stats().Misses

	for i := int64(0); i < 8; i++ {
		page, err := cache.Get(i*testPageSize, true, clockcache.PageTypeMisc)
		require.NoError(t, err)
		assert.Equal(t, byte(i), page.Bytes()[0])
		page.Unget()
	}

	after := cache.Stats().Misses
	assert.Equal(t, before, after, "prefetched pages must be hits, not misses")
}

func Test_Scenario6_EvictionUnderPressure_NewAddrReusesEvictedSlot(t *testing.T) {
	t.Parallel()

	const pages = 64

	cache, _, alloc := newTestCache(t, pages)
	alloc.AllocExtent(0)

	for i := int64(0); i < pages; i++ {
		page := allocPage(t, cache, alloc, 0, i*testPageSize, 0xFF)
		page.Unlock()
		page.Unclaim()
		page.Unget()
	}

	require.NoError(t, cache.Flush())

	newAddr := int64(pages) * testPageSize
	page, err := cache.Get(newAddr, true, clockcache.PageTypeMisc)
	require.NoError(t, err)
	require.NotNil(t, page)

	assert.Equal(t, newAddr, page.Addr())

	page.Unget()
}
