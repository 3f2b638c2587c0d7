package clockcache_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calvinalkan/clockcache"
)

func Test_ManyGoroutines_GetUngetSameAddr_NeverObserveWrongContent(t *testing.T) {
	t.Parallel()

	const numGoroutines = 32
	const itersPerGoroutine = 200

	cache, _, alloc := newTestCache(t, 64)
	alloc.AllocExtent(0)

	page := allocPage(t, cache, alloc, 0, 0, 0x42)
	page.Unlock()
	page.Unclaim()
	page.Unget()

	start := make(chan struct{})

	var wg sync.WaitGroup
	var mismatches atomic.Int64

	wg.Add(numGoroutines)

	for range numGoroutines {
		go func() {
			defer wg.Done()
			<-start

			for i := 0; i < itersPerGoroutine; i++ {
				got, err := cache.Get(0, true, clockcache.PageTypeMisc)
				if err != nil || got == nil {
					mismatches.Add(1)

					continue
				}

				for _, b := range got.Bytes() {
					if b != 0x42 {
						mismatches.Add(1)

						break
					}
				}

				got.Unget()
			}
		}()
	}

	close(start)
	wg.Wait()

	if mismatches.Load() != 0 {
		t.Fatalf("observed %d wrong-content or failed gets under concurrent access", mismatches.Load())
	}
}

func Test_ManyGoroutines_MixedGetWriteEvict_NoFatalAndInvariantsHold(t *testing.T) {
	t.Parallel()

	const (
		numGoroutines = 16
		duration      = 200 * time.Millisecond
		numExtents    = 4
	)

	cache, _, alloc := newTestCache(t, 64)

	for e := 0; e < numExtents; e++ {
		alloc.AllocExtent(int64(e * testExtentSize))
		if _, err := alloc.IncRefCount(int64(e * testExtentSize)); err != nil {
			t.Fatalf("IncRefCount: %v", err)
		}
	}

	stop := make(chan struct{})
	start := make(chan struct{})

	var wg sync.WaitGroup
	var fatalCount atomic.Int64

	wg.Add(numGoroutines)

	for g := 0; g < numGoroutines; g++ {
		go func(id int) {
			defer wg.Done()

			defer func() {
				if r := recover(); r != nil {
					fatalCount.Add(1)
				}
			}()

			<-start

			addr := int64(id%numExtents)*testExtentSize + int64(id%8)*testPageSize

			for {
				select {
				case <-stop:
					return
				default:
				}

				page, err := cache.Get(addr, true, clockcache.PageTypeMisc)
				if err != nil {
					continue
				}

				if page == nil {
					continue
				}

				if page.Claim() {
					page.Lock()
					page.Bytes()[0] = byte(id)
					page.MarkDirty()
					page.Unlock()
					page.Unclaim()
				}

				page.Unget()
			}
		}(g)
	}

	wg.Add(1)

	go func() {
		defer wg.Done()
		<-start

		for {
			select {
			case <-stop:
				return
			default:
			}

			_, _ = cache.EvictAll(true)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	close(start)
	time.Sleep(duration)
	close(stop)
	wg.Wait()

	if fatalCount.Load() != 0 {
		t.Fatalf("%d goroutines observed a fatal invariant violation", fatalCount.Load())
	}

	if err := cache.Flush(); err != nil {
		t.Fatalf("Flush after concurrent stress: %v", err)
	}
}
