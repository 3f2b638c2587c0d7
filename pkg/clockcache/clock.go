package clockcache

import (
	"runtime"
	"time"
)

// handIndex maps a ThreadID onto the per-thread state arrays (free_hand,
// enable_sync_get), which - like the refcount matrix - are sized to
// refcountWidth and shared by threads that collide modulo that width.
func (c *Cache) handIndex(thr ThreadID) int {
	w := len(c.freeHand)
	if w == 0 {
		return 0
	}

	idx := int(thr) % w
	if idx < 0 {
		idx += w
	}

	return idx
}

// tryAcquireFreeInBatch scans the batch for a FREE slot and CASes it to the
// transitional ALLOC status, which sets WRITELOCKED|CLAIMED so the calling
// thread has exclusive ownership until it overwrites status with the
// caller's desired final value.
func (c *Cache) tryAcquireFreeInBatch(batch int) (slot int, ok bool) {
	start := batch * batchSize
	end := start + batchSize

	if end > len(c.slots) {
		end = len(c.slots)
	}

	for s := start; s < end; s++ {
		if c.slots[s].status.cas(statusFree, statusAlloc) {
			return s, true
		}
	}

	return 0, false
}

// getFreeSlot implements get_free_page (spec.md §4.E): the cooperative
// clock driver. Every caller that needs a slot drives the hand forward
// itself; there is no dedicated eviction goroutine.
//
// finalStatus is the status word the winning slot is set to once claimed
// (statusAlloc for Cache.Alloc, statusReadLoading for a Get miss). withRef,
// if true, increments the caller's own refcount column before publishing
// finalStatus, so the caller is holding a read reference on return.
//
// In blocking mode, getFreeSlot never returns ok=false: once the device's
// self-reported max latency has elapsed without success it calls
// Cache.fatal, per spec.md §7 ("free-slot exhaustion... is a fatal
// invariant violation" in blocking mode).
func (c *Cache) getFreeSlot(thr ThreadID, finalStatus uint32, withRef, blocking bool) (slot int, ok bool) {
	hi := c.handIndex(thr)

	if c.freeHand[hi].Load() == int32(unmappedEntry) {
		c.moveHand(thr, false)
	}

	var (
		numPasses int
		firstPass time.Time
	)

	maxHand := c.freeHand[hi].Load()

	for {
		if numPasses >= 3 {
			if !blocking {
				return 0, false
			}

			if time.Since(firstPass) > c.device.MaxLatency() {
				c.fatal("free-slot acquisition exceeded device max latency while blocking")
			}
		}

		batch := int(c.freeHand[hi].Load())

		if s, found := c.tryAcquireFreeInBatch(batch); found {
			if withRef {
				c.refs.incRef(s, thr)
			}

			c.slots[s].status.store(finalStatus)
			c.statAddFreeListPasses(int64(numPasses))

			return s, true
		}

		// urgent uses the pass count as it stood before this wrap check,
		// same as clockcache.c's move_hand(cc, num_passes != 0): a hand
		// that hasn't completed a full circuit yet isn't urgent.
		c.moveHand(thr, numPasses != 0)

		newHand := c.freeHand[hi].Load()
		if newHand < maxHand {
			numPasses++

			if numPasses == 1 {
				firstPass = time.Now()
			} else {
				runtime.Gosched()
			}

			pollIOProgress(c.device)
		}

		maxHand = newHand
	}
}

// moveHand implements move_hand (spec.md §4.E): release the thread's
// currently owned evict batch, then repeatedly advance the global evict
// hand, opportunistically running the cleaner hand (cleaner_gap batches
// ahead) whenever this thread wins the clean-batch-busy CAS, until it wins
// the evict-batch-busy CAS for some batch - which it then evicts and
// records as owned.
func (c *Cache) moveHand(thr ThreadID, urgent bool) {
	hi := c.handIndex(thr)

	if owned := c.freeHand[hi].Load(); owned != int32(unmappedEntry) {
		c.evictBatchBusy[owned].CompareAndSwap(true, false)
		c.freeHand[hi].Store(int32(unmappedEntry))
	}

	bc := int64(c.batchCapacity())

	for {
		raw := c.evictHand.Add(1) - 1
		batch := int(((raw % bc) + bc) % bc)

		cleanerBatch := (batch + c.derived.cleanerGap) % c.batchCapacity()

		if c.cleanBatchBusy[cleanerBatch].CompareAndSwap(false, true) {
			c.batchStartWriteback(cleanerBatch, urgent)
			c.cleanBatchBusy[cleanerBatch].Store(false)
		}

		if c.evictBatchBusy[batch].CompareAndSwap(false, true) {
			c.evictBatch(batch)
			c.freeHand[hi].Store(int32(batch))

			return
		}
	}
}
