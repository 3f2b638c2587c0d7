package clockcache

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	natomic "github.com/natefinch/atomic"
)

// Stats is a value snapshot of a [Cache]'s counters (spec.md §4.J), copied
// out of the live atomics by [Cache.Stats] rather than returned as a live
// pointer - same shape as teacher's Cache.Len() returning a consistent
// snapshot instead of exposing its internal counter.
type Stats struct {
	Hits                int64
	Misses              int64
	Evictions           int64
	WritebacksStarted   int64
	WritebacksCompleted int64
	PrefetchPages       int64
	Allocs              int64
	Deallocs            int64
	FreeListPasses      int64
}

// cacheStats holds the live atomic counters backing Stats.
type cacheStats struct {
	hits                atomic.Int64
	misses              atomic.Int64
	evictions           atomic.Int64
	writebacksStarted   atomic.Int64
	writebacksCompleted atomic.Int64
	prefetchPages       atomic.Int64
	allocs              atomic.Int64
	deallocs            atomic.Int64
	freeListPasses      atomic.Int64
}

// Stats returns a consistent snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:                c.stats.hits.Load(),
		Misses:              c.stats.misses.Load(),
		Evictions:           c.stats.evictions.Load(),
		WritebacksStarted:   c.stats.writebacksStarted.Load(),
		WritebacksCompleted: c.stats.writebacksCompleted.Load(),
		PrefetchPages:       c.stats.prefetchPages.Load(),
		Allocs:              c.stats.allocs.Load(),
		Deallocs:            c.stats.deallocs.Load(),
		FreeListPasses:      c.stats.freeListPasses.Load(),
	}
}

// The statInc*/statAdd* helpers are no-ops unless Config.UseStats is set, so
// the hot path pays for the atomic increment only when a caller asked for
// the counters.

func (c *Cache) statIncHits() {
	if c.cfg.UseStats {
		c.stats.hits.Add(1)
	}
}

func (c *Cache) statIncMisses() {
	if c.cfg.UseStats {
		c.stats.misses.Add(1)
	}
}

func (c *Cache) statIncEvictions() {
	if c.cfg.UseStats {
		c.stats.evictions.Add(1)
	}
}

func (c *Cache) statAddWritebacksStarted(n int64) {
	if c.cfg.UseStats {
		c.stats.writebacksStarted.Add(n)
	}
}

func (c *Cache) statIncWritebacksCompleted() {
	if c.cfg.UseStats {
		c.stats.writebacksCompleted.Add(1)
	}
}

func (c *Cache) statAddPrefetchPages(n int64) {
	if c.cfg.UseStats {
		c.stats.prefetchPages.Add(n)
	}
}

func (c *Cache) statIncAllocs() {
	if c.cfg.UseStats {
		c.stats.allocs.Add(1)
	}
}

func (c *Cache) statIncDeallocs() {
	if c.cfg.UseStats {
		c.stats.deallocs.Add(1)
	}
}

func (c *Cache) statAddFreeListPasses(n int64) {
	if c.cfg.UseStats {
		c.stats.freeListPasses.Add(n)
	}
}

// DumpDiagnostics writes one line per slot (status, disk address, refcount
// sum, pin count) to w, then - when Config.DiagnosticsPath is set -
// durably persists the same report via github.com/natefinch/atomic.WriteFile
// so a crash investigation always finds a complete file, never a
// half-written one from a process that died mid-write (spec.md §4.J).
func (c *Cache) DumpDiagnostics(w io.Writer) error {
	var buf []byte

	buf = fmt.Appendf(buf, "clockcache diagnostics: %d slots, stats=%+v\n", len(c.slots), c.Stats())

	for i := range c.slots {
		buf = fmt.Appendf(buf, "slot %d: status=%#x addr=%d refs=%d pins=%d\n",
			i,
			c.slots[i].status.load(),
			c.slots[i].diskAddr.Load(),
			c.refs.sumRefs(i),
			c.pins.get(i),
		)
	}

	if _, err := w.Write(buf); err != nil {
		return err
	}

	if c.diagnosticsPath != "" {
		if err := natomic.WriteFile(c.diagnosticsPath, bytes.NewReader(buf)); err != nil {
			return fmt.Errorf("clockcache: dump diagnostics: %w", err)
		}
	}

	return nil
}

// fatal implements the "process aborts with a diagnostic dump" policy
// (spec.md §7) without clockcache ever calling os.Exit itself: it best-effort
// dumps diagnostics, then panics with a *FatalError so a recover() at the
// embedding application's top level can still log a structured error.
func (c *Cache) fatal(reason string) {
	fe := &FatalError{Reason: reason, Stats: c.Stats()}

	_ = c.DumpDiagnostics(os.Stderr)

	panic(fe)
}
