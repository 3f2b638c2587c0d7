//go:build clockcache_debug

package clockcache

// debugAssert checks an invariant in debug builds only (spec.md §3
// "Invariants", §7 "the process aborts with a diagnostic dump"). Compiled
// out entirely without the clockcache_debug build tag, so the hot path pays
// nothing for it by default - mirrors teacher's own build-tag split between
// its stub and real implementation files in pkg/slotcache.
func debugAssert(ok bool, reason string) {
	if !ok {
		panic(&FatalError{Reason: "invariant violated: " + reason})
	}
}
