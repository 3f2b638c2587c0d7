//go:build !clockcache_debug

package clockcache

// debugAssert is a no-op in release builds; see assert_debug.go.
func debugAssert(ok bool, reason string) {}
