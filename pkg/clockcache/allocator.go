package clockcache

// Allocator is the extent allocator collaborator consumed by clockcache
// (spec.md §1 "Allocator", §6 "Allocator collaborator interface"). It owns
// extent-level reference counts; clockcache only decrements/reads them.
//
// The dealloc walk (spec.md §4.H try_dealloc_page / dealloc) assumes a
// specific contract: decrementing an extent's refcount to 1 means "no more
// logical references, but the allocator itself still holds the structural
// reference it always holds." Dropping from 1 to 0 is what actually frees
// the extent. This is an external contract clockcache must preserve, not
// something it is free to redesign (spec.md §9 "Open questions").
type Allocator interface {
	// Capacity returns the device capacity in bytes, as known to the allocator.
	Capacity() int64

	// RefCount returns the current reference count for the extent starting
	// at extentAddr. Returns [ErrNoExtent] if the extent has no allocation.
	RefCount(extentAddr int64) (int32, error)

	// DecRefCount decrements the extent's refcount and returns the prior
	// (pre-decrement) value. Returns [ErrNoExtent] if the extent has no
	// allocation.
	DecRefCount(extentAddr int64) (prior int32, err error)
}
