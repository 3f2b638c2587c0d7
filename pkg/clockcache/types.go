package clockcache

// PageType tags the logical owner of a cached page. It is opaque to
// clockcache itself; it exists so upper layers (and diagnostics) can tell
// pages apart without a second side table.
type PageType uint8

const (
	PageTypeInvalid PageType = iota
	PageTypeTrunk
	PageTypeBranch
	PageTypeMemtable
	PageTypeFilter
	PageTypeLog
	PageTypeMisc
	PageTypeLockNoData
)

func (t PageType) String() string {
	switch t {
	case PageTypeTrunk:
		return "trunk"
	case PageTypeBranch:
		return "branch"
	case PageTypeMemtable:
		return "memtable"
	case PageTypeFilter:
		return "filter"
	case PageTypeLog:
		return "log"
	case PageTypeMisc:
		return "misc"
	case PageTypeLockNoData:
		return "lock_no_data"
	default:
		return "invalid"
	}
}

// UnmappedAddr is the disk address of a slot with no backing page.
const UnmappedAddr int64 = -1

// unmappedEntry is the lookup-table sentinel for "no slot maps this address".
const unmappedEntry int32 = -1

// ThreadID is a small, stable integer identifying a calling thread for the
// purposes of striping the refcount matrix (spec.md §3/§4.A). It is taken
// modulo the configured refcount width, so values need not be unique across
// the whole process, only reasonably stable per caller.
type ThreadID int

// ThreadIDs supplies the calling thread's [ThreadID]. It stands in for the
// task/thread system spec.md §1 lists as an external collaborator: the real
// system assigns a stable id when a worker thread registers with the task
// system, it does not derive one introspectively.
//
// The zero value of [Config] uses newAffineThreadIDs, a goroutine-affine
// best-effort allocator; callers that run a fixed worker pool should supply
// their own [ThreadIDs] that returns each worker's pre-assigned index for
// perfect stability (and therefore zero cross-worker false sharing).
type ThreadIDs interface {
	ThreadID() ThreadID
}

// LockResult is the outcome of a non-blocking lock-acquisition attempt.
type LockResult int

const (
	LockSuccess LockResult = iota
	LockConflict
	LockEvicted
	LockFlushing
)

func (r LockResult) String() string {
	switch r {
	case LockSuccess:
		return "success"
	case LockConflict:
		return "conflict"
	case LockEvicted:
		return "evicted"
	case LockFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// GetAsyncResult is the outcome of [Cache.GetAsync].
type GetAsyncResult int

const (
	// GetAsyncLocked indicates no free slot could be acquired without blocking.
	GetAsyncLocked GetAsyncResult = iota
	// GetAsyncNoReqs indicates the device rejected the request (no request slots).
	GetAsyncNoReqs
	// GetAsyncSuccess indicates a cache hit; the caller holds a read reference.
	GetAsyncSuccess
	// GetAsyncIOStarted indicates a miss; I/O was submitted asynchronously.
	GetAsyncIOStarted
)

func (r GetAsyncResult) String() string {
	switch r {
	case GetAsyncLocked:
		return "locked"
	case GetAsyncNoReqs:
		return "no_reqs"
	case GetAsyncSuccess:
		return "success"
	case GetAsyncIOStarted:
		return "io_started"
	default:
		return "unknown"
	}
}

// AsyncCtxt carries per-request state for [Cache.GetAsync] across the
// completion callback, set by the cache once the page is resident.
type AsyncCtxt struct {
	Page *Page
}
