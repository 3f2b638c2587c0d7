package clockcache

import (
	"time"
)

// IODevice is the asynchronous block device collaborator consumed by
// clockcache (spec.md §1 "I/O handle", §6 "I/O collaborator interface").
// It is out of the core's scope: clockcache only ever calls these methods,
// never implements them for production use.
//
// Completion callbacks passed to the submit methods run on whatever thread
// happens to be inside [IODevice.Cleanup] or [IODevice.CleanupAll] - which,
// per spec.md §9 "Async completion callbacks", may be any caller thread
// currently driving I/O progress. Callbacks must only touch atomic state;
// they must never attempt to acquire a caller-side lock.
type IODevice interface {
	// ReadPage synchronously reads one page at addr into buf.
	ReadPage(addr int64, buf []byte) error

	// WritePage synchronously writes one page at addr from buf.
	WritePage(addr int64, buf []byte) error

	// ReadVector synchronously reads len(bufs) contiguous pages starting at
	// baseAddr, one page per buffer, in order.
	ReadVector(baseAddr int64, bufs [][]byte) error

	// SubmitAsyncRead submits a single-page read and returns immediately.
	// done is invoked on completion (see callback-threading note above).
	SubmitAsyncRead(addr int64, buf []byte, done func(err error)) error

	// SubmitAsyncReadVector submits a vectored read of len(bufs) contiguous
	// pages starting at baseAddr and returns immediately. done is invoked
	// once when the whole vector completes.
	SubmitAsyncReadVector(baseAddr int64, bufs [][]byte, done func(err error)) error

	// SubmitAsyncWriteVector submits a vectored write of len(bufs)
	// contiguous pages starting at baseAddr and returns immediately. done
	// is invoked once when the whole vector completes.
	SubmitAsyncWriteVector(baseAddr int64, bufs [][]byte, done func(err error)) error

	// SubmitAsyncWrite submits a single-page write and returns immediately.
	SubmitAsyncWrite(addr int64, buf []byte, done func(err error)) error

	// Cleanup polls for up to maxEvents completions, invoking their
	// callbacks inline, and returns without blocking if none are ready.
	Cleanup(maxEvents int)

	// CleanupAll blocks until every outstanding request has completed.
	CleanupAll()

	// MaxLatency reports the device's self-described worst-case latency,
	// used as the blocking deadline for free-slot acquisition (spec.md §4.E).
	MaxLatency() time.Duration
}

// pollIOProgress is the "invoke the I/O progress function" busy-wait helper
// used throughout the lock ladder and free-slot search (spec.md §5).
func pollIOProgress(dev IODevice) {
	dev.Cleanup(32)
}
