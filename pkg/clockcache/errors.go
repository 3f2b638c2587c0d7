package clockcache

import "errors"

// Sentinel errors returned by clockcache operations.
//
// Callers should use [errors.Is] to classify these.
var (
	// ErrInvalidConfig indicates a [Config] field failed validation in [NewCache].
	ErrInvalidConfig = errors.New("clockcache: invalid config")

	// ErrClosed indicates an operation on a [Cache] after [Cache.Close].
	ErrClosed = errors.New("clockcache: closed")

	// ErrIO wraps a failure reported by the [IODevice] collaborator.
	//
	// Per spec, a failed read or write is treated as a fatal invariant
	// violation by the cache itself (the device is assumed reliable): every
	// read and write path, including [Cache.PageSync] in blocking mode,
	// calls [Cache.fatal] on a device error. No Cache method returns ErrIO.
	ErrIO = errors.New("clockcache: io failure")

	// ErrNoExtent is returned by allocator-facing operations when the
	// extent address has no outstanding allocator reference.
	ErrNoExtent = errors.New("clockcache: no such extent")
)

// FatalError is panicked by [Cache.fatal] on an invariant violation or
// unrecoverable collaborator failure (free-slot exhaustion in blocking
// mode, a failed I/O completion). It carries enough context for a top-level
// recover() to log a structured diagnostic before the process exits.
//
// clockcache never calls os.Exit itself; aborting the process is a decision
// left to the embedding application, same as any other library panic.
type FatalError struct {
	Reason string
	Stats  Stats
}

func (e *FatalError) Error() string {
	return "clockcache: fatal: " + e.Reason
}
