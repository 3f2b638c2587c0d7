// Package memdevice is a reference in-memory implementation of
// clockcache.IODevice (spec.md §1: the I/O handle is explicitly out of the
// core's scope). It exists purely so pkg/clockcache has something concrete
// to run its tests against - simulating a real disk is itself out of scope
// (spec.md §1 Non-goals) - the same role internal/fs.Real plays for the
// teacher package's pluggable filesystem interface, adapted here from "wrap
// the os package" to "be the whole device".
//
// Completions are queued rather than invoked inline, so tests can exercise
// the same Cleanup/CleanupAll polling contract a real async device would
// require.
package memdevice

import (
	"errors"
	"sync"
	"time"
)

// Device is a fixed-size byte arena standing in for a block device.
type Device struct {
	mu       sync.Mutex
	bytes    []byte
	pending  []func()
	maxLat   time.Duration
	failNext error
}

// New creates a Device of the given byte capacity. maxLatency is reported
// via MaxLatency, used by the cache as its blocking free-slot deadline.
func New(capacity int64, maxLatency time.Duration) *Device {
	return &Device{
		bytes:  make([]byte, capacity),
		maxLat: maxLatency,
	}
}

// FailNextCompletion arranges for the next async completion's done callback
// to receive err, for exercising fatal-error paths in tests.
func (d *Device) FailNextCompletion(err error) {
	d.mu.Lock()
	d.failNext = err
	d.mu.Unlock()
}

func (d *Device) takeFailure() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.failNext
	d.failNext = nil

	return err
}

func (d *Device) ReadPage(addr int64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.readLocked(addr, buf)
}

func (d *Device) readLocked(addr int64, buf []byte) error {
	if addr < 0 || addr+int64(len(buf)) > int64(len(d.bytes)) {
		return errors.New("memdevice: read out of range")
	}

	copy(buf, d.bytes[addr:addr+int64(len(buf))])

	return nil
}

func (d *Device) WritePage(addr int64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.writeLocked(addr, buf)
}

func (d *Device) writeLocked(addr int64, buf []byte) error {
	if addr < 0 || addr+int64(len(buf)) > int64(len(d.bytes)) {
		return errors.New("memdevice: write out of range")
	}

	copy(d.bytes[addr:addr+int64(len(buf))], buf)

	return nil
}

func (d *Device) ReadVector(baseAddr int64, bufs [][]byte) error {
	addr := baseAddr

	for _, b := range bufs {
		if err := d.ReadPage(addr, b); err != nil {
			return err
		}

		addr += int64(len(b))
	}

	return nil
}

func (d *Device) SubmitAsyncRead(addr int64, buf []byte, done func(err error)) error {
	err := d.ReadPage(addr, buf)
	if err == nil {
		err = d.takeFailure()
	}

	d.queue(func() {
		if done != nil {
			done(err)
		}
	})

	return nil
}

func (d *Device) SubmitAsyncReadVector(baseAddr int64, bufs [][]byte, done func(err error)) error {
	err := d.ReadVector(baseAddr, bufs)
	if err == nil {
		err = d.takeFailure()
	}

	d.queue(func() {
		if done != nil {
			done(err)
		}
	})

	return nil
}

func (d *Device) SubmitAsyncWrite(addr int64, buf []byte, done func(err error)) error {
	err := d.WritePage(addr, buf)
	if err == nil {
		err = d.takeFailure()
	}

	d.queue(func() {
		if done != nil {
			done(err)
		}
	})

	return nil
}

func (d *Device) SubmitAsyncWriteVector(baseAddr int64, bufs [][]byte, done func(err error)) error {
	addr := baseAddr

	var err error

	for _, b := range bufs {
		if e := d.WritePage(addr, b); e != nil {
			err = e

			break
		}

		addr += int64(len(b))
	}

	if err == nil {
		err = d.takeFailure()
	}

	d.queue(func() {
		if done != nil {
			done(err)
		}
	})

	return nil
}

func (d *Device) queue(fn func()) {
	d.mu.Lock()
	d.pending = append(d.pending, fn)
	d.mu.Unlock()
}

// Cleanup invokes up to maxEvents queued completions inline.
func (d *Device) Cleanup(maxEvents int) {
	d.mu.Lock()

	n := maxEvents
	if n > len(d.pending) {
		n = len(d.pending)
	}

	batch := d.pending[:n]
	d.pending = d.pending[n:]

	d.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
}

// CleanupAll blocks until every queued completion has run.
func (d *Device) CleanupAll() {
	for {
		d.mu.Lock()
		n := len(d.pending)
		d.mu.Unlock()

		if n == 0 {
			return
		}

		d.Cleanup(n)
	}
}

func (d *Device) MaxLatency() time.Duration {
	return d.maxLat
}
