package clockcache

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// arena is the single backing allocation for every slot's page buffer.
//
// Slots need page-aligned buffers "required by direct I/O" (spec.md §3).
// Rather than aligning each slot's buffer independently, the cache
// allocates one large anonymous, page-aligned mapping up front via
// golang.org/x/sys/unix.Mmap and slices it into PageSize chunks - mirroring
// how the teacher package's own Cache.data in pkg/slotcache/cache.go is a
// single syscall-backed mmap region sliced by offset, just backed by
// anonymous memory instead of a file. A single mapping also means the
// slot array never triggers GC scanning or relocation of page payloads.
type arena struct {
	mem []byte
}

func newArena(pageSize, pageCapacity int) (*arena, error) {
	size := pageSize * pageCapacity
	if size <= 0 {
		return nil, fmt.Errorf("%w: arena size must be positive", ErrInvalidConfig)
	}

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("clockcache: mmap arena: %w", err)
	}

	return &arena{mem: mem}, nil
}

// slot returns the page buffer for slot index i.
func (a *arena) slot(pageSize, i int) []byte {
	off := i * pageSize

	return a.mem[off : off+pageSize : off+pageSize]
}

func (a *arena) close() error {
	if a.mem == nil {
		return nil
	}

	err := unix.Munmap(a.mem)
	a.mem = nil

	return err
}
