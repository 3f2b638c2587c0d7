package clockcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Verifies the striped refcount transpose (spec.md §9 "False-sharing
// mitigation"): for a fixed thread column, two slots within the same
// refCellsPerLine-sized block must land on physically different cache
// lines, so concurrent inc/dec by unrelated threads on adjacent slots never
// contend on the same line.

func Test_RefcountMatrix_AdjacentSlotsSameThread_DifferentCacheLines(t *testing.T) {
	t.Parallel()

	m := newRefcountMatrix(1, refCellsPerLine*4, nil)

	seen := map[int]bool{}

	for slot := 0; slot < refCellsPerLine; slot++ {
		idx := m.index(0, slot)
		line := idx / refCellsPerLine

		require.False(t, seen[idx], "two slots mapped to the same physical cell")
		seen[idx] = true

		// Every slot in this first block must land in a distinct line,
		// i.e. the block's refCellsPerLine cells spread one-per-line
		// rather than packing refCellsPerLine cells into a single line.
		otherSlot := (slot + 1) % refCellsPerLine
		if otherSlot == slot {
			continue
		}

		otherIdx := m.index(0, otherSlot)
		otherLine := otherIdx / refCellsPerLine

		assert.NotEqual(t, line, otherLine,
			"slot %d and slot %d share a cache line for the same thread column", slot, otherSlot)
	}
}

func Test_RefcountMatrix_IncDecRef_RoundTrips(t *testing.T) {
	t.Parallel()

	m := newRefcountMatrix(4, 256, nil)

	m.incRef(10, 0)
	m.incRef(10, 0)
	m.incRef(10, 1)

	assert.Equal(t, int32(2), m.getRef(10, 0))
	assert.Equal(t, int32(1), m.getRef(10, 1))
	assert.Equal(t, int32(3), m.sumRefs(10))
	assert.Equal(t, int32(1), m.sumRefsExcept(10, 0))

	m.decRef(10, 0)
	m.decRef(10, 0)
	m.decRef(10, 1)

	assert.Equal(t, int32(0), m.sumRefs(10))
}

func Test_RefcountMatrix_Underflow_CallsOnOverflow(t *testing.T) {
	t.Parallel()

	var reasons []string

	m := newRefcountMatrix(1, refCellsPerLine, func(reason string) {
		reasons = append(reasons, reason)
	})

	m.decRef(0, 0)

	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "underflow")
}

func Test_RefcountMatrix_ThreadColumnWraps_ForWidthBoundedIDs(t *testing.T) {
	t.Parallel()

	m := newRefcountMatrix(4, refCellsPerLine, nil)

	m.incRef(0, 4) // thread id 4 wraps onto column 0 for width 4
	assert.Equal(t, int32(1), m.getRef(0, 0))
}
