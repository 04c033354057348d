package liverange

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func normalRange(offset uint32, start, end int) *Range {
	return &Range{OriginalOffset: offset, Width: 8, start: start, end: end, hasRead: true, hasWrite: true}
}

func TestAllocateReusesAFreedIntervalForALaterNonOverlappingRange(t *testing.T) {
	// a: [0,10), b: [20,30) — b starts strictly after a ends, so it should
	// take a's slot back rather than bump the cursor further.
	a := normalRange(100, 0, 10)
	b := normalRange(200, 20, 30)
	ranges := map[uint32]*Range{100: a, 200: b}

	size := allocate(ranges, 0)

	require.Equal(t, a.NewOffset, b.NewOffset)
	require.Equal(t, uint32(8), size)
}

func TestAllocateKeepsOverlappingRangesApart(t *testing.T) {
	// a: [0,30), b: [10,20) — b's lifetime is nested inside a's, so they
	// must never share a slot.
	a := normalRange(100, 0, 30)
	b := normalRange(200, 10, 20)
	ranges := map[uint32]*Range{100: a, 200: b}

	allocate(ranges, 0)

	require.NotEqual(t, a.NewOffset, b.NewOffset)
}

func TestAllocateNeverTouchesTheParamsRegion(t *testing.T) {
	param := &Range{OriginalOffset: 4, Width: 8, start: 0, end: 100, hasRead: true, hasWrite: false}
	local := normalRange(8, 10, 20)
	ranges := map[uint32]*Range{4: param, 8: local}

	allocate(ranges, 8)

	require.Equal(t, uint32(4), param.NewOffset, "a slot inside [0, paramsSize) must keep its original offset")
}

func TestAllocateMergesUnusedWriteGroupOntoOneSlot(t *testing.T) {
	a := &Range{OriginalOffset: 100, Width: 8, start: 0, end: 0, hasWrite: true}
	b := &Range{OriginalOffset: 200, Width: 8, start: 50, end: 50, hasWrite: true}
	ranges := map[uint32]*Range{100: a, 200: b}

	allocate(ranges, 0)

	require.Equal(t, a.NewOffset, b.NewOffset)
}
