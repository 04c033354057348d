package liverange

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmlower/wasmlower/bytecode"
)

// TestExpandAcrossBlocksWidensLoopCarriedRangeToFullBlockSpan builds a single
// self-looping block (a record reads a slot before anything in the textual
// scan has written it, the write comes later in the same block, and a
// backward jump returns to the block's own start) and checks that the
// raw per-touch span scanRanges alone would compute is widened to cover the
// whole block, accounting for the value carried across the back edge from
// one iteration to the next.
func TestExpandAcrossBlocksWidensLoopCarriedRangeToFullBlockSpan(t *testing.T) {
	buf := bytecode.NewBuffer()
	loopHead := buf.AppendRecord(bytecode.Record{Op: bytecode.OpConst64, A: 500})
	readOff := buf.AppendRecord(bytecode.Record{Op: bytecode.OpMove64, A: 70, B: 60})
	writeOff := buf.AppendRecord(bytecode.Record{Op: bytecode.OpMove64, A: 60, B: 90})
	jumpOff := buf.CurrentSize()
	buf.AppendRecord(bytecode.Record{Op: bytecode.OpJump, Value: uint64(uint32(int32(loopHead - jumpOff)))})
	size := buf.CurrentSize()

	ranges, err := scanRanges(buf, size)
	require.NoError(t, err)

	r60, r70 := ranges[60], ranges[70]
	require.Equal(t, readOff, r60.start, "raw scan sees the read as the first touch")
	require.Equal(t, writeOff, r60.end, "raw scan sees the later write as the last touch")

	require.NoError(t, expandAcrossBlocks(buf, size, ranges))

	require.Equal(t, 0, r60.start, "widened to the loop block's own start")
	require.Equal(t, size, r60.end, "widened to the loop block's own end")
	require.Equal(t, 0, ranges[90].start)
	require.Equal(t, size, ranges[90].end)

	// r70 is written once and never read, so it never enters any block's
	// gen set and must be left exactly as scanRanges found it.
	require.Equal(t, readOff, r70.start)
	require.Equal(t, readOff, r70.end)
}
