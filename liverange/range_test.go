package liverange

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmlower/wasmlower/bytecode"
)

// V128Load's A field is the v128 destination (write) and B is the scalar
// base address (read) — the mirror of V128Store. Sizing the destination at
// anything less than 16 bytes would let the allocator pack another live
// range into its upper half.
func TestFieldWidthDistinguishesV128LoadDestFromAddress(t *testing.T) {
	buf := bytecode.NewBuffer()
	buf.AppendRecord(bytecode.Record{Op: bytecode.OpV128Load, A: 100, B: 8})
	size := buf.CurrentSize()

	ranges, err := scanRanges(buf, size)
	require.NoError(t, err)

	require.Equal(t, uint32(16), ranges[100].Width, "the v128 destination slot must be sized 16 bytes")
	require.Equal(t, uint32(8), ranges[8].Width, "the base address slot must be sized 8 bytes")
}

// V128Store's A field is the scalar base address (read) and B is the v128
// value being stored (read) — the inverse of V128Load's layout.
func TestFieldWidthDistinguishesV128StoreAddressFromValue(t *testing.T) {
	buf := bytecode.NewBuffer()
	buf.AppendRecord(bytecode.Record{Op: bytecode.OpV128Store, A: 8, B: 100})
	size := buf.CurrentSize()

	ranges, err := scanRanges(buf, size)
	require.NoError(t, err)

	require.Equal(t, uint32(8), ranges[8].Width, "the base address slot must be sized 8 bytes")
	require.Equal(t, uint32(16), ranges[100].Width, "the stored v128 value slot must be sized 16 bytes")
}

// Select is type-polymorphic: its condition (B) is always i32-width, while
// its destination and two value operands (A, C, D) share whatever width
// emitSelect recorded in Value — 16 bytes for a v128 select.
func TestFieldWidthReadsSelectWidthFromRecordValue(t *testing.T) {
	buf := bytecode.NewBuffer()
	buf.AppendRecord(bytecode.Record{Op: bytecode.OpSelect, A: 200, B: 8, C: 100, D: 116, Value: 16})
	size := buf.CurrentSize()

	ranges, err := scanRanges(buf, size)
	require.NoError(t, err)

	require.Equal(t, uint32(8), ranges[8].Width, "select's condition operand is always i32-width")
	require.Equal(t, uint32(16), ranges[200].Width, "a v128 select's destination must be sized 16 bytes")
	require.Equal(t, uint32(16), ranges[100].Width, "a v128 select's true-value operand must be sized 16 bytes")
	require.Equal(t, uint32(16), ranges[116].Width, "a v128 select's false-value operand must be sized 16 bytes")
}

// A scalar (i32/i64/etc.) select carries PointerSize through Value, and
// every field — including the destination and value operands — stays at the
// uniform word width.
func TestFieldWidthReadsScalarSelectWidthFromRecordValue(t *testing.T) {
	buf := bytecode.NewBuffer()
	buf.AppendRecord(bytecode.Record{Op: bytecode.OpSelect, A: 200, B: 8, C: 24, D: 32, Value: bytecode.PointerSize})
	size := buf.CurrentSize()

	ranges, err := scanRanges(buf, size)
	require.NoError(t, err)

	require.Equal(t, bytecode.PointerSize, ranges[200].Width)
	require.Equal(t, bytecode.PointerSize, ranges[24].Width)
	require.Equal(t, bytecode.PointerSize, ranges[32].Width)
}
