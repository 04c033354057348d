package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndDecodeRoundTrip(t *testing.T) {
	buf := NewBuffer()

	off1 := buf.AppendRecord(Record{Op: OpConst32, A: 8, Value: 1})
	off2 := buf.AppendRecord(Record{Op: OpI32Add, A: 16, B: 0, C: 8})
	off3 := buf.AppendRecord(Record{Op: OpEnd, Tail: []int32{16}})

	require.Equal(t, 0, off1)
	require.Greater(t, off2, off1)
	require.Greater(t, off3, off2)
	require.Equal(t, buf.CurrentSize(), off3+Record{Op: OpEnd, Tail: []int32{16}}.Size())

	r1, next1, err := buf.DecodeAt(off1)
	require.NoError(t, err)
	require.Equal(t, OpConst32, r1.Op)
	require.Equal(t, uint32(8), r1.A)
	require.Equal(t, uint64(1), r1.Value)
	require.Equal(t, off2, next1)

	r2, next2, err := buf.DecodeAt(off2)
	require.NoError(t, err)
	require.Equal(t, OpI32Add, r2.Op)
	require.Equal(t, uint32(16), r2.A)
	require.Equal(t, uint32(8), r2.C)
	require.Equal(t, off3, next2)

	r3, next3, err := buf.DecodeAt(off3)
	require.NoError(t, err)
	require.Equal(t, OpEnd, r3.Op)
	require.Equal(t, []int32{16}, r3.Tail)
	require.Equal(t, buf.CurrentSize(), next3)
}

func TestSizeIsPointerAligned(t *testing.T) {
	for _, op := range []Op{OpUnreachable, OpConst32, OpConst128, OpI32Add, OpCall, OpEnd} {
		r := Record{Op: op, Tail: []int32{1, 2, 3}}
		require.Zero(t, r.Size()%PointerSize, "op %v size %d not pointer-aligned", op, r.Size())
	}
}

func TestPatchBranchDisplacement(t *testing.T) {
	buf := NewBuffer()
	jumpOffset := buf.AppendRecord(Record{Op: OpJumpIfFalse, A: 0, Value: 0})
	target := buf.CurrentSize()
	buf.AppendRecord(Record{Op: OpUnreachable})

	disp := int32(target - jumpOffset)
	buf.PatchBranchDisplacement(jumpOffset, disp)

	r, _, err := buf.DecodeAt(jumpOffset)
	require.NoError(t, err)
	require.Equal(t, int32(int32(uint32(r.Value))), disp)
	require.Equal(t, jumpOffset+int(disp), target)
}

func TestOffsetsEnumeratesCallTailSplit(t *testing.T) {
	r := Record{Op: OpCall, A: 2, Value: 7, Tail: []int32{100, 104, 200}}
	refs := r.Offsets()
	require.Len(t, refs, 3) // 3 tail entries; A is the param count, not an offset
	reads, writes := 0, 0
	for _, ref := range refs {
		if ref.Kind == OffsetRead {
			reads++
		} else {
			writes++
		}
	}
	require.Equal(t, 2, reads)  // the 2 param offsets
	require.Equal(t, 1, writes) // the single result offset
}

func TestOffsetsExcludesBrTableDisplacementTail(t *testing.T) {
	// BrTable's tail holds branch displacements, not stack offsets; only its
	// scrutinee operand in A is a real frame reference.
	r := Record{Op: OpBrTable, A: 16, Tail: []int32{10, 20, 30}}
	refs := r.Offsets()
	require.Len(t, refs, 1)
	require.Equal(t, OffsetRead, refs[0].Kind)
	require.Equal(t, &r.A, refs[0].Value)
}

func TestPushRecordToFrontShiftsExisting(t *testing.T) {
	buf := NewBuffer()
	off := buf.AppendRecord(Record{Op: OpI32Add, A: 0, B: 4, C: 8})
	require.Equal(t, 0, off)

	prologue := Record{Op: OpConst32, A: 24, Value: 0}
	buf.PushRecordToFront(prologue)

	r, _, err := buf.DecodeAt(0)
	require.NoError(t, err)
	require.Equal(t, OpConst32, r.Op)

	shifted, _, err := buf.DecodeAt(prologue.Size())
	require.NoError(t, err)
	require.Equal(t, OpI32Add, shifted.Op)
}
