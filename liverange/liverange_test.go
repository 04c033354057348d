package liverange

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmlower/wasmlower/bytecode"
	"github.com/wasmlower/wasmlower/lower"
	"github.com/wasmlower/wasmlower/wasm"
)

func i32Const(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func end() wasm.Instruction { return wasm.Instruction{Opcode: wasm.OpEnd} }

func lowerVoid(body []wasm.Instruction) *lower.Function {
	e := lower.NewEngine(lower.NewConfig())
	return e.LowerFunctionBody(wasm.FuncType{}, nil, body, true)
}

func TestOptimizeNeverGrowsTheFrame(t *testing.T) {
	body := []wasm.Instruction{
		i32Const(1), i32Const(2), {Opcode: wasm.OpI32Add}, {Opcode: wasm.OpDrop},
		end(),
	}
	fn := lowerVoid(body)

	out, err := Optimize(fn)
	require.NoError(t, err)
	require.LessOrEqual(t, out.FrameSize, fn.FrameSize)
}

func TestOptimizeReusesFreedIntervalsForLaterIndependentValues(t *testing.T) {
	// Two independent add expressions, each immediately dropped: the two
	// constant pairs that feed each add are never live at the same time, so
	// linear-scan allocation should pack the second pair into the first
	// pair's freed slots instead of the bump allocator's ever-growing layout.
	body := []wasm.Instruction{
		i32Const(11), i32Const(22), {Opcode: wasm.OpI32Add}, {Opcode: wasm.OpDrop},
		i32Const(33), i32Const(44), {Opcode: wasm.OpI32Add}, {Opcode: wasm.OpDrop},
		end(),
	}
	fn := lowerVoid(body)

	out, err := Optimize(fn)
	require.NoError(t, err)
	require.Less(t, out.FrameSize, fn.FrameSize)
}

func TestOptimizeMergesNeverReadWritesOntoOneSharedSlot(t *testing.T) {
	// Every add result here is immediately dropped without ever being read
	// back, so each add's destination range is write-only; three of them
	// should collapse onto a single shared scratch slot rather than three
	// distinct ones.
	body := []wasm.Instruction{
		i32Const(1), i32Const(2), {Opcode: wasm.OpI32Add}, {Opcode: wasm.OpDrop},
		i32Const(3), i32Const(4), {Opcode: wasm.OpI32Add}, {Opcode: wasm.OpDrop},
		i32Const(5), i32Const(6), {Opcode: wasm.OpI32Add}, {Opcode: wasm.OpDrop},
		end(),
	}
	fn := lowerVoid(body)

	out, err := Optimize(fn)
	require.NoError(t, err)

	buf := bytecode.WrapBytes(out.Bytecode)
	destSlots := map[uint32]bool{}
	offset := 0
	for offset < len(out.Bytecode) {
		r, next, derr := buf.DecodeAt(offset)
		require.NoError(t, derr)
		if r.Op == bytecode.OpI32Add {
			destSlots[r.A] = true
		}
		offset = next
	}
	require.Len(t, destSlots, 1, "all three write-only add destinations should share one slot")
}

func TestOptimizeLeavesAFunctionWithNoRangesUnchanged(t *testing.T) {
	fn := lowerVoid([]wasm.Instruction{end()})
	out, err := Optimize(fn)
	require.NoError(t, err)
	require.Equal(t, fn, out)
}

// TestZeroInitPrependShiftsCatchInfo directly exercises the prepend-and-shift
// mechanism (mirroring the equivalent lower-package bug fix at this layer):
// a reassigned range that must be zero-initialized pushes a prologue record
// in front of the buffer, and every previously recorded catch region has to
// shift by the same number of bytes.
func TestZeroInitPrependShiftsCatchInfo(t *testing.T) {
	buf := bytecode.NewBuffer()
	// A single Move64 whose source offset (8) is never written anywhere in
	// this hand-built buffer, so it scans as a read-only range needing init,
	// and whose destination offset (0) is never read, so it scans as a
	// write-only range — each lands in a different merge group.
	buf.AppendRecord(bytecode.Record{Op: bytecode.OpMove64, A: 0, B: 8})
	buf.AppendRecord(bytecode.Record{Op: bytecode.OpEnd})

	fn := &lower.Function{
		Bytecode:  buf.Bytes(),
		FrameSize: 16,
		CatchInfo: []lower.CatchInfo{{TryStart: 4, TryEnd: 8, CatchStart: 8, TagIndex: lower.NoTag}},
	}

	out, err := Optimize(fn)
	require.NoError(t, err)

	want := bytecode.Record{Op: bytecode.OpConst64, A: 0}.Size()
	require.Equal(t, 4+want, out.CatchInfo[0].TryStart)
	require.Equal(t, 8+want, out.CatchInfo[0].TryEnd)
	require.Equal(t, 8+want, out.CatchInfo[0].CatchStart)
}
