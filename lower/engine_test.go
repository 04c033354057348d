package lower

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmlower/wasmlower/bytecode"
	"github.com/wasmlower/wasmlower/wasm"
)

func i32Const(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func localGet(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIndex: idx}}
}

func localSet(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalSet, Imm: wasm.LocalImm{LocalIndex: idx}}
}

func end() wasm.Instruction { return wasm.Instruction{Opcode: wasm.OpEnd} }

func lowerSimple(sig wasm.FuncType, locals []wasm.ValType, body []wasm.Instruction) *Function {
	e := NewEngine(NewConfig())
	return e.LowerFunctionBody(sig, locals, body, true)
}

// records decodes every record of a finalized function's bytecode in order,
// via the same DecodeAt cursor walk a consumer would use (§8 property 7).
func records(t *testing.T, fn *Function) []bytecode.Record {
	t.Helper()
	buf := bytecode.WrapBytes(fn.Bytecode)
	var out []bytecode.Record
	offset := 0
	for offset < len(fn.Bytecode) {
		r, next, err := buf.DecodeAt(offset)
		require.NoError(t, err)
		out = append(out, r)
		offset = next
	}
	return out
}

func TestConstantIsAssignedAFrameSlotAndReturned(t *testing.T) {
	sig := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	fn := lowerSimple(sig, nil, []wasm.Instruction{i32Const(42), end()})

	rs := records(t, fn)
	require.Len(t, rs, 2)
	require.Equal(t, bytecode.OpConst32, rs[0].Op)
	require.Equal(t, uint64(42), rs[0].Value)
	require.Equal(t, bytecode.OpEnd, rs[1].Op)
	require.Equal(t, []int32{int32(rs[0].A)}, rs[1].Tail)
}

func TestLocalSetElidesMoveWhenValueAlreadyInPlace(t *testing.T) {
	sig := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}
	// local.get 0 ; local.set 0 is a pure no-op: the popped value already
	// sits at local 0's own slot, so no Move should be emitted.
	fn := lowerSimple(sig, nil, []wasm.Instruction{localGet(0), localSet(0), end()})

	rs := records(t, fn)
	require.Len(t, rs, 1) // just the closing End
	require.Equal(t, bytecode.OpEnd, rs[0].Op)
}

func TestLocalSetEmitsMoveWhenValueDiffers(t *testing.T) {
	sig := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}}
	fn := lowerSimple(sig, nil, []wasm.Instruction{localGet(1), localSet(0), end()})

	rs := records(t, fn)
	require.Len(t, rs, 2)
	require.Equal(t, bytecode.OpMove32, rs[0].Op)
	require.Equal(t, bytecode.OpEnd, rs[1].Op)
}

func TestBinaryOpConsumesOperandsAndProducesOneResult(t *testing.T) {
	sig := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	body := []wasm.Instruction{
		i32Const(1), i32Const(2),
		{Opcode: wasm.OpI32Add},
		end(),
	}
	fn := lowerSimple(sig, nil, body)

	rs := records(t, fn)
	require.Len(t, rs, 4)
	require.Equal(t, bytecode.OpI32Add, rs[2].Op)
	require.Equal(t, rs[0].A, rs[2].B)
	require.Equal(t, rs[1].A, rs[2].C)
	require.Equal(t, []int32{int32(rs[2].A)}, rs[3].Tail)
}

func TestRepeatedConstantIsPromotedToASingleSlot(t *testing.T) {
	sig := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	body := []wasm.Instruction{
		i32Const(7), i32Const(7), i32Const(7),
		{Opcode: wasm.OpI32Add},
		{Opcode: wasm.OpI32Add},
		end(),
	}
	e := NewEngine(NewConfig())
	fn := e.LowerFunctionBody(sig, nil, body, true)

	rs := records(t, fn)
	constCount := 0
	for _, r := range rs {
		if r.Op == bytecode.OpConst32 {
			constCount++
		}
	}
	require.Equal(t, 1, constCount, "three occurrences of the same literal should share one promoted slot")
}

func TestUnreachableCodeIsSuppressedUntilBlockBoundary(t *testing.T) {
	sig := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}
	body := []wasm.Instruction{
		{Opcode: wasm.OpUnreachable},
		localGet(0), // dead: must not emit any record
		localGet(0), // also dead
		{Opcode: wasm.OpI32Add},
		end(),
	}
	fn := lowerSimple(sig, nil, body)

	rs := records(t, fn)
	require.Len(t, rs, 1)
	require.Equal(t, bytecode.OpUnreachable, rs[0].Op)
}

func TestBlockResultLandsAtReservedOffset(t *testing.T) {
	sig := wasm.FuncType{}
	body := []wasm.Instruction{
		{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{BlockType: -1}},
		i32Const(9),
		end(),
		{Opcode: wasm.OpDrop},
		end(),
	}
	fn := lowerSimple(sig, nil, body)

	rs := records(t, fn)
	// Const(9) lands in a fresh temp, then a Move carries it into the
	// block's reserved result slot (the two offsets differ since the slot
	// was reserved before the const was ever emitted), then the block's own
	// End names that slot, and finally the function's own End has nothing
	// left to report since Drop consumed the block's result.
	require.Len(t, rs, 4)
	require.Equal(t, bytecode.OpConst32, rs[0].Op)
	require.Equal(t, bytecode.OpMove32, rs[1].Op)
	require.Equal(t, rs[0].A, rs[1].B)
	require.Equal(t, bytecode.OpEnd, rs[2].Op)
	require.Equal(t, []int32{int32(rs[1].A)}, rs[2].Tail)
	require.Equal(t, bytecode.OpEnd, rs[3].Op)
	require.Empty(t, rs[3].Tail)
}

func TestIfElseBothArmsConvergeOnSameResultSlot(t *testing.T) {
	sig := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
	body := []wasm.Instruction{
		localGet(0),
		{Opcode: wasm.OpIf, Imm: wasm.BlockImm{BlockType: -1}},
		i32Const(1),
		{Opcode: wasm.OpElse},
		i32Const(2),
		end(),
		end(),
	}
	fn := lowerSimple(sig, nil, body)

	rs := records(t, fn)
	// JumpIfFalse, Const(1), Move(->result slot), Jump(to end), Const(2),
	// Move(->result slot), End(result), End(return).
	require.Len(t, rs, 8)
	require.Equal(t, bytecode.OpJumpIfFalse, rs[0].Op)
	require.Equal(t, bytecode.OpConst32, rs[1].Op)
	require.Equal(t, bytecode.OpMove32, rs[2].Op)
	require.Equal(t, bytecode.OpJump, rs[3].Op)
	require.Equal(t, bytecode.OpConst32, rs[4].Op)
	require.Equal(t, bytecode.OpMove32, rs[5].Op)
	require.Equal(t, bytecode.OpEnd, rs[6].Op)

	thenResult := rs[2].A
	elseResult := rs[5].A
	require.Equal(t, thenResult, elseResult, "both arms must write the block's single reserved result slot")
	require.Equal(t, []int32{int32(thenResult)}, rs[6].Tail)
}

func TestCatchInfoOffsetsAccountForPrependedPrologue(t *testing.T) {
	module := &wasm.Module{Tags: []wasm.TagType{{}}}
	e := NewEngine(NewConfig())
	e.UseModule(module)

	sig := wasm.FuncType{}
	body := []wasm.Instruction{
		// Two references to the same literal so it gets hoisted into the
		// prologue, shifting every record (and catch region) that follows.
		i32Const(5), i32Const(5),
		{Opcode: wasm.OpI32Add},
		{Opcode: wasm.OpDrop},
		{Opcode: wasm.OpTry, Imm: wasm.BlockImm{BlockType: -0x40}},
		i32Const(99),
		{Opcode: wasm.OpDrop},
		{Opcode: wasm.OpCatchAll},
		i32Const(77),
		{Opcode: wasm.OpDrop},
		end(), // closes the try/catch block
		end(), // function close
	}
	fn := e.LowerFunctionBody(sig, nil, body, true)

	require.True(t, fn.HasTryCatch)
	require.Len(t, fn.CatchInfo, 1)

	rs := records(t, fn)
	require.Equal(t, bytecode.OpConst32, rs[0].Op, "the repeated literal should be hoisted into a prologue slot")
	require.Equal(t, bytecode.OpI32Add, rs[1].Op)
	require.Equal(t, bytecode.OpConst32, rs[2].Op)
	require.Equal(t, uint64(99), rs[2].Value)
	require.Equal(t, bytecode.OpConst32, rs[3].Op)
	require.Equal(t, uint64(77), rs[3].Value)
	require.Equal(t, bytecode.OpEnd, rs[4].Op)

	buf := bytecode.WrapBytes(fn.Bytecode)
	_, afterConst, err := buf.DecodeAt(0)
	require.NoError(t, err)
	_, afterAdd, err := buf.DecodeAt(afterConst)
	require.NoError(t, err)
	_, afterTryConst, err := buf.DecodeAt(afterAdd)
	require.NoError(t, err)

	ci := fn.CatchInfo[0]
	require.Equal(t, afterAdd, ci.TryStart, "TryStart must land after the prepended prologue, not the pre-shift offset")
	require.Equal(t, afterTryConst, ci.TryEnd)
	require.Equal(t, afterTryConst, ci.CatchStart)
	require.Equal(t, NoTag, ci.TagIndex)
}

func TestPackingRearrangesLocalsWhenEnabledAndOverThreshold(t *testing.T) {
	// A param plus a run of sub-word locals padded with i64s: naive
	// allocation wastes alignment padding between each i32/i64 pair, so
	// packing should be able to shrink the final frame size relative to the
	// unpacked layout once the region crosses frame.PackingThreshold.
	locals := make([]wasm.ValType, 0, 80)
	for i := 0; i < 40; i++ {
		locals = append(locals, wasm.ValI32, wasm.ValI64)
	}
	sig := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}
	body := []wasm.Instruction{end()}

	unpacked := NewEngine(NewConfig(WithPacking(false)))
	unpackedFn := unpacked.LowerFunctionBody(sig, locals, body, true)

	packed := NewEngine(NewConfig(WithPacking(true)))
	packedFn := packed.LowerFunctionBody(sig, locals, body, true)

	require.LessOrEqual(t, packedFn.FrameSize, unpackedFn.FrameSize,
		"packing must never grow the frame relative to the naive layout")
	require.Less(t, packedFn.FrameSize, unpackedFn.FrameSize,
		"this local mix has alignment padding packing should reclaim")
}

func TestLoopBackwardBranchTargetsLoopHead(t *testing.T) {
	sig := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}
	body := []wasm.Instruction{
		{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{BlockType: -0x40}},
		localGet(0),
		{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{Depth: 0}},
		end(),
		end(),
	}
	fn := lowerSimple(sig, nil, body)

	rs := records(t, fn)
	// The loop head is the buffer's very first byte, and the conditional
	// branch is itself the first record appended, so its resolved
	// displacement must bring it back to its own offset: zero.
	require.Equal(t, bytecode.OpJumpIfTrue, rs[0].Op)
	require.Equal(t, int32(0), int32(uint32(rs[0].Value)))
	require.Equal(t, bytecode.OpEnd, rs[1].Op) // loop's own end
	require.Equal(t, bytecode.OpEnd, rs[2].Op) // function close
}

// A br whose depth names the function body itself, not any nested block, is
// valid Wasm: the function body is the outermost structured-control-flow
// scope. A bare `(func (br 0))` must lower without panicking.
func TestBranchToFunctionScopeDoesNotPanic(t *testing.T) {
	sig := wasm.FuncType{}
	body := []wasm.Instruction{
		{Opcode: wasm.OpBr, Imm: wasm.BranchImm{Depth: 0}},
		end(),
	}

	require.NotPanics(t, func() { lowerSimple(sig, nil, body) })

	fn := lowerSimple(sig, nil, body)
	rs := records(t, fn)
	require.Len(t, rs, 1)
	require.Equal(t, bytecode.OpJump, rs[0].Op)
}

// A br targeting the function scope from inside a nested block must resolve
// its fixup to the function's own closing End, exactly like a branch to any
// other enclosing block, instead of panicking on an out-of-range depth.
func TestBranchFromNestedBlockToFunctionScopeConvergesOnFunctionResult(t *testing.T) {
	sig := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	body := []wasm.Instruction{
		{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{BlockType: -1}},
		i32Const(7),
		{Opcode: wasm.OpBr, Imm: wasm.BranchImm{Depth: 1}},
		end(),
		end(),
	}

	var fn *Function
	require.NotPanics(t, func() { fn = lowerSimple(sig, nil, body) })

	rs := records(t, fn)
	require.Equal(t, bytecode.OpConst32, rs[0].Op)
	require.Equal(t, bytecode.OpMove32, rs[1].Op)
	require.Equal(t, bytecode.OpJump, rs[2].Op)
	require.Equal(t, bytecode.OpEnd, rs[len(rs)-1].Op, "function's closing End must be the last record")

	jumpDisplacement := int32(uint32(rs[2].Value))
	require.Greater(t, jumpDisplacement, int32(0), "branch to function scope is always a forward jump")

	buf := bytecode.WrapBytes(fn.Bytecode)
	jumpOffset := 0
	for i := 0; i < 2; i++ {
		_, next, err := buf.DecodeAt(jumpOffset)
		require.NoError(t, err)
		jumpOffset = next
	}
	target, _, err := buf.DecodeAt(jumpOffset + int(jumpDisplacement))
	require.NoError(t, err)
	require.Equal(t, bytecode.OpEnd, target.Op, "the branch must land exactly on the function's closing End")
}
