package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmlower/wasmlower/lower"
	"github.com/wasmlower/wasmlower/wasm"
)

func i32Const(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func end() wasm.Instruction { return wasm.Instruction{Opcode: wasm.OpEnd} }

func TestLowerOneFunctionPerCodeEntry(t *testing.T) {
	m := &wasm.Module{
		Types:           []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}},
		FuncTypeIndices: []wasm.Index{0},
		Code: []wasm.Code{
			{Body: []wasm.Instruction{
				{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIndex: 0}},
				i32Const(1),
				{Opcode: wasm.OpI32Add},
				end(),
			}},
		},
	}

	out, err := Lower(m, lower.NewConfig())
	require.NoError(t, err)
	require.Len(t, out.Functions, 1)
	require.Equal(t, KindFunction, out.Functions[0].Kind)
	require.NotEmpty(t, out.Functions[0].Bytecode)
}

func TestLowerGlobalInitBecomesItsOwnPseudoFunction(t *testing.T) {
	m := &wasm.Module{
		Globals: []wasm.Global{
			{Type: wasm.ValI32, Mutable: false, InitExpr: []wasm.Instruction{i32Const(7), end()}},
		},
	}

	out, err := Lower(m, lower.NewConfig())
	require.NoError(t, err)
	require.Len(t, out.GlobalInits, 1)
	require.Equal(t, KindGlobalInit, out.GlobalInits[0].Kind)
	require.Equal(t, []wasm.ValType{wasm.ValI32}, out.GlobalInits[0].Type.Results)
	require.Empty(t, out.GlobalInits[0].Type.Params, "init expressions are zero-parameter pseudo-functions")
}

func TestLowerSkipsPassiveAndDeclaredElementSegments(t *testing.T) {
	m := &wasm.Module{
		Elements: []wasm.ElementSegment{
			{OffsetExpr: []wasm.Instruction{i32Const(0), end()}, Init: []wasm.Index{0}},
			{Passive: true, Init: []wasm.Index{1}},
			{Declared: true, Init: []wasm.Index{2}},
		},
	}

	out, err := Lower(m, lower.NewConfig())
	require.NoError(t, err)
	require.Len(t, out.ElementOffsets, 1, "only the active segment has an offset expression to evaluate")
	require.Equal(t, 0, out.ElementOffsets[0].Index)
}

func TestLowerSkipsPassiveDataSegments(t *testing.T) {
	m := &wasm.Module{
		Data: []wasm.DataSegment{
			{OffsetExpr: []wasm.Instruction{i32Const(4), end()}, Init: []byte{1, 2, 3}},
			{Passive: true, Init: []byte{4, 5}},
		},
	}

	out, err := Lower(m, lower.NewConfig())
	require.NoError(t, err)
	require.Len(t, out.DataOffsets, 1)
	require.Equal(t, 0, out.DataOffsets[0].Index)
}

func TestLowerAppliesLiveRangeOptimizationToEveryPseudoFunction(t *testing.T) {
	// Two independent globals whose init expressions never touch each other's
	// slots: each pseudo-function is optimized on its own, so neither should
	// end up with a larger frame than a single add expression needs.
	m := &wasm.Module{
		Globals: []wasm.Global{
			{Type: wasm.ValI32, InitExpr: []wasm.Instruction{i32Const(1), i32Const(2), {Opcode: wasm.OpI32Add}, end()}},
			{Type: wasm.ValI32, InitExpr: []wasm.Instruction{i32Const(3), i32Const(4), {Opcode: wasm.OpI32Add}, end()}},
		},
	}

	out, err := Lower(m, lower.NewConfig())
	require.NoError(t, err)
	require.Len(t, out.GlobalInits, 2)
	require.Equal(t, out.GlobalInits[0].FrameSize, out.GlobalInits[1].FrameSize)
}

func TestLowerErrorsOnCodeEntryWithoutAMatchingType(t *testing.T) {
	m := &wasm.Module{
		Code: []wasm.Code{{Body: []wasm.Instruction{end()}}},
	}

	_, err := Lower(m, lower.NewConfig())
	require.Error(t, err)
}
