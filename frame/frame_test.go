package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmlower/wasmlower/wasm"
)

func TestAllocateBumpsAndAligns(t *testing.T) {
	l := New()
	p0 := l.Allocate(wasm.ValI32)
	p1 := l.Allocate(wasm.ValI64)
	p2 := l.Allocate(wasm.ValV128)

	require.Equal(t, uint32(0), p0)
	require.Equal(t, uint32(8), p1)
	require.Equal(t, uint32(16), p2)
	require.Equal(t, uint32(32), l.CurrentSize())
}

func TestFinalSizeRoundsToPointerSize(t *testing.T) {
	l := New()
	l.Allocate(wasm.ValI32)
	require.Equal(t, uint32(8), l.FinalSize())
}

func TestPackPutsWordAlignedTypesFirst(t *testing.T) {
	types := []wasm.ValType{wasm.ValI32, wasm.ValI64, wasm.ValI32, wasm.ValF64}
	offsets := Pack(types, 0)

	require.Equal(t, uint32(0), offsets[1])  // i64 first in sweep 1
	require.Equal(t, uint32(8), offsets[3])  // f64 second in sweep 1
	require.Equal(t, uint32(16), offsets[0]) // i32s packed tightly afterward
	require.Equal(t, uint32(20), offsets[2])
}
