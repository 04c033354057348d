package preprocess

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmlower/wasmlower/wasm"
)

func TestReadBeforeWriteNeedsInit(t *testing.T) {
	c := NewCollector(2)
	c.OnLocalRead(0) // local 0 read before any write
	c.Advance()
	c.OnLocalWrite(1)
	c.Advance()
	c.OnLocalRead(1) // local 1 written before its read

	meta := c.Finish(6)
	require.True(t, meta.Locals[0].NeedsExplicitInitOnStartup)
	require.False(t, meta.Locals[1].NeedsExplicitInitOnStartup)
}

func TestWriteAfterBranchDoesNotDominate(t *testing.T) {
	c := NewCollector(1)
	c.OnBranch()
	c.OnLocalWrite(0) // write only observed after a branch boundary
	c.Advance()
	c.OnLocalRead(0)

	meta := c.Finish(6)
	require.True(t, meta.Locals[0].NeedsExplicitInitOnStartup)
}

func TestConstantRankingAndBudget(t *testing.T) {
	c := NewCollector(0)
	i32 := wasm.ValI32
	for i := 0; i < 5; i++ {
		c.OnConst(i32, 7, 0) // five references
	}
	c.OnConst(i32, 9, 0) // one reference
	c.OnConst(i32, 11, 0)
	c.OnConst(i32, 11, 0) // two references

	meta := c.Finish(2)
	require.Len(t, meta.PromotedConstants, 2)
	require.Equal(t, uint64(7), meta.PromotedConstants[0].Key.Bits)
	require.Equal(t, 5, meta.PromotedConstants[0].RefCount)
	require.Equal(t, uint64(11), meta.PromotedConstants[1].Key.Bits)
}

func TestFinishIsIdempotentGivenSameInputs(t *testing.T) {
	run := func() Metadata {
		c := NewCollector(1)
		c.OnLocalWrite(0)
		c.Advance()
		c.OnLocalRead(0)
		c.OnConst(wasm.ValI64, 42, 0)
		return c.Finish(6)
	}
	require.Equal(t, run(), run())
}
