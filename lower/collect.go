package lower

import (
	"math"

	"github.com/wasmlower/wasmlower/preprocess"
	"github.com/wasmlower/wasmlower/wasm"
)

// collect runs the preprocess pass (§4.D): a dry walk over body that records
// local usage and constant occurrences but never touches the bytecode buffer
// or the frame layout. Per §9's "Preprocess as two passes, not coroutine
// suspend," this is a separate, simpler walk from emit — it does not need to
// track operand-stack positions at all, only the program-order sequence of
// reads, writes and constants, since that sequence is identical regardless
// of which optimizations the emitting pass later applies to it.
func (e *Engine) collect(sig wasm.FuncType, localTypes []wasm.ValType, body []wasm.Instruction, c *preprocess.Collector) {
	numParams := len(sig.Params)
	for _, instr := range body {
		c.Advance()
		switch instr.Opcode {
		case wasm.OpLocalGet:
			idx := int(instr.Imm.(wasm.LocalImm).LocalIndex) - numParams
			if idx >= 0 {
				c.OnLocalRead(idx)
			}
		case wasm.OpLocalSet:
			idx := int(instr.Imm.(wasm.LocalImm).LocalIndex) - numParams
			if idx >= 0 {
				c.OnLocalWrite(idx)
			}
		case wasm.OpLocalTee:
			idx := int(instr.Imm.(wasm.LocalImm).LocalIndex) - numParams
			if idx >= 0 {
				c.OnLocalWrite(idx)
			}
		case wasm.OpI32Const:
			v := instr.Imm.(wasm.I32Imm).Value
			c.OnConst(wasm.ValI32, uint64(uint32(v)), 0)
		case wasm.OpI64Const:
			v := instr.Imm.(wasm.I64Imm).Value
			c.OnConst(wasm.ValI64, uint64(v), 0)
		case wasm.OpF32Const:
			v := instr.Imm.(wasm.F32Imm).Value
			c.OnConst(wasm.ValF32, uint64(math.Float32bits(v)), 0)
		case wasm.OpF64Const:
			v := instr.Imm.(wasm.F64Imm).Value
			c.OnConst(wasm.ValF64, v, 0)
		case wasm.OpBr, wasm.OpBrIf, wasm.OpBrTable, wasm.OpLoop, wasm.OpElse:
			c.OnBranch()
		}
	}
}
