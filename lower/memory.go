package lower

import (
	"github.com/wasmlower/wasmlower/bytecode"
	"github.com/wasmlower/wasmlower/wasm"
)

// emitLoad lowers a load instruction, applying the short single-memory
// peephole (§4.C.5) when the opcode is a full-width i32 or i64 load at a
// zero static offset and the module declares exactly one memory.
func (e *Engine) emitLoad(srcOp wasm.Opcode, info memOpInfo, imm wasm.MemArgImm) {
	base := e.pop()
	dest := e.pushTemp(info.ty)
	if e.singleMemory && imm.Offset == 0 && isWideLoad(srcOp) {
		op := bytecode.OpLoad32
		if info.ty.Size() == 8 {
			op = bytecode.OpLoad64
		}
		e.appendIfReachable(bytecode.Record{Op: op, A: dest, B: base.position})
		return
	}
	e.appendIfReachable(bytecode.Record{
		Op: info.op, A: dest, B: base.position,
		Value: uint64(imm.Offset), MemIdx: imm.MemIdx, Align: imm.Align,
	})
}

func (e *Engine) emitStore(srcOp wasm.Opcode, info memOpInfo, imm wasm.MemArgImm) {
	v := e.pop()
	base := e.pop()
	if e.singleMemory && imm.Offset == 0 && isWideStore(srcOp) {
		op := bytecode.OpStore32
		if info.ty.Size() == 8 {
			op = bytecode.OpStore64
		}
		e.appendIfReachable(bytecode.Record{Op: op, A: base.position, B: v.position})
		return
	}
	e.appendIfReachable(bytecode.Record{
		Op: info.op, A: base.position, B: v.position,
		Value: uint64(imm.Offset), MemIdx: imm.MemIdx, Align: imm.Align,
	})
}
