package lower

import (
	"github.com/wasmlower/wasmlower/bytecode"
	"github.com/wasmlower/wasmlower/wasm"
)

// popArgs pops n operands off the stack in call order (first argument
// deepest) and returns their frame positions, suitable for a call record's
// parameter tail.
func (e *Engine) popArgs(n int) []int32 {
	if n == 0 {
		return nil
	}
	args := e.stack[len(e.stack)-n:]
	tail := make([]int32, n)
	for i, v := range args {
		tail[i] = int32(v.position)
	}
	e.stack = e.stack[:len(e.stack)-n]
	return tail
}

func (e *Engine) pushResults(types []wasm.ValType, tail []int32) []int32 {
	for _, t := range types {
		off := e.pushTemp(t)
		tail = append(tail, int32(off))
	}
	return tail
}

func (e *Engine) emitCall(funcIdx wasm.Index) {
	sig := e.module.FuncTypeOf(funcIdx)
	tail := e.popArgs(len(sig.Params))
	paramCount := uint32(len(tail))
	tail = e.pushResults(sig.Results, tail)
	e.appendIfReachable(bytecode.Record{
		Op: bytecode.OpCall, A: paramCount, Value: uint64(funcIdx), Tail: tail,
	})
}

func (e *Engine) emitCallIndirect(typeIdx, tableIdx wasm.Index) {
	sig := e.module.Types[typeIdx]
	elemIdx := e.pop()
	tail := e.popArgs(len(sig.Params))
	paramCount := uint32(len(tail))
	tail = e.pushResults(sig.Results, tail)
	// tableIdx and typeIdx both ride in Value since CallIndirect has no
	// memArg fields of its own: tableIdx in the upper 32 bits, typeIdx low.
	packed := uint64(tableIdx)<<32 | uint64(typeIdx)
	e.appendIfReachable(bytecode.Record{
		Op: bytecode.OpCallIndirect, A: paramCount, B: elemIdx.position,
		Value: packed, Tail: tail,
	})
}

func (e *Engine) emitCallRef(typeIdx wasm.Index) {
	sig := e.module.Types[typeIdx]
	funcref := e.pop()
	tail := e.popArgs(len(sig.Params))
	paramCount := uint32(len(tail))
	tail = e.pushResults(sig.Results, tail)
	e.appendIfReachable(bytecode.Record{
		Op: bytecode.OpCallRef, A: paramCount, B: funcref.position, Value: uint64(typeIdx), Tail: tail,
	})
}
