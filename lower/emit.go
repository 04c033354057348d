package lower

import (
	"math"

	"github.com/wasmlower/wasmlower/bytecode"
	"github.com/wasmlower/wasmlower/preprocess"
	"github.com/wasmlower/wasmlower/wasm"
)

// emit is the second pass (§4.C.7): a single forward walk over body that
// simulates the operand stack, allocates frame slots for every temporary,
// and appends one or more bytecode.Records per source instruction. It
// consumes the metadata collect produced but never re-derives it.
func (e *Engine) emit(sig wasm.FuncType, localTypes []wasm.ValType, body []wasm.Instruction, singleMemory bool, meta preprocess.Metadata) {
	e.reset()
	e.singleMemory = singleMemory
	e.resultTypes = sig.Results
	e.allocateParamsAndLocals(sig, localTypes)
	e.promoted = e.assignPromotedConstants(meta)

	// The function body is itself Wasm's outermost structured-control-flow
	// block: a br/br_if/br_table may legally target it at the deepest depth,
	// and its closing `end` converges every such branch the same way any
	// other block's `end` does.
	e.enterBlock(blockKindFunc, wasm.FuncType{Results: sig.Results})

	numParams := len(sig.Params)
	var prologue []bytecode.Record
	for _, ci := range meta.PromotedConstants {
		off := e.promoted[ci.Key]
		prologue = append(prologue, constRecord(ci.Key.Type, off, ci.Key.Bits, ci.Key.High))
	}
	for i, li := range meta.Locals {
		if !li.NeedsExplicitInitOnStartup {
			continue
		}
		idx := numParams + i
		prologue = append(prologue, constRecord(e.localTypes[idx], e.localOffsets[idx], 0, 0))
	}

	for i := 0; i < len(body); i++ {
		e.step(body, i, meta)
	}

	e.prependRecords(prologue)
}

// prependRecords inserts records at the buffer's front and shifts every
// catch region captured during the walk above by the bytes inserted, since
// PushRecordToFront has no notion of the catch-info table and every
// TryStart/TryEnd/CatchStart recorded so far is an absolute offset into the
// pre-prologue buffer.
func (e *Engine) prependRecords(records []bytecode.Record) {
	var shift int
	for i := len(records) - 1; i >= 0; i-- {
		e.buf.PushRecordToFront(records[i])
		shift += records[i].Size()
	}
	if shift == 0 {
		return
	}
	for i := range e.catchInfos {
		e.catchInfos[i].TryStart += shift
		e.catchInfos[i].TryEnd += shift
		e.catchInfos[i].CatchStart += shift
	}
}

func constRecord(t wasm.ValType, off uint32, bits, high uint64) bytecode.Record {
	op := bytecode.OpConst32
	switch {
	case t.IsVector():
		op = bytecode.OpConst128
	case t.Size() == 8:
		op = bytecode.OpConst64
	}
	return bytecode.Record{Op: op, A: off, Value: bits, High: high}
}

// assignPromotedConstants reserves one frame slot per constant the collect
// pass chose to hoist, ahead of emitting any code, so every later occurrence
// can reference the slot instead of materializing its own copy (§4.C.4).
func (e *Engine) assignPromotedConstants(meta preprocess.Metadata) map[preprocess.ConstKey]uint32 {
	m := make(map[preprocess.ConstKey]uint32, len(meta.PromotedConstants))
	for _, ci := range meta.PromotedConstants {
		m[ci.Key] = e.layout.Allocate(ci.Key.Type)
	}
	return m
}

func (e *Engine) step(body []wasm.Instruction, i int, meta preprocess.Metadata) {
	instr := body[i]
	switch instr.Opcode {
	case wasm.OpUnreachable:
		e.handleUnreachable()
	case wasm.OpNop:
	case wasm.OpBlock:
		e.handleBlock(instr.Imm.(wasm.BlockImm).Signature(e.module))
	case wasm.OpLoop:
		e.handleLoop(instr.Imm.(wasm.BlockImm).Signature(e.module))
	case wasm.OpIf:
		e.handleIf(instr.Imm.(wasm.BlockImm).Signature(e.module))
	case wasm.OpElse:
		e.handleElse()
	case wasm.OpEnd:
		e.handleEnd()
	case wasm.OpTry:
		e.handleTry(instr.Imm.(wasm.BlockImm).Signature(e.module))
	case wasm.OpCatch:
		idx := instr.Imm.(wasm.TagImm).TagIndex
		e.handleCatch(idx, e.module.TagTypeOf(idx).Type.Params, false)
	case wasm.OpCatchAll:
		e.handleCatch(0, nil, true)
	case wasm.OpThrow:
		idx := instr.Imm.(wasm.TagImm).TagIndex
		e.handleThrow(idx, e.module.TagTypeOf(idx).Type.Params)
	case wasm.OpRethrow:
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpRethrow})
		e.enterUnreachable()
	case wasm.OpBr:
		e.handleBr(instr.Imm.(wasm.BranchImm).Depth)
	case wasm.OpBrIf:
		e.emitBrIf(body, i)
	case wasm.OpBrTable:
		e.handleBrTable(instr.Imm.(wasm.BrTableImm))
	case wasm.OpReturn:
		e.handleReturn(e.resultTypes)
	case wasm.OpCall:
		e.emitCall(instr.Imm.(wasm.CallImm).FuncIndex)
	case wasm.OpCallIndirect:
		imm := instr.Imm.(wasm.CallIndirectImm)
		e.emitCallIndirect(imm.TypeIndex, imm.TableIndex)
	case wasm.OpCallRef:
		e.emitCallRef(instr.Imm.(wasm.CallRefImm).TypeIndex)
	case wasm.OpDrop:
		e.pop()
	case wasm.OpSelect:
		e.emitSelect(nil)
	case wasm.OpSelectType:
		e.emitSelect(instr.Imm.(wasm.SelectImm).Types)
	case wasm.OpLocalGet:
		e.emitLocalGet(int(instr.Imm.(wasm.LocalImm).LocalIndex))
	case wasm.OpLocalSet:
		e.emitLocalSet(int(instr.Imm.(wasm.LocalImm).LocalIndex))
	case wasm.OpLocalTee:
		e.emitLocalTee(int(instr.Imm.(wasm.LocalImm).LocalIndex))
	case wasm.OpGlobalGet:
		e.emitGlobalGet(instr.Imm.(wasm.GlobalImm).GlobalIndex)
	case wasm.OpGlobalSet:
		e.emitGlobalSet(instr.Imm.(wasm.GlobalImm).GlobalIndex)
	case wasm.OpI32Const:
		e.emitConst(wasm.ValI32, uint64(uint32(instr.Imm.(wasm.I32Imm).Value)), 0)
	case wasm.OpI64Const:
		e.emitConst(wasm.ValI64, uint64(instr.Imm.(wasm.I64Imm).Value), 0)
	case wasm.OpF32Const:
		e.emitConst(wasm.ValF32, uint64(math.Float32bits(instr.Imm.(wasm.F32Imm).Value)), 0)
	case wasm.OpF64Const:
		e.emitConst(wasm.ValF64, instr.Imm.(wasm.F64Imm).Value, 0)
	case wasm.OpMemorySize:
		e.emitMemorySize(instr.Imm.(wasm.MemArgImm).MemIdx)
	case wasm.OpMemoryGrow:
		e.emitMemoryGrow(instr.Imm.(wasm.MemArgImm).MemIdx)
	case wasm.OpRefNull:
		e.emitConst(instr.Imm.(wasm.RefTypeImm).Type, 0, 0)
	case wasm.OpRefIsNull:
		e.emitUnaryGeneric(bytecode.OpI64Eqz, wasm.ValI32)
	case wasm.OpRefFunc:
		e.emitRefFunc(instr.Imm.(wasm.CallImm).FuncIndex)
	case wasm.OpRefAsNonNull:
		e.emitUnaryGeneric(bytecode.OpRefAsNonNull, wasm.ValFuncRef)
	case wasm.OpTableGet:
		e.emitTableGet(instr.Imm.(wasm.TableImm).TableIndex)
	case wasm.OpTableSet:
		e.emitTableSet(instr.Imm.(wasm.TableImm).TableIndex)
	case wasm.OpI32ReinterpretF32:
		e.emitReinterpret(wasm.ValI32)
	case wasm.OpF32ReinterpretI32:
		e.emitReinterpret(wasm.ValF32)
	case wasm.OpI64ReinterpretF64:
		e.emitReinterpret(wasm.ValI64)
	case wasm.OpF64ReinterpretI64:
		e.emitReinterpret(wasm.ValF64)
	case wasm.OpRefEq:
		// References are pointer-width frame slots regardless of heap type;
		// comparing them is a plain 64-bit equality.
		rhs := e.pop()
		lhs := e.pop()
		dest := e.pushTemp(wasm.ValI32)
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpI64Eq, A: dest, B: lhs.position, C: rhs.position})
	default:
		e.stepExtended(instr)
	}
}

// stepExtended covers everything driven by a lookup table or that shares a
// uniform family shape: arithmetic/compare/conversion ops, loads/stores,
// bulk-memory/table ops, and the representative SIMD/atomics/GC subset.
func (e *Engine) stepExtended(instr wasm.Instruction) {
	if op, ok := binaryOps[instr.Opcode]; ok {
		e.emitBinary(op)
		return
	}
	if op, ok := unaryOps[instr.Opcode]; ok {
		e.emitUnary(op, instr.Opcode)
		return
	}
	if info, ok := loadOps[instr.Opcode]; ok {
		e.emitLoad(instr.Opcode, info, instr.Imm.(wasm.MemArgImm))
		return
	}
	if info, ok := storeOps[instr.Opcode]; ok {
		e.emitStore(instr.Opcode, info, instr.Imm.(wasm.MemArgImm))
		return
	}
	e.stepBulkAndExtensions(instr)
}

func (e *Engine) emitBinary(op bytecode.Op) {
	rhs := e.pop()
	lhs := e.pop()
	dest := e.pushTemp(lhs.valType)
	e.appendIfReachable(bytecode.Record{Op: op, A: dest, B: lhs.position, C: rhs.position})
}

func resultTypeForUnary(op wasm.Opcode, srcType wasm.ValType) wasm.ValType {
	switch op {
	case wasm.OpI32Eqz, wasm.OpI64Eqz,
		wasm.OpI32TruncF32S, wasm.OpI32TruncF32U, wasm.OpI32TruncF64S, wasm.OpI32TruncF64U,
		wasm.OpI32TruncSatF32S, wasm.OpI32TruncSatF32U, wasm.OpI32TruncSatF64S, wasm.OpI32TruncSatF64U,
		wasm.OpI32WrapI64, wasm.OpI32Extend8S, wasm.OpI32Extend16S:
		return wasm.ValI32
	case wasm.OpI64ExtendI32S, wasm.OpI64ExtendI32U,
		wasm.OpI64TruncF32S, wasm.OpI64TruncF32U, wasm.OpI64TruncF64S, wasm.OpI64TruncF64U,
		wasm.OpI64TruncSatF32S, wasm.OpI64TruncSatF32U, wasm.OpI64TruncSatF64S, wasm.OpI64TruncSatF64U,
		wasm.OpI64Extend8S, wasm.OpI64Extend16S, wasm.OpI64Extend32S:
		return wasm.ValI64
	case wasm.OpF32ConvertI32S, wasm.OpF32ConvertI32U, wasm.OpF32ConvertI64S, wasm.OpF32ConvertI64U, wasm.OpF32DemoteF64:
		return wasm.ValF32
	case wasm.OpF64ConvertI32S, wasm.OpF64ConvertI32U, wasm.OpF64ConvertI64S, wasm.OpF64ConvertI64U, wasm.OpF64PromoteF32:
		return wasm.ValF64
	default:
		return srcType
	}
}

func (e *Engine) emitUnary(op bytecode.Op, srcOp wasm.Opcode) {
	src := e.pop()
	resultType := resultTypeForUnary(srcOp, src.valType)
	dest := e.pushTemp(resultType)
	e.appendIfReachable(bytecode.Record{Op: op, A: dest, B: src.position})
	if op == bytecode.OpI32Eqz {
		e.lastEqzDest = dest
		e.lastEqzSrc = src.position
		e.lastEqzOffset = 0
	}
}

// emitReinterpret re-tags the top-of-stack value's type without emitting any
// record: reinterpret ops never change the underlying bit pattern, and
// frame slots carry no runtime type tag, so relabeling the simulated
// stack entry is the entire lowering (§4.C.4, "no-op reinterprets").
func (e *Engine) emitReinterpret(newType wasm.ValType) {
	v := e.pop()
	e.pushAt(newType, v.position, v.localIndex)
}

func (e *Engine) emitUnaryGeneric(op bytecode.Op, resultType wasm.ValType) {
	src := e.pop()
	dest := e.pushTemp(resultType)
	e.appendIfReachable(bytecode.Record{Op: op, A: dest, B: src.position})
}

func (e *Engine) emitLocalGet(idx int) {
	off := e.localOffsets[idx]
	e.pushAt(e.localTypes[idx], off, idx)
}

// emitLocalSet elides the Move when the value already sits at the local's
// own frame slot (§4.C.4) — the common case of `local.get idx; ...; local.set
// idx` sequences that never actually move the value, and of a bare re-set
// from the local's own current value.
func (e *Engine) emitLocalSet(idx int) {
	v := e.pop()
	dest := e.localOffsets[idx]
	if v.position == dest {
		return
	}
	e.emitMove(e.localTypes[idx], dest, v.position)
}

func (e *Engine) emitLocalTee(idx int) {
	v := e.pop()
	dest := e.localOffsets[idx]
	if v.position != dest {
		e.emitMove(e.localTypes[idx], dest, v.position)
	}
	e.pushAt(e.localTypes[idx], dest, idx)
}

func (e *Engine) emitConst(t wasm.ValType, bits, high uint64) {
	key := preprocess.ConstKey{Type: t, Bits: bits, High: high}
	if off, ok := e.promoted[key]; ok {
		e.pushAt(t, off, -1)
		return
	}
	dest := e.pushTemp(t)
	e.appendIfReachable(constRecord(t, dest, bits, high))
}

func globalWidthOps(t wasm.ValType) (get, set bytecode.Op) {
	switch {
	case t.IsVector():
		return bytecode.OpGlobalGet128, bytecode.OpGlobalSet128
	case t.Size() == 8:
		return bytecode.OpGlobalGet64, bytecode.OpGlobalSet64
	default:
		return bytecode.OpGlobalGet32, bytecode.OpGlobalSet32
	}
}

func (e *Engine) emitGlobalGet(idx wasm.Index) {
	g := e.module.GlobalTypeOf(idx)
	get, _ := globalWidthOps(g.Type)
	dest := e.pushTemp(g.Type)
	e.appendIfReachable(bytecode.Record{Op: get, A: dest, Value: uint64(idx)})
}

func (e *Engine) emitGlobalSet(idx wasm.Index) {
	g := e.module.GlobalTypeOf(idx)
	_, set := globalWidthOps(g.Type)
	v := e.pop()
	e.appendIfReachable(bytecode.Record{Op: set, A: v.position, Value: uint64(idx)})
}

func (e *Engine) emitMemorySize(memIdx wasm.Index) {
	dest := e.pushTemp(wasm.ValI32)
	e.appendIfReachable(bytecode.Record{Op: bytecode.OpMemorySize, A: dest, MemIdx: memIdx})
}

func (e *Engine) emitMemoryGrow(memIdx wasm.Index) {
	delta := e.pop()
	dest := e.pushTemp(wasm.ValI32)
	e.appendIfReachable(bytecode.Record{Op: bytecode.OpMemoryGrow, A: dest, B: delta.position, MemIdx: memIdx})
}

func (e *Engine) emitRefFunc(idx wasm.Index) {
	dest := e.pushTemp(wasm.ValFuncRef)
	e.appendIfReachable(bytecode.Record{Op: bytecode.OpRefFunc, A: dest, Value: uint64(idx)})
}

func (e *Engine) emitTableGet(idx wasm.Index) {
	elemIdx := e.pop()
	t := e.module.TableTypeOf(idx)
	dest := e.pushTemp(t.ElemType)
	e.appendIfReachable(bytecode.Record{Op: bytecode.OpTableGet, A: dest, B: elemIdx.position, Value: uint64(idx)})
}

func (e *Engine) emitTableSet(idx wasm.Index) {
	v := e.pop()
	elemIdx := e.pop()
	e.appendIfReachable(bytecode.Record{Op: bytecode.OpTableSet, A: elemIdx.position, B: v.position, Value: uint64(idx)})
}

func (e *Engine) emitSelect(types []wasm.ValType) {
	cond := e.pop()
	f := e.pop()
	t := e.pop()
	resultType := t.valType
	if len(types) == 1 {
		resultType = types[0]
	}
	dest := e.pushTemp(resultType)
	width := uint64(bytecode.PointerSize)
	if resultType.IsVector() {
		width = 16
	}
	e.appendIfReachable(bytecode.Record{Op: bytecode.OpSelect, A: dest, B: cond.position, C: t.position, D: f.position, Value: width})
}

// emitBrIf applies the I32Eqz+branch fusion (§4.C.5): when the immediately
// preceding instruction was i32.eqz and nothing has been emitted since, the
// comparison and the branch are combined into a single inverted conditional
// jump operating on the Eqz's own input, instead of Eqz followed by
// JumpIfTrue on its result. The now-unused Eqz record is left in the
// buffer — erasing already-encoded bytes has no cheap representation in a
// byte-packed stream — and the live-range optimizer later moves its
// destination, an unread write, onto the shared write-only scratch slot.
func (e *Engine) emitBrIf(body []wasm.Instruction, i int) {
	depth := body[i].Imm.(wasm.BranchImm).Depth
	top := e.stack[len(e.stack)-1]
	if i > 0 && body[i-1].Opcode == wasm.OpI32Eqz && e.lastEqzOffset >= 0 && top.position == e.lastEqzDest {
		e.pop()
		e.pushAt(wasm.ValI32, e.lastEqzSrc, -1)
		e.handleBrIf(depth, true)
		return
	}
	e.handleBrIf(depth, false)
}
