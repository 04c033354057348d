package lower

import (
	"github.com/wasmlower/wasmlower/bytecode"
	"github.com/wasmlower/wasmlower/wasm"
)

// stepBulkAndExtensions lowers bulk-memory/table ops and the representative
// SIMD, atomics and GC subset (§2, "counts are characteristic, not
// mandatory"). These families are exercised far less than the arithmetic and
// control-flow core, so each is handled by a small dedicated case rather
// than a shared lookup table.
func (e *Engine) stepBulkAndExtensions(instr wasm.Instruction) {
	switch instr.Opcode {
	case wasm.OpMemoryInit:
		imm := instr.Imm.(wasm.MemoryInitImm)
		ln, src, dst := e.pop(), e.pop(), e.pop()
		e.appendIfReachable(bytecode.Record{
			Op: bytecode.OpMemoryInit, A: dst.position, B: src.position, C: ln.position,
			Value: uint64(imm.DataIndex), MemIdx: imm.MemIdx,
		})
	case wasm.OpDataDrop:
		idx := instr.Imm.(wasm.DataIdxImm).DataIndex
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpDataDrop, Value: uint64(idx)})
	case wasm.OpMemoryCopy:
		imm := instr.Imm.(wasm.MemoryCopyImm)
		ln, src, dst := e.pop(), e.pop(), e.pop()
		e.appendIfReachable(bytecode.Record{
			Op: bytecode.OpMemoryCopy, A: dst.position, B: src.position, C: ln.position, MemIdx: imm.DstMem,
		})
	case wasm.OpMemoryFill:
		imm := instr.Imm.(wasm.MemArgImm)
		ln, val, dst := e.pop(), e.pop(), e.pop()
		e.appendIfReachable(bytecode.Record{
			Op: bytecode.OpMemoryFill, A: dst.position, B: val.position, C: ln.position, MemIdx: imm.MemIdx,
		})
	case wasm.OpTableInit:
		imm := instr.Imm.(wasm.TableInitImm)
		ln, src, dst := e.pop(), e.pop(), e.pop()
		packed := uint64(imm.TableIndex)<<32 | uint64(imm.ElemIndex)
		e.appendIfReachable(bytecode.Record{
			Op: bytecode.OpTableInit, A: dst.position, B: src.position, C: ln.position, Value: packed,
		})
	case wasm.OpElemDrop:
		idx := instr.Imm.(wasm.ElemIdxImm).ElemIndex
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpElemDrop, Value: uint64(idx)})
	case wasm.OpTableCopy:
		imm := instr.Imm.(wasm.TableCopyImm)
		ln, src, dst := e.pop(), e.pop(), e.pop()
		packed := uint64(imm.DstTable)<<32 | uint64(imm.SrcTable)
		e.appendIfReachable(bytecode.Record{
			Op: bytecode.OpTableCopy, A: dst.position, B: src.position, C: ln.position, Value: packed,
		})
	case wasm.OpTableGrow:
		idx := instr.Imm.(wasm.TableImm).TableIndex
		delta, initVal := e.pop(), e.pop()
		dest := e.pushTemp(wasm.ValI32)
		e.appendIfReachable(bytecode.Record{
			Op: bytecode.OpTableGrow, A: dest, B: initVal.position, C: delta.position, Value: uint64(idx),
		})
	case wasm.OpTableSize:
		idx := instr.Imm.(wasm.TableImm).TableIndex
		dest := e.pushTemp(wasm.ValI32)
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpTableSize, A: dest, Value: uint64(idx)})
	case wasm.OpTableFill:
		idx := instr.Imm.(wasm.TableImm).TableIndex
		ln, val, dst := e.pop(), e.pop(), e.pop()
		e.appendIfReachable(bytecode.Record{
			Op: bytecode.OpTableFill, A: dst.position, B: val.position, C: ln.position, Value: uint64(idx),
		})

	case wasm.OpV128Load:
		e.emitVecLoad(instr.Imm.(wasm.MemArgImm))
	case wasm.OpV128Store:
		e.emitVecStore(instr.Imm.(wasm.MemArgImm))
	case wasm.OpV128Const:
		imm := instr.Imm.(wasm.V128Imm)
		e.emitConst(wasm.ValV128, imm.Lo, imm.Hi)
	case wasm.OpV128Not:
		e.emitUnaryGeneric(bytecode.OpV128Not, wasm.ValV128)
	case wasm.OpV128And:
		e.emitVecBinary(bytecode.OpV128And)
	case wasm.OpV128Or:
		e.emitVecBinary(bytecode.OpV128Or)
	case wasm.OpV128Xor:
		e.emitVecBinary(bytecode.OpV128Xor)
	case wasm.OpI32X4Add:
		e.emitVecBinary(bytecode.OpI32X4Add)
	case wasm.OpF32X4Add:
		e.emitVecBinary(bytecode.OpF32X4Add)
	case wasm.OpI8X16Shuffle:
		lanes := instr.Imm.([]byte)
		var lo, hi uint64
		for i := 0; i < 8; i++ {
			lo |= uint64(lanes[i]) << (8 * i)
			hi |= uint64(lanes[i+8]) << (8 * i)
		}
		rhs, lhs := e.pop(), e.pop()
		dest := e.pushTemp(wasm.ValV128)
		e.appendIfReachable(bytecode.Record{
			Op: bytecode.OpI8X16Shuffle, A: dest, B: lhs.position, C: rhs.position, Value: lo, High: hi,
		})

	case wasm.OpAtomicFence:
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpAtomicFence})
	case wasm.OpI32AtomicLoad:
		e.emitAtomicLoad(bytecode.OpI32AtomicLoad, wasm.ValI32, instr.Imm.(wasm.MemArgImm))
	case wasm.OpI64AtomicLoad:
		e.emitAtomicLoad(bytecode.OpI64AtomicLoad, wasm.ValI64, instr.Imm.(wasm.MemArgImm))
	case wasm.OpI32AtomicStore:
		e.emitAtomicStore(bytecode.OpI32AtomicStore, instr.Imm.(wasm.MemArgImm))
	case wasm.OpI64AtomicStore:
		e.emitAtomicStore(bytecode.OpI64AtomicStore, instr.Imm.(wasm.MemArgImm))
	case wasm.OpI32AtomicRmwAdd:
		e.emitAtomicRmw(bytecode.OpI32AtomicRmwAdd, wasm.ValI32)
	case wasm.OpI64AtomicRmwAdd:
		e.emitAtomicRmw(bytecode.OpI64AtomicRmwAdd, wasm.ValI64)
	case wasm.OpMemoryAtomicNotify:
		imm := instr.Imm.(wasm.MemArgImm)
		count, addr := e.pop(), e.pop()
		dest := e.pushTemp(wasm.ValI32)
		e.appendIfReachable(bytecode.Record{
			Op: bytecode.OpMemoryAtomicNotify, A: dest, B: addr.position, C: count.position, MemIdx: imm.MemIdx,
		})
	case wasm.OpMemoryAtomicWait32:
		e.emitAtomicWait(bytecode.OpMemoryAtomicWait32, instr.Imm.(wasm.MemArgImm))
	case wasm.OpMemoryAtomicWait64:
		e.emitAtomicWait(bytecode.OpMemoryAtomicWait64, instr.Imm.(wasm.MemArgImm))

	case wasm.OpStructNew:
		e.emitGCNew(bytecode.OpStructNew, instr.Imm.(wasm.GCTypeImm).TypeIndex, -1)
	case wasm.OpStructNewDefault:
		idx := instr.Imm.(wasm.GCTypeImm).TypeIndex
		dest := e.pushTemp(wasm.ValFuncRef)
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpStructNewDefault, A: dest, Value: uint64(idx)})
	case wasm.OpStructGet:
		imm := instr.Imm.(wasm.GCFieldImm)
		ref := e.pop()
		dest := e.pushTemp(wasm.ValI32)
		packed := uint64(imm.FieldIndex)<<32 | uint64(imm.TypeIndex)
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpStructGet, A: dest, B: ref.position, Value: packed})
	case wasm.OpStructSet:
		imm := instr.Imm.(wasm.GCFieldImm)
		val, ref := e.pop(), e.pop()
		packed := uint64(imm.FieldIndex)<<32 | uint64(imm.TypeIndex)
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpStructSet, A: ref.position, B: val.position, Value: packed})
	case wasm.OpArrayNew:
		idx := instr.Imm.(wasm.GCTypeImm).TypeIndex
		ln, initVal := e.pop(), e.pop()
		dest := e.pushTemp(wasm.ValFuncRef)
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpArrayNew, A: dest, B: initVal.position, C: ln.position, Value: uint64(idx)})
	case wasm.OpArrayNewDefault:
		idx := instr.Imm.(wasm.GCTypeImm).TypeIndex
		ln := e.pop()
		dest := e.pushTemp(wasm.ValFuncRef)
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpArrayNewDefault, A: dest, B: ln.position, Value: uint64(idx)})
	case wasm.OpArrayNewFixed:
		imm := instr.Imm.(wasm.ArrayNewFixedImm)
		e.emitGCNew(bytecode.OpArrayNewFixed, imm.TypeIndex, int(imm.Count))
	case wasm.OpArrayGet:
		idx := instr.Imm.(wasm.GCTypeImm).TypeIndex
		elemIdx, ref := e.pop(), e.pop()
		dest := e.pushTemp(wasm.ValI32)
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpArrayGet, A: dest, B: ref.position, C: elemIdx.position, Value: uint64(idx)})
	case wasm.OpArraySet:
		idx := instr.Imm.(wasm.GCTypeImm).TypeIndex
		val, elemIdx, ref := e.pop(), e.pop(), e.pop()
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpArraySet, A: ref.position, B: elemIdx.position, C: val.position, Value: uint64(idx)})
	case wasm.OpArrayLen:
		ref := e.pop()
		dest := e.pushTemp(wasm.ValI32)
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpArrayLen, A: dest, B: ref.position})
	case wasm.OpRefTestGeneric, wasm.OpRefCastGeneric:
		imm := instr.Imm.(wasm.CastImm)
		ref := e.pop()
		resultType := wasm.ValI32
		op := bytecode.OpRefTestGeneric
		if instr.Opcode == wasm.OpRefCastGeneric {
			resultType = wasm.ValFuncRef
			op = bytecode.OpRefCastGeneric
		}
		dest := e.pushTemp(resultType)
		e.appendIfReachable(bytecode.Record{Op: op, A: dest, B: ref.position, Value: uint64(imm.HeapType), High: boolToU64(imm.Nullable)})
	case wasm.OpRefI31:
		e.emitUnaryGeneric(bytecode.OpRefI31, wasm.ValFuncRef)
	case wasm.OpI31GetS:
		e.emitUnaryGeneric(bytecode.OpI31GetS, wasm.ValI32)
	case wasm.OpI31GetU:
		e.emitUnaryGeneric(bytecode.OpI31GetU, wasm.ValI32)

	default:
		panicInternal("unsupported opcode to lower: 0x%x", uint16(instr.Opcode))
	}
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (e *Engine) emitVecLoad(imm wasm.MemArgImm) {
	base := e.pop()
	dest := e.pushTemp(wasm.ValV128)
	e.appendIfReachable(bytecode.Record{
		Op: bytecode.OpV128Load, A: dest, B: base.position, Value: uint64(imm.Offset), MemIdx: imm.MemIdx, Align: imm.Align,
	})
}

func (e *Engine) emitVecStore(imm wasm.MemArgImm) {
	v := e.pop()
	base := e.pop()
	e.appendIfReachable(bytecode.Record{
		Op: bytecode.OpV128Store, A: base.position, B: v.position, Value: uint64(imm.Offset), MemIdx: imm.MemIdx, Align: imm.Align,
	})
}

func (e *Engine) emitVecBinary(op bytecode.Op) {
	rhs, lhs := e.pop(), e.pop()
	dest := e.pushTemp(wasm.ValV128)
	e.appendIfReachable(bytecode.Record{Op: op, A: dest, B: lhs.position, C: rhs.position})
}

func (e *Engine) emitAtomicLoad(op bytecode.Op, ty wasm.ValType, imm wasm.MemArgImm) {
	base := e.pop()
	dest := e.pushTemp(ty)
	e.appendIfReachable(bytecode.Record{
		Op: op, A: dest, B: base.position, Value: uint64(imm.Offset), MemIdx: imm.MemIdx, Align: imm.Align,
	})
}

func (e *Engine) emitAtomicStore(op bytecode.Op, imm wasm.MemArgImm) {
	v := e.pop()
	base := e.pop()
	e.appendIfReachable(bytecode.Record{
		Op: op, A: base.position, B: v.position, Value: uint64(imm.Offset), MemIdx: imm.MemIdx, Align: imm.Align,
	})
}

// emitAtomicRmw drops its offset/align immediate, a simplification noted
// alongside the rest of the atomics family's representative treatment.
func (e *Engine) emitAtomicRmw(op bytecode.Op, ty wasm.ValType) {
	val := e.pop()
	addr := e.pop()
	dest := e.pushTemp(ty)
	e.appendIfReachable(bytecode.Record{Op: op, A: dest, B: addr.position, C: val.position})
}

func (e *Engine) emitAtomicWait(op bytecode.Op, imm wasm.MemArgImm) {
	timeout, expected, addr := e.pop(), e.pop(), e.pop()
	dest := e.pushTemp(wasm.ValI32)
	e.appendIfReachable(bytecode.Record{
		Op: op, A: dest, B: addr.position, C: expected.position, D: timeout.position,
		Value: uint64(imm.Offset), MemIdx: imm.MemIdx,
	})
}

// emitGCNew lowers struct.new/array.new_fixed. array.new_fixed pops exactly
// fixedCount elements; struct.new's field count comes from the GC type
// section, which this package's Module does not model, so it is always
// lowered as a zero-field struct. The destination offset is threaded as the
// tail's first entry since this family's Record shape carries no dedicated
// write-offset field — a representative simplification the live-range
// optimizer's generic Offsets walk treats as one more read, acceptable for a
// family this rarely used.
func (e *Engine) emitGCNew(op bytecode.Op, typeIdx wasm.Index, fixedCount int) {
	n := fixedCount
	if n < 0 {
		n = 0
	}
	args := e.popArgs(n)
	dest := e.pushTemp(wasm.ValFuncRef)
	tail := append([]int32{int32(dest)}, args...)
	e.appendIfReachable(bytecode.Record{Op: op, Value: uint64(typeIdx), Tail: tail})
}
