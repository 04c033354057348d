// Package bytecode defines the internal, register-addressed instruction set
// that the lowering engine emits and that a threaded interpreter or JIT backend
// (both out of scope here) consumes. Every instruction is a fixed-shape or
// variable-tail Record addressed by stack offset, never by pointer.
package bytecode

import "strconv"

// Op is one internal bytecode opcode. The family a given Op belongs to
// determines its Record's shape (see opTable in record.go); Op itself carries
// no encoding information beyond its own tag value.
type Op uint16

const (
	// Control.
	OpUnreachable Op = iota
	OpThrow
	OpRethrow
	OpEnd // closes a function or block; carries the block's result offsets
	OpJump
	OpJumpIfTrue
	OpJumpIfFalse
	OpJumpIfNull
	OpJumpIfNonNull
	OpJumpIfCastGeneric
	OpJumpIfCastDefined
	OpBrTable
	OpSelect

	// Calls.
	OpCall
	OpCallIndirect
	OpCallRef

	// Memory access: general (multi-memory-capable) and short (single-memory) forms.
	OpI32Load
	OpI64Load
	OpF32Load
	OpF64Load
	OpI32Load8S
	OpI32Load8U
	OpI32Load16S
	OpI32Load16U
	OpI64Load8S
	OpI64Load8U
	OpI64Load16S
	OpI64Load16U
	OpI64Load32S
	OpI64Load32U
	OpI32Store
	OpI64Store
	OpF32Store
	OpF64Store
	OpI32Store8
	OpI32Store16
	OpI64Store8
	OpI64Store16
	OpI64Store32
	OpLoad32  // short form: single memory, zero immediate offset
	OpLoad64  // short form
	OpStore32 // short form
	OpStore64 // short form

	OpMemorySize
	OpMemoryGrow
	OpMemoryInit
	OpMemoryCopy
	OpMemoryFill
	OpDataDrop

	// Tables.
	OpTableGet
	OpTableSet
	OpTableGrow
	OpTableSize
	OpTableCopy
	OpTableFill
	OpTableInit
	OpElemDrop
	OpRefFunc

	// Globals, width-dispatched at emit time.
	OpGlobalGet32
	OpGlobalGet64
	OpGlobalGet128
	OpGlobalSet32
	OpGlobalSet64
	OpGlobalSet128

	// Constants.
	OpConst32
	OpConst64
	OpConst128

	// Moves/reinterprets: a typed bit-copy between two frame offsets, one per width.
	OpMove32
	OpMove64
	OpMove128

	// i32 comparisons and arithmetic.
	OpI32Eqz
	OpI32Eq
	OpI32Ne
	OpI32LtS
	OpI32LtU
	OpI32GtS
	OpI32GtU
	OpI32LeS
	OpI32LeU
	OpI32GeS
	OpI32GeU
	OpI32Clz
	OpI32Ctz
	OpI32Popcnt
	OpI32Add
	OpI32Sub
	OpI32Mul
	OpI32DivS
	OpI32DivU
	OpI32RemS
	OpI32RemU
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Shl
	OpI32ShrS
	OpI32ShrU
	OpI32Rotl
	OpI32Rotr

	// i64 comparisons and arithmetic.
	OpI64Eqz
	OpI64Eq
	OpI64Ne
	OpI64LtS
	OpI64LtU
	OpI64GtS
	OpI64GtU
	OpI64LeS
	OpI64LeU
	OpI64GeS
	OpI64GeU
	OpI64Clz
	OpI64Ctz
	OpI64Popcnt
	OpI64Add
	OpI64Sub
	OpI64Mul
	OpI64DivS
	OpI64DivU
	OpI64RemS
	OpI64RemU
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64ShrS
	OpI64ShrU
	OpI64Rotl
	OpI64Rotr

	// f32/f64 comparisons and arithmetic.
	OpF32Eq
	OpF32Ne
	OpF32Lt
	OpF32Gt
	OpF32Le
	OpF32Ge
	OpF32Abs
	OpF32Neg
	OpF32Ceil
	OpF32Floor
	OpF32Trunc
	OpF32Nearest
	OpF32Sqrt
	OpF32Add
	OpF32Sub
	OpF32Mul
	OpF32Div
	OpF32Min
	OpF32Max
	OpF32Copysign

	OpF64Eq
	OpF64Ne
	OpF64Lt
	OpF64Gt
	OpF64Le
	OpF64Ge
	OpF64Abs
	OpF64Neg
	OpF64Ceil
	OpF64Floor
	OpF64Trunc
	OpF64Nearest
	OpF64Sqrt
	OpF64Add
	OpF64Sub
	OpF64Mul
	OpF64Div
	OpF64Min
	OpF64Max
	OpF64Copysign

	// Conversions.
	OpI32WrapI64
	OpI32TruncF32S
	OpI32TruncF32U
	OpI32TruncF64S
	OpI32TruncF64U
	OpI64ExtendI32S
	OpI64ExtendI32U
	OpI64TruncF32S
	OpI64TruncF32U
	OpI64TruncF64S
	OpI64TruncF64U
	OpF32ConvertI32S
	OpF32ConvertI32U
	OpF32ConvertI64S
	OpF32ConvertI64U
	OpF32DemoteF64
	OpF64ConvertI32S
	OpF64ConvertI32U
	OpF64ConvertI64S
	OpF64ConvertI64U
	OpF64PromoteF32
	OpI32Extend8S
	OpI32Extend16S
	OpI64Extend8S
	OpI64Extend16S
	OpI64Extend32S
	OpI32TruncSatF32S
	OpI32TruncSatF32U
	OpI32TruncSatF64S
	OpI32TruncSatF64U
	OpI64TruncSatF32S
	OpI64TruncSatF32U
	OpI64TruncSatF64S
	OpI64TruncSatF64U

	// SIMD: representative subset.
	OpV128Load
	OpV128Store
	OpV128Const
	OpV128Not
	OpV128And
	OpV128Or
	OpV128Xor
	OpI32X4Add
	OpF32X4Add
	OpI8X16Shuffle

	// Atomics: representative subset.
	OpAtomicFence
	OpI32AtomicLoad
	OpI64AtomicLoad
	OpI32AtomicStore
	OpI64AtomicStore
	OpI32AtomicRmwAdd
	OpI64AtomicRmwAdd
	OpMemoryAtomicNotify
	OpMemoryAtomicWait32
	OpMemoryAtomicWait64

	// GC/reference.
	OpRefAsNonNull
	OpRefTestGeneric
	OpRefCastGeneric
	OpRefI31
	OpI31GetS
	OpI31GetU
	OpArrayNew
	OpArrayNewDefault
	OpArrayNewFixed
	OpArrayGet
	OpArraySet
	OpArrayLen
	OpStructNew
	OpStructNewDefault
	OpStructGet
	OpStructSet

	// OpCount is the table-building sentinel: one past the last real opcode,
	// used to size dispatch tables at load time. Never itself emitted.
	OpCount
)

// String returns the opcode's declared Go identifier (without the Op prefix)
// for opcodes the dump renderer and tests name explicitly, or a numeric
// fallback for the rest. Kept deliberately sparse rather than one case per
// opcode: most callers only need to print a handful of families.
func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "Op(" + strconv.Itoa(int(o)) + ")"
}

var opNames = map[Op]string{
	OpUnreachable: "Unreachable", OpThrow: "Throw", OpRethrow: "Rethrow", OpEnd: "End",
	OpJump: "Jump", OpJumpIfTrue: "JumpIfTrue", OpJumpIfFalse: "JumpIfFalse",
	OpJumpIfNull: "JumpIfNull", OpJumpIfNonNull: "JumpIfNonNull", OpBrTable: "BrTable",
	OpSelect: "Select", OpCall: "Call", OpCallIndirect: "CallIndirect", OpCallRef: "CallRef",
	OpConst32: "Const32", OpConst64: "Const64", OpConst128: "Const128",
	OpMove32: "Move32", OpMove64: "Move64", OpMove128: "Move128",
	OpI32Eqz: "I32Eqz", OpI32Add: "I32Add", OpI32Sub: "I32Sub", OpI64Add: "I64Add",
	OpLoad32: "Load32", OpLoad64: "Load64", OpStore32: "Store32", OpStore64: "Store64",
	OpI32Load: "I32Load", OpI32Store: "I32Store",
	OpGlobalGet32: "GlobalGet32", OpGlobalSet32: "GlobalSet32",
}
