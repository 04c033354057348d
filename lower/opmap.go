package lower

import (
	"github.com/wasmlower/wasmlower/bytecode"
	"github.com/wasmlower/wasmlower/wasm"
)

// binaryOps and unaryOps translate a source Wasm opcode directly into its
// bytecode counterpart for the arithmetic/comparison/conversion families,
// where the translation is a 1:1 rename with no structural change (§3:
// "Binary, unary, compare, conversion ops: one opcode per... triple"). This
// keeps the engine's main switch in engine.go focused on the instructions
// that actually change shape (control flow, calls, locals, constants).
var binaryOps = map[wasm.Opcode]bytecode.Op{
	wasm.OpI32Eq: bytecode.OpI32Eq, wasm.OpI32Ne: bytecode.OpI32Ne,
	wasm.OpI32LtS: bytecode.OpI32LtS, wasm.OpI32LtU: bytecode.OpI32LtU,
	wasm.OpI32GtS: bytecode.OpI32GtS, wasm.OpI32GtU: bytecode.OpI32GtU,
	wasm.OpI32LeS: bytecode.OpI32LeS, wasm.OpI32LeU: bytecode.OpI32LeU,
	wasm.OpI32GeS: bytecode.OpI32GeS, wasm.OpI32GeU: bytecode.OpI32GeU,
	wasm.OpI32Add: bytecode.OpI32Add, wasm.OpI32Sub: bytecode.OpI32Sub, wasm.OpI32Mul: bytecode.OpI32Mul,
	wasm.OpI32DivS: bytecode.OpI32DivS, wasm.OpI32DivU: bytecode.OpI32DivU,
	wasm.OpI32RemS: bytecode.OpI32RemS, wasm.OpI32RemU: bytecode.OpI32RemU,
	wasm.OpI32And: bytecode.OpI32And, wasm.OpI32Or: bytecode.OpI32Or, wasm.OpI32Xor: bytecode.OpI32Xor,
	wasm.OpI32Shl: bytecode.OpI32Shl, wasm.OpI32ShrS: bytecode.OpI32ShrS, wasm.OpI32ShrU: bytecode.OpI32ShrU,
	wasm.OpI32Rotl: bytecode.OpI32Rotl, wasm.OpI32Rotr: bytecode.OpI32Rotr,

	wasm.OpI64Eq: bytecode.OpI64Eq, wasm.OpI64Ne: bytecode.OpI64Ne,
	wasm.OpI64LtS: bytecode.OpI64LtS, wasm.OpI64LtU: bytecode.OpI64LtU,
	wasm.OpI64GtS: bytecode.OpI64GtS, wasm.OpI64GtU: bytecode.OpI64GtU,
	wasm.OpI64LeS: bytecode.OpI64LeS, wasm.OpI64LeU: bytecode.OpI64LeU,
	wasm.OpI64GeS: bytecode.OpI64GeS, wasm.OpI64GeU: bytecode.OpI64GeU,
	wasm.OpI64Add: bytecode.OpI64Add, wasm.OpI64Sub: bytecode.OpI64Sub, wasm.OpI64Mul: bytecode.OpI64Mul,
	wasm.OpI64DivS: bytecode.OpI64DivS, wasm.OpI64DivU: bytecode.OpI64DivU,
	wasm.OpI64RemS: bytecode.OpI64RemS, wasm.OpI64RemU: bytecode.OpI64RemU,
	wasm.OpI64And: bytecode.OpI64And, wasm.OpI64Or: bytecode.OpI64Or, wasm.OpI64Xor: bytecode.OpI64Xor,
	wasm.OpI64Shl: bytecode.OpI64Shl, wasm.OpI64ShrS: bytecode.OpI64ShrS, wasm.OpI64ShrU: bytecode.OpI64ShrU,
	wasm.OpI64Rotl: bytecode.OpI64Rotl, wasm.OpI64Rotr: bytecode.OpI64Rotr,

	wasm.OpF32Eq: bytecode.OpF32Eq, wasm.OpF32Ne: bytecode.OpF32Ne, wasm.OpF32Lt: bytecode.OpF32Lt,
	wasm.OpF32Gt: bytecode.OpF32Gt, wasm.OpF32Le: bytecode.OpF32Le, wasm.OpF32Ge: bytecode.OpF32Ge,
	wasm.OpF32Add: bytecode.OpF32Add, wasm.OpF32Sub: bytecode.OpF32Sub, wasm.OpF32Mul: bytecode.OpF32Mul,
	wasm.OpF32Div: bytecode.OpF32Div, wasm.OpF32Min: bytecode.OpF32Min, wasm.OpF32Max: bytecode.OpF32Max,
	wasm.OpF32Copysign: bytecode.OpF32Copysign,

	wasm.OpF64Eq: bytecode.OpF64Eq, wasm.OpF64Ne: bytecode.OpF64Ne, wasm.OpF64Lt: bytecode.OpF64Lt,
	wasm.OpF64Gt: bytecode.OpF64Gt, wasm.OpF64Le: bytecode.OpF64Le, wasm.OpF64Ge: bytecode.OpF64Ge,
	wasm.OpF64Add: bytecode.OpF64Add, wasm.OpF64Sub: bytecode.OpF64Sub, wasm.OpF64Mul: bytecode.OpF64Mul,
	wasm.OpF64Div: bytecode.OpF64Div, wasm.OpF64Min: bytecode.OpF64Min, wasm.OpF64Max: bytecode.OpF64Max,
	wasm.OpF64Copysign: bytecode.OpF64Copysign,
}

var unaryOps = map[wasm.Opcode]bytecode.Op{
	wasm.OpI32Eqz: bytecode.OpI32Eqz, wasm.OpI32Clz: bytecode.OpI32Clz,
	wasm.OpI32Ctz: bytecode.OpI32Ctz, wasm.OpI32Popcnt: bytecode.OpI32Popcnt,
	wasm.OpI64Eqz: bytecode.OpI64Eqz, wasm.OpI64Clz: bytecode.OpI64Clz,
	wasm.OpI64Ctz: bytecode.OpI64Ctz, wasm.OpI64Popcnt: bytecode.OpI64Popcnt,
	wasm.OpF32Abs: bytecode.OpF32Abs, wasm.OpF32Neg: bytecode.OpF32Neg, wasm.OpF32Ceil: bytecode.OpF32Ceil,
	wasm.OpF32Floor: bytecode.OpF32Floor, wasm.OpF32Trunc: bytecode.OpF32Trunc,
	wasm.OpF32Nearest: bytecode.OpF32Nearest, wasm.OpF32Sqrt: bytecode.OpF32Sqrt,
	wasm.OpF64Abs: bytecode.OpF64Abs, wasm.OpF64Neg: bytecode.OpF64Neg, wasm.OpF64Ceil: bytecode.OpF64Ceil,
	wasm.OpF64Floor: bytecode.OpF64Floor, wasm.OpF64Trunc: bytecode.OpF64Trunc,
	wasm.OpF64Nearest: bytecode.OpF64Nearest, wasm.OpF64Sqrt: bytecode.OpF64Sqrt,

	wasm.OpI32WrapI64: bytecode.OpI32WrapI64,
	wasm.OpI32TruncF32S: bytecode.OpI32TruncF32S, wasm.OpI32TruncF32U: bytecode.OpI32TruncF32U,
	wasm.OpI32TruncF64S: bytecode.OpI32TruncF64S, wasm.OpI32TruncF64U: bytecode.OpI32TruncF64U,
	wasm.OpI64ExtendI32S: bytecode.OpI64ExtendI32S, wasm.OpI64ExtendI32U: bytecode.OpI64ExtendI32U,
	wasm.OpI64TruncF32S: bytecode.OpI64TruncF32S, wasm.OpI64TruncF32U: bytecode.OpI64TruncF32U,
	wasm.OpI64TruncF64S: bytecode.OpI64TruncF64S, wasm.OpI64TruncF64U: bytecode.OpI64TruncF64U,
	wasm.OpF32ConvertI32S: bytecode.OpF32ConvertI32S, wasm.OpF32ConvertI32U: bytecode.OpF32ConvertI32U,
	wasm.OpF32ConvertI64S: bytecode.OpF32ConvertI64S, wasm.OpF32ConvertI64U: bytecode.OpF32ConvertI64U,
	wasm.OpF32DemoteF64: bytecode.OpF32DemoteF64,
	wasm.OpF64ConvertI32S: bytecode.OpF64ConvertI32S, wasm.OpF64ConvertI32U: bytecode.OpF64ConvertI32U,
	wasm.OpF64ConvertI64S: bytecode.OpF64ConvertI64S, wasm.OpF64ConvertI64U: bytecode.OpF64ConvertI64U,
	wasm.OpF64PromoteF32: bytecode.OpF64PromoteF32,
	wasm.OpI32Extend8S: bytecode.OpI32Extend8S, wasm.OpI32Extend16S: bytecode.OpI32Extend16S,
	wasm.OpI64Extend8S: bytecode.OpI64Extend8S, wasm.OpI64Extend16S: bytecode.OpI64Extend16S,
	wasm.OpI64Extend32S: bytecode.OpI64Extend32S,

	wasm.OpI32TruncSatF32S: bytecode.OpI32TruncSatF32S, wasm.OpI32TruncSatF32U: bytecode.OpI32TruncSatF32U,
	wasm.OpI32TruncSatF64S: bytecode.OpI32TruncSatF64S, wasm.OpI32TruncSatF64U: bytecode.OpI32TruncSatF64U,
	wasm.OpI64TruncSatF32S: bytecode.OpI64TruncSatF32S, wasm.OpI64TruncSatF32U: bytecode.OpI64TruncSatF32U,
	wasm.OpI64TruncSatF64S: bytecode.OpI64TruncSatF64S, wasm.OpI64TruncSatF64U: bytecode.OpI64TruncSatF64U,
}

// loadOps/storeOps map a load/store opcode to its bytecode record and the
// value type it produces/consumes, used both to pick the operand's stack
// type and to decide whether the short single-memory peephole (§4.C.5)
// applies.
type memOpInfo struct {
	op bytecode.Op
	ty wasm.ValType
}

var loadOps = map[wasm.Opcode]memOpInfo{
	wasm.OpI32Load: {bytecode.OpI32Load, wasm.ValI32}, wasm.OpI64Load: {bytecode.OpI64Load, wasm.ValI64},
	wasm.OpF32Load: {bytecode.OpF32Load, wasm.ValF32}, wasm.OpF64Load: {bytecode.OpF64Load, wasm.ValF64},
	wasm.OpI32Load8S: {bytecode.OpI32Load8S, wasm.ValI32}, wasm.OpI32Load8U: {bytecode.OpI32Load8U, wasm.ValI32},
	wasm.OpI32Load16S: {bytecode.OpI32Load16S, wasm.ValI32}, wasm.OpI32Load16U: {bytecode.OpI32Load16U, wasm.ValI32},
	wasm.OpI64Load8S: {bytecode.OpI64Load8S, wasm.ValI64}, wasm.OpI64Load8U: {bytecode.OpI64Load8U, wasm.ValI64},
	wasm.OpI64Load16S: {bytecode.OpI64Load16S, wasm.ValI64}, wasm.OpI64Load16U: {bytecode.OpI64Load16U, wasm.ValI64},
	wasm.OpI64Load32S: {bytecode.OpI64Load32S, wasm.ValI64}, wasm.OpI64Load32U: {bytecode.OpI64Load32U, wasm.ValI64},
}

var storeOps = map[wasm.Opcode]memOpInfo{
	wasm.OpI32Store: {bytecode.OpI32Store, wasm.ValI32}, wasm.OpI64Store: {bytecode.OpI64Store, wasm.ValI64},
	wasm.OpF32Store: {bytecode.OpF32Store, wasm.ValF32}, wasm.OpF64Store: {bytecode.OpF64Store, wasm.ValF64},
	wasm.OpI32Store8: {bytecode.OpI32Store8, wasm.ValI32}, wasm.OpI32Store16: {bytecode.OpI32Store16, wasm.ValI32},
	wasm.OpI64Store8: {bytecode.OpI64Store8, wasm.ValI64}, wasm.OpI64Store16: {bytecode.OpI64Store16, wasm.ValI64},
	wasm.OpI64Store32: {bytecode.OpI64Store32, wasm.ValI64},
}

// isWideLoad/isWideStore report whether a load/store opcode is the full-width
// i32 or i64 form (not a narrow sign/zero-extending variant, and not an
// f32/f64 access), the precondition for the Load32/Load64/Store32/Store64
// short forms.
func isWideLoad(op wasm.Opcode) bool {
	return op == wasm.OpI32Load || op == wasm.OpI64Load
}
func isWideStore(op wasm.Opcode) bool {
	return op == wasm.OpI32Store || op == wasm.OpI64Store
}
