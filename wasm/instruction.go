package wasm

// Instruction is one decoded Wasm instruction: an opcode plus its decoded
// immediate, if any. The lowering engine (package lower) is driven by a flat
// sequence of these per function body; structured nesting is recovered from the
// Block/Loop/If/Else/End/Try/Catch opcodes as the engine walks the sequence, not
// by any tree built ahead of time — matching the "one forward pass, no
// backtracking" control flow in spec §2.
type Instruction struct {
	Opcode Opcode
	Imm    interface{}
}

// BlockImm is the immediate of block/loop/if/try: the block's signature, encoded
// as the binary format's blocktype (negative single-result-type tag, or a type
// section index when >= 0).
type BlockImm struct {
	BlockType int64
}

// Signature resolves a BlockImm's params/results against the module's type section.
func (b BlockImm) Signature(m *Module) FuncType {
	switch b.BlockType {
	case -0x40:
		return FuncType{}
	case -1:
		return FuncType{Results: []ValType{ValI32}}
	case -2:
		return FuncType{Results: []ValType{ValI64}}
	case -3:
		return FuncType{Results: []ValType{ValF32}}
	case -4:
		return FuncType{Results: []ValType{ValF64}}
	case -5:
		return FuncType{Results: []ValType{ValV128}}
	case -0x10:
		return FuncType{Results: []ValType{ValFuncRef}}
	case -0x11:
		return FuncType{Results: []ValType{ValExternRef}}
	default:
		if m != nil && b.BlockType >= 0 && int(b.BlockType) < len(m.Types) {
			return m.Types[b.BlockType]
		}
		return FuncType{}
	}
}

// BranchImm is the immediate of br/br_if: a relative block-nesting depth.
type BranchImm struct{ Depth uint32 }

// BrTableImm is the immediate of br_table.
type BrTableImm struct {
	Targets []uint32
	Default uint32
}

// CallImm is the immediate of call.
type CallImm struct{ FuncIndex Index }

// CallIndirectImm is the immediate of call_indirect.
type CallIndirectImm struct {
	TypeIndex  Index
	TableIndex Index
}

// CallRefImm is the immediate of call_ref: the function type the funcref must match.
type CallRefImm struct{ TypeIndex Index }

// LocalImm is the immediate of local.get/local.set/local.tee.
type LocalImm struct{ LocalIndex Index }

// GlobalImm is the immediate of global.get/global.set.
type GlobalImm struct{ GlobalIndex Index }

// TableImm is the immediate of table.get/set/grow/size/fill and ref.func-adjacent ops.
type TableImm struct{ TableIndex Index }

// TableCopyImm is the immediate of table.copy (two distinct table indices).
type TableCopyImm struct{ DstTable, SrcTable Index }

// TableInitImm is the immediate of table.init.
type TableInitImm struct {
	ElemIndex  Index
	TableIndex Index
}

// MemArgImm is the immediate of a load/store instruction.
type MemArgImm struct {
	Offset uint32
	Align  uint32
	MemIdx Index // 0 unless the multi-memory proposal names another memory
}

// MemoryCopyImm is the immediate of memory.copy.
type MemoryCopyImm struct{ DstMem, SrcMem Index }

// MemoryInitImm is the immediate of memory.init.
type MemoryInitImm struct {
	DataIndex Index
	MemIdx    Index
}

// I32Imm/I64Imm/F32Imm/F64Imm carry a constant instruction's literal value.
type I32Imm struct{ Value int32 }
type I64Imm struct{ Value int64 }
type F32Imm struct{ Value float32 }
type F64Imm struct{ Value uint64 } // raw bit pattern
type V128Imm struct{ Lo, Hi uint64 }

// RefTypeImm is the immediate of ref.null.
type RefTypeImm struct{ Type ValType }

// TagImm is the immediate of throw/catch.
type TagImm struct{ TagIndex Index }

// DataIdxImm is the immediate of data.drop.
type DataIdxImm struct{ DataIndex Index }

// ElemIdxImm is the immediate of elem.drop.
type ElemIdxImm struct{ ElemIndex Index }

// SelectImm is the immediate of the typed `select` variant.
type SelectImm struct{ Types []ValType }

// GCTypeImm is the immediate of struct.new/array.new and friends.
type GCTypeImm struct{ TypeIndex Index }

// GCFieldImm is the immediate of struct.get/struct.set.
type GCFieldImm struct {
	TypeIndex  Index
	FieldIndex Index
}

// ArrayNewFixedImm is the immediate of array.new_fixed.
type ArrayNewFixedImm struct {
	TypeIndex Index
	Count     uint32
}

// CastImm is the immediate of ref.test/ref.cast/br_on_cast.
type CastImm struct {
	Nullable bool
	HeapType int64
}
