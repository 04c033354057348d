// Package wasm models the validated WebAssembly module object model and binary
// decoder that the lowering pipeline consumes. Per the core specification this is
// an external collaborator: validation is assumed to have already happened here,
// and the lowerer never re-checks anything this package hands it.
package wasm

// ValType is a WebAssembly value type, encoded as its binary-format byte.
type ValType byte

const (
	ValI32       ValType = 0x7f
	ValI64       ValType = 0x7e
	ValF32       ValType = 0x7d
	ValF64       ValType = 0x7c
	ValV128      ValType = 0x7b
	ValFuncRef   ValType = 0x70
	ValExternRef ValType = 0x6f
)

func (t ValType) String() string {
	switch t {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExternRef:
		return "externref"
	default:
		return "unknown"
	}
}

// Size returns the natural size in bytes of a value of this type. Reference types
// are treated as pointer-width (8 bytes on the 64-bit frame layout this repo targets).
func (t ValType) Size() uint32 {
	switch t {
	case ValI32, ValF32:
		return 4
	case ValI64, ValF64, ValFuncRef, ValExternRef:
		return 8
	case ValV128:
		return 16
	default:
		return 8
	}
}

// IsVector reports whether the type occupies a 128-bit frame slot.
func (t ValType) IsVector() bool { return t == ValV128 }

// FuncType is a WebAssembly function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Index is a WebAssembly index-space index (type, function, table, ...).
type Index = uint32

// Global describes a module-level global's type and mutability.
type Global struct {
	Type       ValType
	Mutable    bool
	InitExpr   []Instruction // constant expression, empty for imported globals
	IsImported bool
}

// TableType describes a table's element type and limits.
type TableType struct {
	ElemType ValType // ValFuncRef or ValExternRef
	Min, Max uint32
	HasMax   bool
}

// MemoryType describes a linear memory's limits, in 64KiB pages.
type MemoryType struct {
	Min, Max uint32
	HasMax   bool
	Shared   bool
}

// TagType describes an exception-handling tag (its parameter signature; tags never
// produce results).
type TagType struct {
	Type FuncType
}

const (
	ExternFunc byte = iota
	ExternTable
	ExternMemory
	ExternGlobal
	ExternTag
)

// Import describes one imported definition.
type Import struct {
	Module, Name string
	Kind         byte // Extern*
	TypeIndex    Index
	Table        TableType
	Memory       MemoryType
	Global       Global
	Tag          TagType
}

// Export describes one exported definition.
type Export struct {
	Name  string
	Kind  byte
	Index Index
}

// ElementSegment is a table initializer.
type ElementSegment struct {
	TableIndex Index
	OffsetExpr []Instruction // nil when Passive or Declared
	Init       []Index       // function indices (representative: func-index elements only)
	Passive    bool
	Declared   bool
}

// DataSegment is a memory initializer.
type DataSegment struct {
	MemoryIndex Index
	OffsetExpr  []Instruction // nil when Passive
	Init        []byte
	Passive     bool
}

// Code is one function body: its expanded local declarations (beyond the
// parameters already recorded in its FuncType) and its flat instruction stream.
type Code struct {
	Locals []ValType
	Body   []Instruction
}

// Module is the fully decoded, assumed-valid module.
type Module struct {
	Types []FuncType

	Imports []Import
	// ImportedFuncCount etc. let callers map a global function/table/memory/global/tag
	// index back into Imports vs. locally-defined entries, mirroring how the binary
	// format interleaves imported and defined index spaces.
	ImportedFuncCount, ImportedTableCount, ImportedMemoryCount, ImportedGlobalCount, ImportedTagCount int

	// FuncTypeIndices holds the type index of each locally defined function, i.e.
	// excluding imports, in the order the Function section declares them. Code[i]
	// is the body of the function whose type is FuncTypeIndices[i].
	FuncTypeIndices []Index

	Tables    []TableType
	Memories  []MemoryType
	Globals   []Global
	Tags      []TagType
	Exports   []Export
	StartFunc *Index
	Elements  []ElementSegment
	Data      []DataSegment
	Code      []Code

	DataCount *uint32
}

// FuncTypeOf returns the signature of the function at the given global function
// index (imports first, then locally defined functions).
func (m *Module) FuncTypeOf(funcIdx Index) *FuncType {
	if int(funcIdx) < m.ImportedFuncCount {
		return &m.Types[m.Imports[importNth(m.Imports, ExternFunc, int(funcIdx))].TypeIndex]
	}
	local := int(funcIdx) - m.ImportedFuncCount
	return &m.Types[m.FuncTypeIndices[local]]
}

func importNth(imports []Import, kind byte, n int) int {
	count := 0
	for i, imp := range imports {
		if imp.Kind == kind {
			if count == n {
				return i
			}
			count++
		}
	}
	return -1
}

// GlobalTypeOf returns the type/mutability of the global at the given global index.
func (m *Module) GlobalTypeOf(idx Index) Global {
	if int(idx) < m.ImportedGlobalCount {
		imp := m.Imports[importNth(m.Imports, ExternGlobal, int(idx))]
		g := imp.Global
		g.IsImported = true
		return g
	}
	return m.Globals[int(idx)-m.ImportedGlobalCount]
}

// TableTypeOf returns the type of the table at the given table index.
func (m *Module) TableTypeOf(idx Index) TableType {
	if int(idx) < m.ImportedTableCount {
		return m.Imports[importNth(m.Imports, ExternTable, int(idx))].Table
	}
	return m.Tables[int(idx)-m.ImportedTableCount]
}

// MemoryCount returns the total number of memories (imported + defined), used to
// decide whether the single-memory short load/store peephole (§4.C.5) applies.
func (m *Module) MemoryCount() int {
	return m.ImportedMemoryCount + len(m.Memories)
}

// TagTypeOf returns the signature of the tag at the given tag index.
func (m *Module) TagTypeOf(idx Index) TagType {
	if int(idx) < m.ImportedTagCount {
		return m.Imports[importNth(m.Imports, ExternTag, int(idx))].Tag
	}
	return m.Tags[int(idx)-m.ImportedTagCount]
}
