package wasm

import (
	"fmt"
)

// ErrInvalidMagic/ErrInvalidVersion are returned by Decode on a malformed header.
var (
	ErrInvalidMagic   = fmt.Errorf("wasm: invalid magic number")
	ErrInvalidVersion = fmt.Errorf("wasm: unsupported version")
)

// Decode parses a binary WebAssembly module. Per §1/§7, this is the external
// decoder collaborator: it performs no validation beyond what is needed to walk
// the byte stream, and any malformed input it cannot make sense of becomes an
// error returned here, never reaching the lowering engine (§7, "Validation
// failure during decoding: surfaced by the Decoder collaborator before any
// emission").
func Decode(data []byte) (*Module, error) {
	r := newReader(data)

	magic, err := r.u32le()
	if err != nil {
		return nil, fmt.Errorf("wasm: reading header: %w", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.u32le()
	if err != nil {
		return nil, fmt.Errorf("wasm: reading header: %w", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	for r.pos < len(r.b) {
		id, err := r.byte()
		if err != nil {
			return nil, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("wasm: section %d size: %w", id, err)
		}
		end := r.pos + int(size)
		if end > len(r.b) {
			return nil, fmt.Errorf("wasm: section %d overruns module", id)
		}
		sectionReader := &reader{b: r.b[:end], pos: r.pos}
		if err := decodeSection(m, id, sectionReader); err != nil {
			return nil, fmt.Errorf("wasm: section %d: %w", id, err)
		}
		r.pos = end
	}
	return m, nil
}

func decodeSection(m *Module, id byte, r *reader) error {
	switch id {
	case SectionCustom:
		// Skip: custom sections carry no semantics the lowerer needs.
		r.pos = len(r.b)
		return nil
	case SectionType:
		return decodeTypeSection(m, r)
	case SectionImport:
		return decodeImportSection(m, r)
	case SectionFunction:
		return decodeFunctionSection(m, r)
	case SectionTable:
		return decodeTableSection(m, r)
	case SectionMemory:
		return decodeMemorySection(m, r)
	case SectionTag:
		return decodeTagSection(m, r)
	case SectionGlobal:
		return decodeGlobalSection(m, r)
	case SectionExport:
		return decodeExportSection(m, r)
	case SectionStart:
		idx, err := r.u32()
		if err != nil {
			return err
		}
		m.StartFunc = &idx
		return nil
	case SectionElement:
		return decodeElementSection(m, r)
	case SectionDataCount:
		n, err := r.u32()
		if err != nil {
			return err
		}
		m.DataCount = &n
		return nil
	case SectionCode:
		return decodeCodeSection(m, r)
	case SectionData:
		return decodeDataSection(m, r)
	default:
		return fmt.Errorf("unknown section id %d", id)
	}
}

func decodeTypeSection(m *Module, r *reader) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, count)
	for i := range m.Types {
		tag, err := r.byte()
		if err != nil {
			return err
		}
		if tag != 0x60 {
			return fmt.Errorf("type %d: expected func type tag 0x60, got %#x", i, tag)
		}
		params, err := decodeValTypeVec(r)
		if err != nil {
			return err
		}
		results, err := decodeValTypeVec(r)
		if err != nil {
			return err
		}
		m.Types[i] = FuncType{Params: params, Results: results}
	}
	return nil
}

func decodeValTypeVec(r *reader) ([]ValType, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]ValType, n)
	for i := range out {
		v, err := r.valType()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func decodeLimits(r *reader) (min, max uint32, hasMax bool, shared bool, err error) {
	flags, err := r.byte()
	if err != nil {
		return
	}
	min, err = r.u32()
	if err != nil {
		return
	}
	hasMax = flags&0x01 != 0
	shared = flags&0x02 != 0
	if hasMax {
		max, err = r.u32()
	}
	return
}

func decodeTableType(r *reader) (TableType, error) {
	elem, err := r.valType()
	if err != nil {
		return TableType{}, err
	}
	min, max, hasMax, _, err := decodeLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: elem, Min: min, Max: max, HasMax: hasMax}, nil
}

func decodeMemoryType(r *reader) (MemoryType, error) {
	min, max, hasMax, shared, err := decodeLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Min: min, Max: max, HasMax: hasMax, Shared: shared}, nil
}

func decodeImportSection(m *Module, r *reader) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		mod, err := r.name()
		if err != nil {
			return err
		}
		name, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.byte()
		if err != nil {
			return err
		}
		imp := Import{Module: mod, Name: name, Kind: kind}
		switch kind {
		case ExternFunc:
			idx, err := r.u32()
			if err != nil {
				return err
			}
			imp.TypeIndex = idx
			m.ImportedFuncCount++
		case ExternTable:
			tt, err := decodeTableType(r)
			if err != nil {
				return err
			}
			imp.Table = tt
			m.ImportedTableCount++
		case ExternMemory:
			mt, err := decodeMemoryType(r)
			if err != nil {
				return err
			}
			imp.Memory = mt
			m.ImportedMemoryCount++
		case ExternGlobal:
			vt, err := r.valType()
			if err != nil {
				return err
			}
			mutByte, err := r.byte()
			if err != nil {
				return err
			}
			imp.Global = Global{Type: vt, Mutable: mutByte == 1, IsImported: true}
			m.ImportedGlobalCount++
		case ExternTag:
			_, err := r.byte() // attribute, always 0
			if err != nil {
				return err
			}
			idx, err := r.u32()
			if err != nil {
				return err
			}
			imp.TypeIndex = idx
			m.ImportedTagCount++
		default:
			return fmt.Errorf("import %d: unknown kind %d", i, kind)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func decodeFunctionSection(m *Module, r *reader) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	m.FuncTypeIndices = make([]Index, count)
	for i := range m.FuncTypeIndices {
		idx, err := r.u32()
		if err != nil {
			return err
		}
		m.FuncTypeIndices[i] = idx
	}
	return nil
}

func decodeTableSection(m *Module, r *reader) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	m.Tables = make([]TableType, count)
	for i := range m.Tables {
		tt, err := decodeTableType(r)
		if err != nil {
			return err
		}
		m.Tables[i] = tt
	}
	return nil
}

func decodeMemorySection(m *Module, r *reader) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	m.Memories = make([]MemoryType, count)
	for i := range m.Memories {
		mt, err := decodeMemoryType(r)
		if err != nil {
			return err
		}
		m.Memories[i] = mt
	}
	return nil
}

func decodeTagSection(m *Module, r *reader) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	m.Tags = make([]TagType, count)
	for i := range m.Tags {
		if _, err := r.byte(); err != nil { // attribute
			return err
		}
		idx, err := r.u32()
		if err != nil {
			return err
		}
		if int(idx) < len(m.Types) {
			m.Tags[i] = TagType{Type: m.Types[idx]}
		}
	}
	return nil
}

func decodeGlobalSection(m *Module, r *reader) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	m.Globals = make([]Global, count)
	for i := range m.Globals {
		vt, err := r.valType()
		if err != nil {
			return err
		}
		mutByte, err := r.byte()
		if err != nil {
			return err
		}
		expr, err := decodeExpr(m, r)
		if err != nil {
			return err
		}
		m.Globals[i] = Global{Type: vt, Mutable: mutByte == 1, InitExpr: expr}
	}
	return nil
}

func decodeExportSection(m *Module, r *reader) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	m.Exports = make([]Export, count)
	for i := range m.Exports {
		name, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.byte()
		if err != nil {
			return err
		}
		idx, err := r.u32()
		if err != nil {
			return err
		}
		m.Exports[i] = Export{Name: name, Kind: kind, Index: idx}
	}
	return nil
}

func decodeElementSection(m *Module, r *reader) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	m.Elements = make([]ElementSegment, count)
	for i := range m.Elements {
		flags, err := r.u32()
		if err != nil {
			return err
		}
		seg := ElementSegment{}
		switch flags {
		case 0:
			expr, err := decodeExpr(m, r)
			if err != nil {
				return err
			}
			seg.OffsetExpr = expr
			seg.Init, err = decodeFuncIndexVec(r)
			if err != nil {
				return err
			}
		case 1:
			seg.Passive = true
			if _, err := r.byte(); err != nil { // elemkind
				return err
			}
			seg.Init, err = decodeFuncIndexVec(r)
			if err != nil {
				return err
			}
		case 2:
			idx, err := r.u32()
			if err != nil {
				return err
			}
			seg.TableIndex = idx
			expr, err := decodeExpr(m, r)
			if err != nil {
				return err
			}
			seg.OffsetExpr = expr
			if _, err := r.byte(); err != nil {
				return err
			}
			seg.Init, err = decodeFuncIndexVec(r)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("element %d: unsupported flags %d", i, flags)
		}
		m.Elements[i] = seg
	}
	return nil
}

func decodeFuncIndexVec(r *reader) ([]Index, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]Index, n)
	for i := range out {
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func decodeDataSection(m *Module, r *reader) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	m.Data = make([]DataSegment, count)
	for i := range m.Data {
		flags, err := r.u32()
		if err != nil {
			return err
		}
		seg := DataSegment{}
		switch flags {
		case 0:
			expr, err := decodeExpr(m, r)
			if err != nil {
				return err
			}
			seg.OffsetExpr = expr
		case 1:
			seg.Passive = true
		case 2:
			idx, err := r.u32()
			if err != nil {
				return err
			}
			seg.MemoryIndex = idx
			expr, err := decodeExpr(m, r)
			if err != nil {
				return err
			}
			seg.OffsetExpr = expr
		default:
			return fmt.Errorf("data %d: unsupported flags %d", i, flags)
		}
		n, err := r.u32()
		if err != nil {
			return err
		}
		init, err := r.bytesN(int(n))
		if err != nil {
			return err
		}
		seg.Init = append([]byte(nil), init...)
		m.Data[i] = seg
	}
	return nil
}

func decodeCodeSection(m *Module, r *reader) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	m.Code = make([]Code, count)
	for i := range m.Code {
		size, err := r.u32()
		if err != nil {
			return err
		}
		bodyEnd := r.pos + int(size)
		localDeclCount, err := r.u32()
		if err != nil {
			return err
		}
		var locals []ValType
		for d := uint32(0); d < localDeclCount; d++ {
			n, err := r.u32()
			if err != nil {
				return err
			}
			vt, err := r.valType()
			if err != nil {
				return err
			}
			for k := uint32(0); k < n; k++ {
				locals = append(locals, vt)
			}
		}
		body, err := decodeFunctionBody(m, r)
		if err != nil {
			return err
		}
		m.Code[i] = Code{Locals: locals, Body: body}
		r.pos = bodyEnd
	}
	return nil
}

// decodeExpr decodes a constant expression (global init, offset expr): a flat
// instruction stream terminated by a single top-level End, which is included in
// the returned slice.
func decodeExpr(m *Module, r *reader) ([]Instruction, error) {
	return decodeInstructionsToDepthZero(m, r)
}

// decodeFunctionBody decodes a function body's instruction stream, which is an
// implicit block (depth starts at 1) terminated by the matching End.
func decodeFunctionBody(m *Module, r *reader) ([]Instruction, error) {
	return decodeInstructionsToDepthZero(m, r)
}

func decodeInstructionsToDepthZero(m *Module, r *reader) ([]Instruction, error) {
	var out []Instruction
	depth := 1
	for {
		instr, err := decodeInstruction(m, r)
		if err != nil {
			return nil, err
		}
		out = append(out, instr)
		switch instr.Opcode {
		case OpBlock, OpLoop, OpIf, OpTry:
			depth++
		case OpEnd:
			depth--
			if depth == 0 {
				return out, nil
			}
		}
	}
}

func decodeInstruction(m *Module, r *reader) (Instruction, error) {
	op, err := r.byte()
	if err != nil {
		return Instruction{}, err
	}
	switch Opcode(op) {
	case OpBlock, OpLoop, OpIf, OpTry:
		bt, err := r.i64()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: BlockImm{BlockType: bt}}, nil
	case OpElse, OpEnd, OpUnreachable, OpNop, OpReturn, OpDrop, OpSelect,
		OpRefIsNull, OpRefEq, OpCatchAll, OpRefAsNonNull, OpRethrow:
		return Instruction{Opcode: Opcode(op)}, nil
	case OpBr, OpBrIf:
		d, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: BranchImm{Depth: d}}, nil
	case OpBrTable:
		n, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		targets := make([]uint32, n)
		for i := range targets {
			targets[i], err = r.u32()
			if err != nil {
				return Instruction{}, err
			}
		}
		def, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: BrTableImm{Targets: targets, Default: def}}, nil
	case OpCall:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: CallImm{FuncIndex: idx}}, nil
	case OpCallIndirect:
		typeIdx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		tableIdx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: CallIndirectImm{TypeIndex: typeIdx, TableIndex: tableIdx}}, nil
	case OpCallRef:
		typeIdx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: CallRefImm{TypeIndex: typeIdx}}, nil
	case OpThrow:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: TagImm{TagIndex: idx}}, nil
	case OpCatch:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: TagImm{TagIndex: idx}}, nil
	case OpLocalGet, OpLocalSet, OpLocalTee:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: LocalImm{LocalIndex: idx}}, nil
	case OpGlobalGet, OpGlobalSet:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: GlobalImm{GlobalIndex: idx}}, nil
	case OpTableGet, OpTableSet:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: TableImm{TableIndex: idx}}, nil
	case OpRefNull:
		vt, err := r.valType()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: RefTypeImm{Type: vt}}, nil
	case OpRefFunc:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: CallImm{FuncIndex: idx}}, nil
	case OpSelectType:
		types, err := decodeValTypeVec(r)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: SelectImm{Types: types}}, nil
	case OpI32Const:
		v, err := r.i32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: I32Imm{Value: v}}, nil
	case OpI64Const:
		v, err := r.i64()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: I64Imm{Value: v}}, nil
	case OpF32Const:
		v, err := r.f32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: F32Imm{Value: v}}, nil
	case OpF64Const:
		v, err := r.f64bits()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: F64Imm{Value: v}}, nil
	case OpMemorySize, OpMemoryGrow:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: Opcode(op), Imm: MemArgImm{MemIdx: idx}}, nil
	case 0xFC:
		return decodeMiscInstruction(r)
	case 0xFD:
		return decodeSIMDInstruction(r)
	case 0xFE:
		return decodeAtomicInstruction(r)
	case 0xFB:
		return decodeGCInstruction(r)
	default:
		if isLoadStoreOpcode(Opcode(op)) {
			align, err := r.u32()
			if err != nil {
				return Instruction{}, err
			}
			offset, err := r.u32()
			if err != nil {
				return Instruction{}, err
			}
			return Instruction{Opcode: Opcode(op), Imm: MemArgImm{Offset: offset, Align: align}}, nil
		}
		if isBareNumericOpcode(Opcode(op)) {
			return Instruction{Opcode: Opcode(op)}, nil
		}
		return Instruction{}, fmt.Errorf("unsupported opcode %#x", op)
	}
}

func isLoadStoreOpcode(op Opcode) bool {
	return op >= OpI32Load && op <= OpI64Store32
}

func isBareNumericOpcode(op Opcode) bool {
	return (op >= OpI32Eqz && op <= OpI64Extend32S) && op < 0x100
}

func decodeMiscInstruction(r *reader) (Instruction, error) {
	sub, err := r.u32()
	if err != nil {
		return Instruction{}, err
	}
	op := Opcode(0xFC00 | sub)
	switch op {
	case OpMemoryInit:
		dataIdx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		memIdx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: MemoryInitImm{DataIndex: dataIdx, MemIdx: memIdx}}, nil
	case OpDataDrop:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: DataIdxImm{DataIndex: idx}}, nil
	case OpMemoryCopy:
		dst, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		src, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: MemoryCopyImm{DstMem: dst, SrcMem: src}}, nil
	case OpMemoryFill:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: MemArgImm{MemIdx: idx}}, nil
	case OpTableInit:
		elemIdx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		tableIdx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: TableInitImm{ElemIndex: elemIdx, TableIndex: tableIdx}}, nil
	case OpElemDrop:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: ElemIdxImm{ElemIndex: idx}}, nil
	case OpTableCopy:
		dst, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		src, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: TableCopyImm{DstTable: dst, SrcTable: src}}, nil
	case OpTableGrow, OpTableSize, OpTableFill:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: TableImm{TableIndex: idx}}, nil
	default:
		// Saturating truncation ops carry no immediate.
		return Instruction{Opcode: op}, nil
	}
}

func decodeSIMDInstruction(r *reader) (Instruction, error) {
	sub, err := r.u32()
	if err != nil {
		return Instruction{}, err
	}
	op := Opcode(0xFD00 | sub)
	switch op {
	case OpV128Load, OpV128Store:
		align, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		offset, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: MemArgImm{Offset: offset, Align: align}}, nil
	case OpV128Const:
		lo, hi, err := r.v128()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: V128Imm{Lo: lo, Hi: hi}}, nil
	case OpI8X16Shuffle:
		lanes, err := r.bytesN(16)
		if err != nil {
			return Instruction{}, err
		}
		cp := append([]byte(nil), lanes...)
		return Instruction{Opcode: op, Imm: cp}, nil
	case OpI32X4ExtractLane, OpI32X4ReplaceLane:
		lane, err := r.byte()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: uint8(lane)}, nil
	default:
		return Instruction{Opcode: op}, nil
	}
}

func decodeAtomicInstruction(r *reader) (Instruction, error) {
	sub, err := r.u32()
	if err != nil {
		return Instruction{}, err
	}
	op := Opcode(0xFE00 | sub)
	if op == OpAtomicFence {
		if _, err := r.byte(); err != nil { // reserved
			return Instruction{}, err
		}
		return Instruction{Opcode: op}, nil
	}
	align, err := r.u32()
	if err != nil {
		return Instruction{}, err
	}
	offset, err := r.u32()
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{Opcode: op, Imm: MemArgImm{Offset: offset, Align: align}}, nil
}

func decodeGCInstruction(r *reader) (Instruction, error) {
	sub, err := r.u32()
	if err != nil {
		return Instruction{}, err
	}
	op := Opcode(0xFB00 | sub)
	switch op {
	case OpStructNew, OpStructNewDefault, OpArrayNew, OpArrayNewDefault:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: GCTypeImm{TypeIndex: idx}}, nil
	case OpStructGet, OpStructSet:
		typeIdx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		fieldIdx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: GCFieldImm{TypeIndex: typeIdx, FieldIndex: fieldIdx}}, nil
	case OpArrayNewFixed:
		typeIdx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		count, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: ArrayNewFixedImm{TypeIndex: typeIdx, Count: count}}, nil
	case OpArrayGet, OpArraySet, OpArrayLen:
		idx, err := r.u32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: GCTypeImm{TypeIndex: idx}}, nil
	case OpRefTestGeneric, OpRefCastGeneric:
		nullable, err := r.byte()
		if err != nil {
			return Instruction{}, err
		}
		ht, err := r.i64()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Opcode: op, Imm: CastImm{Nullable: nullable != 0, HeapType: ht}}, nil
	default:
		return Instruction{Opcode: op}, nil
	}
}
