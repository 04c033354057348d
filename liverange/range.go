package liverange

import "github.com/wasmlower/wasmlower/bytecode"

// Range is one original frame slot's observed lifetime across a function's
// finalized bytecode (§4.E step 1), discovered by scanning every record's
// declared stack-offset fields via Record.Offsets.
type Range struct {
	OriginalOffset uint32
	Width          uint32 // 8 or 16 bytes, the widest value ever stored here

	start, end      int // byte offsets of the first and last touch
	hasRead         bool
	hasWrite        bool
	readBeforeWrite bool // true if the earliest touch was a read

	// NewOffset is filled in by allocate; meaningless until then.
	NewOffset uint32
}

func (r *Range) touch(recordOffset int, width uint32, kind bytecode.OffsetKind) {
	if width > r.Width {
		r.Width = width
	}
	if !r.hasRead && !r.hasWrite {
		r.start = recordOffset
		r.readBeforeWrite = kind == bytecode.OffsetRead
	}
	r.end = recordOffset
	if kind == bytecode.OffsetRead {
		r.hasRead = true
	} else {
		r.hasWrite = true
	}
}

// needsInit reports whether this range must be initialized by a prepended
// record before the function's own logic runs (§4.E step 3): it is outside
// the fixed parameter region (those slots are initialized by the caller) and
// either its first touch in program order was a read, or it is never
// written at all.
func (r *Range) needsInit(paramsSize uint32) bool {
	if r.OriginalOffset < paramsSize {
		return false
	}
	return r.readBeforeWrite || !r.hasWrite
}

// scanRanges walks buf once, building one Range per distinct original offset
// referenced by any record.
func scanRanges(buf *bytecode.Buffer, size int) (map[uint32]*Range, error) {
	ranges := map[uint32]*Range{}

	offset := 0
	for offset < size {
		r, next, err := buf.DecodeAt(offset)
		if err != nil {
			return nil, err
		}
		for _, ref := range r.Offsets() {
			off, width := fieldValue(&r, ref)
			rg, ok := ranges[off]
			if !ok {
				rg = &Range{OriginalOffset: off}
				ranges[off] = rg
			}
			rg.touch(offset, width, ref.Kind)
		}
		offset = next
	}
	return ranges, nil
}

// fieldValue reads the original offset and value-width a single OffsetRef
// names within r. r is taken by pointer so ref.Value (itself derived from
// (&r).Offsets() at the call site) can be compared by identity against r's
// own fields below.
func fieldValue(r *bytecode.Record, ref bytecode.OffsetRef) (offset uint32, width uint32) {
	if ref.Value != nil {
		return *ref.Value, fieldWidth(r, ref.Value)
	}
	return uint32(r.Tail[ref.Index]), bytecode.PointerSize
}

// fieldWidth returns the byte width of the value the field named by field
// (one of r.A/B/C/D, by address) holds. Every frame slot this repo's
// lowering engine allocates is either a plain word (bytecode.PointerSize) or
// a v128 (16 bytes); most ops share one width across every offset field they
// declare. The exceptions are the short-form vector load/store, whose
// address operand and v128 operand sit in different fields with opposite
// widths between the two ops, and the type-polymorphic Select, whose
// condition (B) is always i32 while its destination and two value operands
// (A, C, D) share whatever width emitSelect recorded in Value.
func fieldWidth(r *bytecode.Record, field *uint32) uint32 {
	switch r.Op {
	case bytecode.OpV128Load:
		if field == &r.A {
			return 16
		}
		return bytecode.PointerSize
	case bytecode.OpV128Store:
		if field == &r.A {
			return bytecode.PointerSize
		}
		return 16
	case bytecode.OpSelect:
		if field == &r.B {
			return bytecode.PointerSize
		}
		return uint32(r.Value)
	case bytecode.OpConst128, bytecode.OpMove128,
		bytecode.OpGlobalGet128, bytecode.OpGlobalSet128,
		bytecode.OpV128Const, bytecode.OpV128Not, bytecode.OpV128And,
		bytecode.OpV128Or, bytecode.OpV128Xor,
		bytecode.OpI32X4Add, bytecode.OpF32X4Add, bytecode.OpI8X16Shuffle:
		return 16
	default:
		return bytecode.PointerSize
	}
}
