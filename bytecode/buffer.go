package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Buffer is one function's finalized (or in-progress) bytecode: a packed byte
// stream of Records addressed by byte offset from the buffer's own start.
// The lowering engine borrows a Buffer for the duration of one function body
// (§3, "Ownership"); the live-range optimizer mutates it in place afterward.
type Buffer struct {
	b []byte
}

// NewBuffer returns an empty buffer ready to receive records.
func NewBuffer() *Buffer { return &Buffer{} }

// WrapBytes reconstructs a Buffer around a previously persisted byte stream,
// e.g. one returned by Bytes after a function's bytecode was loaded back
// from storage, so it can be walked again with DecodeAt.
func WrapBytes(b []byte) *Buffer { return &Buffer{b: b} }

// CurrentSize returns the buffer's current length in bytes — the offset the
// next AppendRecord call will return.
func (buf *Buffer) CurrentSize() int { return len(buf.b) }

// Bytes exposes the raw encoded buffer, e.g. for persisting alongside a
// function's frame size and catch-info vector.
func (buf *Buffer) Bytes() []byte { return buf.b }

// AppendRecord encodes r at the buffer's current end and returns the byte
// offset of its header (the record's "address"). Per invariant 2, offsets
// across a buffer are monotonically increasing.
func (buf *Buffer) AppendRecord(r Record) int {
	offset := len(buf.b)
	size := r.Size()
	enc := make([]byte, size)
	encodeRecord(enc, r)
	buf.b = append(buf.b, enc...)
	return offset
}

// OverwriteRecordAt re-encodes r in place at offset, where r's Op and Tail
// length must match whatever was previously decoded from that offset, so the
// encoded size is unchanged. Used by the live-range optimizer (§4.E step 5)
// to substitute a record's stack-offset fields with their reassigned
// positions without disturbing anything else in the buffer.
func (buf *Buffer) OverwriteRecordAt(offset int, r Record) {
	encodeRecord(buf.b[offset:offset+r.Size()], r)
}

// PushRecordToFront prepends r to the buffer, shifting every existing record
// forward by r's size. Used by the lowering engine and the live-range
// optimizer to insert constant and zero-initialization prologues (§4.E step
// 6). Branch displacements are relative to their own record and stay valid;
// callers are responsible for shifting any absolute catch-info offsets by
// the same delta, since the buffer has no notion of them.
func (buf *Buffer) PushRecordToFront(r Record) int {
	size := r.Size()
	enc := make([]byte, size)
	encodeRecord(enc, r)
	buf.b = append(enc, buf.b...)
	return 0
}

// PeekOp returns the opcode of the record at offset without decoding its body.
func (buf *Buffer) PeekOp(offset int) Op {
	return Op(binary.LittleEndian.Uint16(buf.b[offset:]))
}

// DecodeAt decodes the record starting at offset and returns it along with
// the offset of the next record, satisfying §8 property 7 (a cursor walk via
// repeated DecodeAt calls lands exactly at the buffer end).
func (buf *Buffer) DecodeAt(offset int) (Record, int, error) {
	if offset < 0 || offset >= len(buf.b) {
		return Record{}, 0, fmt.Errorf("bytecode: offset %d out of range [0,%d)", offset, len(buf.b))
	}
	op := Op(binary.LittleEndian.Uint16(buf.b[offset:]))
	tailCount := binary.LittleEndian.Uint32(buf.b[offset+4:])
	info, ok := opTable[op]
	if !ok {
		info = opInfo{}
	}
	r := Record{Op: op}
	p := offset + headerSize
	fields := [4]*uint32{&r.A, &r.B, &r.C, &r.D}
	for i := range info.offsetRoles {
		*fields[i] = binary.LittleEndian.Uint32(buf.b[p:])
		p += 4
	}
	if info.value {
		r.Value = binary.LittleEndian.Uint64(buf.b[p:])
		p += 8
	}
	if info.high {
		r.High = binary.LittleEndian.Uint64(buf.b[p:])
		p += 8
	}
	if info.memArg {
		r.MemIdx = binary.LittleEndian.Uint32(buf.b[p:])
		p += 4
		r.Align = binary.LittleEndian.Uint32(buf.b[p:])
		p += 4
	}
	if info.tail {
		r.Tail = make([]int32, tailCount)
		for i := range r.Tail {
			r.Tail[i] = int32(binary.LittleEndian.Uint32(buf.b[p:]))
			p += 4
		}
	}
	return r, offset + r.Size(), nil
}

// PatchBranchDisplacement overwrites the Value field of the branch record at
// offset with displacement, resolving a forward or loop-header fixup without
// re-encoding the whole record (§4.C.3).
func (buf *Buffer) PatchBranchDisplacement(offset int, displacement int32) {
	p := offset + headerSize + branchOffsetFieldBytes(buf.PeekOp(offset))
	binary.LittleEndian.PutUint64(buf.b[p:], uint64(uint32(displacement)))
}

// branchOffsetFieldBytes returns how many bytes of plain offset fields
// precede the Value field for a given branch-family op, so
// PatchBranchDisplacement can locate it without a full decode.
func branchOffsetFieldBytes(op Op) int {
	info, ok := opTable[op]
	if !ok {
		return 0
	}
	return len(info.offsetRoles) * 4
}

// PatchBrTableTail overwrites the i'th displacement in a BrTable record's
// tail (used once each target block's `end` resolves its fixup).
func (buf *Buffer) PatchBrTableTail(offset int, i int, displacement int32) {
	op := buf.PeekOp(offset)
	info := opTable[op]
	p := offset + headerSize + len(info.offsetRoles)*4
	if info.value {
		p += 8
	}
	if info.high {
		p += 8
	}
	if info.memArg {
		p += 8
	}
	p += i * 4
	binary.LittleEndian.PutUint32(buf.b[p:], uint32(displacement))
}

func encodeRecord(out []byte, r Record) {
	binary.LittleEndian.PutUint16(out[0:], uint16(r.Op))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(r.Tail)))

	info, ok := opTable[r.Op]
	if !ok {
		return
	}
	p := headerSize
	fields := [4]uint32{r.A, r.B, r.C, r.D}
	for i := range info.offsetRoles {
		binary.LittleEndian.PutUint32(out[p:], fields[i])
		p += 4
	}
	if info.value {
		binary.LittleEndian.PutUint64(out[p:], r.Value)
		p += 8
	}
	if info.high {
		binary.LittleEndian.PutUint64(out[p:], r.High)
		p += 8
	}
	if info.memArg {
		binary.LittleEndian.PutUint32(out[p:], r.MemIdx)
		p += 4
		binary.LittleEndian.PutUint32(out[p:], r.Align)
		p += 4
	}
	if info.tail {
		for _, v := range r.Tail {
			binary.LittleEndian.PutUint32(out[p:], uint32(v))
			p += 4
		}
	}
}
