// Package frame allocates stack-offset positions within one function's
// activation record: parameters, locals, promoted constants, and temporaries
// (§3 "Frame Layout", §4.B).
package frame

import "github.com/wasmlower/wasmlower/wasm"

// PointerSize mirrors bytecode.PointerSize; frame sizes are always rounded up
// to it so a function's frame can be allocated as a whole number of words.
const PointerSize = 8

// Slot describes one allocated frame position.
type Slot struct {
	Offset uint32
	Type   wasm.ValType
}

// Layout is a bump allocator over a function's frame. Parameters and locals
// are allocated in declaration order as they're discovered; constants and
// temporaries are allocated afterward as the lowering engine requests them.
// Packing (the two-sweep rearrangement of §4.B) is applied once, after the
// initial parameter/local region is known, via Pack.
type Layout struct {
	size uint32
}

// New returns an empty layout, ready to allocate parameters first.
func New() *Layout { return &Layout{} }

// Allocate reserves a slot for a value of the given type at the current bump
// position, padded to the type's natural stack-allocated size (8 bytes for
// everything except v128, which gets 16), and returns its offset.
func (l *Layout) Allocate(t wasm.ValType) uint32 {
	size := stackSize(t)
	l.size = alignTo(l.size, size)
	offset := l.size
	l.size += size
	return offset
}

// SetStart rewinds the bump cursor to offset, e.g. after the preprocess pass
// decides to reorder the local region (§4.B "locals may be reordered"). The
// caller is responsible for re-issuing Allocate calls for everything at or
// past offset; the layout does not track which slots those were.
func (l *Layout) SetStart(offset uint32) { l.size = offset }

// CurrentSize returns the frame's size so far, in bytes.
func (l *Layout) CurrentSize() uint32 { return l.size }

// FinalSize rounds the frame's size up to a whole number of pointer-sized
// words, matching the bytecode buffer's own alignment discipline.
func (l *Layout) FinalSize() uint32 {
	return uint32(alignTo(l.size, PointerSize))
}

func stackSize(t wasm.ValType) uint32 {
	if t.IsVector() {
		return 16
	}
	return 8 // every scalar, including i32/f32, gets a full word-aligned slot pre-packing
}

func alignTo(n uint32, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

// PackingThreshold is the frame size (in bytes) above which two-sweep packing
// kicks in (§4.B: "triggered when initial layout exceeds a threshold").
const PackingThreshold = 256

// Pack performs the two-sweep rearrangement over a set of local slots
// discovered during preprocessing: word-aligned-or-alignment-required types
// first, densely packed by natural size afterward. It returns a new
// offset for each input slot, in the same order, starting at startOffset.
func Pack(types []wasm.ValType, startOffset uint32) []uint32 {
	offsets := make([]uint32, len(types))
	cursor := startOffset

	// Sweep 1: word-aligned sized types (8 or 16 bytes) — i64/f64/refs/v128.
	for i, t := range types {
		if t.Size() >= 8 {
			cursor = alignTo(cursor, t.Size())
			offsets[i] = cursor
			cursor += t.Size()
		}
	}
	// Sweep 2: the remainder, packed tightly by natural size (i32/f32 = 4 bytes).
	for i, t := range types {
		if t.Size() < 8 {
			offsets[i] = cursor
			cursor += t.Size()
		}
	}
	return offsets
}
