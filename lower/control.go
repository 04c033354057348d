package lower

import (
	"github.com/wasmlower/wasmlower/bytecode"
	"github.com/wasmlower/wasmlower/wasm"
)

func blockDepth(e *Engine, n uint32) *blockEntry {
	idx := len(e.blocks) - 1 - int(n)
	if idx < 0 || idx >= len(e.blocks) {
		panicInternal("branch depth %d out of range (block stack depth %d)", n, len(e.blocks))
	}
	return &e.blocks[idx]
}

// enterBlock pushes a new block-stack entry for block/loop/if/try, reserving
// frame slots for its result positions up front and snapshotting the operand
// stack entries that correspond to its declared parameters (§4.C.2).
func (e *Engine) enterBlock(kind blockKind, sig wasm.FuncType) *blockEntry {
	entryLen := len(e.stack)
	base := entryLen - len(sig.Params)
	if base < 0 {
		panicInternal("block entry: stack has fewer values (%d) than declared params (%d)", entryLen, len(sig.Params))
	}
	paramOffsets := make([]uint32, len(sig.Params))
	for i, v := range e.stack[base:entryLen] {
		paramOffsets[i] = v.position
	}
	resultOffsets := make([]uint32, len(sig.Results))
	for i, t := range sig.Results {
		resultOffsets[i] = e.layout.Allocate(t)
	}
	e.blocks = append(e.blocks, blockEntry{
		kind:     kind,
		sig:      sig,
		savedLen: base,
		loopHead: e.buf.CurrentSize(),
	})
	be := &e.blocks[len(e.blocks)-1]
	be.paramOffsets = paramOffsets
	be.resultOffsets = resultOffsets
	return be
}

// moveTopInto emits moves so that the top len(dests) operand-stack entries
// land at the given destination offsets, in stack order (dests[last] is the
// current top of stack), skipping any value already in place.
func (e *Engine) moveTopInto(dests []uint32) {
	n := len(dests)
	top := e.stack[len(e.stack)-n:]
	for i, dest := range dests {
		src := top[i]
		if src.position == dest {
			continue
		}
		e.emitMove(src.valType, dest, src.position)
	}
}

func (e *Engine) emitMove(t wasm.ValType, dest, src uint32) {
	op := bytecode.OpMove32
	switch {
	case t.IsVector():
		op = bytecode.OpMove128
	case t.Size() == 8:
		op = bytecode.OpMove64
	}
	e.appendIfReachable(bytecode.Record{Op: op, A: dest, B: src})
}

func (e *Engine) appendIfReachable(r bytecode.Record) int {
	if e.suppressed {
		return -1
	}
	e.lastEqzOffset = -1 // any non-fused emission clears the peephole cache
	return e.buf.AppendRecord(r)
}

func (e *Engine) handleBlock(sig wasm.FuncType) {
	e.enterBlock(blockKindBlock, sig)
}

func (e *Engine) handleLoop(sig wasm.FuncType) {
	e.enterBlock(blockKindLoop, sig)
}

func (e *Engine) handleIf(sig wasm.FuncType) {
	cond := e.pop()
	be := e.enterBlock(blockKindIf, sig)
	be.elseJump = e.appendIfReachable(bytecode.Record{Op: bytecode.OpJumpIfFalse, A: cond.position, Value: 0})
}

func (e *Engine) handleElse() {
	be := &e.blocks[len(e.blocks)-1]
	// Converge the then-arm's result into the block's reserved slot before
	// abandoning its stack, exactly as handleEnd does for whichever arm
	// actually reaches the closing `end` (§4.C.2).
	if len(be.resultOffsets) > 0 && !e.suppressed {
		e.moveTopInto(be.resultOffsets)
		e.stack = e.stack[:len(e.stack)-len(be.resultOffsets)]
	}
	// Forward jump to the matching `end`, registered as a fixup on this block.
	jumpOffset := e.appendIfReachable(bytecode.Record{Op: bytecode.OpJump, Value: 0})
	if jumpOffset >= 0 {
		be.fixups = append(be.fixups, fixup{recordOffset: jumpOffset, tailIndex: -1})
	}
	if be.elseJump >= 0 {
		e.buf.PatchBranchDisplacement(be.elseJump, int32(e.buf.CurrentSize()-be.elseJump))
		// The if itself was reachable, so the else arm is reached via the
		// condition's false edge regardless of whether the then-arm ended in
		// unreachable code; any suppression the then-arm raised is local to
		// it and must not leak into the else arm.
		e.suppressed = false
	}
	be.hasElse = true
	// Restore the operand stack to the block's entry shape so the else arm
	// starts from the same snapshot the then-arm did.
	e.stack = e.stack[:be.savedLen]
	for _, off := range be.paramOffsets {
		e.pushAt(paramTypeFor(be, off), off, -1)
	}
}

// paramTypeFor recovers a param's value type from the block's signature by
// position; used only when restoring the snapshot for `else`.
func paramTypeFor(be *blockEntry, off uint32) wasm.ValType {
	for i, o := range be.paramOffsets {
		if o == off && i < len(be.sig.Params) {
			return be.sig.Params[i]
		}
	}
	return wasm.ValI32
}

func (e *Engine) handleEnd() {
	be := e.blocks[len(e.blocks)-1]
	e.blocks = e.blocks[:len(e.blocks)-1]

	if be.kind == blockKindIf && !be.hasElse && be.elseJump >= 0 {
		e.buf.PatchBranchDisplacement(be.elseJump, int32(e.buf.CurrentSize()-be.elseJump))
	}

	if be.kind == blockKindFunc && len(be.fixups) == 0 {
		// Nothing branches to the function scope, so, as for an explicit
		// return, the closing End names the results wherever they sit.
		if !e.suppressed {
			e.appendIfReachable(bytecode.Record{Op: bytecode.OpEnd, Tail: returnTail(e, len(be.sig.Results))})
		}
		e.stack = e.stack[:be.savedLen]
		e.clearSuppressionOnBlockExit()
		return
	}

	if len(be.resultOffsets) > 0 && !e.suppressed {
		e.moveTopInto(be.resultOffsets)
		e.stack = e.stack[:len(e.stack)-len(be.resultOffsets)]
	} else if !e.suppressed {
		// no results: nothing to move, but the body may have left scratch
		// temporaries on the stack that must not leak past the block.
	}
	e.stack = e.stack[:be.savedLen]
	for i, t := range be.sig.Results {
		e.pushAt(t, be.resultOffsets[i], -1)
	}

	endOffset := e.buf.CurrentSize()
	resultOffsetsCopy := append([]int32{}, intsOf(be.resultOffsets)...)
	if be.kind != blockKindTryCatch {
		tail := resultOffsetsCopy
		e.appendIfReachable(bytecode.Record{Op: bytecode.OpEnd, Tail: tail})
	}
	for _, fx := range be.fixups {
		if fx.tailIndex < 0 {
			e.buf.PatchBranchDisplacement(fx.recordOffset, int32(endOffset-fx.recordOffset))
		} else {
			e.buf.PatchBrTableTail(fx.recordOffset, fx.tailIndex, int32(endOffset-fx.recordOffset))
		}
	}
	e.clearSuppressionOnBlockExit()
}

func intsOf(u []uint32) []int32 {
	out := make([]int32, len(u))
	for i, v := range u {
		out[i] = int32(v)
	}
	return out
}

func (e *Engine) handleBr(depth uint32) {
	target := blockDepth(e, depth)
	if target.kind == blockKindLoop {
		e.moveTopInto(target.paramOffsets)
		jumpOffset := e.appendIfReachable(bytecode.Record{Op: bytecode.OpJump, Value: 0})
		if jumpOffset >= 0 {
			e.buf.PatchBranchDisplacement(jumpOffset, int32(target.loopHead-jumpOffset))
		}
	} else {
		e.moveTopInto(target.resultOffsets)
		jumpOffset := e.appendIfReachable(bytecode.Record{Op: bytecode.OpJump, Value: 0})
		if jumpOffset >= 0 {
			target.fixups = append(target.fixups, fixup{recordOffset: jumpOffset, tailIndex: -1})
		}
	}
	e.enterUnreachable()
}

// handleBrIf returns the branch record's offset so the caller (the main
// dispatch loop) can feed it to the I32Eqz peephole.
func (e *Engine) handleBrIf(depth uint32, invert bool) int {
	cond := e.pop()
	target := blockDepth(e, depth)
	op := bytecode.OpJumpIfTrue
	if invert {
		op = bytecode.OpJumpIfFalse
	}
	if target.kind == blockKindLoop {
		// A conditional branch to a loop head cannot safely pre-move values,
		// since the fallthrough path must see the unmoved stack; emit the
		// branch first and let the loop body re-derive state from locals
		// rather than from stack aliasing across the conditional edge.
		jumpOffset := e.appendIfReachable(bytecode.Record{Op: op, A: cond.position, Value: 0})
		if jumpOffset >= 0 {
			e.buf.PatchBranchDisplacement(jumpOffset, int32(target.loopHead-jumpOffset))
		}
		return jumpOffset
	}
	jumpOffset := e.appendIfReachable(bytecode.Record{Op: op, A: cond.position, Value: 0})
	if jumpOffset >= 0 {
		target.fixups = append(target.fixups, fixup{recordOffset: jumpOffset, tailIndex: -1})
	}
	return jumpOffset
}

func (e *Engine) handleBrTable(imm wasm.BrTableImm) {
	cond := e.pop()
	tail := make([]int32, len(imm.Targets)+1)
	r := bytecode.Record{Op: bytecode.OpBrTable, A: cond.position, Tail: tail}
	offset := e.appendIfReachable(r)
	allTargets := append(append([]uint32{}, imm.Targets...), imm.Default)
	for i, depth := range allTargets {
		target := blockDepth(e, depth)
		if offset < 0 {
			continue
		}
		if target.kind == blockKindLoop {
			e.buf.PatchBrTableTail(offset, i, int32(target.loopHead-offset))
		} else {
			target.fixups = append(target.fixups, fixup{recordOffset: offset, tailIndex: i})
		}
	}
	e.enterUnreachable()
}

func (e *Engine) handleReturn(resultTypes []wasm.ValType) {
	// OpEnd's tail just names wherever the results currently sit; unlike a
	// block exit there is no caller-visible "after" position to converge on,
	// so no moves are needed before recording their offsets.
	e.appendIfReachable(bytecode.Record{Op: bytecode.OpEnd, Tail: returnTail(e, len(resultTypes))})
	e.enterUnreachable()
}

func returnTail(e *Engine, n int) []int32 {
	if n == 0 {
		return nil
	}
	top := e.stack[len(e.stack)-n:]
	out := make([]int32, n)
	for i, v := range top {
		out[i] = int32(v.position)
	}
	return out
}

func (e *Engine) handleUnreachable() {
	e.appendIfReachable(bytecode.Record{Op: bytecode.OpUnreachable})
	e.enterUnreachable()
}

// enterUnreachable suppresses further emission until the block depth that
// was open when control became unreachable is closed again (§4.C.6).
func (e *Engine) enterUnreachable() {
	if !e.suppressed {
		e.suppressed = true
		e.suppressDepth = len(e.blocks)
	}
}

func (e *Engine) clearSuppressionOnBlockExit() {
	if e.suppressed && len(e.blocks) < e.suppressDepth {
		e.suppressed = false
	}
}

func (e *Engine) handleTry(sig wasm.FuncType) {
	be := e.enterBlock(blockKindTryCatch, sig)
	be.tryStart = e.buf.CurrentSize()
}

func (e *Engine) handleCatch(tagIndex uint32, tagParams []wasm.ValType, isAll bool) {
	be := &e.blocks[len(e.blocks)-1]
	catchStart := e.buf.CurrentSize()
	tag := tagIndex
	if isAll {
		tag = NoTag
	}
	e.catchInfos = append(e.catchInfos, CatchInfo{
		TryStart:         be.tryStart,
		TryEnd:           catchStart,
		CatchStart:       catchStart,
		StackSizeAtCatch: e.layout.CurrentSize(),
		TagIndex:         tag,
	})
	be.tryStart = catchStart
	e.stack = e.stack[:be.savedLen]
	for _, t := range tagParams {
		e.pushTemp(t)
	}
}

func (e *Engine) handleThrow(tagIndex uint32, paramTypes []wasm.ValType) {
	n := len(paramTypes)
	tail := make([]int32, n)
	if n > 0 {
		top := e.stack[len(e.stack)-n:]
		for i, v := range top {
			tail[i] = int32(v.position)
		}
		e.stack = e.stack[:len(e.stack)-n]
	}
	e.appendIfReachable(bytecode.Record{Op: bytecode.OpThrow, Value: uint64(tagIndex), Tail: tail})
	e.enterUnreachable()
}
