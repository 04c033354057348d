// Package lower is the Lowering Engine (§4.C): the single-pass translator
// from a decoded Wasm function body into this repository's internal
// bytecode. It owns the simulated operand stack, the frame layout for one
// function, and the block stack that threads structured-control-flow branch
// fixups.
package lower

import (
	"github.com/wasmlower/wasmlower/bytecode"
	"github.com/wasmlower/wasmlower/frame"
	"github.com/wasmlower/wasmlower/preprocess"
	"github.com/wasmlower/wasmlower/wasm"
)

// CatchInfo is one exception-handler region, emitted per function that uses
// try/catch (§6 "Output").
type CatchInfo struct {
	TryStart, TryEnd, CatchStart int
	StackSizeAtCatch             uint32
	TagIndex                     uint32
}

// NoTag marks a catch_all clause in a CatchInfo.
const NoTag uint32 = 0xFFFFFFFF

// Function is the Lowering Engine's output for one function body.
type Function struct {
	Bytecode    []byte
	FrameSize   uint32
	CatchInfo   []CatchInfo
	HasTryCatch bool

	// ParamsSize is the byte length of the fixed ABI parameter region at the
	// front of the frame (offsets [0, ParamsSize)). The live-range optimizer
	// (package liverange) never reassigns a slot inside this region, since a
	// parameter's incoming value is placed there by the caller's calling
	// convention before this function's bytecode ever runs.
	ParamsSize uint32
}

// vmStackInfo mirrors the source's VMStackInfo (§3 "Lowering state"): a
// simulated operand-stack entry. Position is the effective frame offset a
// consumer should read from; it may alias a local's own slot (localIndex >=
// 0) when a local.get's value is consumed without ever being written back
// to a different position, letting emitLocalSet/emitLocalTee skip the Move.
type vmStackInfo struct {
	valType    wasm.ValType
	position   uint32
	localIndex int // -1 unless this entry aliases a local directly
}

type blockKind int

const (
	blockKindBlock blockKind = iota
	blockKindLoop
	blockKindIf
	blockKindTryCatch
	blockKindFunc // the function body's own implicit outermost block
)

// fixup is a deferred branch displacement write, resolved when the target
// block's `end` (or, for BrTable, each target independently) becomes known.
type fixup struct {
	recordOffset int
	tailIndex    int // >=0 for a BrTable tail slot; -1 for a plain branch record
}

type blockEntry struct {
	kind      blockKind
	sig       wasm.FuncType
	savedLen int // operand-stack length at block entry, for restoring on exit

	// paramOffsets are the frame positions the block's declared parameters
	// occupied on entry (the targets a backward branch to a loop must
	// refresh); resultOffsets are the frame positions reserved up front for
	// the block's declared results (§4.C.2).
	paramOffsets  []uint32
	resultOffsets []uint32

	loopHead int // loop-only: backward-branch target (byte offset of loop start)
	elseJump int // if-only: the JumpIfFalse record to patch at else/end
	hasElse  bool
	fixups   []fixup

	// try/catch bookkeeping.
	tryStart int
}

// Engine lowers one function body at a time. It is not safe for concurrent
// use; per §5, one lowering operation runs to completion on a single thread.
type Engine struct {
	cfg Config

	module *wasm.Module

	buf    *bytecode.Buffer
	layout *frame.Layout

	stack  []vmStackInfo
	blocks []blockEntry

	catchInfos []CatchInfo

	// lastEqz caches the most recently emitted I32Eqz record's destination
	// and source for the compare+branch fusion peephole (§4.C.5, §9
	// "Peephole state"). lastEqzOffset is >=0 only immediately after such a
	// record, and is invalidated by any other emission (appendIfReachable).
	lastEqzOffset int
	lastEqzDest   uint32
	lastEqzSrc    uint32

	resultTypes []wasm.ValType

	suppressed    bool
	suppressDepth int

	localOffsets []uint32
	localTypes   []wasm.ValType
	promoted     map[preprocess.ConstKey]uint32
	paramsSize   uint32

	singleMemory bool
}

// NewEngine returns an Engine configured by cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// UseModule binds the module an Engine's subsequent LowerFunctionBody calls
// belong to, resolving block signatures, call targets, globals and tables
// against it. Adapters (package adapter) call this once per module before
// lowering any of its functions.
func (e *Engine) UseModule(m *wasm.Module) {
	e.module = m
}

// LowerFunctionBody runs the full two-pass pipeline (§4.C.7) over one
// function body and returns its finalized Function. body must already be
// decoded (wasm.Decode) and assumed valid; singleMemory reports whether the
// owning module declares exactly one memory, enabling the short load/store
// peephole.
func (e *Engine) LowerFunctionBody(sig wasm.FuncType, localTypes []wasm.ValType, body []wasm.Instruction, singleMemory bool) *Function {
	collector := preprocess.NewCollector(len(localTypes))
	e.collect(sig, localTypes, body, collector)
	meta := collector.Finish(e.cfg.maxPromotedConstants)

	e.emit(sig, localTypes, body, singleMemory, meta)

	fn := &Function{
		Bytecode:   e.buf.Bytes(),
		FrameSize:  e.layout.FinalSize(),
		ParamsSize: e.paramsSize,
	}
	if len(e.catchInfos) > 0 {
		fn.CatchInfo = e.catchInfos
		fn.HasTryCatch = true
	}
	return fn
}

func (e *Engine) reset() {
	e.buf = bytecode.NewBuffer()
	e.layout = frame.New()
	e.stack = e.stack[:0]
	e.blocks = e.blocks[:0]
	e.catchInfos = nil
	e.lastEqzOffset = -1
	e.suppressed = false
	e.suppressDepth = 0
}

// allocateParamsAndLocals reserves one frame slot per parameter and declared
// local, params first and in the calling convention's fixed order, then
// applies the two-sweep packing rearrangement (§4.B) to the local region
// alone when it's enabled and the naive layout grew past PackingThreshold.
func (e *Engine) allocateParamsAndLocals(sig wasm.FuncType, localTypes []wasm.ValType) {
	e.localTypes = append(append([]wasm.ValType{}, sig.Params...), localTypes...)
	e.localOffsets = make([]uint32, len(e.localTypes))
	numParams := len(sig.Params)
	for i := 0; i < numParams; i++ {
		e.localOffsets[i] = e.layout.Allocate(e.localTypes[i])
	}

	localsStart := e.layout.CurrentSize()
	e.paramsSize = localsStart
	locals := e.localTypes[numParams:]
	for i, t := range locals {
		e.localOffsets[numParams+i] = e.layout.Allocate(t)
	}

	if e.cfg.packing && e.layout.CurrentSize() > frame.PackingThreshold {
		packed := frame.Pack(locals, localsStart)
		copy(e.localOffsets[numParams:], packed)
		end := localsStart
		for i, t := range locals {
			if off := packed[i] + t.Size(); off > end {
				end = off
			}
		}
		e.layout.SetStart(end)
	}
}

func (e *Engine) pop() vmStackInfo {
	if len(e.stack) == 0 {
		panicInternal("operand stack underflow")
	}
	top := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return top
}

func (e *Engine) pushAt(t wasm.ValType, pos uint32, localIndex int) {
	e.stack = append(e.stack, vmStackInfo{valType: t, position: pos, localIndex: localIndex})
}

func (e *Engine) pushTemp(t wasm.ValType) uint32 {
	off := e.layout.Allocate(t)
	e.pushAt(t, off, -1)
	return off
}
