// Package adapter binds a decoded WebAssembly module (§4.F) into the Lowering
// Engine's per-function calls. The decoder collaborator this repo uses,
// wasm.Decode, is a batch decoder rather than a streaming callback one: it
// hands back a fully populated *wasm.Module in one call instead of invoking
// one callback per grammar production as it walks the byte stream. This
// package plays the adapter's architectural role against that batch result —
// it still drives the engine exactly once per function body and once per
// constant-expression pseudo-function, in module order, the same work a
// callback-driven adapter would do one callback at a time.
package adapter

import (
	"fmt"

	"github.com/wasmlower/wasmlower/liverange"
	"github.com/wasmlower/wasmlower/lower"
	"github.com/wasmlower/wasmlower/wasm"
)

// FunctionKind distinguishes a ModuleFunction lowered from an actual function
// body in the code section from one synthesized to evaluate a constant
// expression (§4.F: "Global init expressions, element offset expressions,
// data offset expressions... are lowered as if they were zero-parameter,
// single-result functions").
type FunctionKind int

const (
	KindFunction FunctionKind = iota
	KindGlobalInit
	KindElementOffset
	KindDataOffset
)

func (k FunctionKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindGlobalInit:
		return "global-init"
	case KindElementOffset:
		return "element-offset"
	case KindDataOffset:
		return "data-offset"
	default:
		return "unknown"
	}
}

// ModuleFunction is one lowered unit of bytecode, tagged with what it was
// lowered from and its index within that collection (the function index for
// KindFunction, the global/element/data index otherwise).
type ModuleFunction struct {
	Kind  FunctionKind
	Index int
	Type  wasm.FuncType
	*lower.Function
}

// Module is the adapter's output (§6 "Output"): the lowered bytecode for
// every function body plus every constant-expression pseudo-function the
// module needs evaluated at instantiation.
type Module struct {
	Source *wasm.Module

	Functions      []ModuleFunction
	GlobalInits    []ModuleFunction
	ElementOffsets []ModuleFunction
	DataOffsets    []ModuleFunction
}

// Lower decodes nothing itself — m is the already-decoded result of
// wasm.Decode — and drives one lower.Engine, configured once with cfg, across
// every function body and constant expression in module order. Per §5, this
// whole pass runs to completion on one thread; the returned Module owns its
// bytecode buffers independently of m.
func Lower(m *wasm.Module, cfg lower.Config) (*Module, error) {
	engine := lower.NewEngine(cfg)
	engine.UseModule(m)
	singleMemory := m.MemoryCount() == 1

	out := &Module{Source: m}

	for i, code := range m.Code {
		if i >= len(m.FuncTypeIndices) {
			return nil, fmt.Errorf("adapter: code entry %d has no matching function-section type index", i)
		}
		sig := m.Types[m.FuncTypeIndices[i]]
		fn, err := lowerOne(engine, sig, code.Locals, code.Body, singleMemory)
		if err != nil {
			return nil, fmt.Errorf("adapter: function %d: %w", i, err)
		}
		out.Functions = append(out.Functions, ModuleFunction{Kind: KindFunction, Index: i, Type: sig, Function: fn})
	}

	for i, g := range m.Globals {
		sig := wasm.FuncType{Results: []wasm.ValType{g.Type}}
		fn, err := lowerOne(engine, sig, nil, g.InitExpr, singleMemory)
		if err != nil {
			return nil, fmt.Errorf("adapter: global %d init expr: %w", i, err)
		}
		out.GlobalInits = append(out.GlobalInits, ModuleFunction{Kind: KindGlobalInit, Index: i, Type: sig, Function: fn})
	}

	offsetSig := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	for i, seg := range m.Elements {
		if seg.OffsetExpr == nil {
			continue // passive or declared: no offset to evaluate at instantiation
		}
		fn, err := lowerOne(engine, offsetSig, nil, seg.OffsetExpr, singleMemory)
		if err != nil {
			return nil, fmt.Errorf("adapter: element segment %d offset expr: %w", i, err)
		}
		out.ElementOffsets = append(out.ElementOffsets, ModuleFunction{Kind: KindElementOffset, Index: i, Type: offsetSig, Function: fn})
	}

	for i, seg := range m.Data {
		if seg.OffsetExpr == nil {
			continue // passive: no offset to evaluate at instantiation
		}
		fn, err := lowerOne(engine, offsetSig, nil, seg.OffsetExpr, singleMemory)
		if err != nil {
			return nil, fmt.Errorf("adapter: data segment %d offset expr: %w", i, err)
		}
		out.DataOffsets = append(out.DataOffsets, ModuleFunction{Kind: KindDataOffset, Index: i, Type: offsetSig, Function: fn})
	}

	return out, nil
}

// lowerOne runs one function body through the engine and immediately through
// the live-range optimizer (§4.E), matching the data-flow note that the
// optimizer rewrites each function's bytecode in place right after it is
// emitted. liverange imports lower, so lower itself cannot call it; driving
// both from here is what keeps that dependency acyclic.
func lowerOne(engine *lower.Engine, sig wasm.FuncType, localTypes []wasm.ValType, body []wasm.Instruction, singleMemory bool) (*lower.Function, error) {
	fn := engine.LowerFunctionBody(sig, localTypes, body, singleMemory)
	return liverange.Optimize(fn)
}
