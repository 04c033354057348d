// Package liverange is the live-range optimizer (§4.E): a post-pass over one
// function's finalized bytecode that discovers each frame slot's true
// lifetime, repacks lifetimes into a smaller frame via linear-scan
// allocation over reclaimed subintervals, and zero-initializes any slot a
// reassigned range might read before anything in the function body writes
// it.
package liverange

import (
	"github.com/wasmlower/wasmlower/bytecode"
	"github.com/wasmlower/wasmlower/lower"
)

// Optimize rewrites fn's bytecode in place (record fields are overwritten
// inside fn.Bytecode itself; fn's other fields are left untouched) and
// returns the optimized function as a new Function value. The
// parameter region [0, fn.ParamsSize) is never reassigned, and a function
// with no live ranges at all (an empty body) is returned unchanged.
func Optimize(fn *lower.Function) (*lower.Function, error) {
	buf := bytecode.WrapBytes(fn.Bytecode)
	size := len(fn.Bytecode)

	ranges, err := scanRanges(buf, size)
	if err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		return fn, nil
	}

	if err := expandAcrossBlocks(buf, size, ranges); err != nil {
		return nil, err
	}

	frameSize := allocate(ranges, fn.ParamsSize)

	if err := rewrite(buf, size, ranges); err != nil {
		return nil, err
	}

	catchInfos := append([]lower.CatchInfo(nil), fn.CatchInfo...)
	bytecodeOut, shift := prependZeroInits(buf, ranges, fn.ParamsSize)
	if shift > 0 {
		for i := range catchInfos {
			catchInfos[i].TryStart += shift
			catchInfos[i].TryEnd += shift
			catchInfos[i].CatchStart += shift
		}
	}

	out := &lower.Function{
		Bytecode:    bytecodeOut,
		FrameSize:   frameSize,
		CatchInfo:   catchInfos,
		HasTryCatch: fn.HasTryCatch,
		ParamsSize:  fn.ParamsSize,
	}
	return out, nil
}

// prependZeroInits inserts one zero-filling record per distinct reassigned
// slot that needs initializing (§4.E step 6) and returns the updated
// bytecode along with the total number of bytes inserted at the front.
func prependZeroInits(buf *bytecode.Buffer, ranges map[uint32]*Range, paramsSize uint32) ([]byte, int) {
	seen := map[uint32]bool{}
	var toInit []*Range
	for _, rg := range ranges {
		if !rg.needsInit(paramsSize) {
			continue
		}
		if seen[rg.NewOffset] {
			continue
		}
		seen[rg.NewOffset] = true
		toInit = append(toInit, rg)
	}
	if len(toInit) == 0 {
		return buf.Bytes(), 0
	}

	for i := 1; i < len(toInit); i++ {
		for j := i; j > 0 && toInit[j].NewOffset < toInit[j-1].NewOffset; j-- {
			toInit[j], toInit[j-1] = toInit[j-1], toInit[j]
		}
	}

	shift := 0
	for i := len(toInit) - 1; i >= 0; i-- {
		rec := zeroRecord(toInit[i])
		buf.PushRecordToFront(rec)
		shift += rec.Size()
	}
	return buf.Bytes(), shift
}

// zeroRecord builds a full-width zero store for rg's slot. fieldWidth only
// ever reports 8 (a plain word) or 16 (a v128), so Const64 and Const128 are
// the only two cases; Const64 also correctly zeroes a slot that narrower
// records address as i32, since every pre-packing slot is a full word.
func zeroRecord(rg *Range) bytecode.Record {
	if rg.Width == 16 {
		return bytecode.Record{Op: bytecode.OpConst128, A: rg.NewOffset}
	}
	return bytecode.Record{Op: bytecode.OpConst64, A: rg.NewOffset}
}
