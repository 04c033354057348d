package liverange

import "github.com/wasmlower/wasmlower/bytecode"

// offsetSet is a small set of original frame offsets. Function bodies carry
// at most a few dozen distinct slots, so a map is plenty fast and keeps the
// gen/kill/in/out computation below readable.
type offsetSet map[uint32]bool

func (s offsetSet) clone() offsetSet {
	c := make(offsetSet, len(s))
	for k := range s {
		c[k] = true
	}
	return c
}

func (s offsetSet) addAll(other offsetSet) (changed bool) {
	for k := range other {
		if !s[k] {
			s[k] = true
			changed = true
		}
	}
	return changed
}

// expandAcrossBlocks implements §4.E step 2: compute standard backward
// liveness (gen/kill per block, iterated to a fixpoint over the block
// graph) and widen every range's [start, end) span to cover the full byte
// extent of every block it is live through — not just the bytes between its
// own first and last textual touch, which alone is wrong for a value
// defined before a loop and consumed only on a later iteration.
func expandAcrossBlocks(buf *bytecode.Buffer, size int, ranges map[uint32]*Range) error {
	blocks, err := discoverBlocks(buf, size)
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		return nil
	}

	gen := make([]offsetSet, len(blocks))
	kill := make([]offsetSet, len(blocks))
	for i := range blocks {
		gen[i] = offsetSet{}
		kill[i] = offsetSet{}
	}

	offset := 0
	blockIdx := 0
	for offset < size {
		for blockIdx+1 < len(blocks) && offset >= blocks[blockIdx].end {
			blockIdx++
		}
		r, next, err := buf.DecodeAt(offset)
		if err != nil {
			return err
		}
		for _, ref := range r.Offsets() {
			off, _ := fieldValue(&r, ref)
			if ref.Kind == bytecode.OffsetRead {
				if !kill[blockIdx][off] {
					gen[blockIdx][off] = true
				}
			} else {
				kill[blockIdx][off] = true
			}
		}
		offset = next
	}

	liveIn := make([]offsetSet, len(blocks))
	liveOut := make([]offsetSet, len(blocks))
	for i := range blocks {
		liveIn[i] = offsetSet{}
		liveOut[i] = offsetSet{}
	}

	// liveIn/liveOut only ever grow across iterations (each is recomputed as
	// a union that includes the previous value), so comparing set sizes
	// before and after a sweep is enough to detect the fixpoint.
	for changed := true; changed; {
		changed = false
		for i := len(blocks) - 1; i >= 0; i-- {
			out := offsetSet{}
			for _, s := range blocks[i].succs {
				out.addAll(liveIn[s])
			}
			if len(out) != len(liveOut[i]) {
				changed = true
			}
			liveOut[i] = out

			in := out.clone()
			for k := range kill[i] {
				delete(in, k)
			}
			in.addAll(gen[i])
			if len(in) != len(liveIn[i]) {
				changed = true
			}
			liveIn[i] = in
		}
	}

	for i, b := range blocks {
		for off := range liveIn[i] {
			if rg, ok := ranges[off]; ok && b.start < rg.start {
				rg.start = b.start
			}
		}
		for off := range liveOut[i] {
			if rg, ok := ranges[off]; ok && b.end > rg.end {
				rg.end = b.end
			}
		}
	}
	return nil
}
