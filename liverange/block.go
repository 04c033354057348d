package liverange

import "github.com/wasmlower/wasmlower/bytecode"

// block is one basic block (§4.E step 2): a contiguous run of bytecode that
// a single straight-line execution passes through without a branch landing
// inside it. Blocks are discovered purely from jump and jump-if targets, not
// from the source control-flow structure, since by the time this package
// runs that structure has already been flattened away.
type block struct {
	start, end int // byte offsets, [start, end)
	succs      []int
}

func isBranchOp(op bytecode.Op) bool {
	switch op {
	case bytecode.OpJump, bytecode.OpJumpIfTrue, bytecode.OpJumpIfFalse,
		bytecode.OpJumpIfNull, bytecode.OpJumpIfNonNull,
		bytecode.OpJumpIfCastGeneric, bytecode.OpJumpIfCastDefined,
		bytecode.OpBrTable:
		return true
	}
	return false
}

func fallsThrough(op bytecode.Op) bool {
	switch op {
	case bytecode.OpJump, bytecode.OpBrTable, bytecode.OpUnreachable,
		bytecode.OpThrow, bytecode.OpRethrow:
		return false
	}
	return true
}

// branchTargets returns the absolute byte offsets a branch record at
// recordOffset can transfer control to, decoded from its own displacement
// fields.
func branchTargets(r bytecode.Record, recordOffset int) []int {
	switch r.Op {
	case bytecode.OpBrTable:
		targets := make([]int, len(r.Tail))
		for i, disp := range r.Tail {
			targets[i] = recordOffset + int(disp)
		}
		return targets
	default:
		disp := int32(uint32(r.Value))
		return []int{recordOffset + int(disp)}
	}
}

// discoverBlocks decodes every record in buf once and partitions [0, size)
// into basic blocks, wiring each block's successor edges from its last
// record's branch targets and/or fallthrough.
func discoverBlocks(buf *bytecode.Buffer, size int) ([]block, error) {
	type decoded struct {
		offset, next int
		r            bytecode.Record
	}
	var records []decoded
	boundaries := map[int]bool{0: true}

	offset := 0
	for offset < size {
		r, next, err := buf.DecodeAt(offset)
		if err != nil {
			return nil, err
		}
		records = append(records, decoded{offset: offset, next: next, r: r})
		if isBranchOp(r.Op) {
			boundaries[next] = true
			for _, t := range branchTargets(r, offset) {
				boundaries[t] = true
			}
		}
		offset = next
	}

	sorted := make([]int, 0, len(boundaries))
	for b := range boundaries {
		if b >= 0 && b <= size {
			sorted = append(sorted, b)
		}
	}
	sortInts(sorted)

	blocks := make([]block, 0, len(sorted))
	for i, start := range sorted {
		end := size
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		if end > start {
			blocks = append(blocks, block{start: start, end: end})
		}
	}

	blockAt := func(off int) int {
		lo, hi := 0, len(blocks)
		for lo < hi {
			mid := (lo + hi) / 2
			if blocks[mid].start <= off && off < blocks[mid].end {
				return mid
			}
			if blocks[mid].start > off {
				hi = mid
			} else {
				lo = mid + 1
			}
		}
		return -1
	}

	for i := range blocks {
		var last *decoded
		for j := range records {
			d := &records[j]
			if d.offset >= blocks[i].start && d.offset < blocks[i].end {
				last = d
			}
		}
		if last == nil {
			continue
		}
		if isBranchOp(last.r.Op) {
			for _, t := range branchTargets(last.r, last.offset) {
				if bi := blockAt(t); bi >= 0 {
					blocks[i].succs = append(blocks[i].succs, bi)
				}
			}
		}
		if fallsThrough(last.r.Op) && blocks[i].end < size {
			if bi := blockAt(blocks[i].end); bi >= 0 {
				blocks[i].succs = append(blocks[i].succs, bi)
			}
		}
	}
	return blocks, nil
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
