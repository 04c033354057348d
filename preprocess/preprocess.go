// Package preprocess implements the first, emission-suppressed walk over a
// function body (§4.D): it discovers which locals are read before any
// definite write, ranks observed constants by reference count for promotion,
// and records per-local usage ranges (the live-range optimizer does not use
// them; it rescans the finished bytecode). The
// Lowering Engine runs this walk once per function before its real emitting
// pass and feeds the resulting Metadata back in for the second pass.
package preprocess

import "github.com/wasmlower/wasmlower/wasm"

// UsageRange is one contiguous read-or-write span of a local, in source-byte
// (here: source-instruction-index) coordinates.
type UsageRange struct {
	Start, End int
	Write      bool
}

// LocalInfo is the preprocess pass's findings for a single local index.
type LocalInfo struct {
	Ranges                     []UsageRange
	NeedsExplicitInitOnStartup bool
}

// ConstKey identifies a constant value for reference-counting purposes,
// independent of where in the function it was observed.
type ConstKey struct {
	Type wasm.ValType
	Bits uint64
	High uint64 // second word, used only for v128
}

// ConstInfo is one candidate for constant promotion (§4.C.1 "Constant
// sharing"): a distinct value and how many times lowering would otherwise
// re-emit it.
type ConstInfo struct {
	Key      ConstKey
	RefCount int
}

// Metadata is the preprocess pass's complete output for one function body.
type Metadata struct {
	Locals            []LocalInfo
	PromotedConstants []ConstInfo // ranked, truncated to the promotion budget
}

// Collector accumulates one function body's usage data across a single
// linear walk. It intentionally does not build a control-flow graph: like
// the source it is grounded on, it is a textual forward scan, so its
// "definitely written before first read" determination is a conservative
// approximation that is invalidated (see OnBranch) rather than proven sound
// across joins — matching §4.D's "boundary... invalidated across any branch
// whose target has not yet been resolved."
type Collector struct {
	locals      []LocalInfo
	everWritten []bool
	branchSeen  []bool // per local: was it first written only after a branch was seen?
	seenBranch  bool
	pos         int

	constRefs map[ConstKey]int
	constSeen []ConstKey // first-seen order, for stable tie-breaking at rank time
}

// NewCollector returns a collector ready to walk a function with the given
// number of local variables (excluding parameters, which are never subject
// to needsExplicitInitOnStartup since the caller always supplies them).
func NewCollector(numLocals int) *Collector {
	return &Collector{
		locals:      make([]LocalInfo, numLocals),
		everWritten: make([]bool, numLocals),
		branchSeen:  make([]bool, numLocals),
		constRefs:   make(map[ConstKey]int),
	}
}

// Advance moves the collector's source-position cursor forward by one
// instruction; call once per decoded Wasm instruction regardless of whether
// it touches a local or constant.
func (c *Collector) Advance() { c.pos++ }

// OnBranch marks that a branch instruction (br/br_if/br_table, or a block
// boundary that introduces a join) has been seen. Per §4.D, any
// "definitely written" claim recorded only after this point is not trusted
// to dominate a later read once further branches are possible.
func (c *Collector) OnBranch() { c.seenBranch = true }

// OnLocalRead records a read of local idx. If the local has no write
// recorded yet — or its only write was observed after a branch boundary —
// it is marked as needing an explicit zero-init at function entry.
func (c *Collector) OnLocalRead(idx int) {
	if idx >= len(c.locals) {
		return
	}
	if !c.everWritten[idx] || c.branchSeen[idx] {
		c.locals[idx].NeedsExplicitInitOnStartup = true
	}
	c.locals[idx].Ranges = append(c.locals[idx].Ranges, UsageRange{Start: c.pos, End: c.pos, Write: false})
}

// OnLocalWrite records a write of local idx (local.set or the write half of
// local.tee).
func (c *Collector) OnLocalWrite(idx int) {
	if idx >= len(c.locals) {
		return
	}
	if !c.everWritten[idx] {
		c.everWritten[idx] = true
		c.branchSeen[idx] = c.seenBranch
	}
	c.locals[idx].Ranges = append(c.locals[idx].Ranges, UsageRange{Start: c.pos, End: c.pos, Write: true})
}

// OnConst records one occurrence of a constant value, for reference-count
// based promotion ranking.
func (c *Collector) OnConst(t wasm.ValType, bits, high uint64) {
	key := ConstKey{Type: t, Bits: bits, High: high}
	if _, ok := c.constRefs[key]; !ok {
		c.constSeen = append(c.constSeen, key)
	}
	c.constRefs[key]++
}

// Finish ranks observed constants by reference count (ties broken by first
// occurrence, for determinism — §8 property 8, idempotence) and truncates to
// budget, then returns the complete Metadata. A constant seen exactly once
// has nothing to share, so promoting it would only cost a frame slot and a
// prologue record for no benefit; only repeated constants are candidates.
func (c *Collector) Finish(budget int) Metadata {
	infos := make([]ConstInfo, 0, len(c.constSeen))
	for _, key := range c.constSeen {
		if refs := c.constRefs[key]; refs > 1 {
			infos = append(infos, ConstInfo{Key: key, RefCount: refs})
		}
	}
	// Stable insertion sort by descending ref count: the constant lists here
	// are small (a handful of distinct literals per function), so an O(n^2)
	// stable sort keeps the tie-break (first occurrence order) trivially
	// correct without reaching for sort.SliceStable's comparator indirection.
	for i := 1; i < len(infos); i++ {
		for j := i; j > 0 && infos[j].RefCount > infos[j-1].RefCount; j-- {
			infos[j], infos[j-1] = infos[j-1], infos[j]
		}
	}
	if budget >= 0 && len(infos) > budget {
		infos = infos[:budget]
	}
	return Metadata{Locals: c.locals, PromotedConstants: infos}
}
