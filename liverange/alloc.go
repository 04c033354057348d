package liverange

// interval is a free subinterval of the frame available for reuse, [start, end).
type interval struct {
	start, end uint32
}

// allocate assigns a NewOffset to every range in order of first touch (§4.E
// step 4: linear scan over free frame subintervals). Normal ranges (both read
// and written somewhere) are packed individually; "unused read" ranges (read
// but never written) and "unused write" ranges (written but never read) each
// collapse onto one shared scratch slot per group, since none of them are
// ever live at the same time as another range that actually carries a value
// across the group — nothing observes their contents beyond a single use.
//
// paramsSize excludes [0, paramsSize) from reassignment; ranges whose
// OriginalOffset falls in that region keep it unchanged. It returns the
// reassigned frame's final size.
func allocate(ranges map[uint32]*Range, paramsSize uint32) uint32 {
	var normal []*Range
	var unusedReads []*Range
	var unusedWrites []*Range

	for _, rg := range ranges {
		if rg.OriginalOffset < paramsSize {
			rg.NewOffset = rg.OriginalOffset
			continue
		}
		switch {
		case rg.hasRead && rg.hasWrite:
			normal = append(normal, rg)
		case rg.hasRead:
			unusedReads = append(unusedReads, rg)
		default:
			unusedWrites = append(unusedWrites, rg)
		}
	}

	next := paramsSize

	if len(unusedReads) > 0 {
		var slot uint32
		slot, next = bump(next, maxWidth(unusedReads))
		for _, rg := range unusedReads {
			rg.NewOffset = slot
		}
	}
	if len(unusedWrites) > 0 {
		var slot uint32
		slot, next = bump(next, maxWidth(unusedWrites))
		for _, rg := range unusedWrites {
			rg.NewOffset = slot
		}
	}

	sortByStart(normal)

	type active struct {
		end  int
		slot uint32
		w    uint32
	}
	var live []active
	var free []interval

	release := func(upTo int) {
		kept := live[:0]
		for _, a := range live {
			if a.end <= upTo {
				free = append(free, interval{start: a.slot, end: a.slot + a.w})
			} else {
				kept = append(kept, a)
			}
		}
		live = kept
	}

	for _, rg := range normal {
		// End events at or before this range's own start are processed first,
		// so a just-freed interval is available for this same record's new
		// destination range (§4.E step 4, "end before begin at equal offsets").
		release(rg.start)

		slot, remaining, ok := takeFree(free, rg.Width)
		if ok {
			free = remaining
		} else {
			slot, next = bump(next, rg.Width)
		}
		rg.NewOffset = slot
		live = append(live, active{end: rg.end, slot: slot, w: rg.Width})
	}

	return alignUp(next)
}

func maxWidth(rs []*Range) uint32 {
	var w uint32
	for _, rg := range rs {
		if rg.Width > w {
			w = rg.Width
		}
	}
	return w
}

func bump(cursor, width uint32) (slot, newCursor uint32) {
	slot = alignUpTo(cursor, width)
	return slot, slot + width
}

// takeFree finds the first free interval (ascending by start) wide enough
// to hold width bytes, removes (and shrinks) it from the free list, and
// returns the allocated slot.
func takeFree(free []interval, width uint32) (slot uint32, remaining []interval, ok bool) {
	best := -1
	for i, iv := range free {
		start := alignUpTo(iv.start, width)
		if start+width <= iv.end {
			if best == -1 || iv.start < free[best].start {
				best = i
			}
		}
	}
	if best == -1 {
		return 0, free, false
	}
	iv := free[best]
	start := alignUpTo(iv.start, width)
	out := make([]interval, 0, len(free))
	for i, other := range free {
		if i == best {
			if start > iv.start {
				out = append(out, interval{start: iv.start, end: start})
			}
			if start+width < iv.end {
				out = append(out, interval{start: start + width, end: iv.end})
			}
			continue
		}
		out = append(out, other)
	}
	return start, out, true
}

func sortByStart(rs []*Range) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].start < rs[j-1].start; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}

func alignUp(n uint32) uint32 {
	return alignUpTo(n, 8)
}

func alignUpTo(n, align uint32) uint32 {
	if align == 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
