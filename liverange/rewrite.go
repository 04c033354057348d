package liverange

import "github.com/wasmlower/wasmlower/bytecode"

// rewrite re-decodes buf a second time and substitutes every stack-offset
// field and Tail entry in place, using each range's OriginalOffset ->
// NewOffset mapping (§4.E step 5). BrTable's displacement tail is skipped
// entirely by Record.Offsets, so it is never touched here.
func rewrite(buf *bytecode.Buffer, size int, ranges map[uint32]*Range) error {
	offset := 0
	for offset < size {
		r, next, err := buf.DecodeAt(offset)
		if err != nil {
			return err
		}
		refs := r.Offsets()
		if len(refs) == 0 {
			offset = next
			continue
		}
		changed := false
		for _, ref := range refs {
			old, _ := fieldValue(&r, ref)
			rg, ok := ranges[old]
			if !ok || rg.NewOffset == old {
				continue
			}
			if ref.Value != nil {
				*ref.Value = rg.NewOffset
			} else {
				r.Tail[ref.Index] = int32(rg.NewOffset)
			}
			changed = true
		}
		if changed {
			buf.OverwriteRecordAt(offset, r)
		}
		offset = next
	}
	return nil
}
