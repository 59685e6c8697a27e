package varlen

import (
	"github.com/corta-db/jardb/jarerrors"
	"github.com/corta-db/jardb/pager"
)

// Read materializes the full value described by hdr: the inline bytes
// out of region followed by every byte held in hdr's spill chain, in
// order.
func Read(p *pager.Pager, region []byte, hdr Header) ([]byte, error) {
	out := make([]byte, hdr.TotalSize)
	copy(out[:hdr.InPageSize], region[HeaderSize:HeaderSize+hdr.InPageSize])

	offset := hdr.InPageSize
	for id := hdr.SpillHead; id != 0; {
		h, err := p.BorrowShared(p.TagFor(id))
		if err != nil {
			return nil, err
		}
		kind, inPageSize, next := readSpillMeta(h.Bytes())
		if kind != pager.KindSpill {
			h.Release()
			return nil, &jarerrors.WrongPageKind{Expected: pager.KindSpill, Got: kind}
		}
		copy(out[offset:offset+inPageSize], spillBody(h.Bytes())[:inPageSize])
		h.Release()
		offset += inPageSize
		id = next
	}

	return out, nil
}

// Inline returns only the bytes stored directly in region, without
// following the spill chain. It fails with ErrSpilledVar if hdr
// describes a value that spilled, since the caller asked for a view
// that cannot represent the whole value.
func Inline(region []byte, hdr Header) ([]byte, error) {
	if hdr.HasSpilled() {
		return nil, jarerrors.ErrSpilledVar
	}
	out := make([]byte, hdr.InPageSize)
	copy(out, region[HeaderSize:HeaderSize+hdr.InPageSize])
	return out, nil
}

// Chunks calls yield once per contiguous piece of the value (first the
// in-page bytes, then each spill page's body in chain order) without
// ever materializing the whole value into one buffer. Iteration stops
// early, without error, if yield returns false.
func Chunks(p *pager.Pager, region []byte, hdr Header, yield func([]byte) bool) error {
	if hdr.InPageSize > 0 {
		if !yield(region[HeaderSize : HeaderSize+hdr.InPageSize]) {
			return nil
		}
	}

	for id := hdr.SpillHead; id != 0; {
		h, err := p.BorrowShared(p.TagFor(id))
		if err != nil {
			return err
		}
		kind, inPageSize, next := readSpillMeta(h.Bytes())
		if kind != pager.KindSpill {
			h.Release()
			return &jarerrors.WrongPageKind{Expected: pager.KindSpill, Got: kind}
		}
		cont := yield(spillBody(h.Bytes())[:inPageSize])
		h.Release()
		if !cont {
			return nil
		}
		id = next
	}
	return nil
}
