package varlen

import "github.com/corta-db/jardb/pager"

// Write fills region (a caller-supplied fixed-size slot: HeaderSize
// bytes of Var header followed by the in-page region) with as much of
// value as fits inline, spilling the remainder into a chain of Spill
// pages allocated from p. If existing is non-nil, its spill chain is
// reused page-by-page and trimmed or extended as needed.
func Write(p *pager.Pager, region []byte, value []byte, existing *Header) (Header, error) {
	inlineCap := len(region) - HeaderSize
	if inlineCap < 0 {
		inlineCap = 0
	}

	inPageSize := len(value)
	if inPageSize > inlineCap {
		inPageSize = inlineCap
	}
	copy(region[HeaderSize:HeaderSize+inPageSize], value[:inPageSize])

	remaining := value[inPageSize:]

	var existingIds []pager.PageId
	if existing != nil && existing.HasSpilled() {
		ids, err := spillChain(p, existing.SpillHead)
		if err != nil {
			return Header{}, err
		}
		existingIds = ids
	}

	capacity := spillBodyCapacity(p.PageSize())
	var chunks [][]byte
	for off := 0; off < len(remaining); off += capacity {
		end := off + capacity
		if end > len(remaining) {
			end = len(remaining)
		}
		chunks = append(chunks, remaining[off:end])
	}

	finalIds := make([]pager.PageId, len(chunks))
	for i := range chunks {
		if i < len(existingIds) {
			finalIds[i] = existingIds[i]
		} else {
			tag, wh, err := p.NewPage()
			if err != nil {
				return Header{}, err
			}
			wh.Release()
			finalIds[i] = tag.Page
		}
	}

	// Trim: free any pages left over from a longer pre-existing chain.
	for i := len(chunks); i < len(existingIds); i++ {
		if err := p.DeletePage(p.TagFor(existingIds[i])); err != nil {
			return Header{}, err
		}
	}

	for i, chunk := range chunks {
		var next pager.PageId
		if i+1 < len(finalIds) {
			next = finalIds[i+1]
		}

		wh, err := p.BorrowExclusive(p.TagFor(finalIds[i]))
		if err != nil {
			return Header{}, err
		}
		writeSpillPage(wh.Bytes(), uint64(len(chunk)), next, chunk)
		wh.Release()
	}

	var spillHead pager.PageId
	if len(finalIds) > 0 {
		spillHead = finalIds[0]
	}

	hdr := Header{
		TotalSize:  uint64(len(value)),
		InPageSize: uint64(inPageSize),
		SpillHead:  spillHead,
	}
	encodeHeader(hdr, region)
	return hdr, nil
}

// Free releases every spill page owned by h, used when a Var is being
// overwritten with nothing or deleted outright.
func Free(p *pager.Pager, h Header) error {
	if !h.HasSpilled() {
		return nil
	}
	return freeSpillChain(p, h.SpillHead)
}
