package varlen

import (
	"encoding/binary"

	"github.com/corta-db/jardb/jarerrors"
	"github.com/corta-db/jardb/pager"
)

// Spill page layout: kind=Spill, in_page_size (u64), next-spill page
// id (u64, 0 = none), then body bytes.
const spillMetaSize = 8 + 8

func spillBodyCapacity(pageSize uint32) int {
	return int(pageSize) - 1 - spillMetaSize
}

func writeSpillPage(buf []byte, inPageSize uint64, next pager.PageId, body []byte) {
	pager.SetKind(buf, pager.KindSpill)
	p := pager.Payload(buf)
	binary.LittleEndian.PutUint64(p[0:8], inPageSize)
	binary.LittleEndian.PutUint64(p[8:16], uint64(next))
	copy(p[spillMetaSize:], body)
}

func readSpillMeta(buf []byte) (kind pager.Kind, inPageSize uint64, next pager.PageId) {
	kind = pager.KindOf(buf)
	p := pager.Payload(buf)
	inPageSize = binary.LittleEndian.Uint64(p[0:8])
	next = pager.PageId(binary.LittleEndian.Uint64(p[8:16]))
	return
}

func spillBody(buf []byte) []byte {
	return pager.Payload(buf)[spillMetaSize:]
}

// spillChain loads the ids of every page currently in the chain
// starting at head, in order.
func spillChain(p *pager.Pager, head pager.PageId) ([]pager.PageId, error) {
	var ids []pager.PageId
	for id := head; id != 0; {
		h, err := p.BorrowShared(p.TagFor(id))
		if err != nil {
			return nil, err
		}
		kind, _, next := readSpillMeta(h.Bytes())
		h.Release()
		if kind != pager.KindSpill {
			return nil, &jarerrors.WrongPageKind{Expected: pager.KindSpill, Got: kind}
		}
		ids = append(ids, id)
		id = next
	}
	return ids, nil
}

// freeSpillChain deletes every page in the chain starting at head.
func freeSpillChain(p *pager.Pager, head pager.PageId) error {
	ids, err := spillChain(p, head)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := p.DeletePage(p.TagFor(id)); err != nil {
			return err
		}
	}
	return nil
}
