package pager

import "encoding/binary"

// HeaderSize is the fixed size of the pager header persisted at file
// offset 0: magic(2) + page size(2) + page count(8) + free head(8) +
// reserved(100).
const HeaderSize = 2 + 2 + 8 + 8 + 100

const headerMagic = 0x4a52 // "JR" - jar

// Header is the pager's persisted control block.
type Header struct {
	PageSize  uint32 // stored as u16 on disk, kept wider in memory for arithmetic
	PageCount uint64 // high-water mark of allocated page ids
	FreeHead  PageId // 0 means "none"
}

// FreeListHead returns the head of the freelist, if any.
func (h Header) FreeListHead() (PageId, bool) {
	return h.FreeHead, h.FreeHead != 0
}

// SetFreeListHead updates the freelist head. Pass 0 to clear it.
func (h *Header) SetFreeListHead(id PageId) {
	h.FreeHead = id
}

func newHeader(pageSize uint32) Header {
	return Header{PageSize: pageSize, PageCount: 0, FreeHead: 0}
}

func encodeHeader(h Header, buf []byte) {
	if len(buf) < HeaderSize {
		panic("pager: header buffer too small")
	}
	binary.LittleEndian.PutUint16(buf[0:2], headerMagic)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(h.PageSize))
	binary.LittleEndian.PutUint64(buf[4:12], h.PageCount)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(h.FreeHead))
	for i := 20; i < HeaderSize; i++ {
		buf[i] = 0
	}
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errHeaderTooShort
	}
	magic := binary.LittleEndian.Uint16(buf[0:2])
	if magic != headerMagic {
		return Header{}, errBadMagic
	}
	h := Header{
		PageSize:  uint32(binary.LittleEndian.Uint16(buf[2:4])),
		PageCount: binary.LittleEndian.Uint64(buf[4:12]),
		FreeHead:  PageId(binary.LittleEndian.Uint64(buf[12:20])),
	}
	return h, nil
}
