package pager

import "encoding/binary"

// Every page's first byte is its Kind. These helpers read/write that
// tag and the bytes that follow it on a raw page buffer, shared by the
// freelist, the stress sink and the journal.

func kindOf(buf []byte) Kind     { return Kind(buf[0]) }
func setKind(buf []byte, k Kind) { buf[0] = byte(k) }

// payload returns the bytes of buf after the kind tag, the region every
// typed page (free, spill, descriptor, interior, leaf) lays its own
// fields out in.
func payload(buf []byte) []byte { return buf[1:] }

// KindOf reads the kind tag of a raw page buffer. Exported so the
// variable-length codec, the cell page allocator and the B+ tree can
// validate/set the kind of pages they format on top of the pager.
func KindOf(buf []byte) Kind { return kindOf(buf) }

// SetKind writes the kind tag of a raw page buffer.
func SetKind(buf []byte, k Kind) { setKind(buf, k) }

// Payload returns the bytes of buf after the kind tag.
func Payload(buf []byte) []byte { return payload(buf) }

// Free page layout: kind=Free, next-free-page id (u64, 0 = none)
// immediately after the kind byte.
const freeNextOffset = 0

func writeFreePage(buf []byte, next PageId) {
	setKind(buf, KindFree)
	binary.LittleEndian.PutUint64(payload(buf)[freeNextOffset:], uint64(next))
}

func readFreeNext(buf []byte) PageId {
	return PageId(binary.LittleEndian.Uint64(payload(buf)[freeNextOffset:]))
}
