// Package varlen implements a scheme for storing a byte string of
// unknown length inline within a caller-supplied region, spilling
// overflow bytes into a chain of Spill pages owned by a pager.Pager.
package varlen

import (
	"encoding/binary"

	"github.com/corta-db/jardb/pager"
)

// HeaderSize is the fixed, on-disk size of a Var's in-page header:
// total size (u64) + in-page size (u64) + spill head (u64, 0 = none).
const HeaderSize = 8 + 8 + 8

// Header is the in-page metadata preceding a Var's inline bytes.
type Header struct {
	TotalSize  uint64
	InPageSize uint64
	SpillHead  pager.PageId // 0 means none
}

// HasSpilled reports whether any bytes live outside the host page.
func (h Header) HasSpilled() bool { return h.SpillHead != 0 }

func encodeHeader(h Header, buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], h.TotalSize)
	binary.LittleEndian.PutUint64(buf[8:16], h.InPageSize)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.SpillHead))
}

func decodeHeader(buf []byte) Header {
	return Header{
		TotalSize:  binary.LittleEndian.Uint64(buf[0:8]),
		InPageSize: binary.LittleEndian.Uint64(buf[8:16]),
		SpillHead:  pager.PageId(binary.LittleEndian.Uint64(buf[16:24])),
	}
}

// DecodeHeader reads a Var header from the start of a region previously
// written by Write.
func DecodeHeader(region []byte) Header { return decodeHeader(region) }
