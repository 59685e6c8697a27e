// Package cellpage implements a fixed-size-slot allocator over a byte
// region: an ordered used list (doubly linked, defining key order) and
// a free list (singly linked, the reuse pool) sharing one pool of
// CellId-addressed slots. It has no notion of pages, kinds or a pager;
// callers carve a region out of whatever backing bytes they have
// (typically a page's payload past the kind tag and a reserved header
// block) and hand it to New/Load.
package cellpage

import (
	"encoding/binary"

	"github.com/corta-db/jardb/jarerrors"
)

// CellId addresses a slot; 0 means "none".
type CellId uint16

// CellsMeta header layout, stored BigEndian at the front of the region:
//
//	[capacity(2)][cellSize(2)][len(2)][freeLen(2)]
//	[usedHead(2)][usedTail(2)][freeHead(2)][base(2)]
const (
	HeaderOffsetCapacity = 0
	HeaderOffsetCellSize = 2
	HeaderOffsetLen      = 4
	HeaderOffsetFreeLen  = 6
	HeaderOffsetUsedHead = 8
	HeaderOffsetUsedTail = 10
	HeaderOffsetFreeHead = 12
	HeaderOffsetBase     = 14
	MetaSize             = 16
)

// Per-slot cell header: prev(2) + next(2) + id(2), BigEndian.
const cellHeaderSize = 6

// CellHeaderSize is the fixed per-slot overhead (id+prev+next) that
// cellpage.New adds on top of a caller's requested content size when
// computing cell_size. Callers that size cells themselves before
// calling New (e.g. the B+ tree's degree determination) must account
// for it.
const CellHeaderSize = cellHeaderSize

// Page is a cellpage view over a caller-owned byte region.
type Page struct {
	region []byte
}

func u16At(b []byte, off int) uint16        { return binary.BigEndian.Uint16(b[off:]) }
func putU16At(b []byte, off int, v uint16)  { binary.BigEndian.PutUint16(b[off:], v) }

// New lays out a fresh CellsMeta over region for capacity cells each
// holding contentSize bytes of content, reserving reservedBytes
// immediately after the CellsMeta header for the caller's own use
// (e.g. an InteriorMeta/LeafMeta block).
func New(region []byte, contentSize, capacity, reservedBytes int) (*Page, error) {
	cellSize := cellHeaderSize + contentSize
	base := MetaSize + reservedBytes
	if len(region)-base < cellSize*capacity {
		return nil, jarerrors.ErrCellPageOverflow
	}

	putU16At(region, HeaderOffsetCapacity, uint16(capacity))
	putU16At(region, HeaderOffsetCellSize, uint16(cellSize))
	putU16At(region, HeaderOffsetLen, 0)
	putU16At(region, HeaderOffsetFreeLen, 0)
	putU16At(region, HeaderOffsetUsedHead, 0)
	putU16At(region, HeaderOffsetUsedTail, 0)
	putU16At(region, HeaderOffsetFreeHead, 0)
	putU16At(region, HeaderOffsetBase, uint16(base))

	return &Page{region: region}, nil
}

// Load wraps region, which must already hold a CellsMeta header
// previously written by New.
func Load(region []byte) *Page {
	return &Page{region: region}
}

// Reserved returns the caller-reserved block between the CellsMeta
// header and the first slot.
func (p *Page) Reserved() []byte {
	base := int(u16At(p.region, HeaderOffsetBase))
	return p.region[MetaSize:base]
}

func (p *Page) Capacity() int { return int(u16At(p.region, HeaderOffsetCapacity)) }
func (p *Page) cellSize() int { return int(u16At(p.region, HeaderOffsetCellSize)) }
func (p *Page) Len() int      { return int(u16At(p.region, HeaderOffsetLen)) }
func (p *Page) FreeLen() int  { return int(u16At(p.region, HeaderOffsetFreeLen)) }

// UsedCount returns the number of live cells: len - free_len.
func (p *Page) UsedCount() int { return p.Len() - p.FreeLen() }

func (p *Page) UsedHead() CellId { return CellId(u16At(p.region, HeaderOffsetUsedHead)) }
func (p *Page) UsedTail() CellId { return CellId(u16At(p.region, HeaderOffsetUsedTail)) }

func (p *Page) setLen(v int)      { putU16At(p.region, HeaderOffsetLen, uint16(v)) }
func (p *Page) setFreeLen(v int)  { putU16At(p.region, HeaderOffsetFreeLen, uint16(v)) }
func (p *Page) setUsedHead(c CellId) { putU16At(p.region, HeaderOffsetUsedHead, uint16(c)) }
func (p *Page) setUsedTail(c CellId) { putU16At(p.region, HeaderOffsetUsedTail, uint16(c)) }
func (p *Page) setFreeHead(c CellId) { putU16At(p.region, HeaderOffsetFreeHead, uint16(c)) }
func (p *Page) freeHead() CellId     { return CellId(u16At(p.region, HeaderOffsetFreeHead)) }

func (p *Page) slotOffset(cid CellId) int {
	base := int(u16At(p.region, HeaderOffsetBase))
	return base + (int(cid)-1)*p.cellSize()
}

func (p *Page) slotHeader(cid CellId) []byte {
	off := p.slotOffset(cid)
	return p.region[off : off+cellHeaderSize]
}

// Content returns the content bytes of cid, which must be a live cell.
func (p *Page) Content(cid CellId) []byte {
	off := p.slotOffset(cid)
	return p.region[off+cellHeaderSize : off+p.cellSize()]
}

func (p *Page) Next(cid CellId) CellId { return CellId(u16At(p.slotHeader(cid), 2)) }
func (p *Page) Prev(cid CellId) CellId { return CellId(u16At(p.slotHeader(cid), 0)) }

func (p *Page) setSlotLinks(cid, prev, next CellId) {
	h := p.slotHeader(cid)
	putU16At(h, 0, uint16(prev))
	putU16At(h, 2, uint16(next))
	putU16At(h, 4, uint16(cid))
}

// allocCell pops the free list if non-empty, else bumps len. Returns
// ErrCellPageFull if no slot is available.
func (p *Page) allocCell() (CellId, error) {
	if head := p.freeHead(); head != 0 {
		next := p.Next(head)
		p.setFreeHead(next)
		p.setFreeLen(p.FreeLen() - 1)
		return head, nil
	}
	if p.UsedCount() == p.Capacity() {
		return 0, jarerrors.ErrCellPageFull
	}
	id := CellId(p.Len() + 1)
	p.setLen(p.Len() + 1)
	return id, nil
}

// push allocates a new cell, links it as the new used-tail, and
// returns its id and a slice over its content bytes.
func (p *Page) Push() (CellId, []byte, error) {
	cid, err := p.allocCell()
	if err != nil {
		return 0, nil, err
	}
	tail := p.UsedTail()
	p.setSlotLinks(cid, tail, 0)
	if tail == 0 {
		p.setUsedHead(cid)
	} else {
		th := p.slotHeader(tail)
		putU16At(th, 2, uint16(cid))
	}
	p.setUsedTail(cid)
	return cid, p.Content(cid), nil
}

// InsertAfter allocates a cell and splices it into the used list
// immediately after anchor.
func (p *Page) InsertAfter(anchor CellId) (CellId, []byte, error) {
	cid, err := p.allocCell()
	if err != nil {
		return 0, nil, err
	}
	next := p.Next(anchor)
	p.setSlotLinks(cid, anchor, next)
	anchorHeader := p.slotHeader(anchor)
	putU16At(anchorHeader, 2, uint16(cid))
	if next == 0 {
		p.setUsedTail(cid)
	} else {
		nh := p.slotHeader(next)
		putU16At(nh, 0, uint16(cid))
	}
	return cid, p.Content(cid), nil
}

// InsertBefore allocates a cell and splices it into the used list
// immediately before anchor.
func (p *Page) InsertBefore(anchor CellId) (CellId, []byte, error) {
	cid, err := p.allocCell()
	if err != nil {
		return 0, nil, err
	}
	prev := p.Prev(anchor)
	p.setSlotLinks(cid, prev, anchor)
	anchorHeader := p.slotHeader(anchor)
	putU16At(anchorHeader, 0, uint16(cid))
	if prev == 0 {
		p.setUsedHead(cid)
	} else {
		ph := p.slotHeader(prev)
		putU16At(ph, 2, uint16(cid))
	}
	return cid, p.Content(cid), nil
}

// Free detaches cid from the used list and prepends it to the free
// list. cid must currently be a live cell; freeing a cell outside the
// used list is a programming error.
func (p *Page) Free(cid CellId) {
	prev := p.Prev(cid)
	next := p.Next(cid)

	if prev == 0 {
		if p.UsedHead() != cid {
			panic("cellpage: free of a cell not in the used list")
		}
		p.setUsedHead(next)
	} else {
		ph := p.slotHeader(prev)
		putU16At(ph, 2, uint16(next))
	}

	if next == 0 {
		p.setUsedTail(prev)
	} else {
		nh := p.slotHeader(next)
		putU16At(nh, 0, uint16(prev))
	}

	oldFreeHead := p.freeHead()
	p.setSlotLinks(cid, 0, oldFreeHead)
	p.setFreeHead(cid)
	p.setFreeLen(p.FreeLen() + 1)
}

// Iterate walks the used list front-to-back, calling fn for each live
// cell. Iteration stops early if fn returns false.
func (p *Page) Iterate(fn func(cid CellId, content []byte) bool) {
	for cid := p.UsedHead(); cid != 0; cid = p.Next(cid) {
		if !fn(cid, p.Content(cid)) {
			return
		}
	}
}

// SplitAtInto moves every cell from position at (0-based, counting
// from the used-head) onward into dest, preserving order, copying
// content byte-for-byte and freeing the moved cells from p.
func (p *Page) SplitAtInto(dest *Page, at int) {
	var moving []CellId
	i := 0
	for cid := p.UsedHead(); cid != 0; cid = p.Next(cid) {
		if i >= at {
			moving = append(moving, cid)
		}
		i++
	}

	for _, cid := range moving {
		_, dst, _ := dest.Push()
		copy(dst, p.Content(cid))
	}
	for _, cid := range moving {
		p.Free(cid)
	}
}
