package btree

import (
	"encoding/binary"

	"github.com/corta-db/jardb/cellpage"
	"github.com/corta-db/jardb/jarerrors"
	"github.com/corta-db/jardb/pager"
)

// InteriorMeta reserved block: parent(8) + tail(8).
const interiorMetaSize = 16

// Interior is a cellpage view over a KindBPlusTreeInterior page. Each
// cell's content is (left_child PageId, key bytes); the rightmost
// child hangs off tail rather than a cell.
type Interior struct {
	cp      *cellpage.Page
	keySize int
}

// NewInterior initializes a fresh interior page's payload region for
// def, with no children yet (parent/tail both unset).
func NewInterior(region []byte, def Definition) (*Interior, error) {
	cp, err := cellpage.New(region, interiorCellFixedSize+def.KeySize, def.K, interiorMetaSize)
	if err != nil {
		return nil, err
	}
	i := &Interior{cp: cp, keySize: def.KeySize}
	binary.BigEndian.PutUint64(i.meta()[0:8], 0)
	binary.BigEndian.PutUint64(i.meta()[8:16], 0)
	return i, nil
}

// LoadInterior wraps a payload region already written by NewInterior,
// validating the page's kind tag first.
func LoadInterior(buf []byte, keySize int) (*Interior, error) {
	if k := pager.KindOf(buf); k != pager.KindBPlusTreeInterior {
		return nil, &jarerrors.WrongPageKind{Expected: pager.KindBPlusTreeInterior, Got: k}
	}
	return &Interior{cp: cellpage.Load(pager.Payload(buf)), keySize: keySize}, nil
}

func (i *Interior) meta() []byte { return i.cp.Reserved() }

func (i *Interior) Parent() (pager.PageId, bool) {
	id := pager.PageId(binary.BigEndian.Uint64(i.meta()[0:8]))
	return id, id != 0
}

func (i *Interior) SetParent(id pager.PageId) {
	binary.BigEndian.PutUint64(i.meta()[0:8], uint64(id))
}

func (i *Interior) Tail() (pager.PageId, bool) {
	id := pager.PageId(binary.BigEndian.Uint64(i.meta()[8:16]))
	return id, id != 0
}

func (i *Interior) SetTail(id pager.PageId) {
	binary.BigEndian.PutUint64(i.meta()[8:16], uint64(id))
}

func (i *Interior) cellLeft(content []byte) pager.PageId {
	return pager.PageId(binary.BigEndian.Uint64(content[0:8]))
}

func (i *Interior) cellKey(content []byte) []byte { return content[8 : 8+i.keySize] }

func (i *Interior) setCell(content []byte, left pager.PageId, key []byte) {
	binary.BigEndian.PutUint64(content[0:8], uint64(left))
	copy(content[8:8+i.keySize], key)
}

// Len returns the number of populated (left, key) cells, not counting tail.
func (i *Interior) Len() int { return i.cp.UsedCount() }

func (i *Interior) Full(k int) bool { return i.Len() >= k }

// Descend picks the child to follow for key: the left child of the
// first cell whose key is >= the search key (a cell's left subtree
// holds keys <= its key), or tail if none qualifies.
func (i *Interior) Descend(kind KeyKind, key []byte) pager.PageId {
	var chosen pager.PageId
	var found bool
	i.cp.Iterate(func(_ cellpage.CellId, content []byte) bool {
		if compareKeys(kind, i.cellKey(content), key) >= 0 {
			chosen = i.cellLeft(content)
			found = true
			return false
		}
		return true
	})
	if found {
		return chosen
	}
	tail, _ := i.Tail()
	return tail
}

// cellIdForLeft returns the cell id whose left child is target, if any.
func (i *Interior) cellIdForLeft(target pager.PageId) (cellpage.CellId, bool) {
	var found cellpage.CellId
	var ok bool
	i.cp.Iterate(func(cid cellpage.CellId, content []byte) bool {
		if i.cellLeft(content) == target {
			found = cid
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

// LeftmostChild returns the child of this interior's first cell, or
// tail if the interior has no cells yet.
func (i *Interior) LeftmostChild() pager.PageId {
	var child pager.PageId
	var found bool
	i.cp.Iterate(func(_ cellpage.CellId, content []byte) bool {
		child = i.cellLeft(content)
		found = true
		return false
	})
	if found {
		return child
	}
	tail, _ := i.Tail()
	return tail
}

// RightmostChild returns tail, always the subtree holding the
// interior's greatest keys.
func (i *Interior) RightmostChild() pager.PageId {
	tail, _ := i.Tail()
	return tail
}

// HasChild reports whether id is currently one of this interior's
// children, either as a cell's left pointer or as tail.
func (i *Interior) HasChild(id pager.PageId) bool {
	if _, ok := i.cellIdForLeft(id); ok {
		return true
	}
	tail, _ := i.Tail()
	return tail == id
}

// iterateChildren calls fn once for every child pointer this interior
// holds: every cell's left, plus tail.
func (i *Interior) iterateChildren(fn func(id pager.PageId)) {
	i.cp.Iterate(func(_ cellpage.CellId, content []byte) bool {
		fn(i.cellLeft(content))
		return true
	})
	if tail, ok := i.Tail(); ok {
		fn(tail)
	}
}

// InsertChild inserts the triple (left, pivot, right) following the
// insert-into-interior algorithm: if a cell with left == left already
// exists, a new cell (left, pivot) is spliced in right before it and
// that cell's left is rewritten to right; otherwise (left was
// previously tail, including the empty-interior case where left is the
// node's sole child and tail is still unset) a cell (left, pivot) is
// appended and tail becomes right.
func (i *Interior) InsertChild(left pager.PageId, pivot []byte, right pager.PageId) error {
	if cid, ok := i.cellIdForLeft(left); ok {
		_, content, err := i.cp.InsertBefore(cid)
		if err != nil {
			return err
		}
		i.setCell(content, left, pivot)
		existing := i.cp.Content(cid)
		i.setCell(existing, right, i.cellKey(existing))
		return nil
	}

	_, content, err := i.cp.Push()
	if err != nil {
		return err
	}
	i.setCell(content, left, pivot)
	i.SetTail(right)
	return nil
}

// SplitInto moves the upper half of i's cells into right, following
// "Node split": cells at position k/2+1 .. k-1 move, and the last
// remaining cell's key becomes the pivot. That cell is removed from i
// and its child becomes i's new tail; right inherits i's old tail.
func (i *Interior) SplitInto(right *Interior, k int) (pivot []byte) {
	cutoff := k/2 + 1

	var ids []cellpage.CellId
	i.cp.Iterate(func(cid cellpage.CellId, _ []byte) bool {
		ids = append(ids, cid)
		return true
	})

	oldTail, _ := i.Tail()

	for idx := cutoff; idx < len(ids); idx++ {
		content := i.cp.Content(ids[idx])
		_, dst, err := right.cp.Push()
		if err != nil {
			panic("btree: interior split target overflowed: " + err.Error())
		}
		copy(dst, content)
	}

	last := i.cp.Content(ids[cutoff-1])
	pivot = append([]byte(nil), i.cellKey(last)...)
	newTail := i.cellLeft(last)

	for idx := len(ids) - 1; idx >= cutoff-1; idx-- {
		i.cp.Free(ids[idx])
	}

	i.SetTail(newTail)
	right.SetTail(oldTail)
	return pivot
}
