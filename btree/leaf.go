package btree

import (
	"encoding/binary"

	"github.com/corta-db/jardb/cellpage"
	"github.com/corta-db/jardb/jarerrors"
	"github.com/corta-db/jardb/pager"
)

// LeafMeta reserved block: parent(8) + prev(8) + next(8).
const leafMetaSize = 24

// Leaf is a cellpage view over a KindBPlusTreeLeaf page. Each cell's
// content is (key bytes, value region); the value region either holds
// the raw fixed-size value or a Var header with its inline bytes.
type Leaf struct {
	cp        *cellpage.Page
	keySize   int
	valueSize int
}

// NewLeaf initializes a fresh leaf page's payload region for def, with
// no siblings or parent yet.
func NewLeaf(region []byte, def Definition) (*Leaf, error) {
	cp, err := cellpage.New(region, def.KeySize+def.InCellValueSize, def.K, leafMetaSize)
	if err != nil {
		return nil, err
	}
	l := &Leaf{cp: cp, keySize: def.KeySize, valueSize: def.InCellValueSize}
	meta := l.meta()
	binary.BigEndian.PutUint64(meta[0:8], 0)
	binary.BigEndian.PutUint64(meta[8:16], 0)
	binary.BigEndian.PutUint64(meta[16:24], 0)
	return l, nil
}

// LoadLeaf wraps a payload region already written by NewLeaf,
// validating the page's kind tag first.
func LoadLeaf(buf []byte, keySize, valueSize int) (*Leaf, error) {
	if k := pager.KindOf(buf); k != pager.KindBPlusTreeLeaf {
		return nil, &jarerrors.WrongPageKind{Expected: pager.KindBPlusTreeLeaf, Got: k}
	}
	return &Leaf{cp: cellpage.Load(pager.Payload(buf)), keySize: keySize, valueSize: valueSize}, nil
}

func (l *Leaf) meta() []byte { return l.cp.Reserved() }

func (l *Leaf) Parent() (pager.PageId, bool) {
	id := pager.PageId(binary.BigEndian.Uint64(l.meta()[0:8]))
	return id, id != 0
}
func (l *Leaf) SetParent(id pager.PageId) { binary.BigEndian.PutUint64(l.meta()[0:8], uint64(id)) }

func (l *Leaf) Prev() (pager.PageId, bool) {
	id := pager.PageId(binary.BigEndian.Uint64(l.meta()[8:16]))
	return id, id != 0
}
func (l *Leaf) SetPrev(id pager.PageId) { binary.BigEndian.PutUint64(l.meta()[8:16], uint64(id)) }

func (l *Leaf) Next() (pager.PageId, bool) {
	id := pager.PageId(binary.BigEndian.Uint64(l.meta()[16:24]))
	return id, id != 0
}
func (l *Leaf) SetNext(id pager.PageId) { binary.BigEndian.PutUint64(l.meta()[16:24], uint64(id)) }

func (l *Leaf) cellKey(content []byte) []byte   { return content[0:l.keySize] }
func (l *Leaf) cellValue(content []byte) []byte { return content[l.keySize : l.keySize+l.valueSize] }

// Len returns the number of live leaf cells.
func (l *Leaf) Len() int { return l.cp.UsedCount() }

func (l *Leaf) Full(k int) bool { return l.Len() >= k }

// Find returns the cell id whose key equals key, if any.
func (l *Leaf) Find(kind KeyKind, key []byte) (cellpage.CellId, []byte, bool) {
	var found cellpage.CellId
	var val []byte
	var ok bool
	l.cp.Iterate(func(cid cellpage.CellId, content []byte) bool {
		if compareKeys(kind, l.cellKey(content), key) == 0 {
			found, val, ok = cid, l.cellValue(content), true
			return false
		}
		return true
	})
	return found, val, ok
}

// InsertPosition returns the cell id before which a new key should be
// spliced, and whether one was found: the first cell whose key is >=
// the new key (so a new key lands before every prior equal key).
func (l *Leaf) InsertPosition(kind KeyKind, key []byte) (cellpage.CellId, bool) {
	var chosen cellpage.CellId
	var found bool
	l.cp.Iterate(func(cid cellpage.CellId, content []byte) bool {
		if compareKeys(kind, l.cellKey(content), key) >= 0 {
			chosen = cid
			found = true
			return false
		}
		return true
	})
	return chosen, found
}

// InsertAt inserts a new (key, zero-valued value) cell at the given
// position (InsertPosition's result) or at the tail if !before, and
// returns the new cell's key/value regions for the caller to fill in.
func (l *Leaf) InsertAt(before cellpage.CellId, haveBefore bool, key []byte) (keyRegion, valueRegion []byte, err error) {
	var content []byte
	if haveBefore {
		_, content, err = l.cp.InsertBefore(before)
	} else {
		_, content, err = l.cp.Push()
	}
	if err != nil {
		return nil, nil, err
	}
	copy(l.cellKey(content), key)
	return l.cellKey(content), l.cellValue(content), nil
}

// Iterate walks the leaf's cells front-to-back in key order.
func (l *Leaf) Iterate(fn func(cid cellpage.CellId, key, value []byte) bool) {
	l.cp.Iterate(func(cid cellpage.CellId, content []byte) bool {
		return fn(cid, l.cellKey(content), l.cellValue(content))
	})
}

// Key/Value expose a single cell's regions by id, used by the cursor.
func (l *Leaf) Key(cid cellpage.CellId) []byte   { return l.cellKey(l.cp.Content(cid)) }
func (l *Leaf) Value(cid cellpage.CellId) []byte { return l.cellValue(l.cp.Content(cid)) }

// CellAfter/CellBefore step through cell ids within this leaf only;
// they do not cross into sibling leaves.
func (l *Leaf) CellAfter(cid cellpage.CellId) cellpage.CellId  { return l.cp.Next(cid) }
func (l *Leaf) CellBefore(cid cellpage.CellId) cellpage.CellId { return l.cp.Prev(cid) }
func (l *Leaf) Head() cellpage.CellId                          { return l.cp.UsedHead() }
func (l *Leaf) Tail() cellpage.CellId                          { return l.cp.UsedTail() }

// SplitInto moves the upper half of l's cells into right, preserving
// order, and returns the pivot key (the last key remaining in l).
func (l *Leaf) SplitInto(right *Leaf, k int) (pivot []byte) {
	cutoff := k/2 + 1
	l.cp.SplitAtInto(right.cp, cutoff)

	var lastKey []byte
	l.cp.Iterate(func(_ cellpage.CellId, content []byte) bool {
		lastKey = append(lastKey[:0:0], l.cellKey(content)...)
		return true
	})
	return lastKey
}
