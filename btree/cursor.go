package btree

import (
	"github.com/corta-db/jardb/cellpage"
	"github.com/corta-db/jardb/pager"
	"github.com/corta-db/jardb/varlen"
)

type cursorState int

const (
	cursorUnpositioned cursorState = iota
	cursorAt
	cursorPastEnd
)

// Cursor provides ordered traversal over a Tree's leaves. It holds no
// page handles between calls; every operation re-borrows the leaf it
// needs and releases it before returning.
type Cursor struct {
	t     *Tree
	state cursorState
	leaf  pager.PageId
	cid   cellpage.CellId
}

// NewCursor returns an unpositioned cursor over t.
func (t *Tree) NewCursor() *Cursor { return &Cursor{t: t} }

func (t *Tree) rootTag() (pager.PageId, bool, error) {
	rh, err := t.p.BorrowShared(t.descTag)
	if err != nil {
		return 0, false, err
	}
	defer rh.Release()
	root, ok := LoadDescriptor(pager.Payload(rh.Bytes())).Root()
	return root, ok, nil
}

// descendExtreme walks from root down to a leaf always picking
// leftmost (descendLeft = true) or rightmost children.
func (t *Tree) descendExtreme(root pager.PageId, descendLeft bool) (pager.PageId, error) {
	cur := root
	for {
		rh, err := t.p.BorrowShared(t.p.TagFor(cur))
		if err != nil {
			return 0, err
		}
		kind := pager.KindOf(rh.Bytes())
		if kind == pager.KindBPlusTreeLeaf {
			rh.Release()
			return cur, nil
		}
		interior, err := LoadInterior(rh.Bytes(), t.def.KeySize)
		rh.Release()
		if err != nil {
			return 0, err
		}
		if descendLeft {
			cur = interior.LeftmostChild()
		} else {
			cur = interior.RightmostChild()
		}
	}
}

// SeekHead positions the cursor at the smallest key in the tree.
func (c *Cursor) SeekHead() error {
	c.t.mu.RLock()
	defer c.t.mu.RUnlock()

	root, ok, err := c.t.rootTag()
	if err != nil {
		return err
	}
	if !ok {
		c.state = cursorPastEnd
		return nil
	}
	leafId, err := c.t.descendExtreme(root, true)
	if err != nil {
		return err
	}
	return c.positionAtLeafHead(leafId)
}

// SeekTail positions the cursor at the largest key in the tree.
func (c *Cursor) SeekTail() error {
	c.t.mu.RLock()
	defer c.t.mu.RUnlock()

	root, ok, err := c.t.rootTag()
	if err != nil {
		return err
	}
	if !ok {
		c.state = cursorPastEnd
		return nil
	}
	leafId, err := c.t.descendExtreme(root, false)
	if err != nil {
		return err
	}
	return c.positionAtLeafTail(leafId)
}

func (c *Cursor) positionAtLeafHead(leafId pager.PageId) error {
	rh, err := c.t.p.BorrowShared(c.t.p.TagFor(leafId))
	if err != nil {
		return err
	}
	leaf, err := LoadLeaf(rh.Bytes(), c.t.def.KeySize, c.t.def.InCellValueSize)
	rh.Release()
	if err != nil {
		return err
	}
	if head := leaf.Head(); head != 0 {
		c.leaf, c.cid, c.state = leafId, head, cursorAt
	} else {
		c.state = cursorPastEnd
	}
	return nil
}

func (c *Cursor) positionAtLeafTail(leafId pager.PageId) error {
	rh, err := c.t.p.BorrowShared(c.t.p.TagFor(leafId))
	if err != nil {
		return err
	}
	leaf, err := LoadLeaf(rh.Bytes(), c.t.def.KeySize, c.t.def.InCellValueSize)
	rh.Release()
	if err != nil {
		return err
	}
	if tail := leaf.Tail(); tail != 0 {
		c.leaf, c.cid, c.state = leafId, tail, cursorAt
	} else {
		c.state = cursorPastEnd
	}
	return nil
}

// SeekNearestFloor positions the cursor at the greatest key <= key,
// walking the lookup path down to the leaf that would hold key, and
// stepping to the previous leaf's tail if that leaf holds nothing <= key.
func (c *Cursor) SeekNearestFloor(key []byte) error {
	c.t.mu.RLock()
	defer c.t.mu.RUnlock()

	root, ok, err := c.t.rootTag()
	if err != nil {
		return err
	}
	if !ok {
		c.state = cursorPastEnd
		return nil
	}

	leafId := root
	for {
		rh, err := c.t.p.BorrowShared(c.t.p.TagFor(leafId))
		if err != nil {
			return err
		}
		kind := pager.KindOf(rh.Bytes())
		if kind == pager.KindBPlusTreeLeaf {
			rh.Release()
			break
		}
		interior, err := LoadInterior(rh.Bytes(), c.t.def.KeySize)
		rh.Release()
		if err != nil {
			return err
		}
		leafId = interior.Descend(c.t.def.KeyKind, key)
	}

	for leafId != 0 {
		rh, err := c.t.p.BorrowShared(c.t.p.TagFor(leafId))
		if err != nil {
			return err
		}
		leaf, err := LoadLeaf(rh.Bytes(), c.t.def.KeySize, c.t.def.InCellValueSize)
		if err != nil {
			rh.Release()
			return err
		}

		var found cellpage.CellId
		leaf.Iterate(func(cid cellpage.CellId, k, _ []byte) bool {
			if compareKeys(c.t.def.KeyKind, k, key) <= 0 {
				found = cid
			}
			return true
		})
		prev, hasPrev := leaf.Prev()
		rh.Release()

		if found != 0 {
			c.leaf, c.cid, c.state = leafId, found, cursorAt
			return nil
		}
		if !hasPrev {
			c.state = cursorPastEnd
			return nil
		}
		leafId = prev
		continue
	}

	c.state = cursorPastEnd
	return nil
}

// SeekNearestCeil positions the cursor at the smallest key >= key.
func (c *Cursor) SeekNearestCeil(key []byte) error {
	if err := c.SeekNearestFloor(key); err != nil {
		return err
	}
	if c.state != cursorAt {
		return c.SeekHead()
	}

	exact, err := c.atExactKey(key)
	if err != nil {
		return err
	}
	if exact {
		return nil
	}
	return c.Next()
}

func (c *Cursor) atExactKey(key []byte) (bool, error) {
	k, err := c.Key()
	if err != nil {
		return false, err
	}
	return compareKeys(c.t.def.KeyKind, k, key) == 0, nil
}

// Next advances the cursor by one cell, crossing into the next
// sibling leaf when the current leaf is exhausted.
func (c *Cursor) Next() error {
	if c.state != cursorAt {
		return nil
	}
	c.t.mu.RLock()
	defer c.t.mu.RUnlock()

	rh, err := c.t.p.BorrowShared(c.t.p.TagFor(c.leaf))
	if err != nil {
		return err
	}
	leaf, err := LoadLeaf(rh.Bytes(), c.t.def.KeySize, c.t.def.InCellValueSize)
	if err != nil {
		rh.Release()
		return err
	}
	next := leaf.CellAfter(c.cid)
	if next != 0 {
		rh.Release()
		c.cid = next
		return nil
	}
	sibling, hasSibling := leaf.Next()
	rh.Release()
	if !hasSibling {
		c.state = cursorPastEnd
		return nil
	}
	return c.positionAtLeafHead(sibling)
}

// Previous steps the cursor back by one cell, crossing into the
// previous sibling leaf when needed.
func (c *Cursor) Previous() error {
	if c.state != cursorAt {
		return nil
	}
	c.t.mu.RLock()
	defer c.t.mu.RUnlock()

	rh, err := c.t.p.BorrowShared(c.t.p.TagFor(c.leaf))
	if err != nil {
		return err
	}
	leaf, err := LoadLeaf(rh.Bytes(), c.t.def.KeySize, c.t.def.InCellValueSize)
	if err != nil {
		rh.Release()
		return err
	}
	prev := leaf.CellBefore(c.cid)
	if prev != 0 {
		rh.Release()
		c.cid = prev
		return nil
	}
	sibling, hasSibling := leaf.Prev()
	rh.Release()
	if !hasSibling {
		c.state = cursorPastEnd
		return nil
	}
	return c.positionAtLeafTail(sibling)
}

// Valid reports whether the cursor is currently positioned at a cell.
func (c *Cursor) Valid() bool { return c.state == cursorAt }

// Key returns the key at the cursor's current position.
func (c *Cursor) Key() ([]byte, error) {
	rh, err := c.t.p.BorrowShared(c.t.p.TagFor(c.leaf))
	if err != nil {
		return nil, err
	}
	defer rh.Release()
	leaf, err := LoadLeaf(rh.Bytes(), c.t.def.KeySize, c.t.def.InCellValueSize)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), leaf.Key(c.cid)...), nil
}

// Value returns the value at the cursor's current position,
// materializing through the spill chain if it spilled.
func (c *Cursor) Value() ([]byte, error) {
	rh, err := c.t.p.BorrowShared(c.t.p.TagFor(c.leaf))
	if err != nil {
		return nil, err
	}
	defer rh.Release()
	leaf, err := LoadLeaf(rh.Bytes(), c.t.def.KeySize, c.t.def.InCellValueSize)
	if err != nil {
		return nil, err
	}
	valueRegion := leaf.Value(c.cid)
	if !c.t.def.Variable {
		return append([]byte(nil), valueRegion...), nil
	}
	hdr := varlen.DecodeHeader(valueRegion)
	return varlen.Read(c.t.p, valueRegion, hdr)
}
