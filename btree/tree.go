package btree

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/corta-db/jardb/filestore"
	"github.com/corta-db/jardb/jarerrors"
	"github.com/corta-db/jardb/pager"
	"github.com/corta-db/jardb/varlen"
)

// Config configures a Tree, following the pager's own Config/
// DefaultConfig shape.
type Config struct {
	Pager             pager.Config
	KeyKind           KeyKind
	KeySize           int
	ValueKind         ValueKind
	Variable          bool
	DeclaredValueSize int
}

// DefaultConfig returns defaults for a tree keyed by a fixed-width
// uint64 with variable-length values, declaring at most 64 bytes of
// in-cell value space. Determine favours the largest degree, so at the
// default 4096-byte page size the in-cell space is only the 24-byte Var
// header and every value's bytes go to its spill chain.
func DefaultConfig(path string) Config {
	return Config{
		Pager:             pager.DefaultConfig(path),
		KeyKind:           KeyKindUint64,
		KeySize:           8,
		ValueKind:         ValueKindBytes,
		Variable:          true,
		DeclaredValueSize: 64,
	}
}

// Tree is an ordered map keyed by a fixed-size comparable scalar,
// backed by a single pager jar. Inserts hold mu exclusively; Search and
// cursor moves hold it shared, on top of the pager's per-frame locks.
type Tree struct {
	p       *pager.Pager
	descTag pager.Tag
	def     Definition

	mu sync.RWMutex

	stats struct {
		inserts atomic.Int64
		splits  atomic.Int64
		lookups atomic.Int64
	}

	closed atomic.Bool
}

// Create opens a brand-new jar at cfg.Pager.Path and lays down a fresh
// descriptor page computed by Determine.
func Create(store filestore.Store, cfg Config) (*Tree, error) {
	p, err := pager.Open(store, cfg.Pager)
	if err != nil {
		return nil, err
	}

	def, err := Determine(DetermineRequest{
		PageSize:          p.PageSize(),
		KeyKind:           cfg.KeyKind,
		KeySize:           cfg.KeySize,
		ValueKind:         cfg.ValueKind,
		Variable:          cfg.Variable,
		DeclaredValueSize: cfg.DeclaredValueSize,
	})
	if err != nil {
		p.Close()
		return nil, err
	}

	tag, wh, err := p.NewPage()
	if err != nil {
		p.Close()
		return nil, err
	}
	pager.SetKind(wh.Bytes(), pager.KindBPlusTreeDescriptor)
	NewDescriptor(pager.Payload(wh.Bytes()), def)
	wh.Release()

	return &Tree{p: p, descTag: tag, def: def}, nil
}

// Open reopens an existing jar, reading its tree definition back out
// of the descriptor page at PageId 1.
func Open(store filestore.Store, cfg pager.Config) (*Tree, error) {
	p, err := pager.Open(store, cfg)
	if err != nil {
		return nil, err
	}
	descTag := p.TagFor(1)
	rh, err := p.BorrowShared(descTag)
	if err != nil {
		p.Close()
		return nil, err
	}
	if k := pager.KindOf(rh.Bytes()); k != pager.KindBPlusTreeDescriptor {
		rh.Release()
		p.Close()
		return nil, &jarerrors.WrongPageKind{Expected: pager.KindBPlusTreeDescriptor, Got: k}
	}
	desc := LoadDescriptor(pager.Payload(rh.Bytes()))
	def := desc.Definition()
	rh.Release()

	return &Tree{p: p, descTag: descTag, def: def}, nil
}

// Definition returns the tree's validated degree/layout choice.
func (t *Tree) Definition() Definition { return t.def }

// Commit durably applies every change made since the last commit.
func (t *Tree) Commit() error { return t.p.Commit() }

// Close releases the tree's pager resources.
func (t *Tree) Close() error {
	t.closed.Store(true)
	return t.p.Close()
}

// nodeKinds is the fmt.Stringer reported as WrongPageKind.Expected when
// a node load finds neither an interior nor a leaf tag: loadNode
// accepts either, so neither kind alone describes what was expected.
type nodeKinds struct{}

func (nodeKinds) String() string {
	return pager.KindBPlusTreeInterior.String() + " or " + pager.KindBPlusTreeLeaf.String()
}

func (t *Tree) loadNode(tag pager.Tag) (kind pager.Kind, interior *Interior, leaf *Leaf, wh *pager.WriteHandle, err error) {
	wh, err = t.p.BorrowExclusive(tag)
	if err != nil {
		return 0, nil, nil, nil, err
	}
	kind = pager.KindOf(wh.Bytes())
	switch kind {
	case pager.KindBPlusTreeInterior:
		interior, err = LoadInterior(wh.Bytes(), t.def.KeySize)
	case pager.KindBPlusTreeLeaf:
		leaf, err = LoadLeaf(wh.Bytes(), t.def.KeySize, t.def.InCellValueSize)
	default:
		wh.Release()
		return 0, nil, nil, nil, &jarerrors.WrongPageKind{Expected: nodeKinds{}, Got: kind}
	}
	if err != nil {
		wh.Release()
		return 0, nil, nil, nil, err
	}
	return kind, interior, leaf, wh, nil
}

// setParent loads child (leaf or interior) and rewrites its parent
// field, used after a split moves a child under a new interior.
func (t *Tree) setParent(child pager.Tag, parent pager.Tag) error {
	wh, err := t.p.BorrowExclusive(child)
	if err != nil {
		return err
	}
	defer wh.Release()
	switch pager.KindOf(wh.Bytes()) {
	case pager.KindBPlusTreeInterior:
		n, err := LoadInterior(wh.Bytes(), t.def.KeySize)
		if err != nil {
			return err
		}
		n.SetParent(parent.Page)
	case pager.KindBPlusTreeLeaf:
		n, err := LoadLeaf(wh.Bytes(), t.def.KeySize, t.def.InCellValueSize)
		if err != nil {
			return err
		}
		n.SetParent(parent.Page)
	default:
		return fmt.Errorf("btree: setParent on non-node page %s", child)
	}
	return nil
}

type ancestorFrame struct {
	tag  pager.Tag
	wh   *pager.WriteHandle
	node *Interior
}

func releaseAncestors(frames []ancestorFrame) {
	for _, f := range frames {
		f.wh.Release()
	}
}

// Insert stores value under key, splitting nodes bottom-up as needed.
// Duplicate keys are permitted; the new cell lands immediately before
// the first existing cell with an equal or greater key.
func (t *Tree) Insert(key, value []byte) error {
	if len(key) != t.def.KeySize {
		return fmt.Errorf("btree: key size %d does not match tree key size %d", len(key), t.def.KeySize)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	descWh, err := t.p.BorrowExclusive(t.descTag)
	if err != nil {
		return err
	}
	desc := LoadDescriptor(pager.Payload(descWh.Bytes()))

	root, hasRoot := desc.Root()
	if !hasRoot {
		tag, wh, err := t.p.NewPage()
		if err != nil {
			descWh.Release()
			return err
		}
		pager.SetKind(wh.Bytes(), pager.KindBPlusTreeLeaf)
		if _, err := NewLeaf(pager.Payload(wh.Bytes()), t.def); err != nil {
			wh.Release()
			descWh.Release()
			return err
		}
		wh.Release()
		desc.SetRoot(tag.Page)
		root = tag.Page
	}

	var ancestors []ancestorFrame
	curTag := t.p.TagFor(root)
	var leafTag pager.Tag
	var leafWh *pager.WriteHandle
	var leaf *Leaf

	for {
		kind, interior, l, wh, err := t.loadNode(curTag)
		if err != nil {
			releaseAncestors(ancestors)
			descWh.Release()
			return err
		}
		if kind == pager.KindBPlusTreeLeaf {
			leafTag, leafWh, leaf = curTag, wh, l
			break
		}
		child := interior.Descend(t.def.KeyKind, key)
		ancestors = append(ancestors, ancestorFrame{tag: curTag, wh: wh, node: interior})
		curTag = t.p.TagFor(child)
	}

	if leaf.Full(t.def.K) {
		rightTag, rightWh, _, pivot, err := t.splitLeaf(leafTag, leaf)
		if err != nil {
			releaseAncestors(ancestors)
			leafWh.Release()
			descWh.Release()
			return err
		}
		t.stats.splits.Add(1)

		// propagateSplit rewrites both halves' parent fields through
		// fresh borrows, so neither may stay write-locked across it.
		leafWh.Release()
		rightWh.Release()
		if err := t.propagateSplit(ancestors, desc, leafTag, pivot, rightTag); err != nil {
			descWh.Release()
			return err
		}

		if compareKeys(t.def.KeyKind, key, pivot) > 0 {
			leafTag = rightTag
		}
		if leafWh, err = t.p.BorrowExclusive(leafTag); err != nil {
			descWh.Release()
			return err
		}
		if leaf, err = LoadLeaf(leafWh.Bytes(), t.def.KeySize, t.def.InCellValueSize); err != nil {
			leafWh.Release()
			descWh.Release()
			return err
		}
	} else {
		releaseAncestors(ancestors)
	}

	before, haveBefore := leaf.InsertPosition(t.def.KeyKind, key)
	keyRegion, valueRegion, err := leaf.InsertAt(before, haveBefore, key)
	if err != nil {
		leafWh.Release()
		descWh.Release()
		return err
	}
	copy(keyRegion, key)

	if t.def.Variable {
		if _, err := varlen.Write(t.p, valueRegion, value, nil); err != nil {
			leafWh.Release()
			descWh.Release()
			return err
		}
	} else {
		if len(value) > len(valueRegion) {
			leafWh.Release()
			descWh.Release()
			return fmt.Errorf("btree: value of %d bytes exceeds fixed cell size %d", len(value), len(valueRegion))
		}
		copy(valueRegion, value)
	}

	desc.IncrementCount()
	t.stats.inserts.Add(1)

	leafWh.Release()
	descWh.Release()
	return nil
}

// splitLeaf allocates a new leaf, moves the upper half of leaf's
// cells into it, and links the sibling chain.
func (t *Tree) splitLeaf(leafTag pager.Tag, leaf *Leaf) (rightTag pager.Tag, rightWh *pager.WriteHandle, right *Leaf, pivot []byte, err error) {
	rightTag, rightWh, err = t.p.NewPage()
	if err != nil {
		return pager.Tag{}, nil, nil, nil, err
	}
	pager.SetKind(rightWh.Bytes(), pager.KindBPlusTreeLeaf)
	right, err = NewLeaf(pager.Payload(rightWh.Bytes()), t.def)
	if err != nil {
		rightWh.Release()
		return pager.Tag{}, nil, nil, nil, err
	}

	pivot = leaf.SplitInto(right, t.def.K)

	oldNext, hasNext := leaf.Next()
	right.SetNext(oldNextOrZero(hasNext, oldNext))
	right.SetPrev(leafTag.Page)
	leaf.SetNext(rightTag.Page)
	if hasNext {
		if err := t.relinkPrev(t.p.TagFor(oldNext), rightTag.Page); err != nil {
			rightWh.Release()
			return pager.Tag{}, nil, nil, nil, err
		}
	}

	if parent, ok := leaf.Parent(); ok {
		right.SetParent(parent)
	}

	return rightTag, rightWh, right, pivot, nil
}

func oldNextOrZero(has bool, id pager.PageId) pager.PageId {
	if has {
		return id
	}
	return 0
}

func (t *Tree) relinkPrev(tag pager.Tag, newPrev pager.PageId) error {
	wh, err := t.p.BorrowExclusive(tag)
	if err != nil {
		return err
	}
	defer wh.Release()
	l, err := LoadLeaf(wh.Bytes(), t.def.KeySize, t.def.InCellValueSize)
	if err != nil {
		return err
	}
	l.SetPrev(newPrev)
	return nil
}

// propagateSplit walks ancestors from the leaf's immediate parent
// toward the root, inserting (left, pivot, right) at each level,
// splitting interiors as needed, and allocating a new root if the
// split reaches the top.
func (t *Tree) propagateSplit(ancestors []ancestorFrame, desc *Descriptor, left pager.Tag, pivot []byte, right pager.Tag) error {
	for i := len(ancestors) - 1; i >= 0; i-- {
		parent := ancestors[i]

		if !parent.node.Full(t.def.K) {
			if err := parent.node.InsertChild(left.Page, pivot, right.Page); err != nil {
				releaseAncestors(ancestors[:i])
				return err
			}
			if err := t.setParent(right, parent.tag); err != nil {
				releaseAncestors(ancestors[:i])
				return err
			}
			releaseAncestors(ancestors[:i])
			parent.wh.Release()
			return nil
		}

		newTag, newWh, err := t.p.NewPage()
		if err != nil {
			releaseAncestors(ancestors[:i+1])
			return err
		}
		pager.SetKind(newWh.Bytes(), pager.KindBPlusTreeInterior)
		newInterior, err := NewInterior(pager.Payload(newWh.Bytes()), t.def)
		if err != nil {
			newWh.Release()
			releaseAncestors(ancestors[:i+1])
			return err
		}

		parentPivot := parent.node.SplitInto(newInterior, t.def.K)
		t.stats.splits.Add(1)

		if err := t.reparentAll(newInterior, newTag); err != nil {
			newWh.Release()
			releaseAncestors(ancestors[:i+1])
			return err
		}

		if gp, ok := parent.node.Parent(); ok {
			newInterior.SetParent(gp)
		}

		if parent.node.HasChild(left.Page) {
			if err := parent.node.InsertChild(left.Page, pivot, right.Page); err != nil {
				newWh.Release()
				releaseAncestors(ancestors[:i])
				return err
			}
			if err := t.setParent(right, parent.tag); err != nil {
				newWh.Release()
				releaseAncestors(ancestors[:i])
				return err
			}
		} else {
			if err := newInterior.InsertChild(left.Page, pivot, right.Page); err != nil {
				newWh.Release()
				releaseAncestors(ancestors[:i])
				return err
			}
			if err := t.setParent(right, newTag); err != nil {
				newWh.Release()
				releaseAncestors(ancestors[:i])
				return err
			}
		}

		newWh.Release()
		left, pivot, right = parent.tag, parentPivot, newTag
		parent.wh.Release()
	}

	newRootTag, newRootWh, err := t.p.NewPage()
	if err != nil {
		return err
	}
	pager.SetKind(newRootWh.Bytes(), pager.KindBPlusTreeInterior)
	newRoot, err := NewInterior(pager.Payload(newRootWh.Bytes()), t.def)
	if err != nil {
		newRootWh.Release()
		return err
	}
	if err := newRoot.InsertChild(left.Page, pivot, right.Page); err != nil {
		newRootWh.Release()
		return err
	}
	newRootWh.Release()

	if err := t.setParent(left, newRootTag); err != nil {
		return err
	}
	if err := t.setParent(right, newRootTag); err != nil {
		return err
	}
	desc.SetRoot(newRootTag.Page)
	return nil
}

// reparentAll rewrites the parent field of every child (cell lefts and
// tail) now living in n, which was just split off to live at tag.
func (t *Tree) reparentAll(n *Interior, tag pager.Tag) error {
	var children []pager.PageId
	n.iterateChildren(func(id pager.PageId) { children = append(children, id) })
	for _, c := range children {
		if err := t.setParent(t.p.TagFor(c), tag); err != nil {
			return err
		}
	}
	return nil
}

// Search performs a point lookup, returning the stored value (copied
// out, materializing through the spill chain if it spilled) and
// whether key was found.
func (t *Tree) Search(key []byte) ([]byte, bool, error) {
	if len(key) != t.def.KeySize {
		return nil, false, fmt.Errorf("btree: key size %d does not match tree key size %d", len(key), t.def.KeySize)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	t.stats.lookups.Add(1)

	rh, err := t.p.BorrowShared(t.descTag)
	if err != nil {
		return nil, false, err
	}
	desc := LoadDescriptor(pager.Payload(rh.Bytes()))
	root, hasRoot := desc.Root()
	rh.Release()
	if !hasRoot {
		return nil, false, nil
	}

	curTag := t.p.TagFor(root)
	for {
		rh, err := t.p.BorrowShared(curTag)
		if err != nil {
			return nil, false, err
		}
		kind := pager.KindOf(rh.Bytes())
		if kind == pager.KindBPlusTreeLeaf {
			leaf, err := LoadLeaf(rh.Bytes(), t.def.KeySize, t.def.InCellValueSize)
			if err != nil {
				rh.Release()
				return nil, false, err
			}
			_, valueRegion, ok := leaf.Find(t.def.KeyKind, key)
			if !ok {
				rh.Release()
				return nil, false, nil
			}
			if !t.def.Variable {
				out := append([]byte(nil), valueRegion...)
				rh.Release()
				return out, true, nil
			}
			hdr := varlen.DecodeHeader(valueRegion)
			out, err := varlen.Read(t.p, valueRegion, hdr)
			rh.Release()
			if err != nil {
				return nil, false, err
			}
			return out, true, nil
		}

		interior, err := LoadInterior(rh.Bytes(), t.def.KeySize)
		if err != nil {
			rh.Release()
			return nil, false, err
		}
		child := interior.Descend(t.def.KeyKind, key)
		rh.Release()
		curTag = t.p.TagFor(child)
	}
}

// Len returns the tree's element count.
func (t *Tree) Len() (uint64, error) {
	rh, err := t.p.BorrowShared(t.descTag)
	if err != nil {
		return 0, err
	}
	defer rh.Release()
	return LoadDescriptor(pager.Payload(rh.Bytes())).Count(), nil
}
