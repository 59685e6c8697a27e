package btree

import (
	"encoding/binary"

	"github.com/corta-db/jardb/jarerrors"
	"github.com/corta-db/jardb/pager"
)

// KeyKind describes how a tree's fixed-width key bytes compare.
type KeyKind uint8

const (
	KeyKindUint64 KeyKind = iota
	KeyKindBytes
)

func (k KeyKind) String() string {
	switch k {
	case KeyKindUint64:
		return "uint64"
	case KeyKindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// ValueKind tags the semantic type of a tree's values, independent of
// whether they are stored fixed-size or variable-length.
type ValueKind uint8

const (
	ValueKindUint64 ValueKind = iota
	ValueKindBytes
)

func (v ValueKind) String() string {
	switch v {
	case ValueKindUint64:
		return "uint64"
	case ValueKindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

const flagVariableValue uint8 = 1 << 0

// Descriptor header layout, BigEndian, laid out over a
// KindBPlusTreeDescriptor page's payload:
//
//	k(2) flags(1) keyKind(1) valueKind(1) pad(1) keySize(2)
//	inCellValueSize(2) pageSize(4) root(8) count(8)
const (
	descHeaderOffsetK               = 0
	descHeaderOffsetFlags           = 2
	descHeaderOffsetKeyKind         = 3
	descHeaderOffsetValueKind       = 4
	descHeaderOffsetKeySize         = 6
	descHeaderOffsetInCellValueSize = 8
	descHeaderOffsetPageSize        = 10
	descHeaderOffsetRoot            = 14
	descHeaderOffsetCount           = 22
	DescriptorSize                  = 30
)

// Definition is a validated degree/layout choice for a tree, computed
// once by Determine and stored immutably (other than Root/Count) in
// the descriptor page.
type Definition struct {
	K               int
	Variable        bool
	KeyKind         KeyKind
	ValueKind       ValueKind
	KeySize         int
	InCellValueSize int
	PageSize        uint32
}

// Descriptor is a view over a tree's descriptor page.
type Descriptor struct {
	region []byte
}

// NewDescriptor initializes region (a fresh KindBPlusTreeDescriptor
// page's payload) from def.
func NewDescriptor(region []byte, def Definition) *Descriptor {
	d := &Descriptor{region: region}
	binary.BigEndian.PutUint16(region[descHeaderOffsetK:], uint16(def.K))
	var flags uint8
	if def.Variable {
		flags |= flagVariableValue
	}
	region[descHeaderOffsetFlags] = flags
	region[descHeaderOffsetKeyKind] = uint8(def.KeyKind)
	region[descHeaderOffsetValueKind] = uint8(def.ValueKind)
	binary.BigEndian.PutUint16(region[descHeaderOffsetKeySize:], uint16(def.KeySize))
	binary.BigEndian.PutUint16(region[descHeaderOffsetInCellValueSize:], uint16(def.InCellValueSize))
	binary.BigEndian.PutUint32(region[descHeaderOffsetPageSize:], def.PageSize)
	binary.BigEndian.PutUint64(region[descHeaderOffsetRoot:], 0)
	binary.BigEndian.PutUint64(region[descHeaderOffsetCount:], 0)
	return d
}

// LoadDescriptor wraps region, which must already hold a descriptor
// written by NewDescriptor.
func LoadDescriptor(region []byte) *Descriptor {
	return &Descriptor{region: region}
}

func (d *Descriptor) K() int { return int(binary.BigEndian.Uint16(d.region[descHeaderOffsetK:])) }

func (d *Descriptor) Variable() bool {
	return d.region[descHeaderOffsetFlags]&flagVariableValue != 0
}

func (d *Descriptor) KeyKind() KeyKind     { return KeyKind(d.region[descHeaderOffsetKeyKind]) }
func (d *Descriptor) ValueKind() ValueKind { return ValueKind(d.region[descHeaderOffsetValueKind]) }

func (d *Descriptor) KeySize() int {
	return int(binary.BigEndian.Uint16(d.region[descHeaderOffsetKeySize:]))
}

func (d *Descriptor) InCellValueSize() int {
	return int(binary.BigEndian.Uint16(d.region[descHeaderOffsetInCellValueSize:]))
}

func (d *Descriptor) PageSize() uint32 {
	return binary.BigEndian.Uint32(d.region[descHeaderOffsetPageSize:])
}

func (d *Descriptor) Root() (pager.PageId, bool) {
	id := pager.PageId(binary.BigEndian.Uint64(d.region[descHeaderOffsetRoot:]))
	return id, id != 0
}

func (d *Descriptor) SetRoot(id pager.PageId) {
	binary.BigEndian.PutUint64(d.region[descHeaderOffsetRoot:], uint64(id))
}

func (d *Descriptor) Count() uint64 {
	return binary.BigEndian.Uint64(d.region[descHeaderOffsetCount:])
}

func (d *Descriptor) SetCount(n uint64) {
	binary.BigEndian.PutUint64(d.region[descHeaderOffsetCount:], n)
}

func (d *Descriptor) IncrementCount() { d.SetCount(d.Count() + 1) }

// Definition reassembles the Definition the descriptor was built from.
func (d *Descriptor) Definition() Definition {
	return Definition{
		K:               d.K(),
		Variable:        d.Variable(),
		KeyKind:         d.KeyKind(),
		ValueKind:       d.ValueKind(),
		KeySize:         d.KeySize(),
		InCellValueSize: d.InCellValueSize(),
		PageSize:        d.PageSize(),
	}
}

// CheckKeyKind validates that got matches the descriptor's declared
// key kind. Tree.Insert and Tree.Search do not call it: they take raw
// key bytes and check only their length against the key size.
func (d *Descriptor) CheckKeyKind(got KeyKind) error {
	if got != d.KeyKind() {
		return &jarerrors.WrongValueKind{Expected: d.KeyKind(), Got: got}
	}
	return nil
}

// CheckValueKind validates that got matches the descriptor's declared
// value kind.
func (d *Descriptor) CheckValueKind(got ValueKind) error {
	if got != d.ValueKind() {
		return &jarerrors.WrongValueKind{Expected: d.ValueKind(), Got: got}
	}
	return nil
}
