package btree

import (
	"github.com/corta-db/jardb/cellpage"
	"github.com/corta-db/jardb/jarerrors"
	"github.com/corta-db/jardb/varlen"
)

const (
	minDegree = 2
	maxDegree = 254

	interiorCellFixedSize = 8 // left_child PageId
)

// DetermineRequest captures the caller's intent for a new tree; see
// Determine.
type DetermineRequest struct {
	PageSize          uint32
	KeyKind           KeyKind
	KeySize           int
	ValueKind         ValueKind
	Variable          bool
	DeclaredValueSize int // fixed values: the exact value size, kept whole in-cell; variable values: the most in-cell space to set aside
}

// Determine picks the largest degree k in [2, 254] for which both
// interior and leaf cells of req fit within a page (for fixed-size
// values, with the whole declared value in-cell), and the per-cell
// value space they imply. It fails with ErrInvalidBPlusTreeDefinition
// if no such k exists.
func Determine(req DetermineRequest) (Definition, error) {
	pageBody := int(req.PageSize) - 1 // bytes after the kind tag
	interiorBase := cellpageBaseSize(interiorMetaSize)
	leafBase := cellpageBaseSize(leafMetaSize)

	for k := maxDegree; k >= minDegree; k-- {
		// cellpage.New lays each slot out as CellHeaderSize + content, so
		// every cell-size computed here must budget for that header on
		// top of the content it carries.
		interiorCellSize := cellpage.CellHeaderSize + interiorCellFixedSize + req.KeySize
		if interiorBase+interiorCellSize*k > pageBody {
			continue
		}

		freeForLeaf := pageBody - leafBase
		if freeForLeaf <= 0 {
			continue
		}
		availableValueSize := freeForLeaf/k - cellpage.CellHeaderSize - req.KeySize
		if availableValueSize <= 0 {
			continue
		}

		inCellValueSize := availableValueSize
		if req.DeclaredValueSize < inCellValueSize {
			inCellValueSize = req.DeclaredValueSize
		}
		if !req.Variable && inCellValueSize < req.DeclaredValueSize {
			continue
		}
		if req.Variable && inCellValueSize < varlen.HeaderSize {
			continue
		}
		if inCellValueSize <= 0 {
			continue
		}

		leafCellSize := cellpage.CellHeaderSize + req.KeySize + inCellValueSize
		if leafBase+leafCellSize*k > pageBody {
			continue
		}

		return Definition{
			K:               k,
			Variable:        req.Variable,
			KeyKind:         req.KeyKind,
			ValueKind:       req.ValueKind,
			KeySize:         req.KeySize,
			InCellValueSize: inCellValueSize,
			PageSize:        req.PageSize,
		}, nil
	}

	return Definition{}, jarerrors.ErrInvalidBPlusTreeDefinition
}

// cellpageBaseSize mirrors cellpage.New's base-offset computation: the
// CellsMeta header plus a caller-reserved block.
func cellpageBaseSize(reservedBytes int) int {
	return cellpage.MetaSize + reservedBytes
}
