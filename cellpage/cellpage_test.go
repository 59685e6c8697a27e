package cellpage_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corta-db/jardb/cellpage"
)

func collectUsed(p *cellpage.Page) []uint64 {
	var out []uint64
	p.Iterate(func(_ cellpage.CellId, content []byte) bool {
		out = append(out, binary.BigEndian.Uint64(content))
		return true
	})
	return out
}

// TestSplitAtInto is scenario S4: five u64 cells split at index 3 must
// leave [0,1,2] behind with free_len == 2, and move [3,4] into the
// destination with free_len == 0.
func TestSplitAtInto(t *testing.T) {
	region := make([]byte, 512)
	src, err := cellpage.New(region, 8, 5, 0)
	require.NoError(t, err)

	for i := uint64(0); i < 5; i++ {
		_, content, err := src.Push()
		require.NoError(t, err)
		binary.BigEndian.PutUint64(content, i)
	}

	destRegion := make([]byte, 512)
	dest, err := cellpage.New(destRegion, 8, 5, 0)
	require.NoError(t, err)

	src.SplitAtInto(dest, 3)

	require.Equal(t, []uint64{0, 1, 2}, collectUsed(src))
	require.Equal(t, 2, src.FreeLen())
	require.Equal(t, []uint64{3, 4}, collectUsed(dest))
	require.Equal(t, 0, dest.FreeLen())
}

// TestPushFillsCapacityThenFails exercises CellPageFull once every slot
// is in use.
func TestPushFillsCapacityThenFails(t *testing.T) {
	region := make([]byte, 256)
	p, err := cellpage.New(region, 8, 3, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := p.Push()
		require.NoError(t, err)
	}

	_, _, err = p.Push()
	require.Error(t, err)
}

// TestNewRejectsOverflowingLayout exercises CellPageOverflow when the
// requested capacity/content size cannot fit in the region.
func TestNewRejectsOverflowingLayout(t *testing.T) {
	region := make([]byte, 64)
	_, err := cellpage.New(region, 32, 10, 0)
	require.Error(t, err)
}

// TestFreeThenPushReusesSlot: freeing a cell returns it to the free
// list, and the next allocation (push or insert) pops it back out
// before bumping len.
func TestFreeThenPushReusesSlot(t *testing.T) {
	region := make([]byte, 256)
	p, err := cellpage.New(region, 8, 4, 0)
	require.NoError(t, err)

	cid1, content1, err := p.Push()
	require.NoError(t, err)
	binary.BigEndian.PutUint64(content1, 111)
	cid2, content2, err := p.Push()
	require.NoError(t, err)
	binary.BigEndian.PutUint64(content2, 222)

	lenBefore := p.Len()
	p.Free(cid1)
	require.Equal(t, 1, p.FreeLen())
	require.Equal(t, []uint64{222}, collectUsed(p))

	cid3, content3, err := p.Push()
	require.NoError(t, err)
	binary.BigEndian.PutUint64(content3, 333)

	require.Equal(t, lenBefore, p.Len(), "reusing a freed slot must not bump len")
	require.Equal(t, cid1, cid3, "free list is LIFO: the most recently freed slot is reused first")
	require.Equal(t, 0, p.FreeLen())
	_ = cid2
}

// TestInsertBeforeAndAfterPreserveOrder exercises the used list's
// ordering guarantees under InsertBefore/InsertAfter.
func TestInsertBeforeAndAfterPreserveOrder(t *testing.T) {
	region := make([]byte, 256)
	p, err := cellpage.New(region, 8, 5, 0)
	require.NoError(t, err)

	cidMid, content, err := p.Push()
	require.NoError(t, err)
	binary.BigEndian.PutUint64(content, 10)

	_, afterContent, err := p.InsertAfter(cidMid)
	require.NoError(t, err)
	binary.BigEndian.PutUint64(afterContent, 20)

	_, beforeContent, err := p.InsertBefore(cidMid)
	require.NoError(t, err)
	binary.BigEndian.PutUint64(beforeContent, 5)

	require.Equal(t, []uint64{5, 10, 20}, collectUsed(p))
}

// TestReservedBlockIsolatedFromCells checks that the caller-reserved
// block (used by btree Interior/Leaf for their own node headers) is
// distinct from cell content and survives cell operations untouched.
func TestReservedBlockIsolatedFromCells(t *testing.T) {
	region := make([]byte, 256)
	p, err := cellpage.New(region, 8, 3, 16)
	require.NoError(t, err)

	reserved := p.Reserved()
	require.Len(t, reserved, 16)
	binary.BigEndian.PutUint64(reserved[0:8], 0xdeadbeef)

	_, content, err := p.Push()
	require.NoError(t, err)
	binary.BigEndian.PutUint64(content, 42)

	require.Equal(t, uint64(0xdeadbeef), binary.BigEndian.Uint64(p.Reserved()[0:8]))
}
