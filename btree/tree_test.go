package btree_test

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corta-db/jardb/btree"
	"github.com/corta-db/jardb/filestore"
	"github.com/corta-db/jardb/pager"
)

// u128Key encodes v as a fixed 16-byte big-endian key. The tree has no
// dedicated u128 KeyKind; a fixed-width, zero-extended big-endian
// encoding compared lexicographically (btree.KeyKindBytes) preserves
// numeric order exactly the way btree.KeyKindUint64 does for 8-byte
// keys, so it stands in for the spec's 128-bit key scenarios.
func u128Key(v uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[8:], v)
	return buf
}

func newTree(t *testing.T, cfg btree.Config) *btree.Tree {
	t.Helper()
	store := filestore.NewMemory()
	cfg.Pager.Path = "jar.db"
	tr, err := btree.Create(store, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

// TestVariableSizedValueRoundTrip is scenario S5: a u128-keyed,
// byte-string-valued tree storing (18, "test") must return "test" on
// search.
func TestVariableSizedValueRoundTrip(t *testing.T) {
	pcfg := pager.DefaultConfig("jar.db")
	pcfg.PageSize = 4096

	cfg := btree.Config{
		Pager:             pcfg,
		KeyKind:           btree.KeyKindBytes,
		KeySize:           16,
		ValueKind:         btree.ValueKindBytes,
		Variable:          true,
		DeclaredValueSize: 256,
	}
	tr := newTree(t, cfg)

	require.NoError(t, tr.Insert(u128Key(18), []byte("test")))

	got, ok, err := tr.Search(u128Key(18))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("test"), got)

	_, ok, err = tr.Search(u128Key(19))
	require.NoError(t, err)
	require.False(t, ok)
}

// TestBulkInsertOrderAndLookup is scenario S6: 1000 distinct keys
// inserted with random uint64 values must all be individually
// searchable, the descriptor count must equal 1000, and walking the
// leaf chain head to tail must yield keys in order.
func TestBulkInsertOrderAndLookup(t *testing.T) {
	pcfg := pager.DefaultConfig("jar.db")
	pcfg.PageSize = 4096

	cfg := btree.Config{
		Pager:             pcfg,
		KeyKind:           btree.KeyKindBytes,
		KeySize:           16,
		ValueKind:         btree.ValueKindUint64,
		Variable:          false,
		DeclaredValueSize: 8,
	}
	tr := newTree(t, cfg)

	const n = 1000
	values := make([]uint64, n)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < n; i++ {
		values[i] = rng.Uint64()
	}

	for i := 0; i < n; i++ {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, values[i])
		require.NoError(t, tr.Insert(u128Key(uint64(i)), buf))
	}

	got, ok, err := tr.Search(u128Key(477))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, values[477], binary.BigEndian.Uint64(got))

	count, err := tr.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(n), count)

	cur := tr.NewCursor()
	require.NoError(t, cur.SeekHead())
	var seen []uint64
	for cur.Valid() {
		k, err := cur.Key()
		require.NoError(t, err)
		seen = append(seen, binary.BigEndian.Uint64(k[8:]))
		require.NoError(t, cur.Next())
	}
	require.Len(t, seen, n)
	for i := 0; i < n; i++ {
		require.Equal(t, uint64(i), seen[i], "leaf chain must yield keys in non-decreasing order")
	}
}

// TestSearchMissReturnsFalse is property 7's negative half: a key
// never inserted returns found=false, not an error.
func TestSearchMissReturnsFalse(t *testing.T) {
	pcfg := pager.DefaultConfig("jar.db")
	pcfg.PageSize = 1024
	cfg := btree.Config{
		Pager:             pcfg,
		KeyKind:           btree.KeyKindUint64,
		KeySize:           8,
		ValueKind:         btree.ValueKindUint64,
		Variable:          false,
		DeclaredValueSize: 8,
	}
	tr := newTree(t, cfg)

	_, ok, err := tr.Search(btree.EncodeUint64Key(404))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tr.Insert(btree.EncodeUint64Key(1), []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	_, ok, err = tr.Search(btree.EncodeUint64Key(404))
	require.NoError(t, err)
	require.False(t, ok)
}

// TestInsertForcesMultipleSplits exercises node splitting on a small
// page size so that many inserts are guaranteed to split leaves and
// grow the tree past a single root interior level.
func TestInsertForcesMultipleSplits(t *testing.T) {
	pcfg := pager.DefaultConfig("jar.db")
	pcfg.PageSize = 256

	cfg := btree.Config{
		Pager:             pcfg,
		KeyKind:           btree.KeyKindUint64,
		KeySize:           8,
		ValueKind:         btree.ValueKindUint64,
		Variable:          false,
		DeclaredValueSize: 8,
	}
	tr := newTree(t, cfg)

	const n = 500
	for i := uint64(0); i < n; i++ {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, i*7)
		require.NoError(t, tr.Insert(btree.EncodeUint64Key(i), buf))
	}

	count, err := tr.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(n), count)

	for i := uint64(0); i < n; i++ {
		got, ok, err := tr.Search(btree.EncodeUint64Key(i))
		require.NoError(t, err)
		require.True(t, ok, "key %d should be found after splitting", i)
		require.Equal(t, i*7, binary.BigEndian.Uint64(got))
	}
}

// TestDuplicateKeyInsertKeepsMostRecentWinnerOnLookup documents the Open
// Question decision recorded in DESIGN.md: inserting a second value
// under an already-present key does not replace it; Search
// consistently returns whichever cell the left-to-right scan reaches
// first (the most recently inserted one).
func TestDuplicateKeyInsertKeepsMostRecentWinnerOnLookup(t *testing.T) {
	pcfg := pager.DefaultConfig("jar.db")
	pcfg.PageSize = 1024
	cfg := btree.Config{
		Pager:             pcfg,
		KeyKind:           btree.KeyKindUint64,
		KeySize:           8,
		ValueKind:         btree.ValueKindUint64,
		Variable:          false,
		DeclaredValueSize: 8,
	}
	tr := newTree(t, cfg)

	first := []byte{1, 1, 1, 1, 1, 1, 1, 1}
	second := []byte{2, 2, 2, 2, 2, 2, 2, 2}
	require.NoError(t, tr.Insert(btree.EncodeUint64Key(9), first))
	require.NoError(t, tr.Insert(btree.EncodeUint64Key(9), second))

	got, ok, err := tr.Search(btree.EncodeUint64Key(9))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second, got, "each insert under an equal key splices in ahead of prior equals, so the most recent insert wins the left-to-right scan")

	count, err := tr.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(2), count, "duplicate keys still each occupy their own cell")
}
