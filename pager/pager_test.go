package pager_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corta-db/jardb/filestore"
	"github.com/corta-db/jardb/jarerrors"
	"github.com/corta-db/jardb/pager"
)

func openPager(t *testing.T, cacheBytes int64) *pager.Pager {
	t.Helper()
	store := filestore.NewMemory()
	cfg := pager.DefaultConfig("jar.db")
	cfg.PageSize = 256
	if cacheBytes > 0 {
		cfg.CacheBytes = cacheBytes
	}
	p, err := pager.Open(store, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNewPageRoundTrip(t *testing.T) {
	p := openPager(t, 0)

	tag, wh, err := p.NewPage()
	require.NoError(t, err)
	copy(wh.Bytes(), []byte("hello, jar"))
	wh.Release()
	require.NoError(t, p.Commit())

	rh, err := p.BorrowShared(tag)
	require.NoError(t, err)
	require.Equal(t, []byte("hello, jar"), rh.Bytes()[:10])
	rh.Release()
}

func TestDeletePageReusesFreelist(t *testing.T) {
	p := openPager(t, 0)

	tag1, wh1, err := p.NewPage()
	require.NoError(t, err)
	wh1.Release()
	require.NoError(t, p.Commit())

	require.NoError(t, p.DeletePage(tag1))
	require.NoError(t, p.Commit())

	tag2, wh2, err := p.NewPage()
	require.NoError(t, err)
	wh2.Release()

	require.Equal(t, tag1.Page, tag2.Page, "freed page should be recycled before bumping the high-water mark")
}

func TestEvictionIsTransparent(t *testing.T) {
	// A cache of exactly one page forces every NewPage beyond the first
	// to evict, discharging dirty frames to the stress sink.
	p := openPager(t, 256)

	var tags []pager.Tag
	for i := 0; i < 8; i++ {
		tag, wh, err := p.NewPage()
		require.NoError(t, err)
		copy(wh.Bytes(), []byte{byte(i), byte(i), byte(i)})
		wh.Release()
		tags = append(tags, tag)
	}
	require.NoError(t, p.Commit())

	for i, tag := range tags {
		rh, err := p.BorrowShared(tag)
		require.NoError(t, err)
		require.Equal(t, byte(i), rh.Bytes()[0], "page %d should read back its own content after eviction", i)
		rh.Release()
	}
}

func TestCommitAtomicitySurvivesReopen(t *testing.T) {
	store := filestore.NewMemory()
	cfg := pager.DefaultConfig("jar.db")
	cfg.PageSize = 256

	p, err := pager.Open(store, cfg)
	require.NoError(t, err)

	tag, wh, err := p.NewPage()
	require.NoError(t, err)
	copy(wh.Bytes(), []byte("durable"))
	wh.Release()
	require.NoError(t, p.Commit())
	require.NoError(t, p.Close())

	p2, err := pager.Open(store, cfg)
	require.NoError(t, err)
	defer p2.Close()

	rh, err := p2.BorrowShared(tag)
	require.NoError(t, err)
	require.Equal(t, []byte("durable"), rh.Bytes()[:7])
	rh.Release()
}

func TestBorrowExclusiveContention(t *testing.T) {
	p := openPager(t, 0)

	tag, wh, err := p.NewPage()
	require.NoError(t, err)
	_ = wh // keep the write lock held

	_, err = p.BorrowShared(tag)
	require.ErrorIs(t, err, jarerrors.ErrPageCurrentlyBorrowed)
}
