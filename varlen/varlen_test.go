package varlen_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corta-db/jardb/filestore"
	"github.com/corta-db/jardb/pager"
	"github.com/corta-db/jardb/varlen"
)

func openPager(t *testing.T, pageSize uint32) *pager.Pager {
	t.Helper()
	store := filestore.NewMemory()
	cfg := pager.DefaultConfig("jar.db")
	cfg.PageSize = pageSize
	p, err := pager.Open(store, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// TestWriteReadRoundTrip is scenario S3: a 1,000,000-byte blob written
// into a 100-byte in-page region on a 4096-byte pager must spill, and
// reading it back must reproduce the original bytes exactly.
func TestWriteReadRoundTrip(t *testing.T) {
	p := openPager(t, 4096)

	value := make([]byte, 1_000_000)
	_, err := rand.Read(value)
	require.NoError(t, err)

	region := make([]byte, varlen.HeaderSize+100)
	hdr, err := varlen.Write(p, region, value, nil)
	require.NoError(t, err)

	require.Equal(t, uint64(100), hdr.InPageSize)
	require.Equal(t, uint64(1_000_000), hdr.TotalSize)
	require.Equal(t, pager.PageId(1), hdr.SpillHead)
	require.True(t, hdr.HasSpilled())

	got, err := varlen.Read(p, region, hdr)
	require.NoError(t, err)
	require.Equal(t, value, got)
}

// TestRoundTripLawForVariousSizes is property 4: read(write(x)) == x
// for byte strings and region sizes that exercise zero spill, partial
// spill, and many-page spill.
func TestRoundTripLawForVariousSizes(t *testing.T) {
	p := openPager(t, 512)

	cases := []struct {
		name       string
		valueLen   int
		inlineSize int
	}{
		{"empty value", 0, 0},
		{"fits entirely inline", 10, 100},
		{"exact inline boundary", 50, 50},
		{"one byte over inline", 51, 50},
		{"several spill pages", 5000, 32},
		{"zero inline capacity", 300, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			value := make([]byte, tc.valueLen)
			_, err := rand.Read(value)
			require.NoError(t, err)

			region := make([]byte, varlen.HeaderSize+tc.inlineSize)
			hdr, err := varlen.Write(p, region, value, nil)
			require.NoError(t, err)

			got, err := varlen.Read(p, region, hdr)
			require.NoError(t, err)
			require.Equal(t, value, got)

			require.LessOrEqual(t, int(hdr.InPageSize), tc.inlineSize)
			require.Equal(t, hdr.HasSpilled(), hdr.InPageSize < hdr.TotalSize)
		})
	}
}

// TestShrinkingOverwriteFreesSpillPages: writing a shorter value into a
// region that previously held a longer, spilled one must free the
// newly-unused spill pages rather than leaking them.
func TestShrinkingOverwriteFreesSpillPages(t *testing.T) {
	p := openPager(t, 256)

	region := make([]byte, varlen.HeaderSize+16)
	big := make([]byte, 2000)
	_, err := rand.Read(big)
	require.NoError(t, err)

	hdr1, err := varlen.Write(p, region, big, nil)
	require.NoError(t, err)
	require.True(t, hdr1.HasSpilled())
	lenBefore := p.Len()
	require.Greater(t, lenBefore, uint64(1))

	small := []byte("tiny value")
	hdr2, err := varlen.Write(p, region, small, &hdr1)
	require.NoError(t, err)
	require.False(t, hdr2.HasSpilled())

	tag, wh, err := p.NewPage()
	require.NoError(t, err)
	wh.Release()
	require.Equal(t, pager.PageId(lenBefore), tag.Page,"freed spill pages must be recycled from the freelist before bumping the high-water mark")

	got, err := varlen.Read(p, region, hdr2)
	require.NoError(t, err)
	require.Equal(t, small, got)
}

// TestInlineRejectsSpilledValue covers ErrSpilledVar: a caller asking
// for the unspilled view of a value that spilled must get an error,
// not truncated bytes.
func TestInlineRejectsSpilledValue(t *testing.T) {
	p := openPager(t, 256)
	region := make([]byte, varlen.HeaderSize+8)

	value := make([]byte, 500)
	hdr, err := varlen.Write(p, region, value, nil)
	require.NoError(t, err)
	require.True(t, hdr.HasSpilled())

	_, err = varlen.Inline(region, hdr)
	require.Error(t, err)
}

// TestChunksYieldsSameBytesAsRead exercises the non-materializing
// iterator against the materializing Read for the same header.
func TestChunksYieldsSameBytesAsRead(t *testing.T) {
	p := openPager(t, 256)
	region := make([]byte, varlen.HeaderSize+20)

	value := make([]byte, 900)
	_, err := rand.Read(value)
	require.NoError(t, err)

	hdr, err := varlen.Write(p, region, value, nil)
	require.NoError(t, err)

	var assembled []byte
	err = varlen.Chunks(p, region, hdr, func(chunk []byte) bool {
		assembled = append(assembled, chunk...)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, value, assembled)
}

// TestValueHandle exercises the Value wrapper spec.md §9 asks for: a
// single owning type that can materialize or iterate.
func TestValueHandle(t *testing.T) {
	p := openPager(t, 256)
	region := make([]byte, varlen.HeaderSize+8)

	value := []byte("a value longer than the inline region allows")
	hdr, err := varlen.Write(p, region, value, nil)
	require.NoError(t, err)

	v := varlen.Open(p, region, hdr)
	require.True(t, v.Spilled())
	require.Equal(t, uint64(len(value)), v.Len())

	got, err := v.Bytes()
	require.NoError(t, err)
	require.Equal(t, value, got)
}
