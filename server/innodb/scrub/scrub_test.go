package scrub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ixrow/storage-core/server/innodb/clust"
	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/mtr"
	"github.com/ixrow/storage-core/server/innodb/pagestore"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

func TestDecideTruthTable(t *testing.T) {
	cases := []struct {
		name       string
		pageType   PageType
		hasGarbage bool
		enabled    bool
		known      bool
		want       Decision
	}{
		{"disabled overrides everything", PageTypeIndex, true, false, true, TurnedOff},
		{"free page always scrubbed when enabled", PageTypeFree, false, true, true, ScrubPage},
		{"blob page is skipped", PageTypeBlob, true, true, true, SkipPage},
		{"undo page is skipped", PageTypeUndo, true, true, true, SkipPage},
		{"unknown index closes table", PageTypeIndex, true, true, false, SkipPageAndCloseTable},
		{"no garbage is skipped", PageTypeIndex, false, true, true, SkipPage},
		{"garbage on known index is scrubbed", PageTypeIndex, true, true, true, ScrubPage},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Decide(c.pageType, c.hasGarbage, c.enabled, c.known))
		})
	}
}

func testLayout() *recordcodec.Layout {
	return recordcodec.NewLayout(
		[]recordcodec.Column{{Name: "id", Type: recordcodec.ColFixed}},
		[]recordcodec.Column{{Name: "val", Type: recordcodec.ColVariable}},
	)
}

func testRow(id int64, val string) recordcodec.Record {
	return recordcodec.Record{Values: []recordcodec.Value{
		recordcodec.IntValue(id), recordcodec.IntValue(1), recordcodec.IntValue(0),
		recordcodec.BytesValue([]byte(val)),
	}}
}

func TestReorganizeAllocatedPagePacksAndClearsGarbage(t *testing.T) {
	layout := testLayout()
	page := &PageImage{
		ID:           pagestore.PageID{SpaceID: 1, PageNo: 4},
		Records:      []recordcodec.Record{testRow(1, "a"), testRow(2, "b")},
		GarbageBytes: 200,
		Capacity:     4096,
	}
	require.NoError(t, ReorganizeAllocatedPage(page, layout, mtr.NullRedoSink{}))
	assert.Zero(t, page.GarbageBytes)
}

func TestReorganizeAllocatedPageOverflowLeavesPageUntouched(t *testing.T) {
	layout := testLayout()
	page := &PageImage{
		ID:           pagestore.PageID{SpaceID: 1, PageNo: 4},
		Records:      []recordcodec.Record{testRow(1, "aaaaaaaaaa"), testRow(2, "bbbbbbbbbb")},
		GarbageBytes: 50,
		Capacity:     1, // too small to hold anything
	}
	err := ReorganizeAllocatedPage(page, layout, mtr.NullRedoSink{})
	require.True(t, kerrors.Is(err, kerrors.Overflow))
	assert.EqualValues(t, 50, page.GarbageBytes, "overflowed page must be left untouched")
}

func TestScrubAllocatedPageSplitsOnOverflow(t *testing.T) {
	layout := testLayout()
	pool := pagestore.NewMemPool(4096)
	page := &PageImage{
		ID:       pagestore.PageID{SpaceID: 1, PageNo: 4},
		Records:  []recordcodec.Record{testRow(1, "aaaaaaaaaa"), testRow(2, "bbbbbbbbbb"), testRow(3, "cccccccccc")},
		Capacity: 1,
	}
	stats := &Stats{}
	right, err := ScrubAllocatedPage(pool, page, pagestore.PageID{SpaceID: 1, PageNo: 5}, layout, mtr.NullRedoSink{}, stats, true)
	require.NoError(t, err)
	require.NotNil(t, right)
	assert.Len(t, page.Records, 1)
	assert.Len(t, right.Records, 2)
	assert.EqualValues(t, 1, stats.Splits.Load())
}

func TestScrubAllocatedPageUnderflowWhenTooFewRecords(t *testing.T) {
	layout := testLayout()
	pool := pagestore.NewMemPool(4096)
	page := &PageImage{
		ID:       pagestore.PageID{SpaceID: 1, PageNo: 4},
		Records:  []recordcodec.Record{testRow(1, "aaaaaaaaaa")},
		Capacity: 1,
	}
	stats := &Stats{}
	_, err := ScrubAllocatedPage(pool, page, pagestore.PageID{SpaceID: 1, PageNo: 5}, layout, mtr.NullRedoSink{}, stats, true)
	require.True(t, kerrors.Is(err, kerrors.Underflow))
	assert.EqualValues(t, 1, stats.UnderflowFailures.Load())
}

func TestScrubAllocatedPageMissingIndexSkipped(t *testing.T) {
	layout := testLayout()
	pool := pagestore.NewMemPool(4096)
	page := &PageImage{ID: pagestore.PageID{SpaceID: 1, PageNo: 4}, Records: []recordcodec.Record{testRow(1, "a")}, Capacity: 4096}
	stats := &Stats{}
	right, err := ScrubAllocatedPage(pool, page, pagestore.PageID{}, layout, mtr.NullRedoSink{}, stats, false)
	require.NoError(t, err)
	assert.Nil(t, right)
	assert.EqualValues(t, 1, stats.MissingIndexFailures.Load())
}

func TestScrubFreePageZeroesFrameAndSetsType(t *testing.T) {
	pool := pagestore.NewMemPool(64)
	guard, err := pool.Get(1, 9, pagestore.ModeExclusive)
	require.NoError(t, err)
	frame := guard.Frame()
	for i := range frame.Data {
		frame.Data[i] = 0xFF
	}
	ScrubFreePage(guard, HeaderSize)
	guard.Release()

	for i := HeaderSize + 1; i < len(frame.Data); i++ {
		assert.Zero(t, frame.Data[i], "byte %d should be zeroed", i)
	}
	assert.Equal(t, byte(PageTypeFree), frame.Data[0])
	for i := 1; i < HeaderSize; i++ {
		assert.Equal(t, byte(0xFF), frame.Data[i], "header byte %d must be left alone", i)
	}
}

type fixedDict struct {
	idx *clust.Index
	ok  bool
}

func (d fixedDict) ResolveIndex(int64) (*clust.Index, bool) { return d.idx, d.ok }

func neverStopping() bool { return false }

func TestAcquireDictResolvesAndReleases(t *testing.T) {
	dict := fixedDict{idx: &clust.Index{Table: "t"}, ok: true}
	idx, ok, release := acquireDict(7, dict, neverStopping)
	require.True(t, ok)
	assert.Equal(t, "t", idx.Table)
	release()
}

func TestScrubSpaceFoldsStatsIntoGlobal(t *testing.T) {
	layout := testLayout()
	pool := pagestore.NewMemPool(4096)
	global := &GlobalStats{}
	sc := NewScrubber(pool, fixedDict{idx: &clust.Index{Table: "t"}, ok: true}, global)

	pages := []SpacePage{
		{ID: pagestore.PageID{SpaceID: 1, PageNo: 1}, Type: PageTypeIndex, IndexID: 9,
			Image: &PageImage{ID: pagestore.PageID{SpaceID: 1, PageNo: 1}, Records: []recordcodec.Record{testRow(1, "a")}, GarbageBytes: 10, Capacity: 4096}},
		{ID: pagestore.PageID{SpaceID: 1, PageNo: 2}, Type: PageTypeFree},
		{ID: pagestore.PageID{SpaceID: 1, PageNo: 3}, Type: PageTypeIndex, IndexID: 9,
			Image: &PageImage{ID: pagestore.PageID{SpaceID: 1, PageNo: 3}, Records: []recordcodec.Record{testRow(2, "b")}, GarbageBytes: 0, Capacity: 4096}},
	}

	snap, err := sc.ScrubSpace(1, pages, layout, mtr.NullRedoSink{}, true, neverStopping)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Reorganizations)
	assert.Equal(t, snap, global.Total())
}

func TestScrubSpaceTurnedOffStopsIteration(t *testing.T) {
	layout := testLayout()
	pool := pagestore.NewMemPool(4096)
	global := &GlobalStats{}
	sc := NewScrubber(pool, fixedDict{idx: &clust.Index{Table: "t"}, ok: true}, global)

	pages := []SpacePage{
		{ID: pagestore.PageID{SpaceID: 1, PageNo: 1}, Type: PageTypeIndex, IndexID: 9,
			Image: &PageImage{Records: []recordcodec.Record{testRow(1, "a")}, GarbageBytes: 10, Capacity: 4096}},
	}
	snap, err := sc.ScrubSpace(1, pages, layout, mtr.NullRedoSink{}, false, neverStopping)
	require.NoError(t, err)
	assert.EqualValues(t, 0, snap.Reorganizations)
}
