package scrub

import (
	"github.com/golang/snappy"

	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/mtr"
	"github.com/ixrow/storage-core/server/innodb/pagestore"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// PageImage is the in-memory model of one allocated index page's live
// records, standing in for the raw frame byte layout spec.md §1 keeps out
// of scope: a page's true on-disk format is a buffer-pool/page-codec
// concern outside this core.
type PageImage struct {
	ID       pagestore.PageID
	IndexID  int64
	Capacity int // bytes available for the packed, compressed payload
	Records  []recordcodec.Record

	// GarbageBytes is the residual tombstone space a prior delete/update
	// left behind; reorganizing packs live Records and discards it.
	GarbageBytes int
}

// packedSize is the frame footprint Records would occupy once rebuilt
// contiguously with no garbage between them: each record snappy-compressed
// independently, as a real page codec would compress a record block.
func packedSize(layout *recordcodec.Layout, records []recordcodec.Record) int {
	total := 0
	for _, rec := range records {
		total += len(snappy.Encode(nil, recordcodec.Encode(layout, rec)))
	}
	return total
}

// ReorganizeAllocatedPage implements spec §4.6 step 2 on the PageImage
// model: when the packed size fits, it sets GarbageBytes to zero and logs
// a page-reorganize redo record; no frame bytes are written. It reports kerrors.Overflow if the packed payload does not fit in
// page.Capacity, leaving page untouched so the caller can fall back to a
// pessimistic split.
func ReorganizeAllocatedPage(page *PageImage, layout *recordcodec.Layout, sink mtr.RedoSink) error {
	size := packedSize(layout, page.Records)
	if size > page.Capacity {
		return kerrors.New(kerrors.Overflow)
	}
	page.GarbageBytes = 0

	m := mtr.Begin(sink)
	m.Log(mtr.Record{Type: mtr.RecPageReorganize, SpaceID: page.ID.SpaceID, PageNo: page.ID.PageNo})
	return m.Commit()
}

// SplitAllocatedPage implements spec §4.6 step 3: split page's records
// roughly in half between page (now holding the left half) and a fresh
// right sibling, x-latching both through pool. Called only once
// ReorganizeAllocatedPage has reported Overflow and page holds >= 2
// records.
func SplitAllocatedPage(pool pagestore.Pool, page *PageImage, rightID pagestore.PageID, layout *recordcodec.Layout, sink mtr.RedoSink) (*PageImage, error) {
	if len(page.Records) < 2 {
		return nil, kerrors.New(kerrors.Underflow)
	}

	leftGuard, err := pool.Get(page.ID.SpaceID, page.ID.PageNo, pagestore.ModeExclusive)
	if err != nil {
		return nil, err
	}
	defer leftGuard.Release()
	rightGuard, err := pool.Get(rightID.SpaceID, rightID.PageNo, pagestore.ModeExclusive)
	if err != nil {
		return nil, err
	}
	defer rightGuard.Release()

	mid := len(page.Records) / 2
	right := &PageImage{ID: rightID, IndexID: page.IndexID, Capacity: page.Capacity, Records: append([]recordcodec.Record(nil), page.Records[mid:]...)}
	page.Records = page.Records[:mid]
	page.GarbageBytes = 0

	m := mtr.Begin(sink)
	m.Pin(leftGuard)
	m.Pin(rightGuard)
	m.Log(mtr.Record{Type: mtr.RecPageSplit, SpaceID: page.ID.SpaceID, PageNo: page.ID.PageNo})
	m.Log(mtr.Record{Type: mtr.RecPageSplit, SpaceID: rightID.SpaceID, PageNo: rightID.PageNo})
	if err := m.Commit(); err != nil {
		return nil, err
	}
	return right, nil
}

// ScrubAllocatedPage runs the full allocated-index-page algorithm of spec
// §4.6: optimistic reorganize, falling back to a pessimistic split on
// overflow, recording UNDERFLOW when the page is too sparse to split.
// indexKnown reports step 1's recheck ("the page still belongs to the
// known table and index"); a false result skips the page entirely.
func ScrubAllocatedPage(pool pagestore.Pool, page *PageImage, rightID pagestore.PageID, layout *recordcodec.Layout, sink mtr.RedoSink, stats *Stats, indexKnown bool) (*PageImage, error) {
	if !indexKnown {
		stats.MissingIndexFailures.Inc()
		return nil, nil
	}

	if err := ReorganizeAllocatedPage(page, layout, sink); err == nil {
		stats.Reorganizations.Inc()
		return nil, nil
	} else if !kerrors.Is(err, kerrors.Overflow) {
		stats.UnknownFailures.Inc()
		return nil, err
	}

	if len(page.Records) < 2 {
		stats.UnderflowFailures.Inc()
		return nil, kerrors.New(kerrors.Underflow)
	}

	right, err := SplitAllocatedPage(pool, page, rightID, layout, sink)
	if err != nil {
		if kerrors.Is(err, kerrors.OutOfFileSpace) {
			stats.OutOfFilespaceFailures.Inc()
		} else {
			stats.UnknownFailures.Inc()
		}
		return nil, err
	}
	stats.Splits.Inc()
	return right, nil
}

// ScrubFreePage implements spec §4.6's "Scrubbing a free page": the frame
// is overwritten from the page header to the end with zero bytes, the
// page-type header set to FREE, and an empty page re-created in place
// without logging, "so that a crash re-scrubs on restart" — this is the
// one mutation in the whole core that deliberately bypasses mtr.
func ScrubFreePage(guard *pagestore.Guard, headerSize int) {
	frame := guard.Frame()
	for i := headerSize; i < len(frame.Data); i++ {
		frame.Data[i] = 0
	}
	if len(frame.Data) > 0 {
		frame.Data[0] = byte(PageTypeFree)
	}
}
