package scrub

import (
	"github.com/ixrow/storage-core/logger"
	"github.com/ixrow/storage-core/server/innodb/mtr"
	"github.com/ixrow/storage-core/server/innodb/pagestore"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// SpacePage is one physical page an iterator hands the scrubber, in
// physical order (spec §4.6: "Per tablespace, an iterator visits pages in
// physical order"). Image is nil for pages whose Type is not PageTypeIndex.
type SpacePage struct {
	ID      pagestore.PageID
	Type    PageType
	Status  AllocStatus
	IndexID int64
	Image   *PageImage

	// RightSibling is where SplitAllocatedPage writes the right half if
	// reorganizing page.Image overflows. Zero-value when the page cannot
	// be a split candidate (e.g. it is known to already hold < 2 records).
	RightSibling pagestore.PageID
}

// Scrubber runs the scrub algorithm over a tablespace's pages, coordinating
// the buffer pool, the data dictionary, and per-thread statistics.
type Scrubber struct {
	Pool   pagestore.Pool
	Dict   Dictionary
	Global *GlobalStats
}

// NewScrubber creates a Scrubber folding into the given GlobalStats.
func NewScrubber(pool pagestore.Pool, dict Dictionary, global *GlobalStats) *Scrubber {
	return &Scrubber{Pool: pool, Dict: dict, Global: global}
}

// HeaderSize is the zero-fill start offset for a freed page (spec §4.6:
// "Overwrite the frame from the page header to the end"); the header
// itself is left untouched so the page-type byte written afterward
// remains at a stable, known offset.
const HeaderSize = 8

// ScrubSpace iterates pages in physical order, scrubbing each per spec
// §4.6, and folds this thread's final Stats into s.Global before
// returning. scrubEnabled is the per-tablespace on/off switch; spaceStopping
// lets the caller signal space teardown to unblock a dictionary busy-wait.
func (s *Scrubber) ScrubSpace(spaceID uint32, pages []SpacePage, layout *recordcodec.Layout, sink mtr.RedoSink, scrubEnabled bool, spaceStopping func() bool) (Snapshot, error) {
	stats := &Stats{}
	defer func() { s.Global.Fold(stats.Snapshot()) }()

	if !scrubEnabled {
		return stats.Snapshot(), nil
	}

	for _, pg := range pages {
		if spaceStopping() {
			return stats.Snapshot(), nil
		}

		switch pg.Type {
		case PageTypeFree:
			decision := Decide(pg.Type, false, scrubEnabled, true)
			if decision != ScrubPage {
				continue
			}
			guard, err := s.Pool.Get(pg.ID.SpaceID, pg.ID.PageNo, pagestore.ModeExclusive)
			if err != nil {
				stats.UnknownFailures.Inc()
				return stats.Snapshot(), err
			}
			ScrubFreePage(guard, HeaderSize)
			guard.Release()

		case PageTypeIndex:
			hasGarbage := pg.Image != nil && pg.Image.GarbageBytes > 0
			_, known, release := acquireDict(pg.IndexID, s.Dict, spaceStopping)
			release()

			decision := Decide(pg.Type, hasGarbage, scrubEnabled, known)
			switch decision {
			case TurnedOff, SkipPageAndCompleteSpace:
				return stats.Snapshot(), nil
			case SkipPage, SkipPageAndCloseTable:
				continue
			}

			right, err := ScrubAllocatedPage(s.Pool, pg.Image, pg.RightSibling, layout, sink, stats, known)
			if err != nil {
				logger.Warnf("scrub: page %d:%d failed: %v", pg.ID.SpaceID, pg.ID.PageNo, err)
				continue
			}
			_ = right // the caller's page catalog owns recording the new sibling, if any

		default:
			// Blob/undo pages carry no residual clustered-row tombstones
			// this scrubber is responsible for; left untouched.
			continue
		}
	}

	return stats.Snapshot(), nil
}
