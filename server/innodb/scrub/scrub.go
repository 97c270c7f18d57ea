// Package scrub implements the background page scrubber (spec §4.6, L9):
// after deletes and updates leave tombstones on pages, a worker reorganizes
// or splits allocated pages so no residual bytes from purged rows remain
// readable on disk, and zero-fills free pages outright.
package scrub

import (
	"github.com/ixrow/storage-core/server/innodb/pagestore"
)

// AllocStatus mirrors original_source's btr_scrub_page_allocation_status_t:
// a page handed to the scrubber is free, allocated, or of unknown status
// (e.g. the allocation bitmap page itself could not be read).
type AllocStatus int

const (
	StatusFree AllocStatus = iota
	StatusAllocated
	StatusAllocationUnknown
)

// Decision is the five-way outcome of btr_page_needs_scrubbing /
// btr_scrub_recheck_page (original_source's btr0scrub.h).
type Decision int

const (
	// ScrubPage: the page should be scrubbed.
	ScrubPage Decision = iota + 1
	// SkipPage: no scrub, no further action.
	SkipPage
	// SkipPageAndCloseTable: no scrub; the current table handle must be
	// closed (its dictionary entry is stale).
	SkipPageAndCloseTable
	// SkipPageAndCompleteSpace: no scrub; the whole tablespace iteration
	// should stop.
	SkipPageAndCompleteSpace
	// TurnedOff: scrubbing is globally disabled.
	TurnedOff
)

func (d Decision) String() string {
	switch d {
	case ScrubPage:
		return "SCRUB_PAGE"
	case SkipPage:
		return "SKIP_PAGE"
	case SkipPageAndCloseTable:
		return "SKIP_PAGE_AND_CLOSE_TABLE"
	case SkipPageAndCompleteSpace:
		return "SKIP_PAGE_AND_COMPLETE_SPACE"
	case TurnedOff:
		return "TURNED_OFF"
	default:
		return "UNKNOWN"
	}
}

// PageType distinguishes the kinds of pages a tablespace iterator can hand
// the scrubber (spec §4.6: "the page type (index, blob, undo, free)").
type PageType int

const (
	PageTypeIndex PageType = iota
	PageTypeBlob
	PageTypeUndo
	PageTypeFree
)

// Decide implements btr_page_needs_scrubbing's decision table: page type,
// garbage presence, per-space enablement, and whether the index is still
// known to the dictionary.
func Decide(pageType PageType, hasGarbage, scrubEnabled, indexKnown bool) Decision {
	if !scrubEnabled {
		return TurnedOff
	}
	if pageType == PageTypeFree {
		return ScrubPage
	}
	if pageType != PageTypeIndex {
		return SkipPage
	}
	if !indexKnown {
		return SkipPageAndCloseTable
	}
	if !hasGarbage {
		return SkipPage
	}
	return ScrubPage
}

// Block is the buffer-pool frame plus the metadata a decision and a scrub
// need: its physical page type, and (once known) which live index owns it.
type Block struct {
	Guard    *pagestore.Guard
	PageType PageType
	IndexID  int64
}
