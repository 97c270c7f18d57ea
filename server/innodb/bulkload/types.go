// Package bulkload implements the online index bulk builder (spec §4.5):
// scan the clustered index once under a snapshot, form candidate entries
// for every new index, external-merge-sort them into runs, and bulk-load
// the sorted result straight into packed B-tree leaves rather than paying
// for one-at-a-time page splits.
package bulkload

import (
	"context"

	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// DefaultFillFraction is the leaf-packing target a loader uses when an
// IndexDef does not set its own: InnoDB's online DDL loader defaults to
// just under full to leave room for the first few post-build inserts
// before any page has to split.
const DefaultFillFraction = 0.93

// DefaultBufferBound bounds how many rows an in-memory sort batch holds
// before it is spilled, when Options.BufferBound is left at zero.
const DefaultBufferBound = 4096

// IndexDef describes one new index being built alongside the scan.
type IndexDef struct {
	Name string
	// Translate forms the candidate index row (key columns first, per
	// Layout.PKColCount) from a visible clustered row. It is also where a
	// caller applies its own column map, default values, AUTO_INCREMENT
	// sequence, and any full-text tokenization or other virtual-column
	// computation; a returned error is surfaced as COMPUTE_VALUE_FAILED.
	Translate func(row recordcodec.Record) (recordcodec.Record, error)
	Layout    *recordcodec.Layout
	Unique    bool
	Order     int     // tree fan-out; DefaultOrder if zero
	FillFrac  float64  // leaf packing target; DefaultFillFraction if zero
}

// Progress reports the bulk builder's two metrics (spec §4.5): rows
// scanned against the estimated total, and merge passes completed against
// the ceil(log2(initial runs)) a caller can expect.
type Progress struct {
	RowsScanned      int64
	RowsEstimated    int64
	MergePasses      int
	MergePassesTotal int
}

// Options configures one Build call.
type Options struct {
	ScratchDir    string
	BufferBound   int // rows per in-memory sort batch before spilling
	EstimatedRows int64
	Reporter      func(Progress)
	Ctx           context.Context
}

// Result is one index's finished build.
type Result struct {
	RowsScanned int64
}
