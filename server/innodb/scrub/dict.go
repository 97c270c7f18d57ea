package scrub

import (
	"time"

	"github.com/ixrow/storage-core/logger"
	"github.com/ixrow/storage-core/server/innodb/clust"
	"github.com/ixrow/storage-core/server/innodb/latch"
)

// dictSlice is the re-check granularity spec §5 names: "Scrubber's
// dictionary acquisition yields in 250 ms slices and re-checks 'space is
// stopping' before every retry."
const dictSlice = 250 * time.Millisecond

// dictDiagnosticAfter is the cumulative busy-wait duration after which one
// warning is logged (spec §4.6): "a bounded busy-wait with a 30-second
// diagnostic after which a warning is logged."
const dictDiagnosticAfter = 30 * time.Second

// Dictionary resolves a page's index id to the live index object, the
// dict.open_table_by_index_id collaborator of spec §6. The catalog itself
// is out of scope; this is only the shape the scrubber consumes.
type Dictionary interface {
	ResolveIndex(indexID int64) (*clust.Index, bool)
}

// dictLatch is the single global data-dictionary latch every scrubber
// thread contends on (spec §5: "Dict latch: one per catalog; freezes
// read-mostly, upgrades rarely"). Reusing latch.Latch rather than a new
// type keeps it the same primitive every other layer latches with.
var dictLatch = latch.NewLatch()

// acquireDict briefly S-latches the dictionary to resolve indexID, busy-
// waiting in dictSlice increments while spaceStopping returns false. It
// never blocks indefinitely across I/O: the caller must release the latch
// (via the returned release func) before doing any I/O of its own.
func acquireDict(indexID int64, dict Dictionary, spaceStopping func() bool) (*clust.Index, bool, func()) {
	waited := time.Duration(0)
	warned := false
	for {
		if dictLatch.TryRLock() {
			idx, ok := dict.ResolveIndex(indexID)
			return idx, ok, dictLatch.RUnlock
		}
		if spaceStopping() {
			return nil, false, func() {}
		}
		time.Sleep(dictSlice)
		waited += dictSlice
		if !warned && waited >= dictDiagnosticAfter {
			warned = true
			logger.Warnf("scrub: dictionary latch busy for %s resolving index %d", waited, indexID)
		}
	}
}
