package scrub

import (
	"sync"

	"go.uber.org/atomic"
)

// Stats is one thread's scrub counters (original_source's btr_scrub_stat_t),
// backed by lock-free accumulators per spec §9's guidance for hot counters
// a single worker owns.
type Stats struct {
	Reorganizations        atomic.Int64
	Splits                  atomic.Int64
	UnderflowFailures       atomic.Int64
	OutOfFilespaceFailures  atomic.Int64
	MissingIndexFailures    atomic.Int64
	UnknownFailures         atomic.Int64
}

// Snapshot is a point-in-time copy of Stats, used to fold one thread's
// counters into the global totals.
type Snapshot struct {
	Reorganizations        int64
	Splits                  int64
	UnderflowFailures       int64
	OutOfFilespaceFailures  int64
	MissingIndexFailures    int64
	UnknownFailures         int64
}

// Snapshot reads every counter's current value.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Reorganizations:        s.Reorganizations.Load(),
		Splits:                  s.Splits.Load(),
		UnderflowFailures:       s.UnderflowFailures.Load(),
		OutOfFilespaceFailures:  s.OutOfFilespaceFailures.Load(),
		MissingIndexFailures:    s.MissingIndexFailures.Load(),
		UnknownFailures:         s.UnknownFailures.Load(),
	}
}

// GlobalStats accumulates every thread's Stats under one mutex, per spec
// §4.6: "On space completion these are folded into global counters under a
// single statistics mutex."
type GlobalStats struct {
	mu    sync.Mutex
	total Snapshot
}

// Fold adds one thread's final snapshot into the global totals.
func (g *GlobalStats) Fold(s Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.total.Reorganizations += s.Reorganizations
	g.total.Splits += s.Splits
	g.total.UnderflowFailures += s.UnderflowFailures
	g.total.OutOfFilespaceFailures += s.OutOfFilespaceFailures
	g.total.MissingIndexFailures += s.MissingIndexFailures
	g.total.UnknownFailures += s.UnknownFailures
}

// Total returns a copy of the current global totals.
func (g *GlobalStats) Total() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total
}
