// Package mtr implements the mini-transaction: a short critical section
// that groups page guards and redo records and commits them atomically
// (spec §2, L1). The redo log itself is an external collaborator (spec.md
// §1); RedoSink names only the emission points this layer calls.
package mtr

import (
	"sync"

	"github.com/ixrow/storage-core/server/innodb/pagestore"
	"go.uber.org/atomic"

	"github.com/ixrow/storage-core/logger"
)

// RecordType distinguishes the redo records this layer emits. The redo log
// that stores them is out of scope; this is only the record shape it is
// handed.
type RecordType byte

const (
	RecInsert RecordType = iota + 1
	RecUpdate
	RecDelete
	RecPageSplit
	RecPageReorganize
)

// Record is one redo record produced inside a mini-transaction.
type Record struct {
	Type    RecordType
	SpaceID uint32
	PageNo  uint32
	Payload []byte
}

// RedoSink is the collaborator interface consumed at commit: log.reserve +
// log.write from spec §6, collapsed into one call since the reservation
// bookkeeping belongs to the sink's own buffer, not to the MTR.
type RedoSink interface {
	Write(lsn int64, records []Record) error
}

// globalLSN hands out monotonically increasing LSNs without a mutex, per
// spec §9's "statistics counter becomes a lock-free accumulator" guidance
// applied to the one other hot counter in this layer.
var globalLSN atomic.Int64

// NextLSN returns the next log sequence number.
func NextLSN() int64 { return globalLSN.Inc() }

// MTR is one mini-transaction: a bag of page guards acquired during this
// critical section (released in reverse order on Commit/Rollback) plus the
// redo records accumulated so far.
type MTR struct {
	mu      sync.Mutex
	guards  []*pagestore.Guard
	records []Record
	sink    RedoSink
	done    bool
}

// Begin opens a new mini-transaction against the given redo sink.
func Begin(sink RedoSink) *MTR {
	return &MTR{sink: sink}
}

// Pin registers a page guard acquired during this mini-transaction so it is
// released when the MTR ends. Guards are released in reverse (LIFO) order,
// i.e. leaf-first, mirroring descent order root-to-leaf.
func (m *MTR) Pin(g *pagestore.Guard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guards = append(m.guards, g)
}

// Log appends a redo record to be emitted atomically at Commit.
func (m *MTR) Log(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

// Commit hands all buffered records to the redo sink under one LSN and
// releases every pinned guard. If the sink write fails, no guard is
// released silently — the caller sees the error and the mini-transaction
// is left otherwise intact, matching spec §4.1's "any failure after a
// partial insert must leave the mini-transaction un-committed" rule: the
// caller owns deciding what to do next, but the guards stop being tracked.
func (m *MTR) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}
	var err error
	if len(m.records) > 0 {
		lsn := NextLSN()
		err = m.sink.Write(lsn, m.records)
	}
	m.releaseLocked()
	if err != nil {
		logger.Errorf("mtr commit: redo sink write failed: %v", err)
	}
	return err
}

// Rollback releases every pinned guard without emitting redo records. The
// mini-transaction never wrote anything observable, so there is nothing to
// undo at this layer — undo is L5's responsibility over already-committed
// mini-transactions.
func (m *MTR) Rollback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.releaseLocked()
}

func (m *MTR) releaseLocked() {
	if m.done {
		return
	}
	for i := len(m.guards) - 1; i >= 0; i-- {
		m.guards[i].Release()
	}
	m.guards = nil
	m.done = true
}
