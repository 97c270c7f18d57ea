package mvcc

import (
	"math"
	"sync"

	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// TrxState mirrors the teacher's TRX_STATE_* constants
// (manager/transaction_manager.go), trimmed to the states this package
// drives directly; PREPARED belongs to a distributed-commit protocol this
// engine does not implement.
type TrxState uint8

const (
	TrxActive TrxState = iota
	TrxCommitted
	TrxRolledBack
)

// Txn is one transaction: its read view plus the roll-pointer trail of
// every write it has made, walked in reverse on rollback.
type Txn struct {
	ID       int64
	State    TrxState
	ReadView *ReadView

	trail []int64 // roll pointers, oldest first
}

// RollbackApplier restores a row to a prior version, or removes it
// entirely when the version being undone was the row's first insert.
// Defined here rather than in clust so this package never imports the
// clustered-index writer; engine.Table implements it (Restore) on top of
// its clust.Index.
type RollbackApplier interface {
	Restore(pk []recordcodec.Value, before recordcodec.Record, wasInsert bool) error
}

// Manager is the transaction manager for this engine's MVCC layer:
// allocates transaction ids, builds read views the way the teacher's
// createReadView does (manager/transaction_manager.go), and drives the
// undo chain a committed or rolled-back transaction leaves behind.
type Manager struct {
	mu        sync.RWMutex
	nextTrxID int64
	active    map[int64]*Txn
	undo      *UndoLog

	locks    map[string]int64 // row key -> holding transaction id
	detector *DeadlockDetector
}

// NewManager creates a transaction manager with its own undo chain store
// and row-lock wait-for graph.
func NewManager() *Manager {
	return &Manager{
		active:   make(map[int64]*Txn),
		undo:     NewUndoLog(),
		locks:    make(map[string]int64),
		detector: NewDeadlockDetector(),
	}
}

// Begin starts a new transaction and, unless readUncommitted is set,
// snapshots the currently active transaction set into a read view (spec
// §5's "read view" type), exactly as the teacher's Begin does for
// TRX_ISO_READ_COMMITTED and above.
func (m *Manager) Begin(readUncommitted bool) *Txn {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextTrxID++
	trx := &Txn{ID: m.nextTrxID, State: TrxActive}
	if !readUncommitted {
		trx.ReadView = m.createReadViewLocked(trx.ID)
	}
	m.active[trx.ID] = trx
	return trx
}

func (m *Manager) createReadViewLocked(trxID int64) *ReadView {
	activeIDs := make([]int64, 0, len(m.active))
	minTrxID := int64(math.MaxInt64)
	for id := range m.active {
		activeIDs = append(activeIDs, id)
		if id < minTrxID {
			minTrxID = id
		}
	}
	if minTrxID > trxID {
		minTrxID = trxID
	}
	return NewReadView(activeIDs, minTrxID, m.nextTrxID+1, trxID)
}

// StampWrite acquires trx's write lock on (table, pk) — reporting LockWait
// or Deadlock per acquireRowLockLocked — then records the row's prior
// state in the undo chain and returns the roll pointer to stamp into the
// new version's DB_ROLL_PTR column (spec §3: every write of a committed
// row leaves a reachable prior version). The caller applies the returned
// (trxID, rollPtr) to the outgoing record's system columns itself, since
// only clust knows the record's layout-specific column slots at the call
// site.
func (m *Manager) StampWrite(trx *Txn, typ UndoType, table string, pk []recordcodec.Value, before recordcodec.Record) (int64, error) {
	m.mu.Lock()
	if err := m.acquireRowLockLocked(trx, table, pk); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	m.mu.Unlock()

	rollPtr := m.undo.Append(typ, pk, before)
	trx.trail = append(trx.trail, rollPtr)
	return rollPtr, nil
}

// Commit finalizes a transaction: it leaves the undo chain in place for
// any snapshot still older than this commit (purge reclaims it later via
// PurgeChecker) and simply drops the transaction from the active set so
// future read views stop waiting on it.
func (m *Manager) Commit(trx *Txn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if trx.State != TrxActive {
		return ErrInvalidTrxState
	}
	trx.State = TrxCommitted
	delete(m.active, trx.ID)
	m.releaseRowLocksLocked(trx)
	return nil
}

// Rollback walks the transaction's undo trail in reverse and asks applier
// to restore each row to the version the trail entry records — the chain
// walk and inverse-diff application the teacher's UndoLogManager.Rollback
// left as a TODO stub (manager/undo_log_manager.go).
func (m *Manager) Rollback(trx *Txn, applier RollbackApplier) error {
	m.mu.Lock()
	if trx.State != TrxActive {
		m.mu.Unlock()
		return ErrInvalidTrxState
	}
	trail := trx.trail
	m.mu.Unlock()

	for i := len(trail) - 1; i >= 0; i-- {
		rec, ok := m.undo.Get(trail[i])
		if !ok {
			return kerrors.New(kerrors.MissingHistory)
		}
		wasInsert := rec.Type == UndoInsert
		if err := applier.Restore(rec.PK, rec.BeforeImage, wasInsert); err != nil {
			return err
		}
	}

	m.mu.Lock()
	trx.State = TrxRolledBack
	delete(m.active, trx.ID)
	m.releaseRowLocksLocked(trx)
	m.mu.Unlock()
	return nil
}

// IsFullyPurged implements clust.PurgeChecker: a transaction is fully
// purged once it is no longer active and every currently active read
// view's floor is past it, so no snapshot could still distinguish its
// pre-image from its committed one (the teacher's purge-view floor,
// manager/undo_log_manager.go's oldestTxnTime generalized to trx-id
// space rather than wall-clock time).
func (m *Manager) IsFullyPurged(trxID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, active := m.active[trxID]; active {
		return false
	}
	return trxID < m.oldestActiveFloorLocked()
}

func (m *Manager) oldestActiveFloorLocked() int64 {
	floor := int64(math.MaxInt64)
	for _, trx := range m.active {
		if trx.ReadView == nil {
			continue
		}
		if f := int64(trx.ReadView.GetMinTrxID()); f < floor {
			floor = f
		}
	}
	return floor
}

// Undo exposes the underlying chain store for VisibleVersion lookups by
// readers that hold a Txn's ReadView but not the Manager itself.
func (m *Manager) Undo() *UndoLog { return m.undo }

// WaitForGraph returns a snapshot of which transactions are currently
// blocked waiting on which (spec §7's DEADLOCK surface, diagnostic use
// only — acquireRowLockLocked already resolves cycles at acquire time).
func (m *Manager) WaitForGraph() map[uint64][]uint64 {
	return m.detector.GetWaitForGraph()
}
