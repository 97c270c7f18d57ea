package mvcc

import (
	"fmt"

	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// rowKey identifies one row across tables for the write-lock table and the
// wait-for graph. It is an in-process map key only, never persisted.
func rowKey(table string, pk []recordcodec.Value) string {
	return fmt.Sprintf("%s:%v", table, pk)
}

// acquireRowLockLocked grants trx an exclusive write lock on (table, pk),
// or reports the conflict with another active transaction already holding
// it (spec §5's "writer may block on a lock-manager wait"; spec §7's
// LOCK_WAIT/DEADLOCK surface). Called with m.mu already held.
//
// A conflict that would close a cycle in the wait-for graph is reported as
// Deadlock with trx itself as the victim, mirroring the teacher's
// LockManager.AcquireLock rejecting the request that would complete the
// cycle (manager/lock_manager.go's checkDeadlock) rather than picking a
// victim by age. A conflict that would not close a cycle is reported as
// LockWait: per spec §7, "the caller is expected to await the lock and
// retry the whole statement," so this layer never blocks a goroutine
// itself.
func (m *Manager) acquireRowLockLocked(trx *Txn, table string, pk []recordcodec.Value) error {
	key := rowKey(table, pk)
	holder, held := m.locks[key]
	if !held || holder == trx.ID {
		m.locks[key] = trx.ID
		return nil
	}

	waiter, holderID := uint64(trx.ID), uint64(holder)
	m.detector.AddWaitFor(waiter, holderID)
	if m.detector.WouldCauseCycle(waiter, key) {
		m.detector.RemoveWaitFor(waiter, holderID)
		return kerrors.New(kerrors.Deadlock)
	}
	return kerrors.New(kerrors.LockWait)
}

// releaseRowLocksLocked drops every write lock trx holds and its entry in
// the wait-for graph, run once trx can no longer conflict with anyone:
// on commit or rollback. Called with m.mu already held.
func (m *Manager) releaseRowLocksLocked(trx *Txn) {
	for key, holder := range m.locks {
		if holder == trx.ID {
			delete(m.locks, key)
		}
	}
	m.detector.RemoveTransaction(uint64(trx.ID))
}
