package engine

import (
	"github.com/ixrow/storage-core/server/innodb/cursor"
	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/mvcc"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// ReadRow looks up pk and reconstructs the version visible to trx's read
// view via the undo chain (spec §5, L5), holding the leaf's S-latch only
// across the lookup itself — VisibleVersion's chain walk never touches
// the tree again. ok is false when the row does not exist, or did not yet
// exist as of trx's snapshot.
func (t *Table) ReadRow(trx *mvcc.Txn, pk []recordcodec.Value) (recordcodec.Record, bool, error) {
	pos := t.Index.Tree.Descend(pk, cursor.ModeExact, false)
	if !pos.Found {
		pos.Release(false)
		return recordcodec.Record{}, false, nil
	}
	current := pos.Entries()[pos.Index].Record
	pos.Release(false)

	rec, ok, err := mvcc.VisibleVersion(t.Index.Layout, current, trx.ReadView, t.Txns.Undo())
	if err != nil || !ok {
		return recordcodec.Record{}, false, err
	}
	if rec.DeleteMarked {
		return recordcodec.Record{}, false, nil
	}
	return rec, true, nil
}

// Restore implements mvcc.RollbackApplier against this table's own
// clustered index: reinsert the pre-image, or remove the row outright
// when the undo entry being unwound was its original insert. A rollback
// of a key-changing update restores the pre-image at its original key
// but cannot retract the row inserted under the new key, since an undo
// record's attributes (spec §3) carry only one key, not an old/new pair;
// this mirrors the spec's own undo-record shape rather than a gap this
// package introduces.
func (t *Table) Restore(pk []recordcodec.Value, before recordcodec.Record, wasInsert bool) error {
	if wasInsert {
		if err := t.Index.PessimisticDelete(pk); err != nil && !kerrors.Is(err, kerrors.RecordNotFound) {
			return err
		}
		return nil
	}
	return t.Index.UpdateRow(pk, before, false, before.TrxID(t.Index.Layout))
}
