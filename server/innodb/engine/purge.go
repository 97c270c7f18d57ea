package engine

import (
	"github.com/ixrow/storage-core/server/innodb/mvcc"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// PurgeRow implements spec §3's row lifecycle tail: "finally removed
// physically by purge after all snapshots older than its delete are
// gone." It is a no-op unless the row at pk is delete-marked and its
// writer is fully purged (clust.PurgeChecker, which mvcc.Manager already
// satisfies and clust.Index consults on its own insert-over-tombstone
// path); once both hold, the record is removed and its undo chain walked
// back and discarded (spec §3: "Undo record: ... removed by purge when
// no read view needs it").
func (t *Table) PurgeRow(pk []recordcodec.Value) error {
	current, ok := t.fetch(pk)
	if !ok || !current.DeleteMarked {
		return nil
	}
	if !t.Txns.IsFullyPurged(current.TrxID(t.Index.Layout)) {
		return nil
	}

	rollPtr := current.RollPtr(t.Index.Layout)
	if err := t.Index.PessimisticDelete(pk); err != nil {
		return err
	}
	t.discardChain(rollPtr)
	return nil
}

// discardChain walks a row's undo chain back to its original insert,
// discarding every entry: once the row itself is gone, no read view can
// ever again need a version of it.
func (t *Table) discardChain(rollPtr int64) {
	undo := t.Txns.Undo()
	for rollPtr != 0 {
		rec, ok := undo.Get(rollPtr)
		if !ok {
			return
		}
		next := int64(0)
		if rec.Type != mvcc.UndoInsert {
			next = rec.BeforeImage.RollPtr(t.Index.Layout)
		}
		undo.Discard(rollPtr)
		rollPtr = next
	}
}
