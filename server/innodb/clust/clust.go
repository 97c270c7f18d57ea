// Package clust implements the clustered-index writer: optimistic and
// pessimistic insert, update-in-place, delete-mark, and pessimistic delete
// (spec §4.1, L4).
package clust

import (
	"github.com/ixrow/storage-core/logger"
	"github.com/ixrow/storage-core/server/innodb/cursor"
	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/mtr"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// InsertMode selects the descent strategy (spec §4.1).
type InsertMode int

const (
	Optimistic InsertMode = iota
	Pessimistic
)

// PurgeChecker reports whether a delete-marked record's transaction is
// fully purged from every other snapshot's perspective (spec §4.1 step 3).
// MVCC/undo (L5) owns this decision; clust only consumes it.
type PurgeChecker interface {
	IsFullyPurged(trxID int64) bool
}

// Index is one clustered index: the tree plus its record layout and the
// collaborators clust needs (redo sink, purge checker).
type Index struct {
	Table  string
	Layout *recordcodec.Layout
	Tree   *cursor.Tree
	Sink   mtr.RedoSink
	Purge  PurgeChecker
}

// NewIndex creates an empty clustered index.
func NewIndex(table string, layout *recordcodec.Layout, order int, sink mtr.RedoSink, purge PurgeChecker) *Index {
	return &Index{Table: table, Layout: layout, Tree: cursor.NewTree(order), Sink: sink, Purge: purge}
}

// InsertRow implements insert_row(row, mode) from spec §4.1. An Overflow
// from the optimistic attempt triggers a pessimistic retry, per the
// RETRY_PESSIMISTIC propagation policy of spec §7.
func (ix *Index) InsertRow(pk []recordcodec.Value, rec recordcodec.Record, trxID int64, mode InsertMode) error {
	if mode == Optimistic {
		err := ix.insertOptimistic(pk, rec, trxID)
		if kerrors.Is(err, kerrors.Overflow) {
			logger.Debugf("clust: optimistic insert overflowed on table %s, retrying pessimistic", ix.Table)
			return ix.insertPessimistic(pk, rec, trxID)
		}
		return err
	}
	return ix.insertPessimistic(pk, rec, trxID)
}

func (ix *Index) insertOptimistic(pk []recordcodec.Value, rec recordcodec.Record, trxID int64) error {
	pos := ix.Tree.Descend(pk, cursor.ModeExact, true)
	defer pos.Release(true)

	if pos.Found {
		existing := pos.Entries()[pos.Index].Record
		if !existing.DeleteMarked {
			return kerrors.Newf(kerrors.DuplicateKey, ix.Table, "")
		}
		if !ix.Purge.IsFullyPurged(existing.TrxID(ix.Layout)) {
			return kerrors.New(kerrors.LockWait)
		}
		return ix.updateByModify(pos.Leaf, pos.Index, rec, trxID)
	}

	if !ix.Tree.HasRoom(pos.Leaf) {
		return kerrors.New(kerrors.Overflow)
	}
	cursor.InsertAt(pos.Leaf, pos.Index, cursor.Entry{Key: pk, Record: rec})
	return ix.commitInsert(rec)
}

// insertPessimistic restarts the descent holding X-latches on the whole
// path (spec §4.1 step 4), so it must locate the leaf position directly
// within the already-latched leaf rather than calling Descend again —
// re-acquiring a latch this goroutine already holds exclusively would
// deadlock.
func (ix *Index) insertPessimistic(pk []recordcodec.Value, rec recordcodec.Record, trxID int64) error {
	path := ix.Tree.DescendPessimistic(pk)
	defer path.Release()

	leaf := path.Leaf()
	idx, found := cursor.SearchInLeaf(leaf, pk)

	if found {
		existing := cursor.NodeEntries(leaf)[idx].Record
		if !existing.DeleteMarked {
			return kerrors.Newf(kerrors.DuplicateKey, ix.Table, "")
		}
		if !ix.Purge.IsFullyPurged(existing.TrxID(ix.Layout)) {
			return kerrors.New(kerrors.LockWait)
		}
		return ix.updateByModify(leaf, idx, rec, trxID)
	}

	if ix.Tree.HasRoom(leaf) {
		cursor.InsertAt(leaf, idx, cursor.Entry{Key: pk, Record: rec})
	} else {
		ix.Tree.SplitLeafAndInsert(path, idx, cursor.Entry{Key: pk, Record: rec})
	}
	return ix.commitInsert(rec)
}

func (ix *Index) commitInsert(rec recordcodec.Record) error {
	m := mtr.Begin(ix.Sink)
	m.Log(mtr.Record{Type: mtr.RecInsert, Payload: recordcodec.Encode(ix.Layout, rec)})
	return m.Commit()
}

// updateByModify converts an insert into an update of a delete-marked,
// fully-purged record found at (leaf, idx) (spec §4.1 step 3):
// delete-unmark and rewrite columns in place, preserving the primary key.
func (ix *Index) updateByModify(leaf cursor.NodeRef, idx int, rec recordcodec.Record, trxID int64) error {
	rec.DeleteMarked = false
	cursor.ReplaceAt(leaf, idx, rec)
	return ix.commitInsert(rec)
}

// UpdateRow implements update_row(cursor, diff) from spec §4.1: in-place
// when keyChanged is false, delete-mark+insert when the caller reports a
// changed key.
func (ix *Index) UpdateRow(pk []recordcodec.Value, newRec recordcodec.Record, keyChanged bool, trxID int64) error {
	if !keyChanged {
		pos := ix.Tree.Descend(pk, cursor.ModeExact, true)
		defer pos.Release(true)
		if !pos.Found {
			return kerrors.New(kerrors.RecordNotFound)
		}
		cursor.ReplaceAt(pos.Leaf, pos.Index, newRec)
		return ix.commitUpdate(newRec)
	}

	if err := ix.DeleteMark(pk); err != nil {
		return err
	}
	newPK := newRec.PrimaryKey(ix.Layout)
	return ix.InsertRow(newPK, newRec, trxID, Optimistic)
}

func (ix *Index) commitUpdate(rec recordcodec.Record) error {
	m := mtr.Begin(ix.Sink)
	m.Log(mtr.Record{Type: mtr.RecUpdate, Payload: recordcodec.Encode(ix.Layout, rec)})
	return m.Commit()
}

// DeleteMark implements delete_mark(cursor): flips the delete-mark bit
// without physically removing the record (spec §3 Row lifecycle).
func (ix *Index) DeleteMark(pk []recordcodec.Value) error {
	pos := ix.Tree.Descend(pk, cursor.ModeExact, true)
	defer pos.Release(true)
	if !pos.Found {
		return kerrors.New(kerrors.RecordNotFound)
	}
	rec := pos.Entries()[pos.Index].Record
	rec.DeleteMarked = true
	cursor.ReplaceAt(pos.Leaf, pos.Index, rec)

	m := mtr.Begin(ix.Sink)
	m.Log(mtr.Record{Type: mtr.RecDelete, Payload: recordcodec.Encode(ix.Layout, rec)})
	return m.Commit()
}

// PessimisticDelete implements pessimistic_delete(cursor): physically
// removes the record, used by purge once no snapshot can need it.
func (ix *Index) PessimisticDelete(pk []recordcodec.Value) error {
	path := ix.Tree.DescendPessimistic(pk)
	defer path.Release()

	leaf := path.Leaf()
	idx, found := cursor.SearchInLeaf(leaf, pk)
	if !found {
		return kerrors.New(kerrors.RecordNotFound)
	}
	cursor.RemoveAt(leaf, idx)

	m := mtr.Begin(ix.Sink)
	m.Log(mtr.Record{Type: mtr.RecDelete})
	return m.Commit()
}
