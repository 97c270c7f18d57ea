// Package engine is the top-level orchestrator: one Table wires a
// clustered index (L4, clust) to the transaction/undo layer (L5, mvcc),
// the referential-integrity checker (L6, fk) and an online index/table
// build (L7, onlinelog), implementing the single-row write control flow
// spec §2 names: caller -> L6 -> L4 -> L5 -> L7 -> L1 (L1's mtr commit
// happens inside clust.Index itself, so Table's own job is sequencing).
package engine

import (
	"github.com/ixrow/storage-core/logger"
	"github.com/ixrow/storage-core/server/innodb/clust"
	"github.com/ixrow/storage-core/server/innodb/cursor"
	"github.com/ixrow/storage-core/server/innodb/fk"
	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/mvcc"
	"github.com/ixrow/storage-core/server/innodb/onlinelog"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// Table is one clustered index plus the collaborators a row write must
// pass through. FKColumns is this table's own outgoing foreign key (the
// column positions CheckChild verifies before insert and before every
// update); it is nil for a table with no outgoing FK. Build is
// the online log DML is appended to while a concurrent ALTER is CREATING
// against this table (spec §4.4); nil when no build is in progress.
type Table struct {
	Name      string
	Index     *clust.Index
	Txns      *mvcc.Manager
	FK        *fk.Checker
	FKColumns []fk.ColumnRef

	Build *onlinelog.Build
}

// NewTable wires a clustered index into the engine. checker may be nil
// for a table with neither outgoing nor incoming foreign keys.
func NewTable(name string, index *clust.Index, txns *mvcc.Manager, checker *fk.Checker, fkColumns []fk.ColumnRef) *Table {
	return &Table{Name: name, Index: index, Txns: txns, FK: checker, FKColumns: fkColumns}
}

// stampSystemColumns writes DB_TRX_ID and DB_ROLL_PTR into rec's system
// column slots, the columns immediately following the primary key (spec
// §3's row layout; the same Values[layout.PKColCount] convention
// onlinelog.TableLog.normalize already stamps DB_TRX_ID through).
func stampSystemColumns(rec *recordcodec.Record, layout *recordcodec.Layout, trxID, rollPtr int64) {
	rec.Values[layout.PKColCount] = recordcodec.IntValue(trxID)
	rec.Values[layout.PKColCount+1] = recordcodec.IntValue(rollPtr)
}

// fkValues projects rec's outgoing FK columns into the tuple CheckChild
// compares against the parent's unique index.
func fkValues(rec recordcodec.Record, cols []fk.ColumnRef) []recordcodec.Value {
	values := make([]recordcodec.Value, len(cols))
	for i, col := range cols {
		values[i] = rec.Values[col.ColIndex]
	}
	return values
}

// fetch reads the current version of the row at pk under a shared latch,
// the read-only counterpart to clust.Index's own write-path descents.
func (t *Table) fetch(pk []recordcodec.Value) (recordcodec.Record, bool) {
	pos := t.Index.Tree.Descend(pk, cursor.ModeExact, false)
	defer pos.Release(false)
	if !pos.Found {
		return recordcodec.Record{}, false
	}
	return pos.Entries()[pos.Index].Record, true
}

func (t *Table) buildAppendInsert(rec recordcodec.Record) error {
	if t.Build == nil || t.Build.State != onlinelog.Creating || t.Build.TableLog == nil {
		return nil
	}
	if err := t.Build.TableLog.AppendInsertRow(rec); err != nil {
		logger.Warnf("engine: table %s online-build log append (insert) failed: %v", t.Name, err)
		return err
	}
	return nil
}

func (t *Table) buildAppendUpdate(oldPK []recordcodec.Value, rec recordcodec.Record) error {
	if t.Build == nil || t.Build.State != onlinelog.Creating || t.Build.TableLog == nil {
		return nil
	}
	if err := t.Build.TableLog.AppendUpdateRow(oldPK, rec); err != nil {
		logger.Warnf("engine: table %s online-build log append (update) failed: %v", t.Name, err)
		return err
	}
	return nil
}

func (t *Table) buildAppendDelete(pk []recordcodec.Value) error {
	if t.Build == nil || t.Build.State != onlinelog.Creating || t.Build.TableLog == nil {
		return nil
	}
	if err := t.Build.TableLog.AppendDeleteRow(pk); err != nil {
		logger.Warnf("engine: table %s online-build log append (delete) failed: %v", t.Name, err)
		return err
	}
	return nil
}

// InsertRow implements the insert leg of spec §2's control flow: check
// the table's own outgoing FK, stamp DB_TRX_ID/DB_ROLL_PTR from a fresh
// undo record, insert through the clustered index (which commits its own
// mini-transaction), then append to an in-progress online build.
func (t *Table) InsertRow(trx *mvcc.Txn, rec recordcodec.Record) error {
	if t.FK != nil && len(t.FKColumns) > 0 {
		if err := t.FK.CheckChild(trx.ID, t.Name, fkValues(rec, t.FKColumns)); err != nil {
			return err
		}
	}

	layout := t.Index.Layout
	pk := rec.PrimaryKey(layout)
	rollPtr, err := t.Txns.StampWrite(trx, mvcc.UndoInsert, t.Name, pk, recordcodec.Record{})
	if err != nil {
		return err
	}
	stampSystemColumns(&rec, layout, trx.ID, rollPtr)

	if err := t.Index.InsertRow(pk, rec, trx.ID, clust.Optimistic); err != nil {
		return err
	}
	return t.buildAppendInsert(rec)
}

// UpdateRow implements the update leg: the row at oldPK is replaced with
// newRec. keyChanged selects clust's in-place-vs-reinsert strategy (spec
// §4.1); when the primary key is changing, parent-side cascades against
// this table's own incoming FKs run first, since a child row addressing
// the old key would otherwise dangle.
func (t *Table) UpdateRow(trx *mvcc.Txn, oldPK []recordcodec.Value, newRec recordcodec.Record, keyChanged bool) error {
	layout := t.Index.Layout
	current, ok := t.fetch(oldPK)
	if !ok {
		return kerrors.New(kerrors.RecordNotFound)
	}

	if t.FK != nil && len(t.FKColumns) > 0 {
		if err := t.FK.CheckChild(trx.ID, t.Name, fkValues(newRec, t.FKColumns)); err != nil {
			return err
		}
	}

	newPK := newRec.PrimaryKey(layout)
	if keyChanged && t.FK != nil {
		if err := t.FK.CheckParentUpdate(trx.ID, t.Name, oldPK, newPK); err != nil {
			return err
		}
	}

	rollPtr, err := t.Txns.StampWrite(trx, mvcc.UndoUpdate, t.Name, oldPK, current)
	if err != nil {
		return err
	}
	stampSystemColumns(&newRec, layout, trx.ID, rollPtr)

	if err := t.Index.UpdateRow(oldPK, newRec, keyChanged, trx.ID); err != nil {
		return err
	}
	return t.buildAppendUpdate(oldPK, newRec)
}

// DeleteRow implements the delete leg as a delete-mark update rather than
// a separate clust call: the row's bytes are preserved (spec §3's row
// lifecycle, "physically retained pending purge") with DeleteMarked set
// and its system columns re-stamped to the deleting transaction, written
// back through the same in-place update path an ordinary UpdateRow uses.
func (t *Table) DeleteRow(trx *mvcc.Txn, pk []recordcodec.Value) error {
	layout := t.Index.Layout
	current, ok := t.fetch(pk)
	if !ok {
		return kerrors.New(kerrors.RecordNotFound)
	}

	if t.FK != nil {
		if err := t.FK.CheckParentDelete(trx.ID, t.Name, pk); err != nil {
			return err
		}
	}

	rollPtr, err := t.Txns.StampWrite(trx, mvcc.UndoDelete, t.Name, pk, current)
	if err != nil {
		return err
	}

	// current's Values backs the undo record just stamped as its
	// BeforeImage; marked must own a fresh slice so stamping its system
	// columns below does not retroactively corrupt that pre-image through
	// the shared backing array.
	marked := current
	marked.Values = append([]recordcodec.Value(nil), current.Values...)
	marked.DeleteMarked = true
	stampSystemColumns(&marked, layout, trx.ID, rollPtr)

	if err := t.Index.UpdateRow(pk, marked, false, trx.ID); err != nil {
		return err
	}
	return t.buildAppendDelete(pk)
}
