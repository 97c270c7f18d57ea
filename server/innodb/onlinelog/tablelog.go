package onlinelog

import (
	"github.com/ixrow/storage-core/server/innodb/clust"
	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// ColumnMap translates a row between the old (pre-rebuild) layout and the
// new one: added columns filled from Defaults, dropped columns discarded
// (spec §4.4 "Apply algorithm (variant b)"). OldToNew[i] is the new-layout
// column index that old-layout column i maps to, or -1 if column i was
// dropped; its leading entries (one per old PK column) double as the key
// translation table, since PK columns are always the layout's prefix.
type ColumnMap struct {
	OldToNew  []int
	Defaults  []recordcodec.Value // one per NewLayout column
	NewLayout *recordcodec.Layout
}

// Translate converts an old-format row into the new format.
func (m ColumnMap) Translate(old recordcodec.Record) recordcodec.Record {
	values := make([]recordcodec.Value, len(m.NewLayout.Columns))
	copy(values, m.Defaults)
	for oldIdx, newIdx := range m.OldToNew {
		if newIdx >= 0 {
			values[newIdx] = old.Values[oldIdx]
		}
	}
	return recordcodec.Record{Values: values}
}

// TranslateKey converts an old-format primary key tuple into the new
// format's key, using the same column map (old PK columns are always old
// layout columns 0..len(oldPK)-1).
func (m ColumnMap) TranslateKey(oldPK []recordcodec.Value) []recordcodec.Value {
	newPK := make([]recordcodec.Value, m.NewLayout.PKColCount)
	for i, v := range oldPK {
		if newIdx := m.OldToNew[i]; newIdx >= 0 && newIdx < m.NewLayout.PKColCount {
			newPK[newIdx] = v
		}
	}
	return newPK
}

// hasExternColumn reports whether rec carries a non-null off-page column
// under layout, per the "no off-page column is present" clause that gates
// the in-place-update fast path.
func hasExternColumn(rec recordcodec.Record, layout *recordcodec.Layout) bool {
	for i, col := range layout.Columns {
		if col.Type == recordcodec.ColExtern && !rec.Values[i].IsNull() {
			return true
		}
	}
	return false
}

func equalKey(a, b []recordcodec.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// TableLog is the variant-(b) whole-table-rebuild build log: it carries
// INSERT_ROW/UPDATE_ROW/DELETE_ROW entries logged against the old table
// structure while the rebuild runs, plus the same_pk/AlterTrxID
// bookkeeping spec §4.4's "Record encoding" section names.
type TableLog struct {
	*Log

	OldLayout     *recordcodec.Layout
	SamePK        bool  // true when the rebuild does not change the PK definition
	AlterTrxID    int64 // rows older than this are normalized on append
	SentinelTrxID int64

	aborted bool
}

// NewTableLog opens a variant-(b) log. oldLayout describes the rows as
// ordinary DML still encodes them (the pre-rebuild structure); samePK is
// fixed at log creation per spec §4.4.
func NewTableLog(path string, blockSize int, maxSize int64, oldLayout *recordcodec.Layout, samePK bool, alterTrxID, sentinelTrxID int64) (*TableLog, error) {
	l, err := newLog(path, blockSize, maxSize)
	if err != nil {
		return nil, err
	}
	return &TableLog{Log: l, OldLayout: oldLayout, SamePK: samePK, AlterTrxID: alterTrxID, SentinelTrxID: sentinelTrxID}, nil
}

// normalize resets rec's DB_TRX_ID to the sentinel when it predates the
// ALTER's own transaction, so the rebuilt table does not reveal history
// from before the rebuild started (spec §4.4).
func (l *TableLog) normalize(rec recordcodec.Record) recordcodec.Record {
	if rec.TrxID(l.OldLayout) >= l.AlterTrxID {
		return rec
	}
	values := append([]recordcodec.Value(nil), rec.Values...)
	values[l.OldLayout.PKColCount] = recordcodec.IntValue(l.SentinelTrxID)
	rec.Values = values
	return rec
}

// AppendInsertRow logs an INSERT_ROW.
func (l *TableLog) AppendInsertRow(rec recordcodec.Record) error {
	rec = l.normalize(rec)
	return l.appendRecord(EncodeInsertRow(recordcodec.Encode(l.OldLayout, rec)))
}

// AppendUpdateRow logs an UPDATE_ROW. oldPK is the row's key before the
// update; it is omitted on the wire when l.SamePK holds.
func (l *TableLog) AppendUpdateRow(oldPK []recordcodec.Value, rec recordcodec.Record) error {
	rec = l.normalize(rec)
	var pkBytes []byte
	if !l.SamePK {
		pkBytes = EncodeKeyTuple(oldPK)
	}
	return l.appendRecord(EncodeUpdateRow(pkBytes, l.SamePK, recordcodec.Encode(l.OldLayout, rec)))
}

// AppendDeleteRow logs a DELETE_ROW(old-primary-key).
func (l *TableLog) AppendDeleteRow(oldPK []recordcodec.Value) error {
	return l.appendRecord(EncodeDeleteRow(EncodeKeyTuple(oldPK)))
}

// Aborted reports whether a previous Apply call marked this log's index
// corrupt after an apply error (spec §4.4 "Abort and completion").
func (l *TableLog) Aborted() bool { return l.aborted }

// Apply replays every logged entry onto target in order, translating rows
// through cm (spec §4.4 "Apply algorithm (variant b)"). On the first
// error it marks the log aborted and returns, leaving the caller to roll
// back and cancel sibling secondary-index logs on the same table.
func (l *TableLog) Apply(target *clust.Index, cm ColumnMap, trxID int64) error {
	blocks, err := l.readBlocks()
	if err != nil {
		l.aborted = true
		return err
	}

	oldPKCols := l.OldLayout.Columns[:l.OldLayout.PKColCount]
	for _, block := range blocks {
		offset := 0
		for offset < len(block) {
			rec, n, err := DecodeTableRecord(block, offset)
			if err == errEndOfList {
				break
			}
			if err != nil {
				l.aborted = true
				return err
			}
			if err := l.applyOne(target, cm, trxID, rec, oldPKCols); err != nil {
				l.aborted = true
				return err
			}
			offset += n
		}
	}
	return nil
}

func (l *TableLog) applyOne(target *clust.Index, cm ColumnMap, trxID int64, rec TableRecord, oldPKCols []recordcodec.Column) error {
	switch rec.Op {
	case OpInsertRow:
		oldRec := recordcodec.Decode(l.OldLayout, rec.Row)
		newRec := cm.Translate(oldRec)
		newPK := newRec.PrimaryKey(cm.NewLayout)
		err := target.InsertRow(newPK, newRec, trxID, clust.Optimistic)
		if kerrors.Is(err, kerrors.DuplicateKey) {
			return kerrors.Newf(kerrors.DuplicateKey, target.Table, "")
		}
		return err

	case OpDeleteRow:
		oldPK := DecodeKeyTuple(rec.OldPK, oldPKCols)
		newPK := cm.TranslateKey(oldPK)
		err := target.PessimisticDelete(newPK)
		if kerrors.Is(err, kerrors.RecordNotFound) {
			// The row's own INSERT was skipped under READ-COMMITTED
			// semantics, so it was never copied; nothing to delete.
			return nil
		}
		return err

	case OpUpdateRow:
		oldRec := recordcodec.Decode(l.OldLayout, rec.Row)
		newRec := cm.Translate(oldRec)
		newPK := newRec.PrimaryKey(cm.NewLayout)

		oldPKTranslated := newPK
		if !l.SamePK {
			oldPK := DecodeKeyTuple(rec.OldPK, oldPKCols)
			oldPKTranslated = cm.TranslateKey(oldPK)
		}

		keyChanged := !equalKey(oldPKTranslated, newPK) || hasExternColumn(newRec, cm.NewLayout)
		err := target.UpdateRow(oldPKTranslated, newRec, keyChanged, trxID)
		if kerrors.Is(err, kerrors.DuplicateKey) {
			return kerrors.Newf(kerrors.DuplicateKey, target.Table, "")
		}
		return err

	default:
		return kerrors.New(kerrors.Corruption)
	}
}
