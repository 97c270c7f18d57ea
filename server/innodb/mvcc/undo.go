package mvcc

import (
	"sync"

	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// UndoType names the operation an undo record reverses, mirroring the
// teacher's manager.LOG_TYPE_* constants (manager/log_types.go) but scoped
// to this package so the undo chain does not depend on the file-based
// log manager's wire format.
type UndoType uint8

const (
	UndoInsert UndoType = iota + 1
	UndoUpdate
	UndoDelete
)

// UndoRecord is one entry in a row's backward-linked version chain
// (spec §5: "per-row backward-linked undo records"). BeforeImage holds the
// row as it looked immediately before the operation that produced the
// version pointing at this record's RollPtr; for UndoInsert there is no
// prior image; BeforeImage is the zero Record and PK alone identifies the
// row that must be deleted on rollback.
type UndoRecord struct {
	RollPtr     int64
	Type        UndoType
	PK          []recordcodec.Value
	BeforeImage recordcodec.Record
}

// UndoLog is the backward-linked chain store for one table. Roll pointers
// are opaque int64 handles allocated by Append and stamped into a row's
// DB_ROLL_PTR system column; they never alias a page address (spec.md §1
// excludes physical page layout from this engine's scope).
type UndoLog struct {
	mu      sync.Mutex
	nextPtr int64
	records map[int64]*UndoRecord
}

// NewUndoLog creates an empty chain store. Roll pointer 0 is reserved to
// mean "chain end" (no earlier version), matching DB_ROLL_PTR's zero value
// on a freshly inserted row before any undo record has been written for it.
func NewUndoLog() *UndoLog {
	return &UndoLog{records: make(map[int64]*UndoRecord), nextPtr: 1}
}

// Append records the row's state before a write and returns the roll
// pointer to stamp into the new version's DB_ROLL_PTR column.
func (u *UndoLog) Append(typ UndoType, pk []recordcodec.Value, before recordcodec.Record) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	ptr := u.nextPtr
	u.nextPtr++
	u.records[ptr] = &UndoRecord{RollPtr: ptr, Type: typ, PK: pk, BeforeImage: before}
	return ptr
}

// Get looks up an undo record by roll pointer.
func (u *UndoLog) Get(rollPtr int64) (*UndoRecord, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	rec, ok := u.records[rollPtr]
	return rec, ok
}

// Discard drops a chain entry once purge has determined no read view can
// still need it (spec §5's purge collaborator). engine.PurgeRow calls it
// for each entry of a purged row's chain after removing the row.
func (u *UndoLog) Discard(rollPtr int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.records, rollPtr)
}

// VisibleVersion walks current's undo chain until it finds the version
// whose DB_TRX_ID the given read view can see, implementing spec §5's MVCC
// reconstruction via undo (the exact InnoDB read_view_t algorithm that
// read_view.go's IsVisible already encodes; VisibleVersion is the chain
// walk that picks which version to ask it about). Returns found=false when
// the row did not yet exist as of view (chain bottoms out at an
// UndoInsert record view cannot see past), and a MissingHistory error when
// the chain has been purged out from under a view that still needed it.
func VisibleVersion(layout *recordcodec.Layout, current recordcodec.Record, view *ReadView, undo *UndoLog) (recordcodec.Record, bool, error) {
	rec := current
	for {
		if view == nil || view.IsVisible(rec.TrxID(layout)) {
			return rec, true, nil
		}

		rollPtr := rec.RollPtr(layout)
		if rollPtr == 0 {
			return recordcodec.Record{}, false, kerrors.New(kerrors.MissingHistory)
		}
		undoRec, ok := undo.Get(rollPtr)
		if !ok {
			return recordcodec.Record{}, false, kerrors.New(kerrors.MissingHistory)
		}
		if undoRec.Type == UndoInsert {
			return recordcodec.Record{}, false, nil
		}
		rec = undoRec.BeforeImage
	}
}
