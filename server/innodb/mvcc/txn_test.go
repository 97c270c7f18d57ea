package mvcc

import (
	"testing"

	"github.com/ixrow/storage-core/server/innodb/recordcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayout() *recordcodec.Layout {
	return recordcodec.NewLayout(
		[]recordcodec.Column{{Name: "id", Type: recordcodec.ColFixed}},
		[]recordcodec.Column{{Name: "val", Type: recordcodec.ColVariable}},
	)
}

func row(id, trx, rollPtr int64, val string) recordcodec.Record {
	return recordcodec.Record{Values: []recordcodec.Value{
		recordcodec.IntValue(id),
		recordcodec.IntValue(trx),
		recordcodec.IntValue(rollPtr),
		recordcodec.BytesValue([]byte(val)),
	}}
}

func TestVisibleVersionSeesOwnUncommittedWrite(t *testing.T) {
	layout := testLayout()
	undo := NewUndoLog()
	view := NewReadView(nil, 5, 6, 5)

	cur := row(1, 5, 0, "mine")
	got, found, err := VisibleVersion(layout, cur, view, undo)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "mine", string(got.Values[3].Bytes))
}

func TestVisibleVersionWalksChainPastNewerWriter(t *testing.T) {
	layout := testLayout()
	undo := NewUndoLog()

	// trx 5 inserts, then trx 7 updates: the undo chain records trx 5's
	// image as the "before" state of trx 7's write.
	before := row(1, 5, 0, "v1")
	ptr := undo.Append(UndoUpdate, []recordcodec.Value{recordcodec.IntValue(1)}, before)
	cur := row(1, 7, ptr, "v2")

	view := NewReadView([]int64{7}, 5, 8, 6) // trx 6's view: 7 still active, invisible
	got, found, err := VisibleVersion(layout, cur, view, undo)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v1", string(got.Values[3].Bytes))
}

func TestVisibleVersionNotFoundBeforeInsert(t *testing.T) {
	layout := testLayout()
	undo := NewUndoLog()

	ptr := undo.Append(UndoInsert, []recordcodec.Value{recordcodec.IntValue(1)}, recordcodec.Record{})
	cur := row(1, 7, ptr, "v1")

	view := NewReadView([]int64{7}, 5, 8, 6)
	_, found, err := VisibleVersion(layout, cur, view, undo)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestVisibleVersionMissingHistory(t *testing.T) {
	layout := testLayout()
	undo := NewUndoLog()
	cur := row(1, 7, 99, "v1") // roll ptr 99 was never written

	view := NewReadView([]int64{7}, 5, 8, 6)
	_, _, err := VisibleVersion(layout, cur, view, undo)
	assert.ErrorContains(t, err, "MISSING_HISTORY")
}

type captureApplier struct {
	restored []string
}

func (c *captureApplier) Restore(pk []recordcodec.Value, before recordcodec.Record, wasInsert bool) error {
	if wasInsert {
		c.restored = append(c.restored, "deleted")
		return nil
	}
	c.restored = append(c.restored, string(before.Values[3].Bytes))
	return nil
}

func TestManagerBeginCommit(t *testing.T) {
	m := NewManager()
	trx := m.Begin(false)
	require.NotNil(t, trx.ReadView)
	require.NoError(t, m.Commit(trx))
	assert.Equal(t, TrxCommitted, trx.State)

	err := m.Commit(trx)
	assert.Equal(t, ErrInvalidTrxState, err)
}

func TestManagerRollbackAppliesTrailInReverse(t *testing.T) {
	m := NewManager()
	trx := m.Begin(false)

	pk := []recordcodec.Value{recordcodec.IntValue(1)}
	_, err := m.StampWrite(trx, UndoInsert, "t", pk, recordcodec.Record{})
	require.NoError(t, err)
	_, err = m.StampWrite(trx, UndoUpdate, "t", pk, row(1, trx.ID, 0, "v1"))
	require.NoError(t, err)

	applier := &captureApplier{}
	require.NoError(t, m.Rollback(trx, applier))
	assert.Equal(t, []string{"v1", "deleted"}, applier.restored)
	assert.Equal(t, TrxRolledBack, trx.State)
}

func TestStampWriteConflictReportsLockWaitThenDeadlock(t *testing.T) {
	m := NewManager()
	a := m.Begin(false)
	b := m.Begin(false)

	pk := []recordcodec.Value{recordcodec.IntValue(1)}
	_, err := m.StampWrite(a, UndoInsert, "t", pk, recordcodec.Record{})
	require.NoError(t, err)

	// b wants a's row: reported as a retryable lock wait, not a failure.
	_, err = m.StampWrite(b, UndoInsert, "t", pk, recordcodec.Record{})
	require.ErrorContains(t, err, "LOCK_WAIT")
	assert.Equal(t, []uint64{uint64(a.ID)}, m.WaitForGraph()[uint64(b.ID)])

	// b takes a second row, then a wants it: b already waits on a, so
	// a waiting on b would close the wait-for cycle, and the request is
	// rejected as a deadlock instead of queued.
	otherPK := []recordcodec.Value{recordcodec.IntValue(2)}
	_, err = m.StampWrite(b, UndoInsert, "t", otherPK, recordcodec.Record{})
	require.NoError(t, err)
	_, err = m.StampWrite(a, UndoInsert, "t", otherPK, recordcodec.Record{})
	require.ErrorContains(t, err, "DEADLOCK")
}

func TestCommitReleasesRowLocksForNextWriter(t *testing.T) {
	m := NewManager()
	a := m.Begin(false)
	pk := []recordcodec.Value{recordcodec.IntValue(1)}
	_, err := m.StampWrite(a, UndoInsert, "t", pk, recordcodec.Record{})
	require.NoError(t, err)
	require.NoError(t, m.Commit(a))

	b := m.Begin(false)
	_, err = m.StampWrite(b, UndoUpdate, "t", pk, recordcodec.Record{})
	require.NoError(t, err, "a's committed row lock must be released, not left held forever")
}

func TestManagerIsFullyPurgedRespectsActiveFloor(t *testing.T) {
	m := NewManager()
	writer := m.Begin(false)
	require.NoError(t, m.Commit(writer))
	assert.True(t, m.IsFullyPurged(writer.ID))

	reader := m.Begin(false)
	_ = reader
	assert.True(t, m.IsFullyPurged(writer.ID))

	newWriter := m.Begin(false)
	require.NoError(t, m.Commit(newWriter))
	assert.False(t, m.IsFullyPurged(newWriter.ID))
}
