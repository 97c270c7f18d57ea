package clust

import (
	"testing"

	"github.com/ixrow/storage-core/server/innodb/mtr"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type neverPurged struct{}

func (neverPurged) IsFullyPurged(int64) bool { return false }

type alwaysPurged struct{}

func (alwaysPurged) IsFullyPurged(int64) bool { return true }

func testLayout() *recordcodec.Layout {
	return recordcodec.NewLayout(
		[]recordcodec.Column{{Name: "id", Type: recordcodec.ColFixed}},
		[]recordcodec.Column{{Name: "val", Type: recordcodec.ColVariable, Nullable: true}},
	)
}

func row(id int64, trx int64, val string) recordcodec.Record {
	return recordcodec.Record{Values: []recordcodec.Value{
		recordcodec.IntValue(id),
		recordcodec.IntValue(trx),
		recordcodec.IntValue(0),
		recordcodec.BytesValue([]byte(val)),
	}}
}

func TestInsertRowOptimisticThenDuplicate(t *testing.T) {
	ix := NewIndex("t", testLayout(), 4, mtr.NullRedoSink{}, neverPurged{})
	pk := []recordcodec.Value{recordcodec.IntValue(1)}

	require.NoError(t, ix.InsertRow(pk, row(1, 10, "a"), 10, Optimistic))
	err := ix.InsertRow(pk, row(1, 11, "b"), 11, Optimistic)
	assert.ErrorContains(t, err, "DUPLICATE_KEY")
}

func TestInsertRowOverflowsToPessimistic(t *testing.T) {
	ix := NewIndex("t", testLayout(), 4, mtr.NullRedoSink{}, neverPurged{})
	for i := int64(1); i <= 20; i++ {
		pk := []recordcodec.Value{recordcodec.IntValue(i)}
		require.NoError(t, ix.InsertRow(pk, row(i, 1, "x"), 1, Optimistic))
	}
	assert.Greater(t, ix.Tree.Height(), 1)
}

func TestInsertByModifyOnPurgedDeleteMarked(t *testing.T) {
	ix := NewIndex("t", testLayout(), 4, mtr.NullRedoSink{}, alwaysPurged{})
	pk := []recordcodec.Value{recordcodec.IntValue(1)}

	require.NoError(t, ix.InsertRow(pk, row(1, 1, "a"), 1, Optimistic))
	require.NoError(t, ix.DeleteMark(pk))
	require.NoError(t, ix.InsertRow(pk, row(1, 2, "b"), 2, Optimistic))

	pos := ix.Tree.Descend(pk, 0, false)
	defer pos.Release(false)
	require.True(t, pos.Found)
	assert.False(t, pos.Entries()[pos.Index].Record.DeleteMarked)
	assert.Equal(t, "b", string(pos.Entries()[pos.Index].Record.Values[3].Bytes))
}

func TestInsertByModifyBlockedWhileNotPurged(t *testing.T) {
	ix := NewIndex("t", testLayout(), 4, mtr.NullRedoSink{}, neverPurged{})
	pk := []recordcodec.Value{recordcodec.IntValue(1)}

	require.NoError(t, ix.InsertRow(pk, row(1, 1, "a"), 1, Optimistic))
	require.NoError(t, ix.DeleteMark(pk))
	err := ix.InsertRow(pk, row(1, 2, "b"), 2, Optimistic)
	assert.ErrorContains(t, err, "LOCK_WAIT")
}

func TestUpdateRowInPlace(t *testing.T) {
	ix := NewIndex("t", testLayout(), 4, mtr.NullRedoSink{}, neverPurged{})
	pk := []recordcodec.Value{recordcodec.IntValue(1)}
	require.NoError(t, ix.InsertRow(pk, row(1, 1, "a"), 1, Optimistic))

	require.NoError(t, ix.UpdateRow(pk, row(1, 2, "z"), false, 2))

	pos := ix.Tree.Descend(pk, 0, false)
	defer pos.Release(false)
	require.True(t, pos.Found)
	assert.Equal(t, "z", string(pos.Entries()[pos.Index].Record.Values[3].Bytes))
}

func TestPessimisticDeleteRemovesRecord(t *testing.T) {
	ix := NewIndex("t", testLayout(), 4, mtr.NullRedoSink{}, neverPurged{})
	pk := []recordcodec.Value{recordcodec.IntValue(1)}
	require.NoError(t, ix.InsertRow(pk, row(1, 1, "a"), 1, Optimistic))
	require.NoError(t, ix.PessimisticDelete(pk))

	pos := ix.Tree.Descend(pk, 0, false)
	defer pos.Release(false)
	assert.False(t, pos.Found)
}
