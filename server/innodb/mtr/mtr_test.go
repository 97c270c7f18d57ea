package mtr

import (
	"path/filepath"
	"testing"

	"github.com/ixrow/storage-core/server/innodb/pagestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMTRCommitWritesAndReleasesGuards(t *testing.T) {
	pool := pagestore.NewMemPool(4096)
	g, err := pool.Get(1, 1, pagestore.ModeExclusive)
	require.NoError(t, err)

	sink := &spySink{}
	m := Begin(sink)
	m.Pin(g)
	m.Log(Record{Type: RecInsert, SpaceID: 1, PageNo: 1, Payload: []byte("row")})

	require.NoError(t, m.Commit())
	assert.Equal(t, 1, len(sink.calls))
	assert.Equal(t, 0, pool.PinCount(pagestore.PageID{SpaceID: 1, PageNo: 1}))
}

func TestMTRRollbackDropsRecords(t *testing.T) {
	pool := pagestore.NewMemPool(4096)
	g, err := pool.Get(1, 2, pagestore.ModeExclusive)
	require.NoError(t, err)

	sink := &spySink{}
	m := Begin(sink)
	m.Pin(g)
	m.Log(Record{Type: RecInsert})
	m.Rollback()

	assert.Equal(t, 0, len(sink.calls))
	assert.Equal(t, 0, pool.PinCount(pagestore.PageID{SpaceID: 1, PageNo: 2}))
}

func TestMTRCommitIsIdempotent(t *testing.T) {
	m := Begin(NullRedoSink{})
	require.NoError(t, m.Commit())
	require.NoError(t, m.Commit())
}

func TestFileRedoSinkWriteAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redo.log")
	sink, err := NewFileRedoSink(path)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Write(1, []Record{{Type: RecInsert, SpaceID: 1, PageNo: 1, Payload: []byte("a")}}))
	require.NoError(t, sink.Write(2, []Record{{Type: RecUpdate, SpaceID: 1, PageNo: 1, Payload: []byte("b")}}))
}

type spySink struct {
	calls [][]Record
}

func (s *spySink) Write(lsn int64, records []Record) error {
	s.calls = append(s.calls, records)
	return nil
}
