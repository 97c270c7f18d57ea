package onlinelog

import (
	"github.com/ixrow/storage-core/server/innodb/cursor"
	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// IndexLog is the variant-(a) secondary-index-creation build log: ordinary
// DML against the old structure appends INSERT/DELETE entries here while
// the index is CREATING; the catch-up applier replays them onto the new
// index (spec §4.4).
type IndexLog struct {
	*Log
	Target  *cursor.Tree // the new secondary index being built
	aborted bool
}

// Aborted reports whether a previous Replay call aborted this log, either
// directly or as a sibling of a failed table-rebuild log (spec §4.4).
func (l *IndexLog) Aborted() bool { return l.aborted }

// NewIndexLog opens a variant-(a) log backed by a file at path.
func NewIndexLog(path string, blockSize int, maxSize int64, target *cursor.Tree) (*IndexLog, error) {
	l, err := newLog(path, blockSize, maxSize)
	if err != nil {
		return nil, err
	}
	return &IndexLog{Log: l, Target: target}, nil
}

// AppendInsert records an INSERT(entry, trx_id) under the index's S-latch
// and the log mutex (spec §4.4 "Concurrency"); header is the entry's
// secondary-index key encoding, body its row pointer payload.
func (l *IndexLog) AppendInsert(trxID int64, header, body []byte) error {
	return l.appendRecord(EncodeInsert(trxID, header, body))
}

// AppendDelete records a DELETE(entry).
func (l *IndexLog) AppendDelete(body []byte) error {
	return l.appendRecord(EncodeDelete(body))
}

// Replay applies every logged entry to Target in order: INSERT becomes a
// pessimistic insert (the build may be racing live DML for page layout, so
// it cannot assume optimistic room), DELETE a removal. A duplicate key
// from an INSERT is treated like ordinary DML would: surfaced rather than
// silently dropped, since variant (a) carries no READ-COMMITTED skip rule
// the way DELETE_ROW in variant (b) does.
func (l *IndexLog) Replay(keyOf func(entry []byte) []recordcodec.Value) error {
	blocks, err := l.readBlocks()
	if err != nil {
		l.aborted = true
		return err
	}
	for _, block := range blocks {
		offset := 0
		for offset < len(block) {
			rec, n, err := DecodeIndexRecord(block, offset)
			if err == errEndOfList {
				break
			}
			if err != nil {
				l.aborted = true
				return err
			}
			if err := l.applyOne(rec, keyOf); err != nil {
				l.aborted = true
				return err
			}
			offset += n
		}
	}
	return nil
}

func (l *IndexLog) applyOne(rec IndexRecord, keyOf func([]byte) []recordcodec.Value) error {
	key := keyOf(rec.Body)
	switch rec.Op {
	case OpInsert:
		path := l.Target.DescendPessimistic(key)
		defer path.Release()
		leaf := path.Leaf()
		idx, found := cursor.SearchInLeaf(leaf, key)
		if found {
			return kerrors.New(kerrors.DuplicateKey)
		}
		entry := cursor.Entry{Key: key, Record: recordcodec.Record{Values: key}}
		if l.Target.HasRoom(leaf) {
			cursor.InsertAt(leaf, idx, entry)
		} else {
			l.Target.SplitLeafAndInsert(path, idx, entry)
		}
		return nil
	case OpDelete:
		path := l.Target.DescendPessimistic(key)
		defer path.Release()
		leaf := path.Leaf()
		idx, found := cursor.SearchInLeaf(leaf, key)
		if !found {
			return nil // never built, or already removed: nothing to do
		}
		cursor.RemoveAt(leaf, idx)
		return nil
	default:
		return kerrors.New(kerrors.Corruption)
	}
}
