package onlinelog

import (
	"github.com/ixrow/storage-core/server/innodb/clust"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// State is an index's build-state machine (spec §4.4 "Abort and
// completion"): CREATING while DML logs against the old structure,
// COMPLETE once the catch-up phase has applied everything and DML starts
// writing directly, ABORTED if apply ever failed.
type State int

const (
	Creating State = iota
	Complete
	Aborted
)

// Build coordinates one ALTER TABLE's online logs: the table-rebuild log
// (nil for a plain secondary-index-only ALTER) plus one IndexLog per
// secondary index under construction. A clustered-log abort cancels every
// sibling secondary-index log on the same table, per spec §4.4.
type Build struct {
	Table     string
	TableLog  *TableLog
	IndexLogs []*IndexLog
	State     State
}

// NewBuild starts a build in the CREATING state.
func NewBuild(table string, tableLog *TableLog, indexLogs ...*IndexLog) *Build {
	return &Build{Table: table, TableLog: tableLog, IndexLogs: indexLogs, State: Creating}
}

// ApplyTableRebuild runs the table-rebuild catch-up phase. On error it
// aborts the whole build, including every sibling secondary-index log.
func (b *Build) ApplyTableRebuild(target *clust.Index, cm ColumnMap, trxID int64) error {
	if b.TableLog == nil {
		return nil
	}
	if err := b.TableLog.Apply(target, cm, trxID); err != nil {
		b.abort()
		return err
	}
	return nil
}

// ApplyIndexBuild runs one secondary index's catch-up phase.
func (b *Build) ApplyIndexBuild(idx int, keyOf func([]byte) []recordcodec.Value) error {
	if err := b.IndexLogs[idx].Replay(keyOf); err != nil {
		b.abort()
		return err
	}
	return nil
}

// Complete flips every surviving log from CREATING to COMPLETE, after
// which DML bypasses the logs and writes directly (spec §4.4).
func (b *Build) Complete() {
	if b.State == Aborted {
		return
	}
	b.State = Complete
}

func (b *Build) abort() {
	b.State = Aborted
	if b.TableLog != nil {
		b.TableLog.aborted = true
	}
	for _, l := range b.IndexLogs {
		l.aborted = true
	}
}
