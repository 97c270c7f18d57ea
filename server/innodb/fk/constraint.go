// Package fk implements the synchronous referential-integrity checker
// (spec §4.3, L6): child-side existence checks before insert/update, and
// parent-side cascade/restrict/set-null before update/delete, with the
// ancestor-linked-list cascade-depth walk row0ins.cc uses rather than a
// flat counter.
package fk

import (
	"github.com/ixrow/storage-core/server/innodb/clust"
	"github.com/ixrow/storage-core/server/innodb/cursor"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// Action is the ON UPDATE/ON DELETE clause of a constraint.
type Action int

const (
	ActionRestrict Action = iota
	ActionNoAction
	ActionCascade
	ActionSetNull
)

// ColumnRef names one FK column within the child row's layout, along with
// whether it is NOT NULL — needed so SET NULL can refuse a column it would
// otherwise silently corrupt (spec §4.3 "A cascade that would change a
// not-null column to NULL ... returns ROW_IS_REFERENCED").
type ColumnRef struct {
	Name     string
	ColIndex int
	NotNull  bool
}

// Constraint is one FOREIGN KEY relationship. ChildIndex and ParentIndex
// are probed with a GE search on the FK column values (spec §4.3 "detail
// floor"); ChildClust/ParentClust are the collaborators a cascade mutates
// through, via the ordinary clust.Index operations (spec §4.1).
type Constraint struct {
	Name string

	ChildTable  string
	ChildIndex  *cursor.Tree         // secondary index keyed by the FK columns
	ChildClust  *clust.Index         // the child table's clustered index
	ChildLayout *recordcodec.Layout  // child row layout, to recover the real PK from a ChildIndex hit
	ChildCols   []ColumnRef          // FK column positions within the child row

	ParentTable string
	ParentIndex *cursor.Tree // parent's unique index on the referenced columns

	OnDelete Action
	OnUpdate Action
}

func anyNull(values []recordcodec.Value) bool {
	for _, v := range values {
		if v.IsNull() {
			return true
		}
	}
	return false
}
