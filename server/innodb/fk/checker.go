package fk

import (
	"sync"

	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/manager"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// Checker holds every FK constraint in the schema, indexed both by child
// table (for insert/update checks) and by parent table (for delete/update
// cascades), per spec §4.3.
type Checker struct {
	mu       sync.RWMutex
	byChild  map[string][]*Constraint
	byParent map[string][]*Constraint

	Locks           *manager.LockManager
	MaxCascadeDepth int
}

// NewChecker creates an empty checker. maxCascadeDepth is the reference
// design's cap (15, spec §4.3); locks may be nil in tests that do not
// exercise concurrent cascades.
func NewChecker(maxCascadeDepth int, locks *manager.LockManager) *Checker {
	return &Checker{
		byChild:         make(map[string][]*Constraint),
		byParent:        make(map[string][]*Constraint),
		Locks:           locks,
		MaxCascadeDepth: maxCascadeDepth,
	}
}

// AddConstraint registers fk under both its child and parent table.
func (c *Checker) AddConstraint(fk *Constraint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byChild[fk.ChildTable] = append(c.byChild[fk.ChildTable], fk)
	c.byParent[fk.ParentTable] = append(c.byParent[fk.ParentTable], fk)
}

// CheckChild verifies every FK constraint naming table as child before an
// insert or an update that changes the FK columns (spec §4.3's child-side
// contract). fkValues is the tuple of FK column values from the new row.
func (c *Checker) CheckChild(trxID int64, table string, fkValues []recordcodec.Value) error {
	c.mu.RLock()
	constraints := c.byChild[table]
	c.mu.RUnlock()

	for _, fk := range constraints {
		if anyNull(fkValues) {
			// Tie-break: any NULL FK column satisfies the constraint
			// unconditionally (SQL MATCH SIMPLE semantics).
			continue
		}

		matches := scanPrefix(fk.ParentIndex, fkValues)
		found := false
		for _, m := range matches {
			if m.Record.DeleteMarked {
				continue
			}
			if err := c.lock(trxID, manager.LOCK_S, fk.ParentTable, m.Key); err != nil {
				return err
			}
			found = true
			break
		}
		if !found {
			if err := c.lock(trxID, manager.LOCK_S, fk.ParentTable, fkValues); err != nil {
				return err
			}
			return kerrors.Newf(kerrors.NoReferencedRow, table, fk.Name)
		}
	}
	return nil
}

// CheckParentDelete verifies and cascades every constraint naming table as
// parent before a delete of the row identified by pk.
func (c *Checker) CheckParentDelete(trxID int64, table string, pk []recordcodec.Value) error {
	return c.cascadeParent(nil, trxID, table, pk, nil)
}

// CheckParentUpdate verifies and cascades every constraint naming table as
// parent before an update that changes the referenced columns from oldPK
// to newPK.
func (c *Checker) CheckParentUpdate(trxID int64, table string, oldPK, newPK []recordcodec.Value) error {
	return c.cascadeParent(nil, trxID, table, oldPK, newPK)
}

func (c *Checker) cascadeParent(ancestors *CascadeNode, trxID int64, table string, oldKey, newKey []recordcodec.Value) error {
	isDelete := newKey == nil

	c.mu.RLock()
	constraints := c.byParent[table]
	c.mu.RUnlock()

	for _, fk := range constraints {
		action := fk.OnDelete
		if !isDelete {
			action = fk.OnUpdate
		}

		matches := scanPrefix(fk.ChildIndex, oldKey)
		for _, m := range matches {
			if m.Record.DeleteMarked {
				continue
			}
			// m.Key is the secondary index's own key (the FK column
			// values, not unique); every mutation below must address the
			// child row by its real primary key instead.
			childPK := m.Record.PrimaryKey(fk.ChildLayout)
			if err := c.lock(trxID, manager.LOCK_X, fk.ChildTable, childPK); err != nil {
				return err
			}

			switch action {
			case ActionCascade:
				op := CascadeDelete
				if !isDelete {
					op = CascadeUpdate
				}
				node := &CascadeNode{Table: fk.ChildTable, Op: op, Parent: ancestors}
				if node.depth() > c.MaxCascadeDepth {
					return kerrors.Newf(kerrors.ForeignExceedMaxCascade, fk.ChildTable, fk.Name)
				}
				if op == CascadeUpdate && ancestors.hasUpdateOf(fk.ChildTable) {
					return kerrors.Newf(kerrors.ForeignExceedMaxCascade, fk.ChildTable, fk.Name)
				}

				if isDelete {
					if err := fk.ChildClust.DeleteMark(childPK); err != nil {
						return err
					}
					if err := c.cascadeParent(node, trxID, fk.ChildTable, childPK, nil); err != nil {
						return err
					}
				} else {
					newRec := m.Record
					for i, col := range fk.ChildCols {
						newRec.Values[col.ColIndex] = newKey[i]
					}
					if err := fk.ChildClust.UpdateRow(childPK, newRec, false, trxID); err != nil {
						return err
					}
					if err := c.cascadeParent(node, trxID, fk.ChildTable, childPK, childPK); err != nil {
						return err
					}
				}

			case ActionSetNull:
				newRec := m.Record
				for _, col := range fk.ChildCols {
					if col.NotNull {
						return kerrors.Newf(kerrors.RowIsReferenced, fk.ChildTable, fk.Name)
					}
					newRec.Values[col.ColIndex] = recordcodec.NullValue()
				}
				if err := fk.ChildClust.UpdateRow(childPK, newRec, false, trxID); err != nil {
					return err
				}

			default: // ActionRestrict, ActionNoAction
				return kerrors.Newf(kerrors.RowIsReferenced, fk.ChildTable, fk.Name)
			}
		}
	}
	return nil
}

func (c *Checker) lock(trxID int64, lockType manager.LockType, table string, key []recordcodec.Value) error {
	if c.Locks == nil {
		return nil
	}
	tableID, pageID, rowID := resourceTriplet(table, key)
	if err := c.Locks.AcquireLock(uint64(trxID), tableID, pageID, rowID, lockType); err != nil {
		return kerrors.Wrap(kerrors.LockWait, err)
	}
	return nil
}
