package fk

import "github.com/ixrow/storage-core/server/innodb/kerrors"

// ErrNoReferencedRow etc. name the outcomes spec §4.3 enumerates for the
// checker's contract: OK, NO_REFERENCED_ROW, ROW_IS_REFERENCED,
// FOREIGN_EXCEED_MAX_CASCADE, LOCK_WAIT.
var (
	ErrNoReferencedRow      = kerrors.New(kerrors.NoReferencedRow)
	ErrRowIsReferenced      = kerrors.New(kerrors.RowIsReferenced)
	ErrExceedMaxCascade     = kerrors.New(kerrors.ForeignExceedMaxCascade)
)
