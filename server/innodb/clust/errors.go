package clust

import "github.com/ixrow/storage-core/server/innodb/kerrors"

var (
	ErrDuplicateKey = kerrors.New(kerrors.DuplicateKey)
	ErrLockWait     = kerrors.New(kerrors.LockWait)
	ErrOutOfSpace   = kerrors.New(kerrors.OutOfFileSpace)
)
