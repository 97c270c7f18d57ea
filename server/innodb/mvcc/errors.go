package mvcc

import "errors"

// ErrInvalidTrxState mirrors the teacher's ErrInvalidTrxState
// (manager/transaction_manager.go): Commit/Rollback called on a
// transaction that is not active.
var ErrInvalidTrxState = errors.New("mvcc: transaction is not active")
