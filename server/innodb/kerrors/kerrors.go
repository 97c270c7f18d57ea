// Package kerrors holds the error taxonomy shared by every storage layer.
package kerrors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Code names one outcome of a storage operation. Codes are implementation
// neutral; callers switch on Code, never on error string.
type Code int

const (
	OK Code = iota
	DuplicateKey
	RecordNotFound
	LockWait
	LockWaitTimeout
	Deadlock
	OutOfFileSpace
	OutOfMemory
	Corruption
	Interrupted
	InvalidNull
	ComputeValueFailed
	Overflow
	Underflow
	NoReferencedRow
	RowIsReferenced
	ForeignExceedMaxCascade
	OnlineLogTooBig
	DecryptionFailed
	TempFileWriteFail
	TooBigRecord
	MissingHistory
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case DuplicateKey:
		return "DUPLICATE_KEY"
	case RecordNotFound:
		return "RECORD_NOT_FOUND"
	case LockWait:
		return "LOCK_WAIT"
	case LockWaitTimeout:
		return "LOCK_WAIT_TIMEOUT"
	case Deadlock:
		return "DEADLOCK"
	case OutOfFileSpace:
		return "OUT_OF_FILE_SPACE"
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	case Corruption:
		return "CORRUPTION"
	case Interrupted:
		return "INTERRUPTED"
	case InvalidNull:
		return "INVALID_NULL"
	case ComputeValueFailed:
		return "COMPUTE_VALUE_FAILED"
	case Overflow:
		return "OVERFLOW"
	case Underflow:
		return "UNDERFLOW"
	case NoReferencedRow:
		return "NO_REFERENCED_ROW"
	case RowIsReferenced:
		return "ROW_IS_REFERENCED"
	case ForeignExceedMaxCascade:
		return "FOREIGN_EXCEED_MAX_CASCADE"
	case OnlineLogTooBig:
		return "ONLINE_LOG_TOO_BIG"
	case DecryptionFailed:
		return "DECRYPTION_FAILED"
	case TempFileWriteFail:
		return "TEMP_FILE_WRITE_FAIL"
	case TooBigRecord:
		return "TOO_BIG_RECORD"
	case MissingHistory:
		return "MISSING_HISTORY"
	default:
		return "UNKNOWN"
	}
}

// Error is a typed, stack-carrying error naming a table/constraint when the
// caller supplied one, per the spec's "names the table and, where
// meaningful, the constraint or index" requirement.
type Error struct {
	Code       Code
	Table      string
	Constraint string
	cause      error
}

func (e *Error) Error() string {
	switch {
	case e.Table != "" && e.Constraint != "":
		return fmt.Sprintf("%s: table %q constraint %q", e.Code, e.Table, e.Constraint)
	case e.Table != "":
		return fmt.Sprintf("%s: table %q", e.Code, e.Table)
	default:
		return e.Code.String()
	}
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a bare Error, stack-wrapped via pkg/errors so callers that
// log with %+v get an origin trace.
func New(code Code) error {
	return pkgerrors.WithStack(&Error{Code: code})
}

// Newf attaches table/constraint context.
func Newf(code Code, table, constraint string) error {
	return pkgerrors.WithStack(&Error{Code: code, Table: table, Constraint: constraint})
}

// Wrap annotates an existing error with a code while preserving it as cause.
func Wrap(code Code, cause error) error {
	return pkgerrors.WithStack(&Error{Code: code, cause: cause})
}

// Is reports whether the first *Error found in err's chain carries the
// given Code; an *Error wrapped as the cause of another *Error is not
// inspected.
func Is(err error, code Code) bool {
	for err != nil {
		if ke, ok := err.(*Error); ok {
			return ke.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CodeOf extracts the Code from err, or OK if err is nil, or Corruption if
// err does not carry a recognized Code (an unexpected error is treated as
// data corruption rather than silently ignored).
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	for e := err; e != nil; {
		if ke, ok := e.(*Error); ok {
			return ke.Code
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return Corruption
}

// Recoverable reports whether the propagation policy (spec §7) treats code
// as locally recoverable by the caller retrying the same operation at a
// different mode, as opposed to surfacing or aborting the structure.
func Recoverable(code Code) bool {
	switch code {
	case Overflow, DuplicateKey:
		return true
	default:
		return false
	}
}

// Fatal reports whether code is fatal to the structure (spec §7): the
// affected index must be marked ABORTED and the mini-transaction rolled
// back rather than retried.
func Fatal(code Code) bool {
	switch code {
	case Corruption, OnlineLogTooBig:
		return true
	default:
		return false
	}
}
