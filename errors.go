package reftable

import "github.com/pkg/errors"

// Code is the stable numeric identity of a reftable sentinel error.
type Code int

const (
	// CodeOutdated means the on-disk manifest changed since the caller
	// last reloaded; the operation is retryable after a reload.
	CodeOutdated Code = iota + 1
	// CodeLock means a required lock file already exists.
	CodeLock
	// CodeAPI means the caller violated a protocol invariant.
	CodeAPI
	// CodeFormat means a reader's hash format does not match the
	// stack's.
	CodeFormat
	// CodeEmptyTable means a writer callback produced no records where
	// at least one was required.
	CodeEmptyTable
)

// Error is the concrete type behind every sentinel below. Use errors.As
// to recover it from a wrapped error, or the Is* helpers.
type Error struct {
	Code Code
	text string
}

func (e *Error) Error() string { return e.text }

func newSentinel(code Code, text string) *Error {
	return &Error{Code: code, text: text}
}

var (
	// ErrOutdated is returned when the on-disk manifest has advanced
	// past the caller's last reload.
	ErrOutdated = newSentinel(CodeOutdated, "reftable: manifest changed since last reload")
	// ErrLock is returned when a required lock file already exists.
	ErrLock = newSentinel(CodeLock, "reftable: lock already held")
	// ErrAPI is returned when a caller violates an invariant (bad
	// update-index ordering, unnormalized log message, overlapping
	// ranges).
	ErrAPI = newSentinel(CodeAPI, "reftable: caller violated protocol")
	// ErrFormat is returned when a table's hash format does not match
	// the stack's adopted format.
	ErrFormat = newSentinel(CodeFormat, "reftable: hash format mismatch")
	// ErrEmptyTable is returned by Addition.AddRequired when the
	// writer callback produced zero records.
	ErrEmptyTable = newSentinel(CodeEmptyTable, "reftable: writer produced no records")
)

// codeOf reports the Code carried by err, if err wraps one of the
// sentinels above anywhere in its chain.
func codeOf(err error) (Code, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsOutdated reports whether err is, or wraps, ErrOutdated.
func IsOutdated(err error) bool { c, ok := codeOf(err); return ok && c == CodeOutdated }

// IsLockFailure reports whether err is, or wraps, ErrLock.
func IsLockFailure(err error) bool { c, ok := codeOf(err); return ok && c == CodeLock }

// IsAPIError reports whether err is, or wraps, ErrAPI.
func IsAPIError(err error) bool { c, ok := codeOf(err); return ok && c == CodeAPI }

// IsFormatError reports whether err is, or wraps, ErrFormat.
func IsFormatError(err error) bool { c, ok := codeOf(err); return ok && c == CodeFormat }

// IsEmptyTable reports whether err is, or wraps, ErrEmptyTable.
func IsEmptyTable(err error) bool { c, ok := codeOf(err); return ok && c == CodeEmptyTable }
