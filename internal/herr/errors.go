// Package herr defines the typed result codes and error value shared by
// every HN4 package, in the shape of the teacher's types.APFSError: a single
// struct carrying a comparable code plus the operation and subject that
// produced it.
package herr

import "fmt"

// ResultCode is the §6 result code. Zero value is OK so a bare ResultCode
// comparison against Result{} reads naturally in switch statements.
type ResultCode int

const (
	OK ResultCode = iota

	// Info codes: not failures, callers must still inspect them.
	InfoHealed
	InfoHorizonFallback

	// Validation tier: recoverable by the caller without retry.
	ErrInvalidArgument
	ErrUninitialized // declared here, but IsFatal classifies it as fatal
	ErrNoMem
	ErrGeometry
	ErrAlignmentFail
	ErrProfileMismatch
	ErrEnospc
	ErrEexist
	ErrAccessDenied
	ErrTombstone
	ErrNotFound

	// Transient/degraded tier: recoverable by retry or degrade.
	ErrHwIO
	ErrAtomicsTimeout
	ErrZoneFull
	ErrEventHorizon
	ErrGravityCollapse
	ErrDataRot

	// Fatal tier: surface and stop.
	ErrParityBroken
	ErrAuditFailure
	ErrInternalFault
)

var names = map[ResultCode]string{
	OK:                   "OK",
	InfoHealed:           "INFO_HEALED",
	InfoHorizonFallback:  "INFO_HORIZON_FALLBACK",
	ErrInvalidArgument:   "ERR_INVALID_ARGUMENT",
	ErrUninitialized:     "ERR_UNINITIALIZED",
	ErrNoMem:             "ERR_NOMEM",
	ErrGeometry:          "ERR_GEOMETRY",
	ErrAlignmentFail:     "ERR_ALIGNMENT_FAIL",
	ErrProfileMismatch:   "ERR_PROFILE_MISMATCH",
	ErrEnospc:            "ERR_ENOSPC",
	ErrEexist:            "ERR_EEXIST",
	ErrAccessDenied:      "ERR_ACCESS_DENIED",
	ErrTombstone:         "ERR_TOMBSTONE",
	ErrNotFound:          "ERR_NOT_FOUND",
	ErrHwIO:              "ERR_HW_IO",
	ErrAtomicsTimeout:    "ERR_ATOMICS_TIMEOUT",
	ErrZoneFull:          "ERR_ZONE_FULL",
	ErrEventHorizon:      "ERR_EVENT_HORIZON",
	ErrGravityCollapse:   "ERR_GRAVITY_COLLAPSE",
	ErrDataRot:           "ERR_DATA_ROT",
	ErrParityBroken:      "ERR_PARITY_BROKEN",
	ErrAuditFailure:      "ERR_AUDIT_FAILURE",
	ErrInternalFault:     "ERR_INTERNAL_FAULT",
}

func (c ResultCode) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("ResultCode(%d)", int(c))
}

// IsInfo reports whether c is an informational code rather than an error.
// Callers must still branch on these (§7 propagation policy) but they are
// not failures.
func (c ResultCode) IsInfo() bool {
	return c == InfoHealed || c == InfoHorizonFallback
}

// IsFatal reports whether c is in the "fatal to volume integrity" tier of
// §7: these must be surfaced to the caller and must stop further writes
// against the affected row/volume rather than being silently retried.
func (c ResultCode) IsFatal() bool {
	switch c {
	case ErrParityBroken, ErrAuditFailure, ErrInternalFault, ErrUninitialized:
		return true
	default:
		return false
	}
}

// Error is HN4's single typed error value, mirroring the teacher's
// types.NewAPFSError(code, op, subject, msg) constructor shape.
type Error struct {
	Code    ResultCode
	Op      string
	Subject string
	Message string
}

func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("hn4: %s: %s: %s (%s)", e.Op, e.Subject, e.Message, e.Code)
	}
	return fmt.Sprintf("hn4: %s: %s (%s)", e.Op, e.Message, e.Code)
}

// Unwrap is intentionally absent: an *Error is a terminal leaf in the error
// chain. Callers compare Code, not the wrapped cause.

// New constructs a typed error the way types.NewAPFSError does in the
// teacher: (code, operation-name, subject-or-empty, human message).
func New(code ResultCode, op, subject, message string) *Error {
	return &Error{Code: code, Op: op, Subject: subject, Message: message}
}

// IsCode reports whether err carries the given ResultCode, letting a
// caller test a returned error against a bare ResultCode without a type
// assertion. It is a plain helper, not an errors.Is method.
func IsCode(err error, code ResultCode) bool {
	if err == nil {
		return code == OK
	}
	he, ok := err.(*Error)
	if !ok {
		return false
	}
	return he.Code == code
}

// Code extracts the ResultCode from an error produced by this package,
// defaulting to ErrInternalFault for foreign errors so a caller never
// silently treats an unrecognized failure as validation-tier.
func Code(err error) ResultCode {
	if err == nil {
		return OK
	}
	if he, ok := err.(*Error); ok {
		return he.Code
	}
	return ErrInternalFault
}
