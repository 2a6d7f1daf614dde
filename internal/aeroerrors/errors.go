// Package aeroerrors implements the flat, tagged error taxonomy from
// spec.md §7: every fallible core operation returns an error carrying a
// stable Kind and a Severity, never a remapped or swallowed error.
//
// Kinds are wrapped with github.com/cockroachdb/errors so a FATAL error
// keeps a stack trace from the point it was raised. The request handler
// logs every failed request and returns it as an error response; it
// does not stop accepting requests after a FATAL error.
package aeroerrors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Severity is one of the three tiers from spec.md §7.
type Severity int

const (
	// Reject is a client error; the process continues.
	Reject Severity = iota
	// Error is an operation failure; the process continues.
	Error
	// Fatal means data integrity cannot be assumed otherwise; the
	// process must halt.
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Reject:
		return "REJECT"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Kind is a stable error code string, always prefixed "AERO_" on the
// wire (spec.md §6 response envelope).
type Kind string

const (
	KindSchemaRequired        Kind = "SCHEMA_REQUIRED"
	KindUnknownSchema         Kind = "UNKNOWN_SCHEMA"
	KindUnknownSchemaVersion  Kind = "UNKNOWN_SCHEMA_VERSION"
	KindSchemaVersionRequired Kind = "SCHEMA_VERSION_REQUIRED"
	KindSchemaValidationFailed Kind = "SCHEMA_VALIDATION_FAILED"
	KindSchemaImmutable       Kind = "SCHEMA_IMMUTABLE"
	KindRecoverySchemaMissing Kind = "RECOVERY_SCHEMA_MISSING"

	KindQueryInvalid         Kind = "QUERY_INVALID"
	KindQueryUnbounded       Kind = "QUERY_UNBOUNDED"
	KindQueryUnindexedField  Kind = "QUERY_UNINDEXED_FIELD"
	KindQueryLimitRequired   Kind = "QUERY_LIMIT_REQUIRED"
	KindQuerySortNotIndexed  Kind = "QUERY_SORT_NOT_INDEXED"
	KindQuerySchemaMismatch  Kind = "QUERY_SCHEMA_MISMATCH"

	KindWALWriteFailed Kind = "WAL_WRITE_FAILED"
	KindWALCorruption  Kind = "WAL_CORRUPTION"

	KindStorageIOError     Kind = "STORAGE_IO_ERROR"
	KindStorageWriteFailed Kind = "STORAGE_WRITE_FAILED"
	KindStorageReadFailed  Kind = "STORAGE_READ_FAILED"
	KindDataCorruption     Kind = "DATA_CORRUPTION"
	KindStorageCorruption  Kind = "STORAGE_CORRUPTION"

	KindIndexBuildFailed Kind = "INDEX_BUILD_FAILED"

	KindRecoveryFailed             Kind = "RECOVERY_FAILED"
	KindRecoveryVerificationFailed Kind = "RECOVERY_VERIFICATION_FAILED"

	KindIDImmutable Kind = "ID_IMMUTABLE"
	KindDocNotFound Kind = "DOC_NOT_FOUND"
)

// severityOf is the canonical kind->severity table from spec.md §7.
var severityOf = map[Kind]Severity{
	KindSchemaRequired:         Reject,
	KindUnknownSchema:          Reject,
	KindUnknownSchemaVersion:   Reject,
	KindSchemaVersionRequired:  Reject,
	KindSchemaValidationFailed: Reject,
	KindSchemaImmutable:        Reject,
	KindRecoverySchemaMissing:  Fatal,

	KindQueryInvalid:        Reject,
	KindQueryUnbounded:      Reject,
	KindQueryUnindexedField: Reject,
	KindQueryLimitRequired:  Reject,
	KindQuerySortNotIndexed: Reject,
	KindQuerySchemaMismatch: Reject,

	KindWALWriteFailed: Error,
	KindWALCorruption:  Fatal,

	KindStorageIOError:     Error,
	KindStorageWriteFailed: Error,
	KindStorageReadFailed:  Error,
	KindDataCorruption:     Fatal,
	KindStorageCorruption:  Fatal,

	KindIndexBuildFailed: Fatal,

	KindRecoveryFailed:             Fatal,
	KindRecoveryVerificationFailed: Fatal,

	KindIDImmutable: Reject,
	KindDocNotFound: Reject,
}

// AeroError is the single error type every core subsystem returns.
type AeroError struct {
	Kind    Kind
	Sev     Severity
	Path    string // field path for schema/predicate errors, e.g. "address.zip"
	cause   error
}

func (e *AeroError) Error() string {
	msg := "AERO_" + string(e.Kind)
	if e.Path != "" {
		msg += " at " + e.Path
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *AeroError) Unwrap() error { return e.cause }

// Code returns the wire error code, e.g. "AERO_QUERY_LIMIT_REQUIRED".
func (e *AeroError) Code() string { return "AERO_" + string(e.Kind) }

// New builds an AeroError for kind, capturing a stack trace via
// cockroachdb/errors when cause is non-nil.
func New(kind Kind, cause error) *AeroError {
	sev, ok := severityOf[kind]
	if !ok {
		sev = Error
	}
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &AeroError{Kind: kind, Sev: sev, cause: wrapped}
}

// Newf builds an AeroError with a formatted cause message.
func Newf(kind Kind, format string, args ...interface{}) *AeroError {
	return New(kind, fmt.Errorf(format, args...))
}

// WithPath attaches a field path (e.g. "tags[3]") to a schema/predicate
// error for stable, reproducible diagnostics (spec.md §4.4, §8).
func (e *AeroError) WithPath(path string) *AeroError {
	e.Path = path
	return e
}

// Is reports whether err is an AeroError of the given kind.
func Is(err error, kind Kind) bool {
	var ae *AeroError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// SeverityOf returns the severity of err, defaulting to Error for
// non-AeroError values (a programming bug, never swallowed).
func SeverityOf(err error) Severity {
	var ae *AeroError
	if errors.As(err, &ae) {
		return ae.Sev
	}
	return Error
}
