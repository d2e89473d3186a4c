// Package errors provides error handling for jobhub.
//
// It re-exports github.com/cockroachdb/errors (stack traces, wrapping,
// details and hints) and defines the sentinel errors shared by the store,
// the lifecycle engine and the HTTP layer.
//
//	if errors.Is(err, errors.ErrNotFound) {
//	    // map to 404
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
)

// GetStack returns the reportable stack trace recorded on err, if any.
var GetStack = crdb.GetReportableStackTrace

// Sentinel errors. Wrap them with Wrap/Wrapf to add context while keeping
// errors.Is matching intact.
var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = New("not found")

	// ErrConflict indicates a uniqueness violation (e.g. duplicate application)
	ErrConflict = New("resource conflict")

	// ErrForbidden indicates the caller does not own the target record
	ErrForbidden = New("forbidden")

	// ErrUnauthorized indicates the request carries no identity
	ErrUnauthorized = New("unauthorized")

	// ErrInvalidRequest indicates malformed input
	ErrInvalidRequest = New("invalid request")

	// ErrServiceUnavailable indicates an optional backend is not configured
	ErrServiceUnavailable = New("service unavailable")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflict reports whether err is or wraps ErrConflict.
func IsConflict(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsForbidden reports whether err is or wraps ErrForbidden.
func IsForbidden(err error) bool {
	return err != nil && Is(err, ErrForbidden)
}

// NewNotFoundError creates a not-found error with a formatted message.
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrapf(ErrNotFound, format, args...)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message.
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrapf(ErrInvalidRequest, format, args...)
}
