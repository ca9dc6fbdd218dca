// Package apierr defines the closed error taxonomy for the PMAPI REST
// surface. Every failure that reaches a client is classified as one of the
// kinds below, each with a fixed HTTP status. Entity access code raises the
// most specific applicable kind; the response layer is the single point that
// converts errors into HTTP responses.
package apierr

import (
	"errors"
	"net/http"
	"strings"
)

// Kind identifies a class of API failure with a fixed HTTP status.
type Kind int

const (
	// NotFound means the requested entity is absent from the database.
	NotFound Kind = iota
	// MethodNotAllowed means the operation is unsupported for this resource.
	MethodNotAllowed
	// InvalidArgument means a caller-supplied argument failed validation,
	// including references to unknown column names.
	InvalidArgument
	// Conflict means a uniqueness, foreign-key, or check constraint was violated.
	Conflict
	// Timeout means polling or processing exceeded the allowed duration.
	Timeout
	// Internal is an unclassified internal failure.
	Internal
	// NotImplemented means the operation is recognized but not built.
	NotImplemented
)

// Status returns the HTTP status code fixed to the kind.
func (k Kind) Status() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	case InvalidArgument:
		return http.StatusNotAcceptable
	case Conflict:
		return http.StatusConflict
	case NotImplemented:
		return http.StatusNotImplemented
	default:
		// Timeout and Internal both map to 500.
		return http.StatusInternalServerError
	}
}

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case MethodNotAllowed:
		return "method_not_allowed"
	case InvalidArgument:
		return "invalid_argument"
	case Conflict:
		return "conflict"
	case Timeout:
		return "timeout"
	case NotImplemented:
		return "not_implemented"
	default:
		return "internal"
	}
}

// Error is a classified API failure. Details is optional structured context
// that is serialized into the error payload when present.
type Error struct {
	Kind    Kind
	Message string
	Details interface{}
	wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.wrapped }

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithDetails attaches structured detail to the error and returns it.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// Wrap creates an Error of the given kind that carries err as its cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, wrapped: err}
}

// As extracts an *Error from err, following wrap chains.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// FromDB classifies a database error into the taxonomy. Constraint
// violations become Conflict, missing tables become NotFound, and
// everything else is Internal. SQLite reports constraint failures as
// extended result strings, so classification is by message content.
func FromDB(err error, context string) *Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := As(err); ok {
		return apiErr
	}

	msg := context + ": " + err.Error()
	lower := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "constraint failed") ||
		strings.Contains(lower, "foreign key") ||
		strings.Contains(lower, "check constraint"):
		return Wrap(Conflict, msg, err)

	case strings.Contains(lower, "no such table"):
		return Wrap(NotFound, msg, err)

	case strings.Contains(lower, "no such column"):
		return Wrap(InvalidArgument, msg, err)

	default:
		return Wrap(Internal, msg, err)
	}
}
