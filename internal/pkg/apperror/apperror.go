package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies failures so handlers can map them to HTTP statuses and
// webhook senders know whether to redeliver.
type Kind string

const (
	// KindAuthentication: bad or missing credential. Never retried.
	KindAuthentication Kind = "authentication_error"
	// KindAuthorization: valid credential, insufficient standing.
	KindAuthorization Kind = "authorization_error"
	// KindValidation: malformed caller input; client must fix and resend.
	KindValidation Kind = "validation_error"
	// KindRateLimit: allowance exhausted; retry after the window resets.
	KindRateLimit Kind = "rate_limit_error"
	// KindDependency: upstream provider or store unavailable; retryable,
	// surfaced as 5xx so webhook senders redeliver.
	KindDependency Kind = "dependency_error"
	// KindConflict: unexpected state during an upsert; treated as a
	// non-fatal no-op favoring the latest provider-reported state.
	KindConflict Kind = "conflict_error"
)

// Error carries a machine-readable kind plus a human message. The wrapped
// cause stays internal and is never serialized to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain, defaulting to dependency
// (the retryable classification) for unclassified failures.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindDependency
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error kind to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return 401
	case KindAuthorization:
		return 403
	case KindValidation:
		return 400
	case KindRateLimit:
		return 429
	case KindConflict:
		return 409
	default:
		return 500
	}
}
