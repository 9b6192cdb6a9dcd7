package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrConflict        = errors.New("conflict")
	ErrUpstream        = errors.New("upstream error")
)

// AppError is the typed error every layer of the client speaks.
//
// For errors born locally (validation, missing token) only Err/Message/Field
// are set. For errors derived from a non-2xx backend response, Status carries
// the HTTP status code, Code the optional backend-supplied error code, and
// Diagnostics the optional list parsed from the JSON body — enough structure
// for a consumer to render a notification without re-parsing anything.
type AppError struct {
	Err         error    // sentinel cause, for errors.Is
	Message     string   // Human-readable error message
	Field       string   // Optional: field causing the error
	Status      int      // Optional: HTTP status code of the failed response
	Code        string   // Optional: backend-supplied machine-readable code
	Diagnostics []string // Optional: backend-supplied diagnostics list
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// The ops layer uses this for 403 responses and ownership-check denials.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
		Status:  403,
	}
}

// Unauthenticated returns an AppError for operations that strictly require a
// token when none is available. These fail fast — no network call is made.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// FromStatus builds an AppError out of a non-2xx backend response.
//
// The sentinel is picked from the status code so callers can keep using
// errors.Is(err, apperror.ErrForbidden) etc. without caring whether the
// error came from a local check or the wire.
func FromStatus(status int, code, message string, diagnostics []string) *AppError {
	sentinel := ErrUpstream
	switch status {
	case 400:
		sentinel = ErrValidation
	case 401:
		sentinel = ErrUnauthenticated
	case 403:
		sentinel = ErrForbidden
	case 404:
		sentinel = ErrNotFound
	case 409:
		sentinel = ErrConflict
	}
	return &AppError{
		Err:         sentinel,
		Message:     message,
		Status:      status,
		Code:        code,
		Diagnostics: diagnostics,
	}
}

// StatusOf extracts the HTTP status from an error chain, or 0 when the error
// didn't come from a backend response.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}
