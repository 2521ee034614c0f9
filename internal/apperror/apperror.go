// Package apperror defines the domain error taxonomy shared by the
// service and handler layers.
//
// Services return these errors; HTTP handlers translate them to status
// codes with errors.Is/errors.As. The service layer never sees an HTTP
// status, the handler layer never invents a domain rule.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
)

// AppError carries a sentinel (for errors.Is), a human-readable
// message, and optionally the field that caused a validation failure or
// extra data to return with the response (e.g. the duplicate set on a
// restore conflict).
type AppError struct {
	Err     error
	Message string
	Field   string // field causing a validation error, if any
	Data    any    // extra response payload, e.g. duplicates on conflict
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing (or not-owned) resource. The message is
// deliberately generic: the response is identical whether the record
// belongs to another user or does not exist at all.
func NotFound(resource string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// ValidationFailed reports a bad or missing field. Handlers render it
// as a field-keyed error map with a 422 status.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// ConflictWith reports a conflict together with the data that caused
// it, e.g. the list of duplicate movies blocking a restore.
func ConflictWith(message string, data any) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Data:    data,
	}
}

// BadRequest reports a malformed request value, e.g. an invalid list or
// sort key. Rejected before any query executes.
func BadRequest(message string) *AppError {
	return &AppError{
		Err:     ErrBadRequest,
		Message: message,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
