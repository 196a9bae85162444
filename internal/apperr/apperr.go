// Package apperr defines the typed errors returned by services. Each error
// carries the HTTP status and machine-readable code the edge maps it to.
package apperr

import (
	"errors"
	"net/http"
)

// Error codes as they appear in the JSON error body.
const (
	CodeUnauthorized    = "unauthorized"
	CodeBadRequest      = "bad_request"
	CodeNotFound        = "not_found"
	CodeTooManyRequests = "too_many_requests"
	CodeInternal        = "internal_error"
)

// Error is an application error with a fixed HTTP mapping.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Unauthorized returns a 401 error.
func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

// BadRequest returns a 400 error.
func BadRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: message}
}

// NotFound returns a 404 error.
func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// TooManyRequests returns a 429 error.
func TooManyRequests(message string) *Error {
	return &Error{Status: http.StatusTooManyRequests, Code: CodeTooManyRequests, Message: message}
}

// Internal returns a 500 error.
func Internal(message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: message}
}

// From converts any error to an *Error. Errors that are not already typed
// surface as a generic 500 so internal details never leak to clients.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("an internal error occurred")
}
