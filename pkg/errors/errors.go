// Package errors defines the sentinel errors and the AppError wrapper shared
// across the pipeline, plus the mapping from errors to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRecordNotFound = errors.New("document record not found")
	ErrRecordExists   = errors.New("document record already exists")
	ErrStatusConflict = errors.New("document status conflict")
	ErrInvalidInput   = errors.New("invalid input")
	ErrBlobNotFound   = errors.New("blob not found")
	ErrDependency     = errors.New("dependency call failed")
	ErrTimeout        = errors.New("operation timed out")
)

// AppError wraps a sentinel with a human-readable message and the HTTP status
// the error should surface as.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status code it should produce.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrBlobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRecordExists), errors.Is(err, ErrStatusConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrDependency), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
