// Package errors defines the sentinel errors shared across the service and
// maps them onto HTTP status codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrFatalIndex          = errors.New("fatal index error")
	ErrQuerySyntax         = errors.New("query syntax error")
	ErrSchemaMismatch      = errors.New("schema mismatch")
	ErrIndexNotReady       = errors.New("index not ready")
	ErrInvalidInput        = errors.New("invalid input")
	ErrBaselineUnavailable = errors.New("baseline store unavailable")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
)

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

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// QuerySyntaxError reports a malformed free-text query. Offset is the byte
// position in the raw query where parsing failed.
type QuerySyntaxError struct {
	Query  string
	Offset int
	Reason string
}

func (e *QuerySyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at offset %d: %s", e.Offset, e.Reason)
}

func (e *QuerySyntaxError) Is(target error) bool {
	return target == ErrQuerySyntax
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrQuerySyntax), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotReady), errors.Is(err, ErrBaselineUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
