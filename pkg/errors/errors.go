// Package errors defines the application error taxonomy shared by the
// service layer and the HTTP handlers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an AppError.
type Code string

const (
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeMissingKey       Code = "MISSING_KEY"
	CodeCrypto           Code = "CRYPTO"
	CodeInternal         Code = "INTERNAL"
)

// AppError carries a code, a client-safe message and an optional cause.
type AppError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError without a cause.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError around cause.
func Wrap(code Code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArgument(message string) *AppError { return New(CodeInvalidArgument, message) }
func Unauthenticated(message string) *AppError { return New(CodeUnauthenticated, message) }
func PermissionDenied(message string) *AppError {
	return New(CodePermissionDenied, message)
}
func NotFound(message string) *AppError    { return New(CodeNotFound, message) }
func RateLimited(reason string) *AppError  { return New(CodeRateLimited, reason) }
func MissingKey(message string) *AppError  { return New(CodeMissingKey, message) }
func Crypto(cause error) *AppError         { return Wrap(CodeCrypto, "failed to process message", cause) }
func Internal(cause error) *AppError       { return Wrap(CodeInternal, "internal server error", cause) }

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of err. Errors outside the taxonomy are internal.
func CodeOf(err error) Code {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps err to the HTTP status code returned to clients.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument, CodeRateLimited:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound, CodeMissingKey:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a client.
func PublicMessage(err error) string {
	if appErr, ok := As(err); ok && appErr.Code != CodeInternal {
		return appErr.Message
	}
	return "internal server error"
}
