// Package apperrors defines the structured error envelope shared by every
// pipeline stage. Callers branch on Code alone.
package apperrors

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeRateLimit      Code = "RATE_LIMIT"
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeInvalidDomain  Code = "INVALID_DOMAIN"
	CodeInvalidPrompt  Code = "INVALID_PROMPT"
	CodePromptTooLong  Code = "PROMPT_TOO_LONG"
	CodeRoutingError   Code = "ROUTING_ERROR"
	CodeNotFound       Code = "NOT_FOUND"
	CodeInternal       Code = "INTERNAL_ERROR"

	CodeProviderAuth        Code = "PROVIDER_AUTH_ERROR"
	CodeProviderRateLimit   Code = "PROVIDER_RATE_LIMIT"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeProviderTimeout     Code = "PROVIDER_TIMEOUT"
	CodeProviderError       Code = "PROVIDER_ERROR"
)

const handlerSuffix = "_HANDLER_ERROR"

// HandlerCode returns the domain-tagged handler failure code, e.g.
// SOUL_HANDLER_ERROR.
func HandlerCode(domain string) Code {
	return Code(strings.ToUpper(domain) + handlerSuffix)
}

// IsHandlerCode reports whether c is a <DOMAIN>_HANDLER_ERROR code.
func (c Code) IsHandlerCode() bool {
	return strings.HasSuffix(string(c), handlerSuffix)
}

// Error is the domain error type.
type Error struct {
	Code      Code
	Message   string // user-visible message
	Retryable bool
	// RetryAfter is set for RATE_LIMIT errors.
	RetryAfter time.Time
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Retryable creates a domain error that callers may retry.
func Retryable(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Retryable: true, Cause: cause}
}

// RateLimited creates a RATE_LIMIT error carrying the reset time.
func RateLimited(message string, resetAt time.Time) *Error {
	return &Error{Code: CodeRateLimit, Message: message, Retryable: true, RetryAfter: resetAt}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of err, or INTERNAL_ERROR for uncategorized errors.
func CodeOf(err error) Code {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to the status returned by the HTTP adapter.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeInvalidRequest, CodeInvalidDomain, CodeInvalidPrompt, CodePromptTooLong:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
