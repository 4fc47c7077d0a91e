package gateway

import (
	"fmt"
	"net/http"
	"time"
)

// Code is the wire error code returned to the sandbox
type Code string

const (
	CodeAuthDenied     Code = "AUTH_DENIED"
	CodeNotAttached    Code = "NOT_ATTACHED"
	CodePolicyDenied   Code = "POLICY_DENIED"
	CodeFiltered       Code = "FILTERED"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeAPIError       Code = "API_ERROR"
	CodeInternalError  Code = "INTERNAL_ERROR"
	CodeInvalidRequest Code = "INVALID_REQUEST"
)

// HTTPStatus returns the status code for c
func (c Code) HTTPStatus() int {
	switch c {
	case CodeAuthDenied:
		return http.StatusUnauthorized
	case CodeNotAttached:
		return http.StatusNotFound
	case CodePolicyDenied, CodeFiltered:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeAPIError:
		return http.StatusBadGateway
	case CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a terminal gateway outcome other than success
type Error struct {
	Code   Code
	Reason string

	// RetryAfter is set for RATE_LIMITED
	RetryAfter time.Duration

	// Err is the underlying cause, never sent to the caller
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Unwrap implements error unwrapping
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code for the error
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

func newError(code Code, reason string, cause error) *Error {
	return &Error{Code: code, Reason: reason, Err: cause}
}
