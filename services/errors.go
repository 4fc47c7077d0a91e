package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
	ErrorTypeForbidden       ErrorType = "forbidden"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeConflict        ErrorType = "conflict"
	ErrorTypeInternal        ErrorType = "internal"
	ErrorTypeExternal        ErrorType = "external"
	ErrorTypePolicyViolation ErrorType = "policy_violation"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. Two domain errors match when their types match
// and, if the target carries a message, the messages match too.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && (t.Message == "" || e.Message == t.Message)
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap returns a copy of e carrying err as its cause. Use it on the
// predefined errors so the shared values are never mutated.
func (e *DomainError) Wrap(err error) *DomainError {
	details := make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		details[k] = v
	}
	return &DomainError{Type: e.Type, Message: e.Message, Err: err, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Not Found Errors
	ErrNotAttached             = NewDomainError(ErrorTypeNotFound, "integration not attached", nil)
	ErrPolicyNotFound          = NewDomainError(ErrorTypeNotFound, "policy not found", nil)
	ErrTerminalNotFound        = NewDomainError(ErrorTypeNotFound, "terminal not found", nil)
	ErrUserIntegrationNotFound = NewDomainError(ErrorTypeNotFound, "user integration not found", nil)

	// Validation Errors
	ErrInvalidInput        = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidPolicy       = NewDomainError(ErrorTypeValidation, "invalid policy", nil)
	ErrInvalidProvider     = NewDomainError(ErrorTypeValidation, "invalid provider specified", nil)
	ErrMissingOAuthLink    = NewDomainError(ErrorTypeValidation, "provider requires a linked user integration", nil)
	ErrInvalidConfirmation = NewDomainError(ErrorTypeValidation, "capability is not high-risk for this provider", nil)

	// Authorization Errors
	ErrUnauthorized            = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken            = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired            = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)
	ErrIntegrationDisconnected = NewDomainError(ErrorTypeUnauthorized, "user integration is disconnected", nil)

	// Permission Errors
	ErrForbidden        = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrInsufficientRole = NewDomainError(ErrorTypeForbidden, "insufficient dashboard role", nil)

	// Rate Limit Errors
	ErrRateLimitExceeded      = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)
	ErrRateLimiterUnavailable = NewDomainError(ErrorTypeRateLimit, "rate limiter unavailable", nil)

	// Conflict Errors
	ErrAlreadyAttached  = NewDomainError(ErrorTypeConflict, "integration already attached", nil)
	ErrConcurrentUpdate = NewDomainError(ErrorTypeConflict, "concurrent update detected", nil)

	// Internal Errors
	ErrInternal           = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError      = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrPolicyInconsistent = NewDomainError(ErrorTypeInternal, "active policy does not resolve", nil)

	// External Provider Errors
	ErrProviderUnavailable = NewDomainError(ErrorTypeExternal, "provider unavailable", nil)
	ErrProviderTimeout     = NewDomainError(ErrorTypeExternal, "provider timeout", nil)
	ErrProviderError       = NewDomainError(ErrorTypeExternal, "provider error", nil)

	// Policy Violation Errors
	ErrPolicyViolation = NewDomainError(ErrorTypePolicyViolation, "policy violation", nil)
)

// IsType reports whether err wraps a domain error of type t
func IsType(err error, t ErrorType) bool {
	return GetErrorType(err) == t
}

// GetErrorType returns the type of the outermost domain error in err's
// chain, or "" when there is none.
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details of the outermost domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// PublicMessage is the text safe to return to API clients. Validation
// errors include their cause since it describes the caller's input.
func PublicMessage(err error) string {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return ""
	}
	if domainErr.Type == ErrorTypeValidation && domainErr.Err != nil {
		return domainErr.Message + ": " + domainErr.Err.Error()
	}
	return domainErr.Message
}
