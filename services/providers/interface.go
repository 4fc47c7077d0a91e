package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/upb/integration-gateway/internal/policy"
)

// Connector executes one provider action on behalf of a user
type Connector interface {
	// Provider returns the provider this connector serves
	Provider() policy.Provider

	// Execute runs action with the raw JSON args using accessToken and
	// returns the decoded provider response
	Execute(ctx context.Context, action string, args json.RawMessage, accessToken string) (any, error)
}

// ConnectorConfig holds common configuration for connectors
type ConnectorConfig struct {
	// Endpoint receives POST {action, args}
	Endpoint string

	// Timeout bounds a single call
	Timeout time.Duration

	// MaxResponseBytes caps the response body read
	MaxResponseBytes int64

	// Additional headers
	Headers map[string]string
}

// DefaultConnectorConfig returns a sensible default configuration
func DefaultConnectorConfig() ConnectorConfig {
	return ConnectorConfig{
		Timeout:          30 * time.Second,
		MaxResponseBytes: 10 << 20,
		Headers:          make(map[string]string),
	}
}

// UpstreamError represents a failed provider call
type UpstreamError struct {
	// Provider that generated the error
	Provider policy.Provider

	// Message is the upstream message, passed through unchanged
	Message string

	// StatusCode is the HTTP status code, 0 for transport failures
	StatusCode int

	// Timeout is set when the call exceeded its deadline
	Timeout bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream error (%d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s upstream error: %s", e.Provider, e.Message)
}

// Unwrap implements error unwrapping
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// NewUpstreamError creates a new upstream error
func NewUpstreamError(provider policy.Provider, statusCode int, message string, cause error) *UpstreamError {
	return &UpstreamError{
		Provider:   provider,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// IsRetryable reports whether the failure was transient
func IsRetryable(err error) bool {
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		return false
	}
	return upErr.Timeout || upErr.StatusCode == 0 ||
		upErr.StatusCode == http.StatusTooManyRequests || upErr.StatusCode >= 500
}
