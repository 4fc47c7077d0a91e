package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Error codes used by the dashboard API. The gateway uses its own codes in
// the same envelope.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternalError  = "INTERNAL_ERROR"
)

// ErrorResponse is the error envelope {error, reason}
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Reason  string                 `json:"reason"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps dashboard API payloads
type SuccessResponse struct {
	Data interface{} `json:"data,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with data
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteCreated writes a 201 Created response with data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Data: data})
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError writes the error envelope
func WriteError(w http.ResponseWriter, status int, code, reason string, details map[string]interface{}) error {
	return WriteJSON(w, status, ErrorResponse{
		Error:   code,
		Reason:  reason,
		Details: details,
	})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, reason string, details map[string]interface{}) error {
	return WriteError(w, http.StatusBadRequest, CodeInvalidRequest, reason, details)
}

// WriteUnauthorized writes a 401 Unauthorized response
func WriteUnauthorized(w http.ResponseWriter, reason string) error {
	if reason == "" {
		reason = "Authentication required"
	}
	return WriteError(w, http.StatusUnauthorized, CodeUnauthorized, reason, nil)
}

// WriteForbidden writes a 403 Forbidden response
func WriteForbidden(w http.ResponseWriter, reason string) error {
	if reason == "" {
		reason = "Access forbidden"
	}
	return WriteError(w, http.StatusForbidden, CodeForbidden, reason, nil)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, reason string) error {
	if reason == "" {
		reason = "Resource not found"
	}
	return WriteError(w, http.StatusNotFound, CodeNotFound, reason, nil)
}

// WriteConflict writes a 409 Conflict response
func WriteConflict(w http.ResponseWriter, reason string, details map[string]interface{}) error {
	return WriteError(w, http.StatusConflict, CodeConflict, reason, details)
}

// SetRetryAfter sets the Retry-After header in whole seconds, rounding up
func SetRetryAfter(w http.ResponseWriter, d time.Duration) {
	if d <= 0 {
		return
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
}

// WriteTooManyRequests writes a 429 Too Many Requests response
func WriteTooManyRequests(w http.ResponseWriter, reason string, retryAfter time.Duration) error {
	if reason == "" {
		reason = "Rate limit exceeded"
	}
	SetRetryAfter(w, retryAfter)
	return WriteError(w, http.StatusTooManyRequests, CodeRateLimited, reason, nil)
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, reason string) error {
	if reason == "" {
		reason = "Internal server error"
	}
	return WriteError(w, http.StatusInternalServerError, CodeInternalError, reason, nil)
}

// ErrBodyTooLarge is returned by DecodeJSON when the body exceeds the limit
var ErrBodyTooLarge = errors.New("request body too large")

// DecodeJSON decodes a single JSON value from the request body into dst,
// reading at most maxBytes
func DecodeJSON(r *http.Request, maxBytes int64, dst interface{}) error {
	body, err := ReadBody(r, maxBytes)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ReadBody reads at most maxBytes of the request body
func ReadBody(r *http.Request, maxBytes int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}
