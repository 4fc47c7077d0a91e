package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// ClaimsKey is the context key for dashboard session claims
	ClaimsKey contextKey = "claims"
)

// Claims are the dashboard session claims
type Claims struct {
	Sub   string `json:"sub"` // user id
	Email string `json:"email"`
	Iss   string `json:"iss"`
	Exp   int64  `json:"exp"`
	Iat   int64  `json:"iat"`
}

// GetRequestIDFromContext retrieves the request ID from context, falling
// back to the id set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetClaimsFromContext retrieves session claims from context
func GetClaimsFromContext(ctx context.Context) *Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds session claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetUserIDFromContext returns the authenticated dashboard user, or ""
func GetUserIDFromContext(ctx context.Context) string {
	if claims := GetClaimsFromContext(ctx); claims != nil {
		return claims.Sub
	}
	return ""
}
