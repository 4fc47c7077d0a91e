package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/upb/integration-gateway/utils"
	"go.uber.org/zap"
)

// SessionCookie carries the dashboard session when no Authorization
// header is sent.
const SessionCookie = "session"

// TokenValidator verifies a dashboard session token
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// AuthMiddleware guards the dashboard API with session tokens. Sandbox
// gateway calls are authenticated by capability tokens instead and never
// pass through it.
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, logger: logger}
}

// RequireAuth rejects requests without a valid session and stores the
// session claims in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := m.logger.With(zap.String("request_id", GetRequestIDFromContext(ctx)))

		token, source := sessionToken(r)
		if token == "" {
			log.Debug("request without session")
			m.deny(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validator.ValidateToken(ctx, token)
		switch {
		case err != nil:
			log.Warn("session rejected", zap.String("source", source), zap.Error(err))
			m.deny(w, "Invalid or expired token")
			return
		case claims.Sub == "":
			log.Warn("session has no subject", zap.String("source", source))
			m.deny(w, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

func (m *AuthMiddleware) deny(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="dashboard"`)
	_ = utils.WriteUnauthorized(w, msg)
}

// sessionToken prefers the Authorization header over the cookie
func sessionToken(r *http.Request) (token, source string) {
	if token = BearerToken(r); token != "" {
		return token, "header"
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value, "cookie"
	}
	return "", ""
}

// BearerToken returns the credentials of a "Bearer" Authorization header.
// The scheme is case-insensitive.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
