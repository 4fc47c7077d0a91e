// Package auth validates dashboard session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/integration-gateway/middleware"
)

var (
	// ErrInvalidSession is returned when a session token fails validation
	ErrInvalidSession = errors.New("invalid session token")

	// ErrSessionExpired is returned when the session token has expired
	ErrSessionExpired = errors.New("session token expired")
)

// SessionConfig holds configuration for SessionValidator
type SessionConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SessionValidator validates HS256 dashboard session tokens
type SessionValidator struct {
	secret   []byte
	issuer   string
	audience string
	parser   *jwt.Parser
	now      func() time.Time
}

// NewSessionValidator creates a new SessionValidator
func NewSessionValidator(cfg SessionConfig) (*SessionValidator, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("session secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &SessionValidator{
		secret:   cfg.Secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		parser:   jwt.NewParser(opts...),
		now:      time.Now,
	}, nil
}

// ValidateToken implements middleware.TokenValidator
func (v *SessionValidator) ValidateToken(ctx context.Context, token string) (*middleware.Claims, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	claims := &sessionClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}

	out := &middleware.Claims{
		Sub:   claims.Subject,
		Email: claims.Email,
		Iss:   claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		out.Iat = claims.IssuedAt.Unix()
	}
	return out, nil
}

// Issue signs a session token for userID. The dashboard login flow lives
// outside this service; Issue serves local tooling and tests.
func (v *SessionValidator) Issue(userID, email string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := v.now()
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
