// Package captoken issues and verifies the short-lived capability tokens a
// sandbox presents to the gateway. Tokens are HS256 JWTs bound to one
// terminal, its dashboard and the acting user.
package captoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is malformed, badly signed
	// or carries the wrong issuer or audience
	ErrInvalidToken = errors.New("invalid capability token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("capability token expired")

	// ErrMissingClaim is returned when a required claim is empty
	ErrMissingClaim = errors.New("missing required claim")
)

const minSecretLength = 32

// Claims are the capability token claims. The subject is the user id.
type Claims struct {
	TerminalID  string `json:"terminal_id"`
	DashboardID string `json:"dashboard_id"`
	jwt.RegisteredClaims
}

// UserID returns the acting user
func (c *Claims) UserID() string {
	return c.Subject
}

// Config holds configuration for the Service
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
}

// Service signs and verifies capability tokens
type Service struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	parser   *jwt.Parser
	now      func() time.Time
}

// New creates a new Service
func New(cfg Config) (*Service, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("capability token secret must be at least %d bytes", minSecretLength)
	}
	if cfg.Audience == "" {
		return nil, errors.New("capability token audience is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &Service{
		secret:   cfg.Secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		parser:   jwt.NewParser(opts...),
		now:      time.Now,
	}, nil
}

// Issue signs a token for the terminal, dashboard and user
func (s *Service) Issue(terminalID, dashboardID, userID string) (string, error) {
	if terminalID == "" || dashboardID == "" || userID == "" {
		return "", ErrMissingClaim
	}

	now := s.now()
	claims := &Claims{
		TerminalID:  terminalID,
		DashboardID: dashboardID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify validates a token and returns its claims
func (s *Service) Verify(_ context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	switch {
	case claims.TerminalID == "":
		return nil, fmt.Errorf("%w: terminal_id", ErrMissingClaim)
	case claims.DashboardID == "":
		return nil, fmt.Errorf("%w: dashboard_id", ErrMissingClaim)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims, nil
}
