package captoken

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := New(Config{
		Secret:   testSecret,
		Issuer:   "dashboard",
		Audience: "integration-gateway",
		TTL:      time.Minute,
	})
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Secret: []byte("short"), Audience: "gw"})
	assert.Error(t, err)

	_, err = New(Config{Secret: testSecret})
	assert.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	s := newTestService(t)

	token, err := s.Issue("term-1", "dash-1", "user-1")
	require.NoError(t, err)

	claims, err := s.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "term-1", claims.TerminalID)
	assert.Equal(t, "dash-1", claims.DashboardID)
	assert.Equal(t, "user-1", claims.UserID())
}

func TestIssue_MissingClaim(t *testing.T) {
	s := newTestService(t)
	_, err := s.Issue("term-1", "", "user-1")
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestVerify_Expired(t *testing.T) {
	s := newTestService(t)
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := s.Issue("term-1", "dash-1", "user-1")
	require.NoError(t, err)

	_, err = s.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_Rejects(t *testing.T) {
	s := newTestService(t)
	valid, err := s.Issue("term-1", "dash-1", "user-1")
	require.NoError(t, err)

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key interface{}) string {
		tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Minute))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrInvalidToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
		{"tampered", valid[:len(valid)-2] + "xx", ErrInvalidToken},
		{
			"wrong secret",
			sign(&Claims{TerminalID: "t", DashboardID: "d", RegisteredClaims: jwt.RegisteredClaims{
				Subject: "u", Issuer: "dashboard", Audience: jwt.ClaimStrings{"integration-gateway"}, ExpiresAt: exp,
			}}, jwt.SigningMethodHS256, []byte(strings.Repeat("z", 32))),
			ErrInvalidToken,
		},
		{
			"wrong audience",
			sign(&Claims{TerminalID: "t", DashboardID: "d", RegisteredClaims: jwt.RegisteredClaims{
				Subject: "u", Issuer: "dashboard", Audience: jwt.ClaimStrings{"other"}, ExpiresAt: exp,
			}}, jwt.SigningMethodHS256, testSecret),
			ErrInvalidToken,
		},
		{
			"wrong issuer",
			sign(&Claims{TerminalID: "t", DashboardID: "d", RegisteredClaims: jwt.RegisteredClaims{
				Subject: "u", Issuer: "someone", Audience: jwt.ClaimStrings{"integration-gateway"}, ExpiresAt: exp,
			}}, jwt.SigningMethodHS256, testSecret),
			ErrInvalidToken,
		},
		{
			"no expiry",
			sign(&Claims{TerminalID: "t", DashboardID: "d", RegisteredClaims: jwt.RegisteredClaims{
				Subject: "u", Issuer: "dashboard", Audience: jwt.ClaimStrings{"integration-gateway"},
			}}, jwt.SigningMethodHS256, testSecret),
			ErrInvalidToken,
		},
		{
			"wrong algorithm",
			sign(&Claims{TerminalID: "t", DashboardID: "d", RegisteredClaims: jwt.RegisteredClaims{
				Subject: "u", Issuer: "dashboard", Audience: jwt.ClaimStrings{"integration-gateway"}, ExpiresAt: exp,
			}}, jwt.SigningMethodHS512, testSecret),
			ErrInvalidToken,
		},
		{
			"missing terminal",
			sign(&Claims{DashboardID: "d", RegisteredClaims: jwt.RegisteredClaims{
				Subject: "u", Issuer: "dashboard", Audience: jwt.ClaimStrings{"integration-gateway"}, ExpiresAt: exp,
			}}, jwt.SigningMethodHS256, testSecret),
			ErrMissingClaim,
		},
		{
			"missing subject",
			sign(&Claims{TerminalID: "t", DashboardID: "d", RegisteredClaims: jwt.RegisteredClaims{
				Issuer: "dashboard", Audience: jwt.ClaimStrings{"integration-gateway"}, ExpiresAt: exp,
			}}, jwt.SigningMethodHS256, testSecret),
			ErrMissingClaim,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
