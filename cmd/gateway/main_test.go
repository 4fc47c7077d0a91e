package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/integration-gateway/app"
	"github.com/upb/integration-gateway/auth/captoken"
	"github.com/upb/integration-gateway/config"
	"github.com/upb/integration-gateway/internal/observability"
	"github.com/upb/integration-gateway/middleware"
	"github.com/upb/integration-gateway/routes"
	"go.uber.org/zap/zaptest"
)

// rejectAllValidator rejects all tokens so dashboard routes return 401
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, assert.AnError
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{MaxBodyBytes: 1 << 20},
		Auth: config.AuthConfig{
			CapabilitySecret:   "capability-secret-capability-secret",
			CapabilityIssuer:   "integration-gateway",
			CapabilityAudience: "sandbox",
			CapabilityTTL:      15 * time.Minute,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}},
		Observability: config.ObservabilityConfig{
			LogLevel:  "error",
			LogFormat: "json",
		},
	}
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--env-file", "local.env", "--migrate-only"})
	require.NoError(t, err)
	assert.Equal(t, "local.env", opts.envFile)
	assert.True(t, opts.migrateOnly)

	opts, err = parseFlags([]string{"--issue-token", "--terminal", "t1", "--dashboard", "d1", "--user", "u1"})
	require.NoError(t, err)
	assert.True(t, opts.issueToken)
	assert.Equal(t, "t1", opts.terminalID)

	_, err = parseFlags([]string{"--issue-token", "--migrate-only"})
	assert.Error(t, err)

	_, err = parseFlags([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	cfg := testConfig()

	logger, err := initLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	cfg.Observability.LogFormat = "text"
	logger, err = initLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	cfg.Observability.LogLevel = "invalid"
	_, err = initLogger(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestIssueToken(t *testing.T) {
	cfg := testConfig()
	var out bytes.Buffer

	err := issueToken(cfg, &options{terminalID: "term-1", dashboardID: "dash-1", userID: "user-1"}, &out)
	require.NoError(t, err)

	svc, err := captoken.New(captoken.Config{
		Secret:   []byte(cfg.Auth.CapabilitySecret),
		Issuer:   cfg.Auth.CapabilityIssuer,
		Audience: cfg.Auth.CapabilityAudience,
	})
	require.NoError(t, err)

	claims, err := svc.Verify(context.Background(), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "term-1", claims.TerminalID)
	assert.Equal(t, "user-1", claims.UserID())

	err = issueToken(cfg, &options{terminalID: "term-1"}, &out)
	assert.Error(t, err)
}

func minimalDeps(t *testing.T) *app.Dependencies {
	logger := zaptest.NewLogger(t)
	prom := observability.NewPrometheusMetrics()
	return &app.Dependencies{
		Config:         testConfig(),
		Logger:         logger,
		Metrics:        prom,
		Prometheus:     prom,
		AuthMiddleware: middleware.NewAuthMiddleware(&rejectAllValidator{}, logger),
	}
}

func TestRoutes(t *testing.T) {
	ts := httptest.NewServer(routes.SetupRoutes(minimalDeps(t)))
	defer ts.Close()

	testCases := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"readiness without database", http.MethodGet, "/health/ready", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"list integrations unauthenticated", http.MethodGet, "/terminals/t1/integrations", http.StatusUnauthorized},
		{"attach unauthenticated", http.MethodPost, "/terminals/t1/integrations", http.StatusUnauthorized},
		{"revise unauthenticated", http.MethodPut, "/terminals/t1/integrations/gmail", http.StatusUnauthorized},
		{"detach unauthenticated", http.MethodDelete, "/terminals/t1/integrations/gmail", http.StatusUnauthorized},
		{"audit unauthenticated", http.MethodGet, "/terminals/t1/integrations/gmail/audit", http.StatusUnauthorized},
		{"not found", http.MethodGet, "/api/v1/nonexistent", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "endpoint: %s %s", tc.method, tc.path)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := httptest.NewServer(routes.SetupRoutes(minimalDeps(t)))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/terminals/t1/integrations", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
