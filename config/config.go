package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/integration-gateway/internal/policy"
)

// Rate limiter backends
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	AuditDatabase *DatabaseConfig // Optional: separate DB for audit logs. When nil, audit uses main DB.
	Auth          AuthConfig
	RateLimit     RateLimitConfig
	OAuth         OAuthConfig
	Connectors    ConnectorsConfig
	Audit         AuditConfig
	PolicyCache   PolicyCacheConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds capability token and dashboard session settings
type AuthConfig struct {
	CapabilitySecret   string
	CapabilityIssuer   string
	CapabilityAudience string
	CapabilityTTL      time.Duration
	SessionSecret      string
	SessionIssuer      string
	SessionAudience    string
	ClockLeeway        time.Duration
}

// RateLimitConfig selects and configures the counter backend
type RateLimitConfig struct {
	Backend   string // memory or redis
	RedisURL  string
	KeyPrefix string
	Timeout   time.Duration
}

// OAuthClientConfig holds the refresh client of one provider
type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// OAuthConfig holds token sealing and refresh configuration
type OAuthConfig struct {
	TokenKey    string // base64, 32 bytes
	RefreshSkew time.Duration
	Timeout     time.Duration
	Clients     map[policy.Provider]OAuthClientConfig
}

// ConnectorConfig holds the endpoint of one provider connector
type ConnectorConfig struct {
	Endpoint string
}

// ConnectorsConfig holds provider connector endpoints
type ConnectorsConfig struct {
	Timeout          time.Duration
	MaxResponseBytes int64
	Endpoints        map[policy.Provider]ConnectorConfig
}

// AuditConfig holds the async audit writer settings
type AuditConfig struct {
	BufferSize   int
	Workers      int
	WriteTimeout time.Duration
}

// PolicyCacheConfig holds the revision cache settings
type PolicyCacheConfig struct {
	MaxSize         int
	TTL             time.Duration
	CleanupInterval time.Duration
}

// CORSConfig holds allowed dashboard origins
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New loads the configuration from the environment. A .env file in the
// working directory is read first when present; real variables win.
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	e := &env{}
	cfg := &Config{
		Environment: e.str("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            e.str("SERVER_HOST", "0.0.0.0"),
			Port:            e.port(),
			ReadTimeout:     e.duration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    e.duration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: e.duration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    int64(e.int("SERVER_MAX_BODY_BYTES", 1<<20)),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  e.bool("TLS_ENABLED", false),
				CertFile: e.str("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  e.str("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database:      loadDatabaseConfig(e),
		AuditDatabase: loadAuditDatabaseConfig(e),
		Auth: AuthConfig{
			CapabilitySecret:   e.str("CAPABILITY_TOKEN_SECRET", ""),
			CapabilityIssuer:   e.str("CAPABILITY_TOKEN_ISSUER", "dashboard"),
			CapabilityAudience: e.str("CAPABILITY_TOKEN_AUDIENCE", "integration-gateway"),
			CapabilityTTL:      e.duration("CAPABILITY_TOKEN_TTL", 15*time.Minute),
			SessionSecret:      e.str("SESSION_SECRET", ""),
			SessionIssuer:      e.str("SESSION_ISSUER", "dashboard"),
			SessionAudience:    e.str("SESSION_AUDIENCE", "dashboard-api"),
			ClockLeeway:        e.duration("AUTH_CLOCK_LEEWAY", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Backend:   strings.ToLower(e.str("RATE_LIMIT_BACKEND", RateLimitBackendMemory)),
			RedisURL:  e.str("REDIS_URL", ""),
			KeyPrefix: e.str("RATE_LIMIT_KEY_PREFIX", "gw:rl"),
			Timeout:   e.duration("RATE_LIMIT_TIMEOUT", 250*time.Millisecond),
		},
		OAuth: OAuthConfig{
			TokenKey:    e.str("TOKEN_ENCRYPTION_KEY", ""),
			RefreshSkew: e.duration("OAUTH_REFRESH_SKEW", 5*time.Minute),
			Timeout:     e.duration("OAUTH_TIMEOUT", 10*time.Second),
			Clients:     loadOAuthClients(e),
		},
		Connectors: ConnectorsConfig{
			Timeout:          e.duration("CONNECTOR_TIMEOUT", 30*time.Second),
			MaxResponseBytes: int64(e.int("CONNECTOR_MAX_RESPONSE_BYTES", 10<<20)),
			Endpoints:        loadConnectorEndpoints(e),
		},
		Audit: AuditConfig{
			BufferSize:   e.int("AUDIT_BUFFER_SIZE", 10000),
			Workers:      e.int("AUDIT_WORKERS", 5),
			WriteTimeout: e.duration("AUDIT_WRITE_TIMEOUT", 5*time.Second),
		},
		PolicyCache: PolicyCacheConfig{
			MaxSize:         e.int("POLICY_CACHE_SIZE", 10000),
			TTL:             e.duration("POLICY_CACHE_TTL", 10*time.Minute),
			CleanupInterval: e.duration("POLICY_CACHE_CLEANUP_INTERVAL", time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},
		Observability: ObservabilityConfig{
			LogLevel:       e.str("LOG_LEVEL", "info"),
			LogFormat:      e.str("LOG_FORMAT", "json"),
			MetricsEnabled: e.bool("METRICS_ENABLED", true),
		},
	}

	if err := e.err(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Token secrets
	if len(c.Auth.CapabilitySecret) < 32 {
		return fmt.Errorf("CAPABILITY_TOKEN_SECRET must be at least 32 bytes")
	}
	if len(c.Auth.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	if c.Auth.CapabilitySecret == c.Auth.SessionSecret {
		return fmt.Errorf("capability and session secrets must differ")
	}
	if c.Auth.CapabilityAudience == "" {
		return fmt.Errorf("capability token audience is required")
	}

	// Rate limiter
	switch c.RateLimit.Backend {
	case RateLimitBackendMemory:
		if c.IsProduction() {
			return fmt.Errorf("rate limit backend %q is process-local; use redis in production", c.RateLimit.Backend)
		}
	case RateLimitBackendRedis:
		if c.RateLimit.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Timeout <= 0 {
		return fmt.Errorf("rate limit timeout must be positive")
	}

	// Token sealing key
	if _, err := c.OAuth.Key(); err != nil {
		return err
	}

	// Audit writer
	if c.Audit.BufferSize <= 0 || c.Audit.Workers <= 0 {
		return fmt.Errorf("audit buffer size and worker count must be positive")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Key decodes the token sealing key
func (c *OAuthConfig) Key() ([]byte, error) {
	if c.TokenKey == "" {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(c.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig(e *env) DatabaseConfig {
	dbURL := e.str("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     e.int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     e.int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  e.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            e.str("DB_HOST", "localhost"),
		Port:            e.int("DB_PORT", 5432),
		User:            e.str("DB_USER", "dev"),
		Password:        e.str("DB_PASSWORD", ""),
		Database:        e.str("DB_NAME", "integrations"),
		SSLMode:         e.str("DB_SSLMODE", "disable"),
		MaxOpenConns:    e.int("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    e.int("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: e.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadAuditDatabaseConfig loads audit DB config from DATABASE_URL_AUDIT.
// Returns nil when not set (audit uses main DB).
func loadAuditDatabaseConfig(e *env) *DatabaseConfig {
	dbURL := e.str("DATABASE_URL_AUDIT", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     e.int("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     e.int("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  e.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadOAuthClients reads OAUTH_<PROVIDER>_CLIENT_ID, _CLIENT_SECRET and
// _TOKEN_URL. Providers without a client id are skipped.
func loadOAuthClients(e *env) map[policy.Provider]OAuthClientConfig {
	clients := make(map[policy.Provider]OAuthClientConfig)
	for _, p := range policy.AllProviders() {
		if !p.RequiresOAuth() {
			continue
		}
		prefix := "OAUTH_" + envName(p)
		id := e.str(prefix+"_CLIENT_ID", "")
		if id == "" {
			continue
		}
		clients[p] = OAuthClientConfig{
			ClientID:     id,
			ClientSecret: e.str(prefix+"_CLIENT_SECRET", ""),
			TokenURL:     e.str(prefix+"_TOKEN_URL", ""),
		}
	}
	return clients
}

// loadConnectorEndpoints reads CONNECTOR_<PROVIDER>_URL
func loadConnectorEndpoints(e *env) map[policy.Provider]ConnectorConfig {
	endpoints := make(map[policy.Provider]ConnectorConfig)
	for _, p := range policy.AllProviders() {
		if endpoint := e.str("CONNECTOR_"+envName(p)+"_URL", ""); endpoint != "" {
			endpoints[p] = ConnectorConfig{Endpoint: endpoint}
		}
	}
	return endpoints
}

func envName(p policy.Provider) string {
	return strings.ToUpper(string(p))
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
