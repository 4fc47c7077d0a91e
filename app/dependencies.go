package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/integration-gateway/auth"
	"github.com/upb/integration-gateway/auth/captoken"
	"github.com/upb/integration-gateway/config"
	"github.com/upb/integration-gateway/internal/observability"
	"github.com/upb/integration-gateway/middleware"
	"github.com/upb/integration-gateway/repositories"
	"github.com/upb/integration-gateway/repositories/postgres"
	"github.com/upb/integration-gateway/services/audit"
	"github.com/upb/integration-gateway/services/gateway"
	"github.com/upb/integration-gateway/services/oauth"
	"github.com/upb/integration-gateway/services/policystore"
	"github.com/upb/integration-gateway/services/providers"
	"github.com/upb/integration-gateway/services/ratelimit"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Metrics is never nil. Prometheus is nil when metrics are disabled.
	Metrics    observability.Metrics
	Prometheus *observability.PrometheusMetrics

	// Persistence
	RepoFactory *postgres.RepositoryFactory
	Repos       *repositories.Repositories
	TxManager   repositories.TransactionManager

	// Services
	PolicyCache *policystore.RevisionCache
	Store       *policystore.Store
	Audit       *audit.AuditService
	RateLimiter *ratelimit.Service
	Keyring     *oauth.Keyring
	Tokens      *oauth.Manager
	Connectors  *providers.Registry
	CapTokens   *captoken.Service
	Gateway     *gateway.Service

	// Auth
	Sessions       *auth.SessionValidator
	AuthMiddleware *middleware.AuthMiddleware

	redis        *redis.Client
	actorCounter *ratelimit.ActorCounter
	stopCh       chan struct{}
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		stopCh: make(chan struct{}),
	}

	deps.initMetrics(cfg)

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()
	deps.initPolicyStore(cfg)

	if err := deps.initAudit(cfg); err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize audit: %w", err)
	}

	if err := deps.initRateLimiter(ctx, cfg); err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	if err := deps.initOAuth(cfg); err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize oauth: %w", err)
	}

	if err := deps.initConnectors(cfg); err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize connectors: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.Gateway = gateway.NewService(
		deps.CapTokens,
		deps.Store,
		deps.RateLimiter,
		deps.Tokens,
		deps.Connectors,
		deps.Audit,
		deps.Metrics,
		logger,
	)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NopMetrics{}
		return
	}
	d.Prometheus = observability.NewPrometheusMetrics()
	d.Metrics = d.Prometheus
}

// initDatabase opens the database and creates the schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	if d.Prometheus != nil {
		if err := d.Prometheus.RegisterDBStats(d.DB.DB, cfg.Database.Database); err != nil {
			d.Logger.Warn("database pool metrics unavailable", zap.Error(err))
		}
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

func (d *Dependencies) initRepositories() {
	d.Repos = d.RepoFactory.NewRepositories()
	d.TxManager = d.RepoFactory.GetTransactionManager()
	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initPolicyStore(cfg *config.Config) {
	d.PolicyCache = policystore.NewRevisionCache(cfg.PolicyCache.MaxSize, cfg.PolicyCache.TTL)
	go d.PolicyCache.StartCleanupWorker(cfg.PolicyCache.CleanupInterval, d.stopCh)

	d.Store = policystore.NewStore(d.TxManager, d.Repos, d.PolicyCache, d.Logger)
}

func (d *Dependencies) initAudit(cfg *config.Config) error {
	d.Audit = audit.NewAuditService(d.Repos.AuditLogs, d.Metrics, d.Logger, audit.Config{
		BufferSize:   cfg.Audit.BufferSize,
		WorkerCount:  cfg.Audit.Workers,
		WriteTimeout: cfg.Audit.WriteTimeout,
	})
	return d.Audit.Start()
}

func (d *Dependencies) initRateLimiter(ctx context.Context, cfg *config.Config) error {
	var counter ratelimit.Counter

	switch cfg.RateLimit.Backend {
	case config.RateLimitBackendRedis:
		opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		d.redis = redis.NewClient(opts)
		if err := d.redis.Ping(ctx).Err(); err != nil {
			// Requests are denied while Redis is down; startup proceeds.
			d.Logger.Warn("redis ping failed", zap.Error(err))
		}
		counter = ratelimit.NewRedisCounter(d.redis, cfg.RateLimit.KeyPrefix+":")

	default:
		d.actorCounter = ratelimit.NewActorCounter()
		counter = d.actorCounter
	}

	d.RateLimiter = ratelimit.NewService(counter, cfg.RateLimit.Backend, cfg.RateLimit.Timeout, d.Metrics, d.Logger)
	d.Logger.Info("rate limiter initialized", zap.String("backend", cfg.RateLimit.Backend))
	return nil
}

func (d *Dependencies) initOAuth(cfg *config.Config) error {
	clients, err := oauthConfigs(cfg.OAuth.Clients)
	if err != nil {
		return err
	}

	d.Keyring = oauth.NewKeyring(oauth.Base64Key(cfg.OAuth.TokenKey))
	d.Tokens = oauth.NewManager(d.Repos.UserIntegrations, d.Keyring, oauth.Config{
		Providers:   clients,
		RefreshSkew: cfg.OAuth.RefreshSkew,
		HTTPClient:  &http.Client{Timeout: cfg.OAuth.Timeout},
	}, d.Metrics, d.Logger)

	d.Logger.Info("oauth token manager initialized", zap.Int("clients", len(clients)))
	return nil
}

func (d *Dependencies) initConnectors(cfg *config.Config) error {
	registry, err := providers.BuildRegistry(connectorConfigs(cfg.Connectors), providers.BuildHTTPConnector)
	if err != nil {
		return err
	}
	if registry.Count() == 0 {
		d.Logger.Warn("no provider connectors configured")
	}
	d.Connectors = registry
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	capTokens, err := captoken.New(captoken.Config{
		Secret:   []byte(cfg.Auth.CapabilitySecret),
		Issuer:   cfg.Auth.CapabilityIssuer,
		Audience: cfg.Auth.CapabilityAudience,
		TTL:      cfg.Auth.CapabilityTTL,
		Leeway:   cfg.Auth.ClockLeeway,
	})
	if err != nil {
		return err
	}
	d.CapTokens = capTokens

	sessions, err := auth.NewSessionValidator(auth.SessionConfig{
		Secret:   []byte(cfg.Auth.SessionSecret),
		Issuer:   cfg.Auth.SessionIssuer,
		Audience: cfg.Auth.SessionAudience,
		Leeway:   cfg.Auth.ClockLeeway,
	})
	if err != nil {
		return err
	}
	d.Sessions = sessions
	d.AuthMiddleware = middleware.NewAuthMiddleware(sessions, d.Logger)
	return nil
}

// Redis returns the rate limit Redis client, or nil for the memory backend
func (d *Dependencies) Redis() *redis.Client {
	return d.redis
}

// Close gracefully shuts down all dependencies. Pending audit entries are
// flushed before the database closes.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}

	if d.Audit != nil {
		timeout := 10 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.actorCounter != nil {
		d.actorCounter.Close()
	}

	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
