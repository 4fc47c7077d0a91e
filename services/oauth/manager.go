package oauth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/upb/integration-gateway/internal/observability"
	"github.com/upb/integration-gateway/internal/policy"
	"github.com/upb/integration-gateway/models"
	"github.com/upb/integration-gateway/repositories"
	"github.com/upb/integration-gateway/services"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// DefaultRefreshSkew is how long before expiry a token is refreshed
const DefaultRefreshSkew = 5 * time.Minute

// Refresh outcomes reported to metrics
const (
	outcomeRefreshed    = "refreshed"
	outcomeInvalidGrant = "invalid_grant"
	outcomeError        = "error"
)

// Config holds configuration for the Manager
type Config struct {
	Providers   map[policy.Provider]*oauth2.Config
	RefreshSkew time.Duration
	HTTPClient  *http.Client
}

// Manager hands out usable access tokens for stored user integrations
type Manager struct {
	repo       repositories.UserIntegrationRepository
	keyring    *Keyring
	providers  map[policy.Provider]*oauth2.Config
	skew       time.Duration
	httpClient *http.Client
	metrics    observability.Metrics
	logger     *zap.Logger
	now        func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager creates a new Manager
func NewManager(repo repositories.UserIntegrationRepository, keyring *Keyring, config Config, metrics observability.Metrics, logger *zap.Logger) *Manager {
	if config.RefreshSkew <= 0 {
		config.RefreshSkew = DefaultRefreshSkew
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	providers := config.Providers
	if providers == nil {
		providers = map[policy.Provider]*oauth2.Config{}
	}

	return &Manager{
		repo:       repo,
		keyring:    keyring,
		providers:  providers,
		skew:       config.RefreshSkew,
		httpClient: config.HTTPClient,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
}

// AccessToken returns a plaintext access token for the user integration,
// refreshing it first when it expires within the refresh skew
func (m *Manager) AccessToken(ctx context.Context, userIntegrationID string, provider policy.Provider) (string, error) {
	lock := m.lockFor(userIntegrationID)
	lock.Lock()
	defer lock.Unlock()

	ui, err := m.repo.GetByID(ctx, userIntegrationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", services.ErrUserIntegrationNotFound
		}
		return "", services.ErrDatabaseError.Wrap(err)
	}
	if ui.Provider != provider {
		return "", services.ErrUnauthorized.Wrap(nil).
			WithDetail("reason", "user integration belongs to a different provider")
	}
	if !ui.IsConnected() {
		return "", services.ErrIntegrationDisconnected
	}

	access, err := m.keyring.Open(ui.AccessToken)
	if err != nil {
		return "", services.ErrInternal.Wrap(err)
	}

	if !m.needsRefresh(ui) {
		return string(access), nil
	}

	cfg, ok := m.providers[provider]
	if !ok {
		if ui.ExpiresAt.After(m.now()) {
			return string(access), nil
		}
		return "", services.ErrTokenExpired.Wrap(nil).WithDetail("provider", provider)
	}

	return m.refresh(ctx, ui, cfg)
}

// needsRefresh reports whether the token carries a refresh token and
// expires within the skew. Tokens without either are used as stored.
func (m *Manager) needsRefresh(ui *models.UserIntegration) bool {
	if len(ui.RefreshToken) == 0 || ui.ExpiresAt == nil {
		return false
	}
	return !m.now().Add(m.skew).Before(*ui.ExpiresAt)
}

func (m *Manager) refresh(ctx context.Context, ui *models.UserIntegration, cfg *oauth2.Config) (string, error) {
	refreshToken, err := m.keyring.Open(ui.RefreshToken)
	if err != nil {
		return "", services.ErrInternal.Wrap(err)
	}

	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}

	// An empty access token is never valid, so the source always refreshes.
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: string(refreshToken)}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			m.metrics.RecordTokenRefresh(string(ui.Provider), outcomeInvalidGrant)
			if derr := m.repo.MarkDisconnected(ctx, ui.ID); derr != nil {
				m.logger.Error("failed to mark user integration disconnected",
					zap.String("user_integration_id", ui.ID),
					zap.Error(derr))
			}
			m.logger.Warn("refresh token rejected, user integration disconnected",
				zap.String("user_integration_id", ui.ID),
				zap.String("provider", string(ui.Provider)))
			return "", services.ErrIntegrationDisconnected
		}

		m.metrics.RecordTokenRefresh(string(ui.Provider), outcomeError)
		m.logger.Error("token refresh failed",
			zap.String("user_integration_id", ui.ID),
			zap.String("provider", string(ui.Provider)),
			zap.Error(err))
		return "", services.ErrProviderUnavailable.Wrap(err)
	}

	m.metrics.RecordTokenRefresh(string(ui.Provider), outcomeRefreshed)

	if err := m.persist(ctx, ui, tok, refreshToken); err != nil {
		m.logger.Error("failed to persist refreshed token",
			zap.String("user_integration_id", ui.ID),
			zap.Error(err))
	}
	return tok.AccessToken, nil
}

func (m *Manager) persist(ctx context.Context, ui *models.UserIntegration, tok *oauth2.Token, oldRefresh []byte) error {
	access, err := m.keyring.Seal([]byte(tok.AccessToken))
	if err != nil {
		return err
	}

	refreshPlain := oldRefresh
	if tok.RefreshToken != "" {
		refreshPlain = []byte(tok.RefreshToken)
	}
	refresh, err := m.keyring.Seal(refreshPlain)
	if err != nil {
		return err
	}

	ui.AccessToken = access
	ui.RefreshToken = refresh
	if tok.TokenType != "" {
		ui.TokenType = tok.TokenType
	}
	if tok.Expiry.IsZero() {
		ui.ExpiresAt = nil
	} else {
		expiry := tok.Expiry.UTC()
		ui.ExpiresAt = &expiry
	}
	ui.UpdatedAt = m.now().UTC()

	return m.repo.UpdateTokens(ctx, ui)
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}
