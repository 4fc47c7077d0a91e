package policystore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/integration-gateway/internal/enforcement"
	"github.com/upb/integration-gateway/internal/policy"
	"github.com/upb/integration-gateway/models"
	"github.com/upb/integration-gateway/repositories"
	"github.com/upb/integration-gateway/services"
	"go.uber.org/zap"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// AttachInput describes a new terminal integration
type AttachInput struct {
	TerminalID        string
	Provider          policy.Provider
	UserIntegrationID *string
	Policy            policy.Content // nil selects the provider default
	Confirmations     []policy.Capability
	Actor             string
}

// ReviseInput describes a new policy revision
type ReviseInput struct {
	TerminalID    string
	Provider      policy.Provider
	Policy        policy.Content
	Confirmations []policy.Capability
	Actor         string
}

// Attachment is an integration together with its active revision
type Attachment struct {
	Integration *models.TerminalIntegration `json:"integration"`
	Policy      *models.IntegrationPolicy   `json:"policy,omitempty"`
}

// Store manages terminal integrations and their append-only policy history
type Store struct {
	txMgr            repositories.TransactionManager
	integrations     repositories.TerminalIntegrationRepository
	policies         repositories.IntegrationPolicyRepository
	confirmations    repositories.ConfirmationRepository
	auditLogs        repositories.AuditRepository
	access           repositories.AccessRepository
	userIntegrations repositories.UserIntegrationRepository
	cache            *RevisionCache
	logger           *zap.Logger
}

// NewStore creates a new Store
func NewStore(txMgr repositories.TransactionManager, repos *repositories.Repositories, cache *RevisionCache, logger *zap.Logger) *Store {
	return &Store{
		txMgr:            txMgr,
		integrations:     repos.Integrations,
		policies:         repos.Policies,
		confirmations:    repos.Confirmations,
		auditLogs:        repos.AuditLogs,
		access:           repos.Access,
		userIntegrations: repos.UserIntegrations,
		cache:            cache,
		logger:           logger,
	}
}

// Authorize checks that userID holds at least min on the terminal's
// dashboard and returns the terminal.
func (s *Store) Authorize(ctx context.Context, terminalID, userID string, min models.DashboardRole) (*models.Terminal, error) {
	terminal, err := s.access.GetTerminal(ctx, terminalID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrTerminalNotFound
		}
		return nil, services.ErrDatabaseError.Wrap(err)
	}

	role, err := s.access.GetMemberRole(ctx, terminal.DashboardID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrForbidden
		}
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	if !role.AtLeast(min) {
		return nil, services.ErrInsufficientRole.Wrap(nil).
			WithDetail("role", role).
			WithDetail("required", min)
	}
	return terminal, nil
}

// Attach binds a terminal to a provider and writes revision 1
func (s *Store) Attach(ctx context.Context, in AttachInput) (*Attachment, error) {
	if _, err := policy.ParseProvider(string(in.Provider)); err != nil {
		return nil, services.ErrInvalidProvider.Wrap(err)
	}
	if in.Provider.RequiresOAuth() && (in.UserIntegrationID == nil || *in.UserIntegrationID == "") {
		return nil, services.ErrMissingOAuthLink
	}
	if !in.Provider.RequiresOAuth() {
		in.UserIntegrationID = nil
	}

	content := in.Policy
	if content == nil {
		var err error
		if content, err = policy.Default(in.Provider); err != nil {
			return nil, services.ErrInvalidPolicy.Wrap(err)
		}
	}
	if err := policy.Validate(in.Provider, content); err != nil {
		return nil, services.ErrInvalidPolicy.Wrap(err)
	}
	if err := validateConfirmations(in.Provider, in.Confirmations); err != nil {
		return nil, err
	}

	terminal, err := s.access.GetTerminal(ctx, in.TerminalID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrTerminalNotFound
		}
		return nil, services.ErrDatabaseError.Wrap(err)
	}

	owner, err := s.linkOwner(ctx, in)
	if err != nil {
		return nil, err
	}

	ti := models.NewTerminalIntegration(terminal, owner, in.Provider, in.UserIntegrationID, in.Actor)
	rev, err := models.NewIntegrationPolicy(ti, 1, content, in.Actor)
	if err != nil {
		return nil, services.ErrInvalidPolicy.Wrap(err)
	}

	err = services.WithTransaction(ctx, s.txMgr, func(ctx context.Context, _ repositories.Transaction) error {
		if _, err := s.integrations.GetActive(ctx, in.TerminalID, in.Provider); err == nil {
			return services.ErrAlreadyAttached
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return services.ErrDatabaseError.Wrap(err)
		}

		if err := s.integrations.Create(ctx, ti); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return services.ErrAlreadyAttached
			}
			return services.ErrDatabaseError.Wrap(err)
		}
		if err := s.policies.Create(ctx, rev); err != nil {
			return services.ErrDatabaseError.Wrap(err)
		}
		if err := s.integrations.SetActivePolicy(ctx, ti.ID, rev.ID); err != nil {
			return services.ErrDatabaseError.Wrap(err)
		}
		return s.confirm(ctx, ti.ID, in.Confirmations, in.Actor)
	})
	if err != nil {
		return nil, err
	}

	ti.ActivePolicyID = &rev.ID
	s.cache.Set(rev)

	s.logger.Info("integration attached",
		zap.String("terminal_integration_id", ti.ID.String()),
		zap.String("terminal_id", ti.TerminalID),
		zap.String("provider", string(ti.Provider)),
		zap.String("security_level", string(rev.SecurityLevel)),
		zap.String("actor", in.Actor),
	)
	return &Attachment{Integration: ti, Policy: rev}, nil
}

// linkOwner resolves the user who owns the OAuth link. Browser
// integrations are owned by the attaching user.
func (s *Store) linkOwner(ctx context.Context, in AttachInput) (string, error) {
	if in.UserIntegrationID == nil {
		return in.Actor, nil
	}

	ui, err := s.userIntegrations.GetByID(ctx, *in.UserIntegrationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", services.ErrUserIntegrationNotFound
		}
		return "", services.ErrDatabaseError.Wrap(err)
	}
	if ui.Provider != in.Provider {
		return "", services.ErrInvalidInput.Wrap(nil).
			WithDetail("reason", "user integration belongs to a different provider")
	}
	if ui.UserID != in.Actor {
		return "", services.ErrForbidden.Wrap(nil).
			WithDetail("reason", "user integration belongs to another user")
	}
	if !ui.IsConnected() {
		return "", services.ErrIntegrationDisconnected
	}
	return ui.UserID, nil
}

// Revise appends a revision and repoints the integration at it
func (s *Store) Revise(ctx context.Context, in ReviseInput) (*models.IntegrationPolicy, error) {
	if in.Policy == nil {
		return nil, services.ErrInvalidPolicy
	}
	if err := policy.Validate(in.Provider, in.Policy); err != nil {
		return nil, services.ErrInvalidPolicy.Wrap(err)
	}
	if err := validateConfirmations(in.Provider, in.Confirmations); err != nil {
		return nil, err
	}

	rev, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, _ repositories.Transaction) (*models.IntegrationPolicy, error) {
		ti, err := s.activeIntegration(ctx, in.TerminalID, in.Provider)
		if err != nil {
			return nil, err
		}

		current, err := s.policies.MaxVersion(ctx, ti.ID)
		if err != nil {
			return nil, services.ErrDatabaseError.Wrap(err)
		}

		rev, err := models.NewIntegrationPolicy(ti, current+1, in.Policy, in.Actor)
		if err != nil {
			return nil, services.ErrInvalidPolicy.Wrap(err)
		}
		if err := s.policies.Create(ctx, rev); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return nil, services.ErrConcurrentUpdate
			}
			return nil, services.ErrDatabaseError.Wrap(err)
		}
		if err := s.integrations.SetActivePolicy(ctx, ti.ID, rev.ID); err != nil {
			return nil, services.ErrDatabaseError.Wrap(err)
		}
		if err := s.confirm(ctx, ti.ID, in.Confirmations, in.Actor); err != nil {
			return nil, err
		}
		return rev, nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(rev)
	s.logger.Info("policy revised",
		zap.String("terminal_integration_id", rev.TerminalIntegrationID.String()),
		zap.Int("version", rev.Version),
		zap.String("security_level", string(rev.SecurityLevel)),
		zap.String("actor", in.Actor),
	)
	return rev, nil
}

// Detach soft-deletes the active integration. Revisions and audit
// history are kept.
func (s *Store) Detach(ctx context.Context, terminalID string, provider policy.Provider, actor string) error {
	ti, err := s.activeIntegration(ctx, terminalID, provider)
	if err != nil {
		return err
	}

	if err := s.integrations.SoftDelete(ctx, ti.ID, actor); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrNotAttached
		}
		return services.ErrDatabaseError.Wrap(err)
	}

	s.cache.InvalidateIntegration(ti.ID)
	s.logger.Info("integration detached",
		zap.String("terminal_integration_id", ti.ID.String()),
		zap.String("actor", actor),
	)
	return nil
}

// History returns every revision of the latest integration for the
// terminal and provider, newest first. Detached integrations keep theirs.
func (s *Store) History(ctx context.Context, terminalID string, provider policy.Provider) ([]*models.IntegrationPolicy, error) {
	ti, err := s.integrations.GetLatest(ctx, terminalID, provider)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrNotAttached
		}
		return nil, services.ErrDatabaseError.Wrap(err)
	}

	revisions, err := s.policies.ListByIntegration(ctx, ti.ID)
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return revisions, nil
}

// ActiveIntegration returns the non-deleted integration for the terminal and provider
func (s *Store) ActiveIntegration(ctx context.Context, terminalID string, provider policy.Provider) (*models.TerminalIntegration, error) {
	return s.activeIntegration(ctx, terminalID, provider)
}

func (s *Store) activeIntegration(ctx context.Context, terminalID string, provider policy.Provider) (*models.TerminalIntegration, error) {
	ti, err := s.integrations.GetActive(ctx, terminalID, provider)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrNotAttached
		}
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return ti, nil
}

// ActivePolicy loads the integration's active revision. An unset pointer
// returns ErrPolicyNotFound; a pointer that does not resolve to one of the
// integration's revisions returns ErrPolicyInconsistent.
func (s *Store) ActivePolicy(ctx context.Context, ti *models.TerminalIntegration) (*models.IntegrationPolicy, error) {
	if ti.ActivePolicyID == nil {
		return nil, services.ErrPolicyNotFound
	}
	id := *ti.ActivePolicyID

	if rev := s.cache.Get(id); rev != nil {
		return rev, nil
	}

	rev, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) || errors.Is(err, policy.ErrInvalidPolicy) {
			return nil, services.ErrPolicyInconsistent.Wrap(err).WithDetail("policy_id", id.String())
		}
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	if rev.TerminalIntegrationID != ti.ID || rev.Provider != ti.Provider {
		return nil, services.ErrPolicyInconsistent.Wrap(nil).WithDetail("policy_id", id.String())
	}

	s.cache.Set(rev)
	return rev, nil
}

// Confirmations returns the confirmed high-risk capabilities of an integration
func (s *Store) Confirmations(ctx context.Context, integrationID uuid.UUID) (enforcement.ConfirmationSet, error) {
	rows, err := s.confirmations.ListByIntegration(ctx, integrationID)
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}

	set := make(enforcement.ConfirmationSet, len(rows))
	for _, c := range rows {
		set[c.Capability] = true
	}
	return set, nil
}

// ListIntegrations returns the terminal's active integrations with their
// active revisions.
func (s *Store) ListIntegrations(ctx context.Context, terminalID string) ([]*Attachment, error) {
	integrations, err := s.integrations.ListActive(ctx, terminalID)
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}

	out := make([]*Attachment, 0, len(integrations))
	for _, ti := range integrations {
		rev, err := s.ActivePolicy(ctx, ti)
		if err != nil {
			s.logger.Warn("integration has no resolvable policy",
				zap.String("terminal_integration_id", ti.ID.String()),
				zap.Error(err),
			)
		}
		out = append(out, &Attachment{Integration: ti, Policy: rev})
	}
	return out, nil
}

// AuditLog returns decisions for the terminal and provider, newest first
func (s *Store) AuditLog(ctx context.Context, terminalID string, provider policy.Provider, limit, offset int) ([]*models.AuditLog, error) {
	if limit <= 0 {
		limit = defaultAuditPageSize
	}
	if limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.auditLogs.ListByTerminalProvider(ctx, terminalID, provider, limit, offset)
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return logs, nil
}

func (s *Store) confirm(ctx context.Context, integrationID uuid.UUID, capabilities []policy.Capability, actor string) error {
	for _, c := range capabilities {
		if err := s.confirmations.Create(ctx, models.NewHighRiskConfirmation(integrationID, c, actor)); err != nil {
			return services.ErrDatabaseError.Wrap(err)
		}
	}
	return nil
}

func validateConfirmations(provider policy.Provider, capabilities []policy.Capability) error {
	for _, c := range capabilities {
		if !policy.IsHighRisk(provider, c) {
			return services.ErrInvalidConfirmation.Wrap(nil).WithDetail("capability", c)
		}
	}
	return nil
}
