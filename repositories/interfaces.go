package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/integration-gateway/internal/policy"
	"github.com/upb/integration-gateway/models"
)

var (
	// ErrNotFound is wrapped by repositories when a row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is wrapped by repositories when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate record")

	// ErrConflict is wrapped when the database aborted a transaction that
	// raced another one (serialization failure or deadlock). The whole
	// transaction may be retried.
	ErrConflict = errors.New("transaction conflict")
)

// TransactionManager opens transactions whose context routes repository
// calls through the open transaction.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction runs fn once, committing on nil and rolling back otherwise
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

type Transaction interface {
	Commit() error
	Rollback() error

	// Context carries the transaction for repositories
	Context() context.Context
}

// TerminalIntegrationRepository handles terminal integration data operations
type TerminalIntegrationRepository interface {
	// Create inserts a new integration. A second active integration for the
	// same terminal and provider fails with ErrDuplicate.
	Create(ctx context.Context, ti *models.TerminalIntegration) error

	// GetByID retrieves an integration by ID, detached or not
	GetByID(ctx context.Context, id uuid.UUID) (*models.TerminalIntegration, error)

	// GetActive retrieves the non-deleted integration for a terminal and provider
	GetActive(ctx context.Context, terminalID string, provider policy.Provider) (*models.TerminalIntegration, error)

	// GetLatest retrieves the most recently created integration for a
	// terminal and provider, including detached ones
	GetLatest(ctx context.Context, terminalID string, provider policy.Provider) (*models.TerminalIntegration, error)

	// ListActive retrieves all non-deleted integrations for a terminal
	ListActive(ctx context.Context, terminalID string) ([]*models.TerminalIntegration, error)

	// SetActivePolicy repoints the integration at a revision
	SetActivePolicy(ctx context.Context, id, policyID uuid.UUID) error

	// SoftDelete marks an active integration as detached
	SoftDelete(ctx context.Context, id uuid.UUID, deletedBy string) error
}

// IntegrationPolicyRepository handles policy revision data operations.
// Revisions are never updated or deleted.
type IntegrationPolicyRepository interface {
	// Create inserts a revision. A taken version fails with ErrDuplicate.
	Create(ctx context.Context, p *models.IntegrationPolicy) error

	// GetByID retrieves a revision by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.IntegrationPolicy, error)

	// MaxVersion returns the highest version for an integration, or 0
	MaxVersion(ctx context.Context, integrationID uuid.UUID) (int, error)

	// ListByIntegration retrieves all revisions, newest first
	ListByIntegration(ctx context.Context, integrationID uuid.UUID) ([]*models.IntegrationPolicy, error)
}

// ConfirmationRepository handles high-risk confirmation data operations
type ConfirmationRepository interface {
	// Create inserts a confirmation; an existing one for the same capability is kept
	Create(ctx context.Context, c *models.HighRiskConfirmation) error

	// ListByIntegration retrieves all confirmations for an integration
	ListByIntegration(ctx context.Context, integrationID uuid.UUID) ([]*models.HighRiskConfirmation, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// ListByTerminalProvider retrieves entries for a terminal and provider,
	// newest first, with pagination
	ListByTerminalProvider(ctx context.Context, terminalID string, provider policy.Provider, limit, offset int) ([]*models.AuditLog, error)
}

// AccessRepository reads the terminal and membership data owned by the dashboard
type AccessRepository interface {
	// GetTerminal retrieves a terminal by ID
	GetTerminal(ctx context.Context, terminalID string) (*models.Terminal, error)

	// GetMemberRole returns the user's role in a dashboard
	GetMemberRole(ctx context.Context, dashboardID, userID string) (models.DashboardRole, error)
}

// UserIntegrationRepository handles stored OAuth connections
type UserIntegrationRepository interface {
	// GetByID retrieves a user integration by ID
	GetByID(ctx context.Context, id string) (*models.UserIntegration, error)

	// UpdateTokens persists refreshed sealed tokens and expiry
	UpdateTokens(ctx context.Context, ui *models.UserIntegration) error

	// MarkDisconnected flags the connection as unusable
	MarkDisconnected(ctx context.Context, id string) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Integrations     TerminalIntegrationRepository
	Policies         IntegrationPolicyRepository
	Confirmations    ConfirmationRepository
	AuditLogs        AuditRepository
	Access           AccessRepository
	UserIntegrations UserIntegrationRepository
}
