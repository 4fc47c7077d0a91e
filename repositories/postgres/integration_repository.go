package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/integration-gateway/internal/policy"
	"github.com/upb/integration-gateway/models"
	"github.com/upb/integration-gateway/repositories"
	"go.uber.org/zap"
)

const integrationColumns = `id, terminal_id, dashboard_id, user_id, provider, user_integration_id,
		active_policy_id, created_by, created_at, updated_at, deleted_at, deleted_by`

// TerminalIntegrationRepository implements the repositories.TerminalIntegrationRepository interface
type TerminalIntegrationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTerminalIntegrationRepository creates a new terminal integration repository
func NewTerminalIntegrationRepository(db *DB, logger *zap.Logger) repositories.TerminalIntegrationRepository {
	return &TerminalIntegrationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new terminal integration
func (r *TerminalIntegrationRepository) Create(ctx context.Context, ti *models.TerminalIntegration) error {
	query := `
		INSERT INTO terminal_integrations (` + integrationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		ti.ID,
		ti.TerminalID,
		ti.DashboardID,
		ti.UserID,
		ti.Provider,
		ti.UserIntegrationID,
		ti.ActivePolicyID,
		ti.CreatedBy,
		ti.CreatedAt,
		ti.UpdatedAt,
		ti.DeletedAt,
		ti.DeletedBy,
	)
	if err != nil {
		return wrapWriteError("create terminal integration", err)
	}

	r.logger.Debug("terminal integration created",
		zap.String("id", ti.ID.String()),
		zap.String("terminal_id", ti.TerminalID),
		zap.String("provider", string(ti.Provider)),
	)
	return nil
}

// GetByID retrieves an integration by ID
func (r *TerminalIntegrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TerminalIntegration, error) {
	query := `SELECT ` + integrationColumns + ` FROM terminal_integrations WHERE id = $1`
	return r.queryOne(ctx, id, query, id)
}

// GetActive retrieves the active integration for a terminal and provider
func (r *TerminalIntegrationRepository) GetActive(ctx context.Context, terminalID string, provider policy.Provider) (*models.TerminalIntegration, error) {
	query := `
		SELECT ` + integrationColumns + `
		FROM terminal_integrations
		WHERE terminal_id = $1 AND provider = $2 AND deleted_at IS NULL
	`
	return r.queryOne(ctx, terminalID+"/"+string(provider), query, terminalID, provider)
}

// GetLatest retrieves the newest integration for a terminal and provider, detached or not
func (r *TerminalIntegrationRepository) GetLatest(ctx context.Context, terminalID string, provider policy.Provider) (*models.TerminalIntegration, error) {
	query := `
		SELECT ` + integrationColumns + `
		FROM terminal_integrations
		WHERE terminal_id = $1 AND provider = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.queryOne(ctx, terminalID+"/"+string(provider), query, terminalID, provider)
}

// ListActive retrieves all active integrations for a terminal
func (r *TerminalIntegrationRepository) ListActive(ctx context.Context, terminalID string) ([]*models.TerminalIntegration, error) {
	query := `
		SELECT ` + integrationColumns + `
		FROM terminal_integrations
		WHERE terminal_id = $1 AND deleted_at IS NULL
		ORDER BY provider
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, terminalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query terminal integrations: %w", err)
	}
	defer rows.Close()

	var integrations []*models.TerminalIntegration
	for rows.Next() {
		ti, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan terminal integration: %w", err)
		}
		integrations = append(integrations, ti)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating terminal integration rows: %w", err)
	}

	return integrations, nil
}

// SetActivePolicy repoints the integration at a revision
func (r *TerminalIntegrationRepository) SetActivePolicy(ctx context.Context, id, policyID uuid.UUID) error {
	query := `
		UPDATE terminal_integrations
		SET active_policy_id = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.execOne(ctx, "set active policy", id, query, id, policyID)
}

// SoftDelete marks the integration as detached
func (r *TerminalIntegrationRepository) SoftDelete(ctx context.Context, id uuid.UUID, deletedBy string) error {
	query := `
		UPDATE terminal_integrations
		SET deleted_at = CURRENT_TIMESTAMP, deleted_by = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND deleted_at IS NULL
	`
	if err := r.execOne(ctx, "detach terminal integration", id, query, id, deletedBy); err != nil {
		return err
	}

	r.logger.Debug("terminal integration detached", zap.String("id", id.String()))
	return nil
}

func (r *TerminalIntegrationRepository) execOne(ctx context.Context, op string, id uuid.UUID, query string, args ...interface{}) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, classify(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("active terminal integration not found: %s: %w", id, repositories.ErrNotFound)
	}
	return nil
}

func (r *TerminalIntegrationRepository) queryOne(ctx context.Context, key interface{}, query string, args ...interface{}) (*models.TerminalIntegration, error) {
	executor := GetExecutor(ctx, r.db)
	ti, err := scanIntegration(executor.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, wrapReadError("terminal integration", key, err)
	}
	return ti, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntegration(row rowScanner) (*models.TerminalIntegration, error) {
	ti := &models.TerminalIntegration{}
	err := row.Scan(
		&ti.ID,
		&ti.TerminalID,
		&ti.DashboardID,
		&ti.UserID,
		&ti.Provider,
		&ti.UserIntegrationID,
		&ti.ActivePolicyID,
		&ti.CreatedBy,
		&ti.CreatedAt,
		&ti.UpdatedAt,
		&ti.DeletedAt,
		&ti.DeletedBy,
	)
	if err != nil {
		return nil, err
	}
	return ti, nil
}
