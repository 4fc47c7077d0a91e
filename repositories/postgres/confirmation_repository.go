package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/integration-gateway/models"
	"github.com/upb/integration-gateway/repositories"
	"go.uber.org/zap"
)

// ConfirmationRepository implements the repositories.ConfirmationRepository interface
type ConfirmationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewConfirmationRepository creates a new high-risk confirmation repository
func NewConfirmationRepository(db *DB, logger *zap.Logger) repositories.ConfirmationRepository {
	return &ConfirmationRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a confirmation. The first confirmation of a capability wins.
func (r *ConfirmationRepository) Create(ctx context.Context, c *models.HighRiskConfirmation) error {
	query := `
		INSERT INTO high_risk_confirmations (id, terminal_integration_id, capability, confirmed_by, confirmed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (terminal_integration_id, capability) DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		c.ID,
		c.TerminalIntegrationID,
		c.Capability,
		c.ConfirmedBy,
		c.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create confirmation: %w", classify(err))
	}

	r.logger.Debug("high-risk capability confirmed",
		zap.String("terminal_integration_id", c.TerminalIntegrationID.String()),
		zap.String("capability", string(c.Capability)),
	)
	return nil
}

// ListByIntegration retrieves all confirmations for an integration
func (r *ConfirmationRepository) ListByIntegration(ctx context.Context, integrationID uuid.UUID) ([]*models.HighRiskConfirmation, error) {
	query := `
		SELECT id, terminal_integration_id, capability, confirmed_by, confirmed_at
		FROM high_risk_confirmations
		WHERE terminal_integration_id = $1
		ORDER BY confirmed_at
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query confirmations: %w", err)
	}
	defer rows.Close()

	var confirmations []*models.HighRiskConfirmation
	for rows.Next() {
		c := &models.HighRiskConfirmation{}
		if err := rows.Scan(&c.ID, &c.TerminalIntegrationID, &c.Capability, &c.ConfirmedBy, &c.ConfirmedAt); err != nil {
			return nil, fmt.Errorf("failed to scan confirmation: %w", err)
		}
		confirmations = append(confirmations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating confirmation rows: %w", err)
	}

	return confirmations, nil
}
