package postgres

import (
	"context"
	"fmt"

	"github.com/upb/integration-gateway/models"
	"github.com/upb/integration-gateway/repositories"
	"go.uber.org/zap"
)

// UserIntegrationRepository implements the repositories.UserIntegrationRepository interface
type UserIntegrationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserIntegrationRepository creates a new user integration repository
func NewUserIntegrationRepository(db *DB, logger *zap.Logger) repositories.UserIntegrationRepository {
	return &UserIntegrationRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a user integration by ID
func (r *UserIntegrationRepository) GetByID(ctx context.Context, id string) (*models.UserIntegration, error) {
	query := `
		SELECT id, user_id, provider, access_token, refresh_token, token_type, expires_at, scopes, status, updated_at
		FROM user_integrations
		WHERE id = $1
	`

	ui := &models.UserIntegration{}
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&ui.ID,
		&ui.UserID,
		&ui.Provider,
		&ui.AccessToken,
		&ui.RefreshToken,
		&ui.TokenType,
		&ui.ExpiresAt,
		&ui.Scopes,
		&ui.Status,
		&ui.UpdatedAt,
	)
	if err != nil {
		return nil, wrapReadError("user integration", id, err)
	}
	return ui, nil
}

// UpdateTokens persists refreshed tokens
func (r *UserIntegrationRepository) UpdateTokens(ctx context.Context, ui *models.UserIntegration) error {
	query := `
		UPDATE user_integrations
		SET access_token = $2, refresh_token = $3, token_type = $4, expires_at = $5, updated_at = $6
		WHERE id = $1
	`
	return r.execOne(ctx, "update tokens", ui.ID, query,
		ui.ID,
		ui.AccessToken,
		ui.RefreshToken,
		ui.TokenType,
		ui.ExpiresAt,
		ui.UpdatedAt,
	)
}

// MarkDisconnected flags the connection as unusable
func (r *UserIntegrationRepository) MarkDisconnected(ctx context.Context, id string) error {
	query := `
		UPDATE user_integrations
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	if err := r.execOne(ctx, "disconnect user integration", id, query, id, models.UserIntegrationDisconnected); err != nil {
		return err
	}

	r.logger.Info("user integration disconnected", zap.String("id", id))
	return nil
}

func (r *UserIntegrationRepository) execOne(ctx context.Context, op, id, query string, args ...interface{}) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user integration not found: %s: %w", id, repositories.ErrNotFound)
	}
	return nil
}
