package postgres

import (
	"context"

	"github.com/upb/integration-gateway/models"
	"github.com/upb/integration-gateway/repositories"
	"go.uber.org/zap"
)

// AccessRepository implements the repositories.AccessRepository interface.
// It only reads tables owned by the dashboard service.
type AccessRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAccessRepository creates a new access repository
func NewAccessRepository(db *DB, logger *zap.Logger) repositories.AccessRepository {
	return &AccessRepository{
		db:     db,
		logger: logger,
	}
}

// GetTerminal retrieves a terminal by ID
func (r *AccessRepository) GetTerminal(ctx context.Context, terminalID string) (*models.Terminal, error) {
	query := `SELECT id, dashboard_id FROM terminals WHERE id = $1`

	terminal := &models.Terminal{}
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query, terminalID).Scan(&terminal.ID, &terminal.DashboardID); err != nil {
		return nil, wrapReadError("terminal", terminalID, err)
	}
	return terminal, nil
}

// GetMemberRole returns the user's role in a dashboard
func (r *AccessRepository) GetMemberRole(ctx context.Context, dashboardID, userID string) (models.DashboardRole, error) {
	query := `SELECT role FROM dashboard_members WHERE dashboard_id = $1 AND user_id = $2`

	var role models.DashboardRole
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query, dashboardID, userID).Scan(&role); err != nil {
		return "", wrapReadError("dashboard member", userID, err)
	}
	return role, nil
}
