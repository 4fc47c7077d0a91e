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

const policyColumns = `id, terminal_integration_id, provider, version, content, security_level, created_by, created_at`

// PolicyRepository implements the repositories.IntegrationPolicyRepository interface
type PolicyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPolicyRepository creates a new policy revision repository
func NewPolicyRepository(db *DB, logger *zap.Logger) repositories.IntegrationPolicyRepository {
	return &PolicyRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new revision
func (r *PolicyRepository) Create(ctx context.Context, p *models.IntegrationPolicy) error {
	content, err := policy.Encode(p.Content)
	if err != nil {
		return fmt.Errorf("failed to encode policy content: %w", err)
	}

	query := `
		INSERT INTO integration_policies (` + policyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		p.ID,
		p.TerminalIntegrationID,
		p.Provider,
		p.Version,
		content,
		p.SecurityLevel,
		p.CreatedBy,
		p.CreatedAt,
	)
	if err != nil {
		return wrapWriteError("create policy revision", err)
	}

	r.logger.Debug("policy revision created",
		zap.String("id", p.ID.String()),
		zap.Int("version", p.Version),
	)
	return nil
}

// GetByID retrieves a revision by ID
func (r *PolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.IntegrationPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM integration_policies WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	p, err := scanPolicy(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapReadError("policy", id, err)
	}
	return p, nil
}

// MaxVersion returns the highest revision number, or 0 when none exist
func (r *PolicyRepository) MaxVersion(ctx context.Context, integrationID uuid.UUID) (int, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM integration_policies WHERE terminal_integration_id = $1`

	var version int
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query, integrationID).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get max policy version: %w", classify(err))
	}
	return version, nil
}

// ListByIntegration retrieves all revisions newest first
func (r *PolicyRepository) ListByIntegration(ctx context.Context, integrationID uuid.UUID) ([]*models.IntegrationPolicy, error) {
	query := `
		SELECT ` + policyColumns + `
		FROM integration_policies
		WHERE terminal_integration_id = $1
		ORDER BY version DESC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var revisions []*models.IntegrationPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		revisions = append(revisions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating policy rows: %w", err)
	}

	return revisions, nil
}

func scanPolicy(row rowScanner) (*models.IntegrationPolicy, error) {
	p := &models.IntegrationPolicy{}
	var raw []byte
	err := row.Scan(
		&p.ID,
		&p.TerminalIntegrationID,
		&p.Provider,
		&p.Version,
		&raw,
		&p.SecurityLevel,
		&p.CreatedBy,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	content, err := policy.Decode(p.Provider, raw)
	if err != nil {
		return nil, fmt.Errorf("revision %s: %w", p.ID, err)
	}
	p.Content = content
	return p, nil
}
