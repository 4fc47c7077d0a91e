package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/upb/integration-gateway/internal/policy"
	"github.com/upb/integration-gateway/models"
	"github.com/upb/integration-gateway/repositories"
	"go.uber.org/zap"
)

const auditColumns = `id, terminal_integration_id, terminal_id, dashboard_id, user_id, provider, action,
		resource_id, policy_id, policy_version, decision, denial_reason, request_summary, request_id, created_at`

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry. Entries are never updated.
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO integration_audit_log (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.TerminalIntegrationID,
		log.TerminalID,
		log.DashboardID,
		log.UserID,
		log.Provider,
		log.Action,
		log.ResourceID,
		log.PolicyID,
		log.PolicyVersion,
		log.Decision,
		log.DenialReason,
		nullableJSON(log.RequestSummary),
		log.RequestID,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted",
		zap.String("id", log.ID.String()),
		zap.String("decision", string(log.Decision)),
	)
	return nil
}

// ListByTerminalProvider retrieves entries newest first with pagination
func (r *AuditRepository) ListByTerminalProvider(ctx context.Context, terminalID string, provider policy.Provider, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM integration_audit_log
		WHERE terminal_id = $1 AND provider = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, terminalID, provider, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		log := &models.AuditLog{}
		var summary []byte
		var requestID *string
		err := rows.Scan(
			&log.ID,
			&log.TerminalIntegrationID,
			&log.TerminalID,
			&log.DashboardID,
			&log.UserID,
			&log.Provider,
			&log.Action,
			&log.ResourceID,
			&log.PolicyID,
			&log.PolicyVersion,
			&log.Decision,
			&log.DenialReason,
			&summary,
			&requestID,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if len(summary) > 0 {
			log.RequestSummary = json.RawMessage(summary)
		}
		if requestID != nil {
			log.RequestID = *requestID
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}

// nullableJSON stores an empty document as NULL
func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
