package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/integration-gateway/config"
	"go.uber.org/zap"
)

// DB is a PostgreSQL pool. Repositories run on it directly or on the
// transaction carried by the context (see GetExecutor).
type DB struct {
	*sql.DB
	logger *zap.Logger
}

const connectTimeout = 5 * time.Second

// NewDB opens and verifies a pool sized from cfg
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	pool, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.LogString(), err)
	}

	return WrapDB(pool, logger), nil
}

// WrapDB wraps an already opened pool, such as a sqlmock connection
func WrapDB(pool *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: pool, logger: logger}
}

func (db *DB) Close() error {
	db.logger.Info("closing database pool")
	return db.DB.Close()
}

// InitSchema initializes the gateway schema. terminals and dashboard_members
// are owned by the dashboard service and only created here when missing so
// a fresh database can be used in development.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS terminals (
			id VARCHAR(255) PRIMARY KEY,
			dashboard_id VARCHAR(255) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS dashboard_members (
			dashboard_id VARCHAR(255) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL,
			PRIMARY KEY (dashboard_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS user_integrations (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			provider VARCHAR(50) NOT NULL,
			access_token BYTEA NOT NULL,
			refresh_token BYTEA,
			token_type VARCHAR(50) NOT NULL DEFAULT 'Bearer',
			expires_at TIMESTAMP,
			scopes TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS terminal_integrations (
			id UUID PRIMARY KEY,
			terminal_id VARCHAR(255) NOT NULL,
			dashboard_id VARCHAR(255) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			provider VARCHAR(50) NOT NULL,
			user_integration_id VARCHAR(255),
			active_policy_id UUID,
			created_by VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at TIMESTAMP,
			deleted_by VARCHAR(255)
		);

		CREATE TABLE IF NOT EXISTS integration_policies (
			id UUID PRIMARY KEY,
			terminal_integration_id UUID NOT NULL REFERENCES terminal_integrations(id),
			provider VARCHAR(50) NOT NULL,
			version INTEGER NOT NULL,
			content JSONB NOT NULL,
			security_level VARCHAR(20) NOT NULL,
			created_by VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (terminal_integration_id, version)
		);

		CREATE TABLE IF NOT EXISTS high_risk_confirmations (
			id UUID PRIMARY KEY,
			terminal_integration_id UUID NOT NULL REFERENCES terminal_integrations(id),
			capability VARCHAR(100) NOT NULL,
			confirmed_by VARCHAR(255) NOT NULL,
			confirmed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (terminal_integration_id, capability)
		);

		-- One active integration per terminal and provider
		CREATE UNIQUE INDEX IF NOT EXISTS idx_terminal_integrations_active
			ON terminal_integrations(terminal_id, provider) WHERE deleted_at IS NULL;
		CREATE INDEX IF NOT EXISTS idx_terminal_integrations_terminal_id ON terminal_integrations(terminal_id);
		CREATE INDEX IF NOT EXISTS idx_integration_policies_integration_id ON integration_policies(terminal_integration_id);
		CREATE INDEX IF NOT EXISTS idx_user_integrations_user_id ON user_integrations(user_id);
	` + auditSchema

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

// auditSchema has no foreign keys so it can live in a separate database.
const auditSchema = `
		CREATE TABLE IF NOT EXISTS integration_audit_log (
			id UUID PRIMARY KEY,
			terminal_integration_id UUID,
			terminal_id VARCHAR(255) NOT NULL,
			dashboard_id VARCHAR(255) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			provider VARCHAR(50) NOT NULL,
			action VARCHAR(100) NOT NULL,
			resource_id TEXT,
			policy_id UUID,
			policy_version INTEGER,
			decision VARCHAR(20) NOT NULL,
			denial_reason TEXT,
			request_summary JSONB,
			request_id VARCHAR(255),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_integration_audit_log_terminal
			ON integration_audit_log(terminal_id, provider, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_integration_audit_log_integration_id ON integration_audit_log(terminal_integration_id);
		CREATE INDEX IF NOT EXISTS idx_integration_audit_log_decision ON integration_audit_log(decision);
`

// InitAuditSchema initializes the audit database schema (audit log only, no FK).
// Use for the separate audit database when DATABASE_URL_AUDIT is set.
func (db *DB) InitAuditSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	db.logger.Info("audit schema initialized successfully")
	return nil
}
