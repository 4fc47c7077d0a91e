package postgres

import (
	"context"
	"database/sql"

	"github.com/upb/integration-gateway/config"
	"github.com/upb/integration-gateway/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db      *DB
	auditDB *DB // Optional: separate DB for audit logs
	logger  *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	f := &RepositoryFactory{db: db, logger: logger}

	if cfg.AuditDatabase != nil {
		auditDB, err := NewDB(*cfg.AuditDatabase, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		f.auditDB = auditDB
	}

	return f, nil
}

// InitSchema initializes the main schema and, when configured, the
// separate audit database schema.
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	if err := f.db.InitSchema(ctx); err != nil {
		return err
	}
	if f.auditDB != nil {
		return f.auditDB.InitAuditSchema(ctx)
	}
	return nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	auditDB := f.db
	if f.auditDB != nil {
		auditDB = f.auditDB
	}
	return &repositories.Repositories{
		Integrations:     NewTerminalIntegrationRepository(f.db, f.logger),
		Policies:         NewPolicyRepository(f.db, f.logger),
		Confirmations:    NewConfirmationRepository(f.db, f.logger),
		AuditLogs:        NewAuditRepository(auditDB, f.logger),
		Access:           NewAccessRepository(f.db, f.logger),
		UserIntegrations: NewUserIntegrationRepository(f.db, f.logger),
	}
}

// GetTransactionManager returns a serializable transaction manager. Policy
// revisions derive the next version from the current maximum, so concurrent
// writers must conflict rather than interleave.
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger, WithIsolation(sql.LevelSerializable))
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection(s)
func (f *RepositoryFactory) Close() error {
	if f.auditDB != nil {
		_ = f.auditDB.Close()
	}
	return f.db.Close()
}
