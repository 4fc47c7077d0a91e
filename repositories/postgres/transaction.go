package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/integration-gateway/repositories"
	"go.uber.org/zap"
)

type txKey struct{}

// TransactionManager opens transactions on the primary database at a fixed
// isolation level.
type TransactionManager struct {
	db        *DB
	isolation sql.IsolationLevel
	logger    *zap.Logger
}

// TxOption configures a TransactionManager
type TxOption func(*TransactionManager)

// WithIsolation sets the isolation level of every transaction
func WithIsolation(level sql.IsolationLevel) TxOption {
	return func(tm *TransactionManager) { tm.isolation = level }
}

// NewTransactionManager returns a manager using the driver's default
// isolation unless overridden.
func NewTransactionManager(db *DB, logger *zap.Logger, opts ...TxOption) *TransactionManager {
	tm := &TransactionManager{db: db, isolation: sql.LevelDefault, logger: logger}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Begin starts a transaction. Nested calls reuse the outer transaction.
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	if outer, ok := txFromContext(ctx); ok {
		return &Tx{tx: outer.tx, ctx: ctx, nested: true, logger: tm.logger}, nil
	}

	sqlTx, err := tm.db.BeginTx(ctx, &sql.TxOptions{Isolation: tm.isolation})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", classify(err))
	}

	tx := &Tx{tx: sqlTx, logger: tm.logger}
	tx.ctx = context.WithValue(ctx, txKey{}, tx)
	return tx, nil
}

// InTransaction runs fn in a single transaction attempt
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx.Context(), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
		}
		return err
	}
	return tx.Commit()
}

// Tx is a repositories.Transaction backed by *sql.Tx. A nested Tx
// leaves commit and rollback to the outermost one.
type Tx struct {
	tx     *sql.Tx
	ctx    context.Context
	nested bool
	logger *zap.Logger
}

func (t *Tx) Commit() error {
	if t.nested {
		return nil
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return nil
}

func (t *Tx) Rollback() error {
	if t.nested {
		return nil
	}
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func (t *Tx) Context() context.Context {
	return t.ctx
}

func txFromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

// GetTransactionFromContext reports whether ctx carries an open transaction
func GetTransactionFromContext(ctx context.Context) (repositories.Transaction, bool) {
	tx, ok := txFromContext(ctx)
	if !ok {
		return nil, false
	}
	return tx, true
}

// Executor is satisfied by both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the transaction carried by ctx, or db
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := txFromContext(ctx); ok {
		return tx.tx
	}
	return db.DB
}
