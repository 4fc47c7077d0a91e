package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/integration-gateway/repositories"
)

// Transactions aborted by a conflicting writer are replayed from the start.
var (
	MaxTxAttempts = 3
	TxRetryDelay  = 20 * time.Millisecond
)

// WithTransaction runs fn in a transaction, committing when it returns nil.
// fn may run more than once and must not have side effects outside the
// transaction.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	_, err := WithTransactionResult(ctx, txMgr, func(ctx context.Context, tx repositories.Transaction) (struct{}, error) {
		return struct{}{}, fn(ctx, tx)
	})
	return err
}

// WithTransactionResult is WithTransaction for functions producing a value
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 1; ; attempt++ {
		result, err = runOnce(ctx, txMgr, fn)
		if err == nil || !errors.Is(err, repositories.ErrConflict) || attempt >= MaxTxAttempts {
			break
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(time.Duration(attempt) * TxRetryDelay):
		}
	}
	if errors.Is(err, repositories.ErrConflict) {
		return result, ErrConcurrentUpdate.Wrap(err)
	}
	return result, err
}

func runOnce[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (result T, err error) {
	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	result, err = fn(tx.Context(), tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return result, fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return result, err
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}
