package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/integration-gateway/repositories"
)

// SQLSTATE codes the repositories translate
const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// classify tags aborted transactions with repositories.ErrConflict
func classify(err error) error {
	switch sqlState(err) {
	case serializationFailure, deadlockDetected:
		return fmt.Errorf("%w: %v", repositories.ErrConflict, err)
	}
	return err
}

// wrapWriteError maps driver errors on insert/update to repository errors
func wrapWriteError(op string, err error) error {
	if sqlState(err) == uniqueViolation {
		return fmt.Errorf("failed to %s: %w", op, repositories.ErrDuplicate)
	}
	return fmt.Errorf("failed to %s: %w", op, classify(err))
}

// wrapReadError maps driver errors on single-row reads to repository errors
func wrapReadError(what string, key interface{}, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s not found: %v: %w", what, key, repositories.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, classify(err))
}
