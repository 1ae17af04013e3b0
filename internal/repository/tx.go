package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTransactionConflict is returned when the database aborts a transaction
// because of lock contention or a serialization failure. The whole
// operation may be retried by the caller.
var ErrTransactionConflict = errors.New("transaction conflict")

// TxManager runs a function inside a single database transaction. If the
// function returns an error nothing it did survives.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type txManager struct {
	db *sql.DB
}

// NewTxManager creates a TxManager over the given database
func NewTxManager(db *sql.DB) TxManager {
	return &txManager{db: db}
}

func (m *txManager) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return markConflict(err)
	}

	if err := tx.Commit(); err != nil {
		return markConflict(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// markConflict wraps serialization failures and deadlocks (SQLSTATE 40001,
// 40P01) with ErrTransactionConflict so callers can decide to retry.
func markConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
	}
	return err
}
