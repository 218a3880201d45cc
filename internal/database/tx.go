package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/corebank/backend/internal/apperr"
)

// TxFunc is one atomic unit of work.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// WithTx runs fn inside a transaction bounded by timeout. The transaction
// commits only when fn returns nil; any error, panic or timeout rolls back
// every write fn made. Errors from the taxonomy pass through unchanged,
// everything else is reported as a transaction failure.
func WithTx(ctx context.Context, db *sql.DB, timeout time.Duration, fn TxFunc) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Transaction(err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		if apperr.Known(err) {
			return err
		}
		return apperr.Transaction(withContextErr(ctx, err))
	}

	if err = tx.Commit(); err != nil {
		return apperr.Transaction(withContextErr(ctx, err))
	}
	return nil
}

// withContextErr attaches the context's error when the driver reported a
// cancellation in its own words.
func withContextErr(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil || errors.Is(err, ctxErr) {
		return err
	}
	return fmt.Errorf("%w: %w", err, ctxErr)
}
