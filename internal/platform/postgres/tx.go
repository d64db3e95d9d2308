package postgres

import (
	"context"
	"database/sql"
	"time"

	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// RunInTx runs fn inside a transaction carried in ctx (see tx.From). When ctx
// already carries one, fn joins it and the outer caller commits.
func RunInTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if _, ok := tx.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	return sqlTx.Commit()
}
