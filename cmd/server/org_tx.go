package main

import (
	"context"
	"database/sql"

	"kycflow/internal/platform/postgres"
)

// orgPostgresTx lets the organization service group its read-check-write
// sequences (reorder, delete, branch edits) into one database transaction.
type orgPostgresTx struct {
	db *sql.DB
}

func newOrgPostgresTx(db *sql.DB) *orgPostgresTx {
	return &orgPostgresTx{db: db}
}

func (t *orgPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.RunInTx(ctx, t.db, fn)
}
