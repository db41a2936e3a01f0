package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "watch_party/pkg/errors"
)

// withinTx runs fn inside a transaction. Begin/commit failures are
// reported as STORE_UNAVAILABLE; errors returned by fn roll back and
// pass through untouched.
func withinTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return apperrors.ErrStoreUnavailable
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.ErrStoreUnavailable
	}
	return nil
}
