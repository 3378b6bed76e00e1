package services

import (
	"context"

	"github.com/upb/card-control/repositories"
)

// WithTransaction executes fn within a database transaction.
// Commits on success, rolls back on error.
func WithTransaction(ctx context.Context, txMgr repositories.TxManager, fn func(ctx context.Context) error) error {
	return txMgr.InTransaction(ctx, fn)
}

// WithTransactionResult executes fn within a database transaction and returns
// its result. The zero value is returned when the transaction rolls back.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TxManager, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T

	err := txMgr.InTransaction(ctx, func(ctx context.Context) error {
		r, err := fn(ctx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}
