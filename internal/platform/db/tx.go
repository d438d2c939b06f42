package db

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx binds an open transaction handle to the context so adapters invoked
// deeper in the same unit of work join it instead of opening their own.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext resolves the transaction bound to ctx, falling back to the
// process-wide handle when the caller is not inside a unit of work.
func FromContext(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return fallback
}

// TxRunner runs a function inside a single database transaction. The legacy
// ledger write and its partitioned mirror write share one unit of work, so a
// failed mirror aborts the legacy write too.
type TxRunner struct {
	DB *gorm.DB
}

func (r TxRunner) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}
