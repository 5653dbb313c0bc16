package database

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// TxRunner executes fn inside a single database transaction. Every
// multi-record mutation goes through this so that either all writes commit or
// none do; ledger reads performed inside fn see the same snapshot as the
// dependent writes.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// RunInTx starts a transaction on the writer and invokes fn with a context
// carrying the transaction. Repositories resolve it via IDB. Nested calls
// reuse the ambient transaction.
func (c *Connections) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return c.Writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// IDB returns the transaction bound to ctx when present, or fallback.
func IDB(ctx context.Context, fallback bun.IDB) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return fallback
}
