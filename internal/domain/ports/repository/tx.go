package repository

import (
	"context"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes fn within a database transaction, passing the
// underlying transaction handle via `qx`.
//
// The concrete type of `qx` is infra-defined (pgx.Tx for Postgres, *sql.Tx
// for SQLite). Repositories MUST gracefully accept `nil` qx (non-transactional
// path).
//
//	tm.WithTx(ctx, func(ctx context.Context, qx Tx) error {
//		if err := repo.SaveMessage(ctx, qx, userMsg); err != nil {
//			return err
//		}
//		return repo.SaveMessage(ctx, qx, assistantMsg)
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
