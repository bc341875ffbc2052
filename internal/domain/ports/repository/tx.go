package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque storage transaction handle (pgx.Tx for Postgres).
type Tx interface{}

// NoTX marks a call that runs outside a transaction.
var NoTX interface{}

// TransactionManager runs fn inside one storage transaction. Repositories
// accept the handle it passes and must also accept nil (non-transactional path).
//
// tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
//	if _, err := grants.Create(ctx, tx, g); err != nil { return err }
//	return users.SetSubscribed(ctx, tx, g.UserID, true)
// })
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
