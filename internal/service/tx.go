package service

import (
	"context"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/jackc/pgx/v5"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewStore creates a Store from a DBTX (pool or tx).
// This allows the services to create store instances from transactions.
type NewStore func(db database.DBTX) Store

// inTx runs fn against a tx-bound store. Any error from fn rolls the whole
// transaction back; nothing fn wrote is visible unless it returns nil.
func inTx(ctx context.Context, pool TxBeginner, newStore NewStore, fn func(Store) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(newStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
