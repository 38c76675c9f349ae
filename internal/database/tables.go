package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const tableColumns = `id, area_id, label, capacity, status, updated_at`

func scanDiningTable(row pgx.Row) (DiningTable, error) {
	var i DiningTable
	err := row.Scan(&i.ID, &i.AreaID, &i.Label, &i.Capacity, &i.Status, &i.UpdatedAt)
	return i, err
}

const getTable = `SELECT ` + tableColumns + ` FROM dining_tables WHERE id = $1`

func (q *Queries) GetTable(ctx context.Context, id uuid.UUID) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, getTable, id))
}

const getTableForUpdate = `SELECT ` + tableColumns + ` FROM dining_tables WHERE id = $1 FOR UPDATE`

func (q *Queries) GetTableForUpdate(ctx context.Context, id uuid.UUID) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, getTableForUpdate, id))
}

const updateTableStatus = `UPDATE dining_tables SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + tableColumns

type UpdateTableStatusParams struct {
	ID     uuid.UUID
	Status TableStatus
}

func (q *Queries) UpdateTableStatus(ctx context.Context, arg UpdateTableStatusParams) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, updateTableStatus, arg.ID, arg.Status))
}

const countActiveOrdersByTable = `SELECT count(*) FROM orders
WHERE table_id = $1
  AND status IN ('open', 'ready', 'delivered')
  AND ($2::uuid IS NULL OR id <> $2)`

type CountActiveOrdersByTableParams struct {
	TableID        uuid.UUID
	ExcludeOrderID pgtype.UUID
}

// CountActiveOrdersByTable counts non-terminal orders on a table, optionally
// ignoring one order (the one being moved or closed).
func (q *Queries) CountActiveOrdersByTable(ctx context.Context, arg CountActiveOrdersByTableParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countActiveOrdersByTable, arg.TableID, arg.ExcludeOrderID).Scan(&count)
	return count, err
}
