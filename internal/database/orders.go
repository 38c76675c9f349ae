package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, table_id, waiter_id, guests, status, notes, opened_at, closed_at,
subtotal, discount_total, service_total, grand_total, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.TableID,
		&i.WaiterID,
		&i.Guests,
		&i.Status,
		&i.Notes,
		&i.OpenedAt,
		&i.ClosedAt,
		&i.Subtotal,
		&i.DiscountTotal,
		&i.ServiceTotal,
		&i.GrandTotal,
		&i.UpdatedAt,
	)
	return i, err
}

const createOrder = `INSERT INTO orders (table_id, waiter_id, guests, notes, status)
VALUES ($1, $2, $3, $4, 'open')
RETURNING ` + orderColumns

type CreateOrderParams struct {
	TableID  uuid.UUID
	WaiterID pgtype.UUID
	Guests   int32
	Notes    pgtype.Text
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder, arg.TableID, arg.WaiterID, arg.Guests, arg.Notes))
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

// FOR NO KEY UPDATE serializes writers on the order row without blocking
// inserts of rows that reference it (items, payments).
const getOrderForUpdate = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR NO KEY UPDATE`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const getActiveOrderByTable = `SELECT ` + orderColumns + ` FROM orders
WHERE table_id = $1 AND status IN ('open', 'ready', 'delivered')
ORDER BY opened_at DESC
LIMIT 1`

func (q *Queries) GetActiveOrderByTable(ctx context.Context, tableID uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getActiveOrderByTable, tableID))
}

const listActiveOrders = `SELECT ` + orderColumns + ` FROM orders
WHERE status IN ('open', 'ready', 'delivered')
ORDER BY opened_at`

func (q *Queries) ListActiveOrders(ctx context.Context) ([]Order, error) {
	rows, err := q.db.Query(ctx, listActiveOrders)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrder)
}

const updateOrderTotals = `UPDATE orders
SET subtotal = $2, discount_total = $3, service_total = $4, grand_total = $5, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderTotalsParams struct {
	ID            uuid.UUID
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	ServiceTotal  decimal.Decimal
	GrandTotal    decimal.Decimal
}

func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderTotals,
		arg.ID, arg.Subtotal, arg.DiscountTotal, arg.ServiceTotal, arg.GrandTotal))
}

const updateOrderStatus = `UPDATE orders SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID     uuid.UUID
	Status OrderStatus
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status))
}

// Note, when set, is appended to the existing notes on its own line.
const closeOrder = `UPDATE orders
SET status = $2,
    closed_at = now(),
    notes = CASE WHEN $3::text IS NULL THEN notes
                 WHEN notes IS NULL OR notes = '' THEN $3::text
                 ELSE notes || E'\n' || $3::text END,
    updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type CloseOrderParams struct {
	ID     uuid.UUID
	Status OrderStatus
	Note   pgtype.Text
}

func (q *Queries) CloseOrder(ctx context.Context, arg CloseOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, closeOrder, arg.ID, arg.Status, arg.Note))
}

const moveOrderToTable = `UPDATE orders SET table_id = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type MoveOrderToTableParams struct {
	ID      uuid.UUID
	TableID uuid.UUID
}

func (q *Queries) MoveOrderToTable(ctx context.Context, arg MoveOrderToTableParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, moveOrderToTable, arg.ID, arg.TableID))
}
