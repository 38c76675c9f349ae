package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const orderItemColumns = `id, order_id, product_id, item_name, quantity, unit_price, notes, station,
status, modifiers, cost_override, stock_applied_at, fired_at, ready_at, delivered_at, created_at`

func orderItemDest(i *OrderItem) []any {
	return []any{
		&i.ID,
		&i.OrderID,
		&i.ProductID,
		&i.ItemName,
		&i.Quantity,
		&i.UnitPrice,
		&i.Notes,
		&i.Station,
		&i.Status,
		&i.Modifiers,
		&i.CostOverride,
		&i.StockAppliedAt,
		&i.FiredAt,
		&i.ReadyAt,
		&i.DeliveredAt,
		&i.CreatedAt,
	}
}

func scanOrderItem(row pgx.Row) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(orderItemDest(&i)...)
	return i, err
}

const listOrderItemsByOrder = `SELECT ` + orderItemColumns + ` FROM order_items
WHERE order_id = $1
ORDER BY created_at, id`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrderItem)
}

const listOrderItemsByOrderForUpdate = `SELECT ` + orderItemColumns + ` FROM order_items
WHERE order_id = $1
ORDER BY created_at, id
FOR UPDATE`

func (q *Queries) ListOrderItemsByOrderForUpdate(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrderForUpdate, orderID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrderItem)
}

const getOrderItem = `SELECT ` + orderItemColumns + ` FROM order_items WHERE id = $1`

func (q *Queries) GetOrderItem(ctx context.Context, id uuid.UUID) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, getOrderItem, id))
}

const getOrderItemForUpdate = `SELECT ` + orderItemColumns + ` FROM order_items WHERE id = $1 FOR UPDATE`

func (q *Queries) GetOrderItemForUpdate(ctx context.Context, id uuid.UUID) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, getOrderItemForUpdate, id))
}

const createOrderItem = `INSERT INTO order_items (
    order_id, product_id, item_name, quantity, unit_price, notes, station,
    status, modifiers, cost_override, stock_applied_at, fired_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9::jsonb, '[]'::jsonb), $10, $11, $12)
RETURNING ` + orderItemColumns

type CreateOrderItemParams struct {
	OrderID        uuid.UUID
	ProductID      pgtype.UUID
	ItemName       string
	Quantity       int32
	UnitPrice      decimal.Decimal
	Notes          pgtype.Text
	Station        pgtype.Text
	Status         OrderItemStatus
	Modifiers      []byte
	CostOverride   decimal.NullDecimal
	StockAppliedAt pgtype.Timestamptz
	FiredAt        pgtype.Timestamptz
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.ProductID,
		arg.ItemName,
		arg.Quantity,
		arg.UnitPrice,
		arg.Notes,
		arg.Station,
		arg.Status,
		arg.Modifiers,
		arg.CostOverride,
		arg.StockAppliedAt,
		arg.FiredAt,
	))
}

// Timestamps follow the status: fired_at on the first move to queued,
// ready_at and delivered_at on those states.
const updateOrderItemStatus = `UPDATE order_items
SET status = $2,
    fired_at = CASE WHEN $2 = 'queued' THEN COALESCE(fired_at, now()) ELSE fired_at END,
    ready_at = CASE WHEN $2 = 'ready' THEN now() ELSE ready_at END,
    delivered_at = CASE WHEN $2 = 'delivered' THEN now() ELSE delivered_at END
WHERE id = $1
RETURNING ` + orderItemColumns

type UpdateOrderItemStatusParams struct {
	ID     uuid.UUID
	Status OrderItemStatus
}

func (q *Queries) UpdateOrderItemStatus(ctx context.Context, arg UpdateOrderItemStatusParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, updateOrderItemStatus, arg.ID, arg.Status))
}

const fireOrderItems = `UPDATE order_items
SET status = 'queued', fired_at = COALESCE(fired_at, now())
WHERE order_id = $1 AND status IN ('new', 'pending')
RETURNING ` + orderItemColumns

func (q *Queries) FireOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, fireOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrderItem)
}

const deliverReadyItems = `UPDATE order_items
SET status = 'delivered', delivered_at = now()
WHERE order_id = $1 AND status = 'ready'
RETURNING ` + orderItemColumns

func (q *Queries) DeliverReadyItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, deliverReadyItems, orderID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOrderItem)
}

const voidOrderItems = `UPDATE order_items SET status = 'void' WHERE order_id = $1 AND status <> 'void'`

func (q *Queries) VoidOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, voidOrderItems, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const updateOrderItemQuantity = `UPDATE order_items SET quantity = $2 WHERE id = $1
RETURNING ` + orderItemColumns

type UpdateOrderItemQuantityParams struct {
	ID       uuid.UUID
	Quantity int32
}

func (q *Queries) UpdateOrderItemQuantity(ctx context.Context, arg UpdateOrderItemQuantityParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, updateOrderItemQuantity, arg.ID, arg.Quantity))
}

const updateOrderItemNotes = `UPDATE order_items SET notes = $2 WHERE id = $1
RETURNING ` + orderItemColumns

type UpdateOrderItemNotesParams struct {
	ID    uuid.UUID
	Notes pgtype.Text
}

func (q *Queries) UpdateOrderItemNotes(ctx context.Context, arg UpdateOrderItemNotesParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, updateOrderItemNotes, arg.ID, arg.Notes))
}

const deleteOrderItem = `DELETE FROM order_items WHERE id = $1`

func (q *Queries) DeleteOrderItem(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteOrderItem, id)
	return err
}

const moveOrderItems = `UPDATE order_items SET order_id = $2 WHERE order_id = $1`

type MoveOrderItemsParams struct {
	FromOrderID uuid.UUID
	ToOrderID   uuid.UUID
}

func (q *Queries) MoveOrderItems(ctx context.Context, arg MoveOrderItemsParams) (int64, error) {
	tag, err := q.db.Exec(ctx, moveOrderItems, arg.FromOrderID, arg.ToOrderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const moveOrderItem = `UPDATE order_items SET order_id = $2 WHERE id = $1
RETURNING ` + orderItemColumns

type MoveOrderItemParams struct {
	ID      uuid.UUID
	OrderID uuid.UUID
}

func (q *Queries) MoveOrderItem(ctx context.Context, arg MoveOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, moveOrderItem, arg.ID, arg.OrderID))
}

// The IS NULL guard makes the stamp a claim: only one caller ever sees a
// row affected for a given item.
const markOrderItemStockApplied = `UPDATE order_items SET stock_applied_at = now()
WHERE id = $1 AND stock_applied_at IS NULL`

func (q *Queries) MarkOrderItemStockApplied(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, markOrderItemStockApplied, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listStationQueue = `SELECT oi.id, oi.order_id, oi.product_id, oi.item_name, oi.quantity, oi.unit_price,
       oi.notes, oi.station, oi.status, oi.modifiers, oi.cost_override, oi.stock_applied_at,
       oi.fired_at, oi.ready_at, oi.delivered_at, oi.created_at,
       o.table_id, t.label
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
JOIN dining_tables t ON t.id = o.table_id
WHERE ($1 = 'all' OR oi.station = $1)
  AND oi.status = ANY($2::text[])
  AND o.status IN ('open', 'ready', 'delivered')
ORDER BY COALESCE(oi.fired_at, oi.created_at), oi.id
LIMIT $3`

type ListStationQueueParams struct {
	Station  string
	Statuses []string
	Limit    int32
}

func (q *Queries) ListStationQueue(ctx context.Context, arg ListStationQueueParams) ([]StationQueueRow, error) {
	rows, err := q.db.Query(ctx, listStationQueue, arg.Station, arg.Statuses, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (StationQueueRow, error) {
		var i StationQueueRow
		dest := append(orderItemDest(&i.OrderItem), &i.TableID, &i.TableLabel)
		err := row.Scan(dest...)
		return i, err
	})
}
