package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, order_id, session_id, user_id, method, amount, ref, parent_payment_id, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var i Payment
	err := row.Scan(&i.ID, &i.OrderID, &i.SessionID, &i.UserID, &i.Method, &i.Amount, &i.Ref, &i.ParentPaymentID, &i.CreatedAt)
	return i, err
}

const sumPaymentsByOrder = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE order_id = $1`

// SumPaymentsByOrder is the net paid amount, refunds included as negatives.
func (q *Queries) SumPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.db.QueryRow(ctx, sumPaymentsByOrder, orderID).Scan(&total)
	return total, err
}

const countPaymentsByOrder = `SELECT count(*) FROM payments WHERE order_id = $1`

func (q *Queries) CountPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countPaymentsByOrder, orderID).Scan(&count)
	return count, err
}

const listPaymentsByOrder = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at, id`

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

const getPaymentForUpdate = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`

func (q *Queries) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentForUpdate, id))
}

const getRefundByRef = `SELECT ` + paymentColumns + ` FROM payments
WHERE ref = $1 AND parent_payment_id IS NOT NULL`

func (q *Queries) GetRefundByRef(ctx context.Context, ref string) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getRefundByRef, ref))
}

const sumRefundsByParent = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE parent_payment_id = $1`

func (q *Queries) SumRefundsByParent(ctx context.Context, parentID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.db.QueryRow(ctx, sumRefundsByParent, parentID).Scan(&total)
	return total, err
}

const createPayment = `INSERT INTO payments (order_id, session_id, user_id, method, amount, ref, parent_payment_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + paymentColumns

type CreatePaymentParams struct {
	OrderID         uuid.UUID
	SessionID       pgtype.UUID
	UserID          pgtype.UUID
	Method          PaymentMethod
	Amount          decimal.Decimal
	Ref             pgtype.Text
	ParentPaymentID pgtype.UUID
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, createPayment,
		arg.OrderID, arg.SessionID, arg.UserID, arg.Method, arg.Amount, arg.Ref, arg.ParentPaymentID))
}

// CreatePayments inserts all rows in one round trip. Inside a transaction
// the batch is all-or-nothing.
func (q *Queries) CreatePayments(ctx context.Context, args []CreatePaymentParams) ([]Payment, error) {
	if len(args) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, arg := range args {
		batch.Queue(createPayment,
			arg.OrderID, arg.SessionID, arg.UserID, arg.Method, arg.Amount, arg.Ref, arg.ParentPaymentID)
	}
	br := q.db.SendBatch(ctx, batch)
	defer br.Close()

	payments := make([]Payment, 0, len(args))
	for i := range args {
		p, err := scanPayment(br.QueryRow())
		if err != nil {
			return nil, fmt.Errorf("payment %d: %w", i, err)
		}
		payments = append(payments, p)
	}
	return payments, nil
}
