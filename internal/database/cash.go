package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const cashSessionColumns = `id, opened_by, closed_by, status, opening_float, expected_total,
counted_total, diff_total, notes, opened_at, closed_at`

func scanCashSession(row pgx.Row) (CashSession, error) {
	var i CashSession
	err := row.Scan(
		&i.ID,
		&i.OpenedBy,
		&i.ClosedBy,
		&i.Status,
		&i.OpeningFloat,
		&i.ExpectedTotal,
		&i.CountedTotal,
		&i.DiffTotal,
		&i.Notes,
		&i.OpenedAt,
		&i.ClosedAt,
	)
	return i, err
}

const getOpenCashSessionByUserForUpdate = `SELECT ` + cashSessionColumns + ` FROM cash_sessions
WHERE opened_by = $1 AND status = 'open'
FOR UPDATE`

func (q *Queries) GetOpenCashSessionByUserForUpdate(ctx context.Context, userID uuid.UUID) (CashSession, error) {
	return scanCashSession(q.db.QueryRow(ctx, getOpenCashSessionByUserForUpdate, userID))
}

const getCashSession = `SELECT ` + cashSessionColumns + ` FROM cash_sessions WHERE id = $1`

func (q *Queries) GetCashSession(ctx context.Context, id uuid.UUID) (CashSession, error) {
	return scanCashSession(q.db.QueryRow(ctx, getCashSession, id))
}

const getCashSessionForUpdate = `SELECT ` + cashSessionColumns + ` FROM cash_sessions WHERE id = $1 FOR UPDATE`

func (q *Queries) GetCashSessionForUpdate(ctx context.Context, id uuid.UUID) (CashSession, error) {
	return scanCashSession(q.db.QueryRow(ctx, getCashSessionForUpdate, id))
}

const createCashSession = `INSERT INTO cash_sessions (opened_by, opening_float, status)
VALUES ($1, $2, 'open')
RETURNING ` + cashSessionColumns

type CreateCashSessionParams struct {
	OpenedBy     uuid.UUID
	OpeningFloat decimal.Decimal
}

func (q *Queries) CreateCashSession(ctx context.Context, arg CreateCashSessionParams) (CashSession, error) {
	return scanCashSession(q.db.QueryRow(ctx, createCashSession, arg.OpenedBy, arg.OpeningFloat))
}

const closeCashSession = `UPDATE cash_sessions
SET status = 'closed', closed_by = $2, expected_total = $3, counted_total = $4, diff_total = $5,
    notes = $6, closed_at = now()
WHERE id = $1
RETURNING ` + cashSessionColumns

type CloseCashSessionParams struct {
	ID            uuid.UUID
	ClosedBy      pgtype.UUID
	ExpectedTotal decimal.Decimal
	CountedTotal  decimal.Decimal
	DiffTotal     decimal.Decimal
	Notes         pgtype.Text
}

func (q *Queries) CloseCashSession(ctx context.Context, arg CloseCashSessionParams) (CashSession, error) {
	return scanCashSession(q.db.QueryRow(ctx, closeCashSession,
		arg.ID, arg.ClosedBy, arg.ExpectedTotal, arg.CountedTotal, arg.DiffTotal, arg.Notes))
}

const sumPaymentsBySession = `SELECT method, COALESCE(SUM(amount), 0), count(*)
FROM payments
WHERE session_id = $1
GROUP BY method
ORDER BY method`

func (q *Queries) SumPaymentsBySession(ctx context.Context, sessionID uuid.UUID) ([]PaymentMethodTotal, error) {
	rows, err := q.db.Query(ctx, sumPaymentsBySession, sessionID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (PaymentMethodTotal, error) {
		var i PaymentMethodTotal
		err := row.Scan(&i.Method, &i.Total, &i.Count)
		return i, err
	})
}
