package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const getProductForOrder = `SELECT id, name, price, station, is_active FROM products WHERE id = $1`

func (q *Queries) GetProductForOrder(ctx context.Context, id uuid.UUID) (Product, error) {
	var i Product
	err := q.db.QueryRow(ctx, getProductForOrder, id).Scan(&i.ID, &i.Name, &i.Price, &i.Station, &i.IsActive)
	return i, err
}

const listModifierOptionsByIDs = `SELECT mo.id, mo.group_id, mg.name, mo.name, mo.price_delta
FROM modifier_options mo
JOIN modifier_groups mg ON mg.id = mo.group_id
WHERE mg.product_id = $1 AND mo.id = ANY($2::uuid[])
ORDER BY mg.name, mo.name`

type ListModifierOptionsByIDsParams struct {
	ProductID uuid.UUID
	IDs       []uuid.UUID
}

// ListModifierOptionsByIDs returns only options that belong to the product;
// foreign option IDs are silently absent from the result.
func (q *Queries) ListModifierOptionsByIDs(ctx context.Context, arg ListModifierOptionsByIDsParams) ([]ModifierOption, error) {
	rows, err := q.db.Query(ctx, listModifierOptionsByIDs, arg.ProductID, arg.IDs)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (ModifierOption, error) {
		var i ModifierOption
		err := row.Scan(&i.ID, &i.GroupID, &i.GroupName, &i.Name, &i.PriceDelta)
		return i, err
	})
}
