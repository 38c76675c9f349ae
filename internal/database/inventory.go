package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const ingredientColumns = `id, name, sku, unit, stock_qty, min_qty, cost_per_unit, is_active`

func scanIngredient(row pgx.Row) (Ingredient, error) {
	var i Ingredient
	err := row.Scan(&i.ID, &i.Name, &i.Sku, &i.Unit, &i.StockQty, &i.MinQty, &i.CostPerUnit, &i.IsActive)
	return i, err
}

const getIngredient = `SELECT ` + ingredientColumns + ` FROM ingredients WHERE id = $1`

func (q *Queries) GetIngredient(ctx context.Context, id uuid.UUID) (Ingredient, error) {
	return scanIngredient(q.db.QueryRow(ctx, getIngredient, id))
}

const getIngredientForUpdate = `SELECT ` + ingredientColumns + ` FROM ingredients WHERE id = $1 FOR UPDATE`

func (q *Queries) GetIngredientForUpdate(ctx context.Context, id uuid.UUID) (Ingredient, error) {
	return scanIngredient(q.db.QueryRow(ctx, getIngredientForUpdate, id))
}

const updateIngredientStock = `UPDATE ingredients SET stock_qty = $2 WHERE id = $1
RETURNING ` + ingredientColumns

type UpdateIngredientStockParams struct {
	ID       uuid.UUID
	StockQty decimal.Decimal
}

func (q *Queries) UpdateIngredientStock(ctx context.Context, arg UpdateIngredientStockParams) (Ingredient, error) {
	return scanIngredient(q.db.QueryRow(ctx, updateIngredientStock, arg.ID, arg.StockQty))
}

const updateIngredientCost = `UPDATE ingredients SET cost_per_unit = $2 WHERE id = $1
RETURNING ` + ingredientColumns

type UpdateIngredientCostParams struct {
	ID          uuid.UUID
	CostPerUnit decimal.Decimal
}

func (q *Queries) UpdateIngredientCost(ctx context.Context, arg UpdateIngredientCostParams) (Ingredient, error) {
	return scanIngredient(q.db.QueryRow(ctx, updateIngredientCost, arg.ID, arg.CostPerUnit))
}

const listLowStockIngredients = `SELECT ` + ingredientColumns + ` FROM ingredients
WHERE is_active AND stock_qty <= min_qty
ORDER BY name`

func (q *Queries) ListLowStockIngredients(ctx context.Context) ([]Ingredient, error) {
	rows, err := q.db.Query(ctx, listLowStockIngredients)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanIngredient)
}

const listActiveIngredients = `SELECT ` + ingredientColumns + ` FROM ingredients
WHERE is_active
ORDER BY name`

func (q *Queries) ListActiveIngredients(ctx context.Context) ([]Ingredient, error) {
	rows, err := q.db.Query(ctx, listActiveIngredients)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanIngredient)
}

// Ordered by ingredient so callers that lock ingredients do it in a stable order.
const listRecipeLines = `SELECT pi.product_id, pi.ingredient_id, pi.qty_per_unit, pi.waste_factor,
       i.name, i.unit, i.stock_qty, i.cost_per_unit
FROM product_ingredients pi
JOIN ingredients i ON i.id = pi.ingredient_id
WHERE pi.product_id = $1
ORDER BY pi.ingredient_id`

func (q *Queries) ListRecipeLines(ctx context.Context, productID uuid.UUID) ([]RecipeLine, error) {
	rows, err := q.db.Query(ctx, listRecipeLines, productID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (RecipeLine, error) {
		var i RecipeLine
		err := row.Scan(
			&i.ProductID,
			&i.IngredientID,
			&i.QtyPerUnit,
			&i.WasteFactor,
			&i.IngredientName,
			&i.IngredientUnit,
			&i.StockQty,
			&i.CostPerUnit,
		)
		return i, err
	})
}

const deleteRecipeLines = `DELETE FROM product_ingredients WHERE product_id = $1`

func (q *Queries) DeleteRecipeLines(ctx context.Context, productID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteRecipeLines, productID)
	return err
}

const createRecipeLine = `INSERT INTO product_ingredients (product_id, ingredient_id, qty_per_unit, waste_factor)
VALUES ($1, $2, $3, $4)`

type CreateRecipeLineParams struct {
	ProductID    uuid.UUID
	IngredientID uuid.UUID
	QtyPerUnit   decimal.Decimal
	WasteFactor  decimal.Decimal
}

func (q *Queries) CreateRecipeLine(ctx context.Context, arg CreateRecipeLineParams) error {
	_, err := q.db.Exec(ctx, createRecipeLine, arg.ProductID, arg.IngredientID, arg.QtyPerUnit, arg.WasteFactor)
	return err
}

const stockMovementColumns = `id, ingredient_id, type, qty, unit_cost, ref, meta, created_by, created_at`

func scanStockMovement(row pgx.Row) (StockMovement, error) {
	var i StockMovement
	err := row.Scan(&i.ID, &i.IngredientID, &i.Type, &i.Qty, &i.UnitCost, &i.Ref, &i.Meta, &i.CreatedBy, &i.CreatedAt)
	return i, err
}

const createStockMovement = `INSERT INTO stock_movements (ingredient_id, type, qty, unit_cost, ref, meta, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + stockMovementColumns

type CreateStockMovementParams struct {
	IngredientID uuid.UUID
	Type         MovementType
	Qty          decimal.Decimal
	UnitCost     decimal.Decimal
	Ref          pgtype.Text
	Meta         []byte
	CreatedBy    pgtype.UUID
}

func (q *Queries) CreateStockMovement(ctx context.Context, arg CreateStockMovementParams) (StockMovement, error) {
	return scanStockMovement(q.db.QueryRow(ctx, createStockMovement,
		arg.IngredientID, arg.Type, arg.Qty, arg.UnitCost, arg.Ref, arg.Meta, arg.CreatedBy))
}

const listStockMovements = `SELECT ` + stockMovementColumns + ` FROM stock_movements
ORDER BY created_at DESC
LIMIT $1`

func (q *Queries) ListStockMovements(ctx context.Context, limit int32) ([]StockMovement, error) {
	rows, err := q.db.Query(ctx, listStockMovements, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanStockMovement)
}

const listStockMovementsByRefPrefix = `SELECT ` + stockMovementColumns + ` FROM stock_movements
WHERE ref LIKE $1 || '%'
ORDER BY created_at, id`

func (q *Queries) ListStockMovementsByRefPrefix(ctx context.Context, prefix string) ([]StockMovement, error) {
	rows, err := q.db.Query(ctx, listStockMovementsByRefPrefix, prefix)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanStockMovement)
}
