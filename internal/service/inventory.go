package service

import (
	"context"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/money"
	"github.com/comanda-pos/api/internal/units"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultMovementsLimit = 200
	maxMovementsLimit     = 500
)

// InventoryService records stock coming in and out outside of sales, and
// answers cost and availability questions from recipes.
type InventoryService struct {
	deps
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(pool TxBeginner, newStore NewStore, log *zap.Logger) *InventoryService {
	return &InventoryService{deps: newDeps(pool, newStore, nil, log)}
}

// PurchaseRequest is stock received from a supplier. Qty is in UOM and
// UnitCost is the price per CostUOM; both default to the ingredient's
// natural units.
type PurchaseRequest struct {
	IngredientID uuid.UUID
	Qty          decimal.Decimal
	UOM          string
	UnitCost     decimal.Decimal
	CostUOM      string
	Ref          string
	Meta         map[string]any
	UserID       uuid.UUID
}

// AdjustRequest is a signed correction (breakage, found stock, ...).
type AdjustRequest struct {
	IngredientID uuid.UUID
	Qty          decimal.Decimal
	UOM          string
	Ref          string
	Meta         map[string]any
	UserID       uuid.UUID
}

// CountRequest sets stock to what a stocktake found.
type CountRequest struct {
	IngredientID uuid.UUID
	TargetQty    decimal.Decimal
	UOM          string
	Ref          string
	Meta         map[string]any
	UserID       uuid.UUID
}

// RecipeInput is one recipe line as entered, in any unit compatible with
// the ingredient.
type RecipeInput struct {
	IngredientID uuid.UUID
	Qty          decimal.Decimal
	UOM          string
	WasteFactor  decimal.Decimal
}

// IngredientStock is an ingredient with its stock in a readable unit.
type IngredientStock struct {
	database.Ingredient
	DisplayQty  decimal.Decimal `json:"display_qty"`
	DisplayUnit string          `json:"display_unit"`
}

// Purchase converts the received quantity and price to the ingredient's base
// unit, replaces its cost_per_unit with the new base cost and books a
// purchase movement.
func (s *InventoryService) Purchase(ctx context.Context, req PurchaseRequest) (*MovementResult, error) {
	if req.Qty.Sign() <= 0 {
		return nil, validationError("qty must be > 0")
	}
	if req.UnitCost.IsNegative() {
		return nil, validationError("unit_cost must be >= 0")
	}

	var res MovementResult
	err := s.tx(ctx, func(store Store) error {
		var err error
		res, err = purchase(ctx, store, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func purchase(ctx context.Context, store Store, req PurchaseRequest) (MovementResult, error) {
	ing, base, err := lockIngredient(ctx, store, req.IngredientID)
	if err != nil {
		return MovementResult{}, err
	}
	qtyBase, err := units.ToBase(req.Qty, unitOr(req.UOM, string(base)), base)
	if err != nil {
		return MovementResult{}, err
	}
	costUOM := unitOr(req.CostUOM, units.DefaultCostUnit(base))
	costBase, err := units.CostToBase(req.UnitCost, costUOM, base)
	if err != nil {
		return MovementResult{}, err
	}
	costBase = money.Round4(costBase)

	if _, err := store.UpdateIngredientCost(ctx, database.UpdateIngredientCostParams{ID: ing.ID, CostPerUnit: costBase}); err != nil {
		return MovementResult{}, fmt.Errorf("update ingredient cost: %w", err)
	}
	res, err := ApplyMovement(ctx, store, Movement{
		IngredientID: ing.ID,
		Type:         database.MovementTypePurchase,
		Qty:          qtyBase,
		UnitCost:     &costBase,
		Ref:          req.Ref,
		Meta:         withMeta(req.Meta, "cost_uom", costUOM),
		CreatedBy:    req.UserID,
	})
	if err != nil {
		return MovementResult{}, err
	}
	err = audit(ctx, store, req.UserID, enum.AuditStockPurchase, "ingredient", ing.ID, map[string]any{
		"movement_id": res.Movement.ID,
		"qty_base":    res.Movement.Qty,
		"unit_cost":   costBase,
	})
	return res, err
}

// Adjust books a signed quantity against the ingredient.
func (s *InventoryService) Adjust(ctx context.Context, req AdjustRequest) (*MovementResult, error) {
	if req.Qty.IsZero() {
		return nil, validationError("qty must not be zero")
	}

	var res MovementResult
	err := s.tx(ctx, func(store Store) error {
		ing, base, err := lockIngredient(ctx, store, req.IngredientID)
		if err != nil {
			return err
		}
		uom := unitOr(req.UOM, string(base))
		qtyBase, err := units.ToBase(req.Qty, uom, base)
		if err != nil {
			return err
		}
		if res, err = ApplyMovement(ctx, store, Movement{
			IngredientID: ing.ID,
			Type:         database.MovementTypeAdjustment,
			Qty:          qtyBase,
			Ref:          req.Ref,
			Meta:         withMeta(req.Meta, "uom", uom),
			CreatedBy:    req.UserID,
		}); err != nil {
			return err
		}
		return audit(ctx, store, req.UserID, enum.AuditStockAdjust, "ingredient", ing.ID, map[string]any{
			"movement_id": res.Movement.ID,
			"qty_base":    res.Movement.Qty,
		})
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Count records a stocktake: the movement is the difference between the
// counted and the booked quantity. The cost is left unchanged.
func (s *InventoryService) Count(ctx context.Context, req CountRequest) (*MovementResult, error) {
	if req.TargetQty.IsNegative() {
		return nil, validationError("target_qty must be >= 0")
	}

	var res MovementResult
	err := s.tx(ctx, func(store Store) error {
		ing, base, err := lockIngredient(ctx, store, req.IngredientID)
		if err != nil {
			return err
		}
		target, err := units.ToBase(req.TargetQty, unitOr(req.UOM, string(base)), base)
		if err != nil {
			return err
		}
		delta := money.Round3(target).Sub(ing.StockQty)
		if res, err = ApplyMovement(ctx, store, Movement{
			IngredientID: ing.ID,
			Type:         database.MovementTypeAdjustment,
			Qty:          delta,
			Ref:          req.Ref,
			Meta:         withMeta(req.Meta, "count", true),
			CreatedBy:    req.UserID,
		}); err != nil {
			return err
		}
		return audit(ctx, store, req.UserID, enum.AuditStockCount, "ingredient", ing.ID, map[string]any{
			"movement_id": res.Movement.ID,
			"before":      ing.StockQty,
			"after":       res.Ingredient.StockQty,
		})
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SetRecipe replaces a product's recipe. Quantities are converted to each
// ingredient's base unit here, so the cost engine never converts.
func (s *InventoryService) SetRecipe(ctx context.Context, productID uuid.UUID, lines []RecipeInput, userID uuid.UUID) (*ProductCost, error) {
	seen := make(map[uuid.UUID]bool, len(lines))
	for i, l := range lines {
		if l.Qty.Sign() <= 0 {
			return nil, validationError("lines[%d]: qty must be > 0", i)
		}
		if l.WasteFactor.IsNegative() || l.WasteFactor.GreaterThanOrEqual(one) {
			return nil, validationError("lines[%d]: waste_factor must be in [0, 1)", i)
		}
		if seen[l.IngredientID] {
			return nil, validationError("lines[%d]: duplicate ingredient", i)
		}
		seen[l.IngredientID] = true
	}

	var pc ProductCost
	err := s.tx(ctx, func(store Store) error {
		if _, err := store.GetProductForOrder(ctx, productID); err != nil {
			return lookupErr(err, "product")
		}
		if err := store.DeleteRecipeLines(ctx, productID); err != nil {
			return fmt.Errorf("delete recipe lines: %w", err)
		}
		for i, l := range lines {
			ing, err := store.GetIngredient(ctx, l.IngredientID)
			if err != nil {
				return lookupErr(err, "ingredient")
			}
			base, err := units.ParseBase(ing.Unit)
			if err != nil {
				return err
			}
			qtyBase, err := units.ToBase(l.Qty, unitOr(l.UOM, string(base)), base)
			if err != nil {
				return fmt.Errorf("lines[%d]: %w", i, err)
			}
			if err := store.CreateRecipeLine(ctx, database.CreateRecipeLineParams{
				ProductID:    productID,
				IngredientID: ing.ID,
				QtyPerUnit:   money.Round3(qtyBase),
				WasteFactor:  l.WasteFactor,
			}); err != nil {
				return fmt.Errorf("create recipe line: %w", err)
			}
		}
		var err error
		if pc, err = ProductUnitCost(ctx, store, productID); err != nil {
			return err
		}
		return audit(ctx, store, userID, enum.AuditRecipeSet, "product", productID, map[string]any{
			"lines": len(lines),
			"cost":  pc.Cost,
		})
	})
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

// ProductCost prices one unit of a product from its recipe.
func (s *InventoryService) ProductCost(ctx context.Context, productID uuid.UUID) (*ProductCost, error) {
	var pc ProductCost
	err := s.tx(ctx, func(store Store) error {
		var err error
		pc, err = ProductUnitCost(ctx, store, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

// Producible reports how many units current stock can make.
func (s *InventoryService) Producible(ctx context.Context, productID uuid.UUID) (*Producible, error) {
	var p Producible
	err := s.tx(ctx, func(store Store) error {
		var err error
		p, err = ProducibleUnits(ctx, store, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Movements lists the most recent ledger entries.
func (s *InventoryService) Movements(ctx context.Context, limit int32) ([]database.StockMovement, error) {
	switch {
	case limit <= 0:
		limit = defaultMovementsLimit
	case limit > maxMovementsLimit:
		limit = maxMovementsLimit
	}
	var out []database.StockMovement
	err := s.tx(ctx, func(store Store) error {
		var err error
		out, err = store.ListStockMovements(ctx, limit)
		if err != nil {
			return fmt.Errorf("list stock movements: %w", err)
		}
		return nil
	})
	return out, err
}

// LowStock lists active ingredients at or below their reorder level.
func (s *InventoryService) LowStock(ctx context.Context) ([]IngredientStock, error) {
	var out []IngredientStock
	err := s.tx(ctx, func(store Store) error {
		ings, err := store.ListLowStockIngredients(ctx)
		if err != nil {
			return fmt.Errorf("list low stock: %w", err)
		}
		out = make([]IngredientStock, 0, len(ings))
		for _, ing := range ings {
			row := IngredientStock{Ingredient: ing, DisplayQty: ing.StockQty, DisplayUnit: ing.Unit}
			if base, err := units.ParseBase(ing.Unit); err == nil {
				row.DisplayQty, row.DisplayUnit = units.Display(ing.StockQty, base)
			}
			out = append(out, row)
		}
		return nil
	})
	return out, err
}

func lockIngredient(ctx context.Context, store LedgerStore, id uuid.UUID) (database.Ingredient, units.BaseUnit, error) {
	ing, err := store.GetIngredientForUpdate(ctx, id)
	if err != nil {
		return ing, "", lookupErr(err, "ingredient")
	}
	base, err := units.ParseBase(ing.Unit)
	if err != nil {
		return ing, "", err
	}
	return ing, base, nil
}

func unitOr(uom, fallback string) string {
	if uom == "" {
		return fallback
	}
	return uom
}

func withMeta(meta map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[key] = value
	return out
}
