package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Movement is a signed stock change in the ingredient's base unit.
type Movement struct {
	IngredientID uuid.UUID
	Type         database.MovementType
	Qty          decimal.Decimal
	// UnitCost overrides the ingredient's current cost_per_unit on the record.
	UnitCost  *decimal.Decimal
	Ref       string
	Meta      map[string]any
	CreatedBy uuid.UUID
}

// MovementResult is the appended movement and the ingredient after it.
type MovementResult struct {
	Movement   database.StockMovement `json:"movement"`
	Ingredient database.Ingredient    `json:"ingredient"`
}

func validMovementType(t database.MovementType) bool {
	switch t {
	case database.MovementTypePurchase, database.MovementTypeSale, database.MovementTypeAdjustment,
		database.MovementTypeWaste, database.MovementTypeTransfer:
		return true
	}
	return false
}

// ApplyMovement is the only code path that changes ingredients.stock_qty.
// It locks the ingredient row, writes stock + qty rounded to three
// decimals, and appends the movement record. Stock may go negative.
func ApplyMovement(ctx context.Context, store LedgerStore, m Movement) (MovementResult, error) {
	if !validMovementType(m.Type) {
		return MovementResult{}, validationError("invalid movement type %q", m.Type)
	}

	ing, err := store.GetIngredientForUpdate(ctx, m.IngredientID)
	if err != nil {
		return MovementResult{}, lookupErr(err, "ingredient")
	}

	qty := money.Round3(m.Qty)
	ing, err = store.UpdateIngredientStock(ctx, database.UpdateIngredientStockParams{
		ID:       ing.ID,
		StockQty: money.Round3(ing.StockQty.Add(qty)),
	})
	if err != nil {
		return MovementResult{}, fmt.Errorf("update ingredient stock: %w", err)
	}

	unitCost := ing.CostPerUnit
	if m.UnitCost != nil {
		unitCost = *m.UnitCost
	}

	var meta []byte
	if m.Meta != nil {
		meta, err = json.Marshal(m.Meta)
		if err != nil {
			return MovementResult{}, fmt.Errorf("marshal movement meta: %w", err)
		}
	}

	mov, err := store.CreateStockMovement(ctx, database.CreateStockMovementParams{
		IngredientID: ing.ID,
		Type:         m.Type,
		Qty:          qty,
		UnitCost:     money.Round4(unitCost),
		Ref:          pgText(m.Ref),
		Meta:         meta,
		CreatedBy:    pgUUID(m.CreatedBy),
	})
	if err != nil {
		return MovementResult{}, fmt.Errorf("create stock movement: %w", err)
	}
	return MovementResult{Movement: mov, Ingredient: ing}, nil
}

// SaleRef is the movement reference for one sold order item.
func SaleRef(orderID, itemID uuid.UUID) string {
	return fmt.Sprintf("ORDER#%s/ITEM#%s", orderID, itemID)
}

type plannedDeduction struct {
	item database.OrderItem
	line database.RecipeLine
	qty  decimal.Decimal
}

// ApplySaleDeductionsForOrder consumes stock for every delivered item of the
// order that has not been deducted yet, and returns how many items it
// deducted. Each item is claimed by stamping stock_applied_at with a
// conditional update first; an item someone else already stamped is
// skipped, so repeated or concurrent calls never double-deduct.
//
// Movements for the whole order are applied in ingredient order, so two
// settlements touching the same ingredients always lock them in the same
// sequence.
func ApplySaleDeductionsForOrder(ctx context.Context, store SaleDeductionStore, orderID uuid.UUID, items []database.OrderItem, userID uuid.UUID) (int, error) {
	var plan []plannedDeduction
	deducted := 0

	for _, it := range items {
		if it.Status != database.OrderItemStatusDelivered || it.StockAppliedAt.Valid {
			continue
		}
		claimed, err := store.MarkOrderItemStockApplied(ctx, it.ID)
		if err != nil {
			return 0, fmt.Errorf("stamp item %s: %w", it.ID, err)
		}
		if claimed == 0 {
			continue
		}
		deducted++

		// Manual items have no recipe: stamped, nothing to consume.
		if !it.ProductID.Valid {
			continue
		}
		lines, err := store.ListRecipeLines(ctx, uuid.UUID(it.ProductID.Bytes))
		if err != nil {
			return 0, fmt.Errorf("list recipe lines: %w", err)
		}
		qty := decimal.NewFromInt32(it.Quantity)
		for _, l := range lines {
			need := l.QtyPerUnit.Mul(one.Add(l.WasteFactor)).Mul(qty)
			if need.IsZero() {
				continue
			}
			plan = append(plan, plannedDeduction{item: it, line: l, qty: need})
		}
	}

	sort.SliceStable(plan, func(i, j int) bool {
		a, b := plan[i].line.IngredientID, plan[j].line.IngredientID
		return bytes.Compare(a[:], b[:]) < 0
	})

	for _, p := range plan {
		_, err := ApplyMovement(ctx, store, Movement{
			IngredientID: p.line.IngredientID,
			Type:         database.MovementTypeSale,
			Qty:          p.qty.Neg(),
			Ref:          SaleRef(orderID, p.item.ID),
			Meta: map[string]any{
				"order_id":      orderID,
				"order_item_id": p.item.ID,
				"product_id":    uuid.UUID(p.item.ProductID.Bytes),
			},
			CreatedBy: userID,
		})
		if err != nil {
			return 0, fmt.Errorf("deduct item %s: %w", p.item.ID, err)
		}
	}
	return deducted, nil
}
