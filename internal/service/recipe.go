package service

import (
	"context"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// CostLine is one ingredient's share of a product's unit cost.
type CostLine struct {
	IngredientID  uuid.UUID       `json:"ingredient_id"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	QtyBase       decimal.Decimal `json:"qty_base"`
	WasteFactor   decimal.Decimal `json:"waste_factor"`
	CostPerUnit   decimal.Decimal `json:"cost_per_unit"`
	Cost          decimal.Decimal `json:"cost"`
	CostWithWaste decimal.Decimal `json:"cost_with_waste"`
}

// ProductCost is the ingredient cost of one unit of a product. Cost is the
// net recipe cost; CostWithWaste also charges each line's waste factor.
type ProductCost struct {
	ProductID     uuid.UUID       `json:"product_id"`
	Cost          decimal.Decimal `json:"cost"`
	CostWithWaste decimal.Decimal `json:"cost_with_waste"`
	Breakdown     []CostLine      `json:"breakdown"`
}

// ProductUnitCost sums qty_per_unit × cost_per_unit over the product's recipe.
// A product without a recipe costs zero.
func ProductUnitCost(ctx context.Context, store RecipeStore, productID uuid.UUID) (ProductCost, error) {
	lines, err := store.ListRecipeLines(ctx, productID)
	if err != nil {
		return ProductCost{}, fmt.Errorf("list recipe lines: %w", err)
	}

	pc := ProductCost{
		ProductID:     productID,
		Cost:          decimal.Zero,
		CostWithWaste: decimal.Zero,
		Breakdown:     make([]CostLine, 0, len(lines)),
	}
	for _, l := range lines {
		cost := l.QtyPerUnit.Mul(l.CostPerUnit)
		withWaste := l.QtyPerUnit.Mul(one.Add(l.WasteFactor)).Mul(l.CostPerUnit)
		pc.Cost = pc.Cost.Add(cost)
		pc.CostWithWaste = pc.CostWithWaste.Add(withWaste)
		pc.Breakdown = append(pc.Breakdown, CostLine{
			IngredientID:  l.IngredientID,
			Name:          l.IngredientName,
			Unit:          l.IngredientUnit,
			QtyBase:       l.QtyPerUnit,
			WasteFactor:   l.WasteFactor,
			CostPerUnit:   l.CostPerUnit,
			Cost:          money.Round4(cost),
			CostWithWaste: money.Round4(withWaste),
		})
	}
	pc.Cost = money.Round4(pc.Cost)
	pc.CostWithWaste = money.Round4(pc.CostWithWaste)
	return pc, nil
}

// ItemSource says where an order item's cost comes from.
type ItemSource interface {
	isItemSource()
}

// CatalogItem is costed from its product's recipe.
type CatalogItem struct {
	ProductID uuid.UUID
}

// ManualItem is a free-text line; its cost is the override, or zero.
type ManualItem struct {
	CostOverride decimal.NullDecimal
}

func (CatalogItem) isItemSource() {}
func (ManualItem) isItemSource()  {}

// SourceOf decodes the variant an item was given by NewItem.Source when it
// was created. The order_items check constraint keeps product_id and
// cost_override exclusive, so the stored row maps to exactly one variant.
func SourceOf(item database.OrderItem) ItemSource {
	if item.ProductID.Valid {
		return CatalogItem{ProductID: uuid.UUID(item.ProductID.Bytes)}
	}
	return ManualItem{CostOverride: item.CostOverride}
}

// CostCache memoizes product unit costs for the lifetime of one request.
// It is not safe for concurrent use and must not outlive the request: a
// recipe or ingredient cost change is only seen by a new cache.
type CostCache struct {
	store RecipeStore
	costs map[uuid.UUID]ProductCost
}

func NewCostCache(store RecipeStore) *CostCache {
	return &CostCache{store: store, costs: make(map[uuid.UUID]ProductCost)}
}

// Product returns the full cost breakdown of one unit of a product.
func (c *CostCache) Product(ctx context.Context, productID uuid.UUID) (ProductCost, error) {
	if pc, ok := c.costs[productID]; ok {
		return pc, nil
	}
	pc, err := ProductUnitCost(ctx, c.store, productID)
	if err != nil {
		return ProductCost{}, err
	}
	c.costs[productID] = pc
	return pc, nil
}

func (c *CostCache) UnitCost(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	pc, err := c.Product(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return pc.Cost, nil
}

// ItemUnitCost resolves the unit cost of either kind of item.
func (c *CostCache) ItemUnitCost(ctx context.Context, src ItemSource) (decimal.Decimal, error) {
	switch s := src.(type) {
	case CatalogItem:
		return c.UnitCost(ctx, s.ProductID)
	case ManualItem:
		if s.CostOverride.Valid {
			return s.CostOverride.Decimal, nil
		}
		return decimal.Zero, nil
	}
	return decimal.Zero, fmt.Errorf("unknown item source %T", src)
}

// ItemCost is the unit cost times the item's quantity.
func (c *CostCache) ItemCost(ctx context.Context, item database.OrderItem) (decimal.Decimal, error) {
	unit, err := c.ItemUnitCost(ctx, SourceOf(item))
	if err != nil {
		return decimal.Zero, err
	}
	return money.Round4(unit.Mul(decimal.NewFromInt32(item.Quantity))), nil
}

// ProducibleLine is how many units one ingredient allows.
type ProducibleLine struct {
	IngredientID uuid.UUID       `json:"ingredient_id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	NeedPerUnit  decimal.Decimal `json:"need_per_unit"`
	OnHand       decimal.Decimal `json:"on_hand"`
	Units        int64           `json:"units"`
	Unbounded    bool            `json:"unbounded"`
}

// Producible is how many units of a product current stock allows.
// Unbounded is set when no recipe line constrains production.
type Producible struct {
	ProductID uuid.UUID        `json:"product_id"`
	Unbounded bool             `json:"unbounded"`
	Units     int64            `json:"units"`
	Limiting  *ProducibleLine  `json:"limiting"`
	Breakdown []ProducibleLine `json:"breakdown"`
}

// ProducibleUnits computes min over recipe lines of
// floor(stock_qty / (qty_per_unit × (1 + waste_factor))). Negative stock
// yields zero, never a negative count.
func ProducibleUnits(ctx context.Context, store RecipeStore, productID uuid.UUID) (Producible, error) {
	lines, err := store.ListRecipeLines(ctx, productID)
	if err != nil {
		return Producible{}, fmt.Errorf("list recipe lines: %w", err)
	}

	p := Producible{ProductID: productID, Breakdown: make([]ProducibleLine, 0, len(lines))}
	limiting := -1
	for _, l := range lines {
		need := l.QtyPerUnit.Mul(one.Add(l.WasteFactor))
		pl := ProducibleLine{
			IngredientID: l.IngredientID,
			Name:         l.IngredientName,
			Unit:         l.IngredientUnit,
			NeedPerUnit:  need,
			OnHand:       l.StockQty,
		}
		if need.Sign() <= 0 {
			pl.Unbounded = true
		} else {
			pl.Units = l.StockQty.Div(need).Floor().IntPart()
			if pl.Units < 0 {
				pl.Units = 0
			}
			if limiting < 0 || pl.Units < p.Breakdown[limiting].Units {
				limiting = len(p.Breakdown)
			}
		}
		p.Breakdown = append(p.Breakdown, pl)
	}

	if limiting < 0 {
		p.Unbounded = true
		return p, nil
	}
	lim := p.Breakdown[limiting]
	p.Limiting = &lim
	p.Units = lim.Units
	return p, nil
}
