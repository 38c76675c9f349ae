package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/comanda-pos/api/internal/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	defaultRoundTo = decimal.NewFromInt(10)
	maxMargin      = decimal.RequireFromString("0.95")
	cents99        = decimal.RequireFromString("0.99")
)

// allowed price steps
var roundSteps = []int64{1, 5, 10, 50, 100}

// ManualPriceInput is a dish that is not in the catalog, priced from a
// cost the caller already knows.
type ManualPriceInput struct {
	Name     string
	UnitCost decimal.Decimal
}

// SuggestPricesRequest asks for sale prices from unit costs. Exactly one of
// ProductIDs or Manual, and exactly one of Markup or TargetMargin.
type SuggestPricesRequest struct {
	ProductIDs    []uuid.UUID
	Manual        []ManualPriceInput
	Markup        *decimal.Decimal
	TargetMargin  *decimal.Decimal
	RoundTo       decimal.Decimal
	Psychological bool
}

// PricingMethod echoes how the raw price was derived.
type PricingMethod struct {
	Kind  string          `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// PriceRounding echoes the rounding that was applied.
type PriceRounding struct {
	RoundTo       decimal.Decimal `json:"round_to"`
	Psychological bool            `json:"psychological"`
}

// PriceSuggestion is one priced line. Breakdown is only set for catalog
// products.
type PriceSuggestion struct {
	Type           string          `json:"type"`
	ProductID      *uuid.UUID      `json:"product_id"`
	Name           string          `json:"name"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	SuggestedPrice decimal.Decimal `json:"suggested_price"`
	Method         PricingMethod   `json:"method"`
	Rounding       PriceRounding   `json:"rounding"`
	Breakdown      []CostLine      `json:"breakdown,omitempty"`
}

// SuggestPrices prices catalog products from their recipe cost, or manual
// items from the given cost. Costs come from a single CostCache so a product
// listed twice is costed once.
func (s *InventoryService) SuggestPrices(ctx context.Context, req SuggestPricesRequest) ([]PriceSuggestion, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	method := req.method()
	rounding := PriceRounding{RoundTo: req.RoundTo, Psychological: req.Psychological}

	out := make([]PriceSuggestion, 0, len(req.ProductIDs)+len(req.Manual))
	err := s.tx(ctx, func(store Store) error {
		costs := NewCostCache(store)
		for i, id := range req.ProductIDs {
			product, err := store.GetProductForOrder(ctx, id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return validationError("product_ids[%d]: product not found", i)
				}
				return fmt.Errorf("get product: %w", err)
			}
			pc, err := costs.Product(ctx, product.ID)
			if err != nil {
				return err
			}
			pid := product.ID
			out = append(out, PriceSuggestion{
				Type:           "catalog",
				ProductID:      &pid,
				Name:           product.Name,
				UnitCost:       money.Round4(pc.Cost),
				SuggestedPrice: suggestPrice(pc.Cost, req),
				Method:         method,
				Rounding:       rounding,
				Breakdown:      pc.Breakdown,
			})
		}
		for _, m := range req.Manual {
			cost, err := costs.ItemUnitCost(ctx, ManualItem{CostOverride: decimal.NewNullDecimal(m.UnitCost)})
			if err != nil {
				return err
			}
			out = append(out, PriceSuggestion{
				Type:           "manual",
				Name:           m.Name,
				UnitCost:       money.Round4(cost),
				SuggestedPrice: suggestPrice(cost, req),
				Method:         method,
				Rounding:       rounding,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SuggestPricesRequest) normalize() error {
	if (len(r.ProductIDs) == 0) == (len(r.Manual) == 0) {
		return validationError("exactly one of product_ids or manual_items is required")
	}
	if (r.Markup == nil) == (r.TargetMargin == nil) {
		return validationError("exactly one of markup or target_margin is required")
	}
	if r.Markup != nil && r.Markup.IsNegative() {
		return validationError("markup must be >= 0")
	}
	if m := r.TargetMargin; m != nil && (m.IsNegative() || m.GreaterThan(maxMargin)) {
		return validationError("target_margin must be between 0 and %s", maxMargin)
	}
	for i, m := range r.Manual {
		if m.Name == "" {
			return validationError("manual_items[%d]: item_name is required", i)
		}
		if m.UnitCost.IsNegative() {
			return validationError("manual_items[%d]: unit_cost must be >= 0", i)
		}
	}
	if r.RoundTo.IsZero() {
		r.RoundTo = defaultRoundTo
	}
	for _, step := range roundSteps {
		if r.RoundTo.Equal(decimal.NewFromInt(step)) {
			return nil
		}
	}
	return validationError("round_to must be one of 1, 5, 10, 50, 100")
}

func (r SuggestPricesRequest) method() PricingMethod {
	if r.Markup != nil {
		return PricingMethod{Kind: "markup", Value: *r.Markup}
	}
	return PricingMethod{Kind: "target_margin", Value: *r.TargetMargin}
}

func suggestPrice(cost decimal.Decimal, r SuggestPricesRequest) decimal.Decimal {
	return roundPrice(priceFromCost(cost, r.Markup, r.TargetMargin), r.RoundTo, r.Psychological)
}

// priceFromCost is cost × (1 + markup) or cost / (1 − margin).
func priceFromCost(cost decimal.Decimal, markup, margin *decimal.Decimal) decimal.Decimal {
	switch {
	case markup != nil:
		return cost.Mul(one.Add(*markup))
	case margin != nil:
		return cost.Div(one.Sub(*margin))
	}
	return cost
}

// roundPrice snaps p to the nearest multiple of step, half up. A
// psychological price is never below one step and ends in .99 just under
// the rounded amount: 1200 becomes 1199.99.
func roundPrice(p, step decimal.Decimal, psychological bool) decimal.Decimal {
	r := p.Div(step).Round(0).Mul(step)
	if !psychological {
		return money.Round2(r)
	}
	r = decimal.Max(step, r)
	return money.Round2(r.Floor().Sub(one).Add(cents99))
}
