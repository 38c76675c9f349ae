package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/handler"
	"github.com/comanda-pos/api/internal/service"
	"github.com/comanda-pos/api/internal/units"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock InventoryServicer ---

type mockInventory struct {
	purchaseFn    func(ctx context.Context, req service.PurchaseRequest) (*service.MovementResult, error)
	adjustFn      func(ctx context.Context, req service.AdjustRequest) (*service.MovementResult, error)
	countFn       func(ctx context.Context, req service.CountRequest) (*service.MovementResult, error)
	setRecipeFn   func(ctx context.Context, productID uuid.UUID, lines []service.RecipeInput, userID uuid.UUID) (*service.ProductCost, error)
	productCostFn func(ctx context.Context, productID uuid.UUID) (*service.ProductCost, error)
	producibleFn  func(ctx context.Context, productID uuid.UUID) (*service.Producible, error)
	movementsFn   func(ctx context.Context, limit int32) ([]database.StockMovement, error)
	lowStockFn    func(ctx context.Context) ([]service.IngredientStock, error)
	receiveFn     func(ctx context.Context, req service.ReceiveNoteRequest) (*service.ReceiveResult, error)
	suggestFn     func(ctx context.Context, req service.SuggestPricesRequest) ([]service.PriceSuggestion, error)
}

func (m *mockInventory) Purchase(ctx context.Context, req service.PurchaseRequest) (*service.MovementResult, error) {
	return m.purchaseFn(ctx, req)
}

func (m *mockInventory) Adjust(ctx context.Context, req service.AdjustRequest) (*service.MovementResult, error) {
	return m.adjustFn(ctx, req)
}

func (m *mockInventory) Count(ctx context.Context, req service.CountRequest) (*service.MovementResult, error) {
	return m.countFn(ctx, req)
}

func (m *mockInventory) SetRecipe(ctx context.Context, productID uuid.UUID, lines []service.RecipeInput, userID uuid.UUID) (*service.ProductCost, error) {
	return m.setRecipeFn(ctx, productID, lines, userID)
}

func (m *mockInventory) ProductCost(ctx context.Context, productID uuid.UUID) (*service.ProductCost, error) {
	return m.productCostFn(ctx, productID)
}

func (m *mockInventory) Producible(ctx context.Context, productID uuid.UUID) (*service.Producible, error) {
	return m.producibleFn(ctx, productID)
}

func (m *mockInventory) Movements(ctx context.Context, limit int32) ([]database.StockMovement, error) {
	return m.movementsFn(ctx, limit)
}

func (m *mockInventory) LowStock(ctx context.Context) ([]service.IngredientStock, error) {
	return m.lowStockFn(ctx)
}

func (m *mockInventory) ReceiveNote(ctx context.Context, req service.ReceiveNoteRequest) (*service.ReceiveResult, error) {
	return m.receiveFn(ctx, req)
}

func (m *mockInventory) SuggestPrices(ctx context.Context, req service.SuggestPricesRequest) ([]service.PriceSuggestion, error) {
	return m.suggestFn(ctx, req)
}

func inventoryRouter(m *mockInventory) http.Handler {
	return mount("/inventory", handler.NewInventoryHandler(m, nopLog()).RegisterRoutes)
}

func TestInventory_Purchase_LocaleQuantities(t *testing.T) {
	ingredientID := uuid.New()
	var got service.PurchaseRequest
	m := &mockInventory{purchaseFn: func(_ context.Context, req service.PurchaseRequest) (*service.MovementResult, error) {
		got = req
		return &service.MovementResult{Movement: database.StockMovement{Type: database.MovementTypePurchase}}, nil
	}}

	rr := call(t, inventoryRouter(m), "manager", http.MethodPost, "/inventory/purchase", map[string]any{
		"ingredient_id": ingredientID.String(),
		"qty":           "1.234,56",
		"uom":           "kg",
		"unit_cost":     "12,5",
		"cost_uom":      "kg",
		"ref":           "inv-0042",
		"meta":          map[string]any{"supplier": "Feria"},
	})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, ingredientID, got.IngredientID)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(got.Qty), got.Qty.String())
	assert.True(t, decimal.RequireFromString("12.5").Equal(got.UnitCost), got.UnitCost.String())
	assert.Equal(t, "kg", got.UOM)
	assert.Equal(t, "inv-0042", got.Ref)
	assert.Equal(t, "Feria", got.Meta["supplier"])
	assert.Equal(t, testUserID, got.UserID)
}

func TestInventory_StockRoomNeedsManager(t *testing.T) {
	m := &mockInventory{}
	h := inventoryRouter(m)

	tests := []struct {
		method, path string
	}{
		{http.MethodPost, "/inventory/purchase"},
		{http.MethodPost, "/inventory/adjust"},
		{http.MethodPost, "/inventory/count"},
		{http.MethodPost, "/inventory/receive"},
		{http.MethodPut, "/inventory/products/" + uuid.NewString() + "/recipe"},
		{http.MethodGet, "/inventory/movements"},
		{http.MethodGet, "/inventory/low-stock"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := call(t, h, "waiter", tt.method, tt.path, map[string]any{})
			assert.Equal(t, http.StatusForbidden, rr.Code)
		})
	}
}

func TestInventory_Purchase_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"missing ingredient", map[string]any{"qty": "1", "unit_cost": "1"}, "ingredient_id"},
		{"bad qty", map[string]any{"ingredient_id": uuid.NewString(), "qty": "a lot", "unit_cost": "1"}, "qty"},
		{"missing cost", map[string]any{"ingredient_id": uuid.NewString(), "qty": "1"}, "unit_cost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockInventory{purchaseFn: func(context.Context, service.PurchaseRequest) (*service.MovementResult, error) {
				t.Fatal("service should not be called")
				return nil, nil
			}}

			rr := call(t, inventoryRouter(m), "admin", http.MethodPost, "/inventory/purchase", tt.body)

			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Contains(t, decodeBody(t, rr)["fields"], tt.field)
		})
	}
}

func TestInventory_Purchase_UnitErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"unknown unit", fmt.Errorf("%w: %q", units.ErrUnknownUnit, "cup"), "UNKNOWN_UNIT"},
		{"incompatible", fmt.Errorf("%w: %q is not convertible to g", units.ErrIncompatibleUnit, "ml"), "INCOMPATIBLE_UNIT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockInventory{purchaseFn: func(context.Context, service.PurchaseRequest) (*service.MovementResult, error) {
				return nil, tt.err
			}}

			rr := call(t, inventoryRouter(m), "manager", http.MethodPost, "/inventory/purchase",
				map[string]any{"ingredient_id": uuid.NewString(), "qty": "1", "unit_cost": "1", "uom": "cup"})

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.wantCode, decodeBody(t, rr)["code"])
		})
	}
}

func TestInventory_AdjustAndCount(t *testing.T) {
	ingredientID := uuid.New()
	var gotAdjust service.AdjustRequest
	var gotCount service.CountRequest
	m := &mockInventory{
		adjustFn: func(_ context.Context, req service.AdjustRequest) (*service.MovementResult, error) {
			gotAdjust = req
			return &service.MovementResult{}, nil
		},
		countFn: func(_ context.Context, req service.CountRequest) (*service.MovementResult, error) {
			gotCount = req
			return &service.MovementResult{}, nil
		},
	}
	h := inventoryRouter(m)

	rr := call(t, h, "manager", http.MethodPost, "/inventory/adjust",
		map[string]any{"ingredient_id": ingredientID.String(), "qty": "-250", "uom": "g", "ref": "broken jar"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "-250", gotAdjust.Qty.String())
	assert.Equal(t, "broken jar", gotAdjust.Ref)

	rr = call(t, h, "manager", http.MethodPost, "/inventory/count",
		map[string]any{"ingredient_id": ingredientID.String(), "target_qty": "3,5", "uom": "kg"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "3.5", gotCount.TargetQty.String())
	assert.Equal(t, ingredientID, gotCount.IngredientID)
}

func TestInventory_SetRecipe(t *testing.T) {
	productID, flour, oil := uuid.New(), uuid.New(), uuid.New()
	var got []service.RecipeInput
	m := &mockInventory{setRecipeFn: func(_ context.Context, id uuid.UUID, lines []service.RecipeInput, userID uuid.UUID) (*service.ProductCost, error) {
		assert.Equal(t, productID, id)
		assert.Equal(t, testUserID, userID)
		got = lines
		return &service.ProductCost{ProductID: id, Cost: decimal.RequireFromString("1.75")}, nil
	}}

	rr := call(t, inventoryRouter(m), "manager", http.MethodPut, "/inventory/products/"+productID.String()+"/recipe", map[string]any{
		"lines": []map[string]any{
			{"ingredient_id": flour.String(), "qty": "0,25", "uom": "kg", "waste_factor": "0.05"},
			{"ingredient_id": oil.String(), "qty": "15", "uom": "ml"},
		},
	})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, got, 2)
	assert.Equal(t, flour, got[0].IngredientID)
	assert.Equal(t, "0.25", got[0].Qty.String())
	assert.Equal(t, "kg", got[0].UOM)
	assert.Equal(t, "0.05", got[0].WasteFactor.String())
	assert.True(t, got[1].WasteFactor.IsZero())
	assert.Equal(t, "1.75", decodeBody(t, rr)["cost"])
}

func TestInventory_SetRecipe_EmptyClears(t *testing.T) {
	m := &mockInventory{setRecipeFn: func(_ context.Context, _ uuid.UUID, lines []service.RecipeInput, _ uuid.UUID) (*service.ProductCost, error) {
		assert.Empty(t, lines)
		return &service.ProductCost{}, nil
	}}

	rr := call(t, inventoryRouter(m), "admin", http.MethodPut, "/inventory/products/"+uuid.NewString()+"/recipe", map[string]any{"lines": []any{}})

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestInventory_CostAndProducible_AnyRole(t *testing.T) {
	productID := uuid.New()
	m := &mockInventory{
		productCostFn: func(_ context.Context, id uuid.UUID) (*service.ProductCost, error) {
			return &service.ProductCost{ProductID: id, Cost: decimal.RequireFromString("3.2")}, nil
		},
		producibleFn: func(_ context.Context, id uuid.UUID) (*service.Producible, error) {
			return &service.Producible{ProductID: id, Units: 7}, nil
		},
	}
	h := inventoryRouter(m)

	rr := call(t, h, "waiter", http.MethodGet, "/inventory/products/"+productID.String()+"/cost", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "3.2", decodeBody(t, rr)["cost"])

	rr = call(t, h, "kitchen", http.MethodGet, "/inventory/products/"+productID.String()+"/producible", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.EqualValues(t, 7, decodeBody(t, rr)["units"])
}

func TestInventory_ProductCost_NotFound(t *testing.T) {
	m := &mockInventory{productCostFn: func(context.Context, uuid.UUID) (*service.ProductCost, error) {
		return nil, service.ErrNotFound
	}}

	rr := call(t, inventoryRouter(m), "waiter", http.MethodGet, "/inventory/products/"+uuid.NewString()+"/cost", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInventory_Lists(t *testing.T) {
	var gotLimit int32
	m := &mockInventory{
		movementsFn: func(_ context.Context, limit int32) ([]database.StockMovement, error) {
			gotLimit = limit
			return nil, nil
		},
		lowStockFn: func(context.Context) ([]service.IngredientStock, error) {
			return []service.IngredientStock{{
				Ingredient:  database.Ingredient{Name: "Flour", Unit: "g"},
				DisplayQty:  decimal.RequireFromString("1.2"),
				DisplayUnit: "kg",
			}}, nil
		},
	}
	h := inventoryRouter(m)

	rr := call(t, h, "manager", http.MethodGet, "/inventory/movements?limit=20", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
	assert.EqualValues(t, 20, gotLimit)

	rr = call(t, h, "manager", http.MethodGet, "/inventory/low-stock", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"display_unit":"kg"`)
	assert.Contains(t, rr.Body.String(), `"name":"Flour"`)
}

func TestInventory_Receive(t *testing.T) {
	var got service.ReceiveNoteRequest
	m := &mockInventory{receiveFn: func(_ context.Context, req service.ReceiveNoteRequest) (*service.ReceiveResult, error) {
		got = req
		res := &service.ReceiveResult{Lines: []service.ReceivedLine{}, Warnings: []string{}}
		if req.Apply {
			res.Applied = 1
		}
		return res, nil
	}}
	h := inventoryRouter(m)

	rr := call(t, h, "manager", http.MethodPost, "/inventory/receive",
		map[string]any{"text": "tomate perita 5kg $4.500", "ref": "REM-12"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.False(t, got.Apply)
	assert.Equal(t, "REM-12", got.Ref)
	assert.Equal(t, testUserID, got.UserID)
	assert.JSONEq(t, `{"lines":[],"warnings":[],"applied":0}`, rr.Body.String())

	rr = call(t, h, "manager", http.MethodPost, "/inventory/receive",
		map[string]any{"text": "tomate perita 5kg $4.500", "apply": true})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.True(t, got.Apply)
}

func TestInventory_Receive_Errors(t *testing.T) {
	m := &mockInventory{receiveFn: func(context.Context, service.ReceiveNoteRequest) (*service.ReceiveResult, error) {
		return nil, fmt.Errorf("line 2: %w", units.ErrIncompatibleUnit)
	}}
	h := inventoryRouter(m)

	rr := call(t, h, "manager", http.MethodPost, "/inventory/receive", map[string]any{"ref": "x"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["fields"], "text")

	rr = call(t, h, "manager", http.MethodPost, "/inventory/receive", map[string]any{"text": "x", "apply": true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INCOMPATIBLE_UNIT", decodeBody(t, rr)["code"])
}

func TestInventory_SuggestPrices(t *testing.T) {
	productID := uuid.New()
	var got service.SuggestPricesRequest
	m := &mockInventory{suggestFn: func(_ context.Context, req service.SuggestPricesRequest) ([]service.PriceSuggestion, error) {
		got = req
		return []service.PriceSuggestion{{
			Type:           "catalog",
			ProductID:      &productID,
			Name:           "Burger",
			UnitCost:       decimal.RequireFromString("650"),
			SuggestedPrice: decimal.RequireFromString("1599.99"),
			Method:         service.PricingMethod{Kind: "target_margin", Value: decimal.RequireFromString("0.6")},
			Rounding:       service.PriceRounding{RoundTo: decimal.NewFromInt(100), Psychological: true},
		}}, nil
	}}

	rr := call(t, inventoryRouter(m), "waiter", http.MethodPost, "/inventory/pricing/suggestions", map[string]any{
		"product_ids":   []string{productID.String()},
		"target_margin": "0.6",
		"round_to":      100,
		"psychological": true,
	})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []uuid.UUID{productID}, got.ProductIDs)
	assert.Nil(t, got.Markup)
	require.NotNil(t, got.TargetMargin)
	assert.True(t, decimal.RequireFromString("0.6").Equal(*got.TargetMargin))
	assert.True(t, decimal.NewFromInt(100).Equal(got.RoundTo))
	assert.True(t, got.Psychological)
	assert.Contains(t, rr.Body.String(), `"suggested_price":"1599.99"`)
	assert.Contains(t, rr.Body.String(), `"kind":"target_margin"`)
}

func TestInventory_SuggestPrices_ManualItems(t *testing.T) {
	var got service.SuggestPricesRequest
	m := &mockInventory{suggestFn: func(_ context.Context, req service.SuggestPricesRequest) ([]service.PriceSuggestion, error) {
		got = req
		return []service.PriceSuggestion{}, nil
	}}

	rr := call(t, inventoryRouter(m), "manager", http.MethodPost, "/inventory/pricing/suggestions", map[string]any{
		"manual_items": []map[string]any{{"item_name": "Tasting menu", "unit_cost": "1.234,5"}},
		"markup":       "0.5",
	})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, got.Manual, 1)
	assert.Equal(t, "Tasting menu", got.Manual[0].Name)
	assert.True(t, decimal.RequireFromString("1234.5").Equal(got.Manual[0].UnitCost))
	require.NotNil(t, got.Markup)
	assert.True(t, got.RoundTo.IsZero())
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestInventory_SuggestPrices_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"bad product id", map[string]any{"product_ids": []string{"x"}, "markup": "1"}, "product_ids[0]"},
		{"odd round_to", map[string]any{"product_ids": []string{uuid.NewString()}, "markup": "1", "round_to": 3}, "round_to"},
		{"bad markup", map[string]any{"product_ids": []string{uuid.NewString()}, "markup": "lots"}, "markup"},
		{"manual without cost", map[string]any{"manual_items": []map[string]any{{"item_name": "Cake"}}, "markup": "1"}, "manual_items[0].unit_cost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockInventory{suggestFn: func(context.Context, service.SuggestPricesRequest) ([]service.PriceSuggestion, error) {
				t.Fatal("service should not be called")
				return nil, nil
			}}

			rr := call(t, inventoryRouter(m), "manager", http.MethodPost, "/inventory/pricing/suggestions", tt.body)

			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Contains(t, decodeBody(t, rr)["fields"], tt.field)
		})
	}

	m := &mockInventory{suggestFn: func(context.Context, service.SuggestPricesRequest) ([]service.PriceSuggestion, error) {
		return nil, &service.Error{Code: service.CodeValidation, Message: "exactly one of markup or target_margin is required"}
	}}
	rr := call(t, inventoryRouter(m), "manager", http.MethodPost, "/inventory/pricing/suggestions",
		map[string]any{"product_ids": []string{uuid.NewString()}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION", decodeBody(t, rr)["code"])
}
