package handler

import (
	"context"
	"net/http"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	mw "github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InventoryServicer books stock movements and answers cost questions.
// Satisfied by *service.InventoryService; narrow interface for testability.
type InventoryServicer interface {
	Purchase(ctx context.Context, req service.PurchaseRequest) (*service.MovementResult, error)
	Adjust(ctx context.Context, req service.AdjustRequest) (*service.MovementResult, error)
	Count(ctx context.Context, req service.CountRequest) (*service.MovementResult, error)
	SetRecipe(ctx context.Context, productID uuid.UUID, lines []service.RecipeInput, userID uuid.UUID) (*service.ProductCost, error)
	ProductCost(ctx context.Context, productID uuid.UUID) (*service.ProductCost, error)
	Producible(ctx context.Context, productID uuid.UUID) (*service.Producible, error)
	Movements(ctx context.Context, limit int32) ([]database.StockMovement, error)
	LowStock(ctx context.Context) ([]service.IngredientStock, error)
	ReceiveNote(ctx context.Context, req service.ReceiveNoteRequest) (*service.ReceiveResult, error)
	SuggestPrices(ctx context.Context, req service.SuggestPricesRequest) ([]service.PriceSuggestion, error)
}

// InventoryHandler serves the stock room and the recipe costing screens.
type InventoryHandler struct {
	svc InventoryServicer
	log *zap.Logger
}

func NewInventoryHandler(svc InventoryServicer, log *zap.Logger) *InventoryHandler {
	return &InventoryHandler{svc: svc, log: log}
}

// RegisterRoutes is mounted at /inventory.
func (h *InventoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/products/{id}/cost", h.ProductCost)
	r.Get("/products/{id}/producible", h.Producible)
	r.Post("/pricing/suggestions", h.SuggestPrices)

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireRole(enum.RoleManager, enum.RoleAdmin))
		r.Post("/purchase", h.Purchase)
		r.Post("/adjust", h.Adjust)
		r.Post("/count", h.Count)
		r.Post("/receive", h.Receive)
		r.Put("/products/{id}/recipe", h.SetRecipe)
		r.Get("/movements", h.Movements)
		r.Get("/low-stock", h.LowStock)
	})
}

// --- Request types ---

// Quantities are strings so that "1.234,56" typed at the counter is
// accepted as well as "1234.56".
type purchaseRequest struct {
	IngredientID string         `json:"ingredient_id" validate:"required,uuid"`
	Qty          string         `json:"qty" validate:"required,qty"`
	UOM          string         `json:"uom" validate:"max=16"`
	UnitCost     string         `json:"unit_cost" validate:"required,qty"`
	CostUOM      string         `json:"cost_uom" validate:"max=16"`
	Ref          string         `json:"ref" validate:"max=100"`
	Meta         map[string]any `json:"meta"`
}

type adjustRequest struct {
	IngredientID string         `json:"ingredient_id" validate:"required,uuid"`
	Qty          string         `json:"qty" validate:"required,qty"`
	UOM          string         `json:"uom" validate:"max=16"`
	Ref          string         `json:"ref" validate:"max=100"`
	Meta         map[string]any `json:"meta"`
}

type countRequest struct {
	IngredientID string         `json:"ingredient_id" validate:"required,uuid"`
	TargetQty    string         `json:"target_qty" validate:"required,qty"`
	UOM          string         `json:"uom" validate:"max=16"`
	Ref          string         `json:"ref" validate:"max=100"`
	Meta         map[string]any `json:"meta"`
}

// receiveRequest is a delivery note as typed or pasted from a chat.
type receiveRequest struct {
	Text  string `json:"text" validate:"required,max=20000"`
	Ref   string `json:"ref" validate:"max=100"`
	Apply bool   `json:"apply"`
}

type setRecipeRequest struct {
	Lines []recipeLineRequest `json:"lines" validate:"omitempty,max=50,dive"`
}

type recipeLineRequest struct {
	IngredientID string `json:"ingredient_id" validate:"required,uuid"`
	Qty          string `json:"qty" validate:"required,qty"`
	UOM          string `json:"uom" validate:"max=16"`
	WasteFactor  string `json:"waste_factor" validate:"omitempty,qty"`
}

// suggestPricesRequest names catalog products or manual items. Which
// combinations are allowed is decided by the service.
type suggestPricesRequest struct {
	ProductIDs    []string             `json:"product_ids" validate:"omitempty,max=200,dive,uuid"`
	ManualItems   []manualPriceRequest `json:"manual_items" validate:"omitempty,max=200,dive"`
	Markup        string               `json:"markup" validate:"omitempty,decimal"`
	TargetMargin  string               `json:"target_margin" validate:"omitempty,decimal"`
	RoundTo       int64                `json:"round_to" validate:"omitempty,oneof=1 5 10 50 100"`
	Psychological bool                 `json:"psychological"`
}

type manualPriceRequest struct {
	ItemName string `json:"item_name" validate:"required,max=200"`
	UnitCost string `json:"unit_cost" validate:"required,qty"`
}

// --- Handlers ---

// Purchase handles POST /inventory/purchase.
func (h *InventoryHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.svc.Purchase(r.Context(), service.PurchaseRequest{
		IngredientID: uuid.MustParse(req.IngredientID),
		Qty:          quantity(req.Qty),
		UOM:          req.UOM,
		UnitCost:     quantity(req.UnitCost),
		CostUOM:      req.CostUOM,
		Ref:          req.Ref,
		Meta:         req.Meta,
		UserID:       userID,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Adjust handles POST /inventory/adjust.
func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.svc.Adjust(r.Context(), service.AdjustRequest{
		IngredientID: uuid.MustParse(req.IngredientID),
		Qty:          quantity(req.Qty),
		UOM:          req.UOM,
		Ref:          req.Ref,
		Meta:         req.Meta,
		UserID:       userID,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Count handles POST /inventory/count.
func (h *InventoryHandler) Count(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req countRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.svc.Count(r.Context(), service.CountRequest{
		IngredientID: uuid.MustParse(req.IngredientID),
		TargetQty:    quantity(req.TargetQty),
		UOM:          req.UOM,
		Ref:          req.Ref,
		Meta:         req.Meta,
		UserID:       userID,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Receive handles POST /inventory/receive. Without apply it previews the
// parsed lines and their matches.
func (h *InventoryHandler) Receive(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.svc.ReceiveNote(r.Context(), service.ReceiveNoteRequest{
		Text:   req.Text,
		Ref:    req.Ref,
		Apply:  req.Apply,
		UserID: userID,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	status := http.StatusOK
	if res.Applied > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// SetRecipe handles PUT /inventory/products/{id}/recipe. The lines replace
// the whole recipe; an empty list removes it.
func (h *InventoryHandler) SetRecipe(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	productID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req setRecipeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	lines := make([]service.RecipeInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = service.RecipeInput{
			IngredientID: uuid.MustParse(l.IngredientID),
			Qty:          quantity(l.Qty),
			UOM:          l.UOM,
			WasteFactor:  quantity(l.WasteFactor),
		}
	}
	cost, err := h.svc.SetRecipe(r.Context(), productID, lines, userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, cost)
}

// ProductCost handles GET /inventory/products/{id}/cost.
func (h *InventoryHandler) ProductCost(w http.ResponseWriter, r *http.Request) {
	productID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	cost, err := h.svc.ProductCost(r.Context(), productID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, cost)
}

// Producible handles GET /inventory/products/{id}/producible.
func (h *InventoryHandler) Producible(w http.ResponseWriter, r *http.Request) {
	productID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	p, err := h.svc.Producible(r.Context(), productID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SuggestPrices handles POST /inventory/pricing/suggestions.
func (h *InventoryHandler) SuggestPrices(w http.ResponseWriter, r *http.Request) {
	var req suggestPricesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	in := service.SuggestPricesRequest{
		RoundTo:       decimal.NewFromInt(req.RoundTo),
		Psychological: req.Psychological,
	}
	for _, id := range req.ProductIDs {
		in.ProductIDs = append(in.ProductIDs, uuid.MustParse(id))
	}
	for _, m := range req.ManualItems {
		in.Manual = append(in.Manual, service.ManualPriceInput{Name: m.ItemName, UnitCost: quantity(m.UnitCost)})
	}
	if req.Markup != "" {
		v := amount(req.Markup)
		in.Markup = &v
	}
	if req.TargetMargin != "" {
		v := amount(req.TargetMargin)
		in.TargetMargin = &v
	}

	out, err := h.svc.SuggestPrices(r.Context(), in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Movements handles GET /inventory/movements?limit=100.
func (h *InventoryHandler) Movements(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	moves, err := h.svc.Movements(r.Context(), int32(limit))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if moves == nil {
		moves = []database.StockMovement{}
	}
	writeJSON(w, http.StatusOK, moves)
}

// LowStock handles GET /inventory/low-stock.
func (h *InventoryHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.LowStock(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if items == nil {
		items = []service.IngredientStock{}
	}
	writeJSON(w, http.StatusOK, items)
}
