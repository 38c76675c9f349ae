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
	"go.uber.org/zap"
)

// SalonServicer is the floor side of the order lifecycle.
// Satisfied by *service.OrderService; narrow interface for testability.
type SalonServicer interface {
	OpenTable(ctx context.Context, req service.OpenTableRequest) (*database.Order, error)
	AddItems(ctx context.Context, orderID uuid.UUID, items []service.NewItem, userID uuid.UUID) (*service.OrderDetail, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, req service.UpdateItemRequest, userID uuid.UUID) (*service.OrderDetail, error)
	DeleteItem(ctx context.Context, itemID, userID uuid.UUID) (*service.OrderDetail, error)
	VoidOrder(ctx context.Context, orderID uuid.UUID, reason string, userID uuid.UUID) (*database.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*service.OrderDetail, error)
	ListActive(ctx context.Context) ([]database.Order, error)
	Transfer(ctx context.Context, orderID, targetTableID, userID uuid.UUID) (*database.Order, error)
	TransferTable(ctx context.Context, sourceTableID, targetTableID, userID uuid.UUID) (*database.Order, error)
	Join(ctx context.Context, sourceID, targetID, userID uuid.UUID) (*service.OrderDetail, error)
	Split(ctx context.Context, req service.SplitRequest) (*service.SplitResult, error)
}

// SalonHandler serves waiters on the floor: tables, orders and their items.
type SalonHandler struct {
	svc SalonServicer
	log *zap.Logger
}

func NewSalonHandler(svc SalonServicer, log *zap.Logger) *SalonHandler {
	return &SalonHandler{svc: svc, log: log}
}

// RegisterRoutes is mounted at /salon.
func (h *SalonHandler) RegisterRoutes(r chi.Router) {
	managers := mw.RequireRole(enum.RoleManager, enum.RoleAdmin)
	tills := mw.RequireRole(enum.RoleManager, enum.RoleAdmin, enum.RoleCashier)

	r.Post("/tables/{id}/open", h.OpenTable)
	r.With(managers).Post("/tables/{id}/transfer", h.TransferTable)

	r.Get("/orders/active", h.ListActive)
	r.Get("/orders/{id}", h.Get)
	r.Post("/orders/{id}/items", h.AddItems)
	r.Patch("/orders/items/{itemId}", h.UpdateItem)
	r.Delete("/orders/items/{itemId}", h.DeleteItem)
	r.With(tills).Post("/orders/{id}/void", h.VoidOrder)
	r.With(managers).Post("/orders/{id}/transfer", h.Transfer)
	r.With(managers).Post("/orders/join", h.Join)
	r.With(tills).Post("/orders/split", h.Split)
}

// --- Request types ---

type openTableRequest struct {
	Guests int32  `json:"guests" validate:"gte=0,lte=100"`
	Notes  string `json:"notes" validate:"max=500"`
}

type addItemsRequest struct {
	Items []newItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

// newItemRequest is a catalog item when product_id is set, a manual item
// (name and unit_price) otherwise.
type newItemRequest struct {
	ProductID    string   `json:"product_id" validate:"omitempty,uuid"`
	OptionIDs    []string `json:"option_ids" validate:"omitempty,dive,uuid"`
	Name         string   `json:"name" validate:"required_without=ProductID,max=200"`
	UnitPrice    string   `json:"unit_price" validate:"required_without=ProductID,omitempty,decimal"`
	CostOverride string   `json:"cost_override" validate:"excluded_with=ProductID,omitempty,decimal"`
	Station      string   `json:"station" validate:"max=32"`
	Quantity     int32    `json:"quantity" validate:"required,gt=0,lte=999"`
	Notes        string   `json:"notes" validate:"max=500"`
}

type updateItemRequest struct {
	Quantity *int32  `json:"quantity" validate:"omitempty,gt=0,lte=999"`
	Notes    *string `json:"notes" validate:"omitempty,max=500"`
}

type voidOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type transferRequest struct {
	TargetTableID string `json:"target_table_id" validate:"required,uuid"`
}

type joinRequest struct {
	SourceOrderID string `json:"source_order_id" validate:"required,uuid"`
	TargetOrderID string `json:"target_order_id" validate:"required,uuid,nefield=SourceOrderID"`
}

type splitRequest struct {
	SourceOrderID string             `json:"source_order_id" validate:"required,uuid"`
	TargetTableID string             `json:"target_table_id" validate:"omitempty,uuid"`
	Notes         string             `json:"notes" validate:"max=500"`
	Moves         []splitMoveRequest `json:"moves" validate:"required,min=1,dive"`
}

type splitMoveRequest struct {
	ItemID   string `json:"item_id" validate:"required,uuid"`
	Quantity int32  `json:"quantity" validate:"required,gt=0"`
}

func (req newItemRequest) toService() service.NewItem {
	it := service.NewItem{
		ProductID: optionalUUID(req.ProductID),
		Name:      req.Name,
		UnitPrice: amount(req.UnitPrice),
		Station:   req.Station,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
	}
	for _, id := range req.OptionIDs {
		it.OptionIDs = append(it.OptionIDs, uuid.MustParse(id))
	}
	if req.CostOverride != "" {
		c := amount(req.CostOverride)
		it.CostOverride = &c
	}
	return it
}

// --- Handlers ---

// OpenTable handles POST /salon/tables/{id}/open.
func (h *SalonHandler) OpenTable(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	tableID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req openTableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	order, err := h.svc.OpenTable(r.Context(), service.OpenTableRequest{
		TableID:  tableID,
		WaiterID: userID,
		Guests:   req.Guests,
		Notes:    req.Notes,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// ListActive handles GET /salon/orders/active.
func (h *SalonHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListActive(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if orders == nil {
		orders = []database.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// Get handles GET /salon/orders/{id}.
func (h *SalonHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	detail, err := h.svc.Get(r.Context(), orderID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// AddItems handles POST /salon/orders/{id}/items.
func (h *SalonHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req addItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	items := make([]service.NewItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = it.toService()
	}
	detail, err := h.svc.AddItems(r.Context(), orderID, items, userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// UpdateItem handles PATCH /salon/orders/items/{itemId}.
func (h *SalonHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	itemID, err := urlUUID(r, "itemId")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.Quantity == nil && req.Notes == nil {
		writeError(w, r, h.log, badRequest("nothing to update"))
		return
	}

	detail, err := h.svc.UpdateItem(r.Context(), itemID, service.UpdateItemRequest{
		Quantity: req.Quantity,
		Notes:    req.Notes,
	}, userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// DeleteItem handles DELETE /salon/orders/items/{itemId}.
func (h *SalonHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	itemID, err := urlUUID(r, "itemId")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	detail, err := h.svc.DeleteItem(r.Context(), itemID, userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// VoidOrder handles POST /salon/orders/{id}/void.
func (h *SalonHandler) VoidOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req voidOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	order, err := h.svc.VoidOrder(r.Context(), orderID, req.Reason, userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Transfer handles POST /salon/orders/{id}/transfer.
func (h *SalonHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	order, err := h.svc.Transfer(r.Context(), orderID, uuid.MustParse(req.TargetTableID), userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// TransferTable handles POST /salon/tables/{id}/transfer: the open order of
// the table moves to the target table.
func (h *SalonHandler) TransferTable(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	tableID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	order, err := h.svc.TransferTable(r.Context(), tableID, uuid.MustParse(req.TargetTableID), userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Join handles POST /salon/orders/join.
func (h *SalonHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	detail, err := h.svc.Join(r.Context(), uuid.MustParse(req.SourceOrderID), uuid.MustParse(req.TargetOrderID), userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Split handles POST /salon/orders/split.
func (h *SalonHandler) Split(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req splitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	moves := make([]service.ItemMove, len(req.Moves))
	for i, m := range req.Moves {
		moves[i] = service.ItemMove{ItemID: uuid.MustParse(m.ItemID), Quantity: m.Quantity}
	}
	res, err := h.svc.Split(r.Context(), service.SplitRequest{
		SourceOrderID: uuid.MustParse(req.SourceOrderID),
		TargetTableID: optionalUUID(req.TargetTableID),
		Moves:         moves,
		Notes:         req.Notes,
		UserID:        userID,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
