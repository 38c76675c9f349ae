package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	mw "github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KitchenServicer drives items through the kitchen.
// Satisfied by *service.KitchenService; narrow interface for testability.
type KitchenServicer interface {
	Advance(ctx context.Context, itemID, userID uuid.UUID) (*service.ItemTransition, error)
	SetStatus(ctx context.Context, itemID uuid.UUID, target database.OrderItemStatus, userID uuid.UUID) (*service.ItemTransition, error)
	FireOrder(ctx context.Context, orderID, userID uuid.UUID) (*service.FireResult, error)
	MarkDelivered(ctx context.Context, orderID, userID uuid.UUID) (*service.FireResult, error)
	Queue(ctx context.Context, station string, statuses []database.OrderItemStatus, limit int32) ([]database.StationQueueRow, error)
}

// KDSHandler serves the kitchen display screens.
type KDSHandler struct {
	svc KitchenServicer
	log *zap.Logger
}

func NewKDSHandler(svc KitchenServicer, log *zap.Logger) *KDSHandler {
	return &KDSHandler{svc: svc, log: log}
}

// RegisterRoutes is mounted at /kds.
func (h *KDSHandler) RegisterRoutes(r chi.Router) {
	managers := mw.RequireRole(enum.RoleManager, enum.RoleAdmin)

	r.Get("/{station}/queue", h.Queue)
	r.Post("/items/{id}/advance", h.Advance)
	r.With(managers).Post("/items/{id}/set-status", h.SetStatus)
	r.Post("/orders/{id}/fire", h.FireOrder)
	r.With(managers).Post("/orders/{id}/mark-delivered", h.MarkDelivered)
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new queued in_kitchen ready delivered void"`
}

// Queue handles GET /kds/{station}/queue?status=queued,in_kitchen&limit=50.
func (h *KDSHandler) Queue(w http.ResponseWriter, r *http.Request) {
	station := chi.URLParam(r, "station")
	var statuses []database.OrderItemStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, database.OrderItemStatus(s))
			}
		}
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	rows, err := h.svc.Queue(r.Context(), station, statuses, int32(limit))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if rows == nil {
		rows = []database.StationQueueRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// Advance handles POST /kds/items/{id}/advance.
func (h *KDSHandler) Advance(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	itemID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.svc.Advance(r.Context(), itemID, userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SetStatus handles POST /kds/items/{id}/set-status.
func (h *KDSHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	itemID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req setStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.svc.SetStatus(r.Context(), itemID, database.OrderItemStatus(req.Status), userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// FireOrder handles POST /kds/orders/{id}/fire.
func (h *KDSHandler) FireOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.svc.FireOrder)
}

// MarkDelivered handles POST /kds/orders/{id}/mark-delivered.
func (h *KDSHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.svc.MarkDelivered)
}

func (h *KDSHandler) orderAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, uuid.UUID) (*service.FireResult, error)) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := fn(r.Context(), orderID, userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if res.Fired == nil {
		res.Fired = []database.OrderItem{}
	}
	writeJSON(w, http.StatusOK, res)
}
