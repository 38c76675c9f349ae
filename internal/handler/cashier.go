package handler

import (
	"context"
	"net/http"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	mw "github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/money"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementServicer takes money for orders.
// Satisfied by *service.SettlementService; narrow interface for testability.
type SettlementServicer interface {
	Settle(ctx context.Context, req service.SettleRequest) (*service.SettleResult, error)
	RecordRefund(ctx context.Context, req service.RefundRequest) (*database.Payment, error)
	Summary(ctx context.Context, orderID uuid.UUID) (*service.OrderSummary, error)
}

// CashServicer manages cash drawer sessions.
// Satisfied by *service.CashService; narrow interface for testability.
type CashServicer interface {
	Open(ctx context.Context, userID uuid.UUID, openingFloat decimal.Decimal) (*database.CashSession, error)
	Close(ctx context.Context, req service.CloseSessionRequest) (*database.CashSession, error)
	Summary(ctx context.Context, sessionID uuid.UUID) (*service.SessionSummary, error)
}

// CashierHandler serves the till: settlement, refunds and drawer sessions.
type CashierHandler struct {
	settle SettlementServicer
	cash   CashServicer
	log    *zap.Logger
}

func NewCashierHandler(settle SettlementServicer, cash CashServicer, log *zap.Logger) *CashierHandler {
	return &CashierHandler{settle: settle, cash: cash, log: log}
}

// RegisterRoutes is mounted at /cashier. Every route needs a till role;
// refunds need a manager.
func (h *CashierHandler) RegisterRoutes(r chi.Router) {
	r.Use(mw.RequireRole(enum.RoleCashier, enum.RoleManager, enum.RoleAdmin))

	r.Post("/orders/{id}/settle", h.Settle)
	r.Get("/orders/{id}/summary", h.OrderSummary)
	r.With(mw.RequireRole(enum.RoleManager, enum.RoleAdmin)).Post("/payments/{id}/refund", h.Refund)

	r.Post("/sessions/open", h.OpenSession)
	r.Post("/sessions/{id}/close", h.CloseSession)
	r.Get("/sessions/{id}/summary", h.SessionSummary)
}

// --- Request / Response types ---

type settleRequest struct {
	SessionID          string               `json:"session_id" validate:"omitempty,uuid"`
	DiscountTotal      string               `json:"discount_total" validate:"omitempty,decimal"`
	ServiceTotal       string               `json:"service_total" validate:"omitempty,decimal"`
	RequireFullPayment *bool                `json:"require_full_payment"`
	Payments           []paymentLineRequest `json:"payments" validate:"omitempty,max=20,dive"`
}

type paymentLineRequest struct {
	Method string `json:"method" validate:"required,oneof=cash card mp_link mp_point transfer other"`
	Amount string `json:"amount" validate:"required,decimal"`
	Ref    string `json:"ref" validate:"max=100"`
}

type refundRequest struct {
	Amount string `json:"amount" validate:"required,decimal"`
	Ref    string `json:"ref" validate:"max=100"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type openSessionRequest struct {
	OpeningFloat string `json:"opening_float" validate:"omitempty,decimal"`
}

type closeSessionRequest struct {
	CountedTotal string `json:"counted_total" validate:"required,decimal"`
	Notes        string `json:"notes" validate:"max=500"`
}

// settleResponse adds the money figures as fixed two-decimal strings.
type settleResponse struct {
	*service.SettleResult
	DueText    string `json:"due_text"`
	PaidText   string `json:"paid_text"`
	ChangeText string `json:"change_text"`
}

// --- Handlers ---

// Settle handles POST /cashier/orders/{id}/settle. require_full_payment
// defaults to true.
func (h *CashierHandler) Settle(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req settleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	full := true
	if req.RequireFullPayment != nil {
		full = *req.RequireFullPayment
	}
	payments := make([]service.PaymentLine, len(req.Payments))
	for i, p := range req.Payments {
		payments[i] = service.PaymentLine{
			Method: database.PaymentMethod(p.Method),
			Amount: amount(p.Amount),
			Ref:    p.Ref,
		}
	}

	res, err := h.settle.Settle(r.Context(), service.SettleRequest{
		OrderID:            orderID,
		UserID:             userID,
		SessionID:          optionalUUID(req.SessionID),
		DiscountTotal:      amount(req.DiscountTotal),
		ServiceTotal:       amount(req.ServiceTotal),
		Payments:           payments,
		RequireFullPayment: full,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if res.Payments == nil {
		res.Payments = []database.Payment{}
	}
	writeJSON(w, http.StatusOK, settleResponse{
		SettleResult: res,
		DueText:      money.Format(res.Due),
		PaidText:     money.Format(res.Paid),
		ChangeText:   money.Format(res.Change),
	})
}

// OrderSummary handles GET /cashier/orders/{id}/summary.
func (h *CashierHandler) OrderSummary(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	sum, err := h.settle.Summary(r.Context(), orderID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Refund handles POST /cashier/payments/{id}/refund.
func (h *CashierHandler) Refund(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	paymentID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req refundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	refund, err := h.settle.RecordRefund(r.Context(), service.RefundRequest{
		PaymentID: paymentID,
		Amount:    amount(req.Amount),
		Ref:       req.Ref,
		Reason:    req.Reason,
		UserID:    userID,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, refund)
}

// OpenSession handles POST /cashier/sessions/open.
func (h *CashierHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req openSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	sess, err := h.cash.Open(r.Context(), userID, amount(req.OpeningFloat))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// CloseSession handles POST /cashier/sessions/{id}/close.
func (h *CashierHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	sessionID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req closeSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	sess, err := h.cash.Close(r.Context(), service.CloseSessionRequest{
		SessionID:    sessionID,
		CountedTotal: amount(req.CountedTotal),
		Notes:        req.Notes,
		UserID:       userID,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// SessionSummary handles GET /cashier/sessions/{id}/summary.
func (h *CashierHandler) SessionSummary(w http.ResponseWriter, r *http.Request) {
	sessionID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	sum, err := h.cash.Summary(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
