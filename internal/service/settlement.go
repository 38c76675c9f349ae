package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementService takes money for orders and closes them.
type SettlementService struct {
	deps
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(pool TxBeginner, newStore NewStore, notifier Notifier, log *zap.Logger) *SettlementService {
	return &SettlementService{deps: newDeps(pool, newStore, notifier, log)}
}

// PaymentLine is one tender submitted with a settlement.
type PaymentLine struct {
	Method database.PaymentMethod
	Amount decimal.Decimal
	Ref    string
}

// SettleRequest is a cashier's settlement attempt. SessionID picks a
// specific open session (managers settling on someone's drawer); without
// it the caller's own open session is used.
type SettleRequest struct {
	OrderID            uuid.UUID
	UserID             uuid.UUID
	SessionID          *uuid.UUID
	DiscountTotal      decimal.Decimal
	ServiceTotal       decimal.Decimal
	Payments           []PaymentLine
	RequireFullPayment bool
}

// SettleResult reports what a settlement did. Due is zero once closed and
// Change is what was paid above the grand total.
type SettleResult struct {
	Order         database.Order     `json:"order"`
	Closed        bool               `json:"closed"`
	Due           decimal.Decimal    `json:"due"`
	Paid          decimal.Decimal    `json:"paid"`
	Change        decimal.Decimal    `json:"change"`
	Payments      []database.Payment `json:"payments"`
	ItemsDeducted int                `json:"items_deducted"`
	TableFreed    bool               `json:"table_freed"`
}

// RefundRequest records money returned against an earlier payment.
// A repeated Ref returns the refund already recorded under it.
type RefundRequest struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	Ref       string
	Reason    string
	UserID    uuid.UUID
}

// OrderSummary is the cashier's view of an order, including cost and margin
// from the recipe engine.
type OrderSummary struct {
	Order    database.Order       `json:"order"`
	Items    []database.OrderItem `json:"items"`
	Payments []database.Payment   `json:"payments"`
	Paid     decimal.Decimal      `json:"paid"`
	Due      decimal.Decimal      `json:"due"`
	Cost     decimal.Decimal      `json:"cost"`
	Margin   decimal.Decimal      `json:"margin"`
}

func validPaymentMethod(m database.PaymentMethod) bool {
	switch m {
	case database.PaymentMethodCash, database.PaymentMethodCard, database.PaymentMethodMPLink,
		database.PaymentMethodMPPoint, database.PaymentMethodTransfer, database.PaymentMethodOther:
		return true
	}
	return false
}

func validateSettle(req SettleRequest) error {
	if req.DiscountTotal.IsNegative() {
		return validationError("discount_total must be >= 0")
	}
	if req.ServiceTotal.IsNegative() {
		return validationError("service_total must be >= 0")
	}
	for i, p := range req.Payments {
		if !validPaymentMethod(p.Method) {
			return validationError("payments[%d]: invalid method %q", i, p.Method)
		}
		if money.Round2(p.Amount).Sign() <= 0 {
			return validationError("payments[%d]: amount must be > 0", i)
		}
	}
	return nil
}

// Settle recalculates the order's totals and records the submitted
// payments. With RequireFullPayment the order must have nothing left in
// the kitchen and the payments must cover the grand total; it is then
// closed, its stock deducted and its table released, all in the same
// transaction. A rejected settlement writes nothing.
func (s *SettlementService) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	if err := validateSettle(req); err != nil {
		return nil, err
	}

	var res SettleResult
	err := s.tx(ctx, func(store Store) error {
		order, err := store.GetOrderForUpdate(ctx, req.OrderID)
		if err != nil {
			return lookupErr(err, "order")
		}
		if order.Status.IsTerminal() {
			return ErrAlreadyClosed
		}
		items, err := store.ListOrderItemsByOrderForUpdate(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("lock order items: %w", err)
		}

		totals := ComputeTotals(items, req.DiscountTotal, req.ServiceTotal)
		if order, err = writeTotals(ctx, store, order, totals); err != nil {
			return err
		}

		already, err := store.SumPaymentsByOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("sum payments: %w", err)
		}
		submitted := decimal.Zero
		for _, p := range req.Payments {
			submitted = submitted.Add(money.Round2(p.Amount))
		}
		paid := money.Round2(already.Add(submitted))
		due := money.Round2(totals.Grand.Sub(paid))

		if req.RequireFullPayment {
			for _, it := range items {
				if it.Status != database.OrderItemStatusDelivered && it.Status != database.OrderItemStatusVoid {
					return ErrKitchenPending
				}
			}
			if money.Owed(due) {
				return insufficientPayment(due)
			}
		}

		if len(req.Payments) > 0 {
			session, err := s.openSession(ctx, store, req)
			if err != nil {
				return err
			}
			params := make([]database.CreatePaymentParams, 0, len(req.Payments))
			for _, p := range req.Payments {
				params = append(params, database.CreatePaymentParams{
					OrderID:   order.ID,
					SessionID: pgUUID(session.ID),
					UserID:    pgUUID(req.UserID),
					Method:    p.Method,
					Amount:    money.Round2(p.Amount),
					Ref:       pgText(p.Ref),
				})
			}
			if res.Payments, err = store.CreatePayments(ctx, params); err != nil {
				return fmt.Errorf("create payments: %w", err)
			}
		}

		if err := audit(ctx, store, req.UserID, enum.AuditOrderSettle, "order", order.ID, map[string]any{
			"grand_total":          totals.Grand,
			"submitted":            submitted,
			"paid":                 paid,
			"require_full_payment": req.RequireFullPayment,
		}); err != nil {
			return err
		}

		res.Paid = paid
		res.Due = money.FloorZero(due)
		res.Change = money.FloorZero(due.Neg())

		if req.RequireFullPayment {
			if order, err = store.CloseOrder(ctx, database.CloseOrderParams{
				ID:     order.ID,
				Status: database.OrderStatusClosed,
			}); err != nil {
				return fmt.Errorf("close order: %w", err)
			}
			if res.ItemsDeducted, err = ApplySaleDeductionsForOrder(ctx, store, order.ID, items, req.UserID); err != nil {
				return err
			}
			if res.TableFreed, err = releaseTableIfIdle(ctx, store, order.TableID, order.ID); err != nil {
				return err
			}
			if err := audit(ctx, store, req.UserID, enum.AuditOrderClose, "order", order.ID, map[string]any{
				"items_deducted": res.ItemsDeducted,
				"table_freed":    res.TableFreed,
			}); err != nil {
				return err
			}
			res.Closed = true
			res.Due = decimal.Zero
		}

		res.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order settled",
		zap.Stringer("order_id", res.Order.ID),
		zap.Bool("closed", res.Closed),
		zap.String("paid", money.Format(res.Paid)),
		zap.String("due", money.Format(res.Due)),
		zap.Int("payments", len(res.Payments)),
		zap.Int("items_deducted", res.ItemsDeducted),
	)
	if len(res.Payments) > 0 {
		s.notifier.OrderChanged(ctx, OrderEvent{
			Type:    enum.EventPaymentCreated,
			OrderID: res.Order.ID,
			TableID: res.Order.TableID,
			Status:  res.Order.Status,
		})
	}
	if res.Closed {
		s.notifier.OrderChanged(ctx, OrderEvent{
			Type:    enum.EventOrderClosed,
			OrderID: res.Order.ID,
			TableID: res.Order.TableID,
			Status:  res.Order.Status,
		})
		s.notifier.ReceiptRequested(ctx, Receipt{
			OrderID:    res.Order.ID,
			TableID:    res.Order.TableID,
			GrandTotal: res.Order.GrandTotal,
			Paid:       res.Paid,
		})
	}
	return &res, nil
}

// openSession finds the session the payments go to, locked for the rest
// of the transaction so it cannot close underneath them.
func (s *SettlementService) openSession(ctx context.Context, store CashStore, req SettleRequest) (database.CashSession, error) {
	var (
		session database.CashSession
		err     error
	)
	if req.SessionID != nil {
		session, err = store.GetCashSessionForUpdate(ctx, *req.SessionID)
	} else {
		session, err = store.GetOpenCashSessionByUserForUpdate(ctx, req.UserID)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return session, ErrNoOpenSession
	}
	if err != nil {
		return session, fmt.Errorf("get cash session: %w", err)
	}
	if session.Status != database.CashSessionStatusOpen {
		return session, ErrNoOpenSession
	}
	return session, nil
}

// RecordRefund appends a negative payment linked to the original one. The
// order is not reopened. Refunds never exceed what is left of the original.
func (s *SettlementService) RecordRefund(ctx context.Context, req RefundRequest) (*database.Payment, error) {
	amount := money.Round2(req.Amount)
	if amount.Sign() <= 0 {
		return nil, validationError("amount must be > 0")
	}

	var refund database.Payment
	err := s.tx(ctx, func(store Store) error {
		parent, err := store.GetPaymentForUpdate(ctx, req.PaymentID)
		if err != nil {
			return lookupErr(err, "payment")
		}
		if parent.Amount.Sign() <= 0 || parent.ParentPaymentID.Valid {
			return validationError("only positive payments can be refunded")
		}

		if req.Ref != "" {
			existing, err := store.GetRefundByRef(ctx, req.Ref)
			switch {
			case err == nil:
				if existing.ParentPaymentID.Bytes != parent.ID {
					return &Error{Code: CodeConflict, Message: "refund ref already used for another payment"}
				}
				refund = existing
				return nil
			case !errors.Is(err, pgx.ErrNoRows):
				return fmt.Errorf("get refund by ref: %w", err)
			}
		}

		if _, err := store.GetOrderForUpdate(ctx, parent.OrderID); err != nil {
			return lookupErr(err, "order")
		}
		refunded, err := store.SumRefundsByParent(ctx, parent.ID)
		if err != nil {
			return fmt.Errorf("sum refunds: %w", err)
		}
		// refunded is negative.
		left := parent.Amount.Add(refunded)
		if amount.GreaterThan(left) {
			return &Error{
				Code:    CodeRefundExceedsPayment,
				Message: fmt.Sprintf("refund of %s exceeds refundable %s", money.Format(amount), money.Format(left)),
			}
		}

		refund, err = store.CreatePayment(ctx, database.CreatePaymentParams{
			OrderID:         parent.OrderID,
			SessionID:       parent.SessionID,
			UserID:          pgUUID(req.UserID),
			Method:          parent.Method,
			Amount:          amount.Neg(),
			Ref:             pgText(req.Ref),
			ParentPaymentID: pgUUID(parent.ID),
		})
		if isUniqueViolation(err) {
			return &Error{Code: CodeConflict, Message: "refund ref already used"}
		}
		if err != nil {
			return fmt.Errorf("create refund: %w", err)
		}
		return audit(ctx, store, req.UserID, enum.AuditPaymentRefund, "payment", parent.ID, map[string]any{
			"refund_id": refund.ID,
			"amount":    amount,
			"reason":    req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// Summary totals an order's payments and prices its items at recipe cost.
func (s *SettlementService) Summary(ctx context.Context, orderID uuid.UUID) (*OrderSummary, error) {
	var sum OrderSummary
	err := s.tx(ctx, func(store Store) error {
		order, err := store.GetOrder(ctx, orderID)
		if err != nil {
			return lookupErr(err, "order")
		}
		items, err := store.ListOrderItemsByOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("list order items: %w", err)
		}
		payments, err := store.ListPaymentsByOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("list payments: %w", err)
		}

		paid := decimal.Zero
		for _, p := range payments {
			paid = paid.Add(p.Amount)
		}
		cache := NewCostCache(store)
		cost := decimal.Zero
		for _, it := range items {
			if it.Status == database.OrderItemStatusVoid {
				continue
			}
			c, err := cache.ItemCost(ctx, it)
			if err != nil {
				return err
			}
			cost = cost.Add(c)
		}

		sum = OrderSummary{
			Order:    order,
			Items:    items,
			Payments: payments,
			Paid:     money.Round2(paid),
			Cost:     money.Round2(cost),
		}
		if order.Status != database.OrderStatusVoid {
			sum.Due = money.FloorZero(money.Round2(order.GrandTotal.Sub(paid)))
		}
		sum.Margin = money.Round2(order.Subtotal.Sub(order.DiscountTotal).Sub(cost))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}
