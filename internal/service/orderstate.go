package service

import (
	"context"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DeriveOrderStatus maps item statuses onto the order: every item delivered
// makes it delivered, every item ready makes it ready, anything else is
// open. ok is false for an order without items, which keeps its status.
func DeriveOrderStatus(items []database.OrderItem) (status database.OrderStatus, ok bool) {
	if len(items) == 0 {
		return "", false
	}
	var ready, delivered int
	for _, it := range items {
		switch it.Status {
		case database.OrderItemStatusReady:
			ready++
		case database.OrderItemStatusDelivered:
			delivered++
		}
	}
	switch len(items) {
	case delivered:
		return database.OrderStatusDelivered, true
	case ready:
		return database.OrderStatusReady, true
	}
	return database.OrderStatusOpen, true
}

type OrderStateStore interface {
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
}

// RecomputeOrderState re-derives the order's status from its items and
// writes it only when it differs. Closed and void orders are left alone.
func RecomputeOrderState(ctx context.Context, store OrderStateStore, order database.Order) (database.Order, error) {
	if order.Status.IsTerminal() {
		return order, nil
	}
	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return order, fmt.Errorf("list order items: %w", err)
	}
	next, ok := DeriveOrderStatus(items)
	if !ok || next == order.Status {
		return order, nil
	}
	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{ID: order.ID, Status: next})
	if err != nil {
		return order, fmt.Errorf("update order status: %w", err)
	}
	return updated, nil
}

// Totals is the money side of an order.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount_total"`
	Service  decimal.Decimal `json:"service_total"`
	Grand    decimal.Decimal `json:"grand_total"`
}

// ComputeTotals sums unit_price × quantity over billable items. Void items
// are not billed.
func ComputeTotals(items []database.OrderItem, discount, service decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Status == database.OrderItemStatusVoid {
			continue
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt32(it.Quantity)))
	}
	subtotal = money.Round2(subtotal)
	discount = money.Round2(discount)
	service = money.Round2(service)
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Service:  service,
		Grand:    money.GrandTotal(subtotal, discount, service),
	}
}

type totalsStore interface {
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)
}

// recalcTotals recomputes the subtotal from the current items, keeping the
// order's discount and service charge, and persists all four totals.
func recalcTotals(ctx context.Context, store totalsStore, order database.Order) (database.Order, error) {
	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return order, fmt.Errorf("list order items: %w", err)
	}
	return writeTotals(ctx, store, order, ComputeTotals(items, order.DiscountTotal, order.ServiceTotal))
}

func writeTotals(ctx context.Context, store totalsStore, order database.Order, t Totals) (database.Order, error) {
	updated, err := store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:            order.ID,
		Subtotal:      t.Subtotal,
		DiscountTotal: t.Discount,
		ServiceTotal:  t.Service,
		GrandTotal:    t.Grand,
	})
	if err != nil {
		return order, fmt.Errorf("update order totals: %w", err)
	}
	return updated, nil
}
