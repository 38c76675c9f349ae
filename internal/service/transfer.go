package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ItemMove asks for quantity units of an item to move to the new order.
type ItemMove struct {
	ItemID   uuid.UUID
	Quantity int32
}

// SplitRequest carves items off SourceOrderID into a new order. The new
// order sits on the source table unless TargetTableID is set.
type SplitRequest struct {
	SourceOrderID uuid.UUID
	TargetTableID *uuid.UUID
	Moves         []ItemMove
	Notes         string
	UserID        uuid.UUID
}

// SplitResult is both sides of a split after totals were recalculated.
type SplitResult struct {
	Source OrderDetail `json:"source"`
	Target OrderDetail `json:"target"`
}

// Transfer moves a whole order to another table. The target must be free of
// other active orders; the source table is released when nothing else
// remains on it.
func (s *OrderService) Transfer(ctx context.Context, orderID, targetTableID, userID uuid.UUID) (*database.Order, error) {
	return s.transfer(ctx, targetTableID, userID, func(store Store) (database.Order, error) {
		order, err := store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return order, lookupErr(err, "order")
		}
		return order, nil
	})
}

// TransferTable moves the active order seated at sourceTableID.
func (s *OrderService) TransferTable(ctx context.Context, sourceTableID, targetTableID, userID uuid.UUID) (*database.Order, error) {
	return s.transfer(ctx, targetTableID, userID, func(store Store) (database.Order, error) {
		active, err := store.GetActiveOrderByTable(ctx, sourceTableID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return active, invalidMove("source table has no active order")
			}
			return active, fmt.Errorf("get active order: %w", err)
		}
		order, err := store.GetOrderForUpdate(ctx, active.ID)
		if err != nil {
			return order, lookupErr(err, "order")
		}
		return order, nil
	})
}

func (s *OrderService) transfer(ctx context.Context, targetTableID, userID uuid.UUID, lockOrder func(Store) (database.Order, error)) (*database.Order, error) {
	var order database.Order
	err := s.tx(ctx, func(store Store) error {
		var err error
		if order, err = lockOrder(store); err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return ErrAlreadyClosed
		}
		if order.Status != database.OrderStatusOpen {
			return ErrOrderNotOpen
		}
		if order.TableID == targetTableID {
			return invalidMove("order is already on that table")
		}

		target, err := store.GetTableForUpdate(ctx, targetTableID)
		if err != nil {
			return lookupErr(err, "table")
		}
		if target.Status == database.TableStatusBlocked {
			return invalidMove("target table is blocked")
		}
		busy, err := store.CountActiveOrdersByTable(ctx, database.CountActiveOrdersByTableParams{
			TableID:        target.ID,
			ExcludeOrderID: pgUUID(order.ID),
		})
		if err != nil {
			return fmt.Errorf("count active orders: %w", err)
		}
		if busy > 0 {
			return ErrTableOccupied
		}

		sourceTable := order.TableID
		if order, err = store.MoveOrderToTable(ctx, database.MoveOrderToTableParams{ID: order.ID, TableID: target.ID}); err != nil {
			return fmt.Errorf("move order: %w", err)
		}
		if _, err := releaseTableIfIdle(ctx, store, sourceTable, order.ID); err != nil {
			return err
		}
		if err := occupyTable(ctx, store, target.ID); err != nil {
			return err
		}
		return audit(ctx, store, userID, enum.AuditOrderTransfer, "order", order.ID, map[string]any{
			"from_table_id": sourceTable,
			"to_table_id":   target.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	s.notifyOrder(ctx, enum.EventOrderUpdated, order, nil)
	return &order, nil
}

// Join moves every item of source into target and closes source with a
// note pointing at target. The source row is kept for the audit trail.
func (s *OrderService) Join(ctx context.Context, sourceID, targetID, userID uuid.UUID) (*OrderDetail, error) {
	if sourceID == targetID {
		return nil, invalidMove("cannot join an order with itself")
	}

	var detail OrderDetail
	var closed database.Order
	err := s.tx(ctx, func(store Store) error {
		// Lock in id order so two joins over the same pair cannot deadlock.
		first, second := sourceID, targetID
		if bytes.Compare(first[:], second[:]) > 0 {
			first, second = second, first
		}
		locked := make(map[uuid.UUID]database.Order, 2)
		for _, id := range []uuid.UUID{first, second} {
			o, err := store.GetOrderForUpdate(ctx, id)
			if err != nil {
				return lookupErr(err, "order")
			}
			locked[id] = o
		}
		source, target := locked[sourceID], locked[targetID]
		if source.Status.IsTerminal() || target.Status.IsTerminal() {
			return ErrAlreadyClosed
		}
		if source.Status != database.OrderStatusOpen || target.Status != database.OrderStatusOpen {
			return ErrOrderNotOpen
		}
		paid, err := store.CountPaymentsByOrder(ctx, source.ID)
		if err != nil {
			return fmt.Errorf("count payments: %w", err)
		}
		if paid > 0 {
			return ErrHasPayments
		}

		moved, err := store.MoveOrderItems(ctx, database.MoveOrderItemsParams{FromOrderID: source.ID, ToOrderID: target.ID})
		if err != nil {
			return fmt.Errorf("move order items: %w", err)
		}
		if _, err = writeTotals(ctx, store, source, Totals{}); err != nil {
			return err
		}
		if closed, err = store.CloseOrder(ctx, database.CloseOrderParams{
			ID:     source.ID,
			Status: database.OrderStatusClosed,
			Note:   pgText(fmt.Sprintf("[JOIN->%s]", target.ID)),
		}); err != nil {
			return fmt.Errorf("close joined order: %w", err)
		}
		if closed.TableID != target.TableID {
			if _, err := releaseTableIfIdle(ctx, store, closed.TableID, closed.ID); err != nil {
				return err
			}
		}

		if target, err = recalcTotals(ctx, store, target); err != nil {
			return err
		}
		if target, err = RecomputeOrderState(ctx, store, target); err != nil {
			return err
		}
		if err := audit(ctx, store, userID, enum.AuditOrderJoin, "order", target.ID, map[string]any{
			"source_order_id": source.ID,
			"target_order_id": target.ID,
			"moved_items":     moved,
		}); err != nil {
			return err
		}
		return s.loadDetail(ctx, store, target, &detail)
	})
	if err != nil {
		return nil, err
	}
	s.notifyOrder(ctx, enum.EventOrderClosed, closed, nil)
	s.notifyOrder(ctx, enum.EventOrderUpdated, detail.Order, nil)
	return &detail, nil
}

// Split opens a new order and moves the requested quantities into it. A
// move for an item's full quantity relocates the item; a partial move
// shrinks the source item and copies it, keeping its status and kitchen
// and stock stamps. Every move is validated before anything is written.
func (s *OrderService) Split(ctx context.Context, req SplitRequest) (*SplitResult, error) {
	if len(req.Moves) == 0 {
		return nil, validationError("moves are required")
	}
	want := make(map[uuid.UUID]int32, len(req.Moves))
	var order []uuid.UUID
	for i, m := range req.Moves {
		if m.Quantity <= 0 {
			return nil, validationError("moves[%d]: quantity must be > 0", i)
		}
		if _, ok := want[m.ItemID]; !ok {
			order = append(order, m.ItemID)
		}
		want[m.ItemID] += m.Quantity
	}

	var res SplitResult
	err := s.tx(ctx, func(store Store) error {
		source, err := store.GetOrderForUpdate(ctx, req.SourceOrderID)
		if err != nil {
			return lookupErr(err, "order")
		}
		if source.Status.IsTerminal() {
			return ErrAlreadyClosed
		}

		items, err := store.ListOrderItemsByOrderForUpdate(ctx, source.ID)
		if err != nil {
			return fmt.Errorf("lock order items: %w", err)
		}
		byID := make(map[uuid.UUID]database.OrderItem, len(items))
		for _, it := range items {
			byID[it.ID] = it
		}
		for _, id := range order {
			it, ok := byID[id]
			if !ok {
				return invalidMove(fmt.Sprintf("item %s does not belong to order %s", id, source.ID))
			}
			if want[id] > it.Quantity {
				return invalidMove(fmt.Sprintf("cannot move %d of item %s, only %d available", want[id], id, it.Quantity))
			}
		}

		tableID := source.TableID
		if req.TargetTableID != nil {
			tableID = *req.TargetTableID
		}
		table, err := store.GetTableForUpdate(ctx, tableID)
		if err != nil {
			return lookupErr(err, "table")
		}
		if table.Status == database.TableStatusBlocked {
			return invalidMove("target table is blocked")
		}

		notes := req.Notes
		if notes == "" {
			notes = fmt.Sprintf("[SPLIT<-%s]", source.ID)
		}
		target, err := store.CreateOrder(ctx, database.CreateOrderParams{
			TableID:  table.ID,
			WaiterID: source.WaiterID,
			Guests:   1,
			Notes:    pgText(notes),
		})
		if err != nil {
			return fmt.Errorf("create split order: %w", err)
		}

		moved := make([]map[string]any, 0, len(order))
		for _, id := range order {
			it, qty := byID[id], want[id]
			if qty == it.Quantity {
				if _, err := store.MoveOrderItem(ctx, database.MoveOrderItemParams{ID: it.ID, OrderID: target.ID}); err != nil {
					return fmt.Errorf("move order item: %w", err)
				}
			} else {
				if _, err := store.UpdateOrderItemQuantity(ctx, database.UpdateOrderItemQuantityParams{
					ID:       it.ID,
					Quantity: it.Quantity - qty,
				}); err != nil {
					return fmt.Errorf("shrink order item: %w", err)
				}
				if _, err := store.CreateOrderItem(ctx, copyItem(it, target.ID, qty)); err != nil {
					return fmt.Errorf("copy order item: %w", err)
				}
			}
			moved = append(moved, map[string]any{"order_item_id": id, "quantity": qty})
		}

		if source, err = recalcTotals(ctx, store, source); err != nil {
			return err
		}
		if source, err = RecomputeOrderState(ctx, store, source); err != nil {
			return err
		}
		if target, err = recalcTotals(ctx, store, target); err != nil {
			return err
		}
		if target, err = RecomputeOrderState(ctx, store, target); err != nil {
			return err
		}
		if err := occupyTable(ctx, store, table.ID); err != nil {
			return err
		}
		if err := audit(ctx, store, req.UserID, enum.AuditOrderSplit, "order", target.ID, map[string]any{
			"source_order_id": source.ID,
			"target_order_id": target.ID,
			"moved":           moved,
		}); err != nil {
			return err
		}

		if err := s.loadDetail(ctx, store, source, &res.Source); err != nil {
			return err
		}
		return s.loadDetail(ctx, store, target, &res.Target)
	})
	if err != nil {
		return nil, err
	}
	s.notifyOrder(ctx, enum.EventOrderUpdated, res.Source.Order, nil)
	s.notifyOrder(ctx, enum.EventOrderUpdated, res.Target.Order, nil)
	return &res, nil
}

func copyItem(it database.OrderItem, orderID uuid.UUID, qty int32) database.CreateOrderItemParams {
	modifiers := it.Modifiers
	if len(modifiers) == 0 {
		modifiers = []byte("[]")
	}
	return database.CreateOrderItemParams{
		OrderID:        orderID,
		ProductID:      pgtype.UUID{Bytes: it.ProductID.Bytes, Valid: it.ProductID.Valid},
		ItemName:       it.ItemName,
		Quantity:       qty,
		UnitPrice:      it.UnitPrice,
		Notes:          it.Notes,
		Station:        it.Station,
		Status:         normalizeItemStatus(it.Status),
		Modifiers:      modifiers,
		CostOverride:   it.CostOverride,
		StockAppliedAt: it.StockAppliedAt,
		FiredAt:        it.FiredAt,
	}
}
