package service

import (
	"context"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultQueueLimit = 100
	maxQueueLimit     = 500
)

// KitchenService drives order items through the kitchen.
type KitchenService struct {
	deps
}

// NewKitchenService creates a new KitchenService.
func NewKitchenService(pool TxBeginner, newStore NewStore, notifier Notifier, log *zap.Logger) *KitchenService {
	return &KitchenService{deps: newDeps(pool, newStore, notifier, log)}
}

// ItemTransition is the result of moving one item.
type ItemTransition struct {
	Item  database.OrderItem       `json:"item"`
	From  database.OrderItemStatus `json:"from"`
	Order database.Order           `json:"order"`
}

// FireResult lists the items sent to the kitchen.
type FireResult struct {
	Order database.Order       `json:"order"`
	Fired []database.OrderItem `json:"fired"`
}

func stationOf(it database.OrderItem) string {
	if it.Station.Valid && it.Station.String != "" {
		return it.Station.String
	}
	return enum.StationKitchen
}

// Advance moves an item one step along new → queued → in_kitchen → ready → delivered.
func (s *KitchenService) Advance(ctx context.Context, itemID, userID uuid.UUID) (*ItemTransition, error) {
	return s.transition(ctx, itemID, userID, NextItemStatus)
}

// SetStatus moves an item directly to target. Terminal items cannot move.
func (s *KitchenService) SetStatus(ctx context.Context, itemID uuid.UUID, target database.OrderItemStatus, userID uuid.UUID) (*ItemTransition, error) {
	return s.transition(ctx, itemID, userID, func(from database.OrderItemStatus) (database.OrderItemStatus, error) {
		if err := ValidateSetStatus(from, target); err != nil {
			return "", err
		}
		return target, nil
	})
}

// transition locks the owning order, then the item, applies decide, and
// recomputes the order status in the same transaction.
func (s *KitchenService) transition(
	ctx context.Context,
	itemID, userID uuid.UUID,
	decide func(from database.OrderItemStatus) (database.OrderItemStatus, error),
) (*ItemTransition, error) {
	var res ItemTransition
	err := s.tx(ctx, func(store Store) error {
		order, item, err := lockItemWithOrder(ctx, store, itemID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return ErrAlreadyClosed
		}

		to, err := decide(item.Status)
		if err != nil {
			return err
		}
		updated, err := store.UpdateOrderItemStatus(ctx, database.UpdateOrderItemStatusParams{ID: item.ID, Status: to})
		if err != nil {
			return fmt.Errorf("update item status: %w", err)
		}
		order, err = RecomputeOrderState(ctx, store, order)
		if err != nil {
			return err
		}
		if err := audit(ctx, store, userID, enum.AuditItemStatus, "order_item", item.ID, map[string]any{
			"order_id": order.ID,
			"from":     item.Status,
			"to":       to,
		}); err != nil {
			return err
		}

		res = ItemTransition{Item: updated, From: item.Status, Order: order}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("item status changed",
		zap.Stringer("item_id", res.Item.ID),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.Item.Status)),
		zap.String("order_status", string(res.Order.Status)),
	)
	s.notifier.OrderChanged(ctx, OrderEvent{
		Type:     enum.EventItemStatus,
		OrderID:  res.Order.ID,
		TableID:  res.Order.TableID,
		Status:   res.Order.Status,
		Stations: []string{stationOf(res.Item)},
		Items:    []database.OrderItem{res.Item},
	})
	return &res, nil
}

// FireOrder sends every new item of an open order to the kitchen and asks
// for one ticket per station.
func (s *KitchenService) FireOrder(ctx context.Context, orderID, userID uuid.UUID) (*FireResult, error) {
	var res FireResult
	err := s.tx(ctx, func(store Store) error {
		order, err := store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return lookupErr(err, "order")
		}
		if order.Status.IsTerminal() {
			return ErrAlreadyClosed
		}
		if order.Status != database.OrderStatusOpen {
			return ErrOrderNotOpen
		}

		fired, err := store.FireOrderItems(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("fire order items: %w", err)
		}
		if len(fired) > 0 {
			if order, err = RecomputeOrderState(ctx, store, order); err != nil {
				return err
			}
			if err := audit(ctx, store, userID, enum.AuditOrderFire, "order", order.ID, map[string]any{
				"items": len(fired),
			}); err != nil {
				return err
			}
		}
		res = FireResult{Order: order, Fired: fired}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(res.Fired) == 0 {
		return &res, nil
	}
	for _, station := range itemStations(res.Fired) {
		t := KitchenTicket{OrderID: res.Order.ID, TableID: res.Order.TableID, Station: station}
		for _, it := range res.Fired {
			if stationOf(it) == station {
				t.Lines = append(t.Lines, TicketLine{ItemID: it.ID, Name: it.ItemName, Quantity: it.Quantity, Notes: it.Notes.String})
			}
		}
		s.notifier.KitchenTicketRequested(ctx, t)
	}
	s.notifier.OrderChanged(ctx, OrderEvent{
		Type:     enum.EventItemsFired,
		OrderID:  res.Order.ID,
		TableID:  res.Order.TableID,
		Status:   res.Order.Status,
		Stations: itemStations(res.Fired),
		Items:    res.Fired,
	})
	return &res, nil
}

// MarkDelivered hands every ready item to the table at once. It refuses
// while any item is still before ready.
func (s *KitchenService) MarkDelivered(ctx context.Context, orderID, userID uuid.UUID) (*FireResult, error) {
	var res FireResult
	err := s.tx(ctx, func(store Store) error {
		order, err := store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return lookupErr(err, "order")
		}
		if order.Status.IsTerminal() {
			return ErrAlreadyClosed
		}
		items, err := store.ListOrderItemsByOrderForUpdate(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("list order items: %w", err)
		}
		for _, it := range items {
			switch it.Status {
			case database.OrderItemStatusReady, database.OrderItemStatusDelivered, database.OrderItemStatusVoid:
			default:
				return ErrKitchenPending
			}
		}

		delivered, err := store.DeliverReadyItems(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("deliver ready items: %w", err)
		}
		if order, err = RecomputeOrderState(ctx, store, order); err != nil {
			return err
		}
		if len(delivered) > 0 {
			if err := audit(ctx, store, userID, enum.AuditItemStatus, "order", order.ID, map[string]any{
				"to":    database.OrderItemStatusDelivered,
				"items": len(delivered),
			}); err != nil {
				return err
			}
		}
		res = FireResult{Order: order, Fired: delivered}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(res.Fired) > 0 {
		s.notifier.OrderChanged(ctx, OrderEvent{
			Type:     enum.EventOrderUpdated,
			OrderID:  res.Order.ID,
			TableID:  res.Order.TableID,
			Status:   res.Order.Status,
			Stations: itemStations(res.Fired),
			Items:    res.Fired,
		})
	}
	return &res, nil
}

// Queue lists the items a station should see. Asking for queued also
// returns legacy pending rows. Station "all" lists every station.
func (s *KitchenService) Queue(ctx context.Context, station string, statuses []database.OrderItemStatus, limit int32) ([]database.StationQueueRow, error) {
	if station == "" {
		station = enum.StationAll
	}
	if len(statuses) == 0 {
		statuses = []database.OrderItemStatus{database.OrderItemStatusQueued, database.OrderItemStatusInKitchen}
	}
	var filter []string
	for _, st := range statuses {
		if !IsValidItemStatus(st) {
			return nil, validationError("invalid status %q", st)
		}
		filter = append(filter, string(st))
		if st == database.OrderItemStatusQueued {
			filter = append(filter, string(database.OrderItemStatusPending))
		}
	}
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	if limit > maxQueueLimit {
		limit = maxQueueLimit
	}

	var rows []database.StationQueueRow
	err := s.tx(ctx, func(store Store) error {
		var err error
		rows, err = store.ListStationQueue(ctx, database.ListStationQueueParams{
			Station:  station,
			Statuses: filter,
			Limit:    limit,
		})
		if err != nil {
			return fmt.Errorf("list station queue: %w", err)
		}
		return nil
	})
	return rows, err
}
