package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService handles the table-side order lifecycle: opening, items,
// voiding, and moving orders and items between tables.
type OrderService struct {
	deps
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewStore, notifier Notifier, log *zap.Logger) *OrderService {
	return &OrderService{deps: newDeps(pool, newStore, notifier, log)}
}

// OpenTableRequest is the validated input for seating a table.
type OpenTableRequest struct {
	TableID  uuid.UUID
	WaiterID uuid.UUID
	Guests   int32
	Notes    string
}

// NewItem is one line to add. ProductID set means a catalog item; otherwise
// Name and UnitPrice describe a manual item.
type NewItem struct {
	ProductID    *uuid.UUID
	OptionIDs    []uuid.UUID
	Name         string
	UnitPrice    decimal.Decimal
	CostOverride *decimal.Decimal
	Station      string
	Quantity     int32
	Notes        string
}

// Source fixes the item's variant once, when it is created. A catalog
// item never carries a cost override.
func (it NewItem) Source() ItemSource {
	if it.ProductID != nil {
		return CatalogItem{ProductID: *it.ProductID}
	}
	src := ManualItem{}
	if it.CostOverride != nil {
		src.CostOverride = decimal.NullDecimal{Decimal: *it.CostOverride, Valid: true}
	}
	return src
}

// UpdateItemRequest patches an item. Nil fields are left unchanged.
type UpdateItemRequest struct {
	Quantity *int32
	Notes    *string
}

// OrderDetail is an order with everything hanging off it.
type OrderDetail struct {
	Order    database.Order       `json:"order"`
	Items    []database.OrderItem `json:"items"`
	Payments []database.Payment   `json:"payments"`
}

type modifierSnapshot struct {
	OptionID   uuid.UUID       `json:"option_id"`
	Group      string          `json:"group"`
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

// OpenTable starts a new open order on a table and marks it occupied.
func (s *OrderService) OpenTable(ctx context.Context, req OpenTableRequest) (*database.Order, error) {
	if req.Guests <= 0 {
		req.Guests = 1
	}

	var order database.Order
	err := s.tx(ctx, func(store Store) error {
		table, err := store.GetTableForUpdate(ctx, req.TableID)
		if err != nil {
			return lookupErr(err, "table")
		}
		if table.Status == database.TableStatusBlocked {
			return invalidMove("table is blocked")
		}
		active, err := store.CountActiveOrdersByTable(ctx, database.CountActiveOrdersByTableParams{TableID: table.ID})
		if err != nil {
			return fmt.Errorf("count active orders: %w", err)
		}
		if active > 0 {
			return ErrTableOccupied
		}

		order, err = store.CreateOrder(ctx, database.CreateOrderParams{
			TableID:  table.ID,
			WaiterID: pgUUID(req.WaiterID),
			Guests:   req.Guests,
			Notes:    pgText(req.Notes),
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := occupyTable(ctx, store, table.ID); err != nil {
			return err
		}
		return audit(ctx, store, req.WaiterID, enum.AuditOrderOpen, "order", order.ID, map[string]any{
			"table_id": table.ID,
			"guests":   req.Guests,
		})
	})
	if err != nil {
		return nil, err
	}
	s.notifyOrder(ctx, enum.EventOrderUpdated, order, nil)
	return &order, nil
}

// AddItems appends items to an active order with status new. Prices are
// snapshotted now; stock is consumed later, at settlement.
func (s *OrderService) AddItems(ctx context.Context, orderID uuid.UUID, items []NewItem, userID uuid.UUID) (*OrderDetail, error) {
	if len(items) == 0 {
		return nil, validationError("items are required")
	}
	sources := make([]ItemSource, len(items))
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, validationError("items[%d]: quantity must be > 0", i)
		}
		if it.ProductID != nil && it.CostOverride != nil {
			return nil, validationError("items[%d]: cost_override only applies to manual items", i)
		}
		sources[i] = it.Source()
		if src, ok := sources[i].(ManualItem); ok {
			if it.Name == "" {
				return nil, validationError("items[%d]: name is required for manual items", i)
			}
			if it.UnitPrice.IsNegative() {
				return nil, validationError("items[%d]: unit_price must be >= 0", i)
			}
			if src.CostOverride.Valid && src.CostOverride.Decimal.IsNegative() {
				return nil, validationError("items[%d]: cost_override must be >= 0", i)
			}
		}
	}

	var detail OrderDetail
	var added []database.OrderItem
	err := s.tx(ctx, func(store Store) error {
		order, err := store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return lookupErr(err, "order")
		}
		if order.Status.IsTerminal() {
			return ErrAlreadyClosed
		}

		for i, it := range items {
			params, err := s.buildItem(ctx, store, order.ID, it, sources[i])
			if err != nil {
				var be *Error
				if errors.As(err, &be) {
					return &Error{Code: be.Code, Message: fmt.Sprintf("items[%d]: %s", i, be.Message)}
				}
				return fmt.Errorf("items[%d]: %w", i, err)
			}
			created, err := store.CreateOrderItem(ctx, params)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
			if err := audit(ctx, store, userID, enum.AuditOrderItemAdd, "order", order.ID, map[string]any{
				"order_item_id": created.ID,
				"item_name":     created.ItemName,
				"quantity":      created.Quantity,
				"unit_price":    created.UnitPrice,
			}); err != nil {
				return err
			}
			added = append(added, created)
		}

		if order, err = recalcTotals(ctx, store, order); err != nil {
			return err
		}
		if order, err = RecomputeOrderState(ctx, store, order); err != nil {
			return err
		}
		return s.loadDetail(ctx, store, order, &detail)
	})
	if err != nil {
		return nil, err
	}
	s.notifyOrder(ctx, enum.EventOrderUpdated, detail.Order, added)
	return &detail, nil
}

func (s *OrderService) buildItem(ctx context.Context, store Store, orderID uuid.UUID, it NewItem, src ItemSource) (database.CreateOrderItemParams, error) {
	params := database.CreateOrderItemParams{
		OrderID:  orderID,
		Quantity: it.Quantity,
		Notes:    pgText(it.Notes),
		Status:   database.OrderItemStatusNew,
	}

	var productID uuid.UUID
	switch src := src.(type) {
	case ManualItem:
		params.ItemName = it.Name
		params.UnitPrice = it.UnitPrice
		params.Station = pgText(it.Station)
		params.CostOverride = src.CostOverride
		return params, nil
	case CatalogItem:
		productID = src.ProductID
	default:
		return params, fmt.Errorf("unknown item source %T", src)
	}

	product, err := store.GetProductForOrder(ctx, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return params, validationError("product not found")
		}
		return params, fmt.Errorf("get product: %w", err)
	}
	if !product.IsActive {
		return params, validationError("product is not active")
	}

	unitPrice := product.Price
	snapshot := []modifierSnapshot{}
	if ids := uniqueIDs(it.OptionIDs); len(ids) > 0 {
		opts, err := store.ListModifierOptionsByIDs(ctx, database.ListModifierOptionsByIDsParams{
			ProductID: product.ID,
			IDs:       ids,
		})
		if err != nil {
			return params, fmt.Errorf("list modifier options: %w", err)
		}
		if len(opts) != len(ids) {
			return params, validationError("modifier option does not belong to product")
		}
		for _, o := range opts {
			unitPrice = unitPrice.Add(o.PriceDelta)
			snapshot = append(snapshot, modifierSnapshot{OptionID: o.ID, Group: o.GroupName, Name: o.Name, PriceDelta: o.PriceDelta})
		}
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return params, fmt.Errorf("marshal modifiers: %w", err)
	}

	params.ProductID = pgtype.UUID{Bytes: product.ID, Valid: true}
	params.ItemName = product.Name
	params.UnitPrice = unitPrice
	params.Station = product.Station
	params.Modifiers = raw
	return params, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	var out []uuid.UUID
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// UpdateItem changes notes at any time while the order is active, and the
// quantity only before the item has been fired.
func (s *OrderService) UpdateItem(ctx context.Context, itemID uuid.UUID, req UpdateItemRequest, userID uuid.UUID) (*OrderDetail, error) {
	if req.Quantity == nil && req.Notes == nil {
		return nil, validationError("nothing to update")
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		return nil, validationError("quantity must be > 0")
	}

	var detail OrderDetail
	err := s.tx(ctx, func(store Store) error {
		order, item, err := lockItemWithOrder(ctx, store, itemID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return ErrAlreadyClosed
		}

		meta := map[string]any{"order_item_id": item.ID}
		if req.Quantity != nil && *req.Quantity != item.Quantity {
			if !isPreKitchen(item.Status) {
				return itemAlreadyFired(item.Status)
			}
			if item, err = store.UpdateOrderItemQuantity(ctx, database.UpdateOrderItemQuantityParams{ID: item.ID, Quantity: *req.Quantity}); err != nil {
				return fmt.Errorf("update item quantity: %w", err)
			}
			meta["quantity"] = *req.Quantity
		}
		if req.Notes != nil {
			if _, err = store.UpdateOrderItemNotes(ctx, database.UpdateOrderItemNotesParams{ID: item.ID, Notes: pgText(*req.Notes)}); err != nil {
				return fmt.Errorf("update item notes: %w", err)
			}
			meta["notes"] = *req.Notes
		}

		if order, err = recalcTotals(ctx, store, order); err != nil {
			return err
		}
		if err := audit(ctx, store, userID, enum.AuditOrderItemPatch, "order", order.ID, meta); err != nil {
			return err
		}
		return s.loadDetail(ctx, store, order, &detail)
	})
	if err != nil {
		return nil, err
	}
	s.notifyOrder(ctx, enum.EventOrderUpdated, detail.Order, nil)
	return &detail, nil
}

// DeleteItem removes an item that has not reached the kitchen yet.
func (s *OrderService) DeleteItem(ctx context.Context, itemID, userID uuid.UUID) (*OrderDetail, error) {
	var detail OrderDetail
	err := s.tx(ctx, func(store Store) error {
		order, item, err := lockItemWithOrder(ctx, store, itemID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return ErrAlreadyClosed
		}
		if !isPreKitchen(item.Status) {
			return itemAlreadyFired(item.Status)
		}
		if err := store.DeleteOrderItem(ctx, item.ID); err != nil {
			return fmt.Errorf("delete order item: %w", err)
		}
		if order, err = recalcTotals(ctx, store, order); err != nil {
			return err
		}
		if order, err = RecomputeOrderState(ctx, store, order); err != nil {
			return err
		}
		if err := audit(ctx, store, userID, enum.AuditOrderItemDelete, "order", order.ID, map[string]any{
			"order_item_id": item.ID,
			"item_name":     item.ItemName,
		}); err != nil {
			return err
		}
		return s.loadDetail(ctx, store, order, &detail)
	})
	if err != nil {
		return nil, err
	}
	s.notifyOrder(ctx, enum.EventOrderUpdated, detail.Order, nil)
	return &detail, nil
}

// VoidOrder cancels an order that has taken no payments: items become void,
// totals drop to zero and the table is released if nothing else is on it.
func (s *OrderService) VoidOrder(ctx context.Context, orderID uuid.UUID, reason string, userID uuid.UUID) (*database.Order, error) {
	var order database.Order
	err := s.tx(ctx, func(store Store) error {
		var err error
		order, err = store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return lookupErr(err, "order")
		}
		if order.Status.IsTerminal() {
			return ErrAlreadyClosed
		}
		paid, err := store.CountPaymentsByOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("count payments: %w", err)
		}
		if paid > 0 {
			return ErrHasPayments
		}

		if _, err := store.VoidOrderItems(ctx, order.ID); err != nil {
			return fmt.Errorf("void order items: %w", err)
		}
		if order, err = writeTotals(ctx, store, order, Totals{
			Subtotal: decimal.Zero,
			Discount: decimal.Zero,
			Service:  decimal.Zero,
			Grand:    decimal.Zero,
		}); err != nil {
			return err
		}
		note := "[VOID]"
		if reason != "" {
			note = "[VOID] " + reason
		}
		if order, err = store.CloseOrder(ctx, database.CloseOrderParams{
			ID:     order.ID,
			Status: database.OrderStatusVoid,
			Note:   pgText(note),
		}); err != nil {
			return fmt.Errorf("void order: %w", err)
		}
		if _, err := releaseTableIfIdle(ctx, store, order.TableID, order.ID); err != nil {
			return err
		}
		return audit(ctx, store, userID, enum.AuditOrderVoid, "order", order.ID, map[string]any{"reason": reason})
	})
	if err != nil {
		return nil, err
	}
	s.notifyOrder(ctx, enum.EventOrderClosed, order, nil)
	return &order, nil
}

// Get returns an order with its items and payments.
func (s *OrderService) Get(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	var detail OrderDetail
	err := s.tx(ctx, func(store Store) error {
		order, err := store.GetOrder(ctx, orderID)
		if err != nil {
			return lookupErr(err, "order")
		}
		return s.loadDetail(ctx, store, order, &detail)
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListActive returns every order that is not closed or void.
func (s *OrderService) ListActive(ctx context.Context) ([]database.Order, error) {
	var orders []database.Order
	err := s.tx(ctx, func(store Store) error {
		var err error
		orders, err = store.ListActiveOrders(ctx)
		if err != nil {
			return fmt.Errorf("list active orders: %w", err)
		}
		return nil
	})
	return orders, err
}

func (s *OrderService) loadDetail(ctx context.Context, store Store, order database.Order, out *OrderDetail) error {
	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	payments, err := store.ListPaymentsByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	*out = OrderDetail{Order: order, Items: items, Payments: payments}
	return nil
}

func (s *OrderService) notifyOrder(ctx context.Context, typ string, order database.Order, items []database.OrderItem) {
	s.notifier.OrderChanged(ctx, OrderEvent{
		Type:     typ,
		OrderID:  order.ID,
		TableID:  order.TableID,
		Status:   order.Status,
		Stations: itemStations(items),
		Items:    items,
	})
}

// lockItemWithOrder locks the item's order, then the item, and checks the
// item did not move in between.
func lockItemWithOrder(ctx context.Context, store Store, itemID uuid.UUID) (database.Order, database.OrderItem, error) {
	peek, err := store.GetOrderItem(ctx, itemID)
	if err != nil {
		return database.Order{}, database.OrderItem{}, lookupErr(err, "order item")
	}
	order, err := store.GetOrderForUpdate(ctx, peek.OrderID)
	if err != nil {
		return database.Order{}, database.OrderItem{}, lookupErr(err, "order")
	}
	item, err := store.GetOrderItemForUpdate(ctx, itemID)
	if err != nil {
		return database.Order{}, database.OrderItem{}, lookupErr(err, "order item")
	}
	if item.OrderID != order.ID {
		return database.Order{}, database.OrderItem{}, ErrConflict
	}
	return order, item, nil
}

func occupyTable(ctx context.Context, store TableStore, tableID uuid.UUID) error {
	if _, err := store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{
		ID:     tableID,
		Status: database.TableStatusOccupied,
	}); err != nil {
		return fmt.Errorf("occupy table: %w", err)
	}
	return nil
}

// releaseTableIfIdle frees the table when no active order other than
// exceptOrder remains on it.
func releaseTableIfIdle(ctx context.Context, store TableStore, tableID, exceptOrder uuid.UUID) (bool, error) {
	active, err := store.CountActiveOrdersByTable(ctx, database.CountActiveOrdersByTableParams{
		TableID:        tableID,
		ExcludeOrderID: pgUUID(exceptOrder),
	})
	if err != nil {
		return false, fmt.Errorf("count active orders: %w", err)
	}
	if active > 0 {
		return false, nil
	}
	if _, err := store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{
		ID:     tableID,
		Status: database.TableStatusFree,
	}); err != nil {
		return false, fmt.Errorf("free table: %w", err)
	}
	return true, nil
}
