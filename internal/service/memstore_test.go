package service

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/comanda-pos/api/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// --- Transactions ---

// mockTx implements pgx.Tx with only the methods inTx needs.
// The unused methods panic so we catch accidental calls.
// Rollback before Commit restores the store to its state at Begin.
type mockTx struct {
	db        *memStore
	snapshot  memState
	committed bool
	commitErr error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = true
	return nil
}
func (m *mockTx) Rollback(ctx context.Context) error {
	if !m.committed {
		m.db.memState = m.snapshot
	}
	return nil
}
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner over a memStore.
type mockTxBeginner struct {
	db        *memStore
	err       error
	commitErr error
	begun     int
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.begun++
	return &mockTx{db: m.db, snapshot: m.db.clone(), commitErr: m.commitErr}, nil
}

// --- In-memory store ---

type memState struct {
	tables      map[uuid.UUID]database.DiningTable
	orders      map[uuid.UUID]database.Order
	items       map[uuid.UUID]database.OrderItem
	products    map[uuid.UUID]database.Product
	options     map[uuid.UUID]database.ModifierOption
	optionOwner map[uuid.UUID]uuid.UUID
	ingredients map[uuid.UUID]database.Ingredient
	recipes     map[uuid.UUID][]database.CreateRecipeLineParams
	movements   []database.StockMovement
	sessions    map[uuid.UUID]database.CashSession
	payments    []database.Payment
	audits      []database.AuditEvent
	clock       time.Time
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s memState) clone() memState {
	c := s
	c.tables = cloneMap(s.tables)
	c.orders = cloneMap(s.orders)
	c.items = cloneMap(s.items)
	c.products = cloneMap(s.products)
	c.options = cloneMap(s.options)
	c.optionOwner = cloneMap(s.optionOwner)
	c.ingredients = cloneMap(s.ingredients)
	c.recipes = make(map[uuid.UUID][]database.CreateRecipeLineParams, len(s.recipes))
	for k, v := range s.recipes {
		c.recipes[k] = append([]database.CreateRecipeLineParams(nil), v...)
	}
	c.movements = append([]database.StockMovement(nil), s.movements...)
	c.sessions = cloneMap(s.sessions)
	c.payments = append([]database.Payment(nil), s.payments...)
	c.audits = append([]database.AuditEvent(nil), s.audits...)
	return c
}

// memStore implements Store against maps. failOn makes the named method
// return the given error, to exercise rollback paths.
type memStore struct {
	memState
	failOn map[string]error
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		memState: memState{
			tables:      map[uuid.UUID]database.DiningTable{},
			orders:      map[uuid.UUID]database.Order{},
			items:       map[uuid.UUID]database.OrderItem{},
			products:    map[uuid.UUID]database.Product{},
			options:     map[uuid.UUID]database.ModifierOption{},
			optionOwner: map[uuid.UUID]uuid.UUID{},
			ingredients: map[uuid.UUID]database.Ingredient{},
			recipes:     map[uuid.UUID][]database.CreateRecipeLineParams{},
			sessions:    map[uuid.UUID]database.CashSession{},
			clock:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		failOn: map[string]error{},
	}
}

func (s *memStore) fail(method string) error { return s.failOn[method] }

// tick returns a strictly increasing timestamp so created_at orders rows.
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) stamp() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: s.tick(), Valid: true}
}

func isActiveStatus(st database.OrderStatus) bool { return !st.IsTerminal() }

// --- Tables ---

func (s *memStore) GetTable(ctx context.Context, id uuid.UUID) (database.DiningTable, error) {
	t, ok := s.tables[id]
	if !ok {
		return t, pgx.ErrNoRows
	}
	return t, nil
}

func (s *memStore) GetTableForUpdate(ctx context.Context, id uuid.UUID) (database.DiningTable, error) {
	return s.GetTable(ctx, id)
}

func (s *memStore) UpdateTableStatus(ctx context.Context, arg database.UpdateTableStatusParams) (database.DiningTable, error) {
	t, ok := s.tables[arg.ID]
	if !ok {
		return t, pgx.ErrNoRows
	}
	t.Status = arg.Status
	s.tables[t.ID] = t
	return t, nil
}

func (s *memStore) CountActiveOrdersByTable(ctx context.Context, arg database.CountActiveOrdersByTableParams) (int64, error) {
	var n int64
	for _, o := range s.orders {
		if o.TableID != arg.TableID || !isActiveStatus(o.Status) {
			continue
		}
		if arg.ExcludeOrderID.Valid && o.ID == uuid.UUID(arg.ExcludeOrderID.Bytes) {
			continue
		}
		n++
	}
	return n, nil
}

// --- Orders ---

func (s *memStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	if err := s.fail("CreateOrder"); err != nil {
		return database.Order{}, err
	}
	now := s.tick()
	o := database.Order{
		ID:            uuid.New(),
		TableID:       arg.TableID,
		WaiterID:      arg.WaiterID,
		Guests:        arg.Guests,
		Status:        database.OrderStatusOpen,
		Notes:         arg.Notes,
		OpenedAt:      now,
		Subtotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		ServiceTotal:  decimal.Zero,
		GrandTotal:    decimal.Zero,
		UpdatedAt:     now,
	}
	s.orders[o.ID] = o
	return o, nil
}

func (s *memStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return o, pgx.ErrNoRows
	}
	return o, nil
}

func (s *memStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *memStore) GetActiveOrderByTable(ctx context.Context, tableID uuid.UUID) (database.Order, error) {
	var found *database.Order
	for _, o := range s.orders {
		if o.TableID == tableID && isActiveStatus(o.Status) {
			if found == nil || o.OpenedAt.After(found.OpenedAt) {
				o := o
				found = &o
			}
		}
	}
	if found == nil {
		return database.Order{}, pgx.ErrNoRows
	}
	return *found, nil
}

func (s *memStore) ListActiveOrders(ctx context.Context) ([]database.Order, error) {
	var out []database.Order
	for _, o := range s.orders {
		if isActiveStatus(o.Status) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (s *memStore) UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error) {
	o, ok := s.orders[arg.ID]
	if !ok {
		return o, pgx.ErrNoRows
	}
	o.Subtotal = arg.Subtotal
	o.DiscountTotal = arg.DiscountTotal
	o.ServiceTotal = arg.ServiceTotal
	o.GrandTotal = arg.GrandTotal
	s.orders[o.ID] = o
	return o, nil
}

func (s *memStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	if err := s.fail("UpdateOrderStatus"); err != nil {
		return database.Order{}, err
	}
	o, ok := s.orders[arg.ID]
	if !ok {
		return o, pgx.ErrNoRows
	}
	o.Status = arg.Status
	s.orders[o.ID] = o
	return o, nil
}

func (s *memStore) CloseOrder(ctx context.Context, arg database.CloseOrderParams) (database.Order, error) {
	o, ok := s.orders[arg.ID]
	if !ok {
		return o, pgx.ErrNoRows
	}
	o.Status = arg.Status
	o.ClosedAt = s.stamp()
	if arg.Note.Valid {
		if o.Notes.Valid && o.Notes.String != "" {
			o.Notes.String += "\n" + arg.Note.String
		} else {
			o.Notes = arg.Note
		}
	}
	s.orders[o.ID] = o
	return o, nil
}

func (s *memStore) MoveOrderToTable(ctx context.Context, arg database.MoveOrderToTableParams) (database.Order, error) {
	o, ok := s.orders[arg.ID]
	if !ok {
		return o, pgx.ErrNoRows
	}
	o.TableID = arg.TableID
	s.orders[o.ID] = o
	return o, nil
}

// --- Order items ---

func (s *memStore) itemsOf(orderID uuid.UUID) []database.OrderItem {
	var out []database.OrderItem
	for _, it := range s.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *memStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	return s.itemsOf(orderID), nil
}

func (s *memStore) ListOrderItemsByOrderForUpdate(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	return s.itemsOf(orderID), nil
}

func (s *memStore) GetOrderItem(ctx context.Context, id uuid.UUID) (database.OrderItem, error) {
	it, ok := s.items[id]
	if !ok {
		return it, pgx.ErrNoRows
	}
	return it, nil
}

func (s *memStore) GetOrderItemForUpdate(ctx context.Context, id uuid.UUID) (database.OrderItem, error) {
	return s.GetOrderItem(ctx, id)
}

func (s *memStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	if err := s.fail("CreateOrderItem"); err != nil {
		return database.OrderItem{}, err
	}
	modifiers := arg.Modifiers
	if modifiers == nil {
		modifiers = []byte("[]")
	}
	it := database.OrderItem{
		ID:             uuid.New(),
		OrderID:        arg.OrderID,
		ProductID:      arg.ProductID,
		ItemName:       arg.ItemName,
		Quantity:       arg.Quantity,
		UnitPrice:      arg.UnitPrice,
		Notes:          arg.Notes,
		Station:        arg.Station,
		Status:         arg.Status,
		Modifiers:      modifiers,
		CostOverride:   arg.CostOverride,
		StockAppliedAt: arg.StockAppliedAt,
		FiredAt:        arg.FiredAt,
		CreatedAt:      s.tick(),
	}
	s.items[it.ID] = it
	return it, nil
}

func (s *memStore) UpdateOrderItemStatus(ctx context.Context, arg database.UpdateOrderItemStatusParams) (database.OrderItem, error) {
	it, ok := s.items[arg.ID]
	if !ok {
		return it, pgx.ErrNoRows
	}
	it.Status = arg.Status
	switch arg.Status {
	case database.OrderItemStatusQueued:
		if !it.FiredAt.Valid {
			it.FiredAt = s.stamp()
		}
	case database.OrderItemStatusReady:
		it.ReadyAt = s.stamp()
	case database.OrderItemStatusDelivered:
		it.DeliveredAt = s.stamp()
	}
	s.items[it.ID] = it
	return it, nil
}

func (s *memStore) FireOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	var out []database.OrderItem
	for _, it := range s.itemsOf(orderID) {
		if it.Status != database.OrderItemStatusNew && it.Status != database.OrderItemStatusPending {
			continue
		}
		it.Status = database.OrderItemStatusQueued
		if !it.FiredAt.Valid {
			it.FiredAt = s.stamp()
		}
		s.items[it.ID] = it
		out = append(out, it)
	}
	return out, nil
}

func (s *memStore) DeliverReadyItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	var out []database.OrderItem
	for _, it := range s.itemsOf(orderID) {
		if it.Status != database.OrderItemStatusReady {
			continue
		}
		it.Status = database.OrderItemStatusDelivered
		it.DeliveredAt = s.stamp()
		s.items[it.ID] = it
		out = append(out, it)
	}
	return out, nil
}

func (s *memStore) VoidOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	for _, it := range s.itemsOf(orderID) {
		if it.Status == database.OrderItemStatusVoid {
			continue
		}
		it.Status = database.OrderItemStatusVoid
		s.items[it.ID] = it
		n++
	}
	return n, nil
}

func (s *memStore) UpdateOrderItemQuantity(ctx context.Context, arg database.UpdateOrderItemQuantityParams) (database.OrderItem, error) {
	it, ok := s.items[arg.ID]
	if !ok {
		return it, pgx.ErrNoRows
	}
	it.Quantity = arg.Quantity
	s.items[it.ID] = it
	return it, nil
}

func (s *memStore) UpdateOrderItemNotes(ctx context.Context, arg database.UpdateOrderItemNotesParams) (database.OrderItem, error) {
	it, ok := s.items[arg.ID]
	if !ok {
		return it, pgx.ErrNoRows
	}
	it.Notes = arg.Notes
	s.items[it.ID] = it
	return it, nil
}

func (s *memStore) DeleteOrderItem(ctx context.Context, id uuid.UUID) error {
	delete(s.items, id)
	return nil
}

func (s *memStore) MoveOrderItems(ctx context.Context, arg database.MoveOrderItemsParams) (int64, error) {
	var n int64
	for _, it := range s.itemsOf(arg.FromOrderID) {
		it.OrderID = arg.ToOrderID
		s.items[it.ID] = it
		n++
	}
	return n, nil
}

func (s *memStore) MoveOrderItem(ctx context.Context, arg database.MoveOrderItemParams) (database.OrderItem, error) {
	it, ok := s.items[arg.ID]
	if !ok {
		return it, pgx.ErrNoRows
	}
	it.OrderID = arg.OrderID
	s.items[it.ID] = it
	return it, nil
}

func (s *memStore) MarkOrderItemStockApplied(ctx context.Context, id uuid.UUID) (int64, error) {
	it, ok := s.items[id]
	if !ok || it.StockAppliedAt.Valid {
		return 0, nil
	}
	it.StockAppliedAt = s.stamp()
	s.items[id] = it
	return 1, nil
}

func (s *memStore) ListStationQueue(ctx context.Context, arg database.ListStationQueueParams) ([]database.StationQueueRow, error) {
	want := make(map[string]bool, len(arg.Statuses))
	for _, st := range arg.Statuses {
		want[st] = true
	}
	var out []database.StationQueueRow
	for _, it := range s.items {
		o := s.orders[it.OrderID]
		if !isActiveStatus(o.Status) || !want[string(it.Status)] {
			continue
		}
		if arg.Station != "all" && it.Station.String != arg.Station {
			continue
		}
		out = append(out, database.StationQueueRow{
			OrderItem:  it,
			TableID:    o.TableID,
			TableLabel: s.tables[o.TableID].Label,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if int32(len(out)) > arg.Limit {
		out = out[:arg.Limit]
	}
	return out, nil
}

// --- Catalog ---

func (s *memStore) GetProductForOrder(ctx context.Context, id uuid.UUID) (database.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return p, pgx.ErrNoRows
	}
	return p, nil
}

func (s *memStore) ListModifierOptionsByIDs(ctx context.Context, arg database.ListModifierOptionsByIDsParams) ([]database.ModifierOption, error) {
	var out []database.ModifierOption
	for _, id := range arg.IDs {
		if o, ok := s.options[id]; ok && s.optionOwner[id] == arg.ProductID {
			out = append(out, o)
		}
	}
	return out, nil
}

// --- Inventory ---

func (s *memStore) GetIngredient(ctx context.Context, id uuid.UUID) (database.Ingredient, error) {
	ing, ok := s.ingredients[id]
	if !ok {
		return ing, pgx.ErrNoRows
	}
	return ing, nil
}

func (s *memStore) GetIngredientForUpdate(ctx context.Context, id uuid.UUID) (database.Ingredient, error) {
	return s.GetIngredient(ctx, id)
}

func (s *memStore) UpdateIngredientStock(ctx context.Context, arg database.UpdateIngredientStockParams) (database.Ingredient, error) {
	if err := s.fail("UpdateIngredientStock"); err != nil {
		return database.Ingredient{}, err
	}
	ing, ok := s.ingredients[arg.ID]
	if !ok {
		return ing, pgx.ErrNoRows
	}
	ing.StockQty = arg.StockQty
	s.ingredients[ing.ID] = ing
	return ing, nil
}

func (s *memStore) UpdateIngredientCost(ctx context.Context, arg database.UpdateIngredientCostParams) (database.Ingredient, error) {
	ing, ok := s.ingredients[arg.ID]
	if !ok {
		return ing, pgx.ErrNoRows
	}
	ing.CostPerUnit = arg.CostPerUnit
	s.ingredients[ing.ID] = ing
	return ing, nil
}

func (s *memStore) ListLowStockIngredients(ctx context.Context) ([]database.Ingredient, error) {
	var out []database.Ingredient
	for _, ing := range s.ingredients {
		if ing.IsActive && ing.StockQty.LessThanOrEqual(ing.MinQty) {
			out = append(out, ing)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) ListActiveIngredients(ctx context.Context) ([]database.Ingredient, error) {
	var out []database.Ingredient
	for _, ing := range s.ingredients {
		if ing.IsActive {
			out = append(out, ing)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) ListRecipeLines(ctx context.Context, productID uuid.UUID) ([]database.RecipeLine, error) {
	var out []database.RecipeLine
	for _, l := range s.recipes[productID] {
		ing := s.ingredients[l.IngredientID]
		out = append(out, database.RecipeLine{
			ProductID:      l.ProductID,
			IngredientID:   l.IngredientID,
			QtyPerUnit:     l.QtyPerUnit,
			WasteFactor:    l.WasteFactor,
			IngredientName: ing.Name,
			IngredientUnit: ing.Unit,
			StockQty:       ing.StockQty,
			CostPerUnit:    ing.CostPerUnit,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].IngredientID[:], out[j].IngredientID[:]) < 0
	})
	return out, nil
}

func (s *memStore) DeleteRecipeLines(ctx context.Context, productID uuid.UUID) error {
	delete(s.recipes, productID)
	return nil
}

func (s *memStore) CreateRecipeLine(ctx context.Context, arg database.CreateRecipeLineParams) error {
	s.recipes[arg.ProductID] = append(s.recipes[arg.ProductID], arg)
	return nil
}

func (s *memStore) CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error) {
	m := database.StockMovement{
		ID:           uuid.New(),
		IngredientID: arg.IngredientID,
		Type:         arg.Type,
		Qty:          arg.Qty,
		UnitCost:     arg.UnitCost,
		Ref:          arg.Ref,
		Meta:         arg.Meta,
		CreatedBy:    arg.CreatedBy,
		CreatedAt:    s.tick(),
	}
	s.movements = append(s.movements, m)
	return m, nil
}

func (s *memStore) ListStockMovements(ctx context.Context, limit int32) ([]database.StockMovement, error) {
	out := make([]database.StockMovement, 0, len(s.movements))
	for i := len(s.movements) - 1; i >= 0 && int32(len(out)) < limit; i-- {
		out = append(out, s.movements[i])
	}
	return out, nil
}

func (s *memStore) movementsByRefPrefix(prefix string) []database.StockMovement {
	var out []database.StockMovement
	for _, m := range s.movements {
		if strings.HasPrefix(m.Ref.String, prefix) {
			out = append(out, m)
		}
	}
	return out
}

// --- Payments ---

func (s *memStore) paymentsOf(orderID uuid.UUID) []database.Payment {
	var out []database.Payment
	for _, p := range s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out
}

func (s *memStore) SumPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range s.paymentsOf(orderID) {
		sum = sum.Add(p.Amount)
	}
	return sum, nil
}

func (s *memStore) CountPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	return int64(len(s.paymentsOf(orderID))), nil
}

func (s *memStore) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error) {
	return s.paymentsOf(orderID), nil
}

func (s *memStore) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (database.Payment, error) {
	for _, p := range s.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return database.Payment{}, pgx.ErrNoRows
}

func (s *memStore) GetRefundByRef(ctx context.Context, ref string) (database.Payment, error) {
	for _, p := range s.payments {
		if p.ParentPaymentID.Valid && p.Ref.Valid && p.Ref.String == ref {
			return p, nil
		}
	}
	return database.Payment{}, pgx.ErrNoRows
}

func (s *memStore) SumRefundsByParent(ctx context.Context, parentID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range s.payments {
		if p.ParentPaymentID.Valid && uuid.UUID(p.ParentPaymentID.Bytes) == parentID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (s *memStore) CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error) {
	if err := s.fail("CreatePayment"); err != nil {
		return database.Payment{}, err
	}
	p := database.Payment{
		ID:              uuid.New(),
		OrderID:         arg.OrderID,
		SessionID:       arg.SessionID,
		UserID:          arg.UserID,
		Method:          arg.Method,
		Amount:          arg.Amount,
		Ref:             arg.Ref,
		ParentPaymentID: arg.ParentPaymentID,
		CreatedAt:       s.tick(),
	}
	s.payments = append(s.payments, p)
	return p, nil
}

func (s *memStore) CreatePayments(ctx context.Context, args []database.CreatePaymentParams) ([]database.Payment, error) {
	var out []database.Payment
	for _, arg := range args {
		p, err := s.CreatePayment(ctx, arg)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// --- Cash sessions ---

func (s *memStore) GetOpenCashSessionByUserForUpdate(ctx context.Context, userID uuid.UUID) (database.CashSession, error) {
	for _, cs := range s.sessions {
		if cs.OpenedBy == userID && cs.Status == database.CashSessionStatusOpen {
			return cs, nil
		}
	}
	return database.CashSession{}, pgx.ErrNoRows
}

func (s *memStore) GetCashSession(ctx context.Context, id uuid.UUID) (database.CashSession, error) {
	cs, ok := s.sessions[id]
	if !ok {
		return cs, pgx.ErrNoRows
	}
	return cs, nil
}

func (s *memStore) GetCashSessionForUpdate(ctx context.Context, id uuid.UUID) (database.CashSession, error) {
	return s.GetCashSession(ctx, id)
}

func (s *memStore) CreateCashSession(ctx context.Context, arg database.CreateCashSessionParams) (database.CashSession, error) {
	cs := database.CashSession{
		ID:           uuid.New(),
		OpenedBy:     arg.OpenedBy,
		Status:       database.CashSessionStatusOpen,
		OpeningFloat: arg.OpeningFloat,
		OpenedAt:     s.tick(),
	}
	s.sessions[cs.ID] = cs
	return cs, nil
}

func (s *memStore) CloseCashSession(ctx context.Context, arg database.CloseCashSessionParams) (database.CashSession, error) {
	cs, ok := s.sessions[arg.ID]
	if !ok {
		return cs, pgx.ErrNoRows
	}
	cs.Status = database.CashSessionStatusClosed
	cs.ClosedBy = arg.ClosedBy
	cs.ExpectedTotal = decimal.NewNullDecimal(arg.ExpectedTotal)
	cs.CountedTotal = decimal.NewNullDecimal(arg.CountedTotal)
	cs.DiffTotal = decimal.NewNullDecimal(arg.DiffTotal)
	cs.Notes = arg.Notes
	cs.ClosedAt = s.stamp()
	s.sessions[cs.ID] = cs
	return cs, nil
}

func (s *memStore) SumPaymentsBySession(ctx context.Context, sessionID uuid.UUID) ([]database.PaymentMethodTotal, error) {
	byMethod := map[database.PaymentMethod]*database.PaymentMethodTotal{}
	var order []database.PaymentMethod
	for _, p := range s.payments {
		if !p.SessionID.Valid || uuid.UUID(p.SessionID.Bytes) != sessionID {
			continue
		}
		t, ok := byMethod[p.Method]
		if !ok {
			t = &database.PaymentMethodTotal{Method: p.Method, Total: decimal.Zero}
			byMethod[p.Method] = t
			order = append(order, p.Method)
		}
		t.Total = t.Total.Add(p.Amount)
		t.Count++
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]database.PaymentMethodTotal, 0, len(order))
	for _, m := range order {
		out = append(out, *byMethod[m])
	}
	return out, nil
}

// --- Audit ---

func (s *memStore) CreateAuditEvent(ctx context.Context, arg database.CreateAuditEventParams) error {
	if err := s.fail("CreateAuditEvent"); err != nil {
		return err
	}
	s.audits = append(s.audits, database.AuditEvent{
		ID:        uuid.New(),
		UserID:    arg.UserID,
		Action:    arg.Action,
		Entity:    arg.Entity,
		EntityID:  arg.EntityID,
		Meta:      arg.Meta,
		CreatedAt: s.tick(),
	})
	return nil
}

func (s *memStore) auditActions() []string {
	out := make([]string, 0, len(s.audits))
	for _, a := range s.audits {
		out = append(out, a.Action)
	}
	return out
}

// --- Recording notifier ---

type recordingNotifier struct {
	tickets  []KitchenTicket
	receipts []Receipt
	events   []OrderEvent
}

func (n *recordingNotifier) KitchenTicketRequested(_ context.Context, t KitchenTicket) {
	n.tickets = append(n.tickets, t)
}
func (n *recordingNotifier) ReceiptRequested(_ context.Context, r Receipt) {
	n.receipts = append(n.receipts, r)
}
func (n *recordingNotifier) OrderChanged(_ context.Context, ev OrderEvent) {
	n.events = append(n.events, ev)
}

// --- Fixtures ---

var errBoom = errors.New("boom")

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	db       *memStore
	pool     *mockTxBeginner
	notifier *recordingNotifier
	newStore NewStore
	user     uuid.UUID
}

func newFixture() *fixture {
	db := newMemStore()
	return &fixture{
		db:       db,
		pool:     &mockTxBeginner{db: db},
		notifier: &recordingNotifier{},
		newStore: func(database.DBTX) Store { return db },
		user:     uuid.New(),
	}
}

func (f *fixture) orders() *OrderService {
	return NewOrderService(f.pool, f.newStore, f.notifier, nil)
}

func (f *fixture) kitchen() *KitchenService {
	return NewKitchenService(f.pool, f.newStore, f.notifier, nil)
}

func (f *fixture) settlement() *SettlementService {
	return NewSettlementService(f.pool, f.newStore, f.notifier, nil)
}

func (f *fixture) cash() *CashService {
	return NewCashService(f.pool, f.newStore, nil)
}

func (f *fixture) inventory() *InventoryService {
	return NewInventoryService(f.pool, f.newStore, nil)
}

func (f *fixture) table(label string) database.DiningTable {
	t := database.DiningTable{ID: uuid.New(), Label: label, Capacity: 4, Status: database.TableStatusFree}
	f.db.tables[t.ID] = t
	return t
}

func (f *fixture) product(name, price, station string) database.Product {
	p := database.Product{
		ID:       uuid.New(),
		Name:     name,
		Price:    d(price),
		Station:  pgtype.Text{String: station, Valid: station != ""},
		IsActive: true,
	}
	f.db.products[p.ID] = p
	return p
}

func (f *fixture) option(productID uuid.UUID, group, name, delta string) database.ModifierOption {
	o := database.ModifierOption{ID: uuid.New(), GroupID: uuid.New(), GroupName: group, Name: name, PriceDelta: d(delta)}
	f.db.options[o.ID] = o
	f.db.optionOwner[o.ID] = productID
	return o
}

func (f *fixture) ingredient(name, unit, stock, cost string) database.Ingredient {
	ing := database.Ingredient{
		ID:          uuid.New(),
		Name:        name,
		Unit:        unit,
		StockQty:    d(stock),
		MinQty:      decimal.Zero,
		CostPerUnit: d(cost),
		IsActive:    true,
	}
	f.db.ingredients[ing.ID] = ing
	return ing
}

func (f *fixture) recipe(productID, ingredientID uuid.UUID, qty, waste string) {
	f.db.recipes[productID] = append(f.db.recipes[productID], database.CreateRecipeLineParams{
		ProductID:    productID,
		IngredientID: ingredientID,
		QtyPerUnit:   d(qty),
		WasteFactor:  d(waste),
	})
}

// openOrder seats a fresh order on table directly in the store.
func (f *fixture) openOrder(table database.DiningTable) database.Order {
	o, _ := f.db.CreateOrder(context.Background(), database.CreateOrderParams{TableID: table.ID, Guests: 2})
	table.Status = database.TableStatusOccupied
	f.db.tables[table.ID] = table
	return o
}

// item puts a line straight into the store with the given status.
func (f *fixture) item(order database.Order, p *database.Product, name, price string, qty int32, status database.OrderItemStatus) database.OrderItem {
	params := database.CreateOrderItemParams{
		OrderID:   order.ID,
		ItemName:  name,
		Quantity:  qty,
		UnitPrice: d(price),
		Status:    status,
	}
	if p != nil {
		params.ProductID = pgtype.UUID{Bytes: p.ID, Valid: true}
		params.Station = p.Station
	}
	it, _ := f.db.CreateOrderItem(context.Background(), params)
	return it
}

func (f *fixture) session(user uuid.UUID) database.CashSession {
	cs, _ := f.db.CreateCashSession(context.Background(), database.CreateCashSessionParams{OpenedBy: user, OpeningFloat: d("100")})
	return cs
}

func (f *fixture) payment(orderID, sessionID uuid.UUID, amount string) database.Payment {
	p, _ := f.db.CreatePayment(context.Background(), database.CreatePaymentParams{
		OrderID:   orderID,
		SessionID: pgtype.UUID{Bytes: sessionID, Valid: true},
		Method:    database.PaymentMethodCash,
		Amount:    d(amount),
	})
	return p
}
